// Package contextopt implements the context budget optimizer: four
// prioritized memory layers go in, one bounded context blob comes out.
// Optimization is a pure function over the token estimate, no I/O, safe
// on any number of workers.
package contextopt

import (
	"fmt"
	"strings"

	"visioncraft/internal/logging"
)

// LayerKind identifies one of the four memory layers.
type LayerKind string

const (
	LayerCritical   LayerKind = "critical"
	LayerRecent     LayerKind = "recent"
	LayerUserMemory LayerKind = "user_memory"
	LayerRAG        LayerKind = "rag"
)

// Strategy names, reported in application order for observability.
const (
	StrategyDropEmpty        = "drop_empty"
	StrategyPreserveCritical = "preserve_critical"
	StrategyCompressRAG      = "compress_rag"
	StrategyCompressRecent   = "compress_recent"
	StrategyDedupe           = "dedupe"
	StrategyTruncateUniform  = "truncate_uniform"
)

// Layer is one prioritized slice of conversational memory. Content is
// newline-structured text; for the recent layer each line is one
// conversational turn. Layers are transient, rebuilt every turn.
type Layer struct {
	Content    string
	Sources    []string
	TokenCount int // estimated; zero means derive from Content
	Priority   int
	Kind       LayerKind
}

// Layers carries the four memory layers handed to Optimize.
type Layers struct {
	Critical   Layer
	Recent     Layer
	UserMemory Layer
	RAG        Layer
}

// Optimized is the bounded context blob plus observability data.
type Optimized struct {
	Content           string
	Sources           []string
	TokenCount        int
	AppliedStrategies []string
}

// criticalReservePercent bounds the critical layer's reservation against
// the total input size during proportional shrinking.
const criticalReservePercent = 20

// layerState is a mutable working copy of one layer.
type layerState struct {
	kind    LayerKind
	label   string
	content string
	sources []string
	tokens  int
}

// Optimize reduces the four layers to fit the token budget. Strategies are
// applied in fixed order, each only while the total still exceeds the
// budget, and the names of the strategies that actually changed anything
// are returned in application order. The critical layer may be shrunk but
// is never dropped while any other layer has content.
func Optimize(in Layers, budget int) Optimized {
	timer := logging.StartTimer(logging.CategoryContext, "Optimize")
	defer timer.Stop()

	// Fixed priority order for shrinking and final assembly.
	states := []*layerState{
		newLayerState(in.Critical, LayerCritical, "## Critical Context"),
		newLayerState(in.Recent, LayerRecent, "## Recent Conversation"),
		newLayerState(in.UserMemory, LayerUserMemory, "## User Memory"),
		newLayerState(in.RAG, LayerRAG, "## Retrieved Knowledge"),
	}

	var applied []string
	note := func(name string, changed bool) {
		if changed {
			applied = append(applied, name)
		}
	}

	if total(states) > budget {
		note(StrategyDropEmpty, dropEmpty(states))
	}
	if total(states) > budget {
		note(StrategyPreserveCritical, preserveCritical(states, budget))
	}
	if total(states) > budget {
		note(StrategyCompressRAG, compressRAG(states))
	}
	if total(states) > budget {
		note(StrategyCompressRecent, compressRecent(states))
	}
	if total(states) > budget {
		note(StrategyDedupe, dedupe(states))
	}
	if total(states) > budget {
		note(StrategyTruncateUniform, truncateUniform(states, budget))
	}

	out := assemble(states)
	out.AppliedStrategies = applied

	logging.ContextDebug("optimized context: %d tokens (budget %d), strategies=%v",
		out.TokenCount, budget, applied)

	return out
}

func newLayerState(l Layer, kind LayerKind, label string) *layerState {
	tokens := l.TokenCount
	if tokens == 0 {
		tokens = EstimateTokens(l.Content)
	}
	return &layerState{
		kind:    kind,
		label:   label,
		content: l.Content,
		sources: l.Sources,
		tokens:  tokens,
	}
}

func total(states []*layerState) int {
	sum := 0
	for _, s := range states {
		sum += s.tokens
	}
	return sum
}

func (s *layerState) setContent(content string) {
	s.content = content
	s.tokens = EstimateTokens(content)
}

func (s *layerState) empty() bool {
	return strings.TrimSpace(s.content) == ""
}

// dropEmpty clears layers whose content is blank so their estimates stop
// counting against the budget.
func dropEmpty(states []*layerState) bool {
	changed := false
	for _, s := range states {
		if !s.empty() {
			continue
		}
		if s.tokens > 0 {
			changed = true
		}
		s.content = ""
		s.tokens = 0
	}
	return changed
}

// preserveCritical reserves room for the critical layer (its own size,
// bounded by 20% of the total input) and shrinks the remaining layers
// proportionally into what is left of the budget. With no critical content
// there is nothing to preserve and the later strategies take over.
func preserveCritical(states []*layerState, budget int) bool {
	critical := states[0]
	if critical.empty() {
		return false
	}

	reserve := critical.tokens
	if limit := total(states) * criticalReservePercent / 100; reserve > limit {
		reserve = limit
	}
	if reserve > budget {
		reserve = budget
	}

	changed := false
	if critical.tokens > reserve {
		critical.setContent(TruncateToTokens(critical.content, reserve))
		changed = true
	}

	remaining := budget - critical.tokens
	others := states[1:]
	otherTotal := total(others)
	if otherTotal == 0 {
		return changed
	}

	for _, s := range others {
		if s.tokens == 0 {
			continue
		}
		allocation := remaining * s.tokens / otherTotal
		if s.tokens > allocation {
			s.setContent(TruncateToTokens(s.content, allocation))
			changed = true
		}
	}
	return changed
}

// compressRAG keeps only the first half of the retrieved-knowledge lines.
// Upstream retrieval pre-sorts by relevance, so the tail is the cheapest
// content to lose.
func compressRAG(states []*layerState) bool {
	rag := states[3]
	lines := splitLines(rag.content)
	if len(lines) < 2 {
		return false
	}
	rag.setContent(strings.Join(lines[:(len(lines)+1)/2], "\n"))
	return true
}

// compressRecent keeps the first two and last two conversational turns and
// replaces everything between with a single placeholder naming the count.
func compressRecent(states []*layerState) bool {
	recent := states[1]
	lines := splitLines(recent.content)
	if len(lines) <= 5 {
		return false
	}
	elided := len(lines) - 4
	compressed := make([]string, 0, 5)
	compressed = append(compressed, lines[0], lines[1])
	compressed = append(compressed, fmt.Sprintf("[... %d earlier turns elided ...]", elided))
	compressed = append(compressed, lines[len(lines)-2], lines[len(lines)-1])
	recent.setContent(strings.Join(compressed, "\n"))
	return true
}

// dedupe drops case-insensitive duplicate lines across all remaining
// layers, first occurrence wins, walking layers in priority order.
func dedupe(states []*layerState) bool {
	seen := make(map[string]bool)
	changed := false
	for _, s := range states {
		if s.empty() {
			continue
		}
		lines := splitLines(s.content)
		kept := lines[:0]
		for _, line := range lines {
			key := strings.ToLower(strings.TrimSpace(line))
			if key != "" && seen[key] {
				changed = true
				continue
			}
			if key != "" {
				seen[key] = true
			}
			kept = append(kept, line)
		}
		if len(kept) != len(lines) {
			s.setContent(strings.Join(kept, "\n"))
		}
	}
	return changed
}

// truncateUniform is the last resort: every layer is cut proportionally so
// the total fits the budget exactly (floor division keeps it under).
func truncateUniform(states []*layerState, budget int) bool {
	sum := total(states)
	if sum == 0 {
		return false
	}
	changed := false
	for _, s := range states {
		if s.tokens == 0 {
			continue
		}
		allocation := s.tokens * budget / sum
		if s.tokens > allocation {
			s.setContent(TruncateToTokens(s.content, allocation))
			changed = true
		}
	}
	return changed
}

// assemble concatenates surviving layers in fixed priority order with
// section labels and merges their sources. TokenCount is the sum of the
// layer estimates, the quantity the budget governed; the section labels are
// fixed framing outside it.
func assemble(states []*layerState) Optimized {
	var sb strings.Builder
	var sources []string
	tokens := 0

	for _, s := range states {
		if s.empty() {
			continue
		}
		if sb.Len() > 0 {
			sb.WriteString("\n\n")
		}
		sb.WriteString(s.label)
		sb.WriteString("\n")
		sb.WriteString(s.content)
		sources = append(sources, s.sources...)
		tokens += s.tokens
	}

	return Optimized{
		Content:    sb.String(),
		Sources:    sources,
		TokenCount: tokens,
	}
}

func splitLines(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	return strings.Split(strings.TrimRight(s, "\n"), "\n")
}
