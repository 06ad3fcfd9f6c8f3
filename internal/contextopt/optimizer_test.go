package contextopt

import (
	"fmt"
	"strings"
	"testing"
)

// text returns a string estimating to exactly n tokens: n*4 runes of
// space-separated filler ending in a period, so truncation has boundaries
// to land on.
func text(n int) string {
	if n <= 0 {
		return ""
	}
	var sb strings.Builder
	for sb.Len() < n*4-1 {
		sb.WriteString("word ")
	}
	s := sb.String()[:n*4-1]
	return s + "."
}

func TestEstimateTokens(t *testing.T) {
	cases := []struct {
		in   string
		want int
	}{
		{"", 0},
		{"abcd", 1},
		{"abcdefg", 1},
		{"abcdefgh", 2},
		{strings.Repeat("é", 8), 2}, // runes, not bytes
	}
	for _, tc := range cases {
		if got := EstimateTokens(tc.in); got != tc.want {
			t.Errorf("EstimateTokens(%q) = %d, want %d", tc.in, got, tc.want)
		}
	}
}

func TestTruncateToTokensSentenceBoundary(t *testing.T) {
	s := "First sentence here. Second sentence is much longer and will be cut off entirely."
	out := TruncateToTokens(s, 7)

	if !strings.HasSuffix(out, "First sentence here.") {
		t.Errorf("expected cut at sentence boundary, got %q", out)
	}
	if EstimateTokens(out) > 7 {
		t.Errorf("truncated text estimates %d tokens, budget 7", EstimateTokens(out))
	}
}

func TestTruncateToTokensWordBoundary(t *testing.T) {
	s := "alpha beta gamma delta epsilon zeta eta theta"
	out := TruncateToTokens(s, 4)

	if strings.ContainsAny(out, ".") {
		t.Errorf("no sentence boundary exists, got %q", out)
	}
	if out == "" || strings.HasSuffix(out, " ") {
		t.Errorf("bad word-boundary cut: %q", out)
	}
	// Never mid-word: every output word must appear whole in the input.
	for _, w := range strings.Fields(out) {
		if !strings.Contains(s, w+" ") && !strings.HasSuffix(s, w) {
			t.Errorf("word %q split mid-word in %q", w, out)
		}
	}
}

func TestTruncateToTokensZeroBudget(t *testing.T) {
	if got := TruncateToTokens("anything", 0); got != "" {
		t.Errorf("TruncateToTokens(_, 0) = %q, want empty", got)
	}
}

func TestOptimizeUnderBudgetUntouched(t *testing.T) {
	layers := Layers{
		Critical: Layer{Content: "Known facts.", Kind: LayerCritical},
		Recent:   Layer{Content: "user: hi\nassistant: hello", Kind: LayerRecent},
	}

	out := Optimize(layers, 10_000)

	if len(out.AppliedStrategies) != 0 {
		t.Errorf("unexpected strategies applied: %v", out.AppliedStrategies)
	}
	if !strings.Contains(out.Content, "Known facts.") {
		t.Errorf("critical content missing from output: %q", out.Content)
	}
}

func TestOptimizeEmptyInput(t *testing.T) {
	out := Optimize(Layers{}, 100)

	if out.Content != "" {
		t.Errorf("empty input produced content: %q", out.Content)
	}
	if out.TokenCount != 0 {
		t.Errorf("empty input produced %d tokens", out.TokenCount)
	}
}

func TestOptimizeDropEmptyClearsStaleEstimates(t *testing.T) {
	layers := Layers{
		Critical: Layer{Content: text(50), Kind: LayerCritical},
		RAG:      Layer{Content: "   \n  ", TokenCount: 500, Kind: LayerRAG},
	}

	out := Optimize(layers, 60)

	if !applied(out, StrategyDropEmpty) {
		t.Errorf("drop_empty not applied: %v", out.AppliedStrategies)
	}
	if out.TokenCount > 60 {
		t.Errorf("output %d tokens over budget 60", out.TokenCount)
	}
}

// Budget 400 against 1000 input tokens with a 100-token critical layer: the
// critical layer survives whole and the remaining 300 tokens are split
// proportionally across the other three layers.
func TestOptimizePreservesCriticalProportionalSplit(t *testing.T) {
	layers := Layers{
		Critical:   Layer{Content: text(100), Kind: LayerCritical},
		Recent:     Layer{Content: text(450), Kind: LayerRecent},
		UserMemory: Layer{Content: text(150), Kind: LayerUserMemory},
		RAG:        Layer{Content: text(300), Kind: LayerRAG},
	}

	out := Optimize(layers, 400)

	if !applied(out, StrategyPreserveCritical) {
		t.Fatalf("preserve_critical not applied: %v", out.AppliedStrategies)
	}
	if out.TokenCount > 400 {
		t.Errorf("output %d tokens over budget 400", out.TokenCount)
	}
	if !strings.Contains(out.Content, "## Critical Context") {
		t.Error("critical section missing")
	}

	// The critical text must be intact, not truncated.
	critical := section(out.Content, "## Critical Context")
	if EstimateTokens(critical) < 95 {
		t.Errorf("critical layer shrunk to ~%d tokens, want ~100", EstimateTokens(critical))
	}

	// Proportional split of the remaining 300: recent 150, memory 50, rag 100.
	for _, tc := range []struct {
		label string
		want  int
	}{
		{"## Recent Conversation", 150},
		{"## User Memory", 50},
		{"## Retrieved Knowledge", 100},
	} {
		got := EstimateTokens(section(out.Content, tc.label))
		if got > tc.want || got < tc.want-10 {
			t.Errorf("%s: ~%d tokens, want ~%d", tc.label, got, tc.want)
		}
	}
}

func TestOptimizeCompressRecentElides(t *testing.T) {
	var turns []string
	for i := 0; i < 20; i++ {
		turns = append(turns, fmt.Sprintf("user: message number %d with a fair amount of padding text", i))
	}

	layers := Layers{
		Recent: Layer{Content: strings.Join(turns, "\n"), Kind: LayerRecent},
	}

	out := Optimize(layers, 80)

	if !applied(out, StrategyCompressRecent) {
		t.Fatalf("compress_recent not applied: %v", out.AppliedStrategies)
	}
	if !strings.Contains(out.Content, "16 earlier turns elided") {
		t.Errorf("elision placeholder missing or wrong count:\n%s", out.Content)
	}
	if !strings.Contains(out.Content, "number 0") || !strings.Contains(out.Content, "number 19") {
		t.Error("first/last turns not preserved")
	}
}

func TestOptimizeDedupeAcrossLayers(t *testing.T) {
	layers := Layers{
		Recent:     Layer{Content: "The launch is in March.\nBudget approved.", Kind: LayerRecent},
		UserMemory: Layer{Content: "the launch is in march.\nPrefers short answers.", Kind: LayerUserMemory},
	}

	out := Optimize(layers, 12)

	if !applied(out, StrategyDedupe) {
		t.Fatalf("dedupe not applied: %v", out.AppliedStrategies)
	}
	if n := strings.Count(strings.ToLower(out.Content), "launch is in march"); n != 1 {
		t.Errorf("duplicate line appears %d times, want 1", n)
	}
	// First occurrence wins: the recent layer's casing survives.
	if !strings.Contains(out.Content, "The launch is in March.") {
		t.Error("first occurrence did not win")
	}
}

func TestOptimizeTruncateUniformFits(t *testing.T) {
	// No critical layer, so the pipeline falls through to uniform truncation.
	layers := Layers{
		Recent:     Layer{Content: text(300), Kind: LayerRecent},
		UserMemory: Layer{Content: strings.Repeat("data ", 240), Kind: LayerUserMemory},
	}

	out := Optimize(layers, 100)

	if !applied(out, StrategyTruncateUniform) {
		t.Fatalf("truncate_uniform not applied: %v", out.AppliedStrategies)
	}
	if out.TokenCount > 100 {
		t.Errorf("output %d tokens over budget 100", out.TokenCount)
	}
}

func TestOptimizeCriticalNeverDropped(t *testing.T) {
	layers := Layers{
		Critical: Layer{Content: text(200), Kind: LayerCritical},
		RAG:      Layer{Content: text(800), Kind: LayerRAG},
	}

	out := Optimize(layers, 50)

	if !strings.Contains(out.Content, "## Critical Context") {
		t.Error("critical layer dropped under pressure")
	}
	if out.TokenCount > 50 {
		t.Errorf("output %d tokens over budget 50", out.TokenCount)
	}
}

func TestOptimizeMergesSources(t *testing.T) {
	layers := Layers{
		Critical: Layer{Content: "facts", Sources: []string{"record:1"}, Kind: LayerCritical},
		RAG:      Layer{Content: "snippet", Sources: []string{"doc:a", "doc:b"}, Kind: LayerRAG},
	}

	out := Optimize(layers, 1000)

	want := []string{"record:1", "doc:a", "doc:b"}
	if len(out.Sources) != len(want) {
		t.Fatalf("sources = %v, want %v", out.Sources, want)
	}
	for i := range want {
		if out.Sources[i] != want[i] {
			t.Errorf("sources[%d] = %s, want %s", i, out.Sources[i], want[i])
		}
	}
}

func applied(out Optimized, name string) bool {
	for _, s := range out.AppliedStrategies {
		if s == name {
			return true
		}
	}
	return false
}

// section extracts one labeled section's body from the assembled output.
func section(content, label string) string {
	idx := strings.Index(content, label)
	if idx == -1 {
		return ""
	}
	body := content[idx+len(label):]
	if end := strings.Index(body, "\n\n## "); end != -1 {
		body = body[:end]
	}
	return strings.TrimSpace(body)
}
