// Package gaps implements the completeness/gap scorer: a weighted
// completeness metric over the field catalog, a staged focus gate, and
// templated follow-up question generation. Scoring is a pure function of a
// record snapshot: no I/O, safe on any number of workers.
package gaps

import (
	"strings"
	"unicode/utf8"

	"visioncraft/internal/catalog"
	"visioncraft/internal/logging"
	"visioncraft/internal/vision"
)

// Assessment is the scorer's full output. CompletenessScore is on a fixed
// 0-100 scale. Candidates holds every generated question after skip-set
// filtering; only NextQuestion is surfaced to callers today, the rest are
// retained for future multi-question flows.
type Assessment struct {
	CompletenessScore float64
	CriticalGaps      []string
	EnhancementGaps   []string
	FieldScores       map[string]float64
	SuggestedFocus    catalog.Stage
	NextQuestion      *Question
	Candidates        []Question
}

// Question is one candidate follow-up, tagged with the fields it would fill.
type Question struct {
	Text         string
	TargetFields []string
	Priority     int
	FollowUpType string
}

// Scorer evaluates records against an injected catalog. The catalog is
// plain data: swapping weights or fields needs no code change here.
type Scorer struct {
	catalog func() *catalog.Catalog
}

// NewScorer creates a scorer over a fixed catalog.
func NewScorer(cat *catalog.Catalog) *Scorer {
	return &Scorer{catalog: func() *catalog.Catalog { return cat }}
}

// NewDynamicScorer creates a scorer whose catalog is re-read per call,
// for use with the catalog hot-reload watcher.
func NewDynamicScorer(source func() *catalog.Catalog) *Scorer {
	return &Scorer{catalog: source}
}

// Score evaluates a record snapshot with no conversational context.
func (s *Scorer) Score(rec *vision.VisionRecord) Assessment {
	return s.ScoreWithContext(rec, "")
}

// ScoreWithContext evaluates a record snapshot. recentContext is the tail
// of the conversation, used only by the keyword-triggered question rules.
func (s *Scorer) ScoreWithContext(rec *vision.VisionRecord, recentContext string) Assessment {
	timer := logging.StartTimer(logging.CategoryScorer, "Score")
	defer timer.Stop()

	cat := s.catalog()
	state := rec.State

	a := Assessment{
		FieldScores: make(map[string]float64, len(cat.Entries())),
	}

	var weighted float64
	for _, e := range cat.Entries() {
		q := fieldQuality(e, state[e.FieldName])
		a.FieldScores[e.FieldName] = q
		weighted += q * e.Weight

		if q < catalog.WeakThresholds[e.Category] {
			switch e.Category {
			case catalog.CategoryCritical, catalog.CategoryImportant:
				a.CriticalGaps = append(a.CriticalGaps, e.FieldName)
			default:
				a.EnhancementGaps = append(a.EnhancementGaps, e.FieldName)
			}
		}
	}

	// Fixed 0-100 scale, normalized by the catalog's total weight.
	a.CompletenessScore = 100 * weighted / cat.TotalWeight()
	a.SuggestedFocus = suggestedFocus(cat, a.FieldScores)

	a.Candidates = s.generateQuestions(cat, rec, a, recentContext)
	if len(a.Candidates) > 0 {
		a.NextQuestion = &a.Candidates[0]
	}

	logging.ScorerDebug("scored record %s: completeness=%.1f focus=%s gaps=%d",
		rec.ID, a.CompletenessScore, a.SuggestedFocus, len(a.CriticalGaps))

	return a
}

// fieldQuality maps a field value onto [0,1]. Missing or empty is 0.
// Strings are banded by trimmed length, with stricter bands for critical
// fields; lists are banded by element count; numbers score 1.0 when
// present and positive.
func fieldQuality(e catalog.Entry, v interface{}) float64 {
	if v == nil {
		return 0
	}

	switch val := v.(type) {
	case string:
		return stringQuality(e.Category, val)
	case []interface{}:
		return listQuality(len(val))
	case []string:
		return listQuality(len(val))
	case float64, float32, int, int64:
		if numericValue(val) > 0 {
			return 1.0
		}
		return 0
	default:
		// Unknown shapes count as present but unassessable.
		return 0.5
	}
}

func stringQuality(category catalog.FieldCategory, s string) float64 {
	n := utf8.RuneCountInString(strings.TrimSpace(s))
	if n == 0 {
		return 0
	}
	if category == catalog.CategoryCritical {
		switch {
		case n < 10:
			return 0.4
		case n < 30:
			return 0.7
		default:
			return 1.0
		}
	}
	switch {
	case n < 10:
		return 0.5
	case n < 30:
		return 0.8
	default:
		return 1.0
	}
}

func listQuality(n int) float64 {
	switch {
	case n == 0:
		return 0
	case n == 1:
		return 0.4
	case n == 2:
		return 0.7
	default:
		return 1.0
	}
}

func numericValue(v interface{}) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case float32:
		return float64(n)
	case int:
		return float64(n)
	case int64:
		return float64(n)
	default:
		return 0
	}
}

// suggestedFocus walks the stages in gate order and returns the first one
// whose weighted aggregate falls below its threshold. Passing every gate
// leaves the focus on the final stage. Because stages are only re-derived
// from a record that accumulates information, the gate moves forward only.
func suggestedFocus(cat *catalog.Catalog, fieldScores map[string]float64) catalog.Stage {
	for _, stage := range catalog.Stages {
		fields := cat.StageFields(stage)
		if len(fields) == 0 {
			continue
		}
		var weighted, total float64
		for _, e := range fields {
			weighted += fieldScores[e.FieldName] * e.Weight
			total += e.Weight
		}
		if weighted/total < catalog.StageThresholds[stage] {
			return stage
		}
	}
	return catalog.StageImplementation
}
