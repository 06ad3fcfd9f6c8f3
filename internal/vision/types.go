// Package vision defines the shared domain types for the vision document
// pipeline: the persisted record, confidence-scored extraction output, and
// the structured conflict payload returned by optimistic-concurrency commits.
package vision

import (
	"encoding/json"
	"time"
)

// =============================================================================
// SECTION 1: Record Types
// =============================================================================

// CustomFieldsKey is the reserved business-state key under which dynamic,
// caller-named fields are nested.
const CustomFieldsKey = "custom_fields"

// BusinessState is the open map of named vision fields. Values are scalars
// (string, float64, int), string lists, or (under CustomFieldsKey) a nested
// map following the same conventions.
type BusinessState map[string]interface{}

// VisionRecord is the durable, versioned vision document for one company.
// It is owned exclusively by the persistence gateway: Version strictly
// increases on every successful commit, and CompletenessScore is derived by
// the gap scorer, never hand-set.
type VisionRecord struct {
	ID    string `json:"id"`
	Title string `json:"title,omitempty"`

	// Version is a dedicated monotonic edit counter, independent of the
	// completeness score (see DESIGN.md on the version/score conflation).
	Version int64 `json:"version"`

	State BusinessState `json:"business_state"`

	// CompletenessScore is on a fixed 0-100 scale.
	CompletenessScore float64 `json:"completeness_score"`

	// SkippedFields are field names the user declined to answer; question
	// generation must never target them.
	SkippedFields []string `json:"skipped_fields,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// SkipSet returns the record's skipped fields as a set.
func (r *VisionRecord) SkipSet() map[string]bool {
	if len(r.SkippedFields) == 0 {
		return nil
	}
	set := make(map[string]bool, len(r.SkippedFields))
	for _, f := range r.SkippedFields {
		set[f] = true
	}
	return set
}

// Clone returns a deep copy of the business state. Merge and resolution
// logic operate on copies so the caller's snapshot stays untouched.
func (s BusinessState) Clone() BusinessState {
	if s == nil {
		return BusinessState{}
	}
	out := make(BusinessState, len(s))
	for k, v := range s {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v interface{}) interface{} {
	switch val := v.(type) {
	case []string:
		return append([]string(nil), val...)
	case []interface{}:
		cp := make([]interface{}, len(val))
		for i, e := range val {
			cp[i] = cloneValue(e)
		}
		return cp
	case map[string]interface{}:
		cp := make(map[string]interface{}, len(val))
		for k, e := range val {
			cp[k] = cloneValue(e)
		}
		return cp
	case BusinessState:
		return map[string]interface{}(val.Clone())
	default:
		return val
	}
}

// Custom returns the nested custom-fields sub-map, or nil when absent.
func (s BusinessState) Custom() map[string]interface{} {
	switch m := s[CustomFieldsKey].(type) {
	case map[string]interface{}:
		return m
	case BusinessState:
		return m
	default:
		return nil
	}
}

// =============================================================================
// SECTION 2: Extraction Types
// =============================================================================

// ExtractionMethod describes how the upstream model arrived at a value.
type ExtractionMethod string

const (
	MethodDirect     ExtractionMethod = "direct"
	MethodInferred   ExtractionMethod = "inferred"
	MethodContextual ExtractionMethod = "contextual"
)

// Valid reports whether the method is one of the known values.
func (m ExtractionMethod) Valid() bool {
	switch m {
	case MethodDirect, MethodInferred, MethodContextual:
		return true
	}
	return false
}

// ExtractedField is one confidence-scored candidate value produced by the
// extraction collaborator. Immutable; consumed once by the merge engine.
type ExtractedField struct {
	Value      interface{}      `json:"value"`
	Confidence float64          `json:"confidence"`
	SourceSpan string           `json:"source_span,omitempty"`
	Method     ExtractionMethod `json:"extraction_method,omitempty"`
}

// =============================================================================
// SECTION 3: Concurrency Types
// =============================================================================

// Conflict is the structured payload returned when a caller's assumed
// version is stale. Conflicts are data, not errors: the caller inspects
// CurrentState and picks a resolution strategy.
type Conflict struct {
	CurrentVersion  int64         `json:"current_version"`
	ExpectedVersion int64         `json:"expected_version"`
	CurrentState    BusinessState `json:"current_state"`
}

// ResolutionStrategy selects how a conflict is resolved before resubmission.
type ResolutionStrategy string

const (
	ClientWins   ResolutionStrategy = "client_wins"
	ServerWins   ResolutionStrategy = "server_wins"
	MergeResolve ResolutionStrategy = "merge"
)

// Valid reports whether the strategy is one of the known values.
func (s ResolutionStrategy) Valid() bool {
	switch s {
	case ClientWins, ServerWins, MergeResolve:
		return true
	}
	return false
}

// =============================================================================
// SECTION 4: Audit Types
// =============================================================================

// AuditEntry is one append-only change-log row. Appends are fire-and-forget:
// a failed append never rolls back the commit it describes.
type AuditEntry struct {
	ID         string                 `json:"id"`
	RecordID   string                 `json:"record_id"`
	OldVersion int64                  `json:"old_version"`
	NewVersion int64                  `json:"new_version"`
	ChangeType string                 `json:"change_type"`
	Metadata   map[string]interface{} `json:"metadata,omitempty"`
	CreatedAt  time.Time              `json:"created_at"`
}

// MetadataJSON serializes the metadata map for storage. Returns "{}" on
// marshal failure so a bad metadata value never blocks the append.
func (e *AuditEntry) MetadataJSON() string {
	if len(e.Metadata) == 0 {
		return "{}"
	}
	data, err := json.Marshal(e.Metadata)
	if err != nil {
		return "{}"
	}
	return string(data)
}
