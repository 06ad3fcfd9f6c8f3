// Package merge implements the field-level merge engine: it folds newly
// extracted, confidence-scored fields into a business state snapshot.
// Merging is a pure function (no I/O, no shared state) and is idempotent:
// re-merging a batch into its own output changes nothing.
package merge

import (
	"fmt"
	"strconv"
	"strings"

	"visioncraft/internal/logging"
	"visioncraft/internal/vision"
)

// Confidence thresholds. Below Admit a field is ignored entirely; between
// Update and Overwrite an existing value is only replaced when the new value
// actually differs under the case-insensitive comparison.
const (
	AdmitThreshold     = 0.5
	UpdateThreshold    = 0.7
	OverwriteThreshold = 0.9
)

// Merge returns a new business state with the extraction batch applied.
// The input state is never mutated. Custom fields follow the identical rule
// set but live under the nested custom-fields sub-map.
func Merge(current vision.BusinessState, extracted, custom map[string]vision.ExtractedField) vision.BusinessState {
	out := current.Clone()

	for name, f := range extracted {
		applyField(out, name, f)
	}

	if len(custom) > 0 {
		sub := out.Custom()
		if sub == nil {
			sub = make(map[string]interface{}, len(custom))
		}
		for name, f := range custom {
			applyField(sub, name, f)
		}
		if len(sub) > 0 {
			out[vision.CustomFieldsKey] = sub
		}
	}

	return out
}

// applyField applies the per-field merge policy to one target map.
func applyField(target map[string]interface{}, name string, f vision.ExtractedField) {
	// Malformed or low-confidence input is the normal case, not an error.
	if f.Value == nil || f.Confidence < AdmitThreshold {
		return
	}

	cur, exists := target[name]
	if !exists || IsEmpty(cur) {
		target[name] = normalizeIncoming(f.Value)
		logging.MergeDebug("admit %s (confidence=%.2f)", name, f.Confidence)
		return
	}

	if curList, ok := AsList(cur); ok {
		mergeList(target, name, curList, f)
		return
	}

	mergeScalar(target, name, cur, f)
}

// mergeScalar overwrites an existing scalar at >= 0.9 always, or at >= 0.7
// when the trimmed, case-folded new value differs from the current one.
func mergeScalar(target map[string]interface{}, name string, cur interface{}, f vision.ExtractedField) {
	switch {
	case f.Confidence >= OverwriteThreshold:
		target[name] = normalizeIncoming(f.Value)
		logging.MergeDebug("overwrite %s (confidence=%.2f)", name, f.Confidence)
	case f.Confidence >= UpdateThreshold && !sameScalar(cur, f.Value):
		target[name] = normalizeIncoming(f.Value)
		logging.MergeDebug("update %s (confidence=%.2f)", name, f.Confidence)
	}
}

// mergeList replaces wholesale at >= 0.9, or union-appends at >= 0.7:
// incoming values not already present are appended, existing order is kept.
func mergeList(target map[string]interface{}, name string, cur []interface{}, f vision.ExtractedField) {
	incoming, ok := AsList(f.Value)
	if !ok {
		// A scalar arriving for a list field is treated as a one-element list.
		incoming = []interface{}{f.Value}
	}

	switch {
	case f.Confidence >= OverwriteThreshold:
		target[name] = append([]interface{}(nil), incoming...)
		logging.MergeDebug("replace list %s (confidence=%.2f, %d items)", name, f.Confidence, len(incoming))
	case f.Confidence >= UpdateThreshold:
		merged := UnionLists(cur, incoming)
		if len(merged) > len(cur) {
			target[name] = merged
			logging.MergeDebug("union list %s (confidence=%.2f, +%d items)", name, f.Confidence, len(merged)-len(cur))
		}
	}
}

// UnionLists appends the incoming values not already present in cur, under
// the case-insensitive membership key. Existing order is kept; cur is not
// mutated.
func UnionLists(cur, incoming []interface{}) []interface{} {
	seen := make(map[string]bool, len(cur))
	for _, v := range cur {
		seen[foldKey(v)] = true
	}
	merged := append([]interface{}(nil), cur...)
	for _, v := range incoming {
		key := foldKey(v)
		if seen[key] {
			continue
		}
		seen[key] = true
		merged = append(merged, v)
	}
	return merged
}

// =============================================================================
// Value helpers
// =============================================================================

// IsEmpty reports whether a current value counts as absent for admit
// purposes: nil, blank string, or zero-length list.
func IsEmpty(v interface{}) bool {
	switch val := v.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(val) == ""
	case []interface{}:
		return len(val) == 0
	case []string:
		return len(val) == 0
	default:
		return false
	}
}

// AsList normalizes []string and []interface{} to []interface{}.
func AsList(v interface{}) ([]interface{}, bool) {
	switch val := v.(type) {
	case []interface{}:
		return val, true
	case []string:
		out := make([]interface{}, len(val))
		for i, s := range val {
			out[i] = s
		}
		return out, true
	default:
		return nil, false
	}
}

// normalizeIncoming converts typed string slices into the generic list
// representation used throughout the business state, and deep-copies lists
// so later merges cannot alias the caller's batch.
func normalizeIncoming(v interface{}) interface{} {
	if list, ok := AsList(v); ok {
		return append([]interface{}(nil), list...)
	}
	return v
}

// sameScalar compares two scalar values. Strings compare trimmed and
// case-folded; numbers compare numerically across int/int64/float64.
func sameScalar(a, b interface{}) bool {
	as, aok := a.(string)
	bs, bok := b.(string)
	if aok && bok {
		return strings.EqualFold(strings.TrimSpace(as), strings.TrimSpace(bs))
	}

	af, aok := asNumber(a)
	bf, bok := asNumber(b)
	if aok && bok {
		return af == bf
	}

	return a == b
}

func asNumber(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}

// foldKey produces the case-insensitive membership key for list union.
func foldKey(v interface{}) string {
	if s, ok := v.(string); ok {
		return strings.ToLower(strings.TrimSpace(s))
	}
	if f, ok := asNumber(v); ok {
		// Numbers fold to their canonical shortest form, so 3 and 3.0 unify.
		return strconv.FormatFloat(f, 'g', -1, 64)
	}
	return strings.ToLower(strings.TrimSpace(fmt.Sprintf("%v", v)))
}
