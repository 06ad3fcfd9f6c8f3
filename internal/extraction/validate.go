// Package extraction turns raw model output into validated, confidence-scored
// field batches. Malformed upstream output is a typed outcome (Degraded), not
// an error: the pipeline keeps moving with whatever survived validation.
package extraction

import (
	"encoding/json"
	"fmt"
	"strings"

	"visioncraft/internal/logging"
	"visioncraft/internal/vision"
)

// payload is the wire schema the upstream model is asked to produce.
type payload struct {
	ExtractedFields map[string]rawField `json:"extracted_fields"`
	CustomFields    map[string]rawField `json:"custom_fields"`
}

type rawField struct {
	Value      interface{} `json:"value"`
	Confidence float64     `json:"confidence"`
	SourceSpan string      `json:"source_span"`
	Method     string      `json:"extraction_method"`
}

// Result is the tagged outcome of validating one extraction batch. Exactly
// one of the two shapes holds: OK with the surviving field maps, or Degraded
// with a reason when nothing usable could be recovered. Dropped lists the
// individual fields rejected during an otherwise OK validation.
type Result struct {
	OK      bool
	Fields  map[string]vision.ExtractedField
	Custom  map[string]vision.ExtractedField
	Dropped []string
	Reason  string
}

// Degraded reports whether the batch produced no usable fields.
func (r Result) Degraded() bool { return !r.OK }

// Validate parses and validates a raw model response. The response may wrap
// its JSON in prose or code fences; the first balanced JSON object is used.
// Per-field failures (missing value, confidence outside [0,1], unknown
// extraction method) drop that field only. A batch degrades as a whole only
// when no JSON object can be recovered or every field was rejected on a
// nonempty input.
func Validate(raw string) Result {
	blob := extractJSON(raw)
	if blob == "" {
		logging.API("extraction degraded: no JSON object in response (%d bytes)", len(raw))
		return Result{Reason: "no JSON object in model response"}
	}

	var p payload
	if err := json.Unmarshal([]byte(blob), &p); err != nil {
		logging.API("extraction degraded: %v", err)
		return Result{Reason: fmt.Sprintf("malformed JSON: %v", err)}
	}

	out := Result{OK: true}
	out.Fields, out.Dropped = validateMap(p.ExtractedFields, out.Dropped)
	out.Custom, out.Dropped = validateMap(p.CustomFields, out.Dropped)

	if len(out.Fields) == 0 && len(out.Custom) == 0 {
		if len(p.ExtractedFields)+len(p.CustomFields) > 0 {
			return Result{Reason: "every extracted field failed validation", Dropped: out.Dropped}
		}
		// An empty but well-formed batch is a valid "nothing new" answer.
		return out
	}

	if len(out.Dropped) > 0 {
		logging.APIDebug("extraction dropped %d invalid fields: %v", len(out.Dropped), out.Dropped)
	}
	return out
}

func validateMap(in map[string]rawField, dropped []string) (map[string]vision.ExtractedField, []string) {
	if len(in) == 0 {
		return nil, dropped
	}
	out := make(map[string]vision.ExtractedField, len(in))
	for name, f := range in {
		if err := checkField(name, f); err != nil {
			dropped = append(dropped, name)
			continue
		}
		out[name] = vision.ExtractedField{
			Value:      f.Value,
			Confidence: f.Confidence,
			SourceSpan: f.SourceSpan,
			Method:     vision.ExtractionMethod(f.Method),
		}
	}
	if len(out) == 0 {
		return nil, dropped
	}
	return out, dropped
}

func checkField(name string, f rawField) error {
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("blank field name")
	}
	if f.Value == nil {
		return fmt.Errorf("field %s: missing value", name)
	}
	if f.Confidence < 0 || f.Confidence > 1 {
		return fmt.Errorf("field %s: confidence %.2f outside [0,1]", name, f.Confidence)
	}
	if f.Method != "" && !vision.ExtractionMethod(f.Method).Valid() {
		return fmt.Errorf("field %s: unknown extraction method %q", name, f.Method)
	}
	return nil
}

// extractJSON pulls the first balanced JSON object out of a response that
// may wrap it in markdown fences or prose.
func extractJSON(response string) string {
	start := strings.Index(response, "{")
	if start == -1 {
		return ""
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(response); i++ {
		c := response[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return response[start : i+1]
			}
		}
	}

	return ""
}
