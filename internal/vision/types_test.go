package vision

import "testing"

func TestCloneIsDeep(t *testing.T) {
	s := BusinessState{
		"industry":       "Retail",
		"business_goals": []interface{}{"Grow"},
		CustomFieldsKey: map[string]interface{}{
			"mascot": "Otto",
		},
	}

	c := s.Clone()
	c["industry"] = "Healthcare"
	c["business_goals"].([]interface{})[0] = "tampered"
	c.Custom()["mascot"] = "Bella"

	if s["industry"] != "Retail" {
		t.Error("scalar aliased")
	}
	if s["business_goals"].([]interface{})[0] != "Grow" {
		t.Error("list aliased")
	}
	if s.Custom()["mascot"] != "Otto" {
		t.Error("custom sub-map aliased")
	}
}

func TestCloneNil(t *testing.T) {
	var s BusinessState
	c := s.Clone()
	if c == nil {
		t.Fatal("clone of nil must be usable")
	}
	c["x"] = 1
}

func TestSkipSet(t *testing.T) {
	r := VisionRecord{SkippedFields: []string{"a", "b"}}
	set := r.SkipSet()
	if !set["a"] || !set["b"] || set["c"] {
		t.Errorf("skip set = %v", set)
	}

	empty := VisionRecord{}
	if empty.SkipSet() != nil {
		t.Error("empty skip set should be nil")
	}
}

func TestMetadataJSON(t *testing.T) {
	e := AuditEntry{Metadata: map[string]interface{}{"k": "v"}}
	if got := e.MetadataJSON(); got != `{"k":"v"}` {
		t.Errorf("metadata json = %s", got)
	}

	none := AuditEntry{}
	if got := none.MetadataJSON(); got != "{}" {
		t.Errorf("empty metadata json = %s", got)
	}
}

func TestEnumValidity(t *testing.T) {
	if !MethodDirect.Valid() || ExtractionMethod("guessed").Valid() {
		t.Error("extraction method validity wrong")
	}
	if !MergeResolve.Valid() || ResolutionStrategy("coin_flip").Valid() {
		t.Error("resolution strategy validity wrong")
	}
}
