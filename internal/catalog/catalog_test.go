package catalog

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultCatalogIsValid(t *testing.T) {
	c := Default()

	if len(c.Entries()) == 0 {
		t.Fatal("default catalog is empty")
	}
	for _, e := range c.Entries() {
		if e.Question == "" {
			t.Errorf("field %s has no question template", e.FieldName)
		}
		if _, ok := WeakThresholds[e.Category]; !ok {
			t.Errorf("field %s has unknown category %s", e.FieldName, e.Category)
		}
		if _, ok := StageThresholds[e.Stage]; !ok {
			t.Errorf("field %s has unknown stage %s", e.FieldName, e.Stage)
		}
	}

	// Every stage must have at least one field or the focus gate skips it.
	for _, stage := range Stages {
		if len(c.StageFields(stage)) == 0 {
			t.Errorf("stage %s has no fields", stage)
		}
	}
}

func TestNewRejectsBadEntries(t *testing.T) {
	cases := []struct {
		name    string
		entries []Entry
	}{
		{"empty", nil},
		{"blank name", []Entry{{FieldName: "", Weight: 1}}},
		{"zero weight", []Entry{{FieldName: "a", Weight: 0}}},
		{"duplicate", []Entry{{FieldName: "a", Weight: 1}, {FieldName: "a", Weight: 2}}},
	}
	for _, tc := range cases {
		if _, err := New(tc.entries); err == nil {
			t.Errorf("%s: expected error", tc.name)
		}
	}
}

func TestOrderUnknownSortsLast(t *testing.T) {
	c := Default()
	if got := c.Order("no_such_field"); got != len(c.Entries()) {
		t.Errorf("Order(unknown) = %d, want %d", got, len(c.Entries()))
	}
	if got := c.Order("company_name"); got != 0 {
		t.Errorf("Order(company_name) = %d, want 0", got)
	}
}

const overrideYAML = `
fields:
  - field: industry
    weight: 12
    category: critical
    kind: text
    stage: basic_info
    question: "Which market are you really in?"
    follow_up_type: identity
  - field: sustainability_goals
    weight: 3
    category: enhancement
    kind: list
    stage: implementation
    question: "What sustainability goals does the company have?"
    follow_up_type: culture
`

func writeOverride(t *testing.T, dir, content string) string {
	t.Helper()
	path := filepath.Join(dir, "catalog.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadOverrideMergeKeepsOrder(t *testing.T) {
	base := Default()
	path := writeOverride(t, t.TempDir(), overrideYAML)

	merged, err := LoadOverride(base, path)
	if err != nil {
		t.Fatalf("load override failed: %v", err)
	}

	// Replaced in place: industry keeps its declaration slot.
	if got := merged.Order("industry"); got != base.Order("industry") {
		t.Errorf("industry moved from %d to %d", base.Order("industry"), got)
	}
	e, ok := merged.Lookup("industry")
	if !ok || e.Weight != 12 || e.Question != "Which market are you really in?" {
		t.Errorf("industry override not applied: %+v", e)
	}

	// New field appended after the base rows.
	if got := merged.Order("sustainability_goals"); got != len(base.Entries()) {
		t.Errorf("new field at %d, want %d", got, len(base.Entries()))
	}

	wantWeight := base.TotalWeight() + 2 + 3 // industry 10->12, plus new field
	if merged.TotalWeight() != wantWeight {
		t.Errorf("total weight = %v, want %v", merged.TotalWeight(), wantWeight)
	}
}

func TestLoadOverrideBadFile(t *testing.T) {
	base := Default()
	path := writeOverride(t, t.TempDir(), "fields:\n  - field: dup\n    weight: -1\n")

	if _, err := LoadOverride(base, path); err == nil {
		t.Error("expected error for negative weight")
	}
	if _, err := LoadOverride(base, filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestWatcherReloadsOnChange(t *testing.T) {
	dir := t.TempDir()
	path := writeOverride(t, dir, overrideYAML)

	w, err := NewWatcher(Default(), path)
	if err != nil {
		t.Fatalf("new watcher failed: %v", err)
	}
	if err := w.Start(context.Background()); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	defer w.Stop()

	if e, _ := w.Catalog().Lookup("industry"); e.Weight != 12 {
		t.Fatalf("initial override not loaded: %+v", e)
	}

	updated := `
fields:
  - field: industry
    weight: 15
    category: critical
    kind: text
    stage: basic_info
    question: "Which market are you really in?"
    follow_up_type: identity
`
	if err := os.WriteFile(path, []byte(updated), 0644); err != nil {
		t.Fatal(err)
	}

	deadline := time.After(3 * time.Second)
	for {
		if e, _ := w.Catalog().Lookup("industry"); e.Weight == 15 {
			return
		}
		select {
		case <-deadline:
			t.Fatal("catalog did not reload within deadline")
		case <-time.After(50 * time.Millisecond):
		}
	}
}

func TestWatcherKeepsPreviousOnBadOverride(t *testing.T) {
	dir := t.TempDir()
	path := writeOverride(t, dir, overrideYAML)

	w, err := NewWatcher(Default(), path)
	if err != nil {
		t.Fatalf("new watcher failed: %v", err)
	}
	if err := w.Start(context.Background()); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	defer w.Stop()

	if err := os.WriteFile(path, []byte("fields: [not valid"), 0644); err != nil {
		t.Fatal(err)
	}

	// Give the debounce a chance to fire, then confirm nothing regressed.
	time.Sleep(600 * time.Millisecond)
	if e, _ := w.Catalog().Lookup("industry"); e.Weight != 12 {
		t.Errorf("previous catalog not retained: %+v", e)
	}
}
