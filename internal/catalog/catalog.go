// Package catalog defines the weighted field catalog that drives
// completeness scoring and question generation. The catalog is static
// reference data: adding a field or changing a weight is a data change
// (YAML override), not a code change.
package catalog

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// FieldCategory classifies how much a field matters to the vision document.
type FieldCategory string

const (
	CategoryCritical    FieldCategory = "critical"
	CategoryImportant   FieldCategory = "important"
	CategoryEnhancement FieldCategory = "enhancement"
	CategoryMetric      FieldCategory = "metric"
)

// FieldKind describes the value shape expected for a field.
type FieldKind string

const (
	KindText   FieldKind = "text"
	KindList   FieldKind = "list"
	KindNumber FieldKind = "number"
)

// Stage is one phase of the staged vision-building conversation.
type Stage string

const (
	StageBasicInfo      Stage = "basic_info"
	StageStrategy       Stage = "strategy"
	StageMetrics        Stage = "metrics"
	StageImplementation Stage = "implementation"
)

// Stages lists the conversation stages in gate order. The gap scorer
// advances through them front to back and never regresses.
var Stages = []Stage{StageBasicInfo, StageStrategy, StageMetrics, StageImplementation}

// StageThresholds are the aggregate quality a stage must reach before the
// suggested focus advances past it.
var StageThresholds = map[Stage]float64{
	StageBasicInfo:      0.70,
	StageStrategy:       0.60,
	StageMetrics:        0.50,
	StageImplementation: 0.50,
}

// WeakThresholds are the per-category quality floors below which a field
// counts as a gap and becomes a question target.
var WeakThresholds = map[FieldCategory]float64{
	CategoryCritical:    0.60,
	CategoryImportant:   0.50,
	CategoryEnhancement: 0.30,
	CategoryMetric:      0.50,
}

// Entry is one catalog row: a field name with its scoring weight, category,
// stage assignment, and follow-up question template.
type Entry struct {
	FieldName    string        `yaml:"field"`
	Weight       float64       `yaml:"weight"`
	Category     FieldCategory `yaml:"category"`
	Kind         FieldKind     `yaml:"kind"`
	Stage        Stage         `yaml:"stage"`
	Question     string        `yaml:"question"`
	FollowUpType string        `yaml:"follow_up_type"`
}

// Catalog is an ordered, indexed set of entries. Declaration order is
// significant: it breaks priority ties during question ranking.
type Catalog struct {
	entries     []Entry
	index       map[string]int
	totalWeight float64
}

// New builds a catalog from entries, preserving order. Duplicate field
// names are rejected so override files cannot silently shadow rows.
func New(entries []Entry) (*Catalog, error) {
	c := &Catalog{
		entries: make([]Entry, 0, len(entries)),
		index:   make(map[string]int, len(entries)),
	}
	for _, e := range entries {
		if e.FieldName == "" {
			return nil, fmt.Errorf("catalog entry with empty field name")
		}
		if _, dup := c.index[e.FieldName]; dup {
			return nil, fmt.Errorf("duplicate catalog entry: %s", e.FieldName)
		}
		if e.Weight <= 0 {
			return nil, fmt.Errorf("catalog entry %s: weight must be positive", e.FieldName)
		}
		c.index[e.FieldName] = len(c.entries)
		c.entries = append(c.entries, e)
		c.totalWeight += e.Weight
	}
	if c.totalWeight == 0 {
		return nil, fmt.Errorf("catalog has no entries")
	}
	return c, nil
}

// Entries returns the catalog rows in declaration order.
func (c *Catalog) Entries() []Entry {
	return c.entries
}

// Lookup returns the entry for a field name.
func (c *Catalog) Lookup(field string) (Entry, bool) {
	i, ok := c.index[field]
	if !ok {
		return Entry{}, false
	}
	return c.entries[i], true
}

// Order returns the declaration position of a field, or len(entries) for
// unknown fields so they sort last.
func (c *Catalog) Order(field string) int {
	if i, ok := c.index[field]; ok {
		return i
	}
	return len(c.entries)
}

// TotalWeight returns the sum of all entry weights.
func (c *Catalog) TotalWeight() float64 {
	return c.totalWeight
}

// StageFields returns the fields assigned to a stage, in declaration order.
func (c *Catalog) StageFields(stage Stage) []Entry {
	var out []Entry
	for _, e := range c.entries {
		if e.Stage == stage {
			out = append(out, e)
		}
	}
	return out
}

// overrideFile is the YAML shape of a catalog override.
type overrideFile struct {
	Fields []Entry `yaml:"fields"`
}

// LoadOverride reads a YAML override file and merges it over the base
// catalog: matching field names replace the base row in place, new fields
// append after the base rows in file order.
func LoadOverride(base *Catalog, path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog override: %w", err)
	}

	var of overrideFile
	if err := yaml.Unmarshal(data, &of); err != nil {
		return nil, fmt.Errorf("failed to parse catalog override: %w", err)
	}

	merged := make([]Entry, len(base.entries))
	copy(merged, base.entries)
	for _, e := range of.Fields {
		if i, ok := base.index[e.FieldName]; ok {
			merged[i] = e
		} else {
			merged = append(merged, e)
		}
	}
	return New(merged)
}
