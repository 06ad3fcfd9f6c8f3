package store

import (
	"context"
	"sync"
	"time"

	"visioncraft/internal/vision"
)

// MemoryStore implements RecordStore in process memory. Used by tests and by
// the --memory CLI flag for throwaway sessions. Same CAS semantics as the
// SQLite store.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]*vision.VisionRecord
	audit   map[string][]vision.AuditEntry
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records: make(map[string]*vision.VisionRecord),
		audit:   make(map[string][]vision.AuditEntry),
	}
}

// Create inserts a new record at version 1.
func (s *MemoryStore) Create(_ context.Context, rec *vision.VisionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.records[rec.ID]; exists {
		return ErrAlreadyExists
	}

	now := time.Now().UTC()
	stored := &vision.VisionRecord{
		ID:                rec.ID,
		Title:             rec.Title,
		Version:           1,
		State:             rec.State.Clone(),
		CompletenessScore: rec.CompletenessScore,
		SkippedFields:     append([]string(nil), rec.SkippedFields...),
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	s.records[rec.ID] = stored

	rec.Version = 1
	rec.CreatedAt = now
	rec.UpdatedAt = now
	return nil
}

// Get returns a deep copy of the record, or ErrNotFound.
func (s *MemoryStore) Get(_ context.Context, id string) (*vision.VisionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.records[id]
	if !ok {
		return nil, ErrNotFound
	}
	return copyRecord(rec), nil
}

// CompareAndSwap writes the new state keyed by (id, expectedVersion).
func (s *MemoryStore) CompareAndSwap(_ context.Context, id string, expectedVersion int64, state vision.BusinessState, completeness float64, skipped []string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[id]
	if !ok {
		return 0, ErrNotFound
	}
	if rec.Version != expectedVersion {
		return 0, ErrVersionConflict
	}

	rec.State = state.Clone()
	rec.CompletenessScore = completeness
	rec.SkippedFields = append([]string(nil), skipped...)
	rec.Version++
	rec.UpdatedAt = time.Now().UTC()
	return rec.Version, nil
}

// UpdateTitle renames the record without touching its version.
func (s *MemoryStore) UpdateTitle(_ context.Context, id, title string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[id]
	if !ok {
		return ErrNotFound
	}
	rec.Title = title
	rec.UpdatedAt = time.Now().UTC()
	return nil
}

// AppendAudit appends one change-log entry.
func (s *MemoryStore) AppendAudit(_ context.Context, e *vision.AuditEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry := *e
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	s.audit[e.RecordID] = append(s.audit[e.RecordID], entry)
	return nil
}

// ListAudit returns the record's audit entries, newest first.
func (s *MemoryStore) ListAudit(_ context.Context, id string) ([]vision.AuditEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries := s.audit[id]
	out := make([]vision.AuditEntry, len(entries))
	for i, e := range entries {
		out[len(entries)-1-i] = e
	}
	return out, nil
}

// Close is a no-op for the memory store.
func (s *MemoryStore) Close() error { return nil }

func copyRecord(rec *vision.VisionRecord) *vision.VisionRecord {
	return &vision.VisionRecord{
		ID:                rec.ID,
		Title:             rec.Title,
		Version:           rec.Version,
		State:             rec.State.Clone(),
		CompletenessScore: rec.CompletenessScore,
		SkippedFields:     append([]string(nil), rec.SkippedFields...),
		CreatedAt:         rec.CreatedAt,
		UpdatedAt:         rec.UpdatedAt,
	}
}
