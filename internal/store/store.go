// Package store persists vision records and their audit trail. Two
// implementations share one interface: a SQLite store for real runs and a
// memory store for tests and ephemeral sessions. Version arithmetic lives
// here; policy (what a conflict means, what to do about it) lives in the
// gateway.
package store

import (
	"context"
	"errors"

	"visioncraft/internal/vision"
)

// ErrNotFound is returned when no record exists under the requested id.
var ErrNotFound = errors.New("record not found")

// ErrVersionConflict is returned by CompareAndSwap when the expected version
// no longer matches the stored one. The gateway re-reads and converts this
// into a structured conflict payload.
var ErrVersionConflict = errors.New("version conflict")

// ErrAlreadyExists is returned by Create when the id is taken.
var ErrAlreadyExists = errors.New("record already exists")

// RecordStore is the persistence contract the gateway depends on.
type RecordStore interface {
	// Create inserts a new record at version 1. The record's CreatedAt and
	// UpdatedAt are set by the store.
	Create(ctx context.Context, rec *vision.VisionRecord) error

	// Get returns a deep copy of the record, or ErrNotFound.
	Get(ctx context.Context, id string) (*vision.VisionRecord, error)

	// CompareAndSwap writes the record's state, completeness, and skipped
	// fields keyed by (id, expectedVersion). On success the stored version
	// becomes expectedVersion+1 and is returned. A stale expectedVersion
	// returns ErrVersionConflict with nothing written.
	CompareAndSwap(ctx context.Context, id string, expectedVersion int64, state vision.BusinessState, completeness float64, skipped []string) (int64, error)

	// UpdateTitle renames the record without touching its version.
	UpdateTitle(ctx context.Context, id, title string) error

	// AppendAudit appends one change-log entry.
	AppendAudit(ctx context.Context, e *vision.AuditEntry) error

	// ListAudit returns the record's audit entries, newest first.
	ListAudit(ctx context.Context, id string) ([]vision.AuditEntry, error)

	// Close releases the underlying resources.
	Close() error
}
