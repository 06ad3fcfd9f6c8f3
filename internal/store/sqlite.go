package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"visioncraft/internal/logging"
	"visioncraft/internal/vision"
)

// SQLiteStore implements RecordStore on a single SQLite file. A single
// connection plus WAL keeps writers serialized; the mutex guards the
// read-modify-write windows the driver cannot.
type SQLiteStore struct {
	db     *sql.DB
	mu     sync.RWMutex
	dbPath string
}

const schema = `
CREATE TABLE IF NOT EXISTS vision_records (
	id            TEXT PRIMARY KEY,
	title         TEXT NOT NULL DEFAULT '',
	state_json    TEXT NOT NULL DEFAULT '{}',
	skipped_json  TEXT NOT NULL DEFAULT '[]',
	completeness  REAL NOT NULL DEFAULT 0,
	version       INTEGER NOT NULL DEFAULT 1,
	created_at    TIMESTAMP NOT NULL,
	updated_at    TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS audit_log (
	id            TEXT PRIMARY KEY,
	record_id     TEXT NOT NULL,
	old_version   INTEGER NOT NULL,
	new_version   INTEGER NOT NULL,
	change_type   TEXT NOT NULL,
	metadata_json TEXT NOT NULL DEFAULT '{}',
	created_at    TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_audit_record ON audit_log(record_id, created_at);
`

// NewSQLiteStore opens (creating if needed) the SQLite database at path.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	timer := logging.StartTimer(logging.CategoryStore, "NewSQLiteStore")
	defer timer.Stop()

	logging.Store("Initializing SQLiteStore at path: %s", path)

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		logging.StoreDebug("Failed to set sqlite busy_timeout: %v", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		logging.StoreDebug("Failed to set sqlite journal_mode=WAL: %v", err)
	}
	if _, err := db.Exec("PRAGMA synchronous = NORMAL"); err != nil {
		logging.StoreDebug("Failed to set sqlite synchronous=NORMAL: %v", err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	logging.StoreDebug("Database schema initialized")

	return &SQLiteStore{db: db, dbPath: path}, nil
}

// Create inserts a new record at version 1.
func (s *SQLiteStore) Create(ctx context.Context, rec *vision.VisionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	stateJSON, err := json.Marshal(orEmptyState(rec.State))
	if err != nil {
		return fmt.Errorf("failed to marshal state: %w", err)
	}
	skippedJSON, err := json.Marshal(orEmptyList(rec.SkippedFields))
	if err != nil {
		return fmt.Errorf("failed to marshal skipped fields: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO vision_records (id, title, state_json, skipped_json, completeness, version, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, 1, ?, ?)`,
		rec.ID, rec.Title, string(stateJSON), string(skippedJSON), rec.CompletenessScore, now, now)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrAlreadyExists
		}
		return fmt.Errorf("failed to insert record: %w", err)
	}

	rec.Version = 1
	rec.CreatedAt = now
	rec.UpdatedAt = now
	logging.Store("Created record %s", rec.ID)
	return nil
}

// Get returns the record under id, or ErrNotFound.
func (s *SQLiteStore) Get(ctx context.Context, id string) (*vision.VisionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.getLocked(ctx, id)
}

func (s *SQLiteStore) getLocked(ctx context.Context, id string) (*vision.VisionRecord, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, title, state_json, skipped_json, completeness, version, created_at, updated_at
		FROM vision_records WHERE id = ?`, id)

	var rec vision.VisionRecord
	var stateJSON, skippedJSON string
	err := row.Scan(&rec.ID, &rec.Title, &stateJSON, &skippedJSON,
		&rec.CompletenessScore, &rec.Version, &rec.CreatedAt, &rec.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load record %s: %w", id, err)
	}

	if err := json.Unmarshal([]byte(stateJSON), &rec.State); err != nil {
		return nil, fmt.Errorf("corrupt state for record %s: %w", id, err)
	}
	if err := json.Unmarshal([]byte(skippedJSON), &rec.SkippedFields); err != nil {
		return nil, fmt.Errorf("corrupt skipped fields for record %s: %w", id, err)
	}
	return &rec, nil
}

// CompareAndSwap writes the new state keyed by (id, expectedVersion).
func (s *SQLiteStore) CompareAndSwap(ctx context.Context, id string, expectedVersion int64, state vision.BusinessState, completeness float64, skipped []string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stateJSON, err := json.Marshal(orEmptyState(state))
	if err != nil {
		return 0, fmt.Errorf("failed to marshal state: %w", err)
	}
	skippedJSON, err := json.Marshal(orEmptyList(skipped))
	if err != nil {
		return 0, fmt.Errorf("failed to marshal skipped fields: %w", err)
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE vision_records
		SET state_json = ?, skipped_json = ?, completeness = ?, version = version + 1, updated_at = ?
		WHERE id = ? AND version = ?`,
		string(stateJSON), string(skippedJSON), completeness, time.Now().UTC(), id, expectedVersion)
	if err != nil {
		return 0, fmt.Errorf("failed to update record %s: %w", id, err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to read update result: %w", err)
	}
	if affected == 0 {
		// Either the id is unknown or the version moved under us.
		if _, gerr := s.getLocked(ctx, id); gerr == ErrNotFound {
			return 0, ErrNotFound
		}
		logging.StoreDebug("CAS miss on record %s at version %d", id, expectedVersion)
		return 0, ErrVersionConflict
	}

	newVersion := expectedVersion + 1
	logging.StoreDebug("CAS ok on record %s: version %d -> %d", id, expectedVersion, newVersion)
	return newVersion, nil
}

// UpdateTitle renames the record without touching its version.
func (s *SQLiteStore) UpdateTitle(ctx context.Context, id, title string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx,
		`UPDATE vision_records SET title = ?, updated_at = ? WHERE id = ?`,
		title, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to update title for %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// AppendAudit appends one change-log entry.
func (s *SQLiteStore) AppendAudit(ctx context.Context, e *vision.AuditEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	createdAt := e.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO audit_log (id, record_id, old_version, new_version, change_type, metadata_json, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.RecordID, e.OldVersion, e.NewVersion, e.ChangeType, e.MetadataJSON(), createdAt)
	if err != nil {
		return fmt.Errorf("failed to append audit entry: %w", err)
	}
	return nil
}

// ListAudit returns the record's audit entries, newest first.
func (s *SQLiteStore) ListAudit(ctx context.Context, id string) ([]vision.AuditEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, record_id, old_version, new_version, change_type, metadata_json, created_at
		FROM audit_log WHERE record_id = ? ORDER BY created_at DESC, new_version DESC`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit log: %w", err)
	}
	defer rows.Close()

	var out []vision.AuditEntry
	for rows.Next() {
		var e vision.AuditEntry
		var metadataJSON string
		if err := rows.Scan(&e.ID, &e.RecordID, &e.OldVersion, &e.NewVersion,
			&e.ChangeType, &metadataJSON, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan audit entry: %w", err)
		}
		if metadataJSON != "" && metadataJSON != "{}" {
			if err := json.Unmarshal([]byte(metadataJSON), &e.Metadata); err != nil {
				logging.StoreDebug("Skipping corrupt audit metadata on %s: %v", e.ID, err)
			}
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Close()
}

func orEmptyState(s vision.BusinessState) vision.BusinessState {
	if s == nil {
		return vision.BusinessState{}
	}
	return s
}

func orEmptyList(l []string) []string {
	if l == nil {
		return []string{}
	}
	return l
}

// isUniqueViolation matches the driver's primary-key error without importing
// its error codes at every call site.
func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
