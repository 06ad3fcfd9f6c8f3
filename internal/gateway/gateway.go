// Package gateway is the sole writer of vision records. Every mutation goes
// through an optimistic compare-and-swap commit; version conflicts come back
// as structured data for the caller to resolve, and the post-commit side
// effects (title rename, audit append) are best-effort by contract.
package gateway

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"visioncraft/internal/gaps"
	"visioncraft/internal/logging"
	"visioncraft/internal/merge"
	"visioncraft/internal/store"
	"visioncraft/internal/vision"
)

// transportKeys are record metadata that clients sometimes echo back inside
// the state payload. They are stripped before merge and commit so they can
// never shadow the store's own columns.
var transportKeys = []string{
	"id", "version", "completeness_score", "title", "created_at", "updated_at",
}

// CommitResult is the outcome of one commit attempt. Exactly one of the two
// shapes holds: a successful write (NewVersion, CompletenessScore) or a
// Conflict payload. Conflicts are data, not errors.
type CommitResult struct {
	NewVersion        int64
	CompletenessScore float64
	Conflict          *vision.Conflict
}

// Ok reports whether the commit was applied.
func (r CommitResult) Ok() bool { return r.Conflict == nil }

// Gateway owns record mutation. It holds no record state of its own; the
// store is the single source of truth and the scorer recomputes completeness
// on every commit so the stored score can never drift from the stored state.
type Gateway struct {
	store  store.RecordStore
	scorer *gaps.Scorer
}

// New creates a gateway over the given store and scorer.
func New(st store.RecordStore, scorer *gaps.Scorer) *Gateway {
	return &Gateway{store: st, scorer: scorer}
}

// Create bootstraps a new record at version 1 with an empty state.
func (g *Gateway) Create(ctx context.Context, id, title string) (*vision.VisionRecord, error) {
	if id == "" {
		id = uuid.NewString()
	}

	rec := &vision.VisionRecord{
		ID:    id,
		Title: title,
		State: vision.BusinessState{},
	}
	if err := g.store.Create(ctx, rec); err != nil {
		return nil, fmt.Errorf("failed to create record %s: %w", id, err)
	}

	g.appendAudit(ctx, &vision.AuditEntry{
		RecordID:   id,
		OldVersion: 0,
		NewVersion: 1,
		ChangeType: "create",
	})

	logging.Gateway("Created record %s", id)
	return rec, nil
}

// Get returns the current record snapshot.
func (g *Gateway) Get(ctx context.Context, id string) (*vision.VisionRecord, error) {
	return g.store.Get(ctx, id)
}

// Audit returns the record's change log, newest first.
func (g *Gateway) Audit(ctx context.Context, id string) ([]vision.AuditEntry, error) {
	return g.store.ListAudit(ctx, id)
}

// Commit writes newState to the record via compare-and-swap. A nil
// expectedVersion means "against whatever is current"; a stale supplied
// version returns a conflict payload with nothing written. There is no
// implicit retry: a CAS lost to a concurrent writer also comes back as a
// conflict, and the caller decides what to do next.
func (g *Gateway) Commit(ctx context.Context, id string, newState vision.BusinessState, expectedVersion *int64) (CommitResult, error) {
	timer := logging.StartTimer(logging.CategoryGateway, "Commit")
	defer timer.Stop()

	rec, err := g.store.Get(ctx, id)
	if err != nil {
		return CommitResult{}, fmt.Errorf("commit load failed for %s: %w", id, err)
	}

	if expectedVersion != nil && *expectedVersion != rec.Version {
		logging.Gateway("Version conflict on %s: expected %d, current %d", id, *expectedVersion, rec.Version)
		return conflictResult(rec, *expectedVersion), nil
	}
	baseVersion := rec.Version

	cleaned := stripTransportKeys(newState)

	// Completeness is derived here, never accepted from the caller.
	assessment := g.scorer.Score(&vision.VisionRecord{
		ID:            rec.ID,
		State:         cleaned,
		SkippedFields: rec.SkippedFields,
	})

	newVersion, err := g.store.CompareAndSwap(ctx, id, baseVersion, cleaned, assessment.CompletenessScore, rec.SkippedFields)
	if err == store.ErrVersionConflict {
		current, gerr := g.store.Get(ctx, id)
		if gerr != nil {
			return CommitResult{}, fmt.Errorf("commit conflict reload failed for %s: %w", id, gerr)
		}
		logging.Gateway("CAS lost on %s: expected %d, current %d", id, baseVersion, current.Version)
		return conflictResult(current, baseVersion), nil
	}
	if err != nil {
		return CommitResult{}, fmt.Errorf("commit write failed for %s: %w", id, err)
	}

	g.afterCommit(ctx, rec, cleaned, baseVersion, newVersion, assessment.CompletenessScore)

	return CommitResult{
		NewVersion:        newVersion,
		CompletenessScore: assessment.CompletenessScore,
	}, nil
}

// Resolve applies a resolution strategy against the current server state and
// re-commits with the just-read version. The caller still gets a conflict
// back if yet another writer slipped in between the read and the write.
func (g *Gateway) Resolve(ctx context.Context, id string, clientState vision.BusinessState, strategy vision.ResolutionStrategy) (CommitResult, error) {
	if !strategy.Valid() {
		return CommitResult{}, fmt.Errorf("unknown resolution strategy %q", strategy)
	}

	rec, err := g.store.Get(ctx, id)
	if err != nil {
		return CommitResult{}, fmt.Errorf("resolve load failed for %s: %w", id, err)
	}

	var resolved vision.BusinessState
	switch strategy {
	case vision.ClientWins:
		resolved = stripTransportKeys(clientState)
	case vision.ServerWins:
		resolved = rec.State.Clone()
	case vision.MergeResolve:
		resolved = mergeStates(rec.State, stripTransportKeys(clientState))
	}

	logging.Gateway("Resolving %s with strategy %s at version %d", id, strategy, rec.Version)

	version := rec.Version
	result, err := g.Commit(ctx, id, resolved, &version)
	if err != nil {
		return CommitResult{}, err
	}
	if result.Ok() {
		g.appendAudit(ctx, &vision.AuditEntry{
			RecordID:   id,
			OldVersion: version,
			NewVersion: result.NewVersion,
			ChangeType: "conflict_resolution",
			Metadata:   map[string]interface{}{"strategy": string(strategy)},
		})
	}
	return result, nil
}

// =============================================================================
// Post-commit side effects
// =============================================================================

// afterCommit runs the best-effort side effects. Failures are logged and
// swallowed; the committed write stands regardless.
func (g *Gateway) afterCommit(ctx context.Context, old *vision.VisionRecord, newState vision.BusinessState, oldVersion, newVersion int64, completeness float64) {
	if name := companyName(newState); name != "" && name != companyName(old.State) {
		if err := g.store.UpdateTitle(ctx, old.ID, name); err != nil {
			logging.GatewayWarn("Title rename failed for %s: %v", old.ID, err)
		} else {
			logging.GatewayDebug("Renamed record %s to %q", old.ID, name)
		}
	}

	g.appendAudit(ctx, &vision.AuditEntry{
		RecordID:   old.ID,
		OldVersion: oldVersion,
		NewVersion: newVersion,
		ChangeType: "state_update",
		Metadata: map[string]interface{}{
			"completeness": completeness,
			"field_count":  len(newState),
		},
	})
}

// appendAudit is fire-and-forget: a failed append never affects the commit
// it describes.
func (g *Gateway) appendAudit(ctx context.Context, e *vision.AuditEntry) {
	e.ID = uuid.NewString()
	if err := g.store.AppendAudit(ctx, e); err != nil {
		logging.GatewayWarn("Audit append failed for %s: %v", e.RecordID, err)
	}
}

// =============================================================================
// State helpers
// =============================================================================

func conflictResult(current *vision.VisionRecord, expected int64) CommitResult {
	return CommitResult{Conflict: &vision.Conflict{
		CurrentVersion:  current.Version,
		ExpectedVersion: expected,
		CurrentState:    current.State.Clone(),
	}}
}

// stripTransportKeys returns a copy of the state without record metadata.
func stripTransportKeys(state vision.BusinessState) vision.BusinessState {
	out := state.Clone()
	for _, k := range transportKeys {
		delete(out, k)
	}
	return out
}

// mergeStates is the field-wise non-destructive merge used by the "merge"
// resolution strategy: a present server scalar always wins, client values
// fill the holes, and list fields union so neither side's entries are lost.
func mergeStates(server, client vision.BusinessState) vision.BusinessState {
	out := server.Clone()
	fillMap(out, client)
	return out
}

func fillMap(out map[string]interface{}, client map[string]interface{}) {
	for k, v := range client {
		if k == vision.CustomFieldsKey {
			clientSub, ok := v.(map[string]interface{})
			if !ok {
				continue
			}
			sub, _ := out[vision.CustomFieldsKey].(map[string]interface{})
			if sub == nil {
				sub = make(map[string]interface{}, len(clientSub))
			}
			fillMap(sub, clientSub)
			out[vision.CustomFieldsKey] = sub
			continue
		}

		cur, exists := out[k]
		if !exists || merge.IsEmpty(cur) {
			out[k] = v
			continue
		}
		if curList, ok := merge.AsList(cur); ok {
			if incoming, ok := merge.AsList(v); ok {
				out[k] = merge.UnionLists(curList, incoming)
			}
		}
		// Present server scalar: client value discarded.
	}
}

func companyName(state vision.BusinessState) string {
	name, _ := state["company_name"].(string)
	return name
}
