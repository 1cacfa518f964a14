// Package tracker persists, per (resource id, event type), the creation
// timestamp of the newest event whose handler completed, and gates handler
// execution against it.
package tracker

import (
	"context"
	"fmt"

	"hookrelay/internal/logger"
	"hookrelay/pkg/errors"
)

// Key identifies one logical tracker row. Event id and idempotency key are
// deliberately not part of it.
type Key struct {
	ResourceID string
	EventType  string
}

func (k Key) String() string {
	return k.EventType + ":" + k.ResourceID
}

type Record struct {
	ID         string
	ResourceID string
	EventType  string
	Updated    int64
}

// Store is the persistence contract for tracker records.
//
// Get returns (nil, nil) when no record exists. Advance atomically creates
// the record or moves its timestamp forward to created. It reports false,
// without error, when the stored timestamp is already >= created.
type Store interface {
	Get(ctx context.Context, key Key) (*Record, error)
	Advance(ctx context.Context, key Key, created int64) (bool, error)
}

type Tracker struct {
	store  Store
	logger logger.Logger
}

func New(store Store, log logger.Logger) *Tracker {
	return &Tracker{store: store, logger: log}
}

func (t *Tracker) Store() Store {
	return t.store
}

// Check reports whether an event created at created is newer than what the
// tracker has already accepted for key.
func (t *Tracker) Check(ctx context.Context, key Key, created int64) (bool, error) {
	rec, err := t.store.Get(ctx, key)
	if err != nil {
		return false, errors.ErrServiceUnavailable.WithCause(fmt.Errorf("tracker lookup %s: %w", key, err))
	}
	if rec == nil {
		return true, nil
	}
	if rec.Updated >= created {
		t.logger.DebugwCtx(ctx, "Tracker already at or past event",
			"stored_updated", rec.Updated,
			"created", created,
		)
		return false, nil
	}
	return true, nil
}

// Commit records created as the accepted timestamp for key. A concurrent
// writer that committed an equal or newer timestamp first yields ErrCommitRace.
func (t *Tracker) Commit(ctx context.Context, key Key, created int64) error {
	advanced, err := t.store.Advance(ctx, key, created)
	if err != nil {
		if errors.IsCommitRace(err) {
			return err
		}
		return errors.ErrServiceUnavailable.WithCause(fmt.Errorf("tracker commit %s: %w", key, err))
	}
	if !advanced {
		return errors.ErrCommitRace.
			WithDetail("resource_id", key.ResourceID).
			WithDetail("event_type", key.EventType).
			WithDetail("created", created)
	}
	return nil
}
