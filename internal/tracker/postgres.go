package tracker

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"hookrelay/internal/constants"
	pkgerrors "hookrelay/pkg/errors"
	"hookrelay/pkg/metrics"
)

const postgresBackend = "postgres"

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Get(ctx context.Context, key Key) (*Record, error) {
	start := time.Now()
	defer func() {
		metrics.ObserveTrackerOperationDuration(postgresBackend, "get", time.Since(start))
	}()

	query := `
		SELECT id, resource_id, event_type, updated
		FROM ` + constants.TrackerTable + `
		WHERE resource_id = $1 AND event_type = $2
	`

	var rec Record
	err := s.db.QueryRowContext(ctx, query, key.ResourceID, key.EventType).
		Scan(&rec.ID, &rec.ResourceID, &rec.EventType, &rec.Updated)
	if errors.Is(err, sql.ErrNoRows) {
		metrics.IncTrackerOperation(postgresBackend, "get", "miss")
		return nil, nil
	}
	if err != nil {
		metrics.IncTrackerOperation(postgresBackend, "get", "error")
		return nil, fmt.Errorf("failed to get tracker: %w", err)
	}

	metrics.IncTrackerOperation(postgresBackend, "get", "hit")
	return &rec, nil
}

// Advance inserts the row or moves it forward in a single statement. The
// conditional DO UPDATE leaves the row untouched, and reports zero rows,
// when the stored timestamp is not older than created.
func (s *PostgresStore) Advance(ctx context.Context, key Key, created int64) (bool, error) {
	start := time.Now()
	defer func() {
		metrics.ObserveTrackerOperationDuration(postgresBackend, "advance", time.Since(start))
	}()

	query := `
		INSERT INTO ` + constants.TrackerTable + ` (id, resource_id, event_type, updated)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (resource_id, event_type) DO UPDATE
		SET updated = EXCLUDED.updated
		WHERE ` + constants.TrackerTable + `.updated < EXCLUDED.updated
	`

	result, err := s.db.ExecContext(ctx, query, uuid.NewString(), key.ResourceID, key.EventType, created)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			metrics.IncTrackerOperation(postgresBackend, "advance", "conflict")
			return false, pkgerrors.ErrCommitRace.WithCause(err)
		}
		metrics.IncTrackerOperation(postgresBackend, "advance", "error")
		return false, fmt.Errorf("failed to advance tracker: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		metrics.IncTrackerOperation(postgresBackend, "advance", "error")
		return false, fmt.Errorf("failed to read affected rows: %w", err)
	}

	if rows == 0 {
		metrics.IncTrackerOperation(postgresBackend, "advance", "stale")
		return false, nil
	}

	metrics.IncTrackerOperation(postgresBackend, "advance", "ok")
	return true, nil
}
