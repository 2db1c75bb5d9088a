// Package sessionmon enforces account suspension against live sessions.
//
// Three observers watch the same users.suspended flag, each bounding a
// different exposure window: the per-request Guard (at most one request),
// the Redis pub/sub push consumed by the browser over SSE (push latency),
// and the mount-time recheck endpoint (page load). They are deliberately
// independent; none relies on another having fired.
package sessionmon

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/callgrade/callgrade/internal/shared"
)

// StatusStore reads the current suspension flag of a user.
type StatusStore interface {
	Suspended(ctx context.Context, userID int64) (bool, error)
}

// PGStatusStore implements StatusStore against PostgreSQL.
type PGStatusStore struct {
	pool *pgxpool.Pool
}

// NewStatusStore constructs a PGStatusStore.
func NewStatusStore(pool *pgxpool.Pool) *PGStatusStore {
	return &PGStatusStore{pool: pool}
}

// Suspended re-reads the flag from the users row. A missing user reports
// shared.ErrNotFound so callers can distinguish it from a store outage.
func (s *PGStatusStore) Suspended(ctx context.Context, userID int64) (bool, error) {
	var suspended bool
	if err := s.pool.QueryRow(ctx, `SELECT suspended FROM users WHERE id = $1`, userID).Scan(&suspended); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, shared.ErrNotFound
		}
		return false, err
	}
	return suspended, nil
}

var _ StatusStore = (*PGStatusStore)(nil)
