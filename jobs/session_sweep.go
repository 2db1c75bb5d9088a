package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strconv"

	"github.com/hibiken/asynq"

	"github.com/callgrade/callgrade/internal/observability"
)

// SuspendedLister reports which accounts are currently suspended.
type SuspendedLister interface {
	SuspendedUserIDs(ctx context.Context) ([]int64, error)
}

// SessionRevoker deletes every live session of a user.
type SessionRevoker interface {
	RevokeUser(ctx context.Context, userID string) (int, error)
}

// SessionSweepJob is the asynchronous cleanup layer of suspension handling.
// The targeted sweep backs up the inline revocation done when an admin
// suspends an account; the periodic full sweep catches anything the targeted
// path missed, for example when Redis was briefly unreachable.
type SessionSweepJob struct {
	Users    SuspendedLister
	Sessions SessionRevoker
	Logger   *slog.Logger
	Metrics  *observability.Metrics
}

// NewSessionSweepJob initialises the sweep handler.
func NewSessionSweepJob(users SuspendedLister, sessions SessionRevoker, logger *slog.Logger, metrics *observability.Metrics) *SessionSweepJob {
	return &SessionSweepJob{Users: users, Sessions: sessions, Logger: logger, Metrics: metrics}
}

// HandleTargeted revokes the sessions of the single user in the payload.
func (j *SessionSweepJob) HandleTargeted(ctx context.Context, t *asynq.Task) error {
	if j == nil {
		return errors.New("session sweep: handler not configured")
	}
	var payload SessionSweepPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	return j.revoke(ctx, payload.UserID)
}

// HandleFull revokes the sessions of every suspended user.
func (j *SessionSweepJob) HandleFull(ctx context.Context, t *asynq.Task) error {
	if j == nil {
		return errors.New("session sweep: handler not configured")
	}
	ids, err := j.Users.SuspendedUserIDs(ctx)
	if err != nil {
		return err
	}
	var firstErr error
	for _, id := range ids {
		if err := j.revoke(ctx, id); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if j.Logger != nil {
		j.Logger.Info("suspension sweep finished", slog.Int("users", len(ids)))
	}
	return firstErr
}

func (j *SessionSweepJob) revoke(ctx context.Context, userID int64) error {
	removed, err := j.Sessions.RevokeUser(ctx, strconv.FormatInt(userID, 10))
	if err != nil {
		if j.Logger != nil {
			j.Logger.Warn("session sweep revoke", slog.Int64("user_id", userID), slog.Any("error", err))
		}
		return err
	}
	if removed > 0 {
		if j.Metrics != nil {
			j.Metrics.SuspensionLogout("sweep")
		}
		if j.Logger != nil {
			j.Logger.Info("revoked sessions", slog.Int64("user_id", userID), slog.Int("sessions", removed))
		}
	}
	return nil
}
