package users

import (
	"context"
	"fmt"
	"strconv"

	"log/slog"

	"github.com/callgrade/callgrade/internal/shared"
)

// RepositoryPort defines data access methods for users.
type RepositoryPort interface {
	ListUsers(ctx context.Context, limit, offset int) ([]User, int, error)
	GetUser(ctx context.Context, id int64) (User, error)
	SetSuspended(ctx context.Context, id int64, suspended bool) error
	AssignRole(ctx context.Context, id int64, roleID *int64) error
}

// StatusNotifier publishes suspension state changes to the push transport.
type StatusNotifier interface {
	Publish(ctx context.Context, userID int64, suspended bool) error
}

// SessionRevoker deletes every live session of a user.
type SessionRevoker interface {
	RevokeUser(ctx context.Context, userID string) (int, error)
}

// SweepEnqueuer schedules the background session sweep for a user.
type SweepEnqueuer interface {
	EnqueueSessionSweep(ctx context.Context, userID int64) error
}

// Service handles user administration. Suspension is the admin-initiated
// path: unlike the per-request guard, failures here are hard errors that
// propagate to the caller.
type Service struct {
	repo     RepositoryPort
	audit    *shared.AuditLogger
	notifier StatusNotifier
	sessions SessionRevoker
	sweeps   SweepEnqueuer
	logger   *slog.Logger
}

// NewService builds Service instance.
func NewService(repo RepositoryPort, audit *shared.AuditLogger, notifier StatusNotifier, sessions SessionRevoker, sweeps SweepEnqueuer, logger *slog.Logger) *Service {
	return &Service{repo: repo, audit: audit, notifier: notifier, sessions: sessions, sweeps: sweeps, logger: logger}
}

// ListUsers returns one page of users and the total count.
func (s *Service) ListUsers(ctx context.Context, page shared.Pagination) ([]User, int, error) {
	return s.repo.ListUsers(ctx, page.PerPage, page.Offset())
}

// GetUser fetches a user by ID.
func (s *Service) GetUser(ctx context.Context, id int64) (User, error) {
	return s.repo.GetUser(ctx, id)
}

// Suspend flips the flag and fires every enforcement channel: live sessions
// are revoked server side, the push transport is notified, and a sweep task
// re-checks shortly after in case a session was committed concurrently.
func (s *Service) Suspend(ctx context.Context, actorID, userID int64) error {
	if err := s.repo.SetSuspended(ctx, userID, true); err != nil {
		return fmt.Errorf("users: suspend %d: %w", userID, err)
	}
	if _, err := s.sessions.RevokeUser(ctx, strconv.FormatInt(userID, 10)); err != nil {
		// Sessions will still die via the per-request guard and the sweep;
		// the state change itself has already committed.
		s.warn("revoke sessions", userID, err)
	}
	if err := s.notifier.Publish(ctx, userID, true); err != nil {
		s.warn("publish suspension", userID, err)
	}
	if s.sweeps != nil {
		if err := s.sweeps.EnqueueSessionSweep(ctx, userID); err != nil {
			s.warn("enqueue session sweep", userID, err)
		}
	}
	s.record(ctx, actorID, "user.suspend", userID)
	return nil
}

// Unsuspend clears the flag and announces the change.
func (s *Service) Unsuspend(ctx context.Context, actorID, userID int64) error {
	if err := s.repo.SetSuspended(ctx, userID, false); err != nil {
		return fmt.Errorf("users: unsuspend %d: %w", userID, err)
	}
	if err := s.notifier.Publish(ctx, userID, false); err != nil {
		s.warn("publish unsuspension", userID, err)
	}
	s.record(ctx, actorID, "user.unsuspend", userID)
	return nil
}

// AssignRole changes the user's role reference. A nil roleID clears it; the
// user then resolves to direct grants only.
func (s *Service) AssignRole(ctx context.Context, actorID, userID int64, roleID *int64) error {
	if err := s.repo.AssignRole(ctx, userID, roleID); err != nil {
		return fmt.Errorf("users: assign role for %d: %w", userID, err)
	}
	s.record(ctx, actorID, "user.role.assign", userID)
	return nil
}

func (s *Service) record(ctx context.Context, actorID int64, action string, userID int64) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   "user",
		EntityID: strconv.FormatInt(userID, 10),
	}); err != nil {
		s.warn("audit record", userID, err)
	}
}

func (s *Service) warn(msg string, userID int64, err error) {
	if s.logger == nil {
		return
	}
	s.logger.Warn(msg, slog.Int64("user_id", userID), slog.Any("error", err))
}
