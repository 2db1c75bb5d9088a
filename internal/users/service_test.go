package users_test

import (
	"context"
	"errors"
	"testing"

	"github.com/callgrade/callgrade/internal/shared"
	"github.com/callgrade/callgrade/internal/users"
	_ "github.com/callgrade/callgrade/testing"
)

type stubRepo struct {
	suspended map[int64]bool
	roles     map[int64]*int64
	failFlag  error
}

func newStubRepo() *stubRepo {
	return &stubRepo{suspended: make(map[int64]bool), roles: make(map[int64]*int64)}
}

func (s *stubRepo) ListUsers(ctx context.Context, limit, offset int) ([]users.User, int, error) {
	return nil, 0, nil
}

func (s *stubRepo) GetUser(ctx context.Context, id int64) (users.User, error) {
	return users.User{}, shared.ErrNotFound
}

func (s *stubRepo) SetSuspended(ctx context.Context, id int64, suspended bool) error {
	if s.failFlag != nil {
		return s.failFlag
	}
	s.suspended[id] = suspended
	return nil
}

func (s *stubRepo) AssignRole(ctx context.Context, id int64, roleID *int64) error {
	s.roles[id] = roleID
	return nil
}

type stubNotifier struct {
	published map[int64]bool
	err       error
}

func (s *stubNotifier) Publish(ctx context.Context, userID int64, suspended bool) error {
	if s.err != nil {
		return s.err
	}
	if s.published == nil {
		s.published = make(map[int64]bool)
	}
	s.published[userID] = suspended
	return nil
}

type stubRevoker struct {
	revoked []string
	err     error
}

func (s *stubRevoker) RevokeUser(ctx context.Context, userID string) (int, error) {
	if s.err != nil {
		return 0, s.err
	}
	s.revoked = append(s.revoked, userID)
	return 2, nil
}

type stubSweeper struct {
	enqueued []int64
}

func (s *stubSweeper) EnqueueSessionSweep(ctx context.Context, userID int64) error {
	s.enqueued = append(s.enqueued, userID)
	return nil
}

func TestSuspendFiresEveryChannel(t *testing.T) {
	repo := newStubRepo()
	notifier := &stubNotifier{}
	revoker := &stubRevoker{}
	sweeper := &stubSweeper{}
	svc := users.NewService(repo, nil, notifier, revoker, sweeper, nil)

	if err := svc.Suspend(context.Background(), 1, 7); err != nil {
		t.Fatalf("suspend: %v", err)
	}
	if !repo.suspended[7] {
		t.Fatalf("flag must be set")
	}
	if len(revoker.revoked) != 1 || revoker.revoked[0] != "7" {
		t.Fatalf("expected session revocation for user 7, got %v", revoker.revoked)
	}
	if suspended, ok := notifier.published[7]; !ok || !suspended {
		t.Fatalf("expected suspension publish for user 7")
	}
	if len(sweeper.enqueued) != 1 || sweeper.enqueued[0] != 7 {
		t.Fatalf("expected sweep task for user 7, got %v", sweeper.enqueued)
	}
}

func TestSuspendStoreFailureIsHardError(t *testing.T) {
	repo := newStubRepo()
	repo.failFlag = errors.New("connection refused")
	notifier := &stubNotifier{}
	revoker := &stubRevoker{}
	svc := users.NewService(repo, nil, notifier, revoker, &stubSweeper{}, nil)

	if err := svc.Suspend(context.Background(), 1, 7); err == nil {
		t.Fatalf("expected error when the flag cannot be written")
	}
	if len(revoker.revoked) != 0 {
		t.Fatalf("no sessions may be revoked when the flag write failed")
	}
	if len(notifier.published) != 0 {
		t.Fatalf("nothing may be published when the flag write failed")
	}
}

func TestSuspendToleratesSideChannelFailures(t *testing.T) {
	// Revocation and publish failures only degrade latency. The guard and
	// the sweep still enforce the committed flag.
	repo := newStubRepo()
	notifier := &stubNotifier{err: errors.New("redis down")}
	revoker := &stubRevoker{err: errors.New("redis down")}
	svc := users.NewService(repo, nil, notifier, revoker, &stubSweeper{}, nil)

	if err := svc.Suspend(context.Background(), 1, 7); err != nil {
		t.Fatalf("suspend must succeed once the flag is committed: %v", err)
	}
	if !repo.suspended[7] {
		t.Fatalf("flag must be set")
	}
}

func TestUnsuspendPublishesChange(t *testing.T) {
	repo := newStubRepo()
	repo.suspended[7] = true
	notifier := &stubNotifier{}
	svc := users.NewService(repo, nil, notifier, &stubRevoker{}, &stubSweeper{}, nil)

	if err := svc.Unsuspend(context.Background(), 1, 7); err != nil {
		t.Fatalf("unsuspend: %v", err)
	}
	if repo.suspended[7] {
		t.Fatalf("flag must be cleared")
	}
	if suspended, ok := notifier.published[7]; !ok || suspended {
		t.Fatalf("expected unsuspension publish for user 7")
	}
}

func TestAssignRoleClearsWithNil(t *testing.T) {
	repo := newStubRepo()
	svc := users.NewService(repo, nil, &stubNotifier{}, &stubRevoker{}, &stubSweeper{}, nil)

	if err := svc.AssignRole(context.Background(), 1, 7, nil); err != nil {
		t.Fatalf("assign: %v", err)
	}
	if roleID, ok := repo.roles[7]; !ok || roleID != nil {
		t.Fatalf("expected cleared role reference")
	}
}
