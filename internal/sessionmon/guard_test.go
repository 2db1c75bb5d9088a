package sessionmon_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/callgrade/callgrade/internal/sessionmon"
	"github.com/callgrade/callgrade/internal/shared"
	_ "github.com/callgrade/callgrade/testing"
)

type fakeStatus struct {
	suspended map[int64]bool
	err       error
}

func (f *fakeStatus) Suspended(ctx context.Context, userID int64) (bool, error) {
	if f.err != nil {
		return false, f.err
	}
	flag, ok := f.suspended[userID]
	if !ok {
		return false, shared.ErrNotFound
	}
	return flag, nil
}

func newTestSessionManager(t *testing.T) *shared.SessionManager {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return shared.NewSessionManager(client, "callgrade_session", "test-secret", time.Hour, false)
}

func guardRequest(path, userID string) *http.Request {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if userID == "" {
		return req
	}
	sess := &shared.Session{}
	sess.SetUser(userID)
	return req.WithContext(shared.ContextWithSession(req.Context(), sess))
}

func runGuard(g sessionmon.Guard, req *http.Request) (*httptest.ResponseRecorder, bool) {
	reached := false
	handler := g.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reached = true
		w.WriteHeader(http.StatusOK)
	}))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec, reached
}

func TestGuardRedirectsSuspendedUser(t *testing.T) {
	g := sessionmon.Guard{
		Status:   &fakeStatus{suspended: map[int64]bool{7: true}},
		Sessions: newTestSessionManager(t),
	}

	rec, reached := runGuard(g, guardRequest("/rubrics", "7"))
	if reached {
		t.Fatalf("suspended user must not reach the handler")
	}
	if rec.Code != http.StatusSeeOther {
		t.Fatalf("expected 303, got %d", rec.Code)
	}
	if loc := rec.Header().Get("Location"); loc != "/auth/login?reason=suspended" {
		t.Fatalf("unexpected redirect target %q", loc)
	}
}

func TestGuardAllowsActiveUser(t *testing.T) {
	g := sessionmon.Guard{
		Status:   &fakeStatus{suspended: map[int64]bool{7: false}},
		Sessions: newTestSessionManager(t),
	}

	rec, reached := runGuard(g, guardRequest("/rubrics", "7"))
	if !reached || rec.Code != http.StatusOK {
		t.Fatalf("active user must pass, got status %d reached=%v", rec.Code, reached)
	}
}

func TestGuardFailsOpenOnStoreError(t *testing.T) {
	// A read outage lets the request through; authorization still fails
	// closed one layer down.
	g := sessionmon.Guard{
		Status:   &fakeStatus{err: errors.New("connection refused")},
		Sessions: newTestSessionManager(t),
	}

	rec, reached := runGuard(g, guardRequest("/rubrics", "7"))
	if !reached || rec.Code != http.StatusOK {
		t.Fatalf("store outage must not block the request, got status %d reached=%v", rec.Code, reached)
	}
}

func TestGuardSkipsAnonymousRequests(t *testing.T) {
	g := sessionmon.Guard{
		Status:   &fakeStatus{err: errors.New("must not be called")},
		Sessions: newTestSessionManager(t),
	}

	_, reached := runGuard(g, guardRequest("/welcome", ""))
	if !reached {
		t.Fatalf("anonymous request must pass through")
	}
}

func TestGuardSkipsMonitorEndpoints(t *testing.T) {
	// The monitor's own endpoints keep answering for suspended accounts so
	// the client can learn why it was logged out.
	g := sessionmon.Guard{
		Status:   &fakeStatus{suspended: map[int64]bool{7: true}},
		Sessions: newTestSessionManager(t),
	}

	for _, path := range []string{"/session/check", "/session/events", "/auth/login", "/static/css/app.css"} {
		_, reached := runGuard(g, guardRequest(path, "7"))
		if !reached {
			t.Fatalf("path %s must bypass the guard", path)
		}
	}
}
