package rbac_test

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/callgrade/callgrade/internal/rbac"
	"github.com/callgrade/callgrade/internal/shared"
	_ "github.com/callgrade/callgrade/testing"
)

func newGuardedRequest(t *testing.T, userID string) *http.Request {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/rubrics", nil)
	if userID == "" {
		return req
	}
	sess := &shared.Session{}
	sess.SetUser(userID)
	return req.WithContext(shared.ContextWithSession(req.Context(), sess))
}

func serveGuarded(mw func(http.Handler) http.Handler, req *http.Request) (*httptest.ResponseRecorder, bool) {
	reached := false
	handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reached = true
		w.WriteHeader(http.StatusOK)
	}))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec, reached
}

func TestRequireAnyGrantsOnSinglePermission(t *testing.T) {
	store := &fakeStore{
		subjects: map[int64]rbac.Subject{7: {UserID: 7, RoleID: roleID(2), RoleName: "Viewer"}},
		roles:    map[int64][]string{2: {shared.PermRubricsView}},
	}
	mw := rbac.Middleware{Resolver: rbac.NewResolver(store)}

	rec, reached := serveGuarded(mw.RequireAny(shared.PermRubricsView, shared.PermRubricsEdit), newGuardedRequest(t, "7"))
	if !reached || rec.Code != http.StatusOK {
		t.Fatalf("expected request to pass, got status %d reached=%v", rec.Code, reached)
	}
}

func TestRequireAllDeniesOnMissingPermission(t *testing.T) {
	store := &fakeStore{
		subjects: map[int64]rbac.Subject{7: {UserID: 7, RoleID: roleID(2), RoleName: "Viewer"}},
		roles:    map[int64][]string{2: {shared.PermRubricsView}},
	}
	mw := rbac.Middleware{Resolver: rbac.NewResolver(store)}

	rec, reached := serveGuarded(mw.RequireAll(shared.PermRubricsView, shared.PermRubricsEdit), newGuardedRequest(t, "7"))
	if reached {
		t.Fatalf("handler must not run without the full permission set")
	}
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rec.Code)
	}
}

func TestRequireAnyDeniesWhenResolutionFails(t *testing.T) {
	store := &fakeStore{subjectErr: errors.New("connection refused")}
	mw := rbac.Middleware{Resolver: rbac.NewResolver(store)}

	rec, reached := serveGuarded(mw.RequireAny(shared.PermRubricsView), newGuardedRequest(t, "7"))
	if reached {
		t.Fatalf("a store outage must deny, never allow")
	}
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rec.Code)
	}
}

func TestRequireAnyDeniesWithoutSession(t *testing.T) {
	store := &fakeStore{}
	mw := rbac.Middleware{Resolver: rbac.NewResolver(store)}

	rec, reached := serveGuarded(mw.RequireAny(shared.PermRubricsView), newGuardedRequest(t, ""))
	if reached || rec.Code != http.StatusForbidden {
		t.Fatalf("anonymous request must be denied, got status %d reached=%v", rec.Code, reached)
	}
}

func TestRequireAnyUnknownUserDenied(t *testing.T) {
	// A valid session for a user the store no longer knows resolves to an
	// empty permission set, which denies without being treated as an error.
	store := &fakeStore{subjects: map[int64]rbac.Subject{}}
	mw := rbac.Middleware{Resolver: rbac.NewResolver(store)}

	rec, reached := serveGuarded(mw.RequireAny(shared.PermRubricsView), newGuardedRequest(t, "404"))
	if reached || rec.Code != http.StatusForbidden {
		t.Fatalf("unknown user must be denied, got status %d reached=%v", rec.Code, reached)
	}
}
