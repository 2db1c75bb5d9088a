package shared_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/callgrade/callgrade/internal/shared"
	_ "github.com/callgrade/callgrade/testing"
)

func newManager(t *testing.T) (*shared.SessionManager, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return shared.NewSessionManager(client, "callgrade_session", "test-secret", time.Hour, false), client
}

func commitSession(t *testing.T, sm *shared.SessionManager, sess *shared.Session) *http.Cookie {
	t.Helper()
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if err := sm.Commit(context.Background(), rec, req, sess); err != nil {
		t.Fatalf("commit: %v", err)
	}
	cookies := rec.Result().Cookies()
	if len(cookies) == 0 {
		t.Fatalf("expected session cookie to be set")
	}
	return cookies[0]
}

func TestSessionRoundtrip(t *testing.T) {
	sm, _ := newManager(t)

	sess, err := sm.Load(context.Background(), httptest.NewRequest(http.MethodGet, "/", nil))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	sess.SetUser("7")
	sess.Set("theme", "dark")
	cookie := commitSession(t, sm, sess)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(cookie)
	loaded, err := sm.Load(context.Background(), req)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if loaded.User() != "7" {
		t.Fatalf("expected user 7, got %q", loaded.User())
	}
	if loaded.Get("theme") != "dark" {
		t.Fatalf("expected stored value to survive the roundtrip")
	}
}

func TestRevokeUserDeletesAllSessions(t *testing.T) {
	sm, client := newManager(t)

	var cookies []*http.Cookie
	for i := 0; i < 3; i++ {
		sess, err := sm.Load(context.Background(), httptest.NewRequest(http.MethodGet, "/", nil))
		if err != nil {
			t.Fatalf("load: %v", err)
		}
		sess.SetUser("7")
		cookies = append(cookies, commitSession(t, sm, sess))
	}

	revoked, err := sm.RevokeUser(context.Background(), "7")
	if err != nil {
		t.Fatalf("revoke: %v", err)
	}
	if revoked != 3 {
		t.Fatalf("expected 3 revoked sessions, got %d", revoked)
	}

	for _, cookie := range cookies {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.AddCookie(cookie)
		sess, err := sm.Load(context.Background(), req)
		if err != nil {
			t.Fatalf("reload: %v", err)
		}
		if sess.User() != "" {
			t.Fatalf("revoked session must come back empty")
		}
	}

	if n, err := client.Exists(context.Background(), "user_sessions:7").Result(); err != nil || n != 0 {
		t.Fatalf("user session index must be gone, exists=%d err=%v", n, err)
	}
}

func TestRevokeUserWithoutSessions(t *testing.T) {
	sm, _ := newManager(t)

	revoked, err := sm.RevokeUser(context.Background(), "99")
	if err != nil {
		t.Fatalf("revoke: %v", err)
	}
	if revoked != 0 {
		t.Fatalf("expected 0 revoked sessions, got %d", revoked)
	}
}

func TestFlashPopsOnce(t *testing.T) {
	sm, _ := newManager(t)

	sess, err := sm.Load(context.Background(), httptest.NewRequest(http.MethodGet, "/", nil))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	sess.AddFlash(shared.FlashMessage{Kind: "success", Message: "saved"})

	msg := sess.PopFlash()
	if msg == nil || msg.Message != "saved" {
		t.Fatalf("expected queued flash, got %+v", msg)
	}
	if sess.PopFlash() != nil {
		t.Fatalf("flash must only pop once")
	}
}
