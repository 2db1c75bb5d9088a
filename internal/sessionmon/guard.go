package sessionmon

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"log/slog"

	"github.com/callgrade/callgrade/internal/observability"
	"github.com/callgrade/callgrade/internal/shared"
)

// Guard is the synchronous enforcement layer: every authenticated request
// re-reads the suspension flag before proceeding, bounding staleness to at
// most one request.
type Guard struct {
	Status   StatusStore
	Sessions *shared.SessionManager
	Logger   *slog.Logger
	Metrics  *observability.Metrics
}

// Route prefixes skipped by the guard: public pages plus the monitor's own
// endpoints, which must keep answering for suspended accounts.
var skipPrefixes = []string{"/auth/", "/welcome", "/healthz", "/metrics", "/static/", "/session/"}

// Middleware terminates the session and redirects to login when the account
// is suspended. When the status store itself is unreachable the request is
// logged and allowed through: blocking every user on a read outage is worse
// than one stale request, and the permission layer still fails closed.
func (g Guard) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if skipPath(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}
		sess := shared.SessionFromContext(r.Context())
		if sess == nil || sess.User() == "" {
			next.ServeHTTP(w, r)
			return
		}
		userID, err := strconv.ParseInt(sess.User(), 10, 64)
		if err != nil {
			next.ServeHTTP(w, r)
			return
		}
		suspended, err := g.Status.Suspended(r.Context(), userID)
		if err != nil && !errors.Is(err, shared.ErrNotFound) {
			if g.Logger != nil {
				g.Logger.Warn("suspension check unavailable", slog.Int64("user_id", userID), slog.Any("error", err))
			}
			next.ServeHTTP(w, r)
			return
		}
		if !suspended {
			next.ServeHTTP(w, r)
			return
		}
		if g.Metrics != nil {
			g.Metrics.SuspensionLogout("request")
		}
		// The session is destroyed, so the message travels on the redirect
		// target rather than as a session flash.
		g.Sessions.Destroy(sess)
		http.Redirect(w, r, "/auth/login?reason=suspended", http.StatusSeeOther)
	})
}

func skipPath(path string) bool {
	for _, prefix := range skipPrefixes {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}
