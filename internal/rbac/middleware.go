package rbac

import (
	"net/http"
	"strconv"
	"strings"

	"log/slog"

	"github.com/callgrade/callgrade/internal/observability"
	"github.com/callgrade/callgrade/internal/shared"
)

// Middleware wires authorization helpers for HTTP handlers. Resolution
// errors are logged and denied: a store outage must never look like a grant.
type Middleware struct {
	Resolver *Resolver
	Logger   *slog.Logger
	Metrics  *observability.Metrics
}

// RequireAny ensures the current user has at least one of the required permissions.
func (m Middleware) RequireAny(perms ...string) func(http.Handler) http.Handler {
	required := normalizePermissions(perms)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if len(required) == 0 {
				next.ServeHTTP(w, r)
				return
			}
			set, ok := m.resolve(w, r)
			if !ok {
				return
			}
			for _, p := range required {
				if set.Has(p) {
					next.ServeHTTP(w, r)
					return
				}
			}
			m.deny(w, r)
		})
	}
}

// RequireAll ensures the current user has all required permissions.
func (m Middleware) RequireAll(perms ...string) func(http.Handler) http.Handler {
	required := normalizePermissions(perms)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if len(required) == 0 {
				next.ServeHTTP(w, r)
				return
			}
			set, ok := m.resolve(w, r)
			if !ok {
				return
			}
			for _, p := range required {
				if !set.Has(p) {
					m.deny(w, r)
					return
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

func (m Middleware) resolve(w http.ResponseWriter, r *http.Request) (PermissionSet, bool) {
	userID, ok := m.currentUserID(r)
	if !ok {
		m.deny(w, r)
		return nil, false
	}
	set, err := m.Resolver.Resolve(r.Context(), userID)
	if err != nil {
		// Fail closed: an unreachable store denies, it never allows.
		if m.Logger != nil {
			m.Logger.Error("rbac resolve", slog.Int64("user_id", userID), slog.Any("error", err))
		}
		m.deny(w, r)
		return nil, false
	}
	return set, true
}

func (m Middleware) deny(w http.ResponseWriter, r *http.Request) {
	if m.Metrics != nil {
		m.Metrics.PermissionDenied(r.URL.Path)
	}
	http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
}

func (m Middleware) currentUserID(r *http.Request) (int64, bool) {
	sess := shared.SessionFromContext(r.Context())
	if sess == nil {
		return 0, false
	}
	raw := strings.TrimSpace(sess.User())
	if raw == "" {
		return 0, false
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		if m.Logger != nil {
			m.Logger.Error("rbac parse user id", slog.String("value", raw))
		}
		return 0, false
	}
	return id, true
}

func normalizePermissions(perms []string) []string {
	unique := make(map[string]struct{}, len(perms))
	for _, p := range perms {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		unique[p] = struct{}{}
	}
	normalized := make([]string, 0, len(unique))
	for p := range unique {
		normalized = append(normalized, p)
	}
	return normalized
}
