package users

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/callgrade/callgrade/internal/rbac"
	"github.com/callgrade/callgrade/internal/shared"
	"github.com/callgrade/callgrade/internal/view"
)

// Handler manages account administration endpoints.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	rbacSvc   *rbac.Service
	templates *view.Engine
	csrf      *shared.CSRFManager
	sessions  *shared.SessionManager
	rbac      rbac.Middleware
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service, rbacSvc *rbac.Service, templates *view.Engine, csrf *shared.CSRFManager, sessions *shared.SessionManager, mw rbac.Middleware) *Handler {
	return &Handler{logger: logger, service: service, rbacSvc: rbacSvc, templates: templates, csrf: csrf, sessions: sessions, rbac: mw}
}

// MountRoutes registers user administration routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny(shared.PermUsersView))
		r.Get("/", h.listUsers)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAll(shared.PermUsersEdit))
		r.Post("/{userID}/role", h.assignRole)
		r.Get("/{userID}/grants", h.showGrantsForm)
		r.Post("/{userID}/grants", h.replaceGrants)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAll(shared.PermUsersSuspend))
		r.Post("/{userID}/suspend", h.suspend)
		r.Post("/{userID}/unsuspend", h.unsuspend)
	})
}

type formErrors map[string]string

func (h *Handler) listUsers(w http.ResponseWriter, r *http.Request) {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	pagination := shared.NewPagination(page, 20, 0)
	users, total, err := h.service.ListUsers(r.Context(), pagination)
	if err != nil {
		h.render(w, r, "pages/users/list.html", map[string]any{"Errors": formErrors{"general": err.Error()}}, http.StatusInternalServerError)
		return
	}
	pagination = shared.NewPagination(page, 20, total)
	roles, err := h.rbacSvc.ListRoles(r.Context())
	if err != nil {
		h.render(w, r, "pages/users/list.html", map[string]any{"Errors": formErrors{"general": err.Error()}}, http.StatusInternalServerError)
		return
	}
	h.render(w, r, "pages/users/list.html", map[string]any{
		"Users":      users,
		"Roles":      roles,
		"Pagination": pagination,
	}, http.StatusOK)
}

func (h *Handler) suspend(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}
	if err := h.service.Suspend(r.Context(), h.actorID(r), userID); err != nil {
		h.failRedirect(w, r, err, "Suspending the account failed")
		return
	}
	h.redirectWithFlash(w, r, "/users", "success", "Account suspended; all sessions were terminated")
}

func (h *Handler) unsuspend(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}
	if err := h.service.Unsuspend(r.Context(), h.actorID(r), userID); err != nil {
		h.failRedirect(w, r, err, "Restoring the account failed")
		return
	}
	h.redirectWithFlash(w, r, "/users", "success", "Account restored")
}

func (h *Handler) assignRole(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}
	if err := r.ParseForm(); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	var roleID *int64
	if raw := r.PostFormValue("role_id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
			return
		}
		roleID = &id
	}
	if err := h.service.AssignRole(r.Context(), h.actorID(r), userID, roleID); err != nil {
		h.failRedirect(w, r, err, "Changing the role failed")
		return
	}
	h.redirectWithFlash(w, r, "/users", "success", "Role updated")
}

func (h *Handler) showGrantsForm(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}
	user, err := h.service.GetUser(r.Context(), userID)
	if err != nil {
		h.failRedirect(w, r, err, "User not found")
		return
	}
	catalog, err := h.rbacSvc.Catalog(r.Context())
	if err != nil {
		h.failRedirect(w, r, err, "Loading the permission catalog failed")
		return
	}
	granted, err := h.rbacSvc.DirectGrantIDs(r.Context(), userID)
	if err != nil {
		h.failRedirect(w, r, err, "Loading direct grants failed")
		return
	}
	grantedSet := make(map[int64]bool, len(granted))
	for _, id := range granted {
		grantedSet[id] = true
	}
	h.render(w, r, "pages/users/grants.html", map[string]any{
		"User":    user,
		"Catalog": catalog,
		"Granted": grantedSet,
	}, http.StatusOK)
}

func (h *Handler) replaceGrants(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}
	if err := r.ParseForm(); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	ids, err := rbac.ParsePermissionIDs(r.PostForm["permission_ids"])
	if err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	if err := h.rbacSvc.ReplaceDirectGrants(r.Context(), h.actorID(r), userID, ids); err != nil {
		if errors.Is(err, shared.ErrMutationFailure) {
			h.redirectWithFlash(w, r, "/users", "error", "Saving grants failed; no changes were applied. Please retry.")
			return
		}
		h.failRedirect(w, r, err, "Saving grants failed")
		return
	}
	h.redirectWithFlash(w, r, "/users", "success", "Direct grants updated")
}

func (h *Handler) userID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "userID"), 10, 64)
	if err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return 0, false
	}
	return id, true
}

func (h *Handler) actorID(r *http.Request) int64 {
	sess := shared.SessionFromContext(r.Context())
	if sess == nil {
		return 0
	}
	id, _ := strconv.ParseInt(sess.User(), 10, 64)
	return id
}

func (h *Handler) failRedirect(w http.ResponseWriter, r *http.Request, err error, message string) {
	if errors.Is(err, shared.ErrNotFound) {
		http.NotFound(w, r)
		return
	}
	h.logger.Error("users handler", slog.Any("error", err))
	h.redirectWithFlash(w, r, "/users", "error", message)
}

func (h *Handler) render(w http.ResponseWriter, r *http.Request, template string, data map[string]any, status int) {
	sess := shared.SessionFromContext(r.Context())
	csrfToken, _ := h.csrf.EnsureToken(r.Context(), sess)
	var flash *shared.FlashMessage
	if sess != nil {
		flash = sess.PopFlash()
	}
	viewData := view.TemplateData{Title: "Users", CSRFToken: csrfToken, Flash: flash, CurrentPath: r.URL.Path, Data: data}
	w.WriteHeader(status)
	if err := h.templates.Render(w, template, viewData); err != nil {
		h.logger.Error("render template", slog.Any("error", err))
	}
}

func (h *Handler) redirectWithFlash(w http.ResponseWriter, r *http.Request, location, kind, message string) {
	if sess := shared.SessionFromContext(r.Context()); sess != nil {
		sess.AddFlash(shared.FlashMessage{Kind: kind, Message: message})
	}
	http.Redirect(w, r, location, http.StatusSeeOther)
}
