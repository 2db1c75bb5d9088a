package roles

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/callgrade/callgrade/internal/rbac"
	"github.com/callgrade/callgrade/internal/shared"
	"github.com/callgrade/callgrade/internal/view"
)

// Handler manages role administration endpoints. All mutations are gated on
// roles.edit, which is itself resolved through the permission engine: a
// permission is needed to change permissions.
type Handler struct {
	logger    *slog.Logger
	service   *rbac.Service
	templates *view.Engine
	csrf      *shared.CSRFManager
	sessions  *shared.SessionManager
	rbac      rbac.Middleware
	validate  *validator.Validate
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *rbac.Service, templates *view.Engine, csrf *shared.CSRFManager, sessions *shared.SessionManager, mw rbac.Middleware) *Handler {
	return &Handler{logger: logger, service: service, templates: templates, csrf: csrf, sessions: sessions, rbac: mw, validate: validator.New()}
}

// MountRoutes registers role routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny(shared.PermRolesView))
		r.Get("/", h.listRoles)
		r.Get("/{roleID}/members", h.listMembers)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAll(shared.PermRolesEdit))
		r.Get("/new", h.showCreateForm)
		r.Post("/", h.createRole)
		r.Get("/{roleID}/edit", h.showEditForm)
		r.Post("/{roleID}", h.updateRole)
		r.Get("/{roleID}/permissions", h.showPermissionsForm)
		r.Post("/{roleID}/permissions", h.replacePermissions)
		r.Post("/{roleID}/delete", h.deleteRole)
	})
}

type roleForm struct {
	Name        string `validate:"required,max=100"`
	Description string `validate:"max=500"`
}

type formErrors map[string]string

func (h *Handler) listRoles(w http.ResponseWriter, r *http.Request) {
	roles, err := h.service.ListRoles(r.Context())
	if err != nil {
		h.render(w, r, "pages/roles/list.html", map[string]any{"Errors": formErrors{"general": err.Error()}}, http.StatusInternalServerError)
		return
	}
	h.render(w, r, "pages/roles/list.html", map[string]any{"Roles": roles}, http.StatusOK)
}

func (h *Handler) listMembers(w http.ResponseWriter, r *http.Request) {
	roleID, ok := h.roleID(w, r)
	if !ok {
		return
	}
	role, err := h.service.GetRole(r.Context(), roleID)
	if err != nil {
		h.renderError(w, r, err)
		return
	}
	members, err := h.service.UsersByRole(r.Context(), roleID)
	if err != nil {
		h.renderError(w, r, err)
		return
	}
	h.render(w, r, "pages/roles/members.html", map[string]any{"Role": role, "Members": members}, http.StatusOK)
}

func (h *Handler) showCreateForm(w http.ResponseWriter, r *http.Request) {
	h.render(w, r, "pages/roles/form.html", map[string]any{"Errors": formErrors{}}, http.StatusOK)
}

func (h *Handler) createRole(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	form := roleForm{Name: r.PostFormValue("name"), Description: r.PostFormValue("description")}
	if errs := h.validateForm(form); len(errs) > 0 {
		h.render(w, r, "pages/roles/form.html", map[string]any{"Form": form, "Errors": errs}, http.StatusBadRequest)
		return
	}
	if _, err := h.service.CreateRole(r.Context(), h.actorID(r), form.Name, form.Description); err != nil {
		if errors.Is(err, rbac.ErrDuplicateRole) {
			h.render(w, r, "pages/roles/form.html", map[string]any{"Form": form, "Errors": formErrors{"Name": "A role with this name already exists"}}, http.StatusConflict)
			return
		}
		h.renderError(w, r, err)
		return
	}
	h.redirectWithFlash(w, r, "/roles", "success", "Role created")
}

func (h *Handler) showEditForm(w http.ResponseWriter, r *http.Request) {
	roleID, ok := h.roleID(w, r)
	if !ok {
		return
	}
	role, err := h.service.GetRole(r.Context(), roleID)
	if err != nil {
		h.renderError(w, r, err)
		return
	}
	form := roleForm{Name: role.Name, Description: role.Description}
	h.render(w, r, "pages/roles/form.html", map[string]any{"Role": role, "Form": form, "Errors": formErrors{}}, http.StatusOK)
}

func (h *Handler) updateRole(w http.ResponseWriter, r *http.Request) {
	roleID, ok := h.roleID(w, r)
	if !ok {
		return
	}
	if err := r.ParseForm(); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	form := roleForm{Name: r.PostFormValue("name"), Description: r.PostFormValue("description")}
	if errs := h.validateForm(form); len(errs) > 0 {
		h.render(w, r, "pages/roles/form.html", map[string]any{"Form": form, "Errors": errs}, http.StatusBadRequest)
		return
	}
	if _, err := h.service.UpdateRoleDetails(r.Context(), h.actorID(r), roleID, form.Name, form.Description); err != nil {
		h.renderError(w, r, err)
		return
	}
	h.redirectWithFlash(w, r, "/roles", "success", "Role updated")
}

func (h *Handler) showPermissionsForm(w http.ResponseWriter, r *http.Request) {
	roleID, ok := h.roleID(w, r)
	if !ok {
		return
	}
	role, err := h.service.GetRole(r.Context(), roleID)
	if err != nil {
		h.renderError(w, r, err)
		return
	}
	catalog, err := h.service.Catalog(r.Context())
	if err != nil {
		h.renderError(w, r, err)
		return
	}
	assigned, err := h.service.RolePermissionIDs(r.Context(), roleID)
	if err != nil {
		h.renderError(w, r, err)
		return
	}
	assignedSet := make(map[int64]bool, len(assigned))
	for _, id := range assigned {
		assignedSet[id] = true
	}
	h.render(w, r, "pages/roles/permissions.html", map[string]any{
		"Role":     role,
		"Catalog":  catalog,
		"Assigned": assignedSet,
	}, http.StatusOK)
}

func (h *Handler) replacePermissions(w http.ResponseWriter, r *http.Request) {
	roleID, ok := h.roleID(w, r)
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
	if err := h.service.ReplaceRolePermissions(r.Context(), h.actorID(r), roleID, ids); err != nil {
		if errors.Is(err, shared.ErrMutationFailure) {
			h.redirectWithFlash(w, r, "/roles", "error", "Saving permissions failed; no changes were applied. Please retry.")
			return
		}
		h.renderError(w, r, err)
		return
	}
	h.redirectWithFlash(w, r, "/roles", "success", "Permissions updated")
}

func (h *Handler) deleteRole(w http.ResponseWriter, r *http.Request) {
	roleID, ok := h.roleID(w, r)
	if !ok {
		return
	}
	if err := h.service.DeleteRole(r.Context(), h.actorID(r), roleID); err != nil {
		if errors.Is(err, shared.ErrRoleProtected) {
			h.redirectWithFlash(w, r, "/roles", "error", "The Admin role is protected and cannot be deleted")
			return
		}
		h.renderError(w, r, err)
		return
	}
	h.redirectWithFlash(w, r, "/roles", "success", "Role deleted")
}

func (h *Handler) validateForm(form roleForm) formErrors {
	errs := formErrors{}
	if err := h.validate.Struct(form); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) {
			for _, fe := range fieldErrs {
				errs[fe.Field()] = fe.Error()
			}
		} else {
			errs["general"] = err.Error()
		}
	}
	return errs
}

func (h *Handler) roleID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "roleID"), 10, 64)
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

func (h *Handler) renderError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, shared.ErrNotFound) {
		http.NotFound(w, r)
		return
	}
	h.logger.Error("roles handler", slog.Any("error", err))
	http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
}

func (h *Handler) render(w http.ResponseWriter, r *http.Request, template string, data map[string]any, status int) {
	sess := shared.SessionFromContext(r.Context())
	csrfToken, _ := h.csrf.EnsureToken(r.Context(), sess)
	var flash *shared.FlashMessage
	if sess != nil {
		flash = sess.PopFlash()
	}
	viewData := view.TemplateData{Title: "Roles", CSRFToken: csrfToken, Flash: flash, CurrentPath: r.URL.Path, Data: data}
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
