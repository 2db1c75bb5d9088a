package rubrics

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

// Handler manages rubric catalog endpoints.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	templates *view.Engine
	csrf      *shared.CSRFManager
	sessions  *shared.SessionManager
	rbac      rbac.Middleware
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service, templates *view.Engine, csrf *shared.CSRFManager, sessions *shared.SessionManager, mw rbac.Middleware) *Handler {
	return &Handler{logger: logger, service: service, templates: templates, csrf: csrf, sessions: sessions, rbac: mw}
}

// MountRoutes registers rubric routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny(shared.PermRubricsView))
		r.Get("/", h.listRubrics)
		r.Get("/{rubricID}", h.showRubric)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAll(shared.PermRubricsEdit))
		r.Get("/new", h.showCreateForm)
		r.Post("/", h.createRubric)
		r.Post("/{rubricID}/archive", h.archiveRubric)
	})
}

type formErrors map[string]string

func (h *Handler) listRubrics(w http.ResponseWriter, r *http.Request) {
	rubrics, err := h.service.ListRubrics(r.Context())
	if err != nil {
		h.render(w, r, "pages/rubrics/list.html", map[string]any{"Errors": formErrors{"general": err.Error()}}, http.StatusInternalServerError)
		return
	}
	h.render(w, r, "pages/rubrics/list.html", map[string]any{"Rubrics": rubrics}, http.StatusOK)
}

func (h *Handler) showRubric(w http.ResponseWriter, r *http.Request) {
	id, ok := h.rubricID(w, r)
	if !ok {
		return
	}
	rubric, err := h.service.GetRubric(r.Context(), id)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			http.NotFound(w, r)
			return
		}
		h.render(w, r, "pages/rubrics/detail.html", map[string]any{"Errors": formErrors{"general": err.Error()}}, http.StatusInternalServerError)
		return
	}
	h.render(w, r, "pages/rubrics/detail.html", map[string]any{"Rubric": rubric}, http.StatusOK)
}

func (h *Handler) showCreateForm(w http.ResponseWriter, r *http.Request) {
	h.render(w, r, "pages/rubrics/form.html", map[string]any{"Errors": formErrors{}}, http.StatusOK)
}

func (h *Handler) createRubric(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	rubric := Rubric{
		Name:        r.PostFormValue("name"),
		Description: r.PostFormValue("description"),
	}
	labels := r.PostForm["criterion_label"]
	weights := r.PostForm["criterion_weight"]
	for i := range labels {
		if labels[i] == "" {
			continue
		}
		weight := 0
		if i < len(weights) {
			weight, _ = strconv.Atoi(weights[i])
		}
		rubric.Criteria = append(rubric.Criteria, Criterion{Label: labels[i], Weight: weight})
	}
	if _, err := h.service.CreateRubric(r.Context(), rubric); err != nil {
		h.render(w, r, "pages/rubrics/form.html", map[string]any{"Rubric": rubric, "Errors": formErrors{"general": err.Error()}}, http.StatusBadRequest)
		return
	}
	h.redirectWithFlash(w, r, "/rubrics", "success", "Rubric created")
}

func (h *Handler) archiveRubric(w http.ResponseWriter, r *http.Request) {
	id, ok := h.rubricID(w, r)
	if !ok {
		return
	}
	if err := h.service.ArchiveRubric(r.Context(), id); err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			http.NotFound(w, r)
			return
		}
		h.logger.Error("archive rubric", slog.Any("error", err))
		h.redirectWithFlash(w, r, "/rubrics", "error", "Archiving the rubric failed")
		return
	}
	h.redirectWithFlash(w, r, "/rubrics", "success", "Rubric archived")
}

func (h *Handler) rubricID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "rubricID"), 10, 64)
	if err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return 0, false
	}
	return id, true
}

func (h *Handler) render(w http.ResponseWriter, r *http.Request, template string, data map[string]any, status int) {
	sess := shared.SessionFromContext(r.Context())
	csrfToken, _ := h.csrf.EnsureToken(r.Context(), sess)
	var flash *shared.FlashMessage
	if sess != nil {
		flash = sess.PopFlash()
	}
	viewData := view.TemplateData{Title: "Rubrics", CSRFToken: csrfToken, Flash: flash, CurrentPath: r.URL.Path, Data: data}
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
