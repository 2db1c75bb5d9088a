package evaluations

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/callgrade/callgrade/internal/assignments"
	"github.com/callgrade/callgrade/internal/rbac"
	"github.com/callgrade/callgrade/internal/rubrics"
	"github.com/callgrade/callgrade/internal/shared"
	"github.com/callgrade/callgrade/internal/view"
)

// Handler manages evaluation endpoints.
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

// MountRoutes registers evaluation routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny(shared.PermEvaluationsView))
		r.Get("/", h.listEvaluations)
		r.Get("/{evaluationID}", h.showEvaluation)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAll(shared.PermEvaluationsScore))
		r.Get("/new/{assignmentID}", h.showScoreForm)
		r.Post("/", h.submitEvaluation)
	})
}

type formErrors map[string]string

func (h *Handler) listEvaluations(w http.ResponseWriter, r *http.Request) {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	pagination := shared.NewPagination(page, 20, 0)
	items, total, err := h.service.ListEvaluations(r.Context(), pagination)
	if err != nil {
		h.render(w, r, "pages/evaluations/list.html", map[string]any{"Errors": formErrors{"general": err.Error()}}, http.StatusInternalServerError)
		return
	}
	pagination = shared.NewPagination(page, 20, total)
	h.render(w, r, "pages/evaluations/list.html", map[string]any{
		"Evaluations": items,
		"Pagination":  pagination,
	}, http.StatusOK)
}

func (h *Handler) showEvaluation(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "evaluationID"), 10, 64)
	if err != nil {
		http.NotFound(w, r)
		return
	}
	eval, err := h.service.GetEvaluation(r.Context(), id)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			http.NotFound(w, r)
			return
		}
		h.logger.Error("load evaluation", slog.Any("error", err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	h.render(w, r, "pages/evaluations/detail.html", map[string]any{"Evaluation": eval}, http.StatusOK)
}

func (h *Handler) showScoreForm(w http.ResponseWriter, r *http.Request) {
	assignmentID, err := strconv.ParseInt(chi.URLParam(r, "assignmentID"), 10, 64)
	if err != nil {
		http.NotFound(w, r)
		return
	}
	a, rubric, err := h.scoreContext(r, assignmentID)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			http.NotFound(w, r)
			return
		}
		h.logger.Error("load score form", slog.Any("error", err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	h.render(w, r, "pages/evaluations/form.html", map[string]any{
		"Assignment": a,
		"Rubric":     rubric,
		"Errors":     formErrors{},
	}, http.StatusOK)
}

func (h *Handler) submitEvaluation(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	assignmentID, err := strconv.ParseInt(r.PostFormValue("assignment_id"), 10, 64)
	if err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	inputs := parseScoreInputs(r)
	notes := r.PostFormValue("notes")
	eval, err := h.service.Submit(r.Context(), assignmentID, h.actorID(r), inputs, notes)
	if err != nil {
		switch {
		case errors.Is(err, ErrAlreadyScored):
			h.redirectWithFlash(w, r, "/evaluations", "error", "That call has already been scored")
			return
		case errors.Is(err, shared.ErrNotFound):
			http.NotFound(w, r)
			return
		}
		a, rubric, ctxErr := h.scoreContext(r, assignmentID)
		if ctxErr != nil {
			h.logger.Error("reload score form", slog.Any("error", ctxErr))
			http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
			return
		}
		h.render(w, r, "pages/evaluations/form.html", map[string]any{
			"Assignment": a,
			"Rubric":     rubric,
			"Errors":     formErrors{"general": err.Error()},
		}, http.StatusBadRequest)
		return
	}
	h.redirectWithFlash(w, r, "/evaluations/"+strconv.FormatInt(eval.ID, 10), "success", "Evaluation submitted")
}

// parseScoreInputs collects score[<criterionID>] and comment[<criterionID>]
// form fields.
func parseScoreInputs(r *http.Request) []ScoreInput {
	var inputs []ScoreInput
	for key, values := range r.PostForm {
		if !strings.HasPrefix(key, "score[") || !strings.HasSuffix(key, "]") || len(values) == 0 {
			continue
		}
		criterionID, err := strconv.ParseInt(key[len("score["):len(key)-1], 10, 64)
		if err != nil {
			continue
		}
		value, err := strconv.Atoi(values[0])
		if err != nil {
			continue
		}
		inputs = append(inputs, ScoreInput{
			CriterionID: criterionID,
			Value:       value,
			Comment:     r.PostFormValue("comment[" + strconv.FormatInt(criterionID, 10) + "]"),
		})
	}
	return inputs
}

func (h *Handler) scoreContext(r *http.Request, assignmentID int64) (assignments.Assignment, rubrics.Rubric, error) {
	a, err := h.service.assignments.GetAssignment(r.Context(), assignmentID)
	if err != nil {
		return assignments.Assignment{}, rubrics.Rubric{}, err
	}
	rb, err := h.service.rubrics.GetRubric(r.Context(), a.RubricID)
	if err != nil {
		return assignments.Assignment{}, rubrics.Rubric{}, err
	}
	return a, rb, nil
}

func (h *Handler) actorID(r *http.Request) int64 {
	sess := shared.SessionFromContext(r.Context())
	if sess == nil {
		return 0
	}
	id, _ := strconv.ParseInt(sess.User(), 10, 64)
	return id
}

func (h *Handler) render(w http.ResponseWriter, r *http.Request, template string, data map[string]any, status int) {
	sess := shared.SessionFromContext(r.Context())
	csrfToken, _ := h.csrf.EnsureToken(r.Context(), sess)
	var flash *shared.FlashMessage
	if sess != nil {
		flash = sess.PopFlash()
	}
	viewData := view.TemplateData{Title: "Evaluations", CSRFToken: csrfToken, Flash: flash, CurrentPath: r.URL.Path, Data: data}
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
