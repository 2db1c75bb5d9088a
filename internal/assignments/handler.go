package assignments

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/callgrade/callgrade/internal/rbac"
	"github.com/callgrade/callgrade/internal/rubrics"
	"github.com/callgrade/callgrade/internal/shared"
	"github.com/callgrade/callgrade/internal/users"
	"github.com/callgrade/callgrade/internal/view"
)

// ReviewerLister supplies the user listing for the assignment form.
type ReviewerLister interface {
	ListUsers(ctx context.Context, page shared.Pagination) ([]users.User, int, error)
}

// Handler manages assignment endpoints.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	rubricSvc *rubrics.Service
	reviewers ReviewerLister
	templates *view.Engine
	csrf      *shared.CSRFManager
	sessions  *shared.SessionManager
	rbac      rbac.Middleware
	validate  *validator.Validate
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service, rubricSvc *rubrics.Service, reviewers ReviewerLister, templates *view.Engine, csrf *shared.CSRFManager, sessions *shared.SessionManager, mw rbac.Middleware) *Handler {
	return &Handler{logger: logger, service: service, rubricSvc: rubricSvc, reviewers: reviewers, templates: templates, csrf: csrf, sessions: sessions, rbac: mw, validate: validator.New()}
}

// MountRoutes registers assignment routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny(shared.PermAssignmentsView))
		r.Get("/", h.listAssignments)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAll(shared.PermAssignmentsAssign))
		r.Get("/new", h.showCreateForm)
		r.Post("/", h.createAssignment)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAll(shared.PermEvaluationsScore))
		r.Post("/{assignmentID}/start", h.startReview)
	})
}

type assignmentForm struct {
	CallRef    string `validate:"required,max=100"`
	AgentName  string `validate:"required,max=200"`
	ReviewerID int64  `validate:"required,gt=0"`
	RubricID   int64  `validate:"required,gt=0"`
	DueDate    string `validate:"required"`
}

type formErrors map[string]string

func (h *Handler) listAssignments(w http.ResponseWriter, r *http.Request) {
	filters := ListFilters{Status: r.URL.Query().Get("status")}
	if raw := r.URL.Query().Get("reviewer_id"); raw != "" {
		filters.ReviewerID, _ = strconv.ParseInt(raw, 10, 64)
	}
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	pagination := shared.NewPagination(page, 20, 0)
	items, total, err := h.service.ListAssignments(r.Context(), filters, pagination)
	if err != nil {
		h.render(w, r, "pages/assignments/list.html", map[string]any{"Filters": filters, "Errors": formErrors{"general": err.Error()}}, http.StatusInternalServerError)
		return
	}
	pagination = shared.NewPagination(page, 20, total)
	h.render(w, r, "pages/assignments/list.html", map[string]any{
		"Assignments": items,
		"Filters":     filters,
		"Pagination":  pagination,
	}, http.StatusOK)
}

func (h *Handler) showCreateForm(w http.ResponseWriter, r *http.Request) {
	active, reviewers, err := h.formOptions(r)
	if err != nil {
		h.render(w, r, "pages/assignments/form.html", map[string]any{"Errors": formErrors{"general": err.Error()}}, http.StatusInternalServerError)
		return
	}
	h.render(w, r, "pages/assignments/form.html", map[string]any{"Rubrics": active, "Reviewers": reviewers, "Errors": formErrors{}}, http.StatusOK)
}

func (h *Handler) createAssignment(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	form := assignmentForm{
		CallRef:   r.PostFormValue("call_ref"),
		AgentName: r.PostFormValue("agent_name"),
		DueDate:   r.PostFormValue("due_date"),
	}
	form.ReviewerID, _ = strconv.ParseInt(r.PostFormValue("reviewer_id"), 10, 64)
	form.RubricID, _ = strconv.ParseInt(r.PostFormValue("rubric_id"), 10, 64)

	errs := formErrors{}
	if err := h.validate.Struct(form); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) {
			for _, fe := range fieldErrs {
				errs[fe.Field()] = fe.Error()
			}
		}
	}
	dueDate, err := time.Parse("2006-01-02", form.DueDate)
	if err != nil && form.DueDate != "" {
		errs["DueDate"] = "Due date must be YYYY-MM-DD"
	}
	if len(errs) > 0 {
		active, reviewers, _ := h.formOptions(r)
		h.render(w, r, "pages/assignments/form.html", map[string]any{"Form": form, "Rubrics": active, "Reviewers": reviewers, "Errors": errs}, http.StatusBadRequest)
		return
	}

	_, err = h.service.CreateAssignment(r.Context(), Assignment{
		CallRef:    form.CallRef,
		AgentName:  form.AgentName,
		ReviewerID: form.ReviewerID,
		RubricID:   form.RubricID,
		DueDate:    dueDate,
		CreatedBy:  h.actorID(r),
	})
	if err != nil {
		active, reviewers, _ := h.formOptions(r)
		h.render(w, r, "pages/assignments/form.html", map[string]any{"Form": form, "Rubrics": active, "Reviewers": reviewers, "Errors": formErrors{"general": err.Error()}}, http.StatusBadRequest)
		return
	}
	h.redirectWithFlash(w, r, "/assignments", "success", "Assignment created")
}

func (h *Handler) startReview(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "assignmentID"), 10, 64)
	if err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	if err := h.service.StartReview(r.Context(), id); err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			h.redirectWithFlash(w, r, "/assignments", "error", "Assignment is not pending")
			return
		}
		h.logger.Error("start review", slog.Any("error", err))
		h.redirectWithFlash(w, r, "/assignments", "error", "Starting the review failed")
		return
	}
	h.redirectWithFlash(w, r, "/assignments", "success", "Review started")
}

// formOptions loads the active rubrics and non-suspended users shown in the
// assignment form selects.
func (h *Handler) formOptions(r *http.Request) ([]rubrics.Rubric, []users.User, error) {
	all, err := h.rubricSvc.ListRubrics(r.Context())
	if err != nil {
		return nil, nil, err
	}
	active := all[:0]
	for _, rb := range all {
		if rb.Active {
			active = append(active, rb)
		}
	}
	listed, _, err := h.reviewers.ListUsers(r.Context(), shared.NewPagination(1, 200, 0))
	if err != nil {
		return nil, nil, err
	}
	reviewers := listed[:0]
	for _, u := range listed {
		if !u.Suspended {
			reviewers = append(reviewers, u)
		}
	}
	return active, reviewers, nil
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
	viewData := view.TemplateData{Title: "Assignments", CSRFToken: csrfToken, Flash: flash, CurrentPath: r.URL.Path, Data: data}
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
