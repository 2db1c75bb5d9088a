package assignments

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"log/slog"

	"github.com/callgrade/callgrade/internal/rubrics"
	"github.com/callgrade/callgrade/internal/shared"
)

// RepositoryPort defines data access methods for assignments.
type RepositoryPort interface {
	ListAssignments(ctx context.Context, filters ListFilters, limit, offset int) ([]Assignment, int, error)
	GetAssignment(ctx context.Context, id int64) (Assignment, error)
	CreateAssignment(ctx context.Context, a Assignment) (Assignment, error)
	UpdateStatus(ctx context.Context, id int64, from, to string) error
}

// RubricReader checks rubric validity when assigning.
type RubricReader interface {
	GetRubric(ctx context.Context, id int64) (rubrics.Rubric, error)
}

// NoticeEnqueuer schedules the reviewer notification email.
type NoticeEnqueuer interface {
	EnqueueAssignmentNotice(ctx context.Context, assignmentID, reviewerID int64, callRef string) error
}

// Service handles assignment business logic.
type Service struct {
	repo    RepositoryPort
	rubrics RubricReader
	notices NoticeEnqueuer
	logger  *slog.Logger
}

// NewService builds Service instance.
func NewService(repo RepositoryPort, rubricReader RubricReader, notices NoticeEnqueuer, logger *slog.Logger) *Service {
	return &Service{repo: repo, rubrics: rubricReader, notices: notices, logger: logger}
}

// ListAssignments returns a filtered page and the total count.
func (s *Service) ListAssignments(ctx context.Context, filters ListFilters, page shared.Pagination) ([]Assignment, int, error) {
	return s.repo.ListAssignments(ctx, filters, page.PerPage, page.Offset())
}

// GetAssignment fetches an assignment by ID.
func (s *Service) GetAssignment(ctx context.Context, id int64) (Assignment, error) {
	return s.repo.GetAssignment(ctx, id)
}

// CreateAssignment validates and persists a new assignment, then queues the
// reviewer notification.
func (s *Service) CreateAssignment(ctx context.Context, a Assignment) (Assignment, error) {
	a.CallRef = strings.TrimSpace(a.CallRef)
	a.AgentName = strings.TrimSpace(a.AgentName)
	if a.CallRef == "" {
		return Assignment{}, errors.New("assignments: call reference required")
	}
	if a.ReviewerID == 0 {
		return Assignment{}, errors.New("assignments: reviewer required")
	}
	if a.DueDate.Before(time.Now().Truncate(24 * time.Hour)) {
		return Assignment{}, errors.New("assignments: due date must not be in the past")
	}
	rubric, err := s.rubrics.GetRubric(ctx, a.RubricID)
	if err != nil {
		return Assignment{}, fmt.Errorf("assignments: rubric lookup: %w", err)
	}
	if !rubric.Active {
		return Assignment{}, errors.New("assignments: rubric is archived")
	}
	created, err := s.repo.CreateAssignment(ctx, a)
	if err != nil {
		return Assignment{}, err
	}
	if s.notices != nil {
		if err := s.notices.EnqueueAssignmentNotice(ctx, created.ID, created.ReviewerID, created.CallRef); err != nil {
			// Notification is best effort; the assignment itself stands.
			if s.logger != nil {
				s.logger.Warn("enqueue assignment notice", slog.Int64("assignment_id", created.ID), slog.Any("error", err))
			}
		}
	}
	return created, nil
}

// StartReview moves a pending assignment into review.
func (s *Service) StartReview(ctx context.Context, id int64) error {
	return s.repo.UpdateStatus(ctx, id, StatusPending, StatusInReview)
}

// Complete marks an in-review assignment as done. Evaluation submission
// normally completes the assignment inside its own transaction; this covers
// administrative completion without a scorecard.
func (s *Service) Complete(ctx context.Context, id int64) error {
	return s.repo.UpdateStatus(ctx, id, StatusInReview, StatusCompleted)
}
