package evaluations

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/callgrade/callgrade/internal/assignments"
	"github.com/callgrade/callgrade/internal/rubrics"
	"github.com/callgrade/callgrade/internal/shared"
)

// ErrAlreadyScored indicates an assignment that already carries a submitted
// evaluation.
var ErrAlreadyScored = errors.New("evaluations: assignment already scored")

// ErrScoreOutOfRange indicates a criterion value outside the allowed scale.
var ErrScoreOutOfRange = errors.New("evaluations: score out of range")

// RepositoryPort abstracts persistence for tests.
type RepositoryPort interface {
	CreateEvaluation(ctx context.Context, eval Evaluation) (Evaluation, error)
	ListEvaluations(ctx context.Context, limit, offset int) ([]Evaluation, int, error)
	GetEvaluation(ctx context.Context, id int64) (Evaluation, error)
	EvaluationByAssignment(ctx context.Context, assignmentID int64) (int64, error)
}

// AssignmentReader resolves the assignment under review.
type AssignmentReader interface {
	GetAssignment(ctx context.Context, id int64) (assignments.Assignment, error)
}

// RubricReader resolves the rubric and criteria for scoring.
type RubricReader interface {
	GetRubric(ctx context.Context, id int64) (rubrics.Rubric, error)
}

// Service enforces scoring rules.
type Service struct {
	repo        RepositoryPort
	assignments AssignmentReader
	rubrics     RubricReader
	audit       *shared.AuditLogger
}

// NewService constructs the evaluation service.
func NewService(repo RepositoryPort, assignmentReader AssignmentReader, rubricReader RubricReader, audit *shared.AuditLogger) *Service {
	return &Service{repo: repo, assignments: assignmentReader, rubrics: rubricReader, audit: audit}
}

// ScoreInput is one criterion rating as submitted from the form.
type ScoreInput struct {
	CriterionID int64
	Value       int
	Comment     string
}

// Submit validates a full scorecard against the assignment's rubric, computes
// the weighted total and stores the evaluation. The assignment must be in
// review and each rubric criterion must be rated exactly once. The weighted
// total is the sum of weight * value / 5 over all criteria, which lands on a
// 0 to 100 scale because weights sum to 100.
func (s *Service) Submit(ctx context.Context, assignmentID, reviewerID int64, inputs []ScoreInput, notes string) (Evaluation, error) {
	a, err := s.assignments.GetAssignment(ctx, assignmentID)
	if err != nil {
		return Evaluation{}, err
	}
	if a.Status != assignments.StatusInReview {
		return Evaluation{}, fmt.Errorf("evaluations: assignment %d is %s, expected %s", a.ID, a.Status, assignments.StatusInReview)
	}
	if _, err := s.repo.EvaluationByAssignment(ctx, assignmentID); err == nil {
		return Evaluation{}, ErrAlreadyScored
	} else if !errors.Is(err, shared.ErrNotFound) {
		return Evaluation{}, err
	}

	rubric, err := s.rubrics.GetRubric(ctx, a.RubricID)
	if err != nil {
		return Evaluation{}, err
	}
	byID := make(map[int64]ScoreInput, len(inputs))
	for _, in := range inputs {
		if in.Value < MinScoreValue || in.Value > MaxScoreValue {
			return Evaluation{}, fmt.Errorf("%w: criterion %d got %d", ErrScoreOutOfRange, in.CriterionID, in.Value)
		}
		byID[in.CriterionID] = in
	}

	var total float64
	scores := make([]Score, 0, len(rubric.Criteria))
	for _, c := range rubric.Criteria {
		in, ok := byID[c.ID]
		if !ok {
			return Evaluation{}, fmt.Errorf("evaluations: criterion %q is not rated", c.Label)
		}
		total += float64(c.Weight) * float64(in.Value) / float64(MaxScoreValue)
		scores = append(scores, Score{
			CriterionID:    c.ID,
			CriterionLabel: c.Label,
			Weight:         c.Weight,
			Value:          in.Value,
			Comment:        in.Comment,
		})
	}

	eval, err := s.repo.CreateEvaluation(ctx, Evaluation{
		AssignmentID: assignmentID,
		ReviewerID:   reviewerID,
		Total:        total,
		Notes:        notes,
		Scores:       scores,
	})
	if err != nil {
		return Evaluation{}, err
	}
	eval.CallRef = a.CallRef
	eval.AgentName = a.AgentName
	eval.RubricID = a.RubricID
	eval.RubricName = rubric.Name

	if s.audit != nil {
		_ = s.audit.Record(ctx, shared.AuditLog{
			ActorID:  reviewerID,
			Action:   "evaluation.submit",
			Entity:   "evaluations",
			EntityID: strconv.FormatInt(eval.ID, 10),
			Meta:     map[string]any{"assignment_id": assignmentID, "total": total},
		})
	}
	return eval, nil
}

// ListEvaluations returns one page of evaluations with the total count.
func (s *Service) ListEvaluations(ctx context.Context, page shared.Pagination) ([]Evaluation, int, error) {
	return s.repo.ListEvaluations(ctx, page.PerPage, page.Offset())
}

// GetEvaluation fetches one evaluation including its scores.
func (s *Service) GetEvaluation(ctx context.Context, id int64) (Evaluation, error) {
	return s.repo.GetEvaluation(ctx, id)
}
