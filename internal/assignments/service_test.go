package assignments_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/callgrade/callgrade/internal/assignments"
	"github.com/callgrade/callgrade/internal/rubrics"
	"github.com/callgrade/callgrade/internal/shared"
	_ "github.com/callgrade/callgrade/testing"
)

type stubRepo struct {
	created     []assignments.Assignment
	transitions [][2]string
}

func (s *stubRepo) ListAssignments(ctx context.Context, filters assignments.ListFilters, limit, offset int) ([]assignments.Assignment, int, error) {
	return nil, 0, nil
}

func (s *stubRepo) GetAssignment(ctx context.Context, id int64) (assignments.Assignment, error) {
	return assignments.Assignment{}, shared.ErrNotFound
}

func (s *stubRepo) CreateAssignment(ctx context.Context, a assignments.Assignment) (assignments.Assignment, error) {
	a.ID = int64(len(s.created) + 1)
	s.created = append(s.created, a)
	return a, nil
}

func (s *stubRepo) UpdateStatus(ctx context.Context, id int64, from, to string) error {
	s.transitions = append(s.transitions, [2]string{from, to})
	return nil
}

type stubRubrics struct {
	rubric rubrics.Rubric
	err    error
}

func (s *stubRubrics) GetRubric(ctx context.Context, id int64) (rubrics.Rubric, error) {
	if s.err != nil {
		return rubrics.Rubric{}, s.err
	}
	return s.rubric, nil
}

type stubNotices struct {
	enqueued []int64
	err      error
}

func (s *stubNotices) EnqueueAssignmentNotice(ctx context.Context, assignmentID, reviewerID int64, callRef string) error {
	if s.err != nil {
		return s.err
	}
	s.enqueued = append(s.enqueued, assignmentID)
	return nil
}

func validAssignment() assignments.Assignment {
	return assignments.Assignment{
		CallRef:    "CALL-2026-0042",
		AgentName:  "Dana",
		ReviewerID: 7,
		RubricID:   1,
		DueDate:    time.Now().Add(72 * time.Hour),
		CreatedBy:  1,
	}
}

func TestCreateAssignmentQueuesNotice(t *testing.T) {
	repo := &stubRepo{}
	notices := &stubNotices{}
	svc := assignments.NewService(repo, &stubRubrics{rubric: rubrics.Rubric{ID: 1, Active: true}}, notices, nil)

	created, err := svc.CreateAssignment(context.Background(), validAssignment())
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if created.ID == 0 {
		t.Fatalf("expected persisted assignment to carry an ID")
	}
	if len(notices.enqueued) != 1 || notices.enqueued[0] != created.ID {
		t.Fatalf("expected notice for assignment %d, got %v", created.ID, notices.enqueued)
	}
}

func TestCreateAssignmentNoticeFailureIsBestEffort(t *testing.T) {
	repo := &stubRepo{}
	svc := assignments.NewService(repo, &stubRubrics{rubric: rubrics.Rubric{ID: 1, Active: true}}, &stubNotices{err: errors.New("broker down")}, nil)

	if _, err := svc.CreateAssignment(context.Background(), validAssignment()); err != nil {
		t.Fatalf("assignment must stand even when the notice fails: %v", err)
	}
	if len(repo.created) != 1 {
		t.Fatalf("expected one persisted assignment")
	}
}

func TestCreateAssignmentRejectsPastDueDate(t *testing.T) {
	svc := assignments.NewService(&stubRepo{}, &stubRubrics{rubric: rubrics.Rubric{ID: 1, Active: true}}, nil, nil)

	a := validAssignment()
	a.DueDate = time.Now().Add(-48 * time.Hour)
	if _, err := svc.CreateAssignment(context.Background(), a); err == nil {
		t.Fatalf("expected error for past due date")
	}
}

func TestCreateAssignmentRejectsArchivedRubric(t *testing.T) {
	svc := assignments.NewService(&stubRepo{}, &stubRubrics{rubric: rubrics.Rubric{ID: 1, Active: false}}, nil, nil)

	if _, err := svc.CreateAssignment(context.Background(), validAssignment()); err == nil {
		t.Fatalf("expected error for archived rubric")
	}
}

func TestCreateAssignmentRejectsMissingRubric(t *testing.T) {
	svc := assignments.NewService(&stubRepo{}, &stubRubrics{err: shared.ErrNotFound}, nil, nil)

	if _, err := svc.CreateAssignment(context.Background(), validAssignment()); err == nil {
		t.Fatalf("expected error for unknown rubric")
	}
}

func TestStatusTransitions(t *testing.T) {
	repo := &stubRepo{}
	svc := assignments.NewService(repo, &stubRubrics{}, nil, nil)

	if err := svc.StartReview(context.Background(), 1); err != nil {
		t.Fatalf("start review: %v", err)
	}
	if err := svc.Complete(context.Background(), 1); err != nil {
		t.Fatalf("complete: %v", err)
	}
	want := [][2]string{
		{assignments.StatusPending, assignments.StatusInReview},
		{assignments.StatusInReview, assignments.StatusCompleted},
	}
	if len(repo.transitions) != len(want) {
		t.Fatalf("expected %d transitions, got %d", len(want), len(repo.transitions))
	}
	for i, tr := range want {
		if repo.transitions[i] != tr {
			t.Fatalf("transition %d: expected %v, got %v", i, tr, repo.transitions[i])
		}
	}
}
