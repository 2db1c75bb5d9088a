package rubrics_test

import (
	"context"
	"errors"
	"testing"

	"github.com/callgrade/callgrade/internal/rubrics"
	"github.com/callgrade/callgrade/internal/shared"
	_ "github.com/callgrade/callgrade/testing"
)

type stubRepo struct {
	created []rubrics.Rubric
}

func (s *stubRepo) ListRubrics(ctx context.Context) ([]rubrics.Rubric, error) { return nil, nil }

func (s *stubRepo) GetRubric(ctx context.Context, id int64) (rubrics.Rubric, error) {
	return rubrics.Rubric{}, shared.ErrNotFound
}

func (s *stubRepo) CreateRubric(ctx context.Context, rubric rubrics.Rubric) (rubrics.Rubric, error) {
	rubric.ID = int64(len(s.created) + 1)
	s.created = append(s.created, rubric)
	return rubric, nil
}

func (s *stubRepo) ArchiveRubric(ctx context.Context, id int64) error { return nil }

func validRubric() rubrics.Rubric {
	return rubrics.Rubric{
		Name: "Standard Call Audit",
		Criteria: []rubrics.Criterion{
			{Label: "Greeting", Weight: 20},
			{Label: "Problem resolution", Weight: 50},
			{Label: "Closing", Weight: 30},
		},
	}
}

func TestCreateRubric(t *testing.T) {
	repo := &stubRepo{}
	svc := rubrics.NewService(repo)

	created, err := svc.CreateRubric(context.Background(), validRubric())
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if created.ID == 0 {
		t.Fatalf("expected persisted rubric to carry an ID")
	}
	if len(repo.created) != 1 {
		t.Fatalf("expected one persisted rubric, got %d", len(repo.created))
	}
}

func TestCreateRubricRejectsBadWeightSum(t *testing.T) {
	svc := rubrics.NewService(&stubRepo{})

	rubric := validRubric()
	rubric.Criteria[2].Weight = 25
	if _, err := svc.CreateRubric(context.Background(), rubric); !errors.Is(err, rubrics.ErrBadWeights) {
		t.Fatalf("expected ErrBadWeights, got %v", err)
	}
}

func TestCreateRubricRejectsNonPositiveWeight(t *testing.T) {
	svc := rubrics.NewService(&stubRepo{})

	rubric := validRubric()
	rubric.Criteria[0].Weight = 0
	rubric.Criteria[1].Weight = 70
	if _, err := svc.CreateRubric(context.Background(), rubric); err == nil {
		t.Fatalf("expected error for zero weight")
	}
}

func TestCreateRubricRequiresCriteria(t *testing.T) {
	svc := rubrics.NewService(&stubRepo{})

	rubric := validRubric()
	rubric.Criteria = nil
	if _, err := svc.CreateRubric(context.Background(), rubric); err == nil {
		t.Fatalf("expected error for empty criteria")
	}
}

func TestCreateRubricRequiresName(t *testing.T) {
	svc := rubrics.NewService(&stubRepo{})

	rubric := validRubric()
	rubric.Name = "   "
	if _, err := svc.CreateRubric(context.Background(), rubric); err == nil {
		t.Fatalf("expected error for blank name")
	}
}
