package rubrics

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// RepositoryPort defines data access methods for rubrics.
type RepositoryPort interface {
	ListRubrics(ctx context.Context) ([]Rubric, error)
	GetRubric(ctx context.Context, id int64) (Rubric, error)
	CreateRubric(ctx context.Context, rubric Rubric) (Rubric, error)
	ArchiveRubric(ctx context.Context, id int64) error
}

// ErrBadWeights indicates criterion weights that do not sum to 100.
var ErrBadWeights = errors.New("rubrics: criterion weights must sum to 100")

// Service handles rubric business logic.
type Service struct {
	repo RepositoryPort
}

// NewService builds Service instance.
func NewService(repo RepositoryPort) *Service {
	return &Service{repo: repo}
}

// ListRubrics returns all rubrics.
func (s *Service) ListRubrics(ctx context.Context) ([]Rubric, error) {
	return s.repo.ListRubrics(ctx)
}

// GetRubric fetches a rubric with criteria.
func (s *Service) GetRubric(ctx context.Context, id int64) (Rubric, error) {
	return s.repo.GetRubric(ctx, id)
}

// CreateRubric validates and persists a new rubric.
func (s *Service) CreateRubric(ctx context.Context, rubric Rubric) (Rubric, error) {
	rubric.Name = strings.TrimSpace(rubric.Name)
	if rubric.Name == "" {
		return Rubric{}, errors.New("rubrics: name required")
	}
	if len(rubric.Criteria) == 0 {
		return Rubric{}, errors.New("rubrics: at least one criterion required")
	}
	total := 0
	for i := range rubric.Criteria {
		rubric.Criteria[i].Label = strings.TrimSpace(rubric.Criteria[i].Label)
		if rubric.Criteria[i].Label == "" {
			return Rubric{}, fmt.Errorf("rubrics: criterion %d has no label", i+1)
		}
		if rubric.Criteria[i].Weight <= 0 {
			return Rubric{}, fmt.Errorf("rubrics: criterion %q needs a positive weight", rubric.Criteria[i].Label)
		}
		total += rubric.Criteria[i].Weight
	}
	if total != 100 {
		return Rubric{}, ErrBadWeights
	}
	return s.repo.CreateRubric(ctx, rubric)
}

// ArchiveRubric deactivates a rubric.
func (s *Service) ArchiveRubric(ctx context.Context, id int64) error {
	return s.repo.ArchiveRubric(ctx, id)
}
