package rubrics

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/callgrade/callgrade/internal/platform/db"
	"github.com/callgrade/callgrade/internal/shared"
)

// Repository provides PostgreSQL backed persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// ListRubrics returns all rubrics without criteria, newest first.
func (r *Repository) ListRubrics(ctx context.Context) ([]Rubric, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, name, description, active, created_at, updated_at
		FROM rubrics ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var rubrics []Rubric
	for rows.Next() {
		var rb Rubric
		if err := rows.Scan(&rb.ID, &rb.Name, &rb.Description, &rb.Active, &rb.CreatedAt, &rb.UpdatedAt); err != nil {
			return nil, err
		}
		rubrics = append(rubrics, rb)
	}
	return rubrics, rows.Err()
}

// GetRubric fetches a rubric and its criteria.
func (r *Repository) GetRubric(ctx context.Context, id int64) (Rubric, error) {
	var rb Rubric
	err := r.pool.QueryRow(ctx, `
		SELECT id, name, description, active, created_at, updated_at
		FROM rubrics WHERE id = $1`, id).
		Scan(&rb.ID, &rb.Name, &rb.Description, &rb.Active, &rb.CreatedAt, &rb.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Rubric{}, shared.ErrNotFound
		}
		return Rubric{}, err
	}
	rows, err := r.pool.Query(ctx, `
		SELECT id, rubric_id, label, weight FROM rubric_criteria
		WHERE rubric_id = $1 ORDER BY id`, id)
	if err != nil {
		return Rubric{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var c Criterion
		if err := rows.Scan(&c.ID, &c.RubricID, &c.Label, &c.Weight); err != nil {
			return Rubric{}, err
		}
		rb.Criteria = append(rb.Criteria, c)
	}
	return rb, rows.Err()
}

// CreateRubric inserts a rubric and its criteria in one transaction.
func (r *Repository) CreateRubric(ctx context.Context, rubric Rubric) (Rubric, error) {
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		if err := tx.QueryRow(ctx, `
			INSERT INTO rubrics (name, description, active, created_at, updated_at)
			VALUES ($1, $2, TRUE, NOW(), NOW())
			RETURNING id, created_at, updated_at`, rubric.Name, rubric.Description).
			Scan(&rubric.ID, &rubric.CreatedAt, &rubric.UpdatedAt); err != nil {
			return fmt.Errorf("rubrics: insert rubric: %w", err)
		}
		rubric.Active = true
		for i := range rubric.Criteria {
			c := &rubric.Criteria[i]
			c.RubricID = rubric.ID
			if err := tx.QueryRow(ctx, `
				INSERT INTO rubric_criteria (rubric_id, label, weight)
				VALUES ($1, $2, $3)
				RETURNING id`, c.RubricID, c.Label, c.Weight).Scan(&c.ID); err != nil {
				return fmt.Errorf("rubrics: insert criterion: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return Rubric{}, err
	}
	return rubric, nil
}

// ArchiveRubric deactivates a rubric so it stops appearing for new
// assignments. Existing assignments keep referencing it.
func (r *Repository) ArchiveRubric(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, `UPDATE rubrics SET active = FALSE, updated_at = NOW() WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}
