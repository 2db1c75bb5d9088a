package evaluations

import (
	"context"
	"errors"

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

// CreateEvaluation stores the evaluation, its per-criterion scores, and the
// assignment completion in one transaction. A half-written scorecard is never
// visible.
func (r *Repository) CreateEvaluation(ctx context.Context, eval Evaluation) (Evaluation, error) {
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		err := tx.QueryRow(ctx, `
			INSERT INTO evaluations (assignment_id, reviewer_id, total, notes, created_at)
			VALUES ($1, $2, $3, $4, NOW())
			RETURNING id, created_at`,
			eval.AssignmentID, eval.ReviewerID, eval.Total, eval.Notes).
			Scan(&eval.ID, &eval.CreatedAt)
		if err != nil {
			return err
		}
		for i := range eval.Scores {
			sc := &eval.Scores[i]
			sc.EvaluationID = eval.ID
			err := tx.QueryRow(ctx, `
				INSERT INTO evaluation_scores (evaluation_id, criterion_id, value, comment)
				VALUES ($1, $2, $3, $4)
				RETURNING id`,
				sc.EvaluationID, sc.CriterionID, sc.Value, sc.Comment).Scan(&sc.ID)
			if err != nil {
				return err
			}
		}
		tag, err := tx.Exec(ctx, `
			UPDATE assignments SET status = 'completed', updated_at = NOW()
			WHERE id = $1 AND status = 'in_review'`, eval.AssignmentID)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return shared.ErrNotFound
		}
		return nil
	})
	if err != nil {
		return Evaluation{}, err
	}
	return eval, nil
}

const selectColumns = `
	e.id, e.assignment_id, e.reviewer_id, COALESCE(u.name, ''),
	a.call_ref, a.agent_name, a.rubric_id, COALESCE(rb.name, ''),
	e.total, e.notes, e.created_at`

// ListEvaluations returns one page of evaluations, newest first, plus the
// total count.
func (r *Repository) ListEvaluations(ctx context.Context, limit, offset int) ([]Evaluation, int, error) {
	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM evaluations`).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.pool.Query(ctx, `
		SELECT `+selectColumns+`
		FROM evaluations e
		JOIN assignments a ON a.id = e.assignment_id
		LEFT JOIN users u ON u.id = e.reviewer_id
		LEFT JOIN rubrics rb ON rb.id = a.rubric_id
		ORDER BY e.created_at DESC, e.id DESC
		LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []Evaluation
	for rows.Next() {
		e, err := scanEvaluation(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, e)
	}
	return items, total, rows.Err()
}

// GetEvaluation fetches one evaluation with its scores.
func (r *Repository) GetEvaluation(ctx context.Context, id int64) (Evaluation, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+selectColumns+`
		FROM evaluations e
		JOIN assignments a ON a.id = e.assignment_id
		LEFT JOIN users u ON u.id = e.reviewer_id
		LEFT JOIN rubrics rb ON rb.id = a.rubric_id
		WHERE e.id = $1`, id)
	eval, err := scanEvaluation(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Evaluation{}, shared.ErrNotFound
		}
		return Evaluation{}, err
	}
	rows, err := r.pool.Query(ctx, `
		SELECT s.id, s.evaluation_id, s.criterion_id, COALESCE(c.label, ''), COALESCE(c.weight, 0), s.value, s.comment
		FROM evaluation_scores s
		LEFT JOIN rubric_criteria c ON c.id = s.criterion_id
		WHERE s.evaluation_id = $1
		ORDER BY s.id`, id)
	if err != nil {
		return Evaluation{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var sc Score
		if err := rows.Scan(&sc.ID, &sc.EvaluationID, &sc.CriterionID, &sc.CriterionLabel, &sc.Weight, &sc.Value, &sc.Comment); err != nil {
			return Evaluation{}, err
		}
		eval.Scores = append(eval.Scores, sc)
	}
	return eval, rows.Err()
}

// EvaluationByAssignment reports whether an assignment already has a
// submitted scorecard.
func (r *Repository) EvaluationByAssignment(ctx context.Context, assignmentID int64) (int64, error) {
	var id int64
	err := r.pool.QueryRow(ctx, `SELECT id FROM evaluations WHERE assignment_id = $1`, assignmentID).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, shared.ErrNotFound
	}
	return id, err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEvaluation(row rowScanner) (Evaluation, error) {
	var e Evaluation
	err := row.Scan(
		&e.ID, &e.AssignmentID, &e.ReviewerID, &e.ReviewerName,
		&e.CallRef, &e.AgentName, &e.RubricID, &e.RubricName,
		&e.Total, &e.Notes, &e.CreatedAt,
	)
	return e, err
}
