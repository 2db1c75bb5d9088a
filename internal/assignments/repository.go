package assignments

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

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

const selectColumns = `
	a.id, a.call_ref, a.agent_name, a.reviewer_id, COALESCE(u.name, ''),
	a.rubric_id, COALESCE(rb.name, ''), a.due_date, a.status,
	a.created_by, a.created_at, a.updated_at`

// ListAssignments returns one filtered page plus the total count.
func (r *Repository) ListAssignments(ctx context.Context, filters ListFilters, limit, offset int) ([]Assignment, int, error) {
	where := "WHERE 1=1"
	args := []any{}
	if filters.Status != "" {
		args = append(args, filters.Status)
		where += fmt.Sprintf(" AND a.status = $%d", len(args))
	}
	if filters.ReviewerID != 0 {
		args = append(args, filters.ReviewerID)
		where += fmt.Sprintf(" AND a.reviewer_id = $%d", len(args))
	}

	var total int
	countQuery := "SELECT COUNT(*) FROM assignments a " + where
	if err := r.pool.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	args = append(args, limit, offset)
	query := fmt.Sprintf(`
		SELECT %s FROM assignments a
		LEFT JOIN users u ON u.id = a.reviewer_id
		LEFT JOIN rubrics rb ON rb.id = a.rubric_id
		%s
		ORDER BY a.due_date, a.id
		LIMIT $%d OFFSET $%d`, selectColumns, where, len(args)-1, len(args))
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []Assignment
	for rows.Next() {
		a, err := scanAssignment(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, a)
	}
	return items, total, rows.Err()
}

// GetAssignment fetches an assignment by ID.
func (r *Repository) GetAssignment(ctx context.Context, id int64) (Assignment, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM assignments a
		LEFT JOIN users u ON u.id = a.reviewer_id
		LEFT JOIN rubrics rb ON rb.id = a.rubric_id
		WHERE a.id = $1`, selectColumns)
	row := r.pool.QueryRow(ctx, query, id)
	a, err := scanAssignment(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Assignment{}, shared.ErrNotFound
		}
		return Assignment{}, err
	}
	return a, nil
}

// CreateAssignment inserts a new assignment in pending state.
func (r *Repository) CreateAssignment(ctx context.Context, a Assignment) (Assignment, error) {
	err := r.pool.QueryRow(ctx, `
		INSERT INTO assignments (call_ref, agent_name, reviewer_id, rubric_id, due_date, status, created_by, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NOW(), NOW())
		RETURNING id, created_at, updated_at`,
		a.CallRef, a.AgentName, a.ReviewerID, a.RubricID, a.DueDate, StatusPending, a.CreatedBy).
		Scan(&a.ID, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return Assignment{}, err
	}
	a.Status = StatusPending
	return a, nil
}

// UpdateStatus transitions an assignment, guarding the expected prior state.
func (r *Repository) UpdateStatus(ctx context.Context, id int64, from, to string) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE assignments SET status = $3, updated_at = NOW()
		WHERE id = $1 AND status = $2`, id, from, to)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAssignment(row rowScanner) (Assignment, error) {
	var a Assignment
	err := row.Scan(
		&a.ID, &a.CallRef, &a.AgentName, &a.ReviewerID, &a.ReviewerName,
		&a.RubricID, &a.RubricName, &a.DueDate, &a.Status,
		&a.CreatedBy, &a.CreatedAt, &a.UpdatedAt,
	)
	return a, err
}
