package rbac

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/callgrade/callgrade/internal/platform/db"
	"github.com/callgrade/callgrade/internal/shared"
)

// Store defines persistence operations for the rbac module.
type Store interface {
	Subject(ctx context.Context, userID int64) (Subject, error)
	Catalog(ctx context.Context) ([]Permission, error)
	RolePermissionCodes(ctx context.Context, roleID int64) ([]string, error)
	DirectGrantCodes(ctx context.Context, userID int64) ([]string, error)

	ListRoles(ctx context.Context) ([]Role, error)
	GetRole(ctx context.Context, id int64) (Role, error)
	CreateRole(ctx context.Context, name, description string) (Role, error)
	UpdateRole(ctx context.Context, id int64, name, description string) (Role, error)
	DeleteRole(ctx context.Context, id int64) error
	ReplaceRolePermissions(ctx context.Context, roleID int64, permissionIDs []int64) error
	ReplaceDirectGrants(ctx context.Context, userID int64, permissionIDs []int64) error
	RolePermissionIDs(ctx context.Context, roleID int64) ([]int64, error)
	DirectGrantIDs(ctx context.Context, userID int64) ([]int64, error)
	RoleMembers(ctx context.Context, roleID int64) ([]RoleMember, error)
}

// ErrDuplicateRole indicates a role name collision.
var ErrDuplicateRole = errors.New("rbac: role name already exists")

const pgUniqueViolation = "23505"

// PGStore implements Store using PostgreSQL.
type PGStore struct {
	pool *pgxpool.Pool
}

// NewStore constructs a PostgreSQL backed store.
func NewStore(pool *pgxpool.Pool) *PGStore {
	return &PGStore{pool: pool}
}

// Subject loads the authorization view of a user.
func (s *PGStore) Subject(ctx context.Context, userID int64) (Subject, error) {
	const query = `
		SELECT u.id, u.suspended, u.role_id, COALESCE(r.name, '')
		FROM users u
		LEFT JOIN roles r ON r.id = u.role_id
		WHERE u.id = $1`
	var subj Subject
	if err := s.pool.QueryRow(ctx, query, userID).Scan(&subj.UserID, &subj.Suspended, &subj.RoleID, &subj.RoleName); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Subject{}, shared.ErrNotFound
		}
		return Subject{}, err
	}
	return subj, nil
}

// Catalog returns every permission ordered by group then code.
func (s *PGStore) Catalog(ctx context.Context) ([]Permission, error) {
	rows, err := s.pool.Query(ctx, `SELECT id, code, name, group_name FROM permissions ORDER BY group_name, code`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var perms []Permission
	for rows.Next() {
		var p Permission
		if err := rows.Scan(&p.ID, &p.Code, &p.Name, &p.Group); err != nil {
			return nil, err
		}
		perms = append(perms, p)
	}
	return perms, rows.Err()
}

// RolePermissionCodes returns the permission codes assigned to a role.
func (s *PGStore) RolePermissionCodes(ctx context.Context, roleID int64) ([]string, error) {
	const query = `
		SELECT p.code FROM role_permissions rp
		JOIN permissions p ON p.id = rp.permission_id
		WHERE rp.role_id = $1`
	return s.queryCodes(ctx, query, roleID)
}

// DirectGrantCodes returns the permission codes granted directly to a user.
func (s *PGStore) DirectGrantCodes(ctx context.Context, userID int64) ([]string, error) {
	const query = `
		SELECT p.code FROM direct_grants dg
		JOIN permissions p ON p.id = dg.permission_id
		WHERE dg.user_id = $1`
	return s.queryCodes(ctx, query, userID)
}

// ListRoles returns all roles ordered by name.
func (s *PGStore) ListRoles(ctx context.Context) ([]Role, error) {
	rows, err := s.pool.Query(ctx, `SELECT id, name, description, created_at, updated_at FROM roles ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var roles []Role
	for rows.Next() {
		var role Role
		if err := rows.Scan(&role.ID, &role.Name, &role.Description, &role.CreatedAt, &role.UpdatedAt); err != nil {
			return nil, err
		}
		roles = append(roles, role)
	}
	return roles, rows.Err()
}

// GetRole fetches a role by ID.
func (s *PGStore) GetRole(ctx context.Context, id int64) (Role, error) {
	var role Role
	err := s.pool.QueryRow(ctx, `SELECT id, name, description, created_at, updated_at FROM roles WHERE id = $1`, id).
		Scan(&role.ID, &role.Name, &role.Description, &role.CreatedAt, &role.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Role{}, shared.ErrNotFound
		}
		return Role{}, err
	}
	return role, nil
}

// CreateRole inserts a new role.
func (s *PGStore) CreateRole(ctx context.Context, name, description string) (Role, error) {
	var role Role
	err := s.pool.QueryRow(ctx, `
		INSERT INTO roles (name, description, created_at, updated_at)
		VALUES ($1, $2, NOW(), NOW())
		RETURNING id, name, description, created_at, updated_at`, name, description).
		Scan(&role.ID, &role.Name, &role.Description, &role.CreatedAt, &role.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return Role{}, ErrDuplicateRole
		}
		return Role{}, err
	}
	return role, nil
}

// UpdateRole updates name and description of an existing role.
func (s *PGStore) UpdateRole(ctx context.Context, id int64, name, description string) (Role, error) {
	var role Role
	err := s.pool.QueryRow(ctx, `
		UPDATE roles SET name = $2, description = $3, updated_at = NOW()
		WHERE id = $1
		RETURNING id, name, description, created_at, updated_at`, id, name, description).
		Scan(&role.ID, &role.Name, &role.Description, &role.CreatedAt, &role.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Role{}, shared.ErrNotFound
		}
		if isUniqueViolation(err) {
			return Role{}, ErrDuplicateRole
		}
		return Role{}, err
	}
	return role, nil
}

// DeleteRole removes a role. Users referencing it keep a null role reference
// via ON DELETE SET NULL; assignment rows cascade.
func (s *PGStore) DeleteRole(ctx context.Context, id int64) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM roles WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// ReplaceRolePermissions swaps the full permission set of a role inside one
// transaction. A concurrent reader sees the old set or the new set, never an
// empty or partial one.
func (s *PGStore) ReplaceRolePermissions(ctx context.Context, roleID int64, permissionIDs []int64) error {
	return db.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM role_permissions WHERE role_id = $1`, roleID); err != nil {
			return fmt.Errorf("rbac: clear role permissions: %w", err)
		}
		for _, permID := range permissionIDs {
			if _, err := tx.Exec(ctx,
				`INSERT INTO role_permissions (role_id, permission_id, created_at) VALUES ($1, $2, NOW())`,
				roleID, permID); err != nil {
				return fmt.Errorf("rbac: attach permission %d: %w", permID, err)
			}
		}
		return nil
	})
}

// ReplaceDirectGrants swaps the full direct grant set of a user inside one
// transaction, with the same atomicity contract as role permissions.
func (s *PGStore) ReplaceDirectGrants(ctx context.Context, userID int64, permissionIDs []int64) error {
	return db.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM direct_grants WHERE user_id = $1`, userID); err != nil {
			return fmt.Errorf("rbac: clear direct grants: %w", err)
		}
		for _, permID := range permissionIDs {
			if _, err := tx.Exec(ctx,
				`INSERT INTO direct_grants (user_id, permission_id, created_at) VALUES ($1, $2, NOW())`,
				userID, permID); err != nil {
				return fmt.Errorf("rbac: attach grant %d: %w", permID, err)
			}
		}
		return nil
	})
}

// RolePermissionIDs returns the permission IDs currently assigned to a role.
func (s *PGStore) RolePermissionIDs(ctx context.Context, roleID int64) ([]int64, error) {
	return s.queryIDs(ctx, `SELECT permission_id FROM role_permissions WHERE role_id = $1`, roleID)
}

// DirectGrantIDs returns the permission IDs currently granted to a user.
func (s *PGStore) DirectGrantIDs(ctx context.Context, userID int64) ([]int64, error) {
	return s.queryIDs(ctx, `SELECT permission_id FROM direct_grants WHERE user_id = $1`, userID)
}

// RoleMembers returns the users holding a role. Final ordering is applied by
// the service with locale-aware collation.
func (s *PGStore) RoleMembers(ctx context.Context, roleID int64) ([]RoleMember, error) {
	rows, err := s.pool.Query(ctx, `SELECT id, name, email, suspended FROM users WHERE role_id = $1`, roleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var members []RoleMember
	for rows.Next() {
		var m RoleMember
		if err := rows.Scan(&m.ID, &m.GivenName, &m.Email, &m.Suspended); err != nil {
			return nil, err
		}
		members = append(members, m)
	}
	return members, rows.Err()
}

func (s *PGStore) queryCodes(ctx context.Context, query string, arg any) ([]string, error) {
	rows, err := s.pool.Query(ctx, query, arg)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var codes []string
	for rows.Next() {
		var code string
		if err := rows.Scan(&code); err != nil {
			return nil, err
		}
		codes = append(codes, code)
	}
	return codes, rows.Err()
}

func (s *PGStore) queryIDs(ctx context.Context, query string, arg any) ([]int64, error) {
	rows, err := s.pool.Query(ctx, query, arg)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation
}

var _ Store = (*PGStore)(nil)
