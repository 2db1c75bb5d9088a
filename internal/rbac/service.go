package rbac

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	"github.com/callgrade/callgrade/internal/shared"
)

// Service is the role mutation side of the rbac module. Every mutation is
// all-or-nothing: the store either commits the complete change or leaves the
// previous state intact, and the failure surfaces as a retryable
// shared.ErrMutationFailure.
type Service struct {
	store Store
	audit *shared.AuditLogger
}

// NewService constructs a Service.
func NewService(store Store, audit *shared.AuditLogger) *Service {
	return &Service{store: store, audit: audit}
}

// ListRoles returns all roles ordered by name.
func (s *Service) ListRoles(ctx context.Context) ([]Role, error) {
	return s.store.ListRoles(ctx)
}

// GetRole fetches a role by ID.
func (s *Service) GetRole(ctx context.Context, id int64) (Role, error) {
	return s.store.GetRole(ctx, id)
}

// Catalog returns the full permission catalog.
func (s *Service) Catalog(ctx context.Context) ([]Permission, error) {
	return s.store.Catalog(ctx)
}

// RolePermissionIDs returns the permission IDs currently assigned to a role.
func (s *Service) RolePermissionIDs(ctx context.Context, roleID int64) ([]int64, error) {
	return s.store.RolePermissionIDs(ctx, roleID)
}

// DirectGrantIDs returns the permission IDs currently granted to a user.
func (s *Service) DirectGrantIDs(ctx context.Context, userID int64) ([]int64, error) {
	return s.store.DirectGrantIDs(ctx, userID)
}

// CreateRole inserts a new role.
func (s *Service) CreateRole(ctx context.Context, actorID int64, name, description string) (Role, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Role{}, errors.New("rbac: role name required")
	}
	role, err := s.store.CreateRole(ctx, name, strings.TrimSpace(description))
	if err != nil {
		return Role{}, err
	}
	s.record(ctx, actorID, "role.create", role.ID, map[string]any{"name": role.Name})
	return role, nil
}

// UpdateRoleDetails updates name and description of an existing role.
func (s *Service) UpdateRoleDetails(ctx context.Context, actorID, roleID int64, name, description string) (Role, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Role{}, errors.New("rbac: role name required")
	}
	current, err := s.store.GetRole(ctx, roleID)
	if err != nil {
		return Role{}, err
	}
	if current.Protected() && name != AdminRoleName {
		return Role{}, fmt.Errorf("%w: the %s role cannot be renamed", shared.ErrRoleProtected, AdminRoleName)
	}
	role, err := s.store.UpdateRole(ctx, roleID, name, strings.TrimSpace(description))
	if err != nil {
		return Role{}, err
	}
	s.record(ctx, actorID, "role.update", role.ID, map[string]any{"name": role.Name})
	return role, nil
}

// ReplaceRolePermissions atomically swaps the complete permission set of a
// role. On failure the prior set is untouched and the returned error wraps
// shared.ErrMutationFailure so callers can offer a retry.
func (s *Service) ReplaceRolePermissions(ctx context.Context, actorID, roleID int64, permissionIDs []int64) error {
	if _, err := s.store.GetRole(ctx, roleID); err != nil {
		return err
	}
	ids := dedupeIDs(permissionIDs)
	if err := s.store.ReplaceRolePermissions(ctx, roleID, ids); err != nil {
		return fmt.Errorf("%w: role %d: %w", shared.ErrMutationFailure, roleID, err)
	}
	s.record(ctx, actorID, "role.permissions.replace", roleID, map[string]any{"count": len(ids)})
	return nil
}

// ReplaceDirectGrants atomically swaps the complete direct grant set of a
// user, independent of any role change.
func (s *Service) ReplaceDirectGrants(ctx context.Context, actorID, userID int64, permissionIDs []int64) error {
	ids := dedupeIDs(permissionIDs)
	if err := s.store.ReplaceDirectGrants(ctx, userID, ids); err != nil {
		return fmt.Errorf("%w: user %d: %w", shared.ErrMutationFailure, userID, err)
	}
	s.record(ctx, actorID, "user.grants.replace", userID, map[string]any{"count": len(ids)})
	return nil
}

// DeleteRole removes a role. The reserved Admin role is never deletable,
// regardless of caller privilege. Users still referencing the deleted role
// are left with a null role reference and resolve to no permissions until
// reassigned.
func (s *Service) DeleteRole(ctx context.Context, actorID, roleID int64) error {
	role, err := s.store.GetRole(ctx, roleID)
	if err != nil {
		return err
	}
	if role.Protected() {
		return fmt.Errorf("%w: the %s role cannot be deleted", shared.ErrRoleProtected, AdminRoleName)
	}
	if err := s.store.DeleteRole(ctx, roleID); err != nil {
		return err
	}
	s.record(ctx, actorID, "role.delete", roleID, map[string]any{"name": role.Name})
	return nil
}

// UsersByRole returns the members of a role ordered alphabetically by given
// name using locale-aware collation.
func (s *Service) UsersByRole(ctx context.Context, roleID int64) ([]RoleMember, error) {
	members, err := s.store.RoleMembers(ctx, roleID)
	if err != nil {
		return nil, err
	}
	coll := collate.New(language.English, collate.IgnoreCase)
	sort.SliceStable(members, func(i, j int) bool {
		return coll.CompareString(members[i].GivenName, members[j].GivenName) < 0
	})
	return members, nil
}

func (s *Service) record(ctx context.Context, actorID int64, action string, entityID int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   "rbac",
		EntityID: strconv.FormatInt(entityID, 10),
		Meta:     meta,
	})
}

func dedupeIDs(ids []int64) []int64 {
	seen := make(map[int64]struct{}, len(ids))
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

// ParsePermissionIDs converts submitted form values to permission IDs,
// ignoring blanks and rejecting malformed entries.
func ParsePermissionIDs(values []string) ([]int64, error) {
	ids := make([]int64, 0, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("rbac: invalid permission id %q", v)
		}
		ids = append(ids, id)
	}
	return ids, nil
}
