package rbac_test

import (
	"context"
	"errors"
	"testing"

	"github.com/callgrade/callgrade/internal/rbac"
	"github.com/callgrade/callgrade/internal/shared"
	_ "github.com/callgrade/callgrade/testing"
)

// mutationStore tracks role and permission state in memory so tests can
// observe exactly what a failed mutation left behind.
type mutationStore struct {
	fakeStore
	rolesByID   map[int64]rbac.Role
	rolePerms   map[int64][]int64
	userGrants  map[int64][]int64
	replaceErr  error
	deleteCalls int
}

func (m *mutationStore) GetRole(ctx context.Context, id int64) (rbac.Role, error) {
	role, ok := m.rolesByID[id]
	if !ok {
		return rbac.Role{}, shared.ErrNotFound
	}
	return role, nil
}

func (m *mutationStore) DeleteRole(ctx context.Context, id int64) error {
	m.deleteCalls++
	delete(m.rolesByID, id)
	return nil
}

func (m *mutationStore) ReplaceRolePermissions(ctx context.Context, roleID int64, permissionIDs []int64) error {
	if m.replaceErr != nil {
		return m.replaceErr
	}
	m.rolePerms[roleID] = permissionIDs
	return nil
}

func (m *mutationStore) ReplaceDirectGrants(ctx context.Context, userID int64, permissionIDs []int64) error {
	if m.replaceErr != nil {
		return m.replaceErr
	}
	m.userGrants[userID] = permissionIDs
	return nil
}

func newMutationStore() *mutationStore {
	return &mutationStore{
		rolesByID: map[int64]rbac.Role{
			1: {ID: 1, Name: rbac.AdminRoleName},
			2: {ID: 2, Name: "QA Analyst"},
		},
		rolePerms:  map[int64][]int64{2: {1, 2, 3}},
		userGrants: map[int64][]int64{7: {4}},
	}
}

func TestDeleteRoleProtectsAdmin(t *testing.T) {
	store := newMutationStore()
	svc := rbac.NewService(store, nil)

	err := svc.DeleteRole(context.Background(), 99, 1)
	if !errors.Is(err, shared.ErrRoleProtected) {
		t.Fatalf("expected ErrRoleProtected, got %v", err)
	}
	if store.deleteCalls != 0 {
		t.Fatalf("store must not be touched when the role is protected")
	}
	if _, ok := store.rolesByID[1]; !ok {
		t.Fatalf("Admin role must still exist")
	}
}

func TestDeleteRoleRemovesOrdinaryRole(t *testing.T) {
	store := newMutationStore()
	svc := rbac.NewService(store, nil)

	if err := svc.DeleteRole(context.Background(), 99, 2); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, ok := store.rolesByID[2]; ok {
		t.Fatalf("role should be deleted")
	}
}

func TestUpdateRoleDetailsProtectsAdminName(t *testing.T) {
	store := newMutationStore()
	svc := rbac.NewService(store, nil)

	_, err := svc.UpdateRoleDetails(context.Background(), 99, 1, "Superuser", "")
	if !errors.Is(err, shared.ErrRoleProtected) {
		t.Fatalf("expected ErrRoleProtected on rename, got %v", err)
	}
	// Updating the description while keeping the reserved name is fine.
	if _, err := svc.UpdateRoleDetails(context.Background(), 99, 1, rbac.AdminRoleName, "Full access"); err != nil {
		t.Fatalf("description update: %v", err)
	}
}

func TestReplaceRolePermissionsDeduplicates(t *testing.T) {
	store := newMutationStore()
	svc := rbac.NewService(store, nil)

	if err := svc.ReplaceRolePermissions(context.Background(), 99, 2, []int64{5, 5, 6, 5}); err != nil {
		t.Fatalf("replace: %v", err)
	}
	got := store.rolePerms[2]
	if len(got) != 2 || got[0] != 5 || got[1] != 6 {
		t.Fatalf("expected deduplicated [5 6], got %v", got)
	}
}

func TestReplaceRolePermissionsFailureKeepsPriorSet(t *testing.T) {
	store := newMutationStore()
	store.replaceErr = errors.New("deadlock detected")
	svc := rbac.NewService(store, nil)

	err := svc.ReplaceRolePermissions(context.Background(), 99, 2, []int64{8, 9})
	if !errors.Is(err, shared.ErrMutationFailure) {
		t.Fatalf("expected ErrMutationFailure, got %v", err)
	}
	got := store.rolePerms[2]
	if len(got) != 3 {
		t.Fatalf("prior permission set must be untouched after failure, got %v", got)
	}
}

func TestReplaceDirectGrantsFailureKeepsPriorSet(t *testing.T) {
	store := newMutationStore()
	store.replaceErr = errors.New("connection reset")
	svc := rbac.NewService(store, nil)

	err := svc.ReplaceDirectGrants(context.Background(), 99, 7, []int64{1, 2})
	if !errors.Is(err, shared.ErrMutationFailure) {
		t.Fatalf("expected ErrMutationFailure, got %v", err)
	}
	if got := store.userGrants[7]; len(got) != 1 || got[0] != 4 {
		t.Fatalf("prior grants must be untouched after failure, got %v", got)
	}
}

func TestReplaceDirectGrantsEmptySetAllowed(t *testing.T) {
	store := newMutationStore()
	svc := rbac.NewService(store, nil)

	if err := svc.ReplaceDirectGrants(context.Background(), 99, 7, nil); err != nil {
		t.Fatalf("replace with empty set: %v", err)
	}
	if got := store.userGrants[7]; len(got) != 0 {
		t.Fatalf("expected all grants removed, got %v", got)
	}
}

func TestParsePermissionIDs(t *testing.T) {
	ids, err := rbac.ParsePermissionIDs([]string{"3", "1", "3"})
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(ids) != 3 {
		t.Fatalf("parse keeps raw values for the service to dedupe, got %v", ids)
	}
	if _, err := rbac.ParsePermissionIDs([]string{"abc"}); err == nil {
		t.Fatalf("expected error for non-numeric id")
	}
}
