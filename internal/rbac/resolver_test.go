package rbac_test

import (
	"context"
	"errors"
	"testing"

	"github.com/callgrade/callgrade/internal/rbac"
	"github.com/callgrade/callgrade/internal/shared"
	_ "github.com/callgrade/callgrade/testing"
)

type fakeStore struct {
	subjects map[int64]rbac.Subject
	catalog  []rbac.Permission
	roles    map[int64][]string
	grants   map[int64][]string

	subjectErr error
	roleErr    error
	grantErr   error
	catalogErr error
}

func (f *fakeStore) Subject(ctx context.Context, userID int64) (rbac.Subject, error) {
	if f.subjectErr != nil {
		return rbac.Subject{}, f.subjectErr
	}
	subj, ok := f.subjects[userID]
	if !ok {
		return rbac.Subject{}, shared.ErrNotFound
	}
	return subj, nil
}

func (f *fakeStore) Catalog(ctx context.Context) ([]rbac.Permission, error) {
	if f.catalogErr != nil {
		return nil, f.catalogErr
	}
	return f.catalog, nil
}

func (f *fakeStore) RolePermissionCodes(ctx context.Context, roleID int64) ([]string, error) {
	if f.roleErr != nil {
		return nil, f.roleErr
	}
	return f.roles[roleID], nil
}

func (f *fakeStore) DirectGrantCodes(ctx context.Context, userID int64) ([]string, error) {
	if f.grantErr != nil {
		return nil, f.grantErr
	}
	return f.grants[userID], nil
}

func (f *fakeStore) ListRoles(ctx context.Context) ([]rbac.Role, error) { return nil, nil }
func (f *fakeStore) GetRole(ctx context.Context, id int64) (rbac.Role, error) {
	return rbac.Role{}, shared.ErrNotFound
}
func (f *fakeStore) CreateRole(ctx context.Context, name, description string) (rbac.Role, error) {
	return rbac.Role{}, nil
}
func (f *fakeStore) UpdateRole(ctx context.Context, id int64, name, description string) (rbac.Role, error) {
	return rbac.Role{}, nil
}
func (f *fakeStore) DeleteRole(ctx context.Context, id int64) error { return nil }
func (f *fakeStore) ReplaceRolePermissions(ctx context.Context, roleID int64, permissionIDs []int64) error {
	return nil
}
func (f *fakeStore) ReplaceDirectGrants(ctx context.Context, userID int64, permissionIDs []int64) error {
	return nil
}
func (f *fakeStore) RolePermissionIDs(ctx context.Context, roleID int64) ([]int64, error) {
	return nil, nil
}
func (f *fakeStore) DirectGrantIDs(ctx context.Context, userID int64) ([]int64, error) {
	return nil, nil
}
func (f *fakeStore) RoleMembers(ctx context.Context, roleID int64) ([]rbac.RoleMember, error) {
	return nil, nil
}

func roleID(id int64) *int64 { return &id }

func TestResolveAdminGetsFullCatalog(t *testing.T) {
	store := &fakeStore{
		subjects: map[int64]rbac.Subject{
			1: {UserID: 1, RoleID: roleID(10), RoleName: rbac.AdminRoleName},
		},
		catalog: []rbac.Permission{
			{ID: 1, Code: "users.view"},
			{ID: 2, Code: "rubrics.edit"},
		},
		// Explicit assignments are ignored for admins.
		roles: map[int64][]string{10: {"users.view"}},
	}
	resolver := rbac.NewResolver(store)

	set, err := resolver.Resolve(context.Background(), 1)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if len(set) != 2 {
		t.Fatalf("expected full catalog (2 codes), got %d", len(set))
	}
	if !set.Has("rubrics.edit") {
		t.Fatalf("admin should hold every catalog code")
	}
}

func TestResolveAdminSeesLateSeededPermissions(t *testing.T) {
	store := &fakeStore{
		subjects: map[int64]rbac.Subject{
			1: {UserID: 1, RoleID: roleID(10), RoleName: rbac.AdminRoleName},
		},
		catalog: []rbac.Permission{{ID: 1, Code: "users.view"}},
	}
	resolver := rbac.NewResolver(store)

	set, err := resolver.Resolve(context.Background(), 1)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if len(set) != 1 {
		t.Fatalf("expected 1 code, got %d", len(set))
	}

	// A permission seeded after the role was assigned is held immediately.
	store.catalog = append(store.catalog, rbac.Permission{ID: 2, Code: "reports.export"})
	set, err = resolver.Resolve(context.Background(), 1)
	if err != nil {
		t.Fatalf("resolve after seed: %v", err)
	}
	if !set.Has("reports.export") {
		t.Fatalf("admin should hold permissions seeded after role assignment")
	}
}

func TestResolveUnionOfRoleAndGrants(t *testing.T) {
	store := &fakeStore{
		subjects: map[int64]rbac.Subject{
			2: {UserID: 2, RoleID: roleID(20), RoleName: "QA Analyst"},
		},
		roles:  map[int64][]string{20: {"rubrics.view", "evaluations.score"}},
		grants: map[int64][]string{2: {"users.view", "rubrics.view"}},
	}
	resolver := rbac.NewResolver(store)

	set, err := resolver.Resolve(context.Background(), 2)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	want := []string{"rubrics.view", "evaluations.score", "users.view"}
	if len(set) != len(want) {
		t.Fatalf("expected deduplicated union of %d codes, got %d", len(want), len(set))
	}
	for _, code := range want {
		if !set.Has(code) {
			t.Fatalf("expected %q in effective set", code)
		}
	}
}

func TestResolveNoRoleGrantsOnly(t *testing.T) {
	store := &fakeStore{
		subjects: map[int64]rbac.Subject{
			3: {UserID: 3},
		},
		grants: map[int64][]string{3: {"assignments.view"}},
	}
	resolver := rbac.NewResolver(store)

	set, err := resolver.Resolve(context.Background(), 3)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if len(set) != 1 || !set.Has("assignments.view") {
		t.Fatalf("expected only the direct grant, got %v", set.Codes())
	}
}

func TestResolveUnknownUserEmptySet(t *testing.T) {
	resolver := rbac.NewResolver(&fakeStore{})

	set, err := resolver.Resolve(context.Background(), 99)
	if err != nil {
		t.Fatalf("unknown user must not error: %v", err)
	}
	if len(set) != 0 {
		t.Fatalf("unknown user must resolve to empty set, got %v", set.Codes())
	}
}

func TestResolveStoreErrorPropagates(t *testing.T) {
	boom := errors.New("connection refused")
	store := &fakeStore{
		subjects: map[int64]rbac.Subject{
			4: {UserID: 4, RoleID: roleID(20)},
		},
		grantErr: boom,
	}
	resolver := rbac.NewResolver(store)

	if _, err := resolver.Resolve(context.Background(), 4); !errors.Is(err, boom) {
		t.Fatalf("expected store error to propagate, got %v", err)
	}
}

func TestCheckMatchesResolve(t *testing.T) {
	store := &fakeStore{
		subjects: map[int64]rbac.Subject{
			2: {UserID: 2, RoleID: roleID(20), RoleName: "QA Analyst"},
		},
		roles:  map[int64][]string{20: {"rubrics.view"}},
		grants: map[int64][]string{2: {"users.view"}},
	}
	resolver := rbac.NewResolver(store)

	set, err := resolver.Resolve(context.Background(), 2)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	for _, code := range []string{"rubrics.view", "users.view", "roles.edit", ""} {
		ok, err := resolver.Check(context.Background(), 2, code)
		if err != nil {
			t.Fatalf("check %q: %v", code, err)
		}
		if ok != set.Has(code) {
			t.Fatalf("Check(%q)=%v disagrees with Resolve membership %v", code, ok, set.Has(code))
		}
	}
}
