package rbac

import (
	"sort"
	"time"
)

// AdminRoleName is the reserved role name. A user holding it implicitly holds
// every permission in the catalog, and the role itself can never be deleted.
const AdminRoleName = "Admin"

// Role represents a named permission grouping.
type Role struct {
	ID          int64
	Name        string
	Description string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Protected reports whether the role is the reserved Admin role.
func (r Role) Protected() bool {
	return r.Name == AdminRoleName
}

// Permission represents an atomic capability from the seeded catalog.
type Permission struct {
	ID    int64
	Code  string
	Name  string
	Group string
}

// Subject is the authorization view of a user: identity, suspension state and
// role reference. The role reference is nullable; a dangling reference after
// a role deletion resolves to no permissions.
type Subject struct {
	UserID    int64
	Suspended bool
	RoleID    *int64
	RoleName  string
}

// RoleMember is a user shown in role membership listings.
type RoleMember struct {
	ID        int64
	GivenName string
	Email     string
	Suspended bool
}

// PermissionSet is a deduplicated set of permission codes.
type PermissionSet map[string]struct{}

// NewPermissionSet builds a set from the given codes.
func NewPermissionSet(codes ...string) PermissionSet {
	set := make(PermissionSet, len(codes))
	for _, c := range codes {
		if c == "" {
			continue
		}
		set[c] = struct{}{}
	}
	return set
}

// Has reports membership of a single code.
func (s PermissionSet) Has(code string) bool {
	_, ok := s[code]
	return ok
}

// Codes returns the codes in sorted order.
func (s PermissionSet) Codes() []string {
	codes := make([]string, 0, len(s))
	for c := range s {
		codes = append(codes, c)
	}
	sort.Strings(codes)
	return codes
}
