package rbac

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/callgrade/callgrade/internal/shared"
)

// Resolver computes the effective permission set of a user. It is a pure
// read; denial is expressed as a normal empty/false result, while a non-nil
// error always means the backing store could not answer. Callers must treat
// a resolution error as denial, never as "allowed".
type Resolver struct {
	store Store
	group singleflight.Group
}

// NewResolver constructs a Resolver backed by the given store.
func NewResolver(store Store) *Resolver {
	return &Resolver{store: store}
}

// Resolve returns the effective permission set for a user.
//
// Unknown users resolve to the empty set without error (deny by default).
// Users whose role is the reserved Admin role receive the entire current
// catalog, including permissions seeded after the role was assigned; the
// short-circuit lives here and nowhere else. Everyone else receives the
// union of their role's permission codes and their direct grants.
//
// Concurrent resolutions for the same user are collapsed into one store
// round trip. The result is never cached beyond the in-flight call, so a
// mutation committed before a request is always visible to it.
func (r *Resolver) Resolve(ctx context.Context, userID int64) (PermissionSet, error) {
	resultCh := r.group.DoChan(strconv.FormatInt(userID, 10), func() (any, error) {
		return r.resolve(ctx, userID)
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-resultCh:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(PermissionSet), nil
	}
}

func (r *Resolver) resolve(ctx context.Context, userID int64) (PermissionSet, error) {
	subj, err := r.store.Subject(ctx, userID)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return PermissionSet{}, nil
		}
		return nil, fmt.Errorf("rbac: resolve subject %d: %w", userID, err)
	}

	if subj.RoleName == AdminRoleName {
		catalog, err := r.store.Catalog(ctx)
		if err != nil {
			return nil, fmt.Errorf("rbac: load catalog: %w", err)
		}
		set := make(PermissionSet, len(catalog))
		for _, p := range catalog {
			set[p.Code] = struct{}{}
		}
		return set, nil
	}

	var roleCodes, grantCodes []string
	g, gctx := errgroup.WithContext(ctx)
	if subj.RoleID != nil {
		roleID := *subj.RoleID
		g.Go(func() error {
			codes, err := r.store.RolePermissionCodes(gctx, roleID)
			if err != nil {
				return fmt.Errorf("rbac: role permissions for user %d: %w", userID, err)
			}
			roleCodes = codes
			return nil
		})
	}
	g.Go(func() error {
		codes, err := r.store.DirectGrantCodes(gctx, userID)
		if err != nil {
			return fmt.Errorf("rbac: direct grants for user %d: %w", userID, err)
		}
		grantCodes = codes
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	set := make(PermissionSet, len(roleCodes)+len(grantCodes))
	for _, c := range roleCodes {
		set[c] = struct{}{}
	}
	for _, c := range grantCodes {
		set[c] = struct{}{}
	}
	return set, nil
}

// Check reports whether the user holds the given permission code. It is
// defined literally as membership in the Resolve result so the two entry
// points can never drift apart.
func (r *Resolver) Check(ctx context.Context, userID int64, code string) (bool, error) {
	set, err := r.Resolve(ctx, userID)
	if err != nil {
		return false, err
	}
	return set.Has(code), nil
}
