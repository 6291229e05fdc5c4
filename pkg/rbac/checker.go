package rbac

import (
	"context"
	"fmt"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/taskboard/taskboard/pkg/auth"
)

// Checker evaluates whether a role holds a permission
type Checker interface {
	// Check reports whether role holds resource:action
	Check(ctx context.Context, role auth.Role, resource Resource, action Action) (*CheckResult, error)

	// Invalidate drops any cached permission sets (call after grant changes)
	Invalidate()
}

type cacheEntry struct {
	perms     map[string]struct{}
	expiresAt time.Time
}

// PermissionChecker implements Checker against the role_permissions table
// with a small in-process LRU in front of it. There is one cache entry per
// role, so the LRU stays tiny; the TTL bounds staleness after grant edits
// made by another instance.
type PermissionChecker struct {
	store    *Store
	cache    *lru.Cache[string, cacheEntry]
	cacheTTL time.Duration
}

// NewPermissionChecker creates a checker. A cacheTTL of zero disables caching.
func NewPermissionChecker(store *Store, cacheTTL time.Duration) (*PermissionChecker, error) {
	cache, err := lru.New[string, cacheEntry](16)
	if err != nil {
		return nil, fmt.Errorf("failed to create permission cache: %w", err)
	}
	return &PermissionChecker{
		store:    store,
		cache:    cache,
		cacheTTL: cacheTTL,
	}, nil
}

// Check reports whether the role holds the resource:action permission.
// Permission is granted iff a matching role_permissions row exists; there
// are no hardcoded role shortcuts.
func (pc *PermissionChecker) Check(ctx context.Context, role auth.Role, resource Resource, action Action) (*CheckResult, error) {
	perms, err := pc.permissionSet(ctx, string(role))
	if err != nil {
		return nil, err
	}

	key := string(resource) + ":" + string(action)
	if _, ok := perms[key]; ok {
		return &CheckResult{Allowed: true}, nil
	}
	return &CheckResult{
		Allowed: false,
		Reason:  fmt.Sprintf("role %q does not hold %s", role, key),
	}, nil
}

// Invalidate drops all cached permission sets
func (pc *PermissionChecker) Invalidate() {
	pc.cache.Purge()
}

func (pc *PermissionChecker) permissionSet(ctx context.Context, roleName string) (map[string]struct{}, error) {
	if pc.cacheTTL > 0 {
		if entry, ok := pc.cache.Get(roleName); ok && entry.expiresAt.After(time.Now()) {
			return entry.perms, nil
		}
	}

	perms, err := pc.store.PermissionsForRole(ctx, roleName)
	if err != nil {
		return nil, fmt.Errorf("failed to load permissions for role %q: %w", roleName, err)
	}

	set := make(map[string]struct{}, len(perms))
	for _, p := range perms {
		set[p.Key()] = struct{}{}
	}

	if pc.cacheTTL > 0 {
		pc.cache.Add(roleName, cacheEntry{perms: set, expiresAt: time.Now().Add(pc.cacheTTL)})
	}

	return set, nil
}
