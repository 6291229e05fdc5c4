package rbac

import (
	"context"
	"fmt"

	"github.com/taskboard/taskboard/pkg/auth"
)

// builtinPermissions is every resource:action pair the API checks
var builtinPermissions = []Permission{
	{Name: "Create projects", Resource: ResourceProjects, Action: ActionCreate},
	{Name: "View projects", Resource: ResourceProjects, Action: ActionRead},
	{Name: "Update projects", Resource: ResourceProjects, Action: ActionUpdate},
	{Name: "Delete projects", Resource: ResourceProjects, Action: ActionDelete},

	{Name: "Create stages", Resource: ResourceStages, Action: ActionCreate},
	{Name: "Update stages", Resource: ResourceStages, Action: ActionUpdate},
	{Name: "Delete stages", Resource: ResourceStages, Action: ActionDelete},

	{Name: "Create tasks", Resource: ResourceTasks, Action: ActionCreate},
	{Name: "View tasks", Resource: ResourceTasks, Action: ActionRead},
	{Name: "Update tasks", Resource: ResourceTasks, Action: ActionUpdate},
	{Name: "Delete tasks", Resource: ResourceTasks, Action: ActionDelete},
	{Name: "Respond to task assignments", Resource: ResourceTasks, Action: ActionRespond},

	{Name: "Create documents", Resource: ResourceDocuments, Action: ActionCreate},
	{Name: "View documents", Resource: ResourceDocuments, Action: ActionRead},
	{Name: "Upload documents", Resource: ResourceDocuments, Action: ActionUpload},
	{Name: "Delete documents", Resource: ResourceDocuments, Action: ActionDelete},

	{Name: "Create users", Resource: ResourceUsers, Action: ActionCreate},
	{Name: "View users", Resource: ResourceUsers, Action: ActionRead},
	{Name: "Update users", Resource: ResourceUsers, Action: ActionUpdate},
	{Name: "Delete users", Resource: ResourceUsers, Action: ActionDelete},

	// Profile is its own resource so every role can read and edit their
	// own account without holding any grant on the users collection
	{Name: "View own profile", Resource: ResourceProfile, Action: ActionRead},
	{Name: "Update own profile", Resource: ResourceProfile, Action: ActionUpdate},

	{Name: "View roles", Resource: ResourceRoles, Action: ActionRead},
	{Name: "View permissions", Resource: ResourcePermissions, Action: ActionRead},
	{Name: "Grant permissions", Resource: ResourcePermissions, Action: ActionCreate},
	{Name: "Revoke permissions", Resource: ResourcePermissions, Action: ActionDelete},

	{Name: "View settings", Resource: ResourceSettings, Action: ActionRead},
	{Name: "Update settings", Resource: ResourceSettings, Action: ActionUpdate},

	{Name: "View notification preferences", Resource: ResourceNotificationPreferences, Action: ActionRead},
	{Name: "Update notification preferences", Resource: ResourceNotificationPreferences, Action: ActionUpdate},

	{Name: "View dashboard", Resource: ResourceDashboard, Action: ActionRead},

	// Activity-log access is an ordinary grant; the old hardcoded admin
	// bypass is gone and this row is the only thing standing in for it.
	{Name: "View activity logs", Resource: ResourceActivityLogs, Action: ActionRead},

	{Name: "Trigger reminder processing", Resource: ResourceReminders, Action: ActionTrigger},
}

type roleSeed struct {
	name        string
	description string
	grants      []string // resource:action keys; "*" grants everything
}

var builtinRoles = []roleSeed{
	{
		name:        string(auth.RoleAdmin),
		description: "Full access to every resource",
		grants:      []string{"*"},
	},
	{
		name:        string(auth.RoleManager),
		description: "Manages projects, stages and tasks",
		grants: []string{
			"projects:create", "projects:read", "projects:update", "projects:delete",
			"stages:create", "stages:update", "stages:delete",
			"tasks:create", "tasks:read", "tasks:update", "tasks:delete", "tasks:respond",
			"documents:create", "documents:read", "documents:upload", "documents:delete",
			"users:read",
			"roles:read",
			"profile:read", "profile:update",
			"settings:read", "settings:update",
			"notification-preferences:read", "notification-preferences:update",
			"dashboard:read",
			"reminders:trigger",
		},
	},
	{
		name:        string(auth.RoleEmployee),
		description: "Works on assigned tasks",
		grants: []string{
			"projects:read",
			"tasks:read", "tasks:update", "tasks:respond",
			"documents:create", "documents:read", "documents:upload",
			"profile:read", "profile:update",
			"settings:read", "settings:update",
			"notification-preferences:read", "notification-preferences:update",
			"dashboard:read",
		},
	},
}

// Seed inserts the built-in roles, permissions and grants. It is idempotent:
// every insert is ON CONFLICT DO NOTHING, so re-running on startup is safe
// and operator-added grants are never removed.
func (s *Store) Seed(ctx context.Context) error {
	for _, p := range builtinPermissions {
		if _, err := s.db.ExecContext(ctx, `
			INSERT INTO permissions (name, resource, action)
			VALUES ($1, $2, $3)
			ON CONFLICT (resource, action) DO NOTHING
		`, p.Name, p.Resource, p.Action); err != nil {
			return fmt.Errorf("failed to seed permission %s: %w", p.Key(), err)
		}
	}

	for _, r := range builtinRoles {
		if _, err := s.db.ExecContext(ctx, `
			INSERT INTO roles (name, description)
			VALUES ($1, $2)
			ON CONFLICT (name) DO NOTHING
		`, r.name, r.description); err != nil {
			return fmt.Errorf("failed to seed role %s: %w", r.name, err)
		}

		if err := s.seedGrants(ctx, r); err != nil {
			return err
		}
	}

	return nil
}

func (s *Store) seedGrants(ctx context.Context, r roleSeed) error {
	if len(r.grants) == 1 && r.grants[0] == "*" {
		_, err := s.db.ExecContext(ctx, `
			INSERT INTO role_permissions (role_id, permission_id)
			SELECT r.id, p.id FROM roles r, permissions p WHERE r.name = $1
			ON CONFLICT (role_id, permission_id) DO NOTHING
		`, r.name)
		if err != nil {
			return fmt.Errorf("failed to seed grants for role %s: %w", r.name, err)
		}
		return nil
	}

	for _, key := range r.grants {
		if _, err := s.db.ExecContext(ctx, `
			INSERT INTO role_permissions (role_id, permission_id)
			SELECT r.id, p.id
			FROM roles r, permissions p
			WHERE r.name = $1 AND p.resource || ':' || p.action = $2
			ON CONFLICT (role_id, permission_id) DO NOTHING
		`, r.name, key); err != nil {
			return fmt.Errorf("failed to seed grant %s for role %s: %w", key, r.name, err)
		}
	}
	return nil
}
