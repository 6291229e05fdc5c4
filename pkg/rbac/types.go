package rbac

import "time"

// Resource represents a resource type in the system
type Resource string

const (
	ResourceProjects                Resource = "projects"
	ResourceStages                  Resource = "stages"
	ResourceTasks                   Resource = "tasks"
	ResourceDocuments               Resource = "documents"
	ResourceUsers                   Resource = "users"
	ResourceProfile                 Resource = "profile"
	ResourceRoles                   Resource = "roles"
	ResourcePermissions             Resource = "permissions"
	ResourceSettings                Resource = "settings"
	ResourceActivityLogs            Resource = "activity-logs"
	ResourceNotificationPreferences Resource = "notification-preferences"
	ResourceDashboard               Resource = "dashboard"
	ResourceReminders               Resource = "reminders"
)

// Action represents an action that can be performed on a resource
type Action string

const (
	ActionCreate  Action = "create"
	ActionRead    Action = "read"
	ActionUpdate  Action = "update"
	ActionDelete  Action = "delete"
	ActionUpload  Action = "upload"
	ActionRespond Action = "respond"
	ActionTrigger Action = "trigger"
)

// Permission is the authorization unit: one resource+action pair
type Permission struct {
	ID       int64    `json:"id"`
	Name     string   `json:"name"`
	Resource Resource `json:"resource"`
	Action   Action   `json:"action"`
}

// Key returns the canonical "resource:action" form of the permission
func (p Permission) Key() string {
	return string(p.Resource) + ":" + string(p.Action)
}

// RoleRecord is a stored role that permissions are granted to. Role names
// are the normalized set {admin, manager, employee}.
type RoleRecord struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// Grant links one role to one permission. Pairs are unique.
type Grant struct {
	ID           int64     `json:"id"`
	RoleID       int64     `json:"role_id"`
	PermissionID int64     `json:"permission_id"`
	GrantedAt    time.Time `json:"granted_at"`
}

// CheckResult is the outcome of a permission check
type CheckResult struct {
	Allowed bool   `json:"allowed"`
	Reason  string `json:"reason,omitempty"`
}
