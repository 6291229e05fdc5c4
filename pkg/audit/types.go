package audit

import "time"

// Action is the kind of operation an activity log entry records
type Action string

const (
	ActionCreate       Action = "create"
	ActionUpdate       Action = "update"
	ActionDelete       Action = "delete"
	ActionLogin        Action = "login"
	ActionLoginFailed  Action = "login_failed"
	ActionRegister     Action = "register"
	ActionUpload       Action = "upload"
	ActionAccept       Action = "accept"
	ActionReject       Action = "reject"
	ActionRefuse       Action = "refuse"
	ActionStatusChange Action = "status_change"
	ActionGrant        Action = "grant"
	ActionRevoke       Action = "revoke"
	ActionReminder     Action = "reminder"
)

// EntityType identifies what kind of record an entry is about
type EntityType string

const (
	EntityProject      EntityType = "project"
	EntityStage        EntityType = "stage"
	EntityTask         EntityType = "task"
	EntityTaskResponse EntityType = "task_response"
	EntityDocument     EntityType = "document"
	EntityUser         EntityType = "user"
	EntityPermission   EntityType = "permission"
	EntitySettings     EntityType = "settings"
)

// Entry is one activity log record. UserID is nil for system-originated
// entries such as reminder runs.
type Entry struct {
	ID         int64                  `json:"id"`
	UserID     *int64                 `json:"user_id,omitempty"`
	Action     Action                 `json:"action"`
	EntityType EntityType             `json:"entity_type"`
	EntityID   *int64                 `json:"entity_id,omitempty"`
	Message    string                 `json:"message,omitempty"`
	RequestID  string                 `json:"request_id,omitempty"`
	Metadata   map[string]interface{} `json:"metadata,omitempty"`
	CreatedAt  time.Time              `json:"created_at"`
}

// Filter narrows an activity log listing
type Filter struct {
	UserID     *int64
	Action     Action
	EntityType EntityType
	EntityID   *int64
	Since      *time.Time
	Until      *time.Time

	Limit  int
	Offset int
}
