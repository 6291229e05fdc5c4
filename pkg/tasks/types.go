package tasks

import "time"

// Status is the lifecycle state of a task
type Status string

const (
	StatusTodo       Status = "TODO"
	StatusInProgress Status = "IN_PROGRESS"
	StatusInReview   Status = "IN_REVIEW"
	StatusCompleted  Status = "COMPLETED"
	StatusCancelled  Status = "CANCELLED"
	StatusRefused    Status = "REFUSED"
)

// ValidStatus reports whether s is a known task status
func ValidStatus(s Status) bool {
	switch s {
	case StatusTodo, StatusInProgress, StatusInReview, StatusCompleted, StatusCancelled, StatusRefused:
		return true
	}
	return false
}

// ResponseKind is an assignee's decision on a task assignment
type ResponseKind string

const (
	ResponseAccepted ResponseKind = "accepted"
	ResponseRejected ResponseKind = "rejected"
)

// Task is a unit of work, optionally attached to a project. AssigneeIDs
// is populated from the task_assignees relation on reads.
type Task struct {
	ID            int64      `json:"id"`
	Title         string     `json:"title"`
	Description   string     `json:"description,omitempty"`
	Status        Status     `json:"status"`
	DueDate       *time.Time `json:"due_date,omitempty"`
	ProjectID     *int64     `json:"project_id,omitempty"`
	CreatedBy     int64      `json:"created_by"`
	RefusalReason string     `json:"refusal_reason,omitempty"`
	AssigneeIDs   []int64    `json:"assignee_ids"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// TaskResponse records one assignee's decision. At most one exists per
// (task, user); the unique constraint is the source of truth.
type TaskResponse struct {
	ID        int64        `json:"id"`
	TaskID    int64        `json:"task_id"`
	UserID    int64        `json:"user_id"`
	Response  ResponseKind `json:"response"`
	Reason    string       `json:"reason,omitempty"`
	CreatedAt time.Time    `json:"created_at"`
}

// TaskPatch enumerates the fields a task update may change. Nil fields
// are left untouched. AssigneeIDs, when present, replaces the full set.
type TaskPatch struct {
	Title       *string    `json:"title,omitempty"`
	Description *string    `json:"description,omitempty"`
	Status      *Status    `json:"status,omitempty"`
	DueDate     *time.Time `json:"due_date,omitempty"`
	ProjectID   *int64     `json:"project_id,omitempty"`
	AssigneeIDs *[]int64   `json:"assignee_ids,omitempty"`
}

// Filter narrows a task listing
type Filter struct {
	ProjectID  *int64
	Status     Status
	AssigneeID *int64
}
