package projects

import "time"

// Status is the lifecycle state of a project
type Status string

const (
	StatusPlanning   Status = "PLANNING"
	StatusInProgress Status = "IN_PROGRESS"
	StatusOnHold     Status = "ON_HOLD"
	StatusCompleted  Status = "COMPLETED"
	StatusCancelled  Status = "CANCELLED"
)

// ValidStatus reports whether s is a known project status
func ValidStatus(s Status) bool {
	switch s {
	case StatusPlanning, StatusInProgress, StatusOnHold, StatusCompleted, StatusCancelled:
		return true
	}
	return false
}

// Project is a container for stages and tasks. ManagerName is a joined
// display field populated on reads, never written directly.
type Project struct {
	ID          int64     `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	Status      Status    `json:"status"`
	ManagerID   *int64    `json:"manager_id,omitempty"`
	ManagerName string    `json:"manager_name,omitempty"`
	CreatedBy   int64     `json:"created_by"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Stage is an ordered phase within a project. Dependencies lists the ids
// of stages that must finish first.
type Stage struct {
	ID           int64     `json:"id"`
	ProjectID    int64     `json:"project_id"`
	Name         string    `json:"name"`
	StageOrder   int       `json:"order"`
	DurationDays int       `json:"duration_days"`
	Status       Status    `json:"status"`
	Dependencies []int64   `json:"dependencies"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// ProjectPatch enumerates the fields a project update may change. Nil
// fields are left untouched.
type ProjectPatch struct {
	Title       *string `json:"title,omitempty"`
	Description *string `json:"description,omitempty"`
	Status      *Status `json:"status,omitempty"`
	ManagerID   *int64  `json:"manager_id,omitempty"`
}

// StagePatch enumerates the fields a stage update may change
type StagePatch struct {
	Name         *string  `json:"name,omitempty"`
	StageOrder   *int     `json:"order,omitempty"`
	DurationDays *int     `json:"duration_days,omitempty"`
	Status       *Status  `json:"status,omitempty"`
	Dependencies *[]int64 `json:"dependencies,omitempty"`
}
