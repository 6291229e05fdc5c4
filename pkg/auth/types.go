package auth

import (
	"strings"
	"time"
)

// User represents an account that can log in and be assigned work
type User struct {
	ID           int64     `json:"id"`
	Name         string    `json:"name"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"` // Never expose the hash
	Role         string    `json:"role"`
	Phone        string    `json:"phone,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Role is the normalized role used by every authorization decision.
// Stored role strings (including legacy synonyms) are collapsed onto
// exactly one of these values by MapRole.
type Role string

const (
	RoleAdmin    Role = "admin"
	RoleManager  Role = "manager"
	RoleEmployee Role = "employee"
)

// Stored role strings written by the registration and admin paths.
const (
	StoredRoleAdmin    = "ADMIN"
	StoredRoleManager  = "PROJECT_MANAGER"
	StoredRoleEmployee = "EMPLOYEE"
)

// MapRole collapses a stored role string onto a normalized Role. It is
// total: any unknown value maps to employee, the most restrictive set.
func MapRole(stored string) Role {
	switch strings.ToLower(strings.TrimSpace(stored)) {
	case "admin", "administrator", "superadmin":
		return RoleAdmin
	case "manager", "project_manager", "project-manager", "pm":
		return RoleManager
	case "employee", "member", "user", "staff":
		return RoleEmployee
	default:
		return RoleEmployee
	}
}

// Context holds the authenticated identity for one request
type Context struct {
	UserID int64
	Email  string
	Role   Role
	// StoredRole is the raw role string from the token, kept for display
	StoredRole string
}

// IsAdmin reports whether the authenticated user has the admin role
func (c *Context) IsAdmin() bool {
	return c.Role == RoleAdmin
}
