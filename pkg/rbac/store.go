package rbac

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
)

var (
	ErrRoleNotFound   = errors.New("role not found")
	ErrGrantNotFound  = errors.New("role permission not found")
	ErrDuplicateGrant = errors.New("role already holds this permission")
)

// Store handles role and permission persistence
type Store struct {
	db *sql.DB
}

// NewStore creates a new RBAC store
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// EnsureSchema creates the roles, permissions and role_permissions tables.
// The unique constraint on (role_id, permission_id) makes duplicate grants
// impossible regardless of application-level checks.
func (s *Store) EnsureSchema(ctx context.Context) error {
	query := `
	CREATE TABLE IF NOT EXISTS roles (
		id BIGSERIAL PRIMARY KEY,
		name VARCHAR(50) NOT NULL UNIQUE,
		description TEXT NOT NULL DEFAULT ''
	);

	CREATE TABLE IF NOT EXISTS permissions (
		id BIGSERIAL PRIMARY KEY,
		name VARCHAR(100) NOT NULL,
		resource VARCHAR(50) NOT NULL,
		action VARCHAR(50) NOT NULL,
		UNIQUE (resource, action)
	);

	CREATE TABLE IF NOT EXISTS role_permissions (
		id BIGSERIAL PRIMARY KEY,
		role_id BIGINT NOT NULL REFERENCES roles(id) ON DELETE CASCADE,
		permission_id BIGINT NOT NULL REFERENCES permissions(id) ON DELETE CASCADE,
		granted_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
		UNIQUE (role_id, permission_id)
	);
	`
	_, err := s.db.ExecContext(ctx, query)
	return err
}

// ListRoles lists all roles ordered by name
func (s *Store) ListRoles(ctx context.Context) ([]RoleRecord, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name, description FROM roles ORDER BY name ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list roles: %w", err)
	}
	defer rows.Close()

	var roles []RoleRecord
	for rows.Next() {
		var r RoleRecord
		if err := rows.Scan(&r.ID, &r.Name, &r.Description); err != nil {
			return nil, fmt.Errorf("failed to scan role: %w", err)
		}
		roles = append(roles, r)
	}
	return roles, rows.Err()
}

// GetRoleByName retrieves a role by its normalized name
func (s *Store) GetRoleByName(ctx context.Context, name string) (*RoleRecord, error) {
	var r RoleRecord
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, description FROM roles WHERE name = $1`, name,
	).Scan(&r.ID, &r.Name, &r.Description)
	if err == sql.ErrNoRows {
		return nil, ErrRoleNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get role: %w", err)
	}
	return &r, nil
}

// ListPermissions lists all permissions ordered by resource then action
func (s *Store) ListPermissions(ctx context.Context) ([]Permission, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, resource, action FROM permissions ORDER BY resource ASC, action ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list permissions: %w", err)
	}
	defer rows.Close()

	var perms []Permission
	for rows.Next() {
		var p Permission
		if err := rows.Scan(&p.ID, &p.Name, &p.Resource, &p.Action); err != nil {
			return nil, fmt.Errorf("failed to scan permission: %w", err)
		}
		perms = append(perms, p)
	}
	return perms, rows.Err()
}

// PermissionsForRole returns the permission set granted to a role name
func (s *Store) PermissionsForRole(ctx context.Context, roleName string) ([]Permission, error) {
	query := `
		SELECT p.id, p.name, p.resource, p.action
		FROM permissions p
		JOIN role_permissions rp ON rp.permission_id = p.id
		JOIN roles r ON r.id = rp.role_id
		WHERE r.name = $1
		ORDER BY p.resource ASC, p.action ASC
	`

	rows, err := s.db.QueryContext(ctx, query, roleName)
	if err != nil {
		return nil, fmt.Errorf("failed to get permissions for role: %w", err)
	}
	defer rows.Close()

	var perms []Permission
	for rows.Next() {
		var p Permission
		if err := rows.Scan(&p.ID, &p.Name, &p.Resource, &p.Action); err != nil {
			return nil, fmt.Errorf("failed to scan permission: %w", err)
		}
		perms = append(perms, p)
	}
	return perms, rows.Err()
}

// ListGrants lists all role-permission links
func (s *Store) ListGrants(ctx context.Context) ([]Grant, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, role_id, permission_id, granted_at FROM role_permissions ORDER BY id ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list role permissions: %w", err)
	}
	defer rows.Close()

	var grants []Grant
	for rows.Next() {
		var g Grant
		if err := rows.Scan(&g.ID, &g.RoleID, &g.PermissionID, &g.GrantedAt); err != nil {
			return nil, fmt.Errorf("failed to scan role permission: %w", err)
		}
		grants = append(grants, g)
	}
	return grants, rows.Err()
}

// CreateGrant links a permission to a role
func (s *Store) CreateGrant(ctx context.Context, roleID, permissionID int64) (*Grant, error) {
	grant := &Grant{RoleID: roleID, PermissionID: permissionID, GrantedAt: time.Now()}

	err := s.db.QueryRowContext(ctx, `
		INSERT INTO role_permissions (role_id, permission_id, granted_at)
		VALUES ($1, $2, $3)
		RETURNING id
	`, roleID, permissionID, grant.GrantedAt).Scan(&grant.ID)

	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrDuplicateGrant
		}
		return nil, fmt.Errorf("failed to create role permission: %w", err)
	}
	return grant, nil
}

// DeleteGrant removes a role-permission link
func (s *Store) DeleteGrant(ctx context.Context, id int64) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM role_permissions WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete role permission: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to delete role permission: %w", err)
	}
	if affected == 0 {
		return ErrGrantNotFound
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	return false
}
