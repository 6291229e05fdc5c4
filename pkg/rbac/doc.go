// Package rbac implements role-based authorization. Every protected
// endpoint maps to one resource:action permission, and a role holds a
// permission iff a role_permissions row links them. There are no
// hardcoded role shortcuts; the admin role is powerful only because the
// seed grants it every permission.
package rbac
