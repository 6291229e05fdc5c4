// Package middleware provides the authentication and authorization
// middleware applied to protected API routes. AuthMiddleware establishes
// identity from a bearer token; RequirePermission makes the per-route
// resource:action decision through the rbac checker.
package middleware
