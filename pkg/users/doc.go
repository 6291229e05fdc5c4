// Package users serves profile and settings endpoints for the signed-in
// user plus admin-facing user management.
package users
