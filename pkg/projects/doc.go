// Package projects implements project and stage CRUD. Partial updates go
// through typed patch structs so only explicitly enumerated fields can
// change; SQL is never assembled from request field names.
package projects
