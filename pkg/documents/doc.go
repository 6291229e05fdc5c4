// Package documents manages file attachments on projects and tasks.
// Uploaded files are stored in S3-compatible object storage with their
// metadata in Postgres; link-type documents carry an external URL only.
package documents
