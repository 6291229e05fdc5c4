// Package audit records who did what to which record. Write paths log an
// entry for every mutation; reads are exposed through GET /activity-logs.
// Logging failures on the request path are reported to callers, who treat
// them as best-effort except where a mutation and its entry must commit
// together (see LogTx).
package audit
