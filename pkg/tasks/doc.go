// Package tasks implements task CRUD, the assignment response workflow
// and due-date reminders.
//
// The response workflow is the one real state machine in the service:
// assignees accept (IN_PROGRESS) or refuse (REFUSED, reason required),
// at most once per user per task. Uniqueness is enforced by the
// task_responses constraint rather than a check-then-insert, so racing
// responses resolve in the database. Status change, response row and
// activity log commit atomically; manager/admin notification happens
// after commit and is best-effort.
package tasks
