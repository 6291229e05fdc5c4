package tasks

import (
	"context"
	"fmt"
	"strings"

	"github.com/taskboard/taskboard/pkg/audit"
	"github.com/taskboard/taskboard/pkg/auth"
	"github.com/taskboard/taskboard/pkg/observability"
	"github.com/taskboard/taskboard/pkg/projects"
)

// Notifier delivers one message to one user. Implementations are
// best-effort and must never return delivery failures as request errors.
type Notifier interface {
	Notify(ctx context.Context, user *auth.User, subject, body string)
}

// Workflow implements the task assignment response state machine:
// an assignee accepts (task moves to IN_PROGRESS) or rejects/refuses
// (task moves to REFUSED with a mandatory reason). The status change, the
// response row and the activity log entry commit in one transaction;
// notification fan-out happens after commit.
type Workflow struct {
	store     *Store
	users     *auth.Store
	projects  *projects.Store
	notifier  Notifier
	publicURL string
	logger    *observability.Logger
	metrics   *observability.Metrics
}

// NewWorkflow creates the response workflow. publicURL is the base for
// emailed reject links; metrics may be nil in tests.
func NewWorkflow(store *Store, users *auth.Store, projectStore *projects.Store, notifier Notifier, publicURL string, logger *observability.Logger, metrics *observability.Metrics) *Workflow {
	return &Workflow{
		store:     store,
		users:     users,
		projects:  projectStore,
		notifier:  notifier,
		publicURL: publicURL,
		logger:    logger,
		metrics:   metrics,
	}
}

// Respond records one assignee's decision on a task.
//
// Returns ErrTaskNotFound, ErrNotAssignee, ErrEmptyReason, or
// ErrAlreadyResponded; on ErrAlreadyResponded the existing response can be
// fetched with store.GetResponse. Only the unique constraint on
// task_responses decides the already-responded case, so concurrent double
// responses cannot both succeed.
func (wf *Workflow) Respond(ctx context.Context, taskID, userID int64, kind ResponseKind, reason string) (*TaskResponse, error) {
	if kind != ResponseAccepted && kind != ResponseRejected {
		return nil, fmt.Errorf("%w: %q", ErrUnknownResponse, kind)
	}
	if kind == ResponseRejected && strings.TrimSpace(reason) == "" {
		return nil, ErrEmptyReason
	}

	task, err := wf.store.GetTask(ctx, taskID)
	if err != nil {
		return nil, err
	}

	isAssignee, err := wf.store.IsAssignee(ctx, taskID, userID)
	if err != nil {
		return nil, err
	}
	if !isAssignee {
		return nil, ErrNotAssignee
	}

	response, err := wf.applyResponse(ctx, task, userID, kind, reason)
	if err != nil {
		return nil, err
	}

	if wf.metrics != nil {
		wf.metrics.TaskResponsesTotal.WithLabelValues(string(kind)).Inc()
	}

	wf.notifyManagersAndAdmins(ctx, task, userID, kind, reason)
	return response, nil
}

// applyResponse performs the transactional part: response insert, status
// transition and activity log entry succeed or fail together.
func (wf *Workflow) applyResponse(ctx context.Context, task *Task, userID int64, kind ResponseKind, reason string) (*TaskResponse, error) {
	tx, err := wf.store.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	response := &TaskResponse{TaskID: task.ID, UserID: userID, Response: kind, Reason: reason}
	err = tx.QueryRowContext(ctx, `
		INSERT INTO task_responses (task_id, user_id, response, reason)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at
	`, task.ID, userID, kind, reason).Scan(&response.ID, &response.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrAlreadyResponded
		}
		return nil, fmt.Errorf("failed to record task response: %w", err)
	}

	newStatus := StatusInProgress
	if kind == ResponseRejected {
		newStatus = StatusRefused
	}
	if _, err := tx.ExecContext(ctx, `
		UPDATE tasks SET status = $2, refusal_reason = $3, updated_at = NOW() WHERE id = $1
	`, task.ID, newStatus, reason); err != nil {
		return nil, fmt.Errorf("failed to transition task status: %w", err)
	}

	auditAction := audit.ActionAccept
	if kind == ResponseRejected {
		auditAction = audit.ActionRefuse
	}
	if err := audit.LogTx(ctx, tx, &audit.Entry{
		UserID:     &userID,
		Action:     auditAction,
		EntityType: audit.EntityTask,
		EntityID:   &task.ID,
		Message:    fmt.Sprintf("task %q %s", task.Title, kind),
		Metadata:   map[string]interface{}{"from_status": string(task.Status), "to_status": string(newStatus)},
	}); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit task response: %w", err)
	}
	return response, nil
}

// NotifyAssignees tells each assignee about a new assignment. Every
// message carries a fresh single-use reject link, so an assignee can
// decline from the email without signing in. The task has already
// committed; failures here are logged and skipped.
func (wf *Workflow) NotifyAssignees(ctx context.Context, task *Task) {
	if wf.notifier == nil {
		return
	}

	subject := fmt.Sprintf("You were assigned task %q", task.Title)
	for _, assigneeID := range task.AssigneeIDs {
		user, err := wf.users.GetUser(ctx, assigneeID)
		if err != nil {
			wf.logger.WithError(err).WithField("user_id", assigneeID).
				Warn("failed to load assignee for assignment notification")
			continue
		}

		token, err := wf.store.CreateRejectToken(ctx, task.ID)
		if err != nil {
			wf.logger.WithError(err).Warn("failed to issue reject token for assignment notification")
			continue
		}

		body := fmt.Sprintf("%s. If you cannot take it, decline here: %s/tasks/%d/reject-link?token=%s",
			subject, wf.publicURL, task.ID, token)
		wf.notifier.Notify(ctx, user, subject, body)
	}
}

// notifyManagersAndAdmins fans a response notification out to the project
// manager and every admin, deduplicated by user id and excluding the actor.
// A recipient who is both manager and admin is notified once.
func (wf *Workflow) notifyManagersAndAdmins(ctx context.Context, task *Task, actorID int64, kind ResponseKind, reason string) {
	if wf.notifier == nil {
		return
	}
	recipients := make(map[int64]*auth.User)

	if task.ProjectID != nil {
		project, err := wf.projects.GetProject(ctx, *task.ProjectID)
		if err != nil {
			wf.logger.WithError(err).Warn("failed to load project for response notification")
		} else if project.ManagerID != nil {
			manager, err := wf.users.GetUser(ctx, *project.ManagerID)
			if err != nil {
				wf.logger.WithError(err).Warn("failed to load manager for response notification")
			} else {
				recipients[manager.ID] = manager
			}
		}
	}

	admins, err := wf.users.ListUsersByRole(ctx, auth.StoredRoleAdmin)
	if err != nil {
		wf.logger.WithError(err).Warn("failed to load admins for response notification")
	}
	for i := range admins {
		recipients[admins[i].ID] = &admins[i]
	}

	delete(recipients, actorID)

	subject := fmt.Sprintf("Task %q was %s", task.Title, kind)
	body := subject
	if reason != "" {
		body = fmt.Sprintf("%s. Reason: %s", subject, reason)
	}

	for _, user := range recipients {
		wf.notifier.Notify(ctx, user, subject, body)
	}
}
