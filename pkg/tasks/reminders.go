package tasks

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/taskboard/taskboard/pkg/audit"
	"github.com/taskboard/taskboard/pkg/auth"
	"github.com/taskboard/taskboard/pkg/observability"
)

// ReminderType classifies how far away a task's due date is
type ReminderType string

const (
	ReminderDueToday    ReminderType = "due_today"
	ReminderDueTomorrow ReminderType = "due_tomorrow"
	ReminderDueIn2Days  ReminderType = "due_in_2_days"
)

var reminderOffsets = map[ReminderType]int{
	ReminderDueToday:    0,
	ReminderDueTomorrow: 1,
	ReminderDueIn2Days:  2,
}

// dedupTTL keeps redis keys alive long enough to cover same-day re-runs
const dedupTTL = 48 * time.Hour

// ReminderProcessor sends due-date reminders. At-most-once per
// (task, type, day) is guaranteed by the task_reminders unique constraint;
// redis SetNX is only a fast path that skips the DB round trip on re-runs
// and a nil client degrades to DB-only behavior.
type ReminderProcessor struct {
	store    *Store
	users    *auth.Store
	audits   *audit.Store
	redis    *redis.Client
	notifier Notifier
	logger   *observability.Logger
	metrics  *observability.Metrics
}

// NewReminderProcessor creates a reminder processor. redisClient and
// metrics may be nil.
func NewReminderProcessor(store *Store, users *auth.Store, audits *audit.Store, redisClient *redis.Client, notifier Notifier, logger *observability.Logger, metrics *observability.Metrics) *ReminderProcessor {
	return &ReminderProcessor{
		store:    store,
		users:    users,
		audits:   audits,
		redis:    redisClient,
		notifier: notifier,
		logger:   logger,
		metrics:  metrics,
	}
}

// Process scans for tasks due today, tomorrow and in two days, and sends
// one reminder per (task, type, day). Re-running on the same day is a
// no-op for already-reminded tasks. Returns the number of reminders sent.
func (p *ReminderProcessor) Process(ctx context.Context, now time.Time) (int, error) {
	day := now.Format("2006-01-02")
	sent := 0

	for _, rtype := range []ReminderType{ReminderDueToday, ReminderDueTomorrow, ReminderDueIn2Days} {
		dueDay := now.AddDate(0, 0, reminderOffsets[rtype]).Format("2006-01-02")

		due, err := p.tasksDueOn(ctx, dueDay)
		if err != nil {
			return sent, err
		}

		for _, task := range due {
			ok, err := p.markSent(ctx, task.ID, rtype, day)
			if err != nil {
				p.logger.WithError(err).WithField("task_id", task.ID).Warn("failed to record reminder")
				p.countReminder(rtype, "error")
				continue
			}
			if !ok {
				p.countReminder(rtype, "skipped")
				continue
			}

			p.remindAssignees(ctx, task, rtype)
			p.countReminder(rtype, "sent")
			sent++
		}
	}

	return sent, nil
}

// tasksDueOn lists open tasks whose due date falls on the given day
func (p *ReminderProcessor) tasksDueOn(ctx context.Context, day string) ([]*Task, error) {
	rows, err := p.store.db.QueryContext(ctx, `
		SELECT `+taskColumns+`
		FROM tasks t
		LEFT JOIN task_assignees ta ON ta.task_id = t.id
		WHERE t.due_date::date = $1::date
		  AND t.status NOT IN ('COMPLETED', 'CANCELLED', 'REFUSED')
		GROUP BY t.id
		ORDER BY t.id ASC
	`, day)
	if err != nil {
		return nil, fmt.Errorf("failed to query due tasks: %w", err)
	}
	defer rows.Close()

	list := make([]*Task, 0)
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan due task: %w", err)
		}
		list = append(list, t)
	}
	return list, rows.Err()
}

// markSent records the (task, type, day) tuple. Returns false when the
// reminder was already sent.
func (p *ReminderProcessor) markSent(ctx context.Context, taskID int64, rtype ReminderType, day string) (bool, error) {
	if p.redis != nil {
		key := fmt.Sprintf("reminder:%d:%s:%s", taskID, rtype, day)
		fresh, err := p.redis.SetNX(ctx, key, 1, dedupTTL).Result()
		if err != nil {
			// Redis being down must not stop reminders; fall through to the DB
			p.logger.WithError(err).Warn("reminder dedup fast path unavailable")
		} else if !fresh {
			return false, nil
		}
	}

	result, err := p.store.db.ExecContext(ctx, `
		INSERT INTO task_reminders (task_id, reminder_type, reminder_day)
		VALUES ($1, $2, $3::date)
		ON CONFLICT (task_id, reminder_type, reminder_day) DO NOTHING
	`, taskID, rtype, day)
	if err != nil {
		return false, fmt.Errorf("failed to record reminder: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to record reminder: %w", err)
	}
	return affected > 0, nil
}

func (p *ReminderProcessor) remindAssignees(ctx context.Context, task *Task, rtype ReminderType) {
	subject := fmt.Sprintf("Task %q is %s", task.Title, reminderPhrase(rtype))
	body := subject
	if task.DueDate != nil {
		body = fmt.Sprintf("%s (due %s)", subject, task.DueDate.Format("2006-01-02"))
	}

	for _, userID := range task.AssigneeIDs {
		user, err := p.users.GetUser(ctx, userID)
		if err != nil {
			p.logger.WithError(err).WithField("user_id", userID).Warn("failed to load reminder recipient")
			continue
		}
		if p.notifier != nil {
			p.notifier.Notify(ctx, user, subject, body)
		}
	}

	if err := p.audits.Log(ctx, &audit.Entry{
		Action:     audit.ActionReminder,
		EntityType: audit.EntityTask,
		EntityID:   &task.ID,
		Message:    subject,
	}); err != nil {
		p.logger.WithError(err).Warn("failed to record reminder activity")
	}
}

func (p *ReminderProcessor) countReminder(rtype ReminderType, status string) {
	if p.metrics != nil {
		p.metrics.RemindersProcessed.WithLabelValues(string(rtype), status).Inc()
	}
}

func reminderPhrase(rtype ReminderType) string {
	switch rtype {
	case ReminderDueToday:
		return "due today"
	case ReminderDueTomorrow:
		return "due tomorrow"
	default:
		return "due in 2 days"
	}
}
