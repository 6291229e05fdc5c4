package api

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"

	"github.com/gorilla/mux"
	"golang.org/x/sync/errgroup"

	"github.com/taskboard/taskboard/pkg/httputil"
	"github.com/taskboard/taskboard/pkg/middleware"
	"github.com/taskboard/taskboard/pkg/observability"
	"github.com/taskboard/taskboard/pkg/rbac"
)

// DashboardStats is the aggregate view served at /dashboard/stats
type DashboardStats struct {
	Projects      int64            `json:"projects"`
	Users         int64            `json:"users"`
	Documents     int64            `json:"documents"`
	TasksByStatus map[string]int64 `json:"tasks_by_status"`
	OverdueTasks  int64            `json:"overdue_tasks"`
}

// DashboardHandlers serves the dashboard aggregates
type DashboardHandlers struct {
	db     *sql.DB
	logger *observability.Logger
}

// NewDashboardHandlers creates the dashboard handlers
func NewDashboardHandlers(db *sql.DB, logger *observability.Logger) *DashboardHandlers {
	return &DashboardHandlers{db: db, logger: logger}
}

// RegisterRoutes registers the dashboard endpoint
func (h *DashboardHandlers) RegisterRoutes(router *mux.Router, guard middleware.Guard) {
	router.Handle("/dashboard/stats",
		guard(rbac.ResourceDashboard, rbac.ActionRead)(http.HandlerFunc(h.Stats))).Methods(http.MethodGet)
}

// Stats collects the dashboard counters. The independent aggregates are
// queried concurrently.
func (h *DashboardHandlers) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.collect(r.Context())
	if err != nil {
		h.logger.WithError(err).Error("failed to collect dashboard stats")
		httputil.WriteInternalError(w)
		return
	}
	httputil.WriteSuccess(w, stats)
}

func (h *DashboardHandlers) collect(ctx context.Context) (*DashboardStats, error) {
	stats := &DashboardStats{TasksByStatus: map[string]int64{}}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return h.countRow(ctx, `SELECT COUNT(*) FROM projects`, &stats.Projects)
	})
	g.Go(func() error {
		return h.countRow(ctx, `SELECT COUNT(*) FROM users`, &stats.Users)
	})
	g.Go(func() error {
		return h.countRow(ctx, `SELECT COUNT(*) FROM documents`, &stats.Documents)
	})
	g.Go(func() error {
		return h.countRow(ctx,
			`SELECT COUNT(*) FROM tasks WHERE due_date < NOW() AND status NOT IN ('COMPLETED', 'CANCELLED', 'REFUSED')`,
			&stats.OverdueTasks)
	})
	g.Go(func() error {
		rows, err := h.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM tasks GROUP BY status`)
		if err != nil {
			return fmt.Errorf("failed to count tasks by status: %w", err)
		}
		defer rows.Close()
		for rows.Next() {
			var status string
			var count int64
			if err := rows.Scan(&status, &count); err != nil {
				return fmt.Errorf("failed to scan task status count: %w", err)
			}
			stats.TasksByStatus[status] = count
		}
		return rows.Err()
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return stats, nil
}

func (h *DashboardHandlers) countRow(ctx context.Context, query string, dest *int64) error {
	if err := h.db.QueryRowContext(ctx, query).Scan(dest); err != nil {
		return fmt.Errorf("failed to run %q: %w", query, err)
	}
	return nil
}
