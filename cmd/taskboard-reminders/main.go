// Command taskboard-reminders sends due-date reminders for open tasks.
// It runs either once (for cron-style external scheduling) or as a
// long-lived process with an internal schedule.
package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	_ "github.com/lib/pq"
	"github.com/robfig/cron/v3"

	"github.com/taskboard/taskboard/pkg/audit"
	"github.com/taskboard/taskboard/pkg/auth"
	"github.com/taskboard/taskboard/pkg/config"
	"github.com/taskboard/taskboard/pkg/notify"
	"github.com/taskboard/taskboard/pkg/observability"
	"github.com/taskboard/taskboard/pkg/tasks"
)

var (
	schedule = flag.String("schedule", getEnv("TASKBOARD_REMINDER_SCHEDULE", "0 8 * * *"), "cron schedule for reminder runs")
	runOnce  = flag.Bool("run-once", false, "process reminders once and exit")
)

func main() {
	flag.Parse()
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "taskboard-reminders: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return err
	}

	logger := observability.NewLogger(observability.ParseLogLevel(os.Getenv("TASKBOARD_LOG_LEVEL")), os.Stdout)

	db, err := sql.Open("postgres", cfg.Database.URL)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()
	db.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	db.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.Database.ConnLifetime)
	if err := db.Ping(); err != nil {
		return fmt.Errorf("failed to ping database: %w", err)
	}

	var redisClient *redis.Client
	if cfg.Redis.URL != "" {
		opts, err := redis.ParseURL(cfg.Redis.URL)
		if err != nil {
			opts = &redis.Options{Addr: cfg.Redis.URL, Password: cfg.Redis.Password, DB: cfg.Redis.DB}
		}
		redisClient = redis.NewClient(opts)
		if err := redisClient.Ping(context.Background()).Err(); err != nil {
			logger.WithError(err).Warn("redis unavailable, dedup falls back to the database")
			redisClient.Close()
			redisClient = nil
		} else {
			defer redisClient.Close()
		}
	}

	taskStore := tasks.NewStore(db)
	userStore := auth.NewStore(db)
	auditStore := audit.NewStore(db)
	notifier := notify.NewDispatcherFromConfig(notify.NewStore(db), cfg.Notify, nil, nil)
	processor := tasks.NewReminderProcessor(taskStore, userStore, auditStore, redisClient, notifier, logger, nil)

	process := func() {
		start := time.Now()
		sent, err := processor.Process(context.Background(), start)
		if err != nil {
			logger.WithError(err).Error("reminder run failed")
			return
		}
		logger.WithField("sent", sent).
			WithField("duration", time.Since(start).String()).
			Info("reminder run complete")
	}

	if *runOnce {
		logger.Info("running one reminder pass")
		process()
		return nil
	}

	c := cron.New()
	if _, err := c.AddFunc(*schedule, process); err != nil {
		return fmt.Errorf("invalid schedule %q: %w", *schedule, err)
	}
	c.Start()
	logger.WithField("schedule", *schedule).Info("reminder scheduler started")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	logger.Info("shutting down, waiting for running jobs")
	ctx := c.Stop()
	<-ctx.Done()
	return nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
