package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-redis/redis/v8"
	_ "github.com/lib/pq"

	"github.com/taskboard/taskboard/pkg/api"
	"github.com/taskboard/taskboard/pkg/audit"
	"github.com/taskboard/taskboard/pkg/auth"
	"github.com/taskboard/taskboard/pkg/config"
	"github.com/taskboard/taskboard/pkg/documents"
	"github.com/taskboard/taskboard/pkg/notify"
	"github.com/taskboard/taskboard/pkg/observability"
	"github.com/taskboard/taskboard/pkg/projects"
	"github.com/taskboard/taskboard/pkg/rbac"
	"github.com/taskboard/taskboard/pkg/tasks"
	"github.com/taskboard/taskboard/pkg/users"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "taskboard: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return err
	}

	logger := observability.NewLogger(observability.ParseLogLevel(os.Getenv("TASKBOARD_LOG_LEVEL")), os.Stdout)
	ctx := context.Background()

	db, err := openDatabase(cfg.Database)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := ensureSchemas(ctx, db); err != nil {
		return err
	}

	deps := api.Dependencies{DB: db}

	if cfg.Redis.URL != "" {
		client, err := openRedis(cfg.Redis)
		if err != nil {
			logger.WithError(err).Warn("redis unavailable, reminder dedup falls back to the database")
		} else {
			deps.Redis = client
			defer client.Close()
		}
	}

	if cfg.Storage.S3Bucket != "" {
		objects, err := documents.NewS3Store(ctx, cfg.Storage)
		if err != nil {
			return fmt.Errorf("failed to initialize object storage: %w", err)
		}
		deps.Objects = objects
		logger.WithField("bucket", cfg.Storage.S3Bucket).Info("object storage ready")
	} else {
		logger.Warn("object storage not configured, document uploads disabled")
	}

	server, err := api.NewServer(cfg, deps, logger)
	if err != nil {
		return err
	}

	errCh := make(chan error, 1)
	go func() { errCh <- server.Start() }()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-sigCh:
		logger.WithField("signal", sig.String()).Info("shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

func openDatabase(cfg config.DatabaseConfig) (*sql.DB, error) {
	db, err := sql.Open("postgres", cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnLifetime)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return db, nil
}

func openRedis(cfg config.RedisConfig) (*redis.Client, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		// Plain host:port values are accepted too
		opts = &redis.Options{Addr: cfg.URL, Password: cfg.Password, DB: cfg.DB}
	}
	client := redis.NewClient(opts)
	if err := client.Ping(context.Background()).Err(); err != nil {
		client.Close()
		return nil, err
	}
	return client, nil
}

// ensureSchemas creates every table the application owns. Tables are
// created in dependency order so foreign keys resolve.
func ensureSchemas(ctx context.Context, db *sql.DB) error {
	if err := auth.NewStore(db).EnsureSchema(ctx); err != nil {
		return fmt.Errorf("users schema: %w", err)
	}
	rbacStore := rbac.NewStore(db)
	if err := rbacStore.EnsureSchema(ctx); err != nil {
		return fmt.Errorf("permissions schema: %w", err)
	}
	if err := rbacStore.Seed(ctx); err != nil {
		return fmt.Errorf("permission seed: %w", err)
	}
	if err := projects.NewStore(db).EnsureSchema(ctx); err != nil {
		return fmt.Errorf("projects schema: %w", err)
	}
	if err := tasks.NewStore(db).EnsureSchema(ctx); err != nil {
		return fmt.Errorf("tasks schema: %w", err)
	}
	if err := documents.NewStore(db).EnsureSchema(ctx); err != nil {
		return fmt.Errorf("documents schema: %w", err)
	}
	if err := notify.NewStore(db).EnsureSchema(ctx); err != nil {
		return fmt.Errorf("notification preferences schema: %w", err)
	}
	if err := users.NewSettingsStore(db).EnsureSchema(ctx); err != nil {
		return fmt.Errorf("user settings schema: %w", err)
	}
	if err := audit.NewStore(db).EnsureSchema(ctx); err != nil {
		return fmt.Errorf("activity log schema: %w", err)
	}
	return nil
}
