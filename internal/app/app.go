package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/tubepilot/backend/internal/config"
	"github.com/tubepilot/backend/internal/db"
	"github.com/tubepilot/backend/internal/handlers"
	"github.com/tubepilot/backend/internal/httpserver"
	"github.com/tubepilot/backend/internal/logging"
	"github.com/tubepilot/backend/internal/middleware"
)

// Run bootstraps the TubePilot backend application.
func Run(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return errors.New("expected command: serve or migrate")
	}

	switch args[0] {
	case "serve":
		return serve(ctx)
	case "migrate":
		return runMigrations(ctx, args[1:])
	default:
		return fmt.Errorf("unknown command %q", args[0])
	}
}

func serve(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger := logging.New(cfg.LogLevel)
	slog.SetDefault(logger)

	pool, err := db.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer pool.Close()

	deps, cleanup, err := buildDependencies(ctx, pool, cfg)
	if err != nil {
		return err
	}
	defer func() {
		cleanupCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := cleanup(cleanupCtx); err != nil {
			logger.Warn("dependency cleanup failed", "error", err)
		}
	}()
	deps.Database = pool

	mux := http.NewServeMux()
	handlers.RegisterRoutes(mux, deps)

	handler := middleware.RequestLogger(logger)(mux)

	srv := httpserver.New(cfg.AppPort, handler, cfg.UploadTimeout+2*time.Minute)

	logger.Info("starting http server", "port", cfg.AppPort, "grounding", cfg.Grounding.Index, "thumbnail_bucket", cfg.ObjectStore.Bucket)

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return srv.Run(logging.WithLogger(ctx, logger))
}

func runMigrations(ctx context.Context, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	command := "up"
	if len(args) > 0 {
		command = args[0]
	}

	migrationDir := cfg.MigrationDir
	if !filepath.IsAbs(migrationDir) {
		wd, err := os.Getwd()
		if err != nil {
			return fmt.Errorf("determine working directory: %w", err)
		}
		migrationDir = filepath.Join(wd, migrationDir)
	}

	pool, err := db.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer pool.Close()

	switch command {
	case "status":
		migrations, err := db.Status(ctx, pool, migrationDir)
		if err != nil {
			return err
		}
		for _, m := range migrations {
			if m.Applied() {
				fmt.Printf("[x] %s (%s)\n", m.Version, m.AppliedAt.Format(time.RFC3339))
			} else {
				fmt.Printf("[ ] %s\n", m.Version)
			}
		}
		return nil
	case "up", "":
		applied, err := db.Migrate(ctx, pool, migrationDir)
		for _, version := range applied {
			fmt.Printf("applied migration %s\n", version)
		}
		if err != nil {
			return err
		}
		if len(applied) == 0 {
			fmt.Println("no migrations to apply")
		}
		return nil
	case "down":
		return errors.New("down migrations are not supported")
	default:
		return fmt.Errorf("unknown migrate command %q", command)
	}
}
