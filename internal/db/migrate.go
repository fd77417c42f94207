package db

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Migration is one SQL file in the migrations directory.
type Migration struct {
	Version   string
	Path      string
	AppliedAt time.Time
}

// Applied reports whether the migration has been recorded in schema_migrations.
func (m Migration) Applied() bool {
	return !m.AppliedAt.IsZero()
}

const createMigrationsTable = `
CREATE TABLE IF NOT EXISTS schema_migrations (
    version TEXT PRIMARY KEY,
    applied_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`

// Status lists every migration found in dir along with when it was applied.
func Status(ctx context.Context, pool Pool, dir string) ([]Migration, error) {
	migrations, err := readMigrations(dir)
	if err != nil {
		return nil, err
	}

	conn, err := pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	if _, err := conn.Exec(ctx, createMigrationsTable); err != nil {
		return nil, fmt.Errorf("ensure schema_migrations: %w", err)
	}

	rows, err := conn.Query(ctx, `SELECT version, applied_at FROM schema_migrations`)
	if err != nil {
		return nil, fmt.Errorf("query schema_migrations: %w", err)
	}
	applied, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Migration, error) {
		var m Migration
		err := row.Scan(&m.Version, &m.AppliedAt)
		return m, err
	})
	if err != nil {
		return nil, fmt.Errorf("scan schema_migrations: %w", err)
	}

	byVersion := make(map[string]time.Time, len(applied))
	for _, m := range applied {
		byVersion[m.Version] = m.AppliedAt.UTC()
	}
	for i := range migrations {
		migrations[i].AppliedAt = byVersion[migrations[i].Version]
	}
	return migrations, nil
}

// Migrate applies pending migrations in lexical order, each inside its own transaction.
// It returns the versions applied by this call.
func Migrate(ctx context.Context, pool Pool, dir string) ([]string, error) {
	migrations, err := Status(ctx, pool, dir)
	if err != nil {
		return nil, err
	}

	conn, err := pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	var appliedNow []string
	for _, m := range migrations {
		if m.Applied() {
			continue
		}
		contents, err := os.ReadFile(m.Path)
		if err != nil {
			return appliedNow, fmt.Errorf("read migration %s: %w", m.Version, err)
		}

		if err := applyWithRetry(ctx, conn, m.Version, string(contents)); err != nil {
			return appliedNow, err
		}
		appliedNow = append(appliedNow, m.Version)
	}
	return appliedNow, nil
}

const (
	migrationMaxRetries  = 3
	migrationBaseBackoff = 100 * time.Millisecond
	migrationMaxBackoff  = 3 * time.Second
)

var retryablePgErrorCodes = map[string]struct{}{
	"40001": {}, // serialization_failure
	"40P01": {}, // deadlock_detected
	"55P03": {}, // lock_not_available
}

func applyWithRetry(ctx context.Context, conn *pgxpool.Conn, version, contents string) error {
	var err error
	for attempt := 0; attempt < migrationMaxRetries; attempt++ {
		if attempt > 0 {
			if werr := wait(ctx, migrationBackoff(attempt)); werr != nil {
				return werr
			}
		}
		err = pgx.BeginTxFunc(ctx, conn, pgx.TxOptions{IsoLevel: pgx.Serializable}, func(tx pgx.Tx) error {
			if _, err := tx.Exec(ctx, contents); err != nil {
				return err
			}
			_, err := tx.Exec(ctx, `INSERT INTO schema_migrations (version) VALUES ($1)`, version)
			return err
		})
		if err == nil || !shouldRetryMigration(err) {
			break
		}
	}
	if err != nil {
		return fmt.Errorf("apply migration %s: %w", version, err)
	}
	return nil
}

func migrationBackoff(attempt int) time.Duration {
	backoff := migrationBaseBackoff << (attempt - 1)
	if backoff > migrationMaxBackoff {
		return migrationMaxBackoff
	}
	return backoff
}

func wait(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func shouldRetryMigration(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, pgx.ErrTxClosed) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		_, ok := retryablePgErrorCodes[pgErr.Code]
		return ok
	}
	return false
}

func readMigrations(dir string) ([]Migration, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read migrations dir: %w", err)
	}

	var migrations []Migration
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}
		migrations = append(migrations, Migration{
			Version: strings.TrimSuffix(entry.Name(), ".sql"),
			Path:    filepath.Join(dir, entry.Name()),
		})
	}
	sort.Slice(migrations, func(i, j int) bool { return migrations[i].Version < migrations[j].Version })
	return migrations, nil
}
