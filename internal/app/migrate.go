package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/reelnotes/backend/internal/config"
	"github.com/reelnotes/backend/internal/db"
)

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

// Migrate applies pending migrations ("up") or prints which are applied ("status").
func Migrate(ctx context.Context, cfg config.Config, command string, out io.Writer) error {
	switch command {
	case "", "up", "status":
	case "down":
		return errors.New("down migrations are not supported")
	default:
		return fmt.Errorf("unknown migrate command %q", command)
	}

	dir, err := resolveDir(cfg.MigrationDir)
	if err != nil {
		return err
	}
	migrations, err := listMigrations(dir)
	if err != nil {
		return err
	}

	pool, err := db.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer pool.Close()

	conn, err := pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	applied, err := appliedMigrations(ctx, conn)
	if err != nil {
		return err
	}

	if command == "status" {
		for _, name := range migrations {
			mark := " "
			if _, ok := applied[name]; ok {
				mark = "x"
			}
			fmt.Fprintf(out, "[%s] %s\n", mark, name)
		}
		return nil
	}

	pending := 0
	for _, name := range migrations {
		if _, ok := applied[name]; ok {
			continue
		}
		contents, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return fmt.Errorf("read migration %s: %w", name, err)
		}
		if err := applyMigrationWithRetry(ctx, conn, name, string(contents), out); err != nil {
			return err
		}
		fmt.Fprintf(out, "applied migration %s\n", name)
		pending++
	}
	if pending == 0 {
		fmt.Fprintln(out, "no migrations to apply")
	}
	return nil
}

// listMigrations returns the .sql files in dir in lexical order.
func listMigrations(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read migrations directory: %w", err)
	}

	var migrations []string
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".sql" {
			continue
		}
		migrations = append(migrations, entry.Name())
	}
	sort.Strings(migrations)
	return migrations, nil
}

func appliedMigrations(ctx context.Context, conn *pgxpool.Conn) (map[string]struct{}, error) {
	if _, err := conn.Exec(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (
		version TEXT PRIMARY KEY,
		applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`); err != nil {
		return nil, fmt.Errorf("ensure schema_migrations table: %w", err)
	}

	rows, err := conn.Query(ctx, `SELECT version FROM schema_migrations`)
	if err != nil {
		return nil, fmt.Errorf("fetch applied migrations: %w", err)
	}
	versions, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("scan applied migrations: %w", err)
	}

	applied := make(map[string]struct{}, len(versions))
	for _, v := range versions {
		applied[v] = struct{}{}
	}
	return applied, nil
}

// Seed executes the named seed file ("dev" resolves to dev_seed.sql).
func Seed(ctx context.Context, cfg config.Config, name string, out io.Writer) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return errors.New("expected seed name (e.g. dev)")
	}
	if !strings.HasSuffix(name, ".sql") {
		name = fmt.Sprintf("%s_seed.sql", name)
	}

	dir, err := resolveDir(cfg.SeedDir)
	if err != nil {
		return err
	}
	contents, err := os.ReadFile(filepath.Join(dir, name))
	if err != nil {
		return fmt.Errorf("read seed %s: %w", name, err)
	}

	pool, err := db.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer pool.Close()

	conn, err := pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	if _, err := conn.Exec(ctx, string(contents)); err != nil {
		return fmt.Errorf("apply seed %s: %w", name, err)
	}

	fmt.Fprintf(out, "applied seed %s\n", name)
	return nil
}

func applyMigrationWithRetry(ctx context.Context, conn *pgxpool.Conn, name, contents string, out io.Writer) error {
	for attempt := 0; attempt < migrationMaxRetries; attempt++ {
		if attempt > 0 {
			if err := sleepCtx(ctx, migrationBackoff(attempt)); err != nil {
				return err
			}
		}

		stage, err := applyMigration(ctx, conn, name, contents)
		if err == nil {
			return nil
		}
		if shouldRetryMigration(err) && attempt < migrationMaxRetries-1 {
			fmt.Fprintf(out, "transient error %s migration %s (attempt %d/%d): %v\n", stage, name, attempt+1, migrationMaxRetries, err)
			continue
		}
		return fmt.Errorf("%s migration %s: %w", stage, name, err)
	}
	return fmt.Errorf("apply migration %s: exceeded max retries (%d)", name, migrationMaxRetries)
}

// applyMigration runs one migration and records it in a single serializable
// transaction. The returned stage names the step that failed.
func applyMigration(ctx context.Context, conn *pgxpool.Conn, name, contents string) (string, error) {
	tx, err := conn.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable})
	if err != nil {
		return "beginning", err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, contents); err != nil {
		return "applying", err
	}
	if _, err := tx.Exec(ctx, `INSERT INTO schema_migrations (version) VALUES ($1)`, name); err != nil {
		return "recording", err
	}
	if err := tx.Commit(ctx); err != nil {
		return "committing", err
	}
	return "", nil
}

func migrationBackoff(attempt int) time.Duration {
	backoff := time.Duration(math.Pow(2, float64(attempt-1))) * migrationBaseBackoff
	return min(backoff, migrationMaxBackoff)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
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
	if err == nil {
		return false
	}
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
