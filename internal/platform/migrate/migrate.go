package migrate

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// advisoryLockKey serializes concurrent migrators on the same database.
const advisoryLockKey = 0x6865786c696e6b // "hexlink"

type Options struct {
	// FS holds the *.sql files. When nil, Dir (or ./migrations) on disk is used.
	FS  fs.FS
	Dir string
}

type Result struct {
	AppliedFiles []string
	SkippedFiles []string
}

// Up applies every not-yet-recorded migration in name order. Each file runs in
// its own transaction together with its schema_migrations row.
func Up(ctx context.Context, db *pgxpool.Pool, opts Options) (*Result, error) {
	fsys, err := resolveFS(opts)
	if err != nil {
		return nil, err
	}
	names, err := listSQLFiles(fsys)
	if err != nil {
		return nil, err
	}

	conn, err := db.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire conn: %w", err)
	}
	defer conn.Release()

	if _, err := conn.Exec(ctx, `SELECT pg_advisory_lock($1)`, advisoryLockKey); err != nil {
		return nil, fmt.Errorf("migration lock: %w", err)
	}
	defer func() {
		_, _ = conn.Exec(context.Background(), `SELECT pg_advisory_unlock($1)`, advisoryLockKey)
	}()

	if err := ensureTable(ctx, conn.Conn()); err != nil {
		return nil, err
	}

	res := &Result{}
	for _, name := range names {
		applied, err := isApplied(ctx, conn.Conn(), name)
		if err != nil {
			return nil, err
		}
		if applied {
			res.SkippedFiles = append(res.SkippedFiles, name)
			continue
		}
		if err := applyFile(ctx, conn.Conn(), fsys, name); err != nil {
			return nil, err
		}
		res.AppliedFiles = append(res.AppliedFiles, name)
	}
	return res, nil
}

func ensureTable(ctx context.Context, conn *pgx.Conn) error {
	_, err := conn.Exec(ctx, `
CREATE TABLE IF NOT EXISTS schema_migrations (
  version TEXT PRIMARY KEY,
  applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
`)
	if err != nil {
		return fmt.Errorf("create schema_migrations: %w", err)
	}
	return nil
}

func listSQLFiles(fsys fs.FS) ([]string, error) {
	entries := make([]string, 0, 8)
	err := fs.WalkDir(fsys, ".", func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if strings.HasSuffix(strings.ToLower(d.Name()), ".sql") {
			entries = append(entries, p)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list migrations: %w", err)
	}
	sort.Slice(entries, func(i, j int) bool { return path.Base(entries[i]) < path.Base(entries[j]) })
	return entries, nil
}

func isApplied(ctx context.Context, conn *pgx.Conn, version string) (bool, error) {
	var exists bool
	err := conn.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM schema_migrations WHERE version=$1)`, path.Base(version)).Scan(&exists)
	return exists, err
}

func applyFile(ctx context.Context, conn *pgx.Conn, fsys fs.FS, name string) error {
	sqlBytes, err := fs.ReadFile(fsys, name)
	if err != nil {
		return fmt.Errorf("read migration %s: %w", name, err)
	}

	tx, err := conn.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, string(sqlBytes)); err != nil {
		return fmt.Errorf("apply migration %s: %w", name, err)
	}
	if _, err := tx.Exec(ctx, `INSERT INTO schema_migrations (version, applied_at) VALUES ($1,$2)`, path.Base(name), time.Now()); err != nil {
		return fmt.Errorf("record migration %s: %w", name, err)
	}
	return tx.Commit(ctx)
}

func resolveFS(opts Options) (fs.FS, error) {
	if opts.FS != nil {
		return opts.FS, nil
	}
	if strings.TrimSpace(opts.Dir) != "" {
		return os.DirFS(filepath.Clean(opts.Dir)), nil
	}

	// prefer CWD/migrations
	if dir, err := filepath.Abs("migrations"); err == nil {
		if st, err := os.Stat(dir); err == nil && st.IsDir() {
			return os.DirFS(dir), nil
		}
	}

	// fallback to executable dir/migrations
	exe, err := os.Executable()
	if err != nil {
		return nil, fmt.Errorf("resolve migrations dir: %w", err)
	}
	dir := filepath.Join(filepath.Dir(exe), "migrations")
	st, err := os.Stat(dir)
	if err != nil || !st.IsDir() {
		return nil, fmt.Errorf("migrations dir not found (tried %s)", dir)
	}
	return os.DirFS(dir), nil
}
