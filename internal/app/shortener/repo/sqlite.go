package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"hexlink.local/internal/app/shortener"

	"github.com/mattn/go-sqlite3"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS links (
  link_id      TEXT PRIMARY KEY CHECK (length(link_id) = 8),
  original_url TEXT NOT NULL,
  created_at   TIMESTAMP NOT NULL,
  updated_at   TIMESTAMP NOT NULL
);`

// SQLiteStore is a Backend on a local SQLite file.
type SQLiteStore struct {
	db      *sql.DB
	timeout time.Duration
	schema  schemaGate
}

// NewSQLiteStore opens (or creates) the database at path. busyTimeout bounds
// how long a statement waits for another writer's lock.
func NewSQLiteStore(path string, timeout, busyTimeout time.Duration) (*SQLiteStore, error) {
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	dsn := fmt.Sprintf("file:%s?_busy_timeout=%d&_journal_mode=WAL", path, busyTimeout.Milliseconds())
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("could not open SQLite database: %w", err)
	}
	if path == ":memory:" {
		// every pooled connection would get its own empty database
		db.SetMaxOpenConns(1)
	}
	return &SQLiteStore{db: db, timeout: timeout}, nil
}

func (s *SQLiteStore) conn(ctx context.Context) (*sql.Conn, error) {
	err := s.schema.ensure(ctx, func(ctx context.Context) error {
		_, err := s.db.ExecContext(ctx, sqliteSchema)
		return err
	})
	if err != nil {
		return nil, classifySQLite("ensure schema", err)
	}
	c, err := s.db.Conn(ctx)
	if err != nil {
		return nil, classifySQLite("acquire conn", err)
	}
	return c, nil
}

func (s *SQLiteStore) ListIdentifiers(ctx context.Context) (map[string]struct{}, error) {
	dbctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	c, err := s.conn(dbctx)
	if err != nil {
		return nil, err
	}
	defer c.Close()

	rows, err := c.QueryContext(dbctx, "SELECT link_id FROM links")
	if err != nil {
		return nil, classifySQLite("list identifiers", err)
	}
	defer rows.Close()

	set := make(map[string]struct{})
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, classifySQLite("list identifiers", err)
		}
		set[id] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return nil, classifySQLite("list identifiers", err)
	}
	return set, nil
}

func (s *SQLiteStore) Insert(ctx context.Context, id string, url string) error {
	dbctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	c, err := s.conn(dbctx)
	if err != nil {
		return err
	}
	defer c.Close()

	now := time.Now().UTC()
	_, err = c.ExecContext(dbctx,
		"INSERT INTO links (link_id, original_url, created_at, updated_at) VALUES (?, ?, ?, ?)",
		id, url, now, now)
	if err != nil {
		var se sqlite3.Error
		if errors.As(err, &se) && se.Code == sqlite3.ErrConstraint &&
			(se.ExtendedCode == sqlite3.ErrConstraintPrimaryKey || se.ExtendedCode == sqlite3.ErrConstraintUnique) {
			return duplicate(id, err)
		}
		slog.Error("sqlite insert failed", "id", id, "err", err)
		return classifySQLite("insert "+id, err)
	}
	return nil
}

func (s *SQLiteStore) Lookup(ctx context.Context, id string) (shortener.Link, error) {
	dbctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	c, err := s.conn(dbctx)
	if err != nil {
		return shortener.Link{}, err
	}
	defer c.Close()

	var l shortener.Link
	err = c.QueryRowContext(dbctx, "SELECT link_id, original_url, created_at, updated_at FROM links WHERE link_id = ?", id).
		Scan(&l.ID, &l.URL, &l.CreatedAt, &l.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return shortener.Link{}, shortener.ErrNotFound
		}
		return shortener.Link{}, classifySQLite("lookup "+id, err)
	}
	return l, nil
}

func (s *SQLiteStore) List(ctx context.Context) ([]shortener.Link, error) {
	dbctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	c, err := s.conn(dbctx)
	if err != nil {
		return nil, err
	}
	defer c.Close()

	rows, err := c.QueryContext(dbctx, "SELECT link_id, original_url, created_at, updated_at FROM links ORDER BY created_at DESC, link_id")
	if err != nil {
		return nil, classifySQLite("list links", err)
	}
	defer rows.Close()

	var links []shortener.Link
	for rows.Next() {
		var l shortener.Link
		if err := rows.Scan(&l.ID, &l.URL, &l.CreatedAt, &l.UpdatedAt); err != nil {
			return nil, classifySQLite("list links", err)
		}
		links = append(links, l)
	}
	if err := rows.Err(); err != nil {
		return nil, classifySQLite("list links", err)
	}
	return links, nil
}

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// classifySQLite 把 busy/locked 归为锁超时，其余都算存储不可用。
func classifySQLite(op string, err error) error {
	var se sqlite3.Error
	if errors.As(err, &se) && (se.Code == sqlite3.ErrBusy || se.Code == sqlite3.ErrLocked) {
		return unavailable(op, errors.Join(shortener.ErrLockTimeout, err))
	}
	return unavailable(op, err)
}
