package repo

import (
	"context"
	"embed"
	"errors"
	"io/fs"
	"log/slog"
	"time"

	"hexlink.local/internal/app/shortener"
	"hexlink.local/internal/app/shortener/stats"
	"hexlink.local/internal/platform/migrate"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

// Migrations returns the embedded Postgres schema files.
func Migrations() fs.FS {
	sub, err := fs.Sub(migrationFiles, "migrations")
	if err != nil {
		panic("repo: embedded migrations missing: " + err.Error())
	}
	return sub
}

// PostgresStore 基于 pgxpool 的存储。每个操作单独 Acquire 一个连接，用完即 Release。
type PostgresStore struct {
	db      *pgxpool.Pool
	timeout time.Duration
	schema  schemaGate
}

// NewPostgresStore takes ownership of db; Close closes the pool.
func NewPostgresStore(db *pgxpool.Pool, timeout time.Duration) *PostgresStore {
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	return &PostgresStore{db: db, timeout: timeout}
}

// Migrate applies the embedded schema. Operations call it lazily, the CLI
// calls it explicitly.
func (s *PostgresStore) Migrate(ctx context.Context) (*migrate.Result, error) {
	return migrate.Up(ctx, s.db, migrate.Options{FS: Migrations()})
}

func (s *PostgresStore) ensureSchema(ctx context.Context) error {
	return s.schema.ensure(ctx, func(ctx context.Context) error {
		res, err := s.Migrate(ctx)
		if err != nil {
			return err
		}
		if len(res.AppliedFiles) > 0 {
			slog.Info("postgres schema migrated", "applied", res.AppliedFiles)
		}
		return nil
	})
}

// acquire 保证 schema 存在后再取连接；调用方必须 defer conn.Release()。
func (s *PostgresStore) acquire(ctx context.Context) (*pgxpool.Conn, error) {
	if err := s.ensureSchema(ctx); err != nil {
		return nil, unavailable("ensure schema", err)
	}
	conn, err := s.db.Acquire(ctx)
	if err != nil {
		return nil, unavailable("acquire conn", err)
	}
	return conn, nil
}

func (s *PostgresStore) ListIdentifiers(ctx context.Context) (map[string]struct{}, error) {
	dbctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	conn, err := s.acquire(dbctx)
	if err != nil {
		slog.Error("list identifiers failed", "err", err)
		return nil, err
	}
	defer conn.Release()

	rows, err := conn.Query(dbctx, "SELECT link_id FROM links")
	if err != nil {
		slog.Error("list identifiers failed", "err", err)
		return nil, unavailable("list identifiers", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		slog.Error("list identifiers failed", "err", err)
		return nil, unavailable("list identifiers", err)
	}

	set := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set, nil
}

func (s *PostgresStore) Insert(ctx context.Context, id string, url string) error {
	dbctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	conn, err := s.acquire(dbctx)
	if err != nil {
		slog.Error("insert link failed", "id", id, "err", err)
		return err
	}
	defer conn.Release()

	_, err = conn.Exec(dbctx, "INSERT INTO links (link_id, original_url) VALUES ($1, $2)", id, url)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return duplicate(id, err)
		}
		if errors.As(err, &pgErr) && pgErr.Code == "55P03" {
			return unavailable("insert "+id, errors.Join(shortener.ErrLockTimeout, err))
		}
		slog.Error("insert link failed", "id", id, "err", err)
		return unavailable("insert "+id, err)
	}
	return nil
}

func (s *PostgresStore) Lookup(ctx context.Context, id string) (shortener.Link, error) {
	dbctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	conn, err := s.acquire(dbctx)
	if err != nil {
		return shortener.Link{}, err
	}
	defer conn.Release()

	var l shortener.Link
	err = conn.QueryRow(dbctx, "SELECT link_id, original_url, created_at, updated_at FROM links WHERE link_id=$1", id).
		Scan(&l.ID, &l.URL, &l.CreatedAt, &l.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return shortener.Link{}, shortener.ErrNotFound
		}
		slog.Error("lookup link failed", "id", id, "err", err)
		return shortener.Link{}, unavailable("lookup "+id, err)
	}
	return l, nil
}

func (s *PostgresStore) List(ctx context.Context) ([]shortener.Link, error) {
	dbctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	conn, err := s.acquire(dbctx)
	if err != nil {
		return nil, err
	}
	defer conn.Release()

	rows, err := conn.Query(dbctx, "SELECT link_id, original_url, created_at, updated_at FROM links ORDER BY created_at DESC, link_id")
	if err != nil {
		return nil, unavailable("list links", err)
	}
	defer rows.Close()

	var links []shortener.Link
	for rows.Next() {
		var l shortener.Link
		if err := rows.Scan(&l.ID, &l.URL, &l.CreatedAt, &l.UpdatedAt); err != nil {
			return nil, unavailable("list links", err)
		}
		links = append(links, l)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("list links", err)
	}
	return links, nil
}

// RecordClicks 批量写入点击明细并更新计数，整批在一个事务里。
func (s *PostgresStore) RecordClicks(ctx context.Context, batch []stats.ClickEvent) error {
	if len(batch) == 0 {
		return nil
	}
	dbctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	conn, err := s.acquire(dbctx)
	if err != nil {
		return err
	}
	defer conn.Release()

	tx, err := conn.Begin(dbctx)
	if err != nil {
		return unavailable("record clicks", err)
	}
	defer tx.Rollback(context.Background()) // 提交成功后 rollback 无效，可忽略

	counts := make(map[string]int64)
	for _, e := range batch {
		if _, err := tx.Exec(dbctx,
			`INSERT INTO link_clicks (link_id, clicked_at, ip, user_agent, referer) VALUES ($1,$2,$3,$4,$5)`,
			e.ID, e.ClickedAt, e.IP, e.UserAgent, e.Referer); err != nil {
			return unavailable("record clicks", err)
		}
		counts[e.ID]++
	}
	for id, n := range counts {
		if _, err := tx.Exec(dbctx, `UPDATE links SET click_count = click_count + $1 WHERE link_id = $2`, n, id); err != nil {
			return unavailable("record clicks", err)
		}
	}

	if err := tx.Commit(dbctx); err != nil {
		return unavailable("record clicks", err)
	}
	return nil
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

func (s *PostgresStore) Close() error {
	s.db.Close()
	return nil
}
