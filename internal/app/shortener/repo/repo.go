package repo

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"hexlink.local/internal/app/shortener"
)

// Backend is what every storage implementation in this package provides.
type Backend interface {
	shortener.LinkStore
	shortener.LinkReader
	// List returns every stored link, newest first.
	List(ctx context.Context) ([]shortener.Link, error)
	Ping(ctx context.Context) error
	Close() error
}

var (
	_ Backend = (*PostgresStore)(nil)
	_ Backend = (*SQLiteStore)(nil)
	_ Backend = (*JSONFileStore)(nil)
	_ Backend = (*MemoryStore)(nil)
	_ Backend = (*CachedStore)(nil)
)

func unavailable(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, shortener.ErrStoreUnavailable, err)
}

func duplicate(id string, err error) error {
	if err == nil {
		return fmt.Errorf("insert %s: %w", id, shortener.ErrDuplicateIdentifier)
	}
	return fmt.Errorf("insert %s: %w: %w", id, shortener.ErrDuplicateIdentifier, err)
}

// schemaGate runs an idempotent setup step before the first operation. A
// failed attempt is not remembered, the next call tries again.
type schemaGate struct {
	done atomic.Bool
	mu   sync.Mutex
}

func (g *schemaGate) ensure(ctx context.Context, setup func(context.Context) error) error {
	if g.done.Load() {
		return nil
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.done.Load() {
		return nil
	}
	if err := setup(ctx); err != nil {
		return err
	}
	g.done.Store(true)
	return nil
}
