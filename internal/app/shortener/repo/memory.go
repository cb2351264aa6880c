package repo

import (
	"context"
	"sync"
	"time"

	"hexlink.local/internal/app/shortener"
)

// MemoryStore is a process-local Backend for tests and throwaway runs.
type MemoryStore struct {
	mu    sync.RWMutex
	links map[string]shortener.Link
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{links: make(map[string]shortener.Link)}
}

func (m *MemoryStore) ListIdentifiers(ctx context.Context) (map[string]struct{}, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	set := make(map[string]struct{}, len(m.links))
	for id := range m.links {
		set[id] = struct{}{}
	}
	return set, nil
}

func (m *MemoryStore) Insert(ctx context.Context, id string, url string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.links[id]; ok {
		return duplicate(id, nil)
	}
	now := time.Now().UTC()
	m.links[id] = shortener.Link{ID: id, URL: url, CreatedAt: now, UpdatedAt: now}
	return nil
}

func (m *MemoryStore) Lookup(ctx context.Context, id string) (shortener.Link, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	l, ok := m.links[id]
	if !ok {
		return shortener.Link{}, shortener.ErrNotFound
	}
	return l, nil
}

func (m *MemoryStore) List(ctx context.Context) ([]shortener.Link, error) {
	m.mu.RLock()
	links := make([]shortener.Link, 0, len(m.links))
	for _, l := range m.links {
		links = append(links, l)
	}
	m.mu.RUnlock()
	sortNewestFirst(links)
	return links, nil
}

func (m *MemoryStore) Ping(context.Context) error { return nil }

func (m *MemoryStore) Close() error { return nil }
