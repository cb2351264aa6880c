package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"hexlink.local/internal/app/shortener"

	"github.com/gofrs/flock"
)

const lockRetryInterval = 50 * time.Millisecond

// JSONFileStore keeps every link in one JSON document. Cross-process access is
// serialized with an flock on "<path>.lock"; writes go to a temp file that is
// renamed over the original, so readers never see a half-written document.
type JSONFileStore struct {
	path        string
	lock        *flock.Flock
	lockTimeout time.Duration
	mu          sync.Mutex // flock 是按文件句柄加锁的，同进程内的 goroutine 还需要这一层
	schema      schemaGate
}

type jsonDocument struct {
	Links     map[string]jsonRecord `json:"links"`
	UpdatedAt time.Time             `json:"updated_at"`
}

type jsonRecord struct {
	URL       string    `json:"original_url"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func NewJSONFileStore(path string, lockTimeout time.Duration) *JSONFileStore {
	if lockTimeout <= 0 {
		lockTimeout = 10 * time.Second
	}
	return &JSONFileStore{
		path:        path,
		lock:        flock.New(path + ".lock"),
		lockTimeout: lockTimeout,
	}
}

// withLock runs fn holding both the in-process mutex and the file lock. The
// file lock is always released before returning.
func (s *JSONFileStore) withLock(ctx context.Context, fn func() error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	lockCtx, cancel := context.WithTimeout(ctx, s.lockTimeout)
	defer cancel()

	locked, err := s.lock.TryLockContext(lockCtx, lockRetryInterval)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return unavailable("acquire file lock", errors.Join(shortener.ErrLockTimeout, err))
		}
		return unavailable("acquire file lock", err)
	}
	if !locked {
		return unavailable("acquire file lock", shortener.ErrLockTimeout)
	}
	defer func() { _ = s.lock.Unlock() }()

	if err := s.schema.ensure(ctx, s.createIfMissing); err != nil {
		return unavailable("ensure file", err)
	}
	return fn()
}

func (s *JSONFileStore) createIfMissing(context.Context) error {
	if _, err := os.Stat(s.path); err == nil {
		return nil
	} else if !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return s.writeLocked(&jsonDocument{Links: map[string]jsonRecord{}, UpdatedAt: time.Now().UTC()})
}

func (s *JSONFileStore) readLocked() (*jsonDocument, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return &jsonDocument{Links: map[string]jsonRecord{}}, nil
		}
		return nil, fmt.Errorf("read %s: %w", s.path, err)
	}
	doc := &jsonDocument{}
	if len(data) > 0 {
		if err := json.Unmarshal(data, doc); err != nil {
			return nil, fmt.Errorf("parse %s: %w", s.path, err)
		}
	}
	if doc.Links == nil {
		doc.Links = map[string]jsonRecord{}
	}
	return doc, nil
}

func (s *JSONFileStore) writeLocked(doc *jsonDocument) error {
	data, err := json.MarshalIndent(doc, "", "    ")
	if err != nil {
		return fmt.Errorf("encode links: %w", err)
	}

	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) // no-op after a successful rename

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		return fmt.Errorf("replace %s: %w", s.path, err)
	}
	return nil
}

func (s *JSONFileStore) ListIdentifiers(ctx context.Context) (map[string]struct{}, error) {
	var set map[string]struct{}
	err := s.withLock(ctx, func() error {
		doc, err := s.readLocked()
		if err != nil {
			return unavailable("list identifiers", err)
		}
		set = make(map[string]struct{}, len(doc.Links))
		for id := range doc.Links {
			set[id] = struct{}{}
		}
		return nil
	})
	return set, err
}

func (s *JSONFileStore) Insert(ctx context.Context, id string, url string) error {
	return s.withLock(ctx, func() error {
		doc, err := s.readLocked()
		if err != nil {
			return unavailable("insert "+id, err)
		}
		if _, exists := doc.Links[id]; exists {
			return duplicate(id, errors.New("key already present in "+s.path))
		}
		now := time.Now().UTC()
		doc.Links[id] = jsonRecord{URL: url, CreatedAt: now, UpdatedAt: now}
		doc.UpdatedAt = now
		if err := s.writeLocked(doc); err != nil {
			return unavailable("insert "+id, err)
		}
		return nil
	})
}

func (s *JSONFileStore) Lookup(ctx context.Context, id string) (shortener.Link, error) {
	var link shortener.Link
	err := s.withLock(ctx, func() error {
		doc, err := s.readLocked()
		if err != nil {
			return unavailable("lookup "+id, err)
		}
		rec, ok := doc.Links[id]
		if !ok {
			return shortener.ErrNotFound
		}
		link = rec.link(id)
		return nil
	})
	return link, err
}

func (s *JSONFileStore) List(ctx context.Context) ([]shortener.Link, error) {
	var links []shortener.Link
	err := s.withLock(ctx, func() error {
		doc, err := s.readLocked()
		if err != nil {
			return unavailable("list links", err)
		}
		links = make([]shortener.Link, 0, len(doc.Links))
		for id, rec := range doc.Links {
			links = append(links, rec.link(id))
		}
		return nil
	})
	sortNewestFirst(links)
	return links, err
}

func (s *JSONFileStore) Ping(ctx context.Context) error {
	return s.withLock(ctx, func() error { return nil })
}

func (s *JSONFileStore) Close() error {
	return s.lock.Close()
}

func (r jsonRecord) link(id string) shortener.Link {
	return shortener.Link{ID: id, URL: r.URL, CreatedAt: r.CreatedAt, UpdatedAt: r.UpdatedAt}
}

func sortNewestFirst(links []shortener.Link) {
	sort.Slice(links, func(i, j int) bool {
		if !links[i].CreatedAt.Equal(links[j].CreatedAt) {
			return links[i].CreatedAt.After(links[j].CreatedAt)
		}
		return links[i].ID < links[j].ID
	})
}
