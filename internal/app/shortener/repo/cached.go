package repo

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"hexlink.local/internal/app/shortener"
	"hexlink.local/internal/app/shortener/cache"
	"hexlink.local/internal/platform/metrics"
)

const cacheTimeout = 50 * time.Millisecond

// CachedStore puts the resolve cache and bloom filter in front of a Backend.
// Cache failures are logged and never fail the call.
type CachedStore struct {
	Backend
	cache *cache.LinkCache
	bloom *cache.BloomFilter
}

// NewCachedStore wraps inner. Either of c and bloom may be nil.
func NewCachedStore(inner Backend, c *cache.LinkCache, bloom *cache.BloomFilter) *CachedStore {
	return &CachedStore{Backend: inner, cache: c, bloom: bloom}
}

// Warm 用当前所有短码预热布隆过滤器。
func (s *CachedStore) Warm(ctx context.Context) error {
	if s.bloom == nil {
		return nil
	}
	ids, err := s.Backend.ListIdentifiers(ctx)
	if err != nil {
		return err
	}
	s.bloom.AddAll(ids)
	slog.Info("bloom filter warmed", "ids", len(ids))
	return nil
}

func (s *CachedStore) Insert(ctx context.Context, id string, url string) error {
	if err := s.Backend.Insert(ctx, id, url); err != nil {
		return err
	}
	if s.bloom != nil {
		s.bloom.Add(id)
	}
	// 覆盖可能存在的负缓存
	if s.cache != nil {
		cctx, cancel := context.WithTimeout(ctx, cacheTimeout)
		defer cancel()
		if err := s.cache.Delete(cctx, id); err != nil {
			slog.Warn("cache invalidate failed", "id", id, "err", err)
		}
	}
	return nil
}

func (s *CachedStore) Lookup(ctx context.Context, id string) (shortener.Link, error) {
	if s.bloom != nil && !s.bloom.MightExist(id) {
		metrics.CacheOperations.WithLabelValues("bloom", "reject").Inc()
		return shortener.Link{}, shortener.ErrNotFound
	}

	if s.cache != nil {
		cctx, cancel := context.WithTimeout(ctx, cacheTimeout)
		e, found, err := s.cache.Get(cctx, id)
		cancel()
		if err != nil {
			slog.Warn("cache get failed", "id", id, "err", err)
		}
		if found {
			if e.Missing {
				return shortener.Link{}, shortener.ErrNotFound
			}
			return e.Link, nil
		}
	}

	link, err := s.Backend.Lookup(ctx, id)
	if s.cache == nil {
		return link, err
	}

	cctx, cancel := context.WithTimeout(ctx, cacheTimeout)
	defer cancel()
	switch {
	case err == nil:
		if cerr := s.cache.Set(cctx, link); cerr != nil {
			slog.Warn("cache set failed", "id", id, "err", cerr)
		}
	case errors.Is(err, shortener.ErrNotFound):
		if cerr := s.cache.SetNotFound(cctx, id); cerr != nil {
			slog.Warn("cache set negative failed", "id", id, "err", cerr)
		}
	}
	return link, err
}

func (s *CachedStore) Close() error {
	if s.cache != nil {
		s.cache.Close()
	}
	return s.Backend.Close()
}
