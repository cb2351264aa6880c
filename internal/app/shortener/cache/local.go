package cache

import (
	"time"

	"github.com/dgraph-io/ristretto"
)

// LocalCache 基于 ristretto 的本地内存缓存（L1）。
type LocalCache struct {
	cache    *ristretto.Cache
	ttl      time.Duration
	emptyTTL time.Duration
}

// NewLocalCache
// maxItems: 最大缓存条目数（建议 10000-100000）
// maxCost: 最大内存占用（字节）
func NewLocalCache(maxItems int64, maxCost int64) (*LocalCache, error) {
	cache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: maxItems * 10, // 建议为 maxItems 的 10 倍
		MaxCost:     maxCost,
		BufferItems: 64,
	})
	if err != nil {
		return nil, err
	}
	return &LocalCache{
		cache:    cache,
		ttl:      5 * time.Minute, // 比 L2 短，保证多实例一致性
		emptyTTL: 10 * time.Second,
	}, nil
}

func (l *LocalCache) Get(id string) (Entry, bool) {
	v, ok := l.cache.Get(id)
	if !ok {
		return Entry{}, false
	}
	e, ok := v.(Entry)
	return e, ok
}

func (l *LocalCache) Set(e Entry) {
	ttl := l.ttl
	if e.Missing {
		ttl = l.emptyTTL
	}
	// cost=1 表示按条目数限制
	l.cache.SetWithTTL(e.Link.ID, e, 1, ttl)
}

func (l *LocalCache) Del(id string) {
	l.cache.Del(id)
}

// Wait blocks until buffered writes are applied. Sets are asynchronous.
func (l *LocalCache) Wait() {
	l.cache.Wait()
}

func (l *LocalCache) Close() {
	l.cache.Close()
}
