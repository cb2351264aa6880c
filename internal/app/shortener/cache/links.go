package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"hexlink.local/internal/app/shortener"
	"hexlink.local/internal/platform/metrics"

	"github.com/redis/go-redis/v9"
)

// 负缓存哨兵值。不要用 "" 作哨兵，容易把"未命中"和"命中空值"混淆。
const notFoundSentinel = "__nil__"

const keyPrefix = "hl:"

// LinkCache is the two-level resolve cache: an optional local L1 in front of
// Redis. L2 hits are copied into L1.
type LinkCache struct {
	client   *redis.Client
	local    *LocalCache
	ttl      time.Duration
	emptyTTL time.Duration
}

type cachedLink struct {
	URL       string    `json:"u"`
	CreatedAt time.Time `json:"c"`
	UpdatedAt time.Time `json:"m"`
}

func NewLinkCache(client *redis.Client, local *LocalCache) *LinkCache {
	return &LinkCache{
		client:   client,
		local:    local,
		ttl:      time.Hour,
		emptyTTL: 30 * time.Second,
	}
}

// Get reports found=false on a miss in both levels.
func (c *LinkCache) Get(ctx context.Context, id string) (Entry, bool, error) {
	// L1
	if c.local != nil {
		if e, ok := c.local.Get(id); ok {
			if e.Missing {
				metrics.CacheOperations.WithLabelValues("l1", "hit_negative").Inc()
			} else {
				metrics.CacheOperations.WithLabelValues("l1", "hit").Inc()
			}
			return e, true, nil
		}
	}
	if c.client == nil {
		return Entry{}, false, nil
	}

	// L2
	res, err := c.client.Get(ctx, keyPrefix+id).Result()
	if errors.Is(err, redis.Nil) {
		metrics.CacheOperations.WithLabelValues("l2", "miss").Inc()
		return Entry{}, false, nil
	}
	if err != nil {
		return Entry{}, false, fmt.Errorf("redis get %s: %w", id, err)
	}

	var e Entry
	if res == notFoundSentinel {
		metrics.CacheOperations.WithLabelValues("l2", "hit_negative").Inc()
		e = missing(id)
	} else {
		var cl cachedLink
		if err := json.Unmarshal([]byte(res), &cl); err != nil {
			// 旧格式或脏数据：当作未命中，稍后会被覆盖
			slog.Warn("cache decode failed", "id", id, "err", err)
			return Entry{}, false, nil
		}
		metrics.CacheOperations.WithLabelValues("l2", "hit").Inc()
		e = Entry{Link: shortener.Link{ID: id, URL: cl.URL, CreatedAt: cl.CreatedAt, UpdatedAt: cl.UpdatedAt}}
	}

	// 回填本地缓存
	if c.local != nil {
		c.local.Set(e)
	}
	return e, true, nil
}

func (c *LinkCache) Set(ctx context.Context, link shortener.Link) error {
	if c.local != nil {
		c.local.Set(Entry{Link: link})
	}
	if c.client == nil {
		return nil
	}
	data, err := json.Marshal(cachedLink{URL: link.URL, CreatedAt: link.CreatedAt, UpdatedAt: link.UpdatedAt})
	if err != nil {
		return err
	}
	return c.client.Set(ctx, keyPrefix+link.ID, data, c.ttl).Err()
}

// SetNotFound 写负缓存，避免缓存穿透。
func (c *LinkCache) SetNotFound(ctx context.Context, id string) error {
	if c.local != nil {
		c.local.Set(missing(id))
	}
	if c.client == nil {
		return nil
	}
	return c.client.Set(ctx, keyPrefix+id, notFoundSentinel, c.emptyTTL).Err()
}

func (c *LinkCache) Delete(ctx context.Context, id string) error {
	if c.local != nil {
		c.local.Del(id)
	}
	if c.client == nil {
		return nil
	}
	return c.client.Del(ctx, keyPrefix+id).Err()
}

// Close 关闭本地缓存；Redis 客户端由创建方关闭。
func (c *LinkCache) Close() {
	if c.local != nil {
		c.local.Close()
		slog.Info("本地缓存已关闭")
	}
}
