package cache

import (
	"context"
	"os"
	"strconv"
	"testing"
	"time"

	"hexlink.local/internal/app/shortener"

	"github.com/google/go-cmp/cmp"
	"github.com/redis/go-redis/v9"
)

func newLocal(t *testing.T) *LocalCache {
	t.Helper()
	l, err := NewLocalCache(1000, 1<<20)
	if err != nil {
		t.Fatalf("NewLocalCache: %v", err)
	}
	t.Cleanup(l.Close)
	return l
}

func TestLocalCache_SetGetDel(t *testing.T) {
	l := newLocal(t)

	link := shortener.Link{ID: "0badcafe", URL: "https://example.com"}
	l.Set(Entry{Link: link})
	l.Wait()

	got, ok := l.Get("0badcafe")
	if !ok {
		t.Fatal("expected hit after Set")
	}
	if diff := cmp.Diff(Entry{Link: link}, got); diff != "" {
		t.Fatalf("entry mismatch (-want +got):\n%s", diff)
	}

	l.Del("0badcafe")
	l.Wait()
	if _, ok := l.Get("0badcafe"); ok {
		t.Fatal("expected miss after Del")
	}
}

func TestLocalCache_NegativeEntry(t *testing.T) {
	l := newLocal(t)

	l.Set(missing("deadbeef"))
	l.Wait()

	got, ok := l.Get("deadbeef")
	if !ok || !got.Missing {
		t.Fatalf("got %+v ok=%v, want negative hit", got, ok)
	}
}

func TestLinkCache_LocalOnly(t *testing.T) {
	l := newLocal(t)
	c := NewLinkCache(nil, l)
	ctx := context.Background()

	if _, found, err := c.Get(ctx, "12345678"); err != nil || found {
		t.Fatalf("cold cache: found=%v err=%v", found, err)
	}

	link := shortener.Link{ID: "12345678", URL: "https://example.com/a"}
	if err := c.Set(ctx, link); err != nil {
		t.Fatalf("Set: %v", err)
	}
	l.Wait()
	e, found, err := c.Get(ctx, "12345678")
	if err != nil || !found || e.Missing || e.Link.URL != link.URL {
		t.Fatalf("after Set: %+v found=%v err=%v", e, found, err)
	}

	if err := c.Delete(ctx, "12345678"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	l.Wait()
	if _, found, _ := c.Get(ctx, "12345678"); found {
		t.Fatal("expected miss after Delete")
	}

	if err := c.SetNotFound(ctx, "87654321"); err != nil {
		t.Fatalf("SetNotFound: %v", err)
	}
	l.Wait()
	e, found, _ = c.Get(ctx, "87654321")
	if !found || !e.Missing {
		t.Fatalf("negative entry: %+v found=%v", e, found)
	}
}

func TestBloomFilter(t *testing.T) {
	b := NewBloomFilter(1000, 0.01)

	if b.MightExist("aaaaaaaa") {
		t.Fatal("empty filter reports membership")
	}
	b.Add("aaaaaaaa")
	b.AddAll(map[string]struct{}{"bbbbbbbb": {}, "cccccccc": {}})

	for _, id := range []string{"aaaaaaaa", "bbbbbbbb", "cccccccc"} {
		if !b.MightExist(id) {
			t.Fatalf("%s added but MightExist=false", id)
		}
	}
	if n := b.Count(); n < 2 || n > 4 {
		t.Fatalf("Count: got %d, want about 3", n)
	}
}

func TestLinkCache_Redis(t *testing.T) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		addr = "localhost:6379"
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	t.Cleanup(func() { _ = client.Close() })

	pingCtx, cancel := context.WithTimeout(context.Background(), 800*time.Millisecond)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		t.Skipf("skip: cannot connect to redis at %s: %v", addr, err)
	}

	ctx := context.Background()
	c := NewLinkCache(client, nil)
	id := strconv.FormatInt(time.Now().UnixNano()%0xffffffff, 16)
	t.Cleanup(func() { _ = c.Delete(context.Background(), id) })

	created := time.Now().UTC().Truncate(time.Second)
	if err := c.Set(ctx, shortener.Link{ID: id, URL: "https://example.com/r", CreatedAt: created}); err != nil {
		t.Fatalf("Set: %v", err)
	}
	e, found, err := c.Get(ctx, id)
	if err != nil || !found {
		t.Fatalf("Get: found=%v err=%v", found, err)
	}
	if e.Link.URL != "https://example.com/r" || !e.Link.CreatedAt.Equal(created) {
		t.Fatalf("Get: %+v", e)
	}

	if err := c.SetNotFound(ctx, id); err != nil {
		t.Fatalf("SetNotFound: %v", err)
	}
	e, found, _ = c.Get(ctx, id)
	if !found || !e.Missing {
		t.Fatalf("negative: %+v found=%v", e, found)
	}
}
