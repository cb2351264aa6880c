package stats

import (
	"sync"
	"time"

	"hexlink.local/internal/platform/metrics"
)

// 点击事件
type ClickEvent struct {
	ID        string    `json:"id"`
	ClickedAt time.Time `json:"clicked_at"`
	IP        string    `json:"ip"`
	UserAgent string    `json:"user_agent"`
	Referer   string    `json:"referer"`
}

// Collector accepts click events without blocking the redirect path.
type Collector interface {
	Collect(event ClickEvent)
	Close()
}

// ChannelCollector 基于 channel 的收集器，缓冲区满时直接丢弃。
type ChannelCollector struct {
	mu     sync.RWMutex
	ch     chan ClickEvent
	closed bool
}

func NewChannelCollector(bufferSize int) *ChannelCollector {
	return &ChannelCollector{
		ch: make(chan ClickEvent, bufferSize),
	}
}

func (c *ChannelCollector) Collect(event ClickEvent) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		metrics.ClicksDropped.Inc()
		return
	}
	select {
	case c.ch <- event:
	default:
		metrics.ClicksDropped.Inc()
	}
}

func (c *ChannelCollector) Events() <-chan ClickEvent {
	return c.ch
}

// Close is idempotent. Events already buffered stay readable.
func (c *ChannelCollector) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.ch)
}
