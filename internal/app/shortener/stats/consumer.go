package stats

import (
	"context"
	"log/slog"
	"time"
)

// Recorder persists a batch of click events.
type Recorder interface {
	RecordClicks(ctx context.Context, batch []ClickEvent) error
}

// LogRecorder writes batches to the default logger. Used when the backend
// has no click table.
type LogRecorder struct{}

func (LogRecorder) RecordClicks(ctx context.Context, batch []ClickEvent) error {
	for _, e := range batch {
		slog.Info("click", "id", e.ID, "clicked_at", e.ClickedAt, "referer", e.Referer, "user_agent", e.UserAgent)
	}
	return nil
}

// batcher 按条数或时间间隔触发 flush，两种 consumer 共用。
type batcher struct {
	recorder  Recorder
	batchSize int
	interval  time.Duration
	name      string
}

func (b *batcher) run(ctx context.Context, events <-chan ClickEvent) {
	batch := make([]ClickEvent, 0, b.batchSize)
	ticker := time.NewTicker(b.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			b.flush(batch) // 清理剩余事件
			return
		case event, ok := <-events:
			if !ok {
				b.flush(batch)
				return
			}
			batch = append(batch, event)
			if len(batch) >= b.batchSize {
				b.flush(batch)
				batch = batch[:0] // 保留容量，避免反复分配
			}
		case <-ticker.C:
			if len(batch) > 0 {
				b.flush(batch)
				batch = batch[:0]
			}
		}
	}
}

func (b *batcher) flush(batch []ClickEvent) {
	if len(batch) == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := b.recorder.RecordClicks(ctx, batch); err != nil {
		slog.Error(b.name+": flush failed", "count", len(batch), "err", err)
		return
	}
	slog.Debug(b.name+": flushed", "count", len(batch))
}

// Consumer drains a ChannelCollector into a Recorder.
type Consumer struct {
	collector *ChannelCollector
	batcher
}

func NewConsumer(recorder Recorder, collector *ChannelCollector) *Consumer {
	return &Consumer{
		collector: collector,
		batcher: batcher{
			recorder:  recorder,
			batchSize: 100,         // 批量写入大小
			interval:  time.Second, // 最大等待时间
			name:      "click stats",
		},
	}
}

// Run blocks until ctx is done or the collector is closed.
func (c *Consumer) Run(ctx context.Context) {
	c.run(ctx, c.collector.Events())
}
