package stats

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"
)

type KafkaCollector struct {
	writer *kafka.Writer
}

func NewKafkaCollector(brokers []string, topic string) *KafkaCollector {
	return &KafkaCollector{
		writer: &kafka.Writer{
			Addr:     kafka.TCP(brokers...),
			Topic:    topic,
			Balancer: &kafka.Hash{}, // 同一个短码落在同一分区
			Async:    true,
		},
	}
}

func (k *KafkaCollector) Collect(event ClickEvent) {
	data, err := json.Marshal(event)
	if err != nil {
		slog.Error("kafka encode failed", "err", err)
		return
	}
	if err := k.writer.WriteMessages(context.Background(), kafka.Message{
		Key:   []byte(event.ID),
		Value: data,
	}); err != nil {
		slog.Error("kafka write failed", "err", err)
	}
}

func (k *KafkaCollector) Close() {
	if err := k.writer.Close(); err != nil {
		slog.Error("kafka writer close failed", "err", err)
	}
}

type KafkaConsumer struct {
	reader *kafka.Reader
	batcher
}

func NewKafkaConsumer(brokers []string, topic string, recorder Recorder) *KafkaConsumer {
	return &KafkaConsumer{
		reader: kafka.NewReader(kafka.ReaderConfig{
			Brokers:  brokers,
			Topic:    topic,
			GroupID:  "hexlink-click-stats",
			MinBytes: 1,
			MaxBytes: 10e6,
		}),
		batcher: batcher{
			recorder:  recorder,
			batchSize: 100,
			interval:  time.Second,
			name:      "kafka consumer",
		},
	}
}

// Run blocks until ctx is done.
func (k *KafkaConsumer) Run(ctx context.Context) {
	events := make(chan ClickEvent, k.batchSize)

	go func() {
		defer close(events)
		for {
			msg, err := k.reader.ReadMessage(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				slog.Error("kafka read failed", "err", err)
				select {
				case <-time.After(time.Second):
				case <-ctx.Done():
					return
				}
				continue
			}
			var event ClickEvent
			if err := json.Unmarshal(msg.Value, &event); err != nil {
				slog.Error("unmarshal event failed", "err", err)
				continue
			}
			select {
			case events <- event:
			case <-ctx.Done():
				return
			}
		}
	}()

	k.run(ctx, events)
}

func (k *KafkaConsumer) Close() {
	if err := k.reader.Close(); err != nil {
		slog.Error("kafka reader close failed", "err", err)
	}
}
