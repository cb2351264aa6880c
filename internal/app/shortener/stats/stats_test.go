package stats

import (
	"context"
	"sync"
	"testing"
	"time"
)

type fakeRecorder struct {
	mu      sync.Mutex
	batches [][]ClickEvent
}

func (f *fakeRecorder) RecordClicks(ctx context.Context, batch []ClickEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.batches = append(f.batches, append([]ClickEvent(nil), batch...))
	return nil
}

func (f *fakeRecorder) total() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, b := range f.batches {
		n += len(b)
	}
	return n
}

func TestChannelCollector_DropsWhenFull(t *testing.T) {
	c := NewChannelCollector(2)
	for i := 0; i < 5; i++ {
		c.Collect(ClickEvent{ID: "abcdef01"})
	}
	if got := len(c.Events()); got != 2 {
		t.Fatalf("buffered: got %d, want 2", got)
	}
}

func TestChannelCollector_CloseIsSafe(t *testing.T) {
	c := NewChannelCollector(4)
	c.Collect(ClickEvent{ID: "abcdef01"})
	c.Close()
	c.Close()
	c.Collect(ClickEvent{ID: "abcdef02"}) // must not panic

	var got []string
	for e := range c.Events() {
		got = append(got, e.ID)
	}
	if len(got) != 1 || got[0] != "abcdef01" {
		t.Fatalf("events after close: %v", got)
	}
}

func TestConsumer_FlushesOnCloseAndBatchSize(t *testing.T) {
	rec := &fakeRecorder{}
	c := NewChannelCollector(500)
	cons := NewConsumer(rec, c)
	cons.batchSize = 3
	cons.interval = time.Hour

	for i := 0; i < 7; i++ {
		c.Collect(ClickEvent{ID: "abcdef01", ClickedAt: time.Now()})
	}
	c.Close()

	done := make(chan struct{})
	go func() {
		cons.Run(context.Background())
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("consumer did not stop after collector closed")
	}

	if got := rec.total(); got != 7 {
		t.Fatalf("recorded: got %d, want 7", got)
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()
	if len(rec.batches) != 3 {
		t.Fatalf("batches: got %d, want 3 (3+3+1)", len(rec.batches))
	}
}

func TestConsumer_FlushesOnTicker(t *testing.T) {
	rec := &fakeRecorder{}
	c := NewChannelCollector(10)
	cons := NewConsumer(rec, c)
	cons.interval = 20 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go cons.Run(ctx)

	c.Collect(ClickEvent{ID: "abcdef01"})

	deadline := time.Now().Add(2 * time.Second)
	for rec.total() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("ticker flush did not happen")
		}
		time.Sleep(10 * time.Millisecond)
	}
}
