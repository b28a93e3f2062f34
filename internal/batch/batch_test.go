package batch

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"LogFormatPump/internal/models"
)

type recordingSink struct {
	mu      sync.Mutex
	batches [][]models.Record
}

func (s *recordingSink) InsertBatch(_ context.Context, records []models.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.batches = append(s.batches, records)
	return nil
}

func (s *recordingSink) sizes() []int {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []int
	for _, b := range s.batches {
		out = append(out, len(b))
	}
	return out
}

func TestBatcherFlushesBySizeAndOnClose(t *testing.T) {
	sink := &recordingSink{}
	b := NewBatcher(2, 3600, zap.NewNop(), sink)

	in := make(chan models.Record)
	done := make(chan struct{})
	go func() {
		b.Run(context.Background(), in)
		close(done)
	}()

	for i := 0; i < 5; i++ {
		in <- models.Record{LineNumber: i}
	}
	close(in)
	<-done

	assert.Equal(t, []int{2, 2, 1}, sink.sizes())
	assert.Equal(t, 4, sink.batches[2][0].LineNumber)
}

func TestBatcherFlushesOnShutdown(t *testing.T) {
	sink := &recordingSink{}
	b := NewBatcher(100, 3600, zap.NewNop(), sink)

	ctx, cancel := context.WithCancel(context.Background())
	in := make(chan models.Record)
	done := make(chan struct{})
	go func() {
		b.Run(ctx, in)
		close(done)
	}()

	in <- models.Record{}
	in <- models.Record{}
	cancel()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		require.FailNow(t, "batcher did not stop")
	}
	assert.Equal(t, []int{2}, sink.sizes())
}
