// internal/historian/historian_test.go
package historian

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/jason-s-yu/typerace/internal/cache"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// chanQueue serves records from a channel and reports redis.Nil when it is empty.
type chanQueue struct {
	ch chan cache.RaceEventRecord
}

func (q *chanQueue) Pop(ctx context.Context, timeout time.Duration) (cache.RaceEventRecord, error) {
	select {
	case rec := <-q.ch:
		return rec, nil
	case <-time.After(timeout):
		return cache.RaceEventRecord{}, redis.Nil
	case <-ctx.Done():
		return cache.RaceEventRecord{}, ctx.Err()
	}
}

type memorySink struct {
	mu      sync.Mutex
	batches [][]cache.RaceEventRecord
	fail    bool
}

func (s *memorySink) WriteBatch(ctx context.Context, records []cache.RaceEventRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail {
		return errors.New("db down")
	}
	s.batches = append(s.batches, records)
	return nil
}

func (s *memorySink) total() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, b := range s.batches {
		n += len(b)
	}
	return n
}

func newTestService(q Queue, sink Sink, batch int, flush time.Duration) *Service {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	hs := NewService(q, sink, logger, batch, flush)
	hs.popTimeout = 5 * time.Millisecond
	return hs
}

func TestFlushOnBatchSize(t *testing.T) {
	q := &chanQueue{ch: make(chan cache.RaceEventRecord, 10)}
	sink := &memorySink{}
	hs := newTestService(q, sink, 3, time.Hour)

	for i := 0; i < 3; i++ {
		q.ch <- cache.RaceEventRecord{RoomID: "r", ActionType: cache.ActionJoin}
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		hs.Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool { return sink.total() == 3 }, time.Second, time.Millisecond)
	cancel()
	<-done
	assert.Len(t, sink.batches, 1)
}

func TestFlushOnTickerAndShutdown(t *testing.T) {
	q := &chanQueue{ch: make(chan cache.RaceEventRecord, 10)}
	sink := &memorySink{}
	hs := newTestService(q, sink, 100, 10*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		hs.Run(ctx)
		close(done)
	}()

	q.ch <- cache.RaceEventRecord{RoomID: "r", ActionType: cache.ActionStart}
	require.Eventually(t, func() bool { return sink.total() == 1 }, time.Second, time.Millisecond)

	cancel()
	<-done
	hs.append(context.Background(), cache.RaceEventRecord{RoomID: "r", ActionType: cache.ActionFinish})
	hs.flush(context.Background())
	assert.Equal(t, 2, sink.total())
}

func TestFailedFlushDropsBatch(t *testing.T) {
	sink := &memorySink{fail: true}
	hs := newTestService(&chanQueue{ch: make(chan cache.RaceEventRecord)}, sink, 10, time.Hour)

	hs.append(context.Background(), cache.RaceEventRecord{RoomID: "r"})
	hs.flush(context.Background())
	assert.Empty(t, hs.batch)
	assert.Equal(t, 0, sink.total())
}
