// internal/historian/historian.go is the worker that drains the race event queue into the archive.
package historian

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/jason-s-yu/typerace/internal/cache"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// Queue yields race events. It returns redis.Nil when nothing arrived within timeout.
type Queue interface {
	Pop(ctx context.Context, timeout time.Duration) (cache.RaceEventRecord, error)
}

// Sink persists a batch of race events.
type Sink interface {
	WriteBatch(ctx context.Context, records []cache.RaceEventRecord) error
}

// Service accumulates queued events and flushes them to the sink when the batch is full
// or the flush delay passes.
type Service struct {
	queue      Queue
	sink       Sink
	logger     *logrus.Logger
	batchSize  int
	flushDelay time.Duration
	popTimeout time.Duration

	batchMu sync.Mutex
	batch   []cache.RaceEventRecord
}

func NewService(queue Queue, sink Sink, logger *logrus.Logger, batchSize int, flushDelay time.Duration) *Service {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	if batchSize <= 0 {
		batchSize = 20
	}
	if flushDelay <= 0 {
		flushDelay = 500 * time.Millisecond
	}
	return &Service{
		queue:      queue,
		sink:       sink,
		logger:     logger,
		batchSize:  batchSize,
		flushDelay: flushDelay,
		popTimeout: 3 * time.Second,
		batch:      make([]cache.RaceEventRecord, 0, batchSize),
	}
}

// Run pops events until ctx is done, then flushes what is left.
func (hs *Service) Run(ctx context.Context) {
	ticker := time.NewTicker(hs.flushDelay)
	defer ticker.Stop()

	hs.logger.Info("typerace-historian started")
	defer hs.logger.Info("typerace-historian stopped")

	for {
		select {
		case <-ctx.Done():
			hs.flush(context.Background())
			return
		case <-ticker.C:
			hs.flush(ctx)
		default:
			rec, err := hs.queue.Pop(ctx, hs.popTimeout)
			if err != nil {
				if !errors.Is(err, redis.Nil) && ctx.Err() == nil {
					hs.logger.Errorf("BLPop: %v", err)
				}
				continue
			}
			hs.append(ctx, rec)
		}
	}
}

func (hs *Service) append(ctx context.Context, rec cache.RaceEventRecord) {
	hs.batchMu.Lock()
	hs.batch = append(hs.batch, rec)
	full := len(hs.batch) >= hs.batchSize
	hs.batchMu.Unlock()

	if full {
		hs.flush(ctx)
	}
}

// flush writes the current batch. A failed batch is logged and dropped.
func (hs *Service) flush(ctx context.Context) {
	hs.batchMu.Lock()
	if len(hs.batch) == 0 {
		hs.batchMu.Unlock()
		return
	}
	batch := make([]cache.RaceEventRecord, len(hs.batch))
	copy(batch, hs.batch)
	hs.batch = hs.batch[:0]
	hs.batchMu.Unlock()

	if err := hs.sink.WriteBatch(ctx, batch); err != nil {
		hs.logger.WithField("records", len(batch)).Errorf("flush failed: %v", err)
		return
	}
	hs.logger.Debugf("flushed %d race events", len(batch))
}
