// internal/cache/redis.go
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultQueueName is the Redis list that race events are pushed to.
const DefaultQueueName = "typerace_events"

// Race event types written to the queue.
const (
	ActionJoin   = "race_join"
	ActionLeave  = "race_leave"
	ActionStart  = "race_start"
	ActionFinish = "race_finish"
)

// RaceEventRecord is one entry of the race event log consumed by the historian.
type RaceEventRecord struct {
	RoomID     string                 `json:"room_id"`
	ConnID     string                 `json:"conn_id,omitempty"`
	ActionType string                 `json:"action_type"`
	Payload    map[string]interface{} `json:"payload,omitempty"`
	Timestamp  int64                  `json:"timestamp"`
}

// ParticipantResult is a participant's standing when a race finishes.
type ParticipantResult struct {
	ConnID     string `json:"conn_id"`
	Name       string `json:"name"`
	CorrectLen int    `json:"correct_len"`
}

// Publisher pushes race events onto a Redis list.
type Publisher struct {
	Rdb   *redis.Client
	Queue string
}

// Connect creates a client for addr/db and pings it.
func Connect(ctx context.Context, addr string, db int) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr: addr,
		DB:   db,
	})

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("failed to connect to Redis at %s: %w", addr, err)
	}
	return rdb, nil
}

// NewPublisher returns a publisher writing to queue (DefaultQueueName if empty).
func NewPublisher(rdb *redis.Client, queue string) *Publisher {
	if queue == "" {
		queue = DefaultQueueName
	}
	return &Publisher{Rdb: rdb, Queue: queue}
}

// Publish serializes the record to JSON and pushes it to the queue.
func (p *Publisher) Publish(ctx context.Context, record RaceEventRecord) error {
	if p == nil || p.Rdb == nil {
		return nil
	}
	if record.Timestamp == 0 {
		record.Timestamp = time.Now().UnixMilli()
	}
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal RaceEventRecord: %w", err)
	}
	if err := p.Rdb.RPush(ctx, p.Queue, data).Err(); err != nil {
		return fmt.Errorf("failed to RPush to Redis list '%s': %w", p.Queue, err)
	}
	return nil
}

// Pop blocks up to timeout for the next record on the queue. It returns redis.Nil when
// the timeout passes with nothing queued.
func (p *Publisher) Pop(ctx context.Context, timeout time.Duration) (RaceEventRecord, error) {
	var record RaceEventRecord
	res, err := p.Rdb.BLPop(ctx, timeout, p.Queue).Result()
	if err != nil {
		return record, err
	}
	if len(res) < 2 {
		return record, redis.Nil
	}
	// res[0] is the queue name and res[1] the payload.
	if err := json.Unmarshal([]byte(res[1]), &record); err != nil {
		return record, fmt.Errorf("invalid race event record: %w", err)
	}
	return record, nil
}
