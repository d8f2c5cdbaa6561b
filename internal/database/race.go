// internal/database/race.go
package database

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jason-s-yu/typerace/internal/cache"
)

// Schema creates the archive tables if they do not exist.
const Schema = `
CREATE TABLE IF NOT EXISTS races (
	id          TEXT PRIMARY KEY,
	status      TEXT NOT NULL DEFAULT 'in_progress',
	text_length INT,
	finisher    TEXT,
	start_time  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	end_time    TIMESTAMPTZ
);

CREATE TABLE IF NOT EXISTS race_results (
	race_id     TEXT NOT NULL REFERENCES races (id) ON DELETE CASCADE,
	conn_id     TEXT NOT NULL,
	name        TEXT NOT NULL,
	correct_len INT NOT NULL,
	finished    BOOLEAN NOT NULL DEFAULT FALSE,
	PRIMARY KEY (race_id, conn_id)
);

CREATE TABLE IF NOT EXISTS race_events (
	id          BIGSERIAL PRIMARY KEY,
	room_id     TEXT NOT NULL,
	conn_id     TEXT,
	action_type TEXT NOT NULL,
	payload     JSONB,
	created_at  TIMESTAMPTZ NOT NULL
);
`

// EnsureSchema applies Schema.
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

// Archive writes race event batches to Postgres.
type Archive struct {
	Pool *pgxpool.Pool
}

// WriteBatch stores the records in one transaction. A start record opens the race row,
// a finish record completes it with results, and a leave that deleted the room marks a
// race that never finished as abandoned.
func (a *Archive) WriteBatch(ctx context.Context, records []cache.RaceEventRecord) error {
	return beginTxFunc(ctx, a.Pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		for _, rec := range records {
			if err := insertRaceEventTx(ctx, tx, rec); err != nil {
				return fmt.Errorf("insertRaceEventTx: %w", err)
			}
		}
		return nil
	})
}

func insertRaceEventTx(ctx context.Context, tx pgx.Tx, rec cache.RaceEventRecord) error {
	payload, err := json.Marshal(rec.Payload)
	if err != nil {
		return err
	}
	_, err = tx.Exec(ctx, `
		INSERT INTO race_events (room_id, conn_id, action_type, payload, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`, rec.RoomID, rec.ConnID, rec.ActionType, payload, time.UnixMilli(rec.Timestamp))
	if err != nil {
		return err
	}

	switch rec.ActionType {
	case cache.ActionStart:
		_, err = tx.Exec(ctx, `
			INSERT INTO races (id, status, text_length, start_time)
			VALUES ($1, 'in_progress', $2, $3)
			ON CONFLICT (id)
			DO UPDATE SET status = 'in_progress', text_length = EXCLUDED.text_length
		`, rec.RoomID, intField(rec.Payload, "text_length"), time.UnixMilli(rec.Timestamp))
		return err

	case cache.ActionFinish:
		return finishRaceTx(ctx, tx, rec)

	case cache.ActionLeave:
		if deleted, _ := rec.Payload["room_deleted"].(bool); !deleted {
			return nil
		}
		_, err = tx.Exec(ctx, `
			UPDATE races
			SET status = 'abandoned', end_time = $2
			WHERE id = $1 AND status = 'in_progress'
		`, rec.RoomID, time.UnixMilli(rec.Timestamp))
		return err
	}
	return nil
}

func finishRaceTx(ctx context.Context, tx pgx.Tx, rec cache.RaceEventRecord) error {
	textLen := intField(rec.Payload, "text_length")
	_, err := tx.Exec(ctx, `
		INSERT INTO races (id, status, text_length, finisher, end_time)
		VALUES ($1, 'completed', $2, $3, $4)
		ON CONFLICT (id)
		DO UPDATE SET status = 'completed', finisher = EXCLUDED.finisher, end_time = EXCLUDED.end_time
	`, rec.RoomID, textLen, rec.ConnID, time.UnixMilli(rec.Timestamp))
	if err != nil {
		return err
	}

	results, err := DecodeResults(rec.Payload)
	if err != nil {
		return err
	}
	for _, res := range results {
		_, err = tx.Exec(ctx, `
			INSERT INTO race_results (race_id, conn_id, name, correct_len, finished)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (race_id, conn_id)
			DO UPDATE SET correct_len = EXCLUDED.correct_len, finished = EXCLUDED.finished
		`, rec.RoomID, res.ConnID, res.Name, res.CorrectLen, res.CorrectLen >= textLen)
		if err != nil {
			return err
		}
	}
	return nil
}

// DecodeResults extracts the participant results from a finish payload that went
// through JSON.
func DecodeResults(payload map[string]interface{}) ([]cache.ParticipantResult, error) {
	raw, ok := payload["results"]
	if !ok {
		return nil, nil
	}
	data, err := json.Marshal(raw)
	if err != nil {
		return nil, err
	}
	var results []cache.ParticipantResult
	if err := json.Unmarshal(data, &results); err != nil {
		return nil, fmt.Errorf("invalid results payload: %w", err)
	}
	return results, nil
}

// intField reads a JSON number from the payload. Numbers decoded from JSON are float64.
func intField(payload map[string]interface{}, key string) int {
	switch v := payload[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	}
	return 0
}

// beginTxFunc starts a transaction, calls f with it, and commits or rolls back.
func beginTxFunc(ctx context.Context, pool *pgxpool.Pool, txOptions pgx.TxOptions, f func(tx pgx.Tx) error) error {
	tx, err := pool.BeginTx(ctx, txOptions)
	if err != nil {
		return err
	}
	if err := f(tx); err != nil {
		if rbErr := tx.Rollback(ctx); rbErr != nil {
			return fmt.Errorf("tx rollback error: %v; original error: %w", rbErr, err)
		}
		return err
	}
	return tx.Commit(ctx)
}
