package taskqueue

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// SQLiteQueue is a persistent task queue implementation backed by SQLite.
// It is safe for concurrent use for our purposes, using simple FIFO
// semantics based on an auto-incrementing id.
type SQLiteQueue struct {
	db           *sql.DB
	pollInterval time.Duration
}

// NewSQLiteQueue initializes the scheduled_nodes table in the given DB and
// returns a new queue.
func NewSQLiteQueue(db *sql.DB) (*SQLiteQueue, error) {
	q := &SQLiteQueue{
		db:           db,
		pollInterval: 20 * time.Millisecond,
	}
	if err := q.initSchema(); err != nil {
		return nil, err
	}
	return q, nil
}

func (q *SQLiteQueue) initSchema() error {
	_, err := q.db.Exec(`
		CREATE TABLE IF NOT EXISTS scheduled_nodes (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			run_id TEXT NOT NULL,
			node_id TEXT NOT NULL,
			dedupe_key TEXT NOT NULL,
			input BLOB,
			enqueued_at INTEGER NOT NULL
		);
	`)
	return err
}

// Ensure SQLiteQueue implements Queue.
var _ Queue = (*SQLiteQueue)(nil)

func (q *SQLiteQueue) Enqueue(ctx context.Context, t Task) error {
	input, err := encodeInput(t.Input)
	if err != nil {
		return err
	}

	enqueuedAt := t.EnqueuedAt
	if enqueuedAt.IsZero() {
		enqueuedAt = time.Now()
	}

	_, err = q.db.ExecContext(ctx, `
		INSERT INTO scheduled_nodes (run_id, node_id, dedupe_key, input, enqueued_at)
		VALUES (?, ?, ?, ?, ?)`,
		t.RunID,
		t.NodeID,
		t.DedupeKey,
		input,
		enqueuedAt.UnixNano(),
	)
	return err
}

func (q *SQLiteQueue) Dequeue(ctx context.Context) (*Task, error) {
	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		tx, err := q.db.BeginTx(ctx, nil)
		if err != nil {
			return nil, err
		}

		var (
			id        int64
			runID     string
			nodeID    string
			dedupeKey string
			input     []byte
			enqueued  int64
		)

		row := tx.QueryRowContext(ctx, `
			SELECT id, run_id, node_id, dedupe_key, input, enqueued_at
			FROM scheduled_nodes
			ORDER BY id
			LIMIT 1`)
		err = row.Scan(&id, &runID, &nodeID, &dedupeKey, &input, &enqueued)
		if err != nil {
			_ = tx.Rollback()
			if errors.Is(err, sql.ErrNoRows) {
				// Nothing available: sleep a bit and retry.
				select {
				case <-ctx.Done():
					return nil, ctx.Err()
				case <-time.After(q.pollInterval):
					continue
				}
			}
			return nil, err
		}

		// Delete the row we just claimed.
		if _, err := tx.ExecContext(ctx, `DELETE FROM scheduled_nodes WHERE id = ?`, id); err != nil {
			_ = tx.Rollback()
			return nil, err
		}

		if err := tx.Commit(); err != nil {
			return nil, err
		}

		decoded, err := decodeInput(input)
		if err != nil {
			return nil, err
		}

		return &Task{
			RunID:      runID,
			NodeID:     nodeID,
			DedupeKey:  dedupeKey,
			Input:      decoded,
			EnqueuedAt: time.Unix(0, enqueued),
		}, nil
	}
}

func (q *SQLiteQueue) Len() int {
	var n int
	if err := q.db.QueryRow(`SELECT COUNT(*) FROM scheduled_nodes`).Scan(&n); err != nil {
		return 0
	}
	return n
}
