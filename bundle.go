package relay

import (
	"database/sql"

	"github.com/petrijr/relay/internal/taskqueue"
	"github.com/petrijr/relay/pkg/api"
	workerpkg "github.com/petrijr/relay/pkg/worker"
)

// WorkerBundle wires together an Engine, a durable task queue, and a Worker
// that consumes scheduled node executions from that queue.
//
// For now, only a SQLite-backed bundle is provided.
type WorkerBundle struct {
	Engine Engine
	Worker *workerpkg.Worker

	// queue is kept unexported; it is primarily useful for internal
	// inspection and tests. The public API focuses on Engine and Worker.
	queue taskqueue.Queue
}

// NewSQLiteBundle constructs a durable Engine + Queue + Worker combo
// sharing the same SQLite database. Runs, run history, dedupe markers, and
// queued node executions are persisted in the provided *sql.DB, so a
// restarted process picks up where it left off.
//
// Typical usage:
//
//	db, _ := sql.Open("sqlite", "file:relay.db?_journal=WAL")
//	bundle, err := relay.NewSQLiteBundle(db, relay.Options{})
//	// publish definitions and triggers on bundle.Engine
//	// run bundle.Worker loops to process scheduled nodes
func NewSQLiteBundle(db *sql.DB, opts Options) (*WorkerBundle, error) {
	q, err := taskqueue.NewSQLiteQueue(db)
	if err != nil {
		return nil, err
	}
	opts.Queue = q

	eng, err := NewSQLiteEngineWithOptions(db, opts)
	if err != nil {
		return nil, err
	}

	return &WorkerBundle{
		Engine: eng,
		Worker: workerpkg.New(eng.(api.NodeExecutor), q),
		queue:  q,
	}, nil
}
