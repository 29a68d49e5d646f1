package relay

import (
	"context"
	"errors"
	"log"
	"sync"

	"github.com/petrijr/relay/internal/taskqueue"
	"github.com/petrijr/relay/pkg/api"
	"github.com/petrijr/relay/pkg/worker"
)

// LocalRunner bundles an in-memory Engine, an in-memory task queue, and a
// worker pool into a simple single-process deployment for development,
// tests, and small services.
//
// Because the engine is queue-backed, Notify returns as soon as the runs'
// start nodes are enqueued; the workers drive them to completion in the
// background.
//
// Typical usage:
//
//	runner, _ := relay.NewLocalRunner(relay.Options{})
//	relay.NewGraph("my-automation").Trigger(...).Node(...).Edge(...).MustPublish(runner.Engine)
//	_ = runner.Engine.SaveTrigger(...)
//
//	_ = runner.StartWorkers(ctx, 2)
//	runIDs, _ := runner.Engine.Notify(ctx, "job.stage_entered", payload)
//	...
//	runner.Stop()
type LocalRunner struct {
	// Engine is the queue-backed in-memory engine used by this runner.
	Engine Engine

	// Queue is the in-memory task queue the workers consume.
	Queue taskqueue.Queue

	// Worker processes tasks from Queue using Engine.
	Worker *worker.Worker

	mu      sync.Mutex
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool
}

// NewLocalRunner constructs a LocalRunner. opts.Queue is ignored; the
// runner always wires its own in-memory queue.
func NewLocalRunner(opts Options) (*LocalRunner, error) {
	q := taskqueue.NewInMemoryQueue(1024)
	opts.Queue = q

	eng, err := NewInMemoryEngineWithOptions(opts)
	if err != nil {
		return nil, err
	}

	return &LocalRunner{
		Engine: eng,
		Queue:  q,
		Worker: worker.New(eng.(api.NodeExecutor), q),
	}, nil
}

// StartWorkers starts 'concurrency' worker goroutines that continuously
// call Worker.ProcessOne(ctx) until the context is cancelled via Stop.
//
// If StartWorkers is called more than once without Stop, it returns an
// error.
func (r *LocalRunner) StartWorkers(ctx context.Context, concurrency int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.running {
		return errors.New("relay: LocalRunner already started")
	}

	if concurrency <= 0 {
		concurrency = 1
	}

	ctx, cancel := context.WithCancel(ctx)
	r.cancel = cancel
	r.running = true

	r.wg.Add(concurrency)
	for i := 0; i < concurrency; i++ {
		go func() {
			defer r.wg.Done()

			for {
				processed, err := r.Worker.ProcessOne(ctx)
				if err != nil {
					if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
						return
					}
					// Keep going so one bad task doesn't kill the loop.
					log.Printf("relay: local runner worker error: %v", err)
					continue
				}
				if !processed {
					continue
				}
			}
		}()
	}

	return nil
}

// Stop cancels all worker goroutines started by StartWorkers and waits for
// them to exit.
func (r *LocalRunner) Stop() {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return
	}
	cancel := r.cancel
	r.running = false
	r.cancel = nil
	r.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	r.wg.Wait()
}
