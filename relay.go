package relay

import (
	"context"
	"database/sql"
	"net/http"

	goredis "github.com/redis/go-redis/v9"

	"github.com/petrijr/relay/internal/engine"
	"github.com/petrijr/relay/internal/persistence"
	"github.com/petrijr/relay/internal/taskqueue"
	"github.com/petrijr/relay/pkg/api"
)

// Re-export key types so users don't need to dig into pkg/api.

type (
	Engine             = api.Engine
	Definition         = api.Definition
	Node               = api.Node
	Edge               = api.Edge
	Trigger            = api.Trigger
	Run                = api.Run
	RunListOptions     = api.RunListOptions
	RunEvent           = api.RunEvent
	EventType          = api.EventType
	Status             = api.Status
	Runner             = api.Runner
	RunnerFunc         = api.RunnerFunc
	TriggerMatcher     = api.TriggerMatcher
	NodeResult         = api.NodeResult
	ScheduledExecution = api.ScheduledExecution
	NodeExecutor       = api.NodeExecutor
	HistoryReader      = api.HistoryReader
	ValidationError    = api.ValidationError

	Observer             = api.Observer
	LoggingObserver      = api.LoggingObserver
	BasicMetrics         = api.BasicMetrics
	BasicMetricsSnapshot = api.BasicMetricsSnapshot
	CompositeObserver    = api.CompositeObserver
	NoopObserver         = api.NoopObserver
)

// Re-export common observer helpers.

var (
	NewLoggingObserver   = api.NewLoggingObserver
	NewCompositeObserver = api.NewCompositeObserver
)

// Re-export status values for convenience.

const (
	StatusRunning   = api.StatusRunning
	StatusCompleted = api.StatusCompleted
	StatusFailed    = api.StatusFailed
)

// Options tune an engine beyond its storage backend. The zero value is a
// working default: no observer, inline execution, default HTTP client.
type Options struct {
	// Observer receives run and node lifecycle callbacks.
	Observer Observer

	// Queue, when set, makes the engine schedule node executions through
	// it instead of executing inline; pair it with workers consuming the
	// same queue. Most callers use LocalRunner or NewSQLiteBundle instead
	// of setting this directly.
	Queue taskqueue.Queue

	// HTTPClient is used by the built-in webhook and chat runners.
	HTTPClient *http.Client

	// ChatBaseURL overrides the chat runner's bot API endpoint.
	ChatBaseURL string
}

// Engine constructors. These wrap the internal engine package so external
// callers never need to import internal packages.

// NewInMemoryEngine returns an Engine backed entirely by in-memory stores.
// Nodes execute inline: Notify returns after started runs are terminal.
func NewInMemoryEngine() Engine {
	eng, err := newInMemoryEngine(Options{})
	if err != nil {
		// In-memory wiring has no failure modes beyond programming errors.
		panic(err)
	}
	return eng
}

// NewInMemoryEngineWithOptions returns an in-memory Engine with the given
// options.
func NewInMemoryEngineWithOptions(opts Options) (Engine, error) {
	return newInMemoryEngine(opts)
}

func newInMemoryEngine(opts Options) (*engine.Engine, error) {
	store := persistence.NewInMemoryStore()
	return engine.New(engine.Config{
		Persistence: persistence.Persistence{
			Definitions: store,
			Triggers:    store,
			Runs:        store,
			Events:      persistence.NewMemoryEventStore(),
		},
		Queue:       opts.Queue,
		Observer:    opts.Observer,
		HTTPClient:  opts.HTTPClient,
		ChatBaseURL: opts.ChatBaseURL,
	})
}

// NewSQLiteEngine returns an Engine that persists runs and run history in a
// SQLite database. Definitions and triggers are kept in-memory; publish
// them on startup.
func NewSQLiteEngine(db *sql.DB) (Engine, error) {
	return NewSQLiteEngineWithOptions(db, Options{})
}

// NewSQLiteEngineWithOptions returns a SQLite-backed Engine with the given
// options.
func NewSQLiteEngineWithOptions(db *sql.DB, opts Options) (Engine, error) {
	runs, err := persistence.NewSQLiteRunStore(db)
	if err != nil {
		return nil, err
	}
	events, err := persistence.NewSQLiteEventStore(db)
	if err != nil {
		return nil, err
	}
	store := persistence.NewInMemoryStore()
	return engine.New(engine.Config{
		Persistence: persistence.Persistence{
			Definitions: store,
			Triggers:    store,
			Runs:        runs,
			Events:      events,
		},
		Queue:       opts.Queue,
		Observer:    opts.Observer,
		HTTPClient:  opts.HTTPClient,
		ChatBaseURL: opts.ChatBaseURL,
	})
}

// NewPostgresEngine returns an Engine that persists runs in PostgreSQL.
func NewPostgresEngine(db *sql.DB) (Engine, error) {
	return NewPostgresEngineWithOptions(db, Options{})
}

// NewPostgresEngineWithOptions returns a Postgres-backed Engine with the
// given options.
func NewPostgresEngineWithOptions(db *sql.DB, opts Options) (Engine, error) {
	runs, err := persistence.NewPostgresRunStore(db)
	if err != nil {
		return nil, err
	}
	store := persistence.NewInMemoryStore()
	return engine.New(engine.Config{
		Persistence: persistence.Persistence{
			Definitions: store,
			Triggers:    store,
			Runs:        runs,
			Events:      persistence.NewMemoryEventStore(),
		},
		Queue:       opts.Queue,
		Observer:    opts.Observer,
		HTTPClient:  opts.HTTPClient,
		ChatBaseURL: opts.ChatBaseURL,
	})
}

// NewRedisEngine returns an Engine that persists runs in Redis.
func NewRedisEngine(client *goredis.Client) (Engine, error) {
	return NewRedisEngineWithOptions(client, Options{})
}

// NewRedisEngineWithOptions returns a Redis-backed Engine with the given
// options.
func NewRedisEngineWithOptions(client *goredis.Client, opts Options) (Engine, error) {
	store := persistence.NewInMemoryStore()
	return engine.New(engine.Config{
		Persistence: persistence.Persistence{
			Definitions: store,
			Triggers:    store,
			Runs:        persistence.NewRedisRunStore(client, ""),
			Events:      persistence.NewMemoryEventStore(),
		},
		Queue:       opts.Queue,
		Observer:    opts.Observer,
		HTTPClient:  opts.HTTPClient,
		ChatBaseURL: opts.ChatBaseURL,
	})
}

// Convenience helpers that just forward to the underlying Engine.

// Notify delivers a domain event to the engine.
func Notify(ctx context.Context, eng Engine, eventKey string, payload map[string]any) ([]string, error) {
	return eng.Notify(ctx, eventKey, payload)
}

// GetRun fetches a run by ID.
func GetRun(ctx context.Context, eng Engine, id string) (*Run, error) {
	return eng.GetRun(ctx, id)
}

// ListRuns lists runs according to the given options.
func ListRuns(ctx context.Context, eng Engine, opts RunListOptions) ([]*Run, error) {
	return eng.ListRuns(ctx, opts)
}

// ListEvents returns a run's history when the engine records one.
func ListEvents(ctx context.Context, eng Engine, runID string) ([]RunEvent, error) {
	hr, ok := eng.(HistoryReader)
	if !ok {
		return nil, nil
	}
	return hr.ListEvents(ctx, runID)
}

// RecoverStuckRuns delegates to eng.RecoverStuckRuns.
//
// It is typically called on process startup before starting any workers:
//
//	count, err := relay.RecoverStuckRuns(ctx, engine)
func RecoverStuckRuns(ctx context.Context, eng Engine) (int, error) {
	return eng.RecoverStuckRuns(ctx)
}
