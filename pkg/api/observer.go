package api

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"
)

// Observer receives callbacks from the automation engine for logging and
// metrics.
//
// Implementations should be fast and non-blocking; heavy work should be done
// asynchronously so as not to delay node execution.
type Observer interface {
	// OnRunStart is called once when a run is created, before any node is
	// scheduled. For degenerate runs (no start nodes) OnRunCompleted
	// follows immediately.
	OnRunStart(ctx context.Context, run *Run)

	// OnRunCompleted is called when a run's pending count reaches zero and
	// the run transitions to StatusCompleted.
	OnRunCompleted(ctx context.Context, run *Run)

	// OnRunFailed is called when a run transitions to StatusFailed.
	OnRunFailed(ctx context.Context, run *Run, err error)

	// OnNodeStart is called before a node's runner is invoked.
	OnNodeStart(ctx context.Context, run *Run, nodeID, nodeType string)

	// OnNodeCompleted is called after a runner returns, for both successes
	// and failures.
	OnNodeCompleted(ctx context.Context, run *Run, nodeID, nodeType string, res NodeResult, duration time.Duration)
}

// NoopObserver is an Observer that does nothing.
// It is used as the default when no observer is configured.
type NoopObserver struct{}

func (NoopObserver) OnRunStart(ctx context.Context, run *Run)                {}
func (NoopObserver) OnRunCompleted(ctx context.Context, run *Run)            {}
func (NoopObserver) OnRunFailed(ctx context.Context, run *Run, err error)    {}
func (NoopObserver) OnNodeStart(ctx context.Context, run *Run, nodeID, nodeType string) {
}
func (NoopObserver) OnNodeCompleted(ctx context.Context, run *Run, nodeID, nodeType string, res NodeResult, d time.Duration) {
}

// CompositeObserver fans out events to multiple observers.
type CompositeObserver struct {
	observers []Observer
}

// NewCompositeObserver creates an Observer that forwards events to each
// non-nil observer in obs.
func NewCompositeObserver(obs ...Observer) Observer {
	filtered := make([]Observer, 0, len(obs))
	for _, o := range obs {
		if o != nil {
			filtered = append(filtered, o)
		}
	}
	if len(filtered) == 0 {
		return NoopObserver{}
	}
	if len(filtered) == 1 {
		return filtered[0]
	}
	return &CompositeObserver{observers: filtered}
}

func (c *CompositeObserver) OnRunStart(ctx context.Context, run *Run) {
	for _, o := range c.observers {
		o.OnRunStart(ctx, run)
	}
}

func (c *CompositeObserver) OnRunCompleted(ctx context.Context, run *Run) {
	for _, o := range c.observers {
		o.OnRunCompleted(ctx, run)
	}
}

func (c *CompositeObserver) OnRunFailed(ctx context.Context, run *Run, err error) {
	for _, o := range c.observers {
		o.OnRunFailed(ctx, run, err)
	}
}

func (c *CompositeObserver) OnNodeStart(ctx context.Context, run *Run, nodeID, nodeType string) {
	for _, o := range c.observers {
		o.OnNodeStart(ctx, run, nodeID, nodeType)
	}
}

func (c *CompositeObserver) OnNodeCompleted(ctx context.Context, run *Run, nodeID, nodeType string, res NodeResult, d time.Duration) {
	for _, o := range c.observers {
		o.OnNodeCompleted(ctx, run, nodeID, nodeType, res, d)
	}
}

// LoggingObserver writes structured logs using log/slog.
type LoggingObserver struct {
	Logger *slog.Logger
}

// NewLoggingObserver creates an Observer that logs run / node lifecycle
// events using the provided slog.Logger. If logger is nil, slog.Default()
// is used.
func NewLoggingObserver(logger *slog.Logger) Observer {
	if logger == nil {
		logger = slog.Default()
	}
	return &LoggingObserver{Logger: logger}
}

func (o *LoggingObserver) OnRunStart(ctx context.Context, run *Run) {
	o.Logger.InfoContext(ctx, "run_start",
		slog.String("run_id", run.ID),
		slog.String("automation_id", run.AutomationID),
		slog.Int("version", run.Version),
		slog.Int("pending", run.Pending),
	)
}

func (o *LoggingObserver) OnRunCompleted(ctx context.Context, run *Run) {
	o.Logger.InfoContext(ctx, "run_completed",
		slog.String("run_id", run.ID),
		slog.String("automation_id", run.AutomationID),
	)
}

func (o *LoggingObserver) OnRunFailed(ctx context.Context, run *Run, err error) {
	o.Logger.ErrorContext(ctx, "run_failed",
		slog.String("run_id", run.ID),
		slog.String("automation_id", run.AutomationID),
		slog.String("error", err.Error()),
	)
}

func (o *LoggingObserver) OnNodeStart(ctx context.Context, run *Run, nodeID, nodeType string) {
	o.Logger.DebugContext(ctx, "node_start",
		slog.String("run_id", run.ID),
		slog.String("node_id", nodeID),
		slog.String("node_type", nodeType),
	)
}

func (o *LoggingObserver) OnNodeCompleted(ctx context.Context, run *Run, nodeID, nodeType string, res NodeResult, d time.Duration) {
	o.Logger.InfoContext(ctx, "node_completed",
		slog.String("run_id", run.ID),
		slog.String("node_id", nodeID),
		slog.String("node_type", nodeType),
		slog.Bool("success", res.Success),
		slog.Duration("duration", d),
	)
}

// BasicMetrics is a minimal in-process metrics Observer backed by atomic
// counters. Use Snapshot to read a consistent view.
type BasicMetrics struct {
	runsStarted   atomic.Int64
	runsCompleted atomic.Int64
	runsFailed    atomic.Int64
	nodesExecuted atomic.Int64
	nodeFailures  atomic.Int64
}

// BasicMetricsSnapshot is a point-in-time copy of BasicMetrics counters.
type BasicMetricsSnapshot struct {
	RunsStarted   int64
	RunsCompleted int64
	RunsFailed    int64
	NodesExecuted int64
	NodeFailures  int64
}

func (m *BasicMetrics) OnRunStart(ctx context.Context, run *Run)             { m.runsStarted.Add(1) }
func (m *BasicMetrics) OnRunCompleted(ctx context.Context, run *Run)         { m.runsCompleted.Add(1) }
func (m *BasicMetrics) OnRunFailed(ctx context.Context, run *Run, err error) { m.runsFailed.Add(1) }
func (m *BasicMetrics) OnNodeStart(ctx context.Context, run *Run, nodeID, nodeType string) {
}
func (m *BasicMetrics) OnNodeCompleted(ctx context.Context, run *Run, nodeID, nodeType string, res NodeResult, d time.Duration) {
	m.nodesExecuted.Add(1)
	if !res.Success {
		m.nodeFailures.Add(1)
	}
}

func (m *BasicMetrics) Snapshot() BasicMetricsSnapshot {
	return BasicMetricsSnapshot{
		RunsStarted:   m.runsStarted.Load(),
		RunsCompleted: m.runsCompleted.Load(),
		RunsFailed:    m.runsFailed.Load(),
		NodesExecuted: m.nodesExecuted.Load(),
		NodeFailures:  m.nodeFailures.Load(),
	}
}
