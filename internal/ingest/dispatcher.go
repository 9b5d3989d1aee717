package ingest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"github.com/nerrad567/gray-logic-gateway/internal/message"
)

// Dispatcher defaults.
const (
	DefaultWorkers      = 4
	DefaultDrainTimeout = 5 * time.Second
)

// Logger is the logging interface used by this package.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Source is the consumer side of the ingestion queue.
// *message.Queue implements it.
type Source interface {
	Take(ctx context.Context) (message.RawMessage, error)
	Len() int
}

// Config configures a Dispatcher.
type Config struct {
	// Workers is the number of concurrent consumers. Defaults to DefaultWorkers.
	Workers int

	// DrainTimeout bounds how long workers keep consuming after the Run
	// context is cancelled. Defaults to DefaultDrainTimeout.
	DrainTimeout time.Duration
}

// Options holds the dispatcher's collaborators.
type Options struct {
	Source    Source
	Processor Processor
	Logger    Logger
	Registry  prometheus.Registerer
	Config    Config
}

// Stats is a point-in-time view of dispatcher counters.
type Stats struct {
	Workers   int    `json:"workers"`
	Running   bool   `json:"running"`
	Processed uint64 `json:"processed"`
	Failed    uint64 `json:"failed"`
	Panics    uint64 `json:"panics"`
	Abandoned uint64 `json:"abandoned"`
}

// Dispatcher runs the worker pool that drains the ingestion queue.
type Dispatcher struct {
	source  Source
	proc    Processor
	logger  Logger
	metrics *dispatcherMetrics
	cfg     Config

	mu      sync.Mutex
	running bool

	processed atomic.Uint64
	failed    atomic.Uint64
	panics    atomic.Uint64
	abandoned atomic.Uint64
}

// NewDispatcher creates a dispatcher. It does not start any workers.
func NewDispatcher(opts Options) (*Dispatcher, error) {
	if opts.Source == nil {
		return nil, ErrNoSource
	}
	if opts.Processor == nil {
		return nil, ErrNoProcessor
	}

	logger := opts.Logger
	if logger == nil {
		logger = noopLogger{}
	}

	cfg := opts.Config
	if cfg.Workers <= 0 {
		cfg.Workers = DefaultWorkers
	}
	if cfg.DrainTimeout <= 0 {
		cfg.DrainTimeout = DefaultDrainTimeout
	}

	m, err := newDispatcherMetrics(opts.Registry)
	if err != nil {
		return nil, fmt.Errorf("registering ingest metrics: %w", err)
	}

	return &Dispatcher{
		source:  opts.Source,
		proc:    opts.Processor,
		logger:  logger,
		metrics: m,
		cfg:     cfg,
	}, nil
}

// Run starts the workers and blocks until they have all exited.
//
// Workers exit when the queue is closed and empty. After ctx is cancelled
// they keep consuming for up to DrainTimeout; anything still queued after
// that is counted as abandoned.
func (d *Dispatcher) Run(ctx context.Context) error {
	d.mu.Lock()
	if d.running {
		d.mu.Unlock()
		return ErrAlreadyRunning
	}
	d.running = true
	d.mu.Unlock()

	defer func() {
		d.mu.Lock()
		d.running = false
		d.mu.Unlock()
	}()

	d.logger.Info("ingest dispatcher started",
		"workers", d.cfg.Workers,
		"drain_timeout", d.cfg.DrainTimeout.String(),
	)

	// The drain context outlives ctx by DrainTimeout.
	drainCtx, cancelDrain := context.WithCancel(context.WithoutCancel(ctx))
	defer cancelDrain()
	stopTimer := context.AfterFunc(ctx, func() {
		time.AfterFunc(d.cfg.DrainTimeout, cancelDrain)
	})
	defer stopTimer()

	var g errgroup.Group
	for i := range d.cfg.Workers {
		g.Go(func() error {
			d.worker(ctx, drainCtx, i)
			return nil
		})
	}
	err := g.Wait()

	if left := d.source.Len(); left > 0 {
		d.abandoned.Add(uint64(left))
		d.logger.Warn("ingest drain timed out, messages abandoned", "count", left)
	}

	d.logger.Info("ingest dispatcher stopped",
		"processed", d.processed.Load(),
		"failed", d.failed.Load(),
		"panics", d.panics.Load(),
	)
	return err
}

// worker takes from the queue until it is closed and empty, or the drain
// context expires.
func (d *Dispatcher) worker(ctx, drainCtx context.Context, id int) {
	for {
		if drainCtx.Err() != nil {
			return
		}
		msg, err := d.source.Take(drainCtx)
		if err != nil {
			if !errors.Is(err, message.ErrQueueClosed) && ctx.Err() == nil {
				d.logger.Error("ingest worker take failed", "worker", id, "error", err)
			}
			return
		}

		procCtx := ctx
		if ctx.Err() != nil {
			procCtx = drainCtx
		}
		d.handle(procCtx, id, msg)
	}
}

// handle runs the processor for one message. Panics are recovered so a
// bad message cannot take a worker down.
func (d *Dispatcher) handle(ctx context.Context, worker int, msg message.RawMessage) {
	start := time.Now()
	d.metrics.busy.Inc()
	defer d.metrics.busy.Dec()

	err := d.process(ctx, msg)
	elapsed := time.Since(start).Seconds()

	switch {
	case err == nil:
		d.processed.Add(1)
		d.metrics.observe(resultOK, elapsed)
	case errors.Is(err, ErrProcessorPanic):
		d.panics.Add(1)
		d.metrics.observe(resultPanic, elapsed)
		d.logger.Error("ingest processor panic recovered",
			"worker", worker,
			"message_id", msg.ID(),
			"gateway_id", msg.GatewayID(),
			"error", err,
		)
	default:
		d.failed.Add(1)
		d.metrics.observe(resultError, elapsed)
		d.logger.Warn("ingest processing failed, message dropped",
			"worker", worker,
			"message_id", msg.ID(),
			"gateway_id", msg.GatewayID(),
			"error", err,
		)
	}
}

func (d *Dispatcher) process(ctx context.Context, msg message.RawMessage) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrProcessorPanic, r)
		}
	}()
	return d.proc.Process(ctx, msg)
}

// Stats returns a snapshot of the dispatcher counters.
func (d *Dispatcher) Stats() Stats {
	d.mu.Lock()
	running := d.running
	d.mu.Unlock()

	return Stats{
		Workers:   d.cfg.Workers,
		Running:   running,
		Processed: d.processed.Load(),
		Failed:    d.failed.Load(),
		Panics:    d.panics.Load(),
		Abandoned: d.abandoned.Load(),
	}
}
