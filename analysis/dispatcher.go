package analysis

import (
	"context"
	"log/slog"
	"time"

	"github.com/force-h2020/wfmanager/errors"
	"github.com/force-h2020/wfmanager/event"
	"github.com/force-h2020/wfmanager/metric"
	"github.com/force-h2020/wfmanager/pkg/worker"
)

const queueSize = 256

// Dispatcher applies events to a Model on a single goroutine.
type Dispatcher struct {
	model   *Model
	pool    *worker.Pool[event.Event]
	logger  *slog.Logger
	onApply func(*Model, event.Event)
	ctx     context.Context
}

// DispatcherOption configures a Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithLogger sets the logger. The default is slog.Default().
func WithLogger(logger *slog.Logger) DispatcherOption {
	return func(d *Dispatcher) {
		if logger != nil {
			d.logger = logger
		}
	}
}

// OnApply is called on the dispatcher goroutine after each event has been
// applied successfully.
func OnApply(fn func(*Model, event.Event)) DispatcherOption {
	return func(d *Dispatcher) {
		d.onApply = fn
	}
}

// NewDispatcher creates a dispatcher for model. When registry is non-nil
// the queue's metrics are registered with it.
func NewDispatcher(model *Model, registry metric.MetricsRegistrar, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		model:  model,
		logger: slog.Default(),
		ctx:    context.Background(),
	}
	for _, opt := range opts {
		opt(d)
	}
	d.logger = d.logger.With("component", "analysis-dispatcher")

	poolOpts := []worker.Option[event.Event]{worker.WithLogger[event.Event](d.logger)}
	if registry != nil {
		poolOpts = append(poolOpts, worker.WithMetricsRegistry[event.Event](registry, "wfmanager_analysis"))
	}
	d.pool = worker.NewPool(1, queueSize, d.apply, poolOpts...)
	return d
}

// Model returns the model the dispatcher writes to. Read it only from
// OnApply callbacks or after Stop.
func (d *Dispatcher) Model() *Model { return d.model }

// Start launches the dispatcher goroutine.
func (d *Dispatcher) Start(ctx context.Context) error {
	d.ctx = ctx
	if err := d.pool.Start(ctx); err != nil {
		return errors.WrapInvalid(err, "Dispatcher", "Start", "start worker")
	}
	return nil
}

// Stop applies the events already queued and stops the goroutine.
func (d *Dispatcher) Stop(timeout time.Duration) error {
	if err := d.pool.Stop(timeout); err != nil {
		return errors.WrapTransient(err, "Dispatcher", "Stop", "drain queue")
	}
	return nil
}

// Dispatch queues ev, waiting while the queue is full. It is safe to call
// from any goroutine and matches the notification server's callback.
func (d *Dispatcher) Dispatch(ev event.Event) {
	if err := d.pool.SubmitWait(d.ctx, ev); err != nil {
		d.logger.Warn("Dropping event", "error", err)
	}
}

func (d *Dispatcher) apply(_ context.Context, ev event.Event) error {
	if err := d.model.Apply(ev); err != nil {
		d.logger.Warn("Failed to apply event", "error", err)
		return err
	}
	if d.onApply != nil {
		d.onApply(d.model, ev)
	}
	return nil
}
