// Package worker runs the single queue consumer: a blocking pop loop that
// decodes task events and hands them to the dispatcher, reconnecting on
// queue failures according to their classification.
package worker

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/scrumdeck/taskmail/internal/dispatch"
	"github.com/scrumdeck/taskmail/internal/event"
	"github.com/scrumdeck/taskmail/internal/logging"
	"github.com/scrumdeck/taskmail/internal/metrics"
	"github.com/scrumdeck/taskmail/internal/queue"
	"github.com/scrumdeck/taskmail/internal/tracing"
)

// State is the worker lifecycle state.
type State int32

const (
	StateStopped State = iota
	StateStarting
	StateRunning
	StateReconnecting
)

func (s State) String() string {
	switch s {
	case StateStopped:
		return "stopped"
	case StateStarting:
		return "starting"
	case StateRunning:
		return "running"
	case StateReconnecting:
		return "reconnecting"
	default:
		return "unknown"
	}
}

// DialFunc opens a fresh queue connection. The worker calls it once at
// startup and again on every reconnect.
type DialFunc func(ctx context.Context) (queue.Queue, error)

// Options tunes the consume loop.
type Options struct {
	BlockingTimeout  time.Duration // per-pop block, idle wakeup interval
	ReconnectBackoff time.Duration // sleep before reconnecting after a connection failure
}

func (o *Options) defaults() {
	if o.BlockingTimeout == 0 {
		o.BlockingTimeout = 5 * time.Second
	}
	if o.ReconnectBackoff == 0 {
		o.ReconnectBackoff = 5 * time.Second
	}
}

// Worker consumes the task event queue and dispatches notifications.
// One worker runs one consume goroutine; entries are processed strictly
// in arrival order.
type Worker struct {
	dial       DialFunc
	dispatcher *dispatch.Dispatcher
	logger     *logging.Logger
	opts       Options

	state atomic.Int32

	mu    sync.Mutex
	queue queue.Queue

	stop chan struct{}
	done chan struct{}
}

// New creates a worker. Start must be called to begin consuming.
func New(dial DialFunc, d *dispatch.Dispatcher, logger *logging.Logger, opts Options) *Worker {
	opts.defaults()
	return &Worker{
		dial:       dial,
		dispatcher: d,
		logger:     logger,
		opts:       opts,
		stop:       make(chan struct{}),
		done:       make(chan struct{}),
	}
}

// State returns the current lifecycle state.
func (w *Worker) State() State {
	return State(w.state.Load())
}

func (w *Worker) setState(s State) {
	w.state.Store(int32(s))
	metrics.UpdateWorkerState(s.String())
}

// Queue returns the worker's current queue connection, nil before Start.
func (w *Worker) Queue() queue.Queue {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.queue
}

func (w *Worker) setQueue(q queue.Queue) {
	w.mu.Lock()
	w.queue = q
	w.mu.Unlock()
}

// Start opens the initial queue connection and launches the consume loop.
// A failed initial connect is fatal to the caller; reconnects after a
// successful start are handled internally.
func (w *Worker) Start(ctx context.Context) error {
	w.setState(StateStarting)

	q, err := w.dial(ctx)
	if err != nil {
		w.setState(StateStopped)
		return fmt.Errorf("worker: initial queue connect: %w", err)
	}
	w.setQueue(q)

	go w.run(ctx)
	return nil
}

// Stop asks the loop to finish its current entry and exit, then waits for
// it. Safe to call once.
func (w *Worker) Stop() {
	close(w.stop)
	<-w.done
}

func (w *Worker) stopping() bool {
	select {
	case <-w.stop:
		return true
	default:
		return false
	}
}

func (w *Worker) run(ctx context.Context) {
	defer close(w.done)
	defer w.setState(StateStopped)

	w.setState(StateRunning)
	w.logger.WithContext(ctx).Info("worker consuming")

	for !w.stopping() {
		data, err := w.Queue().BlockingPop(ctx, w.opts.BlockingTimeout)

		switch kind := queue.Classify(err); kind {
		case queue.FailureNone:
			w.handle(ctx, data)

		case queue.FailureEmpty:
			// idle tick, loop back to the stop check

		case queue.FailureTimeout:
			// transport timeout, not an idle pop: reconnect once and retry
			w.logger.WithContext(ctx).WithError(err).Warn("queue pop timed out, reconnecting")
			w.reconnect(ctx, kind)

		case queue.FailureConnection:
			w.logger.WithContext(ctx).WithError(err).Error("queue connection lost")
			w.reconnect(ctx, kind)
		}
	}

	w.logger.WithContext(ctx).Info("worker stopped")
}

// handle decodes one entry and dispatches it. Malformed entries are skipped
// and counted, they never stop the loop.
func (w *Worker) handle(ctx context.Context, data []byte) {
	env, err := event.Decode(data)
	if err != nil {
		w.logger.WithContext(ctx).WithError(err).
			WithField("entry_bytes", len(data)).
			Warn("skipping malformed queue entry")
		metrics.RecordSkipped("malformed")
		return
	}

	evCtx := tracing.ExtractTraceFromQueue(ctx, env.TraceHeaders)
	evCtx, span := tracing.StartSpan(evCtx, "worker.handle_event",
		attribute.Int64("task_id", env.TaskID),
		attribute.String("event_kind", env.Kind.String()),
	)
	defer span.End()

	sum, err := w.dispatcher.Dispatch(evCtx, env)
	if err != nil {
		tracing.SetSpanError(evCtx, err)
		w.logger.WithContext(evCtx).WithTask(env.TaskID).WithError(err).
			Warn("skipping undispatchable event")
		metrics.RecordSkipped("invalid")
		return
	}

	w.logger.WithContext(evCtx).WithTask(env.TaskID).WithEventKind(env.Kind.String()).
		WithFields(map[string]any{
			"delivered": sum.Delivered,
			"failed":    sum.Failed,
		}).Info("event processed")
}

// reconnect replaces the queue connection. Timeout failures retry
// immediately; connection failures back off first and keep retrying until a
// dial succeeds or the worker is stopped.
func (w *Worker) reconnect(ctx context.Context, kind queue.FailureKind) {
	w.setState(StateReconnecting)
	defer w.setState(StateRunning)

	backoff := kind == queue.FailureConnection
	for !w.stopping() {
		if backoff {
			if !w.sleep(w.opts.ReconnectBackoff) {
				return
			}
		}

		q, err := w.dial(ctx)
		if err == nil {
			if old := w.Queue(); old != nil {
				if c, ok := old.(interface{ Close() error }); ok {
					c.Close()
				}
			}
			w.setQueue(q)
			metrics.RecordReconnect(kind.String())
			w.logger.WithContext(ctx).Info("queue connection reestablished")
			return
		}

		w.logger.WithContext(ctx).WithError(err).Error("queue reconnect failed")
		// after a failed immediate retry, fall back to the backoff path
		backoff = true
	}
}

// sleep waits for d unless the worker is stopped first
func (w *Worker) sleep(d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-w.stop:
		return false
	}
}
