package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/parley-hq/parley/pkg/email"
)

// ErrQueueFull is returned when the inbound queue cannot take another event.
var ErrQueueFull = errors.New("inbound queue is full")

// Dispatcher feeds inbound emails to a bounded pool of pipeline workers.
// Ordering per thread comes from the negotiation lock, not the queue, so
// events for distinct threads fan out across workers freely.
type Dispatcher struct {
	orch        *Orchestrator
	queue       chan email.Inbound
	workerCount int
	stopCh      chan struct{}
	stopOnce    sync.Once
	wg          sync.WaitGroup
	started     bool
	logger      *slog.Logger
}

// NewDispatcher creates a dispatcher with the given worker count and queue
// capacity.
func NewDispatcher(orch *Orchestrator, workerCount, queueSize int) *Dispatcher {
	if workerCount <= 0 {
		workerCount = 1
	}
	if queueSize <= 0 {
		queueSize = 16
	}
	return &Dispatcher{
		orch:        orch,
		queue:       make(chan email.Inbound, queueSize),
		workerCount: workerCount,
		stopCh:      make(chan struct{}),
		logger:      slog.Default().With("component", "dispatcher"),
	}
}

// Start spawns the worker goroutines.
// It is safe to call multiple times; subsequent calls are no-ops.
func (d *Dispatcher) Start(ctx context.Context) {
	if d.started {
		d.logger.Warn("Dispatcher already started, ignoring duplicate Start call")
		return
	}
	d.started = true

	d.logger.Info("Starting inbound dispatcher", "worker_count", d.workerCount)
	for i := 0; i < d.workerCount; i++ {
		d.wg.Add(1)
		go func(workerID int) {
			defer d.wg.Done()
			d.runWorker(ctx, workerID)
		}(i)
	}
}

// Enqueue queues one inbound email for processing. Non-blocking; a full
// queue is surfaced to the caller so intake backpressure is visible.
func (d *Dispatcher) Enqueue(in email.Inbound) error {
	select {
	case <-d.stopCh:
		return errors.New("dispatcher is stopped")
	default:
	}

	select {
	case d.queue <- in:
		return nil
	default:
		return fmt.Errorf("%w: dropping event for thread %s", ErrQueueFull, in.ThreadID)
	}
}

// Stop closes intake, drains the queue, and waits for in-flight pipelines to
// finish. Callers bound the wait with their shutdown context.
func (d *Dispatcher) Stop() {
	d.logger.Info("Stopping inbound dispatcher")
	d.stopOnce.Do(func() { close(d.stopCh) })
	d.wg.Wait()
	d.logger.Info("Inbound dispatcher stopped")
}

// QueueDepth returns how many events are waiting. For health reporting.
func (d *Dispatcher) QueueDepth() int {
	return len(d.queue)
}

func (d *Dispatcher) runWorker(ctx context.Context, workerID int) {
	logger := d.logger.With("worker", workerID)
	for {
		select {
		case in := <-d.queue:
			d.process(ctx, logger, in)
		case <-ctx.Done():
			return
		case <-d.stopCh:
			// Drain whatever was accepted before intake closed.
			for {
				select {
				case in := <-d.queue:
					d.process(ctx, logger, in)
				default:
					return
				}
			}
		}
	}
}

func (d *Dispatcher) process(ctx context.Context, logger *slog.Logger, in email.Inbound) {
	outcome, err := d.orch.HandleInbound(ctx, in)
	if err != nil {
		logger.Error("Pipeline run failed",
			"thread_id", in.ThreadID,
			"action", outcome.Action,
			"error", err)
		return
	}
	logger.Info("Pipeline run finished",
		"thread_id", in.ThreadID,
		"action", outcome.Action,
		"state", outcome.State)
}
