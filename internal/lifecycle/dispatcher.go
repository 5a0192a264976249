package lifecycle

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// Dispatcher decouples the message transport from result handling: the
// consumer enqueues raw payloads and a fixed pool of workers drains them.
// Handlers are expected to be quick and non-cancellable, so workers only
// stop between messages.
type Dispatcher struct {
	handler func(ctx context.Context, payload []byte) error
	queue   chan []byte
	workers int
}

func NewDispatcher(handler func(ctx context.Context, payload []byte) error, workers, queueSize int) *Dispatcher {
	if workers < 1 {
		workers = 1
	}
	if queueSize < 0 {
		queueSize = 0
	}
	return &Dispatcher{
		handler: handler,
		queue:   make(chan []byte, queueSize),
		workers: workers,
	}
}

// Enqueue hands a payload to the pool, blocking while the queue is full.
func (d *Dispatcher) Enqueue(ctx context.Context, payload []byte) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case d.queue <- payload:
		return nil
	}
}

// Run blocks until ctx is cancelled, then waits for in-flight handlers.
func (d *Dispatcher) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	for i := 0; i < d.workers; i++ {
		g.Go(func() error {
			for {
				select {
				case <-ctx.Done():
					return ctx.Err()
				case payload := <-d.queue:
					_ = d.handler(ctx, payload)
				}
			}
		})
	}

	return g.Wait()
}
