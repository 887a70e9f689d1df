package webhook

import (
	"context"
	"log"
	"sync"
)

// MessageProcessor consumes dispatched messages out-of-band.
type MessageProcessor interface {
	Process(ctx context.Context, msg Message)
}

// Dispatcher fans accepted messages out to a bounded worker pool. The HTTP
// handler submits and returns immediately; ordering across messages is not
// guaranteed. Concurrency is capped at the worker count instead of one
// goroutine per message.
type Dispatcher struct {
	queue     chan Message
	processor MessageProcessor
	logger    *log.Logger
	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
}

// DispatcherOption customizes the dispatcher.
type DispatcherOption func(*Dispatcher)

// WithDispatcherLogger overrides the logger used for diagnostics.
func WithDispatcherLogger(logger *log.Logger) DispatcherOption {
	return func(d *Dispatcher) {
		if logger != nil {
			d.logger = logger
		}
	}
}

// NewDispatcher starts workers goroutines consuming from a queue of the
// given size.
func NewDispatcher(processor MessageProcessor, workers, queueSize int, opts ...DispatcherOption) *Dispatcher {
	if workers <= 0 {
		workers = 5
	}
	if queueSize <= 0 {
		queueSize = 100
	}
	ctx, cancel := context.WithCancel(context.Background())
	d := &Dispatcher{
		queue:     make(chan Message, queueSize),
		processor: processor,
		logger:    log.Default(),
		ctx:       ctx,
		cancel:    cancel,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(d)
		}
	}
	for i := 0; i < workers; i++ {
		d.wg.Add(1)
		go d.worker()
	}
	return d
}

// Submit enqueues a message without blocking. A full queue drops the
// message; the platform's own redelivery is the only retry mechanism.
func (d *Dispatcher) Submit(msg Message) bool {
	select {
	case d.queue <- msg:
		return true
	default:
		d.logger.Printf("webhook: dispatch queue full, dropping message from %s", msg.From)
		return false
	}
}

// Stop drains the queue and waits for in-flight handlers to finish.
func (d *Dispatcher) Stop() {
	close(d.queue)
	d.wg.Wait()
	d.cancel()
}

func (d *Dispatcher) worker() {
	defer d.wg.Done()
	for msg := range d.queue {
		d.processor.Process(d.ctx, msg)
	}
}
