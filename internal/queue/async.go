package queue

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// ErrBufferFull is returned by Async.Publish when the buffer is full.  The
// event is dropped.
var ErrBufferFull = errors.New("event buffer full")

// ErrClosed is returned by Async.Publish after Close.
var ErrClosed = errors.New("publisher closed")

// Sink is anything that can deliver an event synchronously.  *Publisher
// is the production sink.
type Sink interface {
	Publish(ctx context.Context, ev Event) error
}

// Async moves broker round trips off the request path.  Publish enqueues
// and returns; one worker drains the buffer into the sink.
type Async struct {
	sink    Sink
	log     *slog.Logger
	timeout time.Duration

	mu     sync.RWMutex
	closed bool
	ch     chan Event
	done   chan struct{}
}

// NewAsync starts the worker.  buffer <= 0 selects 256.
func NewAsync(sink Sink, buffer int, log *slog.Logger) *Async {
	if buffer <= 0 {
		buffer = 256
	}
	a := &Async{
		sink:    sink,
		log:     log,
		timeout: 5 * time.Second,
		ch:      make(chan Event, buffer),
		done:    make(chan struct{}),
	}
	go a.run()
	return a
}

func (a *Async) run() {
	defer close(a.done)
	for ev := range a.ch {
		ctx, cancel := context.WithTimeout(context.Background(), a.timeout)
		if err := a.sink.Publish(ctx, ev); err != nil {
			a.log.Warn("event dropped", "event", ev.Type, "err", err)
		}
		cancel()
	}
}

// Publish enqueues ev without blocking.
func (a *Async) Publish(_ context.Context, ev Event) error {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.closed {
		return ErrClosed
	}
	select {
	case a.ch <- ev:
		return nil
	default:
		return ErrBufferFull
	}
}

// Close stops accepting events and waits until the buffer is drained or
// ctx ends.
func (a *Async) Close(ctx context.Context) error {
	a.mu.Lock()
	if !a.closed {
		a.closed = true
		close(a.ch)
	}
	a.mu.Unlock()
	select {
	case <-a.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
