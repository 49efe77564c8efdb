package control

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/vietddude/tabretry/internal/core/domain"
	"github.com/vietddude/tabretry/internal/reload/metrics"
)

// ErrDispatcherStopped is returned by Submit once the dispatch loop has exited.
var ErrDispatcherStopped = errors.New("dispatcher stopped")

// DefaultQueueSize is the event buffer used when none is configured.
const DefaultQueueSize = 256

// EventHandler handles one event at a time.
type EventHandler interface {
	Handle(ctx context.Context, ev domain.Event) error
}

// Dispatcher funnels every event source into one goroutine so that handlers
// never run concurrently within a process.
type Dispatcher struct {
	handler EventHandler
	events  chan domain.Event
	done    chan struct{}
	once    sync.Once
	log     *slog.Logger

	mu     sync.RWMutex
	last   domain.Event
	lastAt time.Time
}

// NewDispatcher creates a dispatcher with the given buffer size.
func NewDispatcher(handler EventHandler, size int) *Dispatcher {
	if size <= 0 {
		size = DefaultQueueSize
	}
	return &Dispatcher{
		handler: handler,
		events:  make(chan domain.Event, size),
		done:    make(chan struct{}),
		log:     slog.Default().With("component", "dispatcher"),
	}
}

// Submit queues an event, blocking while the buffer is full.
func (d *Dispatcher) Submit(ctx context.Context, ev domain.Event) error {
	select {
	case <-d.done:
		return ErrDispatcherStopped
	default:
	}

	select {
	case d.events <- ev:
		metrics.QueueDepth.Set(float64(len(d.events)))
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-d.done:
		return ErrDispatcherStopped
	}
}

// Fire queues a timer event. It is the FireFunc handed to timer schedulers.
func (d *Dispatcher) Fire(ev domain.Event) {
	select {
	case d.events <- ev:
		metrics.QueueDepth.Set(float64(len(d.events)))
	case <-d.done:
		d.log.Warn("Timer fired after shutdown, dropped", "tab", ev.TabID)
	}
}

// Run handles queued events until ctx is cancelled.
func (d *Dispatcher) Run(ctx context.Context) {
	defer d.once.Do(func() { close(d.done) })

	d.log.Info("Dispatch loop started", "buffer", cap(d.events))
	for {
		select {
		case <-ctx.Done():
			d.log.Info("Dispatch loop stopped", "dropped", len(d.events))
			return
		case ev := <-d.events:
			metrics.QueueDepth.Set(float64(len(d.events)))
			d.handle(ctx, ev)
		}
	}
}

func (d *Dispatcher) handle(ctx context.Context, ev domain.Event) {
	if err := d.handler.Handle(ctx, ev); err != nil {
		d.log.Error("Failed to handle event",
			"type", ev.Type,
			"tab", ev.TabID,
			"event_id", ev.ID,
			"error", err,
		)
	}

	d.mu.Lock()
	d.last = ev
	d.lastAt = time.Now()
	d.mu.Unlock()
}

// Done is closed once Run has returned.
func (d *Dispatcher) Done() <-chan struct{} {
	return d.done
}

// Depth returns the number of queued events.
func (d *Dispatcher) Depth() int {
	return len(d.events)
}

// LastEvent returns the most recently handled event and when it finished.
func (d *Dispatcher) LastEvent() (domain.Event, time.Time, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.last, d.lastAt, !d.lastAt.IsZero()
}
