package control

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/vietddude/tabretry/internal/core/domain"
)

// ===== Mocks =====

type recordingHandler struct {
	mu       sync.Mutex
	events   []domain.Event
	inFlight atomic.Int32
	overlap  atomic.Bool
	err      error
}

func (h *recordingHandler) Handle(ctx context.Context, ev domain.Event) error {
	if h.inFlight.Add(1) > 1 {
		h.overlap.Store(true)
	}
	defer h.inFlight.Add(-1)

	time.Sleep(time.Millisecond)

	h.mu.Lock()
	h.events = append(h.events, ev)
	h.mu.Unlock()
	return h.err
}

func (h *recordingHandler) count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.events)
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

// ===== Tests =====

func TestDispatcher_Serializes(t *testing.T) {
	h := &recordingHandler{}
	d := NewDispatcher(h, 8)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go d.Run(ctx)

	var wg sync.WaitGroup
	for i := range 20 {
		wg.Add(1)
		go func(tab domain.TabID) {
			defer wg.Done()
			if i%2 == 0 {
				d.Fire(domain.TimerElapsed(tab, time.Now()))
				return
			}
			if err := d.Submit(ctx, domain.NavigationError(tab)); err != nil {
				t.Errorf("submit failed: %v", err)
			}
		}(domain.TabID(i))
	}
	wg.Wait()

	waitFor(t, func() bool { return h.count() == 20 })
	if h.overlap.Load() {
		t.Error("handler ran concurrently")
	}
}

func TestDispatcher_ContinuesAfterError(t *testing.T) {
	h := &recordingHandler{err: errors.New("redis down")}
	d := NewDispatcher(h, 0)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go d.Run(ctx)

	for tab := range domain.TabID(3) {
		if err := d.Submit(ctx, domain.NavigationCommitted(tab)); err != nil {
			t.Fatal(err)
		}
	}
	waitFor(t, func() bool { return h.count() == 3 })

	last, at, ok := d.LastEvent()
	if !ok || at.IsZero() {
		t.Fatal("expected a last event")
	}
	if last.Type != domain.EventNavigationCommitted {
		t.Errorf("unexpected last event %+v", last)
	}
}

func TestDispatcher_SubmitAfterStop(t *testing.T) {
	d := NewDispatcher(&recordingHandler{}, 1)

	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		d.Run(ctx)
		close(stopped)
	}()
	cancel()
	<-stopped

	err := d.Submit(context.Background(), domain.NavigationError(1))
	if !errors.Is(err, ErrDispatcherStopped) {
		t.Errorf("expected ErrDispatcherStopped, got %v", err)
	}

	// Must not block once the loop has exited
	fired := make(chan struct{})
	go func() {
		d.Fire(domain.TimerElapsed(1, time.Now()))
		close(fired)
	}()
	select {
	case <-fired:
	case <-time.After(time.Second):
		t.Fatal("Fire blocked after stop")
	}
}

func TestDispatcher_SubmitRespectsContext(t *testing.T) {
	d := NewDispatcher(&recordingHandler{}, 1)
	if err := d.Submit(context.Background(), domain.NavigationError(1)); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := d.Submit(ctx, domain.NavigationError(2)); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected deadline exceeded, got %v", err)
	}
	if d.Depth() != 1 {
		t.Errorf("expected depth 1, got %d", d.Depth())
	}
}
