package control

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"

	"github.com/vietddude/tabretry/internal/core/config"
	"github.com/vietddude/tabretry/internal/core/domain"
	"github.com/vietddude/tabretry/internal/reload/recovery"
)

// ===== Mocks =====

type stubTabs struct {
	mu      sync.Mutex
	reloads []domain.TabID
}

func (s *stubTabs) Exists(ctx context.Context, tab domain.TabID) (bool, error) { return true, nil }

func (s *stubTabs) Reload(ctx context.Context, tab domain.TabID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reloads = append(s.reloads, tab)
	return nil
}

// blockingTabs holds Exists until release is closed.
type blockingTabs struct {
	entered chan struct{}
	release chan struct{}
}

func (b *blockingTabs) Exists(ctx context.Context, tab domain.TabID) (bool, error) {
	close(b.entered)
	<-b.release
	return false, nil
}

func (b *blockingTabs) Reload(ctx context.Context, tab domain.TabID) error { return nil }

func memoryConfig(t *testing.T) *config.AppConfig {
	t.Helper()
	cfg, err := config.Parse([]byte("logging: {level: info}"))
	if err != nil {
		t.Fatal(err)
	}
	cfg.Server.Port = 0 // ephemeral
	return cfg
}

// ===== Tests =====

func TestService_Lifecycle(t *testing.T) {
	cfg := memoryConfig(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	s, err := NewService(ctx, cfg, WithTabController(&stubTabs{}))
	if err != nil {
		t.Fatalf("NewService failed: %v", err)
	}

	// Events are refused until Start has recovered
	err = s.Controller().Handle(ctx, domain.NavigationError(1))
	if !errors.Is(err, recovery.ErrNotRecovered) {
		t.Errorf("expected ErrNotRecovered, got %v", err)
	}

	if err := s.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if !s.Controller().Recovered() {
		t.Error("expected controller to be recovered after Start")
	}

	if err := s.Dispatcher().Submit(ctx, domain.NavigationError(7)); err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	waitFor(t, func() bool {
		timer, _ := s.backends.Timers.Get(ctx, 7)
		return timer != nil
	})

	stopCtx, stopCancel := context.WithTimeout(context.Background(), time.Second)
	defer stopCancel()
	if err := s.Stop(stopCtx); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
}

func TestService_IngestRoute(t *testing.T) {
	cfg := memoryConfig(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	s, err := NewService(ctx, cfg, WithTabController(&stubTabs{}))
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Start(ctx); err != nil {
		t.Fatal(err)
	}
	defer s.Stop(context.Background())

	req := httptest.NewRequest(http.MethodPost, "/events",
		strings.NewReader(`{"type":"navigation_error","tab_id":3}`))
	rec := httptest.NewRecorder()
	s.healthServer.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", rec.Code)
	}

	waitFor(t, func() bool {
		timer, _ := s.backends.Timers.Get(ctx, 3)
		return timer != nil
	})
}

func TestService_RedisBackends(t *testing.T) {
	mr := miniredis.RunT(t)

	cfg, err := config.Parse([]byte(`
redis:
  url: redis://` + mr.Addr() + `/0
store:
  backend: redis
timers:
  backend: redis
events:
  redis_channel: tabretry:events
`))
	if err != nil {
		t.Fatal(err)
	}
	cfg.Server.Port = 0

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// A timer left by a previous run
	mr.ZAdd("tabretry:timers", 1, "9")

	s, err := NewService(ctx, cfg, WithTabController(&stubTabs{}))
	if err != nil {
		t.Fatal(err)
	}
	if s.subscriber == nil || s.backends.RedisTimers == nil {
		t.Fatal("expected redis subscriber and timer poller")
	}
	if err := s.Start(ctx); err != nil {
		t.Fatal(err)
	}
	defer s.Stop(context.Background())

	if mr.Exists("tabretry:timers") {
		t.Error("expected stale timers to be cleared on start")
	}

	if err := s.backends.Reset(ctx, 9); err != nil {
		t.Errorf("Reset failed: %v", err)
	}
}

func TestOpenBackends_Pruner(t *testing.T) {
	cfg := memoryConfig(t)

	b, err := OpenBackends(context.Background(), cfg, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer b.Close()

	if _, ok := b.Pruner(); !ok {
		t.Error("memory store should support pruning")
	}
	if b.RedisTimers != nil || b.Redis != nil || b.DB != nil {
		t.Error("memory config should not open external connections")
	}
}

func TestService_StopWaitsForInFlightEvent(t *testing.T) {
	cfg := memoryConfig(t)
	tabs := &blockingTabs{entered: make(chan struct{}), release: make(chan struct{})}

	s, err := NewService(context.Background(), cfg, WithTabController(tabs))
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Start(context.Background()); err != nil {
		t.Fatal(err)
	}

	s.Dispatcher().Fire(domain.TimerElapsed(4, time.Now()))
	<-tabs.entered

	stopped := make(chan error, 1)
	go func() { stopped <- s.Stop(context.Background()) }()

	select {
	case <-stopped:
		t.Fatal("Stop returned while an event was still being handled")
	case <-time.After(50 * time.Millisecond):
	}

	close(tabs.release)
	select {
	case err := <-stopped:
		if err != nil {
			t.Errorf("Stop failed: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Stop did not return after the handler finished")
	}

	select {
	case <-s.Dispatcher().Done():
	default:
		t.Error("dispatch loop should have exited before Stop returned")
	}
}

func TestService_StopHonorsDeadline(t *testing.T) {
	cfg := memoryConfig(t)
	tabs := &blockingTabs{entered: make(chan struct{}), release: make(chan struct{})}
	defer close(tabs.release)

	s, err := NewService(context.Background(), cfg, WithTabController(tabs))
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Start(context.Background()); err != nil {
		t.Fatal(err)
	}

	s.Dispatcher().Fire(domain.TimerElapsed(4, time.Now()))
	<-tabs.entered

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if err := s.Stop(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected deadline exceeded, got %v", err)
	}
}
