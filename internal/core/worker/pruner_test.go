package worker

import (
	"context"
	"errors"
	"testing"
	"time"
)

type stubRepo struct {
	threshold time.Time
	n         int
	err       error
}

func (s *stubRepo) DeleteOlderThan(ctx context.Context, threshold time.Time) (int, error) {
	s.threshold = threshold
	return s.n, s.err
}

func TestPruner_Threshold(t *testing.T) {
	repo := &stubRepo{n: 3}
	p := NewPruner(24*time.Hour, repo)
	now := time.Date(2026, 10, 19, 0, 0, 0, 0, time.UTC)
	p.now = func() time.Time { return now }

	if n := p.prune(context.Background()); n != 3 {
		t.Errorf("expected 3 pruned, got %d", n)
	}
	if want := now.Add(-24 * time.Hour); !repo.threshold.Equal(want) {
		t.Errorf("threshold = %v, want %v", repo.threshold, want)
	}
}

func TestPruner_ErrorIsLogged(t *testing.T) {
	p := NewPruner(time.Hour, &stubRepo{err: errors.New("db down")})
	if n := p.prune(context.Background()); n != 0 {
		t.Errorf("expected 0 on error, got %d", n)
	}
}

func TestPruner_DisabledReturnsImmediately(t *testing.T) {
	p := NewPruner(0, &stubRepo{})
	done := make(chan struct{})
	go func() {
		p.Start(context.Background())
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Start should return when retention is disabled")
	}
}
