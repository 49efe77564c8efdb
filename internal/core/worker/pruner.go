package worker

import (
	"context"
	"log/slog"
	"time"

	"github.com/vietddude/tabretry/internal/reload/metrics"
)

// RecordPruner deletes retry records not written since a threshold.
type RecordPruner interface {
	DeleteOlderThan(ctx context.Context, threshold time.Time) (int, error)
}

// Pruner deletes retry history for tabs that stopped reporting. Timers are dropped
// on restart, so a tab closed while the service was down never fires its vanished path.
type Pruner struct {
	retention time.Duration
	repo      RecordPruner
	now       func() time.Time
	log       *slog.Logger
}

// NewPruner creates a new Pruner worker.
func NewPruner(retention time.Duration, repo RecordPruner) *Pruner {
	return &Pruner{
		retention: retention,
		repo:      repo,
		now:       time.Now,
		log:       slog.Default().With("component", "pruner"),
	}
}

// Start runs the pruner loop.
func (p *Pruner) Start(ctx context.Context) {
	if p.retention <= 0 {
		return // Retention disabled
	}

	// Check at 10% of the retention period, between 1 minute and 1 hour
	interval := min(p.retention/10, 1*time.Hour)
	interval = max(interval, 1*time.Minute)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	// Initial prune
	p.prune(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.prune(ctx)
		}
	}
}

func (p *Pruner) prune(ctx context.Context) int {
	threshold := p.now().Add(-p.retention)

	n, err := p.repo.DeleteOlderThan(ctx, threshold)
	if err != nil {
		p.log.Error("Failed to prune retry records", "error", err)
		return 0
	}
	if n > 0 {
		metrics.RecordsPruned.Add(float64(n))
		p.log.Info("Pruned stale retry records", "count", n, "older_than", threshold)
	}
	return n
}
