package redis

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/vietddude/tabretry/internal/core/domain"
)

// TimerScheduler keeps pending reloads in a sorted set scored by fire time (unix ms),
// with the tab id as member. Run polls for due members and claims each with a script
// that removes it only while still due, so only one poller delivers a given timer even
// when several replicas share Redis.
type TimerScheduler struct {
	client   *Client
	interval time.Duration
	onFire   func(domain.Event)
	now      func() time.Time
	log      *slog.Logger
}

// NewTimerScheduler creates a Redis timer scheduler delivering fired timers to onFire.
func NewTimerScheduler(client *Client, interval time.Duration, onFire func(domain.Event)) *TimerScheduler {
	if interval <= 0 {
		interval = time.Second
	}
	return &TimerScheduler{
		client:   client,
		interval: interval,
		onFire:   onFire,
		now:      time.Now,
		log:      slog.Default().With("component", "redis-timers"),
	}
}

// claimScript removes a timer only if it is still due. A tab cleared and rescheduled
// after the due scan keeps its new timer.
var claimScript = redis.NewScript(`
local score = redis.call('ZSCORE', KEYS[1], ARGV[1])
if score and tonumber(score) <= tonumber(ARGV[2]) then
	return redis.call('ZREM', KEYS[1], ARGV[1])
end
return 0
`)

func member(tab domain.TabID) string {
	return tab.String()
}

// Create schedules a timer unless one is already pending for the tab.
func (s *TimerScheduler) Create(ctx context.Context, tab domain.TabID, fireAt time.Time) error {
	err := s.client.rdb.ZAddNX(ctx, s.client.timersKey(), redis.Z{
		Score:  float64(fireAt.UnixMilli()),
		Member: member(tab),
	}).Err()
	if err != nil {
		return fmt.Errorf("zadd failed: %w", err)
	}
	return nil
}

// Get returns the pending timer for the tab, or nil.
func (s *TimerScheduler) Get(ctx context.Context, tab domain.TabID) (*domain.ScheduledTimer, error) {
	score, err := s.client.rdb.ZScore(ctx, s.client.timersKey(), member(tab)).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("zscore failed: %w", err)
	}
	return &domain.ScheduledTimer{TabID: tab, FireAt: time.UnixMilli(int64(score))}, nil
}

// Clear cancels the tab's timer if present.
func (s *TimerScheduler) Clear(ctx context.Context, tab domain.TabID) error {
	if err := s.client.rdb.ZRem(ctx, s.client.timersKey(), member(tab)).Err(); err != nil {
		return fmt.Errorf("zrem failed: %w", err)
	}
	return nil
}

// ClearAll removes every pending timer.
func (s *TimerScheduler) ClearAll(ctx context.Context) error {
	if err := s.client.rdb.Del(ctx, s.client.timersKey()).Err(); err != nil {
		return fmt.Errorf("del failed: %w", err)
	}
	return nil
}

// List returns pending timers ordered by fire time.
func (s *TimerScheduler) List(ctx context.Context) ([]domain.ScheduledTimer, error) {
	results, err := s.client.rdb.ZRangeWithScores(ctx, s.client.timersKey(), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("zrange failed: %w", err)
	}
	return toTimers(results), nil
}

// Run polls for due timers until ctx is cancelled.
func (s *TimerScheduler) Run(ctx context.Context) error {
	s.log.Info("Starting timer poller", "interval", s.interval)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.log.Info("Timer poller stopped")
			return nil
		case <-ticker.C:
			if _, err := s.FireDue(ctx); err != nil {
				s.log.Error("Failed to fire due timers", "error", err)
			}
		}
	}
}

// FireDue delivers every timer whose fire time has passed and returns how many fired.
func (s *TimerScheduler) FireDue(ctx context.Context) (int, error) {
	now := s.now().UnixMilli()
	due, err := s.client.rdb.ZRangeByScoreWithScores(ctx, s.client.timersKey(), &redis.ZRangeBy{
		Min: "-inf",
		Max: strconv.FormatInt(now, 10),
	}).Result()
	if err != nil {
		return 0, fmt.Errorf("zrangebyscore failed: %w", err)
	}

	fired := 0
	for _, t := range toTimers(due) {
		claimed, err := s.claim(ctx, t.TabID, now)
		if err != nil {
			return fired, err
		}
		if !claimed {
			continue // cleared, rescheduled or claimed by another poller
		}
		fired++
		if s.onFire != nil {
			s.onFire(domain.TimerElapsed(t.TabID, t.FireAt))
		}
	}
	return fired, nil
}

func (s *TimerScheduler) claim(ctx context.Context, tab domain.TabID, nowMs int64) (bool, error) {
	n, err := claimScript.Run(ctx, s.client.rdb, []string{s.client.timersKey()}, member(tab), nowMs).Int()
	if err != nil {
		return false, fmt.Errorf("claim failed: %w", err)
	}
	return n == 1, nil
}

func toTimers(zs []redis.Z) []domain.ScheduledTimer {
	timers := make([]domain.ScheduledTimer, 0, len(zs))
	for _, z := range zs {
		m, ok := z.Member.(string)
		if !ok {
			continue
		}
		tab, err := domain.ParseTabID(m)
		if err != nil {
			continue
		}
		timers = append(timers, domain.ScheduledTimer{TabID: tab, FireAt: time.UnixMilli(int64(z.Score))})
	}
	return timers
}
