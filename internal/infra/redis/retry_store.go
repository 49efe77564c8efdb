package redis

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/vietddude/tabretry/internal/core/domain"
)

// RetryStore implements recovery.RetryStateStore with one string key per tab.
type RetryStore struct {
	client *Client
	ttl    time.Duration
}

// NewRetryStore creates a Redis-backed retry store. A non-zero ttl expires records
// that have not been written for that long.
func NewRetryStore(client *Client, ttl time.Duration) *RetryStore {
	return &RetryStore{client: client, ttl: ttl}
}

// Get returns the retry count and whether a record exists.
func (s *RetryStore) Get(ctx context.Context, tab domain.TabID) (int, bool, error) {
	n, err := s.client.rdb.Get(ctx, s.client.retryKey(tab)).Int()
	if err == redis.Nil {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("get failed: %w", err)
	}
	return n, true, nil
}

// Set stores the retry count.
func (s *RetryStore) Set(ctx context.Context, tab domain.TabID, count int) error {
	if err := s.client.rdb.Set(ctx, s.client.retryKey(tab), count, s.ttl).Err(); err != nil {
		return fmt.Errorf("set failed: %w", err)
	}
	return nil
}

// Delete removes the record.
func (s *RetryStore) Delete(ctx context.Context, tab domain.TabID) error {
	if err := s.client.rdb.Del(ctx, s.client.retryKey(tab)).Err(); err != nil {
		return fmt.Errorf("del failed: %w", err)
	}
	return nil
}

// List returns every stored record. UpdatedAt is not tracked in Redis and is left zero.
func (s *RetryStore) List(ctx context.Context) ([]domain.TabRetryState, error) {
	var keys []string
	iter := s.client.rdb.Scan(ctx, 0, s.client.retryPattern(), 100).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("scan failed: %w", err)
	}
	if len(keys) == 0 {
		return nil, nil
	}

	vals, err := s.client.rdb.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("mget failed: %w", err)
	}

	states := make([]domain.TabRetryState, 0, len(keys))
	for i, key := range keys {
		raw, ok := vals[i].(string)
		if !ok {
			continue // expired between SCAN and MGET
		}
		tab, err := domain.ParseTabID(key[strings.LastIndex(key, ":")+1:])
		if err != nil {
			continue
		}
		count, err := strconv.Atoi(raw)
		if err != nil {
			continue
		}
		states = append(states, domain.TabRetryState{TabID: tab, RetryCount: count})
	}
	sort.Slice(states, func(i, j int) bool { return states[i].TabID < states[j].TabID })
	return states, nil
}
