package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/vietddude/tabretry/internal/core/domain"
)

// RetryRepo implements recovery.RetryStateStore using PostgreSQL.
type RetryRepo struct {
	db *DB
}

// NewRetryRepo creates a new PostgreSQL retry repository.
func NewRetryRepo(db *DB) *RetryRepo {
	return &RetryRepo{db: db}
}

// Get returns the retry count and whether a record exists.
func (r *RetryRepo) Get(ctx context.Context, tab domain.TabID) (int, bool, error) {
	var count int
	err := r.db.GetContext(ctx, &count, `SELECT retry_count FROM tab_retries WHERE tab_id = $1`, int64(tab))
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("failed to get retry count: %w", err)
	}
	return count, true, nil
}

// Set upserts the retry count.
func (r *RetryRepo) Set(ctx context.Context, tab domain.TabID, count int) error {
	query := `
		INSERT INTO tab_retries (tab_id, retry_count, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (tab_id) DO UPDATE
		SET retry_count = EXCLUDED.retry_count, updated_at = EXCLUDED.updated_at
	`
	if _, err := r.db.ExecContext(ctx, query, int64(tab), count); err != nil {
		return fmt.Errorf("failed to set retry count: %w", err)
	}
	return nil
}

// Delete removes the record.
func (r *RetryRepo) Delete(ctx context.Context, tab domain.TabID) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM tab_retries WHERE tab_id = $1`, int64(tab)); err != nil {
		return fmt.Errorf("failed to delete retry count: %w", err)
	}
	return nil
}

// List returns all records ordered by tab id.
func (r *RetryRepo) List(ctx context.Context) ([]domain.TabRetryState, error) {
	var states []domain.TabRetryState
	query := `SELECT tab_id, retry_count, updated_at FROM tab_retries ORDER BY tab_id`
	if err := r.db.SelectContext(ctx, &states, query); err != nil {
		return nil, fmt.Errorf("failed to list retry counts: %w", err)
	}
	return states, nil
}

// DeleteOlderThan removes records not written since threshold.
func (r *RetryRepo) DeleteOlderThan(ctx context.Context, threshold time.Time) (int, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM tab_retries WHERE updated_at < $1`, threshold)
	if err != nil {
		return 0, fmt.Errorf("failed to prune retry counts: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(n), nil
}
