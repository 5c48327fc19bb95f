package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dejobratic/laborders/internal/clock"
	"github.com/dejobratic/laborders/internal/orders/ports"
)

// defaultTTL applies when the store is built without a positive ttl.
const defaultTTL = 24 * time.Hour

type Store struct {
	pool  *pgxpool.Pool
	clock clock.Clock
	ttl   time.Duration
}

func NewStore(pool *pgxpool.Pool, clk clock.Clock, ttl time.Duration) *Store {
	if clk == nil {
		clk = clock.System()
	}
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &Store{pool: pool, clock: clk, ttl: ttl}
}

func (s *Store) Get(ctx context.Context, key string) (*ports.StoredResponse, error) {
	query := `
		SELECT status_code, body, order_id
		FROM idempotency_keys
		WHERE key = $1 AND expires_at > $2
	`

	var resp ports.StoredResponse
	err := s.pool.QueryRow(ctx, query, key, s.clock.Now()).Scan(
		&resp.StatusCode,
		&resp.Body,
		&resp.OrderID,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("select idempotency key: %w", err)
	}

	return &resp, nil
}

// Save keeps the first live response for a key; an expired row is replaced.
func (s *Store) Save(ctx context.Context, key string, response ports.StoredResponse) error {
	now := s.clock.Now()
	query := `
		INSERT INTO idempotency_keys (key, status_code, body, order_id, created_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (key) DO UPDATE
		SET status_code = EXCLUDED.status_code,
		    body        = EXCLUDED.body,
		    order_id    = EXCLUDED.order_id,
		    created_at  = EXCLUDED.created_at,
		    expires_at  = EXCLUDED.expires_at
		WHERE idempotency_keys.expires_at <= EXCLUDED.created_at
	`

	_, err := s.pool.Exec(ctx, query, key, response.StatusCode, response.Body, response.OrderID, now, now.Add(s.ttl))
	if err != nil {
		return fmt.Errorf("insert idempotency key: %w", err)
	}

	return nil
}

// PurgeExpired deletes keys whose expiry is not after before.
func (s *Store) PurgeExpired(ctx context.Context, before time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM idempotency_keys WHERE expires_at <= $1`, before)
	if err != nil {
		return 0, fmt.Errorf("purge idempotency keys: %w", err)
	}
	return tag.RowsAffected(), nil
}

var _ ports.IdempotencyStore = (*Store)(nil)
