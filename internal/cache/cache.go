package cache

import (
	"context"
	"time"

	"omzetku/backend/internal/domain"
)

// OrderCache is a read-through cache for single-order lookups. Aggregates are
// never cached: every report recomputes from the raw ledger.
type OrderCache interface {
	Get(ctx context.Context, key string) (*domain.Order, bool, error)
	Set(ctx context.Context, key string, value *domain.Order, ttl time.Duration) error
	Invalidate(ctx context.Context, key string) error
}

type NoopOrderCache struct{}

func (NoopOrderCache) Get(_ context.Context, _ string) (*domain.Order, bool, error) {
	return nil, false, nil
}

func (NoopOrderCache) Set(_ context.Context, _ string, _ *domain.Order, _ time.Duration) error {
	return nil
}

func (NoopOrderCache) Invalidate(_ context.Context, _ string) error {
	return nil
}
