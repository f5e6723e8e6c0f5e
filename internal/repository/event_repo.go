package repository

import (
	"context"
	"time"

	"github.com/ethereumidentitykit/ens-market-bot-sub001/internal/domain"
)

// MarketEventRepository defines the read/mark operations the dispatcher
// needs against the market_events table. The pgx implementation is in
// pg_event_repo.go; tests use a hand-written mock (mock_event_repo.go).
type MarketEventRepository interface {
	// GetByID loads one event row. Returns domain.ErrNotFound if the id
	// does not exist (a normal race outcome, not a failure).
	GetByID(ctx context.Context, id int64) (*domain.MarketEvent, error)

	// FindUndelivered lists undelivered events of one category no older
	// than maxAge, oldest first, bounded by limit.
	FindUndelivered(ctx context.Context, c domain.Category, maxAge time.Duration, limit int) ([]*domain.MarketEvent, error)

	// CountUndelivered counts every undelivered event of one category
	// regardless of age. Used only for the recovery observability log.
	CountUndelivered(ctx context.Context, c domain.Category) (int, error)

	// MarkDelivered flips the delivered flag and records the external
	// reference returned by the posting workflow.
	MarkDelivered(ctx context.Context, id int64, externalRef string, at time.Time) error
}
