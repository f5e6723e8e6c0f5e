package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ethereumidentitykit/ens-market-bot-sub001/internal/domain"
)

type pgMarketEventRepository struct {
	pool *pgxpool.Pool
}

// NewPgMarketEventRepository returns a MarketEventRepository backed by PostgreSQL.
func NewPgMarketEventRepository(pool *pgxpool.Pool) MarketEventRepository {
	return &pgMarketEventRepository{pool: pool}
}

const eventColumns = `id, category, name, price_wei, buyer, seller, tx_hash,
	delivered, delivered_at, external_ref, created_at`

func (r *pgMarketEventRepository) GetByID(ctx context.Context, id int64) (*domain.MarketEvent, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+eventColumns+`
		FROM market_events WHERE id = $1`, id)

	e, err := scanEvent(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	return e, err
}

func (r *pgMarketEventRepository) FindUndelivered(
	ctx context.Context,
	c domain.Category,
	maxAge time.Duration,
	limit int,
) ([]*domain.MarketEvent, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+eventColumns+`
		FROM market_events
		WHERE category = $1
		  AND NOT delivered
		  AND created_at >= NOW() - make_interval(secs => $2)
		ORDER BY created_at ASC
		LIMIT $3`, c, maxAge.Seconds(), limit)
	if err != nil {
		return nil, fmt.Errorf("find undelivered %s events: %w", c, err)
	}
	defer rows.Close()

	var events []*domain.MarketEvent
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

func (r *pgMarketEventRepository) CountUndelivered(ctx context.Context, c domain.Category) (int, error) {
	var count int
	err := r.pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM market_events
		WHERE category = $1 AND NOT delivered`, c).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count undelivered %s events: %w", c, err)
	}
	return count, nil
}

func (r *pgMarketEventRepository) MarkDelivered(ctx context.Context, id int64, externalRef string, at time.Time) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE market_events
		SET delivered = TRUE, delivered_at = $1, external_ref = $2
		WHERE id = $3`, at, externalRef, id)
	if err != nil {
		return fmt.Errorf("mark event %d delivered: %w", id, err)
	}
	return nil
}

func scanEvent(row pgx.Row) (*domain.MarketEvent, error) {
	var e domain.MarketEvent
	err := row.Scan(
		&e.ID, &e.Category, &e.Name, &e.PriceWei, &e.Buyer, &e.Seller,
		&e.TxHash, &e.Delivered, &e.DeliveredAt, &e.ExternalRef, &e.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &e, nil
}
