package recovery

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/ethereumidentitykit/ens-market-bot-sub001/internal/domain"
	"github.com/ethereumidentitykit/ens-market-bot-sub001/internal/repository"
)

// EnqueueFunc pushes one recovered id through the same enqueue path as a
// live signal, so recovery and live delivery share downstream semantics.
type EnqueueFunc func(c domain.Category, id int64) error

// Hooks carries the metric callbacks injected by main (nil = no-op).
type Hooks struct {
	OnSeeded func(c domain.Category, count int)
}

// Scanner is the one-shot startup reconciliation pass. After the listener
// first reaches listening, it seeds every per-category queue with the
// undelivered records that accumulated while the process was down or not
// yet subscribed. The scan is a bounded top-N within a maximum age — not an
// unbounded backlog drain — to avoid a burst flood after long downtime.
type Scanner struct {
	repo      repository.MarketEventRepository
	enqueue   EnqueueFunc
	maxAge    time.Duration
	batchSize int
	logger    *zap.Logger
	hooks     Hooks
}

func NewScanner(
	repo repository.MarketEventRepository,
	enqueue EnqueueFunc,
	maxAge time.Duration,
	batchSize int,
	logger *zap.Logger,
	hooks Hooks,
) *Scanner {
	if hooks.OnSeeded == nil {
		hooks.OnSeeded = func(domain.Category, int) {}
	}
	return &Scanner{
		repo:      repo,
		enqueue:   enqueue,
		maxAge:    maxAge,
		batchSize: batchSize,
		logger:    logger,
		hooks:     hooks,
	}
}

// Run executes the recovery pass once, category by category. A query error
// for one category is logged and does not abort the others.
func (s *Scanner) Run(ctx context.Context) {
	s.logger.Info("startup recovery scan started",
		zap.Duration("max_age", s.maxAge),
		zap.Int("batch_size", s.batchSize))

	for _, c := range domain.PrimaryCategories() {
		s.scanCategory(ctx, c)
	}

	s.logger.Info("startup recovery scan finished")
}

func (s *Scanner) scanCategory(ctx context.Context, c domain.Category) {
	log := s.logger.With(zap.String("category", string(c)))

	events, err := s.repo.FindUndelivered(ctx, c, s.maxAge, s.batchSize)
	if err != nil {
		log.Error("recovery query failed", zap.Error(err))
		return
	}

	seeded := 0
	for _, e := range events {
		if err := s.enqueue(c, e.ID); err != nil {
			log.Warn("could not seed recovered record",
				zap.Int64("id", e.ID), zap.Error(err))
			continue
		}
		seeded++
	}
	if seeded > 0 {
		log.Info("seeded undelivered records", zap.Int("count", seeded))
	}
	s.hooks.OnSeeded(c, seeded)

	// Wider, effectively unbounded-age count: observability only.
	// Records outside the recovery window are never enqueued.
	total, err := s.repo.CountUndelivered(ctx, c)
	if err != nil {
		log.Warn("undelivered count query failed", zap.Error(err))
		return
	}
	if outside := total - len(events); outside > 0 {
		log.Warn("undelivered records exist outside the recovery window",
			zap.Int("total_undelivered", total),
			zap.Int("outside_window", outside))
	}
}
