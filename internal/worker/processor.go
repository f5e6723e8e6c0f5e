package worker

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/ethereumidentitykit/ens-market-bot-sub001/internal/dispatch"
	"github.com/ethereumidentitykit/ens-market-bot-sub001/internal/domain"
	"github.com/ethereumidentitykit/ens-market-bot-sub001/internal/repository"
)

// Hooks carries the metric callbacks injected by main.
// All fields are optional (nil = no-op).
type Hooks struct {
	OnOutcome func(c domain.Category, outcome string)
}

func (h *Hooks) fillDefaults() {
	if h.OnOutcome == nil {
		h.OnOutcome = func(domain.Category, string) {}
	}
}

// Outcome labels reported through Hooks.OnOutcome.
const (
	outcomePosted  = "posted"
	outcomeSkipped = "skipped"
	outcomeFailed  = "failed"
	outcomeDropped = "dropped"
)

// Processor handles one popped queue item end to end: load the record,
// apply the idempotent re-delivery guard and the category's settings
// snapshot, invoke the Action Dispatcher, and log the outcome. A failed
// dispatch is dropped, not retried: reliability comes from the startup
// recovery scanner re-discovering records still flagged undelivered after
// the next restart.
type Processor struct {
	repo     repository.MarketEventRepository
	registry *dispatch.Registry
	// timeout bounds a single dispatch attempt; zero means a hung
	// downstream call stalls its category's processor indefinitely.
	timeout time.Duration
	logger  *zap.Logger
	hooks   Hooks
}

func NewProcessor(
	repo repository.MarketEventRepository,
	registry *dispatch.Registry,
	timeout time.Duration,
	logger *zap.Logger,
	hooks Hooks,
) *Processor {
	hooks.fillDefaults()
	return &Processor{
		repo:     repo,
		registry: registry,
		timeout:  timeout,
		logger:   logger,
		hooks:    hooks,
	}
}

// Handle processes one record id for one category. It never returns an
// error: every terminal condition is logged and accounted, and the queue
// moves on.
func (p *Processor) Handle(ctx context.Context, c domain.Category, id int64) {
	log := p.logger.With(
		zap.String("category", string(c)),
		zap.Int64("record_id", id),
	)

	e, err := p.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			log.Warn("record not found, dropping")
		} else {
			log.Error("failed to load record", zap.Error(err))
		}
		p.hooks.OnOutcome(c, outcomeDropped)
		return
	}

	// Idempotent re-delivery guard: a redundant upstream signal for an
	// already-published record is a normal race outcome.
	if e.Delivered {
		log.Debug("record already delivered, dropping")
		p.hooks.OnOutcome(c, outcomeDropped)
		return
	}

	d, err := p.registry.Lookup(c)
	if err != nil {
		log.Warn("dropping record", zap.Error(err))
		p.hooks.OnOutcome(c, outcomeDropped)
		return
	}

	// One immutable settings snapshot per processing cycle.
	settings := d.Settings()
	if !settings.Enabled {
		log.Info("automated posting disabled for category, skipping")
		p.hooks.OnOutcome(c, outcomeSkipped)
		return
	}
	if settings.MaxRecordAge > 0 && e.Age(time.Now()) > settings.MaxRecordAge {
		log.Info("record older than allowed age, skipping",
			zap.Duration("max_age", settings.MaxRecordAge),
			zap.Time("created_at", e.CreatedAt))
		p.hooks.OnOutcome(c, outcomeSkipped)
		return
	}

	dispatchCtx := ctx
	if p.timeout > 0 {
		var cancel context.CancelFunc
		dispatchCtx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	result, err := d.ProcessRecord(dispatchCtx, e)
	if err != nil {
		log.Error("dispatch failed, dropping without retry", zap.Error(err))
		p.hooks.OnOutcome(c, outcomeFailed)
		return
	}

	switch result.Outcome {
	case dispatch.OutcomePosted:
		now := time.Now().UTC()
		if err := p.repo.MarkDelivered(ctx, id, result.ExternalRef, now); err != nil {
			log.Error("failed to mark record delivered", zap.Error(err))
		}
		log.Info("record posted", zap.String("external_ref", result.ExternalRef))
		p.hooks.OnOutcome(c, outcomePosted)
	case dispatch.OutcomeSkipped:
		log.Info("record intentionally skipped", zap.String("reason", result.Reason))
		p.hooks.OnOutcome(c, outcomeSkipped)
	default:
		log.Error("dispatcher returned unknown outcome",
			zap.String("outcome", string(result.Outcome)))
		p.hooks.OnOutcome(c, outcomeFailed)
	}
}
