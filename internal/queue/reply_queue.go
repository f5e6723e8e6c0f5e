package queue

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/ethereumidentitykit/ens-market-bot-sub001/internal/dispatch"
	"github.com/ethereumidentitykit/ens-market-bot-sub001/internal/domain"
)

// ReplyItem is one derived-workflow request waiting in the reply queue.
type ReplyItem struct {
	Category domain.Category
	RecordID int64
}

// ReplyQueue is the cross-category FIFO for the lower-priority derived
// workflow (follow-up replies to published records). A single combined
// queue gives FIFO across the union of categories, and a minimum spacing is
// enforced between dispatches regardless of category.
//
// The spacing timestamp advances only after a successful dispatch. After a
// failure the next item waits out only the remaining unspent spacing, not a
// fresh full interval. That asymmetry is deliberate.
type ReplyQueue struct {
	replier    dispatch.Replier
	minSpacing time.Duration
	maxDepth   int
	clock      Clock
	logger     *zap.Logger

	mu           sync.Mutex
	ctx          context.Context
	items        []ReplyItem
	running      bool
	started      bool
	lastDispatch time.Time
	wg           sync.WaitGroup
}

func NewReplyQueue(
	replier dispatch.Replier,
	minSpacing time.Duration,
	maxDepth int,
	clock Clock,
	logger *zap.Logger,
) *ReplyQueue {
	return &ReplyQueue{
		replier:    replier,
		minSpacing: minSpacing,
		maxDepth:   maxDepth,
		clock:      clock,
		logger:     logger,
	}
}

// Start arms the queue; the ctx governs the drain loop and spacing waits.
func (rq *ReplyQueue) Start(ctx context.Context) {
	rq.mu.Lock()
	defer rq.mu.Unlock()
	rq.ctx = ctx
	rq.started = true
}

// Enqueue appends one derived-workflow item and wakes the drain loop if
// idle. Bounded like the per-category queues: a full queue rejects the
// newest item.
func (rq *ReplyQueue) Enqueue(c domain.Category, recordID int64) error {
	rq.mu.Lock()
	defer rq.mu.Unlock()

	if !rq.started || rq.ctx.Err() != nil {
		return domain.ErrShuttingDown
	}
	if len(rq.items) >= rq.maxDepth {
		return domain.ErrQueueFull
	}

	rq.items = append(rq.items, ReplyItem{Category: c, RecordID: recordID})
	if !rq.running {
		rq.running = true
		rq.wg.Add(1)
		go rq.drain()
	}
	return nil
}

func (rq *ReplyQueue) drain() {
	defer rq.wg.Done()
	for {
		rq.mu.Lock()
		if rq.ctx.Err() != nil || len(rq.items) == 0 {
			rq.running = false
			rq.mu.Unlock()
			return
		}
		item := rq.items[0]
		rq.items = rq.items[1:]
		last := rq.lastDispatch
		ctx := rq.ctx
		rq.mu.Unlock()

		if !last.IsZero() {
			if elapsed := rq.clock.Now().Sub(last); elapsed < rq.minSpacing {
				if err := rq.clock.Sleep(ctx, rq.minSpacing-elapsed); err != nil {
					rq.mu.Lock()
					rq.running = false
					rq.mu.Unlock()
					return
				}
			}
		}

		log := rq.logger.With(
			zap.String("category", string(item.Category)),
			zap.Int64("record_id", item.RecordID),
		)
		if err := rq.replier.GenerateAndDispatch(ctx, item.Category, item.RecordID); err != nil {
			// Failed attempts do not advance the spacing timestamp.
			log.Warn("reply dispatch failed", zap.Error(err))
			continue
		}

		rq.mu.Lock()
		rq.lastDispatch = rq.clock.Now()
		rq.mu.Unlock()
		log.Info("reply dispatched")
	}
}

// Wait blocks until the drain loop has returned after ctx cancellation.
func (rq *ReplyQueue) Wait() {
	rq.wg.Wait()
}

// Stat snapshots the reply queue for the status query.
func (rq *ReplyQueue) Stat() QueueStat {
	rq.mu.Lock()
	defer rq.mu.Unlock()
	return QueueStat{Depth: len(rq.items), Running: rq.running}
}
