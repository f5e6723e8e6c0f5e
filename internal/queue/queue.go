package queue

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/ethereumidentitykit/ens-market-bot-sub001/internal/domain"
)

// Handler processes one popped record id. Supplied by the worker package;
// the queues themselves stay dispatch-agnostic.
type Handler func(ctx context.Context, c domain.Category, id int64)

// Hooks carries the metric callbacks injected by main.
// All fields are optional (nil = no-op).
type Hooks struct {
	OnDepth   func(c domain.Category, depth int)
	OnDropped func(c domain.Category)
}

func (h *Hooks) fillDefaults() {
	if h.OnDepth == nil {
		h.OnDepth = func(domain.Category, int) {}
	}
	if h.OnDropped == nil {
		h.OnDropped = func(domain.Category) {}
	}
}

// categoryQueue is one FIFO, duplicate-free id sequence plus the running
// flag of its processor loop. Only Manager methods touch it, always under
// the manager mutex.
type categoryQueue struct {
	ids     []int64
	present map[int64]struct{}
	running bool
}

// Manager owns one queue per category and one sequential processor loop per
// non-empty queue. Enqueue is idempotent per (category, id); each category
// drains independently, so a stalled dispatch in one category never delays
// another. Queues are bounded: when a queue is at capacity the newest id is
// rejected with domain.ErrQueueFull rather than growing without limit.
type Manager struct {
	handler  Handler
	maxDepth int
	logger   *zap.Logger
	hooks    Hooks

	mu      sync.Mutex
	ctx     context.Context
	queues  map[domain.Category]*categoryQueue
	started bool
	wg      sync.WaitGroup
}

// QueueStat is one category's contribution to the status query.
type QueueStat struct {
	Depth   int  `json:"depth"`
	Running bool `json:"running"`
}

func NewManager(handler Handler, maxDepth int, logger *zap.Logger, hooks Hooks) *Manager {
	hooks.fillDefaults()
	return &Manager{
		handler:  handler,
		maxDepth: maxDepth,
		logger:   logger,
		hooks:    hooks,
		queues:   make(map[domain.Category]*categoryQueue),
	}
}

// Start arms the manager. The given ctx governs every processor loop:
// cancelling it stops loops after their current item.
func (m *Manager) Start(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ctx = ctx
	m.started = true
}

// Enqueue appends id to the category's queue unless it is already present,
// then wakes that category's processor if idle. Both the live signal path
// and the startup recovery scanner come through here, so recovery and live
// delivery share identical downstream semantics.
func (m *Manager) Enqueue(c domain.Category, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.started || m.ctx.Err() != nil {
		return domain.ErrShuttingDown
	}

	q := m.queues[c]
	if q == nil {
		q = &categoryQueue{present: make(map[int64]struct{})}
		m.queues[c] = q
	}

	if _, dup := q.present[id]; dup {
		m.logger.Debug("duplicate id ignored",
			zap.String("category", string(c)), zap.Int64("id", id))
		return nil
	}
	if len(q.ids) >= m.maxDepth {
		m.hooks.OnDropped(c)
		return domain.ErrQueueFull
	}

	q.ids = append(q.ids, id)
	q.present[id] = struct{}{}
	m.hooks.OnDepth(c, len(q.ids))

	if !q.running {
		q.running = true
		m.wg.Add(1)
		go m.drain(c, q)
	}
	return nil
}

// drain is the per-category processor loop. It re-checks the queue under
// the lock after every pop, so an id enqueued while the previous item was
// dispatching is never lost. Removal happens before the dispatch attempt:
// a crash mid-dispatch does not re-queue the item.
func (m *Manager) drain(c domain.Category, q *categoryQueue) {
	defer m.wg.Done()
	for {
		m.mu.Lock()
		if m.ctx.Err() != nil || len(q.ids) == 0 {
			q.running = false
			m.hooks.OnDepth(c, len(q.ids))
			m.mu.Unlock()
			return
		}
		id := q.ids[0]
		q.ids = q.ids[1:]
		delete(q.present, id)
		m.hooks.OnDepth(c, len(q.ids))
		ctx := m.ctx
		m.mu.Unlock()

		m.handler(ctx, c, id)
	}
}

// Wait blocks until every processor loop has returned. Call after the
// Start ctx has been cancelled to let in-flight dispatches finish.
func (m *Manager) Wait() {
	m.wg.Wait()
}

// Stats snapshots every queue's depth and running flag for the status query.
func (m *Manager) Stats() map[domain.Category]QueueStat {
	m.mu.Lock()
	defer m.mu.Unlock()
	stats := make(map[domain.Category]QueueStat, len(m.queues))
	for c, q := range m.queues {
		stats[c] = QueueStat{Depth: len(q.ids), Running: q.running}
	}
	return stats
}

// Depth returns one category's current queue length.
func (m *Manager) Depth(c domain.Category) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	if q := m.queues[c]; q != nil {
		return len(q.ids)
	}
	return 0
}
