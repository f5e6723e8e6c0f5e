package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/ethereumidentitykit/ens-market-bot-sub001/internal/domain"
)

// MockMarketEventRepository is a hand-written, in-memory implementation of
// MarketEventRepository used in unit tests. No mock-generation library needed.
type MockMarketEventRepository struct {
	mu     sync.RWMutex
	events map[int64]*domain.MarketEvent

	// Optional error overrides — set in tests to simulate failure paths.
	GetByIDErr         error
	FindUndeliveredErr error
	MarkDeliveredErr   error
}

func NewMockMarketEventRepository() *MockMarketEventRepository {
	return &MockMarketEventRepository{events: make(map[int64]*domain.MarketEvent)}
}

// Put seeds one event row. Safe for concurrent use.
func (m *MockMarketEventRepository) Put(e *domain.MarketEvent) {
	m.mu.Lock()
	defer m.mu.Unlock()
	clone := *e
	m.events[e.ID] = &clone
}

func (m *MockMarketEventRepository) GetByID(_ context.Context, id int64) (*domain.MarketEvent, error) {
	if m.GetByIDErr != nil {
		return nil, m.GetByIDErr
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.events[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	clone := *e
	return &clone, nil
}

func (m *MockMarketEventRepository) FindUndelivered(
	_ context.Context,
	c domain.Category,
	maxAge time.Duration,
	limit int,
) ([]*domain.MarketEvent, error) {
	if m.FindUndeliveredErr != nil {
		return nil, m.FindUndeliveredErr
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	cutoff := time.Now().Add(-maxAge)
	var matches []*domain.MarketEvent
	for _, e := range m.events {
		if e.Category == c && !e.Delivered && !e.CreatedAt.Before(cutoff) {
			clone := *e
			matches = append(matches, &clone)
		}
	}
	sort.Slice(matches, func(i, j int) bool {
		return matches[i].CreatedAt.Before(matches[j].CreatedAt)
	})
	if len(matches) > limit {
		matches = matches[:limit]
	}
	return matches, nil
}

func (m *MockMarketEventRepository) CountUndelivered(_ context.Context, c domain.Category) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	count := 0
	for _, e := range m.events {
		if e.Category == c && !e.Delivered {
			count++
		}
	}
	return count, nil
}

func (m *MockMarketEventRepository) MarkDelivered(_ context.Context, id int64, externalRef string, at time.Time) error {
	if m.MarkDeliveredErr != nil {
		return m.MarkDeliveredErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if e, ok := m.events[id]; ok {
		e.Delivered = true
		e.DeliveredAt = &at
		e.ExternalRef = &externalRef
	}
	return nil
}
