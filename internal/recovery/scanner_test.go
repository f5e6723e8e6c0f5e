package recovery_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/ethereumidentitykit/ens-market-bot-sub001/internal/domain"
	"github.com/ethereumidentitykit/ens-market-bot-sub001/internal/recovery"
	"github.com/ethereumidentitykit/ens-market-bot-sub001/internal/repository"
)

type enqueueRecorder struct {
	mu    sync.Mutex
	ids   map[domain.Category][]int64
	errFn func(c domain.Category, id int64) error
}

func newEnqueueRecorder() *enqueueRecorder {
	return &enqueueRecorder{ids: make(map[domain.Category][]int64)}
}

func (r *enqueueRecorder) enqueue(c domain.Category, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.errFn != nil {
		if err := r.errFn(c, id); err != nil {
			return err
		}
	}
	r.ids[c] = append(r.ids[c], id)
	return nil
}

func (r *enqueueRecorder) count(c domain.Category) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.ids[c])
}

func seedUndelivered(repo *repository.MockMarketEventRepository, c domain.Category, n int, age time.Duration) {
	base := time.Now().Add(-age)
	for i := 0; i < n; i++ {
		repo.Put(&domain.MarketEvent{
			ID:        int64(1000*len(c) + i),
			Category:  c,
			Name:      "name.eth",
			CreatedAt: base.Add(time.Duration(i) * time.Second),
		})
	}
}

// TestScanner_BoundedBatch verifies seeding 50 undelivered records with a
// batch size of 5 enqueues exactly 5, while the wider observability count
// still sees all 50.
func TestScanner_BoundedBatch(t *testing.T) {
	repo := repository.NewMockMarketEventRepository()
	seedUndelivered(repo, domain.CategorySale, 50, 10*time.Minute)
	rec := newEnqueueRecorder()

	var seeded int
	s := recovery.NewScanner(repo, rec.enqueue, time.Hour, 5, zap.NewNop(),
		recovery.Hooks{OnSeeded: func(c domain.Category, count int) {
			if c == domain.CategorySale {
				seeded = count
			}
		}})
	s.Run(context.Background())

	if got := rec.count(domain.CategorySale); got != 5 {
		t.Fatalf("expected exactly 5 seeded ids, got %d", got)
	}
	if seeded != 5 {
		t.Fatalf("expected seeded hook count 5, got %d", seeded)
	}
	if total, _ := repo.CountUndelivered(context.Background(), domain.CategorySale); total != 50 {
		t.Fatalf("expected observability count 50, got %d", total)
	}
}

// TestScanner_RespectsMaxAge verifies records older than the recovery
// window are not seeded.
func TestScanner_RespectsMaxAge(t *testing.T) {
	repo := repository.NewMockMarketEventRepository()
	seedUndelivered(repo, domain.CategoryRegistration, 3, 10*time.Minute)
	repo.Put(&domain.MarketEvent{
		ID:        9999,
		Category:  domain.CategoryRegistration,
		Name:      "ancient.eth",
		CreatedAt: time.Now().Add(-48 * time.Hour),
	})
	rec := newEnqueueRecorder()

	s := recovery.NewScanner(repo, rec.enqueue, time.Hour, 10, zap.NewNop(), recovery.Hooks{})
	s.Run(context.Background())

	if got := rec.count(domain.CategoryRegistration); got != 3 {
		t.Fatalf("expected 3 seeded ids (stale one excluded), got %d", got)
	}
}

// TestScanner_SkipsDeliveredRecords verifies only undelivered rows seed.
func TestScanner_SkipsDeliveredRecords(t *testing.T) {
	repo := repository.NewMockMarketEventRepository()
	seedUndelivered(repo, domain.CategoryBid, 2, time.Minute)
	now := time.Now()
	repo.Put(&domain.MarketEvent{
		ID: 777, Category: domain.CategoryBid, Name: "done.eth",
		Delivered: true, DeliveredAt: &now, CreatedAt: now.Add(-time.Minute),
	})
	rec := newEnqueueRecorder()

	s := recovery.NewScanner(repo, rec.enqueue, time.Hour, 10, zap.NewNop(), recovery.Hooks{})
	s.Run(context.Background())

	if got := rec.count(domain.CategoryBid); got != 2 {
		t.Fatalf("expected 2 seeded ids, got %d", got)
	}
}

// TestScanner_EnqueueErrorDoesNotAbort verifies one rejected id does not
// stop the rest of the pass.
func TestScanner_EnqueueErrorDoesNotAbort(t *testing.T) {
	repo := repository.NewMockMarketEventRepository()
	seedUndelivered(repo, domain.CategorySale, 3, time.Minute)
	rec := newEnqueueRecorder()
	failed := false
	rec.errFn = func(domain.Category, int64) error {
		if !failed {
			failed = true
			return domain.ErrQueueFull
		}
		return nil
	}

	s := recovery.NewScanner(repo, rec.enqueue, time.Hour, 10, zap.NewNop(), recovery.Hooks{})
	s.Run(context.Background())

	if got := rec.count(domain.CategorySale); got != 2 {
		t.Fatalf("expected 2 seeded ids after one rejection, got %d", got)
	}
}

// TestScanner_QueryErrorContinues verifies a failing category query is
// logged and the scan moves on to other categories.
func TestScanner_QueryErrorContinues(t *testing.T) {
	repo := repository.NewMockMarketEventRepository()
	repo.FindUndeliveredErr = domain.ErrShuttingDown
	rec := newEnqueueRecorder()

	s := recovery.NewScanner(repo, rec.enqueue, time.Hour, 10, zap.NewNop(), recovery.Hooks{})
	s.Run(context.Background())

	for _, c := range domain.PrimaryCategories() {
		if rec.count(c) != 0 {
			t.Fatalf("no ids should seed when every query fails")
		}
	}
}
