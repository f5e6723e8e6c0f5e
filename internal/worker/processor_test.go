package worker_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/ethereumidentitykit/ens-market-bot-sub001/internal/dispatch"
	"github.com/ethereumidentitykit/ens-market-bot-sub001/internal/domain"
	"github.com/ethereumidentitykit/ens-market-bot-sub001/internal/repository"
	"github.com/ethereumidentitykit/ens-market-bot-sub001/internal/worker"
)

// stubDispatcher returns a scripted result and counts invocations.
type stubDispatcher struct {
	settings dispatch.Settings
	result   dispatch.Result
	err      error

	mu    sync.Mutex
	calls int
}

func (d *stubDispatcher) ProcessRecord(context.Context, *domain.MarketEvent) (dispatch.Result, error) {
	d.mu.Lock()
	d.calls++
	d.mu.Unlock()
	return d.result, d.err
}

func (d *stubDispatcher) Settings() dispatch.Settings { return d.settings }

func (d *stubDispatcher) callCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.calls
}

// outcomeRecorder captures the hook stream for assertions.
type outcomeRecorder struct {
	mu       sync.Mutex
	outcomes []string
}

func (r *outcomeRecorder) hooks() worker.Hooks {
	return worker.Hooks{OnOutcome: func(_ domain.Category, outcome string) {
		r.mu.Lock()
		r.outcomes = append(r.outcomes, outcome)
		r.mu.Unlock()
	}}
}

func (r *outcomeRecorder) last(t *testing.T) string {
	t.Helper()
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.outcomes) == 0 {
		t.Fatal("no outcome recorded")
	}
	return r.outcomes[len(r.outcomes)-1]
}

func enabled() dispatch.Settings {
	return dispatch.Settings{Enabled: true, MaxRecordAge: time.Hour}
}

func newProcessor(repo *repository.MockMarketEventRepository, d dispatch.Dispatcher, rec *outcomeRecorder) *worker.Processor {
	registry := dispatch.NewRegistry()
	registry.Register(domain.CategorySale, d)
	return worker.NewProcessor(repo, registry, 0, zap.NewNop(), rec.hooks())
}

func saleEvent(id int64) *domain.MarketEvent {
	return &domain.MarketEvent{
		ID:        id,
		Category:  domain.CategorySale,
		Name:      "vault.eth",
		PriceWei:  "1500000000000000000",
		TxHash:    "0xabc",
		CreatedAt: time.Now().UTC(),
	}
}

func TestProcessor_SuccessMarksDelivered(t *testing.T) {
	repo := repository.NewMockMarketEventRepository()
	repo.Put(saleEvent(1))
	d := &stubDispatcher{
		settings: enabled(),
		result:   dispatch.Result{Outcome: dispatch.OutcomePosted, ExternalRef: "tweet-123"},
	}
	rec := &outcomeRecorder{}

	newProcessor(repo, d, rec).Handle(context.Background(), domain.CategorySale, 1)

	if d.callCount() != 1 {
		t.Fatalf("expected 1 dispatch, got %d", d.callCount())
	}
	if rec.last(t) != "posted" {
		t.Fatalf("expected posted outcome, got %s", rec.last(t))
	}
	e, err := repo.GetByID(context.Background(), 1)
	if err != nil {
		t.Fatal(err)
	}
	if !e.Delivered || e.ExternalRef == nil || *e.ExternalRef != "tweet-123" {
		t.Fatalf("record not marked delivered: %+v", e)
	}
}

// TestProcessor_AlreadyDeliveredGuard verifies a delivered record never
// reaches the dispatcher.
func TestProcessor_AlreadyDeliveredGuard(t *testing.T) {
	repo := repository.NewMockMarketEventRepository()
	e := saleEvent(2)
	e.Delivered = true
	repo.Put(e)
	d := &stubDispatcher{settings: enabled()}
	rec := &outcomeRecorder{}

	newProcessor(repo, d, rec).Handle(context.Background(), domain.CategorySale, 2)

	if d.callCount() != 0 {
		t.Fatal("dispatcher must not be invoked for a delivered record")
	}
	if rec.last(t) != "dropped" {
		t.Fatalf("expected dropped outcome, got %s", rec.last(t))
	}
}

func TestProcessor_NotFoundDropped(t *testing.T) {
	repo := repository.NewMockMarketEventRepository()
	d := &stubDispatcher{settings: enabled()}
	rec := &outcomeRecorder{}

	newProcessor(repo, d, rec).Handle(context.Background(), domain.CategorySale, 99)

	if d.callCount() != 0 {
		t.Fatal("dispatcher must not be invoked for a missing record")
	}
	if rec.last(t) != "dropped" {
		t.Fatalf("expected dropped outcome, got %s", rec.last(t))
	}
}

func TestProcessor_DisabledCategorySkips(t *testing.T) {
	repo := repository.NewMockMarketEventRepository()
	repo.Put(saleEvent(3))
	d := &stubDispatcher{settings: dispatch.Settings{Enabled: false}}
	rec := &outcomeRecorder{}

	newProcessor(repo, d, rec).Handle(context.Background(), domain.CategorySale, 3)

	if d.callCount() != 0 {
		t.Fatal("dispatcher must not be invoked when the category is disabled")
	}
	if rec.last(t) != "skipped" {
		t.Fatalf("expected skipped outcome, got %s", rec.last(t))
	}
}

func TestProcessor_StaleRecordSkips(t *testing.T) {
	repo := repository.NewMockMarketEventRepository()
	e := saleEvent(4)
	e.CreatedAt = time.Now().Add(-3 * time.Hour)
	repo.Put(e)
	d := &stubDispatcher{settings: dispatch.Settings{Enabled: true, MaxRecordAge: time.Hour}}
	rec := &outcomeRecorder{}

	newProcessor(repo, d, rec).Handle(context.Background(), domain.CategorySale, 4)

	if d.callCount() != 0 {
		t.Fatal("dispatcher must not be invoked for a stale record")
	}
	if rec.last(t) != "skipped" {
		t.Fatalf("expected skipped outcome, got %s", rec.last(t))
	}
}

// TestProcessor_FailureDroppedWithoutRetry verifies a failed dispatch is
// invoked exactly once and the record stays undelivered for the next
// startup recovery pass.
func TestProcessor_FailureDroppedWithoutRetry(t *testing.T) {
	repo := repository.NewMockMarketEventRepository()
	repo.Put(saleEvent(5))
	d := &stubDispatcher{settings: enabled(), err: errors.New("poster unreachable")}
	rec := &outcomeRecorder{}

	newProcessor(repo, d, rec).Handle(context.Background(), domain.CategorySale, 5)

	if d.callCount() != 1 {
		t.Fatalf("expected exactly 1 dispatch attempt, got %d", d.callCount())
	}
	if rec.last(t) != "failed" {
		t.Fatalf("expected failed outcome, got %s", rec.last(t))
	}
	e, _ := repo.GetByID(context.Background(), 5)
	if e.Delivered {
		t.Fatal("failed dispatch must leave the record undelivered")
	}
}

func TestProcessor_SkippedResultLogsReason(t *testing.T) {
	repo := repository.NewMockMarketEventRepository()
	repo.Put(saleEvent(6))
	d := &stubDispatcher{
		settings: enabled(),
		result:   dispatch.Result{Outcome: dispatch.OutcomeSkipped, Reason: "below price floor"},
	}
	rec := &outcomeRecorder{}

	newProcessor(repo, d, rec).Handle(context.Background(), domain.CategorySale, 6)

	if rec.last(t) != "skipped" {
		t.Fatalf("expected skipped outcome, got %s", rec.last(t))
	}
	e, _ := repo.GetByID(context.Background(), 6)
	if e.Delivered {
		t.Fatal("skipped record must stay undelivered")
	}
}

func TestProcessor_NoDispatcherRegistered(t *testing.T) {
	repo := repository.NewMockMarketEventRepository()
	e := saleEvent(7)
	e.Category = domain.CategoryBid
	repo.Put(e)
	d := &stubDispatcher{settings: enabled()}
	rec := &outcomeRecorder{}

	// Registry only knows about sales; a bid id is dropped.
	newProcessor(repo, d, rec).Handle(context.Background(), domain.CategoryBid, 7)

	if d.callCount() != 0 {
		t.Fatal("sale dispatcher must not receive bid records")
	}
	if rec.last(t) != "dropped" {
		t.Fatalf("expected dropped outcome, got %s", rec.last(t))
	}
}
