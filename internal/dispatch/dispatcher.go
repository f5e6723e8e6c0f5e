package dispatch

import (
	"context"
	"time"

	"github.com/ethereumidentitykit/ens-market-bot-sub001/internal/domain"
)

// Outcome classifies the result of one dispatch attempt.
type Outcome string

const (
	// OutcomePosted means the record was formatted and published.
	OutcomePosted Outcome = "posted"
	// OutcomeSkipped means a business rule filtered the record out.
	OutcomeSkipped Outcome = "skipped"
)

// Result is the report of a completed (non-failed) dispatch attempt.
// ExternalRef is set for OutcomePosted, Reason for OutcomeSkipped.
type Result struct {
	Outcome     Outcome
	ExternalRef string
	Reason      string
}

// Settings is the immutable per-cycle snapshot of a category's automation
// configuration. Queue processors read one snapshot per item rather than
// shared mutable state, keeping concurrent category processing race-free.
type Settings struct {
	// Enabled gates the category's automated posting entirely.
	Enabled bool
	// MaxRecordAge drops records older than this at dispatch time.
	// Zero disables the age check.
	MaxRecordAge time.Duration
}

// Dispatcher turns a loaded record into a concrete outbound action
// (format + publish) and reports the outcome. Implementations perform
// network I/O and must honour ctx cancellation.
type Dispatcher interface {
	ProcessRecord(ctx context.Context, e *domain.MarketEvent) (Result, error)
	Settings() Settings
}

// Replier is the optional derived-action collaborator driven by the
// rate-limited reply queue: given a published record, it generates and
// dispatches a follow-up action.
type Replier interface {
	GenerateAndDispatch(ctx context.Context, c domain.Category, recordID int64) error
}

// Registry maps primary categories to their dispatchers.
type Registry struct {
	dispatchers map[domain.Category]Dispatcher
}

func NewRegistry() *Registry {
	return &Registry{dispatchers: make(map[domain.Category]Dispatcher)}
}

func (r *Registry) Register(c domain.Category, d Dispatcher) {
	r.dispatchers[c] = d
}

// Lookup returns the dispatcher for c, or domain.ErrNoDispatcher.
func (r *Registry) Lookup(c domain.Category) (Dispatcher, error) {
	d, ok := r.dispatchers[c]
	if !ok {
		return nil, domain.ErrNoDispatcher
	}
	return d, nil
}
