package poster

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/ethereumidentitykit/ens-market-bot-sub001/internal/dispatch"
	"github.com/ethereumidentitykit/ens-market-bot-sub001/internal/domain"
)

// postRequest is the JSON body sent to the formatting/posting service.
type postRequest struct {
	Category string              `json:"category"`
	Record   *domain.MarketEvent `json:"record"`
}

// postResponse maps the posting service's 200 OK response body.
// Status is "posted" or "skipped".
type postResponse struct {
	Status      string `json:"status"`
	ExternalRef string `json:"externalRef,omitempty"`
	Reason      string `json:"reason,omitempty"`
}

// WebhookPoster delivers records to an external formatting/posting service
// over HTTP. It is the default dispatch.Dispatcher implementation wired by
// cmd/server; library users may inject their own.
type WebhookPoster struct {
	baseURL    string
	settings   dispatch.Settings
	httpClient *http.Client
}

func NewWebhookPoster(baseURL string, timeout time.Duration, settings dispatch.Settings) *WebhookPoster {
	return &WebhookPoster{
		baseURL:  baseURL,
		settings: settings,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// Settings returns the immutable automation snapshot for this category.
func (p *WebhookPoster) Settings() dispatch.Settings { return p.settings }

// ProcessRecord posts the record to the configured endpoint and expects a
// 200 OK with a JSON body reporting posted or skipped.
func (p *WebhookPoster) ProcessRecord(ctx context.Context, e *domain.MarketEvent) (dispatch.Result, error) {
	body, err := json.Marshal(postRequest{
		Category: string(e.Category),
		Record:   e,
	})
	if err != nil {
		return dispatch.Result{}, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL, bytes.NewReader(body))
	if err != nil {
		return dispatch.Result{}, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return dispatch.Result{}, fmt.Errorf("post record: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return dispatch.Result{}, fmt.Errorf("unexpected poster status: %d", resp.StatusCode)
	}

	var pr postResponse
	if err := json.NewDecoder(resp.Body).Decode(&pr); err != nil {
		return dispatch.Result{}, fmt.Errorf("decode response: %w", err)
	}

	switch pr.Status {
	case "posted":
		return dispatch.Result{Outcome: dispatch.OutcomePosted, ExternalRef: pr.ExternalRef}, nil
	case "skipped":
		return dispatch.Result{Outcome: dispatch.OutcomeSkipped, Reason: pr.Reason}, nil
	default:
		return dispatch.Result{}, fmt.Errorf("unknown poster outcome %q", pr.Status)
	}
}

// compile-time check that WebhookPoster implements Dispatcher
var _ dispatch.Dispatcher = (*WebhookPoster)(nil)

// replyRequest is the JSON body sent to the reply-generation endpoint.
type replyRequest struct {
	Category string `json:"category"`
	RecordID int64  `json:"recordId"`
}

// WebhookReplier asks the posting service to generate and publish a
// follow-up reply for an already-posted record.
type WebhookReplier struct {
	replyURL   string
	httpClient *http.Client
}

func NewWebhookReplier(replyURL string, timeout time.Duration) *WebhookReplier {
	return &WebhookReplier{
		replyURL: replyURL,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

func (r *WebhookReplier) GenerateAndDispatch(ctx context.Context, c domain.Category, recordID int64) error {
	body, err := json.Marshal(replyRequest{Category: string(c), RecordID: recordID})
	if err != nil {
		return fmt.Errorf("marshal reply request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.replyURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create reply request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("post reply: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusAccepted {
		return fmt.Errorf("unexpected replier status: %d", resp.StatusCode)
	}
	return nil
}

var _ dispatch.Replier = (*WebhookReplier)(nil)
