package handler

import (
	"net/http"

	"github.com/ethereumidentitykit/ens-market-bot-sub001/internal/listener"
)

// HealthHandler serves the liveness probe endpoint. The process is healthy
// as long as it is running; a degraded notification connection is reported
// (for alerting) but does not fail the probe, because a restart loop would
// not fix an unreachable store.
type HealthHandler struct {
	lis *listener.Listener
}

func NewHealthHandler(lis *listener.Listener) *HealthHandler {
	return &HealthHandler{lis: lis}
}

// Health handles GET /health
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status":   "ok",
		"listener": h.lis.State().String(),
	})
}
