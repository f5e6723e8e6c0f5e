package handler

import (
	"net/http"

	"github.com/ethereumidentitykit/ens-market-bot-sub001/internal/domain"
	"github.com/ethereumidentitykit/ens-market-bot-sub001/internal/listener"
	"github.com/ethereumidentitykit/ens-market-bot-sub001/internal/queue"
)

// StatusHandler serves the dispatcher status query: connection liveness,
// per-category queue depths and processor flags, the reply queue, and the
// reconnect attempt count. Intended for the operational dashboard.
type StatusHandler struct {
	lis     *listener.Listener
	queues  *queue.Manager
	replies *queue.ReplyQueue // nil when the reply workflow is disabled
}

func NewStatusHandler(lis *listener.Listener, queues *queue.Manager, replies *queue.ReplyQueue) *StatusHandler {
	return &StatusHandler{lis: lis, queues: queues, replies: replies}
}

type statusResponse struct {
	Listener   listener.Status                     `json:"listener"`
	Queues     map[domain.Category]queue.QueueStat `json:"queues"`
	ReplyQueue *queue.QueueStat                    `json:"reply_queue,omitempty"`
}

// Status handles GET /api/v1/status
func (h *StatusHandler) Status(w http.ResponseWriter, r *http.Request) {
	resp := statusResponse{
		Listener: h.lis.Status(),
		Queues:   h.queues.Stats(),
	}
	if h.replies != nil {
		stat := h.replies.Stat()
		resp.ReplyQueue = &stat
	}
	respondJSON(w, http.StatusOK, resp)
}
