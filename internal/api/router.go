package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/ethereumidentitykit/ens-market-bot-sub001/internal/api/handler"
	apimw "github.com/ethereumidentitykit/ens-market-bot-sub001/internal/api/middleware"
	"github.com/ethereumidentitykit/ens-market-bot-sub001/internal/listener"
	"github.com/ethereumidentitykit/ens-market-bot-sub001/internal/queue"
)

// NewRouter wires the chi router, attaches all middleware, and registers
// every route. The dispatcher exposes only an operational surface: liveness,
// Prometheus scrape, and the status query.
func NewRouter(
	lis *listener.Listener,
	queues *queue.Manager,
	replies *queue.ReplyQueue,
	reg prometheus.Gatherer,
	statusRateLimit int,
	logger *zap.Logger,
) http.Handler {
	r := chi.NewRouter()

	r.Use(chimw.Recoverer)
	r.Use(chimw.RealIP)
	r.Use(apimw.CorrelationID)
	r.Use(apimw.RequestLogger(logger))
	r.Use(apimw.RateLimit(statusRateLimit))

	hh := handler.NewHealthHandler(lis)
	sh := handler.NewStatusHandler(lis, queues, replies)

	r.Get("/health", hh.Health)
	r.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/status", sh.Status)
	})

	return r
}
