package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/ethereumidentitykit/ens-market-bot-sub001/internal/api"
	"github.com/ethereumidentitykit/ens-market-bot-sub001/internal/config"
	"github.com/ethereumidentitykit/ens-market-bot-sub001/internal/db"
	"github.com/ethereumidentitykit/ens-market-bot-sub001/internal/dispatch"
	"github.com/ethereumidentitykit/ens-market-bot-sub001/internal/domain"
	"github.com/ethereumidentitykit/ens-market-bot-sub001/internal/listener"
	"github.com/ethereumidentitykit/ens-market-bot-sub001/internal/metrics"
	"github.com/ethereumidentitykit/ens-market-bot-sub001/internal/poster"
	"github.com/ethereumidentitykit/ens-market-bot-sub001/internal/queue"
	"github.com/ethereumidentitykit/ens-market-bot-sub001/internal/recovery"
	"github.com/ethereumidentitykit/ens-market-bot-sub001/internal/repository"
	"github.com/ethereumidentitykit/ens-market-bot-sub001/internal/worker"
)

func main() {
	logger, _ := zap.NewProduction()
	defer logger.Sync() //nolint:errcheck

	// ---- configuration ----
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("failed to load config", zap.Error(err))
	}

	// ---- database ----
	ctx := context.Background()
	pool, err := db.Connect(ctx, cfg)
	if err != nil {
		logger.Fatal("failed to connect to database", zap.Error(err))
	}
	defer pool.Close()

	if err := db.Migrate(cfg.DatabaseURL); err != nil {
		logger.Fatal("failed to run migrations", zap.Error(err))
	}
	logger.Info("database migrations applied")

	// ---- core dependencies ----
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	repo := repository.NewPgMarketEventRepository(pool)

	registry := dispatch.NewRegistry()
	for c, enabled := range map[domain.Category]bool{
		domain.CategorySale:         cfg.PostSales,
		domain.CategoryRegistration: cfg.PostRegistrations,
		domain.CategoryBid:          cfg.PostBids,
	} {
		registry.Register(c, poster.NewWebhookPoster(
			cfg.PosterBaseURL, cfg.PosterTimeout,
			dispatch.Settings{Enabled: enabled, MaxRecordAge: cfg.MaxRecordAge},
		))
	}

	processor := worker.NewProcessor(
		repo, registry, cfg.DispatchTimeout,
		logger.Named("processor"), m.WorkerHooks(),
	)

	// Context for all background work; cancelled on shutdown signal.
	workerCtx, cancelWorkers := context.WithCancel(ctx)
	defer cancelWorkers()

	queues := queue.NewManager(
		processor.Handle, cfg.QueueMaxDepth,
		logger.Named("queues"), m.QueueHooks(),
	)
	queues.Start(workerCtx)

	// The reply workflow is optional: no reply URL, no secondary queue,
	// and derived-category signals are discarded.
	var replies *queue.ReplyQueue
	if cfg.PosterReplyURL != "" {
		replier := poster.NewWebhookReplier(cfg.PosterReplyURL, cfg.PosterTimeout)
		replies = queue.NewReplyQueue(
			replier, cfg.ReplyMinSpacing, cfg.QueueMaxDepth,
			queue.RealClock(), logger.Named("replies"),
		)
		replies.Start(workerCtx)
	}

	route := func(sig domain.Signal) {
		if sig.Category.IsDerived() {
			if replies == nil {
				return
			}
			if err := replies.Enqueue(sig.Category, sig.RecordID); err != nil {
				logger.Warn("reply signal dropped",
					zap.String("category", string(sig.Category)),
					zap.Int64("record_id", sig.RecordID),
					zap.Error(err))
			}
			return
		}
		if err := queues.Enqueue(sig.Category, sig.RecordID); err != nil {
			logger.Warn("signal dropped",
				zap.String("category", string(sig.Category)),
				zap.Int64("record_id", sig.RecordID),
				zap.Error(err))
		}
	}

	// ---- notification listener ----
	lis := listener.New(
		listener.PgConnect(cfg.DatabaseURL),
		route,
		listener.Options{
			BaseDelay:   cfg.ReconnectBaseDelay,
			MaxDelay:    cfg.ReconnectMaxDelay,
			MaxAttempts: cfg.MaxReconnectAttempts,
		},
		logger.Named("listener"),
		m.ListenerHooks(),
	)
	lis.Start(workerCtx)

	health := listener.NewHealthChecker(lis, cfg.HealthCheckInterval, logger.Named("health"))
	go health.Run(workerCtx)

	// ---- startup recovery ----
	scanner := recovery.NewScanner(
		repo, queues.Enqueue,
		cfg.RecoveryMaxAge, cfg.RecoveryBatchSize,
		logger.Named("recovery"), m.RecoveryHooks(),
	)
	go func() {
		select {
		case <-lis.Ready():
			scanner.Run(workerCtx)
		case <-workerCtx.Done():
		}
	}()

	// ---- HTTP server ----
	router := api.NewRouter(lis, queues, replies, reg, cfg.StatusRateLimit, logger)
	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	go func() {
		logger.Info("server starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server error", zap.Error(err))
		}
	}()

	// ---- graceful shutdown ----
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutdown signal received")

	// 1. Stop accepting new HTTP requests.
	shutdownCtx, shutdownCancel := context.WithTimeout(ctx, cfg.ShutdownTimeout)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown error", zap.Error(err))
	}

	// 2. Close the notification connection and suppress reconnection.
	lis.Stop()

	// 3. Signal processors to stop after their current item, then wait.
	cancelWorkers()
	queues.Wait()
	if replies != nil {
		replies.Wait()
	}

	logger.Info("server stopped cleanly")
}
