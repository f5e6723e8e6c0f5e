package listener

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// HealthChecker proactively detects a silently-dead notification connection.
// Every interval it checks the listener state: if not listening it forces an
// immediate reconnect (no backoff wait); if listening it issues a trivial
// round trip and routes a failure into the reconnection policy.
//
// Checks run inside the ticker loop, so they can never overlap.
type HealthChecker struct {
	lis      *Listener
	interval time.Duration
	logger   *zap.Logger
}

func NewHealthChecker(lis *Listener, interval time.Duration, logger *zap.Logger) *HealthChecker {
	return &HealthChecker{lis: lis, interval: interval, logger: logger}
}

// Run ticks every interval until ctx is cancelled.
func (h *HealthChecker) Run(ctx context.Context) {
	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	h.logger.Info("health checker started", zap.Duration("interval", h.interval))

	for {
		select {
		case <-ctx.Done():
			h.logger.Info("health checker stopping")
			return
		case <-ticker.C:
			h.check(ctx)
		}
	}
}

func (h *HealthChecker) check(ctx context.Context) {
	state := h.lis.State()
	if state != StateListening {
		h.logger.Warn("listener not listening, forcing reconnect",
			zap.String("state", state.String()))
		h.lis.Reconnect()
		return
	}

	if err := h.lis.Ping(ctx); err != nil {
		if ctx.Err() != nil {
			return
		}
		h.lis.fail(err)
	}
}
