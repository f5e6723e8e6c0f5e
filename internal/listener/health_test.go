package listener_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/ethereumidentitykit/ens-market-bot-sub001/internal/domain"
	"github.com/ethereumidentitykit/ens-market-bot-sub001/internal/listener"
)

// TestHealthChecker_PingFailureTriggersReconnect verifies a failed probe on
// a seemingly-live connection flips it to disconnected and the reconnection
// policy brings up a fresh connection.
func TestHealthChecker_PingFailureTriggersReconnect(t *testing.T) {
	dead := newFakeConn()
	dead.pingErr = errors.New("connection gone stale")
	healthy := newFakeConn()

	script := conns(ok(dead), ok(healthy))
	l := listener.New(script.connect, func(domain.Signal) {},
		fastOpts(), zap.NewNop(), listener.Hooks{})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	l.Start(ctx)
	defer l.Stop()
	<-l.Ready()

	h := listener.NewHealthChecker(l, 5*time.Millisecond, zap.NewNop())
	go h.Run(ctx)

	waitFor(t, func() bool { return script.callCount() == 2 },
		"probe failure never triggered a reconnect")
	waitFor(t, func() bool { return l.State() == listener.StateListening },
		"listener never recovered after probe failure")

	if st := l.Status(); st.ReconnectAttempts != 0 {
		t.Fatalf("expected attempt counter reset after recovery, got %d",
			st.ReconnectAttempts)
	}
}
