package listener

import (
	"context"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"

	"github.com/ethereumidentitykit/ens-market-bot-sub001/internal/domain"
)

// State is the connection state of the listener.
type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateListening
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateListening:
		return "listening"
	default:
		return "disconnected"
	}
}

// Conn is the subset of *pgx.Conn the listener needs. Tests substitute a
// scripted fake; production uses PgConnect.
type Conn interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	WaitForNotification(ctx context.Context) (*pgconn.Notification, error)
	Ping(ctx context.Context) error
	Close(ctx context.Context) error
}

// ConnectFunc establishes one dedicated notification connection.
type ConnectFunc func(ctx context.Context) (Conn, error)

// PgConnect returns a ConnectFunc that dials a single pgx connection.
// The listener connection is deliberately not taken from the pool: LISTEN
// state is per-connection and must survive for the lifetime of the client.
func PgConnect(databaseURL string) ConnectFunc {
	return func(ctx context.Context) (Conn, error) {
		conn, err := pgx.Connect(ctx, databaseURL)
		if err != nil {
			return nil, err
		}
		return conn, nil
	}
}

// Hooks carries the metric callbacks injected by main.
// All fields are optional (nil = no-op).
type Hooks struct {
	OnSignal    func(c domain.Category)
	OnMalformed func()
	OnState     func(s State)
	OnReconnect func(attempt int)
}

func (h *Hooks) fillDefaults() {
	if h.OnSignal == nil {
		h.OnSignal = func(domain.Category) {}
	}
	if h.OnMalformed == nil {
		h.OnMalformed = func() {}
	}
	if h.OnState == nil {
		h.OnState = func(State) {}
	}
	if h.OnReconnect == nil {
		h.OnReconnect = func(int) {}
	}
}

// Options groups the reconnection policy knobs.
type Options struct {
	// BaseDelay is the first reconnect delay; doubled per attempt.
	BaseDelay time.Duration
	// MaxDelay caps the exponential growth.
	MaxDelay time.Duration
	// MaxAttempts bounds consecutive reconnect attempts. Once exceeded the
	// listener permanently gives up until the process is restarted.
	MaxAttempts int
	// Categories overrides the subscribed channels (defaults to all).
	Categories []domain.Category
}

// Listener owns the single notification connection to the store. It LISTENs
// on every category channel, parses incoming payloads into Signals, and
// feeds them to the sink. Any disconnect or error goes through the
// reconnection policy: exponential backoff, at most one pending timer, and a
// terminal give-up once MaxAttempts is exhausted.
type Listener struct {
	connect    ConnectFunc
	sink       func(domain.Signal)
	categories []domain.Category

	baseDelay   time.Duration
	maxDelay    time.Duration
	maxAttempts int

	logger *zap.Logger
	hooks  Hooks

	ready     chan struct{}
	readyOnce sync.Once

	mu         sync.Mutex
	ctx        context.Context
	state      State
	attempts   int
	gaveUp     bool
	timer      *time.Timer
	conn       Conn
	waitCancel context.CancelFunc
	closed     bool
}

// Status is the listener's contribution to the dispatcher status query.
type Status struct {
	State             string `json:"state"`
	ReconnectAttempts int    `json:"reconnect_attempts"`
	GaveUp            bool   `json:"gave_up"`
}

func New(connect ConnectFunc, sink func(domain.Signal), opts Options, logger *zap.Logger, hooks Hooks) *Listener {
	hooks.fillDefaults()
	categories := opts.Categories
	if len(categories) == 0 {
		categories = domain.AllCategories()
	}
	return &Listener{
		connect:     connect,
		sink:        sink,
		categories:  categories,
		baseDelay:   opts.BaseDelay,
		maxDelay:    opts.MaxDelay,
		maxAttempts: opts.MaxAttempts,
		logger:      logger,
		hooks:       hooks,
		ready:       make(chan struct{}),
	}
}

// Backoff computes the reconnect delay for the given 1-based attempt:
// min(base * 2^(attempt-1), max). Growth saturates at max even for attempt
// counts large enough to overflow a naive shift.
func Backoff(base, max time.Duration, attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := base
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= max || d < base {
			return max
		}
	}
	if d > max {
		return max
	}
	return d
}

// Start launches the first connection attempt in the background. The given
// ctx governs every connection held by the listener until Stop.
func (l *Listener) Start(ctx context.Context) {
	l.mu.Lock()
	l.ctx = ctx
	l.mu.Unlock()
	go l.establish()
}

// Ready is closed the first time the listener reaches StateListening.
// The startup recovery scanner waits on it before seeding the queues.
func (l *Listener) Ready() <-chan struct{} { return l.ready }

// State returns the current connection state.
func (l *Listener) State() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

// Status snapshots liveness for the status query.
func (l *Listener) Status() Status {
	l.mu.Lock()
	defer l.mu.Unlock()
	return Status{
		State:             l.state.String(),
		ReconnectAttempts: l.attempts,
		GaveUp:            l.gaveUp,
	}
}

// Ping issues a trivial round trip on the notification connection.
func (l *Listener) Ping(ctx context.Context) error {
	l.mu.Lock()
	conn := l.conn
	l.mu.Unlock()
	if conn == nil {
		return domain.ErrShuttingDown
	}
	return conn.Ping(ctx)
}

// Reconnect immediately attempts to re-establish the connection, bypassing
// backoff. Used by the health checker when it finds the listener not
// listening. No-op while connected, while a reconnect timer is already
// pending, or after the listener has permanently given up.
func (l *Listener) Reconnect() {
	l.mu.Lock()
	if l.closed || l.gaveUp || l.state != StateDisconnected || l.timer != nil {
		l.mu.Unlock()
		return
	}
	l.mu.Unlock()
	l.establish()
}

// Stop closes the connection and suppresses all further reconnection.
func (l *Listener) Stop() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return
	}
	l.closed = true
	if l.timer != nil {
		l.timer.Stop()
		l.timer = nil
	}
	l.teardownLocked()
	l.setStateLocked(StateDisconnected)
	l.logger.Info("listener stopped")
}

// establish runs one connection attempt: dial, LISTEN on every channel,
// then hand off to the wait loop. Any error routes into the reconnection
// policy via disconnected.
func (l *Listener) establish() {
	l.mu.Lock()
	if l.closed || l.state != StateDisconnected {
		l.mu.Unlock()
		return
	}
	ctx := l.ctx
	l.setStateLocked(StateConnecting)
	l.mu.Unlock()

	conn, err := l.connect(ctx)
	if err != nil {
		l.logger.Warn("notification connect failed", zap.Error(err))
		l.disconnected()
		return
	}

	for _, c := range l.categories {
		if _, err := conn.Exec(ctx, "LISTEN "+pgx.Identifier{c.Channel()}.Sanitize()); err != nil {
			l.logger.Warn("LISTEN failed",
				zap.String("channel", c.Channel()), zap.Error(err))
			_ = conn.Close(ctx)
			l.disconnected()
			return
		}
	}

	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		_ = conn.Close(ctx)
		return
	}
	l.conn = conn
	l.attempts = 0
	l.gaveUp = false
	l.setStateLocked(StateListening)
	waitCtx, cancel := context.WithCancel(ctx)
	l.waitCancel = cancel
	l.mu.Unlock()

	l.logger.Info("listening for store notifications",
		zap.Int("channels", len(l.categories)))
	l.readyOnce.Do(func() { close(l.ready) })

	go l.waitLoop(waitCtx, conn)
}

// waitLoop blocks on the connection for notifications until an error or
// cancellation. Malformed payloads are logged and discarded; they never
// reach a queue and never tear the connection down.
func (l *Listener) waitLoop(ctx context.Context, conn Conn) {
	for {
		n, err := conn.WaitForNotification(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			l.logger.Warn("notification wait failed", zap.Error(err))
			l.disconnected()
			return
		}

		sig, err := domain.ParseSignal(n.Channel, n.Payload)
		if err != nil {
			l.logger.Warn("discarding signal",
				zap.String("channel", n.Channel),
				zap.String("payload", n.Payload),
				zap.Error(err))
			l.hooks.OnMalformed()
			continue
		}

		l.hooks.OnSignal(sig.Category)
		l.sink(sig)
	}
}

// disconnected is the single entry point of the reconnection policy.
// It tears the connection down and schedules exactly one reconnect attempt
// with exponential backoff; a disconnect arriving while a timer is already
// pending is a no-op. Once the attempt counter would exceed MaxAttempts the
// listener logs at the highest severity short of crashing the host process
// and stops recovering until external intervention.
func (l *Listener) disconnected() {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.teardownLocked()
	if l.closed || l.gaveUp || l.ctx.Err() != nil {
		return
	}
	l.setStateLocked(StateDisconnected)
	if l.timer != nil {
		return
	}

	l.attempts++
	if l.attempts > l.maxAttempts {
		l.attempts = l.maxAttempts
		l.gaveUp = true
		l.logger.Error("reconnect attempts exhausted, listener giving up",
			zap.Int("max_attempts", l.maxAttempts))
		return
	}

	delay := Backoff(l.baseDelay, l.maxDelay, l.attempts)
	l.hooks.OnReconnect(l.attempts)
	l.logger.Info("scheduling reconnect",
		zap.Int("attempt", l.attempts),
		zap.Duration("delay", delay))

	l.timer = time.AfterFunc(delay, func() {
		l.mu.Lock()
		l.timer = nil
		closed := l.closed
		l.mu.Unlock()
		if !closed {
			l.establish()
		}
	})
}

// fail routes a health-probe failure into the reconnection policy.
func (l *Listener) fail(err error) {
	l.logger.Warn("connection declared dead", zap.Error(err))
	l.disconnected()
}

func (l *Listener) teardownLocked() {
	if l.waitCancel != nil {
		l.waitCancel()
		l.waitCancel = nil
	}
	if l.conn != nil {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		_ = l.conn.Close(closeCtx)
		cancel()
		l.conn = nil
	}
}

func (l *Listener) setStateLocked(s State) {
	if l.state == s {
		return
	}
	l.state = s
	l.hooks.OnState(s)
}
