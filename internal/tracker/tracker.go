package tracker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/fasthttp/websocket"
	"go.uber.org/zap"

	"github.com/morphreel/api/internal/model"
	"github.com/morphreel/api/internal/progress"
)

// Config controls the connection lifecycle for one tracked job.
type Config struct {
	// HeartbeatInterval is how often a ping frame is written to keep
	// intermediaries from idling out the connection. Pings carry no job
	// semantics.
	HeartbeatInterval time.Duration

	// ReconnectDelay is the fixed wait before each reconnection attempt.
	ReconnectDelay time.Duration

	// MaxReconnectAttempts bounds consecutive failed attempts. The
	// counter resets to zero on every successful connect; exhausting it
	// leaves the connection in ConnError for the remainder of the job.
	MaxReconnectAttempts int

	// AutoReconnect disables the reconnection policy entirely when
	// false: any abnormal closure moves straight to ConnError and retry
	// becomes an application-layer decision.
	AutoReconnect bool

	// DialTimeout bounds the WebSocket handshake.
	DialTimeout time.Duration
}

// DefaultConfig returns the production connection policy.
func DefaultConfig() Config {
	return Config{
		HeartbeatInterval:    30 * time.Second,
		ReconnectDelay:       2 * time.Second,
		MaxReconnectAttempts: 5,
		AutoReconnect:        true,
		DialTimeout:          10 * time.Second,
	}
}

// Conn is the transport surface the tracker needs from a WebSocket
// connection. *websocket.Conn satisfies it; tests substitute fakes.
type Conn interface {
	ReadMessage() (int, []byte, error)
	WriteMessage(messageType int, data []byte) error
	Close() error
}

// DialFunc opens a fresh transport to the channel address.
type DialFunc func(ctx context.Context, url string) (Conn, error)

// CancelRequester is the out-of-band cancellation collaborator,
// independent of the channel-based cancel frame.
type CancelRequester interface {
	CancelRender(ctx context.Context, jobID string) error
}

// ErrCancelRequest wraps failures of the out-of-band cancel call so the
// caller can tell them apart from channel problems.
var ErrCancelRequest = errors.New("out-of-band cancel request failed")

// Tracker owns exactly one logical progress-channel connection for one
// job. Tracking a different job means constructing a new Tracker; the
// old one is closed first so no stale callback can touch the new job's
// state.
type Tracker struct {
	jobID  string
	url    string
	cfg    Config
	store  *progress.Store
	dial   DialFunc
	cancel CancelRequester
	logger *zap.Logger

	mu      sync.Mutex
	conn    Conn
	started bool
	closed  bool
	closeCh chan struct{}
	doneCh  chan struct{}

	// writeMu serializes frame writes between the heartbeat loop and
	// the cancellation coordinator.
	writeMu sync.Mutex
}

// Option customizes a Tracker.
type Option func(*Tracker)

// WithDialFunc replaces the transport dialer.
func WithDialFunc(dial DialFunc) Option {
	return func(t *Tracker) { t.dial = dial }
}

// WithCancelRequester sets the out-of-band cancel collaborator.
func WithCancelRequester(c CancelRequester) Option {
	return func(t *Tracker) { t.cancel = c }
}

// WithLogger sets the structured logger.
func WithLogger(l *zap.Logger) Option {
	return func(t *Tracker) { t.logger = l }
}

// New creates a tracker for a job's progress channel. The channel URL
// is immutable for the tracker's lifetime.
func New(jobID, channelURL string, cfg Config, store *progress.Store, opts ...Option) *Tracker {
	t := &Tracker{
		jobID:   jobID,
		url:     channelURL,
		cfg:     cfg,
		store:   store,
		logger:  zap.NewNop(),
		closeCh: make(chan struct{}),
		doneCh:  make(chan struct{}),
	}
	t.dial = defaultDial(cfg.DialTimeout)
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Store exposes the progress store for the application layer.
func (t *Tracker) Store() *progress.Store { return t.store }

// Done is closed once the tracker's event loop has fully stopped.
func (t *Tracker) Done() <-chan struct{} { return t.doneCh }

// Start begins tracking. Calling Start on a tracker that is already
// live is a no-op; calling it after Close returns an error.
func (t *Tracker) Start(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return errors.New("tracker is closed")
	}
	if t.started {
		return nil
	}
	t.started = true
	go t.run(ctx)
	return nil
}

// Close performs a clean shutdown: reconnection stops, the heartbeat
// stops, the transport closes and the connection state settles on
// disconnected. No reconnection is attempted after a clean close.
func (t *Tracker) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	close(t.closeCh)
	conn := t.conn
	started := t.started
	t.mu.Unlock()

	if conn != nil {
		conn.Close()
	}
	if started {
		<-t.doneCh
	} else {
		t.store.SetConnState(progress.ConnDisconnected)
		close(t.doneCh)
	}
	return nil
}

// run is the single event loop that owns every write to the store's
// connection state and every fold of an inbound message.
func (t *Tracker) run(ctx context.Context) {
	defer close(t.doneCh)

	bo := backoff.WithMaxRetries(
		backoff.NewConstantBackOff(t.cfg.ReconnectDelay),
		uint64(t.cfg.MaxReconnectAttempts),
	)
	bo.Reset()

	first := true
	for {
		if !first {
			if t.store.Snapshot().Job.State.Terminal() {
				t.store.SetConnState(progress.ConnDisconnected)
				return
			}
			if !t.cfg.AutoReconnect {
				t.store.SetConnState(progress.ConnError)
				return
			}
			delay := bo.NextBackOff()
			if delay == backoff.Stop {
				t.logger.Warn("reconnect budget exhausted",
					zap.String("job_id", t.jobID),
					zap.Int("max_attempts", t.cfg.MaxReconnectAttempts))
				t.store.SetConnState(progress.ConnError)
				return
			}
			select {
			case <-time.After(delay):
			case <-t.closeCh:
				t.store.SetConnState(progress.ConnDisconnected)
				return
			case <-ctx.Done():
				t.store.SetConnState(progress.ConnDisconnected)
				return
			}
		}
		first = false

		t.store.SetConnState(progress.ConnConnecting)
		conn, err := t.dial(ctx, t.url)
		if err != nil {
			if t.isClosing(ctx) {
				t.store.SetConnState(progress.ConnDisconnected)
				return
			}
			t.logger.Warn("dial failed",
				zap.String("job_id", t.jobID), zap.Error(err))
			continue
		}

		t.mu.Lock()
		if t.closed {
			t.mu.Unlock()
			conn.Close()
			t.store.SetConnState(progress.ConnDisconnected)
			return
		}
		t.conn = conn
		t.mu.Unlock()

		t.store.SetConnState(progress.ConnConnected)
		bo.Reset()
		t.logger.Info("channel connected", zap.String("job_id", t.jobID))

		terminal := t.readLoop(ctx, conn)

		t.mu.Lock()
		t.conn = nil
		t.mu.Unlock()
		conn.Close()

		if terminal || t.isClosing(ctx) {
			// A terminal job has nothing further to stream; the close
			// that follows is expected, not an error.
			t.store.SetConnState(progress.ConnDisconnected)
			return
		}
	}
}

// readLoop pumps inbound frames until the connection drops. It returns
// true once the job reaches a terminal state.
func (t *Tracker) readLoop(ctx context.Context, conn Conn) bool {
	stopHeartbeat := t.startHeartbeat(conn)
	defer stopHeartbeat()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if !t.isClosing(ctx) && websocket.IsUnexpectedCloseError(err,
				websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				t.logger.Warn("channel closed abnormally",
					zap.String("job_id", t.jobID), zap.Error(err))
			}
			return false
		}

		msg, derr := progress.Decode(data)
		if derr != nil {
			// Malformed frames are dropped; they never terminate the
			// channel or alter connection state.
			t.logger.Warn("dropping malformed frame",
				zap.String("job_id", t.jobID), zap.Error(derr))
			continue
		}
		if msg.JobID != "" && msg.JobID != t.jobID {
			t.logger.Warn("dropping frame for unexpected job",
				zap.String("job_id", t.jobID),
				zap.String("frame_job_id", msg.JobID))
			continue
		}

		state := t.store.Apply(msg)
		if state.State.Terminal() {
			t.logger.Info("job reached terminal state",
				zap.String("job_id", t.jobID),
				zap.String("state", string(state.State)))
			return true
		}
	}
}

// startHeartbeat writes a ping frame on a fixed interval until the
// returned stop function is called.
func (t *Tracker) startHeartbeat(conn Conn) func() {
	if t.cfg.HeartbeatInterval <= 0 {
		return func() {}
	}
	stop := make(chan struct{})
	go func() {
		ticker := time.NewTicker(t.cfg.HeartbeatInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				t.writeMu.Lock()
				err := conn.WriteMessage(websocket.TextMessage,
					[]byte(fmt.Sprintf(`{"type":%q}`, model.WSTypePing)))
				t.writeMu.Unlock()
				if err != nil {
					return
				}
			case <-stop:
				return
			case <-t.closeCh:
				return
			}
		}
	}()
	return func() { close(stop) }
}

func (t *Tracker) isClosing(ctx context.Context) bool {
	select {
	case <-t.closeCh:
		return true
	case <-ctx.Done():
		return true
	default:
		return false
	}
}

func defaultDial(timeout time.Duration) DialFunc {
	return func(ctx context.Context, url string) (Conn, error) {
		dialer := &websocket.Dialer{HandshakeTimeout: timeout}
		conn, _, err := dialer.DialContext(ctx, url, nil)
		if err != nil {
			return nil, err
		}
		return conn, nil
	}
}
