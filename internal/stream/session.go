package stream

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/lgipm/remanet-dash/internal/logging"
)

// ConnState tracks the upstream websocket lifecycle.
type ConnState int

const (
	StateDisconnected ConnState = iota
	StateConnecting
	StateOpen
	StateClosing
)

func (c ConnState) String() string {
	switch c {
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosing:
		return "closing"
	default:
		return "disconnected"
	}
}

const (
	defaultKeepaliveInterval = 30 * time.Second
	defaultHandshakeTimeout  = 10 * time.Second

	offlineError = "Network offline. Will reconnect when your internet connection is restored."
	offlineStart = "Network offline. Will connect when your internet connection is available."
)

// Config holds the session parameters. Zero values fall back to the
// production defaults.
type Config struct {
	// URL is the upstream websocket endpoint, e.g. ws://host:8000/ws.
	URL string

	// KeepaliveInterval is the period between typed ping control frames
	// while the connection is open. Default 30s.
	KeepaliveInterval time.Duration

	// HandshakeTimeout bounds the websocket dial. Default 10s.
	HandshakeTimeout time.Duration

	// BaseRetryDelay and MaxRetryDelay bound the reconnect backoff.
	// Defaults 1s and 30s.
	BaseRetryDelay time.Duration
	MaxRetryDelay  time.Duration

	Logger  logging.Logger
	Metrics *Metrics
}

func (c Config) withDefaults() Config {
	if c.KeepaliveInterval <= 0 {
		c.KeepaliveInterval = defaultKeepaliveInterval
	}
	if c.HandshakeTimeout <= 0 {
		c.HandshakeTimeout = defaultHandshakeTimeout
	}
	if c.Logger == nil {
		c.Logger = logging.Default()
	}
	return c
}

// Session owns the persistent stream to the telemetry source: the
// websocket transport, the keepalive and reconnect timers, and the
// derived state store. It is a single-instance object created by the
// composition root and passed by reference to everything that needs it;
// there is no package-level connection state.
//
// All event handlers (dial results, inbound frames, close events, timer
// fires, user commands) are serialized on one mutex, so no two handlers
// ever run concurrently and ordering between them is preserved.
type Session struct {
	cfg     Config
	log     logging.Logger
	store   *Store
	policy  *ReconnectPolicy
	metrics *Metrics

	mu     sync.Mutex
	state  ConnState
	gen    int
	conn   *websocket.Conn
	online bool
	closed bool

	keepaliveStop chan struct{}
	retryTimer    *time.Timer
	retryToken    int
}

// NewSession builds a session. It does not connect; call Start.
func NewSession(cfg Config) *Session {
	cfg = cfg.withDefaults()
	return &Session{
		cfg:     cfg,
		log:     cfg.Logger,
		store:   NewStore(cfg.Logger),
		policy:  NewReconnectPolicy(cfg.BaseRetryDelay, cfg.MaxRetryDelay),
		metrics: cfg.Metrics,
		online:  true,
	}
}

// Store exposes the derived state for read-only consumers.
func (s *Session) Store() *Store {
	return s.store
}

// Snapshot returns the current derived state.
func (s *Session) Snapshot() Snapshot {
	return s.store.Snapshot()
}

// Subscribe registers a listener for derived state changes.
func (s *Session) Subscribe() (<-chan Snapshot, func()) {
	return s.store.Subscribe()
}

// State reports the transport lifecycle state.
func (s *Session) State() ConnState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Attempts reports the retries scheduled since the last successful open.
func (s *Session) Attempts() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.policy.Attempts()
}

// Start performs the initial connect, or surfaces the offline error when
// the host has already been marked offline.
func (s *Session) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	if !s.online {
		s.store.SetError(offlineStart)
		return
	}
	s.connectLocked()
}

// Connect attempts to open the upstream connection. It is a no-op while
// a connection is already open or being established.
func (s *Session) Connect() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.connectLocked()
}

// Reconnect is the manual user action: it restores the loading state,
// clears any surfaced error, and connects.
func (s *Session) Reconnect() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.store.SetLoading(true)
	s.store.ClearError()
	s.connectLocked()
}

// SetFilter selects a historical date (nil resumes real-time mode) and,
// while connected, forwards the change to the source as a control frame.
// Disconnected sessions skip the send silently; nothing is queued.
func (s *Session) SetFilter(date *time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.store.SetFilter(date)
	if s.state == StateOpen {
		s.sendFilterLocked()
	}
}

// SetOnline feeds the host network transition in. Going offline cancels
// any pending retry and surfaces the offline error; coming back online
// clears it and reconnects immediately, bypassing backoff.
func (s *Session) SetOnline(online bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.online = online
	if !online {
		s.cancelRetryLocked()
		s.store.SetError(offlineError)
		s.log.Info("host offline, reconnect suspended")
		return
	}
	s.log.Info("host online, reconnecting immediately")
	s.store.ClearError()
	s.policy.Reset()
	s.connectLocked()
}

// DismissToast clears the active notification toast.
func (s *Session) DismissToast() {
	s.store.DismissToast()
}

// Send writes a JSON control frame upstream. It is a silent no-op while
// the connection is not open; it never queues and never returns an error
// to the caller.
func (s *Session) Send(v any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sendJSONLocked(v)
}

// Close tears the session down: pending retry cancelled, keepalive
// stopped, socket closed. Idempotent and safe to call at any time.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.cancelRetryLocked()
	s.stopKeepaliveLocked()
	// Invalidate callbacks from any in-flight dial or reader.
	s.gen++
	if s.conn != nil {
		s.conn.Close()
		s.conn = nil
	}
	s.state = StateDisconnected
	s.store.SetConnected(false)
	s.metrics.SetConnected(false)
}
