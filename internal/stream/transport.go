package stream

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/gorilla/websocket"
	"github.com/lgipm/remanet-dash/internal/logging"
)

// pingFrame is the outbound keepalive control frame.
type pingFrame struct {
	Type      string `json:"type"`
	Timestamp string `json:"timestamp"`
}

// filterFrame is the outbound date-filter control frame. A null date
// resumes the real-time feed.
type filterFrame struct {
	FilterDate *string `json:"filter_date"`
}

// connectLocked starts a dial unless one is already open or in flight.
// The guard is correctness-critical: repeated triggers (manual reconnect,
// online transitions, retry timers) must never create a second socket.
func (s *Session) connectLocked() {
	if s.state == StateConnecting || s.state == StateOpen {
		s.log.Debug("stream already open or connecting, skipping duplicate connect")
		return
	}
	// A keepalive left over from a previous connection must not outlive it.
	s.stopKeepaliveLocked()
	s.state = StateConnecting
	s.gen++
	gen := s.gen
	s.log.Info("connecting to telemetry stream",
		logging.F("url", s.cfg.URL),
		logging.F("attempt", s.policy.Attempts()))
	go s.dial(gen)
}

// dial runs off the session mutex; its outcome is delivered as an event.
func (s *Session) dial(gen int) {
	dialer := websocket.Dialer{HandshakeTimeout: s.cfg.HandshakeTimeout}
	conn, resp, err := dialer.Dial(s.cfg.URL, nil)
	if err != nil && resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	s.onDialResult(gen, conn, err)
}

func (s *Session) onDialResult(gen int, conn *websocket.Conn, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed || gen != s.gen {
		// A superseded attempt; its socket must not leak.
		if conn != nil {
			conn.Close()
		}
		return
	}

	if err != nil {
		// Connection-construction failure is treated like a close:
		// surfaced as a generic error and retried with backoff.
		s.state = StateDisconnected
		s.store.SetConnected(false)
		s.metrics.SetConnected(false)
		s.log.Warn("stream connect failed", logging.F("err", err))
		if !s.online {
			s.store.SetError(offlineError)
			return
		}
		s.store.SetError(fmt.Sprintf("failed to connect to telemetry source: %v", err))
		s.scheduleRetryLocked()
		return
	}

	s.state = StateOpen
	s.conn = conn
	s.policy.Reset()
	s.store.SetConnected(true)
	s.store.ClearError()
	s.metrics.SetConnected(true)
	s.startKeepaliveLocked(gen)
	go s.readLoop(gen, conn)
	// The source needs the current filter on every (re)open, including
	// the explicit null that selects the real-time feed.
	s.sendFilterLocked()
	s.log.Info("telemetry stream connected")
}

// readLoop pumps inbound frames until the connection dies. It is the only
// reader of the socket; each event carries the generation it belongs to so
// late callbacks from a superseded connection are discarded.
func (s *Session) readLoop(gen int, conn *websocket.Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			s.onClosed(gen, err)
			return
		}
		s.onFrame(gen, data)
	}
}

func (s *Session) onFrame(gen int, data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Stale-connection guard: a frame that raced a processed close for
	// this connection must not touch state.
	if s.closed || gen != s.gen || s.state != StateOpen {
		return
	}

	frame, err := Classify(data)
	if err != nil {
		// Non-fatal: log, drop the frame, keep the connection.
		s.log.Warn("dropping unparseable frame", logging.F("err", err))
		s.metrics.ObserveParseError()
		return
	}
	s.metrics.ObserveFrame(frame.Kind)
	if frame.Kind == KindKeepalive {
		return
	}
	s.store.Apply(frame)
}

func (s *Session) onClosed(gen int, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if gen != s.gen {
		return
	}

	s.stopKeepaliveLocked()
	s.state = StateDisconnected
	if s.conn != nil {
		s.conn.Close()
		s.conn = nil
	}
	s.store.SetConnected(false)
	s.metrics.SetConnected(false)

	if s.closed {
		return
	}

	s.log.Info("telemetry stream closed", logging.F("reason", closeReason(err)))
	if abnormalClose(err) {
		s.store.SetError(describeStreamError(err))
	}

	if !s.online {
		s.store.SetError(offlineError)
		return
	}
	s.scheduleRetryLocked()
}

func (s *Session) scheduleRetryLocked() {
	// A newly scheduled retry supersedes any pending one; two timers must
	// never race to connect.
	s.cancelRetryLocked()
	delay := s.policy.Next()
	s.retryToken++
	token := s.retryToken
	s.log.Info("scheduling reconnect",
		logging.F("delay", delay),
		logging.F("attempt", s.policy.Attempts()))
	s.metrics.ObserveReconnectScheduled(delay)
	s.retryTimer = time.AfterFunc(delay, func() { s.onRetryFire(token) })
}

func (s *Session) onRetryFire(token int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || token != s.retryToken {
		return
	}
	s.retryTimer = nil
	s.connectLocked()
}

func (s *Session) cancelRetryLocked() {
	if s.retryTimer != nil {
		s.retryTimer.Stop()
		s.retryTimer = nil
	}
	s.retryToken++
}

func (s *Session) startKeepaliveLocked(gen int) {
	s.stopKeepaliveLocked()
	stop := make(chan struct{})
	s.keepaliveStop = stop
	interval := s.cfg.KeepaliveInterval
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				s.sendKeepalive(gen)
			}
		}
	}()
}

func (s *Session) stopKeepaliveLocked() {
	if s.keepaliveStop != nil {
		close(s.keepaliveStop)
		s.keepaliveStop = nil
	}
}

func (s *Session) sendKeepalive(gen int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || gen != s.gen || s.state != StateOpen {
		return
	}
	s.sendJSONLocked(pingFrame{
		Type:      "ping",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Session) sendFilterLocked() {
	frame := filterFrame{}
	if date := s.store.FilterDate(); date != nil {
		formatted := date.Format("2006-01-02")
		frame.FilterDate = &formatted
	}
	s.sendJSONLocked(frame)
}

func (s *Session) sendJSONLocked(v any) {
	if s.state != StateOpen || s.conn == nil {
		return
	}
	data, err := json.Marshal(v)
	if err != nil {
		s.log.Error("marshal outbound frame failed", logging.F("err", err))
		return
	}
	if err := s.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		// The reader will observe the broken socket and drive the close.
		s.log.Warn("write to stream failed", logging.F("err", err))
	}
}

func closeReason(err error) string {
	if err == nil {
		return "closed"
	}
	return err.Error()
}

// abnormalClose reports whether the close should surface an error to the
// user. Normal and going-away closures are routine.
func abnormalClose(err error) bool {
	if err == nil {
		return false
	}
	return !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway)
}

func describeStreamError(err error) string {
	var closeErr *websocket.CloseError
	if errors.As(err, &closeErr) && closeErr.Text != "" {
		return fmt.Sprintf("stream error: %s. Please check if the telemetry server is running.", closeErr.Text)
	}
	if err != nil && err.Error() != "" {
		return fmt.Sprintf("stream error: %v. Please check if the telemetry server is running.", err)
	}
	return "stream error. Please check if the telemetry server is running."
}
