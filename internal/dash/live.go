package dash

import (
	"bytes"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/lgipm/remanet-dash/internal/logging"
)

// handleLive streams state snapshots as server-sent events. The current
// snapshot is sent immediately so the page renders without waiting for
// the next change.
func (s *Server) handleLive(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	ch, cancel := s.session.Subscribe()
	defer cancel()

	writeEvent(w, s.session.Snapshot())
	flusher.Flush()

	for {
		select {
		case snap, ok := <-ch:
			if !ok {
				return
			}
			writeEvent(w, snap)
			flusher.Flush()
		case <-r.Context().Done():
			return
		}
	}
}

func writeEvent(w http.ResponseWriter, v any) {
	payload, _ := json.Marshal(v)
	w.Write([]byte("data: "))
	w.Write(payload)
	w.Write([]byte("\n\n"))
}

var relayUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	// Cross-origin policy is enforced by the CORS layer in front of
	// the router.
	CheckOrigin: func(*http.Request) bool { return true },
}

type relayInbound struct {
	Type       string          `json:"type"`
	FilterDate json.RawMessage `json:"filter_date"`
}

// handleRelay pushes state snapshots to a browser over websocket and
// accepts filter changes and keepalive pings back.
func (s *Server) handleRelay(w http.ResponseWriter, r *http.Request) {
	conn, err := relayUpgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("relay upgrade", logging.F("err", err))
		return
	}
	defer conn.Close()

	ch, cancel := s.session.Subscribe()
	defer cancel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			s.handleRelayInbound(data)
		}
	}()

	if err := conn.WriteJSON(s.session.Snapshot()); err != nil {
		return
	}
	for {
		select {
		case snap, ok := <-ch:
			if !ok {
				return
			}
			if err := conn.WriteJSON(snap); err != nil {
				return
			}
		case <-done:
			return
		case <-r.Context().Done():
			return
		}
	}
}

func (s *Server) handleRelayInbound(data []byte) {
	var msg relayInbound
	if err := json.Unmarshal(data, &msg); err != nil {
		s.log.Warn("relay frame", logging.F("err", err))
		return
	}
	if msg.Type == "ping" || len(msg.FilterDate) == 0 {
		return
	}
	if bytes.Equal(bytes.TrimSpace(msg.FilterDate), []byte("null")) {
		s.session.SetFilter(nil)
		return
	}
	var raw string
	if err := json.Unmarshal(msg.FilterDate, &raw); err != nil {
		s.log.Warn("relay filter", logging.F("err", err))
		return
	}
	day, err := time.Parse("2006-01-02", raw)
	if err != nil {
		s.log.Warn("relay filter", logging.F("date", raw), logging.F("err", err))
		return
	}
	s.session.SetFilter(&day)
}
