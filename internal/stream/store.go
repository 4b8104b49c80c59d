package stream

import (
	"sync"
	"time"

	"github.com/lgipm/remanet-dash/internal/logging"
)

const (
	// micBufferCap bounds each microphone ring buffer to the most
	// recent batches.
	micBufferCap = 10
	// notificationCap bounds the stored notification list.
	notificationCap = 20
)

// Snapshot is the externally observable dashboard state. Slices are
// copies; callers may retain them freely.
type Snapshot struct {
	Connected           bool              `json:"isConnected"`
	Loading             bool              `json:"isLoading"`
	Error               string            `json:"error,omitempty"`
	LastUpdated         *time.Time        `json:"lastUpdated,omitempty"`
	Telemetry           []TelemetrySample `json:"cold_spray"`
	Notifications       []Notification    `json:"notifications"`
	Mic0                []MicSample       `json:"micro_0"`
	Mic1                []MicSample       `json:"micro_1"`
	FilterDate          *string           `json:"filterDate"`
	RealTime            bool              `json:"isRealTime"`
	MaintenanceRequired bool              `json:"maintenanceRequired"`
	ActiveToast         *Notification     `json:"activeToast,omitempty"`
}

// Store holds the derived client state and fans out change notifications
// to subscribers. Frames mutate it only through Apply; everything else in
// the system reads it through Snapshot.
type Store struct {
	mu  sync.RWMutex
	log logging.Logger
	now func() time.Time

	connected     bool
	loading       bool
	err           string
	lastUpdated   *time.Time
	telemetry     []TelemetrySample
	notifications []Notification
	mic0          []MicSample
	mic1          []MicSample
	filterDate    *time.Time
	realTime      bool
	maintenance   bool
	toast         *Notification

	subscribers map[chan Snapshot]struct{}
}

// NewStore builds a Store in its initial loading state: real-time mode,
// no filter, loading until the first telemetry or notification batch.
func NewStore(log logging.Logger) *Store {
	if log == nil {
		log = logging.Default()
	}
	return &Store{
		log:         log,
		now:         time.Now,
		loading:     true,
		realTime:    true,
		subscribers: make(map[chan Snapshot]struct{}),
	}
}

// Apply merges a classified frame into the derived state using the
// kind-specific merge rules.
func (s *Store) Apply(frame Frame) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch frame.Kind {
	case KindKeepalive:
		return
	case KindNotifications:
		s.applyNotificationsLocked(frame.Notifications)
	case KindCombined:
		s.applyCombinedLocked(frame)
	case KindMaintenance:
		s.maintenance = frame.MaintenanceRequired
	case KindLegacy:
		if len(frame.Telemetry) == 0 {
			s.log.Debug("ignoring empty legacy telemetry batch")
			return
		}
		s.telemetry = append([]TelemetrySample(nil), frame.Telemetry...)
		s.touchLocked()
	default:
		s.log.Debug("ignoring unrecognized frame")
		return
	}
	s.notifyLocked()
}

func (s *Store) applyCombinedLocked(frame Frame) {
	// Telemetry is a rolling window from the source: replace, never append.
	if len(frame.Telemetry) > 0 {
		s.telemetry = append([]TelemetrySample(nil), frame.Telemetry...)
	}
	s.mic0 = appendCapped(s.mic0, frame.Micro0, micBufferCap)
	s.mic1 = appendCapped(s.mic1, frame.Micro1, micBufferCap)
	s.touchLocked()
}

func (s *Store) applyNotificationsLocked(payloads []NotificationPayload) {
	now := s.now()
	incoming := make([]Notification, 0, len(payloads))
	for _, p := range payloads {
		incoming = append(incoming, projectNotification(p, now))
	}

	prevCount := len(s.notifications)
	s.notifications = mergeNotifications(incoming, s.notifications, notificationCap)

	// Surface the first new alert of the batch as a toast, but only when
	// no toast is currently showing.
	if len(s.notifications) > prevCount && s.toast == nil && len(incoming) > 0 {
		first := incoming[0]
		s.toast = &first
	}
	s.touchLocked()
}

// mergeNotifications merges a new batch ahead of the existing list,
// deduplicated by ID. A duplicate keeps the position of its first
// occurrence and the value of its last, then the list is capped.
func mergeNotifications(incoming, existing []Notification, limit int) []Notification {
	merged := make([]Notification, 0, len(incoming)+len(existing))
	index := make(map[string]int, len(incoming)+len(existing))
	for _, list := range [][]Notification{incoming, existing} {
		for _, n := range list {
			if at, seen := index[n.ID]; seen {
				merged[at] = n
				continue
			}
			index[n.ID] = len(merged)
			merged = append(merged, n)
		}
	}
	if len(merged) > limit {
		merged = merged[:limit]
	}
	return merged
}

func appendCapped(buf, batch []MicSample, limit int) []MicSample {
	if len(batch) == 0 {
		return buf
	}
	buf = append(buf, batch...)
	if len(buf) > limit {
		buf = append([]MicSample(nil), buf[len(buf)-limit:]...)
	}
	return buf
}

// touchLocked records a data arrival: the first one ends the loading state.
func (s *Store) touchLocked() {
	now := s.now()
	s.lastUpdated = &now
	s.loading = false
}

// SetConnected updates the connection projection.
func (s *Store) SetConnected(connected bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.connected = connected
	s.notifyLocked()
}

// SetLoading overrides the loading flag (manual reconnect shows a fresh
// loading state; automatic reconnects do not).
func (s *Store) SetLoading(loading bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loading = loading
	s.notifyLocked()
}

// SetError surfaces an advisory error message.
func (s *Store) SetError(msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = msg
	s.notifyLocked()
}

// ClearError removes any surfaced error.
func (s *Store) ClearError() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = ""
	s.notifyLocked()
}

// SetFilter selects a historical date, or nil to resume real-time mode.
// The invariant realTime == (date == nil) always holds.
func (s *Store) SetFilter(date *time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if date == nil {
		s.filterDate = nil
		s.realTime = true
	} else {
		d := *date
		s.filterDate = &d
		s.realTime = false
	}
	s.notifyLocked()
}

// FilterDate returns the currently selected historical date, nil in
// real-time mode.
func (s *Store) FilterDate() *time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.filterDate == nil {
		return nil
	}
	d := *s.filterDate
	return &d
}

// DismissToast clears the active toast so the next batch may raise one.
func (s *Store) DismissToast() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.toast = nil
	s.notifyLocked()
}

// Snapshot returns a copy of the current derived state.
func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshotLocked()
}

func (s *Store) snapshotLocked() Snapshot {
	snap := Snapshot{
		Connected:           s.connected,
		Loading:             s.loading,
		Error:               s.err,
		Telemetry:           append([]TelemetrySample(nil), s.telemetry...),
		Notifications:       append([]Notification(nil), s.notifications...),
		Mic0:                append([]MicSample(nil), s.mic0...),
		Mic1:                append([]MicSample(nil), s.mic1...),
		RealTime:            s.realTime,
		MaintenanceRequired: s.maintenance,
	}
	if s.lastUpdated != nil {
		t := *s.lastUpdated
		snap.LastUpdated = &t
	}
	if s.filterDate != nil {
		d := s.filterDate.Format("2006-01-02")
		snap.FilterDate = &d
	}
	if s.toast != nil {
		t := *s.toast
		snap.ActiveToast = &t
	}
	return snap
}

// Subscribe registers a listener for state changes. The returned cancel
// function must be called to release the subscription. Updates are
// delivered best-effort: a slow subscriber misses intermediate snapshots
// rather than blocking the stream.
func (s *Store) Subscribe() (<-chan Snapshot, func()) {
	ch := make(chan Snapshot, 16)
	s.mu.Lock()
	s.subscribers[ch] = struct{}{}
	s.mu.Unlock()
	cancel := func() {
		s.mu.Lock()
		if _, ok := s.subscribers[ch]; ok {
			delete(s.subscribers, ch)
			close(ch)
		}
		s.mu.Unlock()
	}
	return ch, cancel
}

func (s *Store) notifyLocked() {
	if len(s.subscribers) == 0 {
		return
	}
	snap := s.snapshotLocked()
	for ch := range s.subscribers {
		select {
		case ch <- snap:
		default:
		}
	}
}
