package stream

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// Kind identifies the semantic type of an inbound frame. Frames are
// classified in priority order; the first matching kind wins.
type Kind int

const (
	KindUnknown Kind = iota
	KindKeepalive
	KindNotifications
	KindCombined
	KindMaintenance
	KindLegacy
)

func (k Kind) String() string {
	switch k {
	case KindKeepalive:
		return "keepalive"
	case KindNotifications:
		return "notifications"
	case KindCombined:
		return "combined"
	case KindMaintenance:
		return "maintenance"
	case KindLegacy:
		return "legacy"
	default:
		return "unknown"
	}
}

// TelemetrySample is one entry of the rolling sensor window: a timestamp
// plus named numeric channels (P_gun, T_gun, Q_PG_N2, V_Particule, ...).
// Non-numeric fields other than Time are dropped at the boundary.
type TelemetrySample struct {
	Time     string
	Channels map[string]float64
}

func (s *TelemetrySample) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	s.Channels = make(map[string]float64, len(raw))
	for key, value := range raw {
		if key == "Time" {
			if err := json.Unmarshal(value, &s.Time); err != nil {
				// Some historical exports carry numeric epoch times.
				s.Time = string(bytes.Trim(value, `"`))
			}
			continue
		}
		var f float64
		if err := json.Unmarshal(value, &f); err == nil {
			s.Channels[key] = f
		}
	}
	return nil
}

func (s TelemetrySample) MarshalJSON() ([]byte, error) {
	flat := make(map[string]any, len(s.Channels)+1)
	for key, value := range s.Channels {
		flat[key] = value
	}
	flat["Time"] = s.Time
	return json.Marshal(flat)
}

// MicSample is one microphone batch: base64-encoded little-endian float32
// samples plus provenance.
type MicSample struct {
	Data      string `json:"data"`
	Timestamp string `json:"timestamp"`
	MicID     string `json:"micId"`
}

// NotificationPayload is the wire shape of a single threshold alert.
type NotificationPayload struct {
	Parameter string  `json:"parameter"`
	Value     float64 `json:"value"`
	Threshold float64 `json:"threshold"`
	Message   string  `json:"message"`
	Type      string  `json:"type"`
	Timestamp string  `json:"timestamp"`
}

// Frame is the tagged union produced by Classify. Only the fields relevant
// to the frame's Kind are populated.
type Frame struct {
	Kind                Kind
	Notifications       []NotificationPayload
	Telemetry           []TelemetrySample
	Micro0              []MicSample
	Micro1              []MicSample
	MaintenanceRequired bool
}

var errEmptyFrame = errors.New("empty frame")

// Classify parses a raw inbound frame and determines its kind. A parse
// error means the single frame is dropped by the caller; it never affects
// connection state.
func Classify(data []byte) (Frame, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return Frame{}, errEmptyFrame
	}

	// Legacy path: a bare JSON array is a full telemetry replacement.
	if trimmed[0] == '[' {
		var batch []TelemetrySample
		if err := json.Unmarshal(trimmed, &batch); err != nil {
			return Frame{}, fmt.Errorf("parse legacy telemetry batch: %w", err)
		}
		return Frame{Kind: KindLegacy, Telemetry: batch}, nil
	}

	var obj map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &obj); err != nil {
		return Frame{}, fmt.Errorf("parse frame: %w", err)
	}

	if raw, ok := obj["type"]; ok {
		var t string
		if err := json.Unmarshal(raw, &t); err == nil && (t == "ping" || t == "pong") {
			return Frame{Kind: KindKeepalive}, nil
		}
	}

	if raw, ok := obj["notifications"]; ok && !isJSONNull(raw) {
		var items []NotificationPayload
		if err := json.Unmarshal(raw, &items); err != nil {
			return Frame{}, fmt.Errorf("parse notifications: %w", err)
		}
		return Frame{Kind: KindNotifications, Notifications: items}, nil
	}

	if raw, ok := obj["cold_spray"]; ok && !isJSONNull(raw) {
		frame := Frame{Kind: KindCombined}
		if err := json.Unmarshal(raw, &frame.Telemetry); err != nil {
			return Frame{}, fmt.Errorf("parse cold_spray batch: %w", err)
		}
		if raw0, ok := obj["micro_0"]; ok && !isJSONNull(raw0) {
			if err := json.Unmarshal(raw0, &frame.Micro0); err != nil {
				return Frame{}, fmt.Errorf("parse micro_0 batch: %w", err)
			}
		}
		if raw1, ok := obj["micro_1"]; ok && !isJSONNull(raw1) {
			if err := json.Unmarshal(raw1, &frame.Micro1); err != nil {
				return Frame{}, fmt.Errorf("parse micro_1 batch: %w", err)
			}
		}
		return frame, nil
	}

	// Key presence alone selects this kind; false is a valid value.
	if raw, ok := obj["maintenance_required"]; ok {
		return Frame{Kind: KindMaintenance, MaintenanceRequired: truthy(raw)}, nil
	}

	// Unknown frame kinds are ignored by the caller, never an error.
	return Frame{Kind: KindUnknown}, nil
}

func isJSONNull(raw json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}

// truthy coerces an arbitrary JSON value the way the upstream dashboards
// did: false, 0, "" and null are false, everything else is true.
func truthy(raw json.RawMessage) bool {
	var b bool
	if err := json.Unmarshal(raw, &b); err == nil {
		return b
	}
	var n float64
	if err := json.Unmarshal(raw, &n); err == nil {
		return n != 0
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s != ""
	}
	return !isJSONNull(raw)
}
