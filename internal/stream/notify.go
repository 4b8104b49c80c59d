package stream

import (
	"fmt"
	"time"
)

// Notification is the projected, display-ready form of a threshold alert.
// The ID is the composite parameter+timestamp key used for deduplication.
type Notification struct {
	ID   string             `json:"id"`
	Text string             `json:"text"`
	Time string             `json:"time"`
	Type string             `json:"type"`
	Raw  NotificationDetail `json:"raw"`
}

// NotificationDetail preserves the original alert fields for filtering.
type NotificationDetail struct {
	Parameter string  `json:"parameter"`
	Value     float64 `json:"value"`
	Threshold float64 `json:"threshold"`
	Timestamp string  `json:"timestamp"`
}

func projectNotification(p NotificationPayload, now time.Time) Notification {
	return Notification{
		ID:   p.Parameter + "-" + p.Timestamp,
		Text: p.Message,
		Time: humanizeTimestamp(p.Timestamp, now),
		Type: p.Type,
		Raw: NotificationDetail{
			Parameter: p.Parameter,
			Value:     p.Value,
			Threshold: p.Threshold,
			Timestamp: p.Timestamp,
		},
	}
}

// humanizeTimestamp renders an alert timestamp relative to now:
// "Just now", "{n}m ago", "{n}h ago", "{n}d ago". Unparseable input
// renders as "Unknown".
func humanizeTimestamp(timestamp string, now time.Time) string {
	if timestamp == "" {
		return "Unknown"
	}
	parsed, err := parseTimestamp(timestamp)
	if err != nil {
		return "Unknown"
	}
	mins := int(now.Sub(parsed).Minutes())
	if mins < 1 {
		return "Just now"
	}
	if mins < 60 {
		return fmt.Sprintf("%dm ago", mins)
	}
	hours := mins / 60
	if hours < 24 {
		return fmt.Sprintf("%dh ago", hours)
	}
	return fmt.Sprintf("%dd ago", hours/24)
}

func parseTimestamp(s string) (time.Time, error) {
	for _, layout := range []string{
		time.RFC3339Nano,
		time.RFC3339,
		"2006-01-02T15:04:05",
		"2006-01-02 15:04:05",
	} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", s)
}
