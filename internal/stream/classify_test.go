package stream

import (
	"testing"
)

func TestClassifyKeepalive(t *testing.T) {
	for _, payload := range []string{
		`{"type":"ping","timestamp":"2025-06-01T10:00:00Z"}`,
		`{"type":"pong"}`,
	} {
		frame, err := Classify([]byte(payload))
		if err != nil {
			t.Fatalf("classify %s: %v", payload, err)
		}
		if frame.Kind != KindKeepalive {
			t.Fatalf("expected keepalive for %s, got %s", payload, frame.Kind)
		}
	}
}

func TestClassifyNotifications(t *testing.T) {
	payload := `{"notifications":[{"parameter":"P_gun","value":42.5,"threshold":40,"message":"Pressure above threshold","type":"warning","timestamp":"2025-06-01T10:00:00Z"}]}`
	frame, err := Classify([]byte(payload))
	if err != nil {
		t.Fatalf("classify: %v", err)
	}
	if frame.Kind != KindNotifications {
		t.Fatalf("expected notifications, got %s", frame.Kind)
	}
	if len(frame.Notifications) != 1 {
		t.Fatalf("expected 1 notification, got %d", len(frame.Notifications))
	}
	n := frame.Notifications[0]
	if n.Parameter != "P_gun" || n.Value != 42.5 || n.Threshold != 40 || n.Type != "warning" {
		t.Fatalf("unexpected notification payload: %+v", n)
	}
}

func TestClassifyNotificationsBeatsColdSpray(t *testing.T) {
	// First match wins: a frame carrying both fields is a notification batch.
	payload := `{"notifications":[],"cold_spray":[{"Time":"t1","P_gun":10}]}`
	frame, err := Classify([]byte(payload))
	if err != nil {
		t.Fatalf("classify: %v", err)
	}
	if frame.Kind != KindNotifications {
		t.Fatalf("expected notifications to win priority, got %s", frame.Kind)
	}
}

func TestClassifyCombined(t *testing.T) {
	payload := `{
		"cold_spray":[{"Time":"t1","P_gun":10.5,"T_gun":350,"label":"ignored"}],
		"micro_0":[{"data":"AAAA","timestamp":"2025-06-01T10:00:00Z","micId":"0"}],
		"micro_1":[{"data":"BBBB","timestamp":"2025-06-01T10:00:00Z","micId":"1"}]
	}`
	frame, err := Classify([]byte(payload))
	if err != nil {
		t.Fatalf("classify: %v", err)
	}
	if frame.Kind != KindCombined {
		t.Fatalf("expected combined, got %s", frame.Kind)
	}
	if len(frame.Telemetry) != 1 {
		t.Fatalf("expected 1 telemetry sample, got %d", len(frame.Telemetry))
	}
	sample := frame.Telemetry[0]
	if sample.Time != "t1" {
		t.Fatalf("expected Time t1, got %q", sample.Time)
	}
	if sample.Channels["P_gun"] != 10.5 || sample.Channels["T_gun"] != 350 {
		t.Fatalf("unexpected channels: %v", sample.Channels)
	}
	if _, ok := sample.Channels["label"]; ok {
		t.Fatal("non-numeric field must be dropped at the boundary")
	}
	if len(frame.Micro0) != 1 || frame.Micro0[0].MicID != "0" {
		t.Fatalf("unexpected micro_0: %+v", frame.Micro0)
	}
	if len(frame.Micro1) != 1 || frame.Micro1[0].Data != "BBBB" {
		t.Fatalf("unexpected micro_1: %+v", frame.Micro1)
	}
}

func TestClassifyCombinedWithoutMics(t *testing.T) {
	frame, err := Classify([]byte(`{"cold_spray":[{"Time":"t1","P_gun":1}]}`))
	if err != nil {
		t.Fatalf("classify: %v", err)
	}
	if frame.Kind != KindCombined || len(frame.Micro0) != 0 || len(frame.Micro1) != 0 {
		t.Fatalf("unexpected frame: %+v", frame)
	}
}

func TestClassifyMaintenance(t *testing.T) {
	cases := []struct {
		payload string
		want    bool
	}{
		{`{"maintenance_required":true}`, true},
		{`{"maintenance_required":false}`, false},
		{`{"maintenance_required":1}`, true},
		{`{"maintenance_required":0}`, false},
		{`{"maintenance_required":"yes"}`, true},
		{`{"maintenance_required":""}`, false},
		{`{"maintenance_required":null}`, false},
	}
	for _, tc := range cases {
		frame, err := Classify([]byte(tc.payload))
		if err != nil {
			t.Fatalf("classify %s: %v", tc.payload, err)
		}
		if frame.Kind != KindMaintenance {
			t.Fatalf("expected maintenance for %s, got %s", tc.payload, frame.Kind)
		}
		if frame.MaintenanceRequired != tc.want {
			t.Fatalf("%s: expected %v, got %v", tc.payload, tc.want, frame.MaintenanceRequired)
		}
	}
}

func TestClassifyLegacyArray(t *testing.T) {
	frame, err := Classify([]byte(`[{"Time":"t1","P_gun":10},{"Time":"t2","P_gun":11}]`))
	if err != nil {
		t.Fatalf("classify: %v", err)
	}
	if frame.Kind != KindLegacy {
		t.Fatalf("expected legacy, got %s", frame.Kind)
	}
	if len(frame.Telemetry) != 2 {
		t.Fatalf("expected 2 samples, got %d", len(frame.Telemetry))
	}
}

func TestClassifyEmptyLegacyArray(t *testing.T) {
	frame, err := Classify([]byte(`[]`))
	if err != nil {
		t.Fatalf("classify: %v", err)
	}
	if frame.Kind != KindLegacy || len(frame.Telemetry) != 0 {
		t.Fatalf("unexpected frame: %+v", frame)
	}
}

func TestClassifyUnknownObjectIgnored(t *testing.T) {
	frame, err := Classify([]byte(`{"future_field":{"nested":true}}`))
	if err != nil {
		t.Fatalf("unknown frames must not error: %v", err)
	}
	if frame.Kind != KindUnknown {
		t.Fatalf("expected unknown, got %s", frame.Kind)
	}
}

func TestClassifyRejectsGarbage(t *testing.T) {
	if _, err := Classify([]byte(`{not json`)); err == nil {
		t.Fatal("expected parse error")
	}
	if _, err := Classify([]byte(``)); err == nil {
		t.Fatal("expected error for empty frame")
	}
}

func TestClassifyNullFieldsFallThrough(t *testing.T) {
	// A present-but-null field must not capture the frame.
	frame, err := Classify([]byte(`{"notifications":null,"cold_spray":null,"maintenance_required":false}`))
	if err != nil {
		t.Fatalf("classify: %v", err)
	}
	if frame.Kind != KindMaintenance {
		t.Fatalf("expected maintenance, got %s", frame.Kind)
	}
}

func TestTelemetrySampleRoundTrip(t *testing.T) {
	frame, err := Classify([]byte(`{"cold_spray":[{"Time":"t1","P_gun":10}]}`))
	if err != nil {
		t.Fatalf("classify: %v", err)
	}
	data, err := frame.Telemetry[0].MarshalJSON()
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	reparsed, err := Classify([]byte(`{"cold_spray":[` + string(data) + `]}`))
	if err != nil {
		t.Fatalf("reparse: %v", err)
	}
	if reparsed.Telemetry[0].Time != "t1" || reparsed.Telemetry[0].Channels["P_gun"] != 10 {
		t.Fatalf("round trip lost data: %+v", reparsed.Telemetry[0])
	}
}
