package config

import (
	"path/filepath"
	"testing"
)

func noEnv(string) (string, bool) { return "", false }

func TestParsePrecedence(t *testing.T) {
	defaults := Default()

	// Defaults pass through untouched.
	cfg, err := Parse(nil, noEnv, defaults)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if cfg.StreamURL != defaults.StreamURL || cfg.ListenAddr != defaults.ListenAddr {
		t.Fatalf("expected defaults, got %+v", cfg)
	}

	// Environment overrides the file defaults.
	env := func(key string) (string, bool) {
		switch key {
		case "DASHD_STREAM_URL":
			return "ws://env:9000/ws", true
		case "DASHD_DISCOVER":
			return "true", true
		case "DASHD_DISCOVER_TIMEOUT":
			return "9", true
		}
		return "", false
	}
	cfg, err = Parse(nil, env, defaults)
	if err != nil {
		t.Fatalf("parse with env: %v", err)
	}
	if cfg.StreamURL != "ws://env:9000/ws" || !cfg.Discover || cfg.DiscoverTimeout != 9 {
		t.Fatalf("expected env overrides, got %+v", cfg)
	}

	// Flags beat the environment.
	cfg, err = Parse([]string{"-stream-url", "ws://flag:9001/ws"}, env, defaults)
	if err != nil {
		t.Fatalf("parse with flags: %v", err)
	}
	if cfg.StreamURL != "ws://flag:9001/ws" {
		t.Fatalf("expected flag to win, got %q", cfg.StreamURL)
	}
}

func TestParseRejectsUnknownFlag(t *testing.T) {
	if _, err := Parse([]string{"-no-such-flag"}, noEnv, Default()); err == nil {
		t.Fatal("expected error for unknown flag")
	}
}

func TestLoadOrCreateRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dashd.json")

	created, err := LoadOrCreate(path)
	if err != nil {
		t.Fatalf("first load: %v", err)
	}
	if created != Default() {
		t.Fatalf("expected defaults on first load, got %+v", created)
	}

	created.StreamURL = "ws://saved:8000/ws"
	if err := Save(path, created); err != nil {
		t.Fatalf("save: %v", err)
	}

	loaded, err := LoadOrCreate(path)
	if err != nil {
		t.Fatalf("second load: %v", err)
	}
	if loaded.StreamURL != "ws://saved:8000/ws" {
		t.Fatalf("expected persisted value, got %q", loaded.StreamURL)
	}
}

func TestOrigins(t *testing.T) {
	c := Config{AllowedOrigins: "http://a.example, http://b.example ,,"}
	got := c.Origins()
	if len(got) != 2 || got[0] != "http://a.example" || got[1] != "http://b.example" {
		t.Fatalf("unexpected origins: %v", got)
	}
	if n := len(Config{}.Origins()); n != 0 {
		t.Fatalf("expected no origins for empty list, got %d", n)
	}
}
