// Package config loads dashboard settings from a persisted JSON file,
// environment variables, and command-line flags. Precedence is
// flags > environment > file > built-in defaults.
package config

import (
	"encoding/json"
	"flag"
	"os"
	"strconv"
	"strings"
)

// Config is the persisted settings file, dashd.json by default.
type Config struct {
	StreamURL       string `json:"stream_url"`
	ListenAddr      string `json:"listen_addr"`
	DatabasePath    string `json:"database_path"`
	LogLevel        string `json:"log_level"`
	LogFormat       string `json:"log_format"`
	AllowedOrigins  string `json:"allowed_origins"`
	Discover        bool   `json:"discover"`
	DiscoverTimeout int    `json:"discover_timeout_seconds"`
	AdminEmail      string `json:"admin_email"`
	AdminName       string `json:"admin_name"`
}

// Default returns the built-in settings.
func Default() Config {
	return Config{
		StreamURL:       "ws://localhost:8000/ws",
		ListenAddr:      ":8080",
		DatabasePath:    "dashd.db",
		LogLevel:        "info",
		LogFormat:       "text",
		AllowedOrigins:  "http://localhost:5173",
		Discover:        false,
		DiscoverTimeout: 5,
		AdminEmail:      "admin@remanet.local",
		AdminName:       "Administrator",
	}
}

// Origins splits the comma-separated origin list.
func (c Config) Origins() []string {
	var out []string
	for _, o := range strings.Split(c.AllowedOrigins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			out = append(out, o)
		}
	}
	return out
}

// Parse applies environment overrides and command-line flags on top of
// the given defaults.
func Parse(args []string, lookup func(string) (string, bool), defaults Config) (Config, error) {
	cfg := Config{}
	fs := flag.NewFlagSet("dashd", flag.ContinueOnError)
	fs.StringVar(&cfg.StreamURL, "stream-url", envString(lookup, "DASHD_STREAM_URL", defaults.StreamURL), "Telemetry websocket URL")
	fs.StringVar(&cfg.ListenAddr, "listen", envString(lookup, "DASHD_LISTEN", defaults.ListenAddr), "HTTP listen address")
	fs.StringVar(&cfg.DatabasePath, "db", envString(lookup, "DASHD_DB", defaults.DatabasePath), "SQLite database path")
	fs.StringVar(&cfg.LogLevel, "log-level", envString(lookup, "DASHD_LOG_LEVEL", defaults.LogLevel), "Log level (debug|info|warn|error)")
	fs.StringVar(&cfg.LogFormat, "log-format", envString(lookup, "DASHD_LOG_FORMAT", defaults.LogFormat), "Log format (text|json)")
	fs.StringVar(&cfg.AllowedOrigins, "allowed-origins", envString(lookup, "DASHD_ALLOWED_ORIGINS", defaults.AllowedOrigins), "Comma-separated CORS origins")
	fs.BoolVar(&cfg.Discover, "discover", envBool(lookup, "DASHD_DISCOVER", defaults.Discover), "Discover the telemetry backend via mDNS")
	fs.IntVar(&cfg.DiscoverTimeout, "discover-timeout", envInt(lookup, "DASHD_DISCOVER_TIMEOUT", defaults.DiscoverTimeout), "mDNS browse timeout in seconds")
	fs.StringVar(&cfg.AdminEmail, "admin-email", envString(lookup, "DASHD_ADMIN_EMAIL", defaults.AdminEmail), "Email for the seeded admin account")
	fs.StringVar(&cfg.AdminName, "admin-name", envString(lookup, "DASHD_ADMIN_NAME", defaults.AdminName), "Name for the seeded admin account")

	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// LoadOrCreate reads the settings file, writing the defaults first if
// it does not exist yet.
func LoadOrCreate(path string) (Config, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg := Default()
			if saveErr := Save(path, cfg); saveErr != nil {
				return Config{}, saveErr
			}
			return cfg, nil
		}
		return Config{}, err
	}
	defer f.Close()

	var cfg Config
	if err := json.NewDecoder(f).Decode(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Save writes the settings file.
func Save(path string, cfg Config) error {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, append(data, '\n'), 0o644)
}

func envString(lookup func(string) (string, bool), key, def string) string {
	if val, ok := lookup(key); ok {
		return val
	}
	return def
}

func envInt(lookup func(string) (string, bool), key string, def int) int {
	if val, ok := lookup(key); ok {
		if parsed, err := strconv.Atoi(val); err == nil {
			return parsed
		}
	}
	return def
}

func envBool(lookup func(string) (string, bool), key string, def bool) bool {
	if val, ok := lookup(key); ok {
		if parsed, err := strconv.ParseBool(val); err == nil {
			return parsed
		}
	}
	return def
}
