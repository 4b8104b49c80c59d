// dashd is the dashboard backend: it maintains the persistent stream to
// the telemetry source and serves the HTTP API the web UI talks to.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/lgipm/remanet-dash/internal/auth"
	"github.com/lgipm/remanet-dash/internal/config"
	"github.com/lgipm/remanet-dash/internal/dash"
	"github.com/lgipm/remanet-dash/internal/discovery"
	"github.com/lgipm/remanet-dash/internal/logging"
	"github.com/lgipm/remanet-dash/internal/stream"
	"github.com/lgipm/remanet-dash/internal/users"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "dashd:", err)
		os.Exit(1)
	}
}

func run() error {
	const configPath = "dashd.json"

	persisted, err := config.LoadOrCreate(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	cfg, err := config.Parse(os.Args[1:], os.LookupEnv, persisted)
	if err != nil {
		return fmt.Errorf("parse config: %w", err)
	}
	if err := config.Save(configPath, cfg); err != nil {
		return fmt.Errorf("save config: %w", err)
	}

	level, err := logging.ParseLevel(cfg.LogLevel)
	if err != nil {
		return err
	}
	format, err := logging.ParseFormat(cfg.LogFormat)
	if err != nil {
		return err
	}
	log := logging.New(level, format, os.Stderr)
	logging.SetDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	streamURL := cfg.StreamURL
	if cfg.Discover {
		backends, err := discovery.Browse(time.Duration(cfg.DiscoverTimeout) * time.Second)
		if err != nil {
			return fmt.Errorf("discover backend: %w", err)
		}
		if len(backends) == 0 {
			return fmt.Errorf("no %s backends found", discovery.Service)
		}
		streamURL = backends[0].URL()
		log.Info("discovered backend",
			logging.F("instance", backends[0].Instance),
			logging.F("url", streamURL))
	}

	userStore, err := users.Open(cfg.DatabasePath)
	if err != nil {
		return err
	}
	defer userStore.Close()
	if err := seedAdmin(ctx, log, userStore, cfg); err != nil {
		return err
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	session := stream.NewSession(stream.Config{
		URL:     streamURL,
		Logger:  log.With(logging.F("component", "stream")),
		Metrics: stream.NewMetrics(registry),
	})
	defer session.Close()
	session.Start()

	server := dash.NewServer(dash.Config{
		Addr:           cfg.ListenAddr,
		AllowedOrigins: cfg.Origins(),
		Logger:         log,
		Registry:       registry,
	}, session, userStore, auth.NewManager())

	log.Info("starting",
		logging.F("listen", cfg.ListenAddr),
		logging.F("stream", streamURL))
	return server.Start(ctx)
}

// seedAdmin creates the initial admin account on an empty database so
// the dashboard is reachable on first boot. The generated password is
// logged once; change it after logging in.
func seedAdmin(ctx context.Context, log logging.Logger, store *users.Store, cfg config.Config) error {
	count, err := store.Count(ctx)
	if err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	password := os.Getenv("DASHD_ADMIN_PASSWORD")
	generated := password == ""
	if generated {
		password = uuid.NewString()
	}
	u, err := store.Create(ctx, users.NewUser{
		Name:     cfg.AdminName,
		Email:    cfg.AdminEmail,
		Password: password,
		Role:     "admin",
	})
	if err != nil {
		return fmt.Errorf("seed admin: %w", err)
	}
	if generated {
		log.Warn("seeded admin account",
			logging.F("email", u.Email),
			logging.F("password", password))
	} else {
		log.Info("seeded admin account", logging.F("email", u.Email))
	}
	return nil
}
