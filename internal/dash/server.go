// Package dash serves the dashboard HTTP API: authentication, user
// management, derived stream state, live updates over SSE and
// websocket, and stream control endpoints.
package dash

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/lgipm/remanet-dash/internal/auth"
	"github.com/lgipm/remanet-dash/internal/logging"
	"github.com/lgipm/remanet-dash/internal/stream"
	"github.com/lgipm/remanet-dash/internal/users"
)

// Config carries the server's listen address and CORS policy.
type Config struct {
	Addr           string
	AllowedOrigins []string
	Logger         logging.Logger
	Registry       *prometheus.Registry
}

// Server wires the HTTP surface to the stream session and the account
// stores.
type Server struct {
	log      logging.Logger
	session  *stream.Session
	users    *users.Store
	sessions *auth.Manager
	srv      *http.Server
}

// NewServer builds the router and returns a server ready to Start.
func NewServer(cfg Config, session *stream.Session, userStore *users.Store, sessions *auth.Manager) *Server {
	log := cfg.Logger
	if log == nil {
		log = logging.Default()
	}
	s := &Server{
		log:      log.With(logging.F("component", "dash")),
		session:  session,
		users:    userStore,
		sessions: sessions,
	}

	r := mux.NewRouter()

	r.HandleFunc("/api/auth/login", s.handleLogin).Methods(http.MethodPost)
	r.HandleFunc("/api/auth/logout", s.handleLogout).Methods(http.MethodPost)
	r.HandleFunc("/api/auth/session", s.handleSession).Methods(http.MethodGet)
	r.HandleFunc("/api/register", s.handleRegister).Methods(http.MethodPost)

	r.Handle("/api/users", s.admin(s.handleListUsers)).Methods(http.MethodGet)
	r.Handle("/api/users", s.admin(s.handleCreateUser)).Methods(http.MethodPost)
	r.Handle("/api/users/{id}", s.admin(s.handleGetUser)).Methods(http.MethodGet)
	r.Handle("/api/users/{id}", s.admin(s.handleUpdateUser)).Methods(http.MethodPut)
	r.Handle("/api/users/{id}", s.admin(s.handleDeleteUser)).Methods(http.MethodDelete)

	r.Handle("/api/state", s.authed(s.handleState)).Methods(http.MethodGet)
	r.Handle("/api/live", s.authed(s.handleLive)).Methods(http.MethodGet)
	r.Handle("/ws", s.authed(s.handleRelay))
	r.Handle("/api/filter", s.authed(s.handleFilter)).Methods(http.MethodPost)
	r.Handle("/api/reconnect", s.authed(s.handleReconnect)).Methods(http.MethodPost)
	r.Handle("/api/toast/dismiss", s.authed(s.handleDismissToast)).Methods(http.MethodPost)
	r.Handle("/api/spectrum/{mic:[01]}", s.authed(s.handleSpectrum)).Methods(http.MethodGet)

	r.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	if cfg.Registry != nil {
		r.Handle("/metrics", promhttp.HandlerFor(cfg.Registry, promhttp.HandlerOpts{}))
	}

	var h http.Handler = r
	if len(cfg.AllowedOrigins) > 0 {
		h = handlers.CORS(
			handlers.AllowedOrigins(cfg.AllowedOrigins),
			handlers.AllowedMethods([]string{
				http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete,
			}),
			handlers.AllowedHeaders([]string{"Content-Type"}),
			handlers.AllowCredentials(),
		)(h)
	}
	h = handlers.RecoveryHandler(handlers.PrintRecoveryStack(true))(h)

	s.srv = &http.Server{
		Addr:         cfg.Addr,
		Handler:      h,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 0, // SSE and websocket responses are long-lived
	}
	return s
}

// Handler exposes the assembled router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.srv.Handler
}

// Start listens until the context is canceled, then drains connections.
func (s *Server) Start(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.srv.Shutdown(shutdownCtx); err != nil {
			s.log.Warn("shutdown", logging.F("err", err))
		}
	}()

	s.log.Info("listening", logging.F("addr", s.srv.Addr))
	if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *Server) authed(h http.HandlerFunc) http.Handler {
	return s.sessions.RequireSession(h)
}

func (s *Server) admin(h http.HandlerFunc) http.Handler {
	return s.sessions.RequireRole("admin", h)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"connected": s.session.State() == stream.StateOpen,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		json.NewEncoder(w).Encode(v)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
