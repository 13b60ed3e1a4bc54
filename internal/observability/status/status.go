// Package status serves a small operator endpoint: liveness, queue and
// goroutine state as JSON, and optionally pprof.
package status

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"standupbot/internal/runtime/supervisor"
	"standupbot/internal/task/queue"
	"standupbot/internal/task/scheduler"
	logx "standupbot/pkg/logx"
)

type Config struct {
	Addr  string
	Token string
	Pprof bool
}

// Snapshot is what /status reports.
type Snapshot struct {
	StartedAt time.Time                `json:"started_at"`
	Connected bool                     `json:"connected"`
	LastEvent time.Time                `json:"last_event,omitzero"`
	StoreKeys int                      `json:"store_keys"`
	Keys      []string                 `json:"keys,omitempty"`
	Queues    []queue.Stats            `json:"queues"`
	Schedules []scheduler.ScheduleInfo `json:"schedules,omitempty"`
	Routines  []supervisor.Routine     `json:"routines"`
	// EventsDropped counts queue events a slow bus subscriber missed.
	EventsDropped uint64 `json:"events_dropped"`

	// Metrics holds counter totals keyed by name and attributes.
	Metrics map[string]int64 `json:"metrics,omitempty"`
}

type Source interface {
	Status() Snapshot
}

type Server struct {
	cfg Config
	src Source
	log logx.Logger
}

func New(cfg Config, src Source, log logx.Logger) *Server {
	if strings.TrimSpace(cfg.Addr) == "" {
		cfg.Addr = "127.0.0.1:6061"
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Server{cfg: cfg, src: src, log: log.With(logx.String("comp", "status"))}
}

// Handler builds the router. /healthz is public; everything else needs the
// token when one is configured.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		if !s.src.Status().Connected {
			http.Error(w, "disconnected", http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte("ok"))
	})

	r.Group(func(r chi.Router) {
		r.Use(bearer(s.cfg.Token))
		r.With(chimw.NoCache).Get("/status", func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			enc := json.NewEncoder(w)
			enc.SetIndent("", "  ")
			_ = enc.Encode(s.src.Status())
		})
		if s.cfg.Pprof {
			r.Mount("/debug", chimw.Profiler())
		}
	})
	return r
}

// Run serves until ctx ends. A non-loopback address without a token is
// refused.
func (s *Server) Run(ctx context.Context) error {
	if s.cfg.Token == "" && !isLoopback(s.cfg.Addr) {
		return errors.New("status: non-loopback addr requires a token")
	}
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return err
	}
	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	go func() {
		<-ctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(sctx)
	}()

	s.log.Info("status endpoint listening", logx.String("addr", ln.Addr().String()), logx.Bool("pprof", s.cfg.Pprof), logx.Bool("token_set", s.cfg.Token != ""))
	err = srv.Serve(ln)
	if ctx.Err() != nil || errors.Is(err, http.ErrServerClosed) {
		return ctx.Err()
	}
	return err
}

func bearer(token string) func(http.Handler) http.Handler {
	token = strings.TrimSpace(token)
	return func(next http.Handler) http.Handler {
		if token == "" {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got := r.URL.Query().Get("token")
			if got == "" {
				got = strings.TrimSpace(strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer "))
			}
			if got != token {
				w.Header().Set("WWW-Authenticate", "Bearer")
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func isLoopback(addr string) bool {
	host, _, err := net.SplitHostPort(addr)
	if err != nil || host == "" {
		return false
	}
	if strings.EqualFold(host, "localhost") {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
