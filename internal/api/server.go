package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/snarg/f1-transcriber/internal/config"
	"github.com/snarg/f1-transcriber/internal/metrics"
	"github.com/snarg/f1-transcriber/internal/transcribe"
)

type Server struct {
	http *http.Server
	log  zerolog.Logger
}

// NewRouter builds the HTTP handler tree.
func NewRouter(cfg *config.Config, tr *transcribe.Transcriber, version string, startTime time.Time, log zerolog.Logger) http.Handler {
	return newRouter(cfg.AuthToken, tr, tr.Scheduler(), tr.Model(), tr.Scheduler().Cooldown(), version, startTime, log)
}

func newRouter(authToken string, svc Transcriber, stats StatsSource, model string, cooldown time.Duration, version string, startTime time.Time, log zerolog.Logger) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(RequestID)
	r.Use(Recoverer)
	r.Use(Logger(log))
	r.Use(metrics.InstrumentHandler)

	// Health and metrics — no auth
	r.Get("/api/v1/health", NewHealthHandler(stats, model, cooldown, version, startTime).ServeHTTP)
	r.Handle("/metrics", promhttp.Handler())

	// Authenticated routes
	r.Group(func(r chi.Router) {
		r.Use(BearerAuth(authToken))
		r.Use(RateLimiter(5, 10))
		r.Post("/api/v1/transcribe", NewTranscribeHandler(svc).ServeHTTP)
	})

	return r
}

func NewServer(cfg *config.Config, tr *transcribe.Transcriber, version string, startTime time.Time, log zerolog.Logger) *Server {
	return &Server{
		http: &http.Server{
			Addr:         cfg.HTTPAddr,
			Handler:      NewRouter(cfg, tr, version, startTime, log),
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
			IdleTimeout:  cfg.IdleTimeout,
		},
		log: log,
	}
}

func (s *Server) Start() error {
	s.log.Info().Str("addr", s.http.Addr).Msg("http server starting")
	err := s.http.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info().Msg("http server shutting down")
	return s.http.Shutdown(ctx)
}
