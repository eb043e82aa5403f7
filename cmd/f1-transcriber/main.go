package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/snarg/f1-transcriber/internal/api"
	"github.com/snarg/f1-transcriber/internal/config"
	"github.com/snarg/f1-transcriber/internal/transcribe"
)

var version = "dev"

func main() {
	startTime := time.Now()

	var overrides config.Overrides
	flag.StringVar(&overrides.EnvFile, "env-file", "", "path to .env file (default .env)")
	flag.StringVar(&overrides.HTTPAddr, "listen", "", "HTTP listen address (overrides HTTP_ADDR)")
	flag.StringVar(&overrides.LogLevel, "log-level", "", "log level (overrides LOG_LEVEL)")
	flag.Parse()

	// Config
	cfg, err := config.Load(overrides)
	if err != nil {
		early := zerolog.New(os.Stderr).With().Timestamp().Logger()
		early.Fatal().Err(err).Msg("failed to load config")
	}

	// Logger
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	log := zerolog.New(os.Stdout).With().Timestamp().Logger().Level(level)
	log.Info().Str("version", version).Msg("f1-transcriber starting")

	// Context for graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Transcriber
	tr, err := transcribe.New(transcribe.Options{
		APIKey:   cfg.OpenAIAPIKey,
		BaseURL:  cfg.LiveTimingBaseURL,
		Endpoint: cfg.WhisperURL,
		Model:    cfg.WhisperModel,
		Cooldown: cfg.Cooldown,
		Timeout:  cfg.WhisperTimeout,
		Log:      log.With().Str("component", "transcribe").Logger(),
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create transcriber")
	}
	log.Info().
		Str("model", tr.Model()).
		Dur("cooldown", tr.Scheduler().Cooldown()).
		Msg("transcriber ready")

	// HTTP Server
	httpLog := log.With().Str("component", "http").Logger()
	srv := api.NewServer(cfg, tr, version, startTime, httpLog)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	// Wait for shutdown signal or server error
	select {
	case <-ctx.Done():
		log.Info().Msg("shutdown signal received")
	case err := <-errCh:
		if err != nil {
			log.Error().Err(err).Msg("http server error")
		}
	}

	// Graceful shutdown with 10s timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("http server shutdown error")
	}

	if st := tr.Scheduler().Stats(); st.Pending > 0 {
		log.Warn().Int("pending", st.Pending).Msg("exiting with queued transcriptions")
	}
	log.Info().Msg("f1-transcriber stopped")
}
