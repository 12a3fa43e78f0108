// Package server is the shared process harness: logging setup, the
// telemetry exporter, the /metrics mount and graceful shutdown, so the
// nine mains stay down to wiring.
package server

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/sparkmatch/sparkmatch/internal/config"
	"github.com/sparkmatch/sparkmatch/internal/metrics"
	"github.com/sparkmatch/sparkmatch/internal/telemetry"
)

// shutdownTimeout bounds the drain on SIGINT/SIGTERM.
const shutdownTimeout = 15 * time.Second

// InitLogging configures the process-global zerolog logger.
func InitLogging(level string) {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	if lvl, err := zerolog.ParseLevel(level); err == nil {
		zerolog.SetGlobalLevel(lvl)
	}
}

// Run serves handler on cfg.Addr with /metrics mounted beside it, and
// blocks until the process is signalled or the listener fails. Background
// workers (the event consumer) run via the optional run funcs, cancelled
// at shutdown.
func Run(cfg *config.Config, handler http.Handler, workers ...func(context.Context) error) error {
	InitLogging(cfg.LogLevel)

	shutdownTracing, err := telemetry.Init(cfg.Telemetry)
	if err != nil {
		return err
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	mux.Handle("/", handler)

	httpServer := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      mux,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	for _, worker := range workers {
		w := worker
		go func() {
			if err := w(ctx); err != nil && ctx.Err() == nil {
				log.Error().Err(err).Msg("background worker exited")
			}
		}()
	}

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		log.Info().Msg("shutting down gracefully")
		cancel()
		shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancelShutdown()
		httpServer.Shutdown(shutdownCtx)
		shutdownTracing(shutdownCtx)
	}()

	log.Info().
		Str("service", cfg.ServiceName).
		Str("addr", cfg.Addr()).
		Msg("listening")

	if err := httpServer.ListenAndServe(); err != http.ErrServerClosed {
		return err
	}
	return nil
}
