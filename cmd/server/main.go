package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/sync/errgroup"

	"github.com/Thompson6626/SRT-Transcriber/internal/api"
	"github.com/Thompson6626/SRT-Transcriber/internal/app"
	"github.com/Thompson6626/SRT-Transcriber/internal/config"
	"github.com/Thompson6626/SRT-Transcriber/internal/observability"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		// Use fmt for fatal errors before logger is initialized
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize structured logger
	observability.InitLogger(cfg.LogLevel, cfg.LogPretty)
	logger := observability.GetLogger()

	logger.Info().
		Str("port", cfg.Port).
		Str("recognizer", cfg.RecognizerBackend).
		Str("romanizer", cfg.RomanizerBackend).
		Str("translator", cfg.TranslatorBackend).
		Str("log_level", cfg.LogLevel).
		Bool("metrics_enabled", cfg.MetricsEnabled).
		Msg("SRT transcription service starting")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pipeline, err := app.New(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to assemble pipeline")
	}

	if os.Getenv("GIN_MODE") == "" {
		gin.SetMode(gin.ReleaseMode)
	}

	handler := api.NewHandler(api.Options{
		Processor:      pipeline.Pipeline,
		MaxUploadBytes: cfg.MaxUploadBytes,
		RequestTimeout: time.Duration(cfg.RequestTimeout) * time.Second,
		ReadyChecks:    pipeline.ReadyChecks(),
		MetricsEnabled: cfg.MetricsEnabled,
	})

	// Transcription requests run for minutes, so only the header read is
	// bounded here; REQUEST_TIMEOUT bounds the work itself.
	server := &http.Server{
		Addr:              fmt.Sprintf(":%s", cfg.Port),
		Handler:           api.NewRouter(handler),
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info().
			Str("port", cfg.Port).
			Str("endpoint", fmt.Sprintf("http://localhost:%s/transcribe/srt", cfg.Port)).
			Msg("Server listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info().Msg("Shutting down server...")

		// Graceful shutdown with timeout
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	err = g.Wait()
	if closeErr := pipeline.Close(); closeErr != nil {
		logger.Warn().Err(closeErr).Msg("Failed to release pipeline resources")
	}
	if err != nil {
		logger.Fatal().Err(err).Msg("Server stopped with error")
	}
	logger.Info().Msg("Server exited gracefully")
}
