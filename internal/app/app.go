// Package app assembles the long-lived pipeline components from
// configuration. Both the HTTP server and the CLI start from here.
package app

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/sashabaranov/go-openai"

	"github.com/Thompson6626/SRT-Transcriber/internal/audio"
	"github.com/Thompson6626/SRT-Transcriber/internal/config"
	"github.com/Thompson6626/SRT-Transcriber/internal/modelserver"
	"github.com/Thompson6626/SRT-Transcriber/internal/observability"
	"github.com/Thompson6626/SRT-Transcriber/internal/romaji"
	"github.com/Thompson6626/SRT-Transcriber/internal/stt"
	"github.com/Thompson6626/SRT-Transcriber/internal/transcription"
	"github.com/Thompson6626/SRT-Transcriber/internal/translate"
)

// App holds the wired pipeline.
type App struct {
	Config      *config.Config
	ModelServer *modelserver.Client // nil unless a backend uses it
	Normalizer  *audio.Normalizer
	Recognizer  stt.Recognizer
	Romanizer   romaji.Romanizer
	Translator  *translate.Translator
	Service     *transcription.Service
	Pipeline    *transcription.Pipeline
}

// New builds every component selected by cfg. When MODEL_SERVER_WAIT_READY is
// set it blocks until the model server reports serving or ctx ends.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	logger := observability.GetLogger()

	if cfg.TempDir != "" {
		if err := os.MkdirAll(cfg.TempDir, 0o755); err != nil {
			return nil, fmt.Errorf("create temp dir: %w", err)
		}
	}
	if err := os.MkdirAll(cfg.OutputDir, 0o755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}

	a := &App{Config: cfg}

	if cfg.UsesModelServer() {
		ms, err := modelserver.NewClient(cfg)
		if err != nil {
			return nil, err
		}
		a.ModelServer = ms

		if cfg.ModelServerWaitReady {
			if err := ms.WaitReady(ctx); err != nil {
				_ = ms.Close()
				return nil, err
			}
		}
	}

	var oa *openai.Client
	if cfg.RecognizerBackend == config.BackendOpenAI || cfg.TranslatorBackend == config.BackendOpenAI {
		oa = stt.NewOpenAIClient(cfg)
	}

	rec, err := stt.NewRecognizer(cfg, a.ModelServer, oa)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.Recognizer = rec

	rom, err := romaji.New(cfg, a.ModelServer)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.Romanizer = rom

	loader, err := translate.NewLoader(cfg, a.ModelServer, oa)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.Translator = translate.NewTranslator(loader, translate.DefaultRegistry(), cfg.TranslatorCacheSize)

	a.Normalizer = audio.NewNormalizer(cfg.FFmpegBinary, cfg.AudioBitrate)

	svc, err := transcription.NewService(transcription.Deps{
		Recognizer:        a.Recognizer,
		Romanizer:         a.Romanizer,
		Translator:        a.Translator,
		OutputDir:         cfg.OutputDir,
		TempDir:           cfg.TempDir,
		MaxConcurrentJobs: cfg.MaxConcurrentJobs,
	})
	if err != nil {
		a.Close()
		return nil, err
	}
	a.Service = svc
	a.Pipeline = transcription.NewPipeline(svc, a.Normalizer)

	logger.Info().
		Str("recognizer", a.Recognizer.Name()).
		Str("romanizer", a.Romanizer.Name()).
		Str("translator", cfg.TranslatorBackend).
		Str("output_dir", cfg.OutputDir).
		Int("max_concurrent_jobs", cfg.MaxConcurrentJobs).
		Msg("Pipeline assembled")

	return a, nil
}

// ReadyChecks returns the dependency probes served on /ready.
func (a *App) ReadyChecks() map[string]observability.HealthCheckFunc {
	checks := map[string]observability.HealthCheckFunc{
		"output_dir": func(ctx context.Context) (bool, error) {
			return DirWritable(a.Config.OutputDir)
		},
	}
	if a.Normalizer != nil {
		checks["ffmpeg"] = a.Normalizer.Check
	}
	if a.ModelServer != nil {
		checks["model_server"] = a.ModelServer.HealthCheck
	}
	return checks
}

// Close releases loaded models and the model server connection.
func (a *App) Close() error {
	var errs []error
	if a.Translator != nil {
		errs = append(errs, a.Translator.Close())
	}
	if a.ModelServer != nil {
		errs = append(errs, a.ModelServer.Close())
	}
	return errors.Join(errs...)
}

// DirWritable reports whether a file can be created in dir.
func DirWritable(dir string) (bool, error) {
	f, err := os.CreateTemp(dir, ".ready-*")
	if err != nil {
		return false, err
	}
	name := f.Name()
	_ = f.Close()
	if err := os.Remove(name); err != nil {
		return false, err
	}
	return true, nil
}
