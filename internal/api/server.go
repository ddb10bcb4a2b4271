// Package api exposes the subtitle pipeline over HTTP.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Thompson6626/SRT-Transcriber/internal/observability"
	"github.com/Thompson6626/SRT-Transcriber/internal/transcription"
	"github.com/Thompson6626/SRT-Transcriber/internal/translate"
)

// Processor runs one subtitle job.
type Processor interface {
	Process(ctx context.Context, req transcription.Request) (transcription.Result, error)
}

// Options configure the HTTP handlers.
type Options struct {
	Processor Processor
	Registry  translate.Registry

	// MaxUploadBytes caps the request body; zero disables the cap
	MaxUploadBytes int64

	// RequestTimeout bounds a whole transcription request; zero disables it
	RequestTimeout time.Duration

	ReadyChecks    map[string]observability.HealthCheckFunc
	MetricsEnabled bool
}

// Handler serves the transcription API.
type Handler struct {
	processor      Processor
	registry       translate.Registry
	maxUploadBytes int64
	requestTimeout time.Duration
	readyChecks    map[string]observability.HealthCheckFunc
	metricsEnabled bool
}

// NewHandler creates a handler.
func NewHandler(opts Options) *Handler {
	registry := opts.Registry
	if registry == nil {
		registry = translate.DefaultRegistry()
	}
	return &Handler{
		processor:      opts.Processor,
		registry:       registry,
		maxUploadBytes: opts.MaxUploadBytes,
		requestTimeout: opts.RequestTimeout,
		readyChecks:    opts.ReadyChecks,
		metricsEnabled: opts.MetricsEnabled,
	}
}

// NewRouter builds a gin engine with middleware and every route registered.
func NewRouter(h *Handler) *gin.Engine {
	r := gin.New()
	r.Use(requestID(), requestLogger(), gin.CustomRecovery(recoverPanic))
	h.RegisterRoutes(r)
	return r
}

// RegisterRoutes mounts the API on r.
func (h *Handler) RegisterRoutes(r gin.IRouter) {
	r.GET("/health", gin.WrapF(observability.HealthCheckHandler()))
	r.GET("/ready", gin.WrapF(observability.ReadinessHandler(h.readyChecks)))
	if h.metricsEnabled {
		r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	}

	t := r.Group("/transcribe")
	{
		t.POST("/srt", h.limitBody(), h.transcribe(transcription.ModeDirect))
		t.POST("/srt-romaji", h.limitBody(), h.transcribe(transcription.ModeRomanized))
		t.POST("/srt-translated", h.limitBody(), h.transcribe(transcription.ModeTranslated))
		t.GET("/languages", h.languages)
	}
}

func (h *Handler) limitBody() gin.HandlerFunc {
	return func(c *gin.Context) {
		if h.maxUploadBytes > 0 {
			c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxUploadBytes)
		}
		c.Next()
	}
}
