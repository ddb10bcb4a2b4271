package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Request metrics
	activeJobs = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "srt_transcriber_active_jobs",
		Help: "Number of transcriptions holding a job slot",
	})

	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "srt_transcriber_requests_total",
		Help: "Total number of transcription requests by output mode and outcome",
	}, []string{"mode", "outcome"})

	requestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "srt_transcriber_request_duration_seconds",
		Help:    "End-to-end transcription request duration in seconds",
		Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1200},
	}, []string{"mode"})

	// Stage metrics
	stageLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "srt_transcriber_stage_latency_seconds",
		Help:    "Pipeline stage latency in seconds",
		Buckets: []float64{0.01, 0.1, 0.5, 1, 5, 15, 60, 300, 900},
	}, []string{"stage"})

	stageErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "srt_transcriber_stage_errors_total",
		Help: "Total number of pipeline stage failures by error kind",
	}, []string{"stage", "kind"})

	// Translator model cache metrics
	translatorCache = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "srt_transcriber_translator_cache_total",
		Help: "Translator model cache events (hit, miss, eviction)",
	}, []string{"event"})

	// Circuit breaker metrics
	circuitBreakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "srt_transcriber_circuit_breaker_state",
		Help: "Circuit breaker state (0=closed, 1=open, 2=half-open)",
	}, []string{"service"})

	circuitBreakerFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "srt_transcriber_circuit_breaker_failures_total",
		Help: "Total circuit breaker failures",
	}, []string{"service"})

	// Audio metrics
	audioBytesProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "srt_transcriber_audio_bytes_total",
		Help: "Total audio bytes handled by the normalizer",
	}, []string{"direction"}) // direction: "in" or "out"
)

// Pipeline stage names used as metric labels.
const (
	StageValidate  = "validate"
	StageNormalize = "normalize"
	StageRecognize = "recognize"
	StageTransform = "transform"
	StageSerialize = "serialize"
)

// RequestMetrics tracks metrics for a single transcription request
type RequestMetrics struct {
	mode      string
	startTime time.Time
}

// NewRequestMetrics creates a new metrics tracker for a request
func NewRequestMetrics(mode string) *RequestMetrics {
	return &RequestMetrics{
		mode:      mode,
		startTime: time.Now(),
	}
}

// RecordEnd records the outcome of the request. kind is empty on success.
func (m *RequestMetrics) RecordEnd(kind string) {
	outcome := "success"
	if kind != "" {
		outcome = kind
	}
	requestsTotal.WithLabelValues(m.mode, outcome).Inc()
	requestDuration.WithLabelValues(m.mode).Observe(time.Since(m.startTime).Seconds())
}

// StageTimer starts timing a pipeline stage. The returned function records
// the latency and, when kind is non-empty, a stage failure.
func StageTimer(stage string) func(kind string) {
	start := time.Now()
	return func(kind string) {
		stageLatency.WithLabelValues(stage).Observe(time.Since(start).Seconds())
		if kind != "" {
			stageErrors.WithLabelValues(stage, kind).Inc()
		}
	}
}

// JobStarted marks a job slot as taken.
func JobStarted() { activeJobs.Inc() }

// JobFinished releases a job slot in the gauge.
func JobFinished() { activeJobs.Dec() }

// RecordTranslatorCache records a translator cache event: hit, miss or eviction.
func RecordTranslatorCache(event string) {
	translatorCache.WithLabelValues(event).Inc()
}

// RecordAudioBytes records audio bytes processed
func RecordAudioBytes(direction string, bytes int64) {
	audioBytesProcessed.WithLabelValues(direction).Add(float64(bytes))
}

// UpdateCircuitBreakerState updates circuit breaker state metric
func UpdateCircuitBreakerState(service string, state int) {
	circuitBreakerState.WithLabelValues(service).Set(float64(state))
}

// IncrementCircuitBreakerFailures increments circuit breaker failure counter
func IncrementCircuitBreakerFailures(service string) {
	circuitBreakerFailures.WithLabelValues(service).Inc()
}
