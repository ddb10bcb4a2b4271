package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Recognition, romanization and translation backends.
const (
	BackendModelServer = "modelserver"
	BackendDeepgram    = "deepgram"
	BackendOpenAI      = "openai"
	BackendBuiltin     = "builtin"
)

// Config holds all configuration for the transcription service
type Config struct {
	// Server configuration
	Port           string `envconfig:"PORT" default:"8080"`
	MaxUploadBytes int64  `envconfig:"MAX_UPLOAD_BYTES" default:"536870912"` // 512 MiB
	RequestTimeout int    `envconfig:"REQUEST_TIMEOUT" default:"1800"`       // seconds

	// Pipeline configuration
	OutputDir         string `envconfig:"OUTPUT_DIR" default:"static/transcriptions"`
	TempDir           string `envconfig:"TEMP_DIR" default:""` // empty uses os.TempDir()
	MaxConcurrentJobs int    `envconfig:"MAX_CONCURRENT_JOBS" default:"2"`

	// Audio normalization (ffmpeg)
	FFmpegBinary string `envconfig:"FFMPEG_BINARY" default:"ffmpeg"`
	AudioBitrate string `envconfig:"AUDIO_BITRATE" default:"192k"`

	// Collaborator selection
	RecognizerBackend   string `envconfig:"RECOGNIZER_BACKEND" default:"modelserver"` // modelserver, deepgram, openai
	RomanizerBackend    string `envconfig:"ROMANIZER_BACKEND" default:"builtin"`      // builtin, modelserver
	TranslatorBackend   string `envconfig:"TRANSLATOR_BACKEND" default:"modelserver"` // modelserver, openai
	TranslatorCacheSize int    `envconfig:"TRANSLATOR_CACHE_SIZE" default:"3"`

	// Model server (gRPC sidecar hosting whisper, cutlet and MarianMT)
	ModelServerURL        string `envconfig:"MODEL_SERVER_URL" default:"localhost:50051"`
	ModelServerTLSEnabled bool   `envconfig:"MODEL_SERVER_TLS_ENABLED" default:"false"`
	ModelServerTimeout    int    `envconfig:"MODEL_SERVER_TIMEOUT" default:"600"` // seconds, per call
	ModelServerWaitReady  bool   `envconfig:"MODEL_SERVER_WAIT_READY" default:"false"`
	RecognizerModel       string `envconfig:"RECOGNIZER_MODEL" default:"medium"`

	// Deepgram prerecorded API
	DeepgramAPIKey string `envconfig:"DEEPGRAM_API_KEY" default:""`
	DeepgramModel  string `envconfig:"DEEPGRAM_MODEL" default:"nova-2"`

	// OpenAI API
	OpenAIAPIKey             string `envconfig:"OPENAI_API_KEY" default:""`
	OpenAIBaseURL            string `envconfig:"OPENAI_BASE_URL" default:""`
	OpenAITranscriptionModel string `envconfig:"OPENAI_TRANSCRIPTION_MODEL" default:"whisper-1"`
	OpenAITranslationModel   string `envconfig:"OPENAI_TRANSLATION_MODEL" default:"gpt-4o-mini"`

	// Resilience configuration
	CircuitBreakerMaxFailures  int `envconfig:"CIRCUIT_BREAKER_MAX_FAILURES" default:"5"`   // Failures before opening circuit
	CircuitBreakerResetTimeout int `envconfig:"CIRCUIT_BREAKER_RESET_TIMEOUT" default:"30"` // Seconds before attempting recovery
	RetryMaxAttempts           int `envconfig:"RETRY_MAX_ATTEMPTS" default:"3"`             // Connection-level retries only
	RetryInitialBackoff        int `envconfig:"RETRY_INITIAL_BACKOFF" default:"100"`        // milliseconds
	ReconnectMaxAttempts       int `envconfig:"RECONNECT_MAX_ATTEMPTS" default:"5"`
	ReconnectBackoff           int `envconfig:"RECONNECT_BACKOFF" default:"1000"` // milliseconds

	// Observability configuration
	LogLevel       string `envconfig:"LOG_LEVEL" default:"info"`       // Log level: debug, info, warn, error
	LogPretty      bool   `envconfig:"LOG_PRETTY" default:"false"`     // Pretty print logs (for development)
	MetricsEnabled bool   `envconfig:"METRICS_ENABLED" default:"true"` // Enable Prometheus metrics
}

// Load reads configuration from environment variables
// It first attempts to load from .env file if it exists, then from environment
func Load() (*Config, error) {
	// Try to load .env file (ignore error if it doesn't exist)
	_ = godotenv.Load()

	return LoadFromEnv()
}

// LoadFromEnv loads configuration directly from environment variables
// without attempting to load .env file (useful for containerized deployments)
func LoadFromEnv() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	cfg.normalize()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) normalize() {
	c.RecognizerBackend = strings.ToLower(strings.TrimSpace(c.RecognizerBackend))
	c.RomanizerBackend = strings.ToLower(strings.TrimSpace(c.RomanizerBackend))
	c.TranslatorBackend = strings.ToLower(strings.TrimSpace(c.TranslatorBackend))
	c.LogLevel = strings.ToLower(strings.TrimSpace(c.LogLevel))
}

// Validate checks backend selections and the credentials they need.
func (c *Config) Validate() error {
	switch c.RecognizerBackend {
	case BackendModelServer, BackendOpenAI:
	case BackendDeepgram:
		if c.DeepgramAPIKey == "" {
			return fmt.Errorf("DEEPGRAM_API_KEY is required when RECOGNIZER_BACKEND=deepgram")
		}
	default:
		return fmt.Errorf("unsupported RECOGNIZER_BACKEND %q (supported: modelserver, deepgram, openai)", c.RecognizerBackend)
	}

	switch c.RomanizerBackend {
	case BackendBuiltin, BackendModelServer:
	default:
		return fmt.Errorf("unsupported ROMANIZER_BACKEND %q (supported: builtin, modelserver)", c.RomanizerBackend)
	}

	switch c.TranslatorBackend {
	case BackendModelServer, BackendOpenAI:
	default:
		return fmt.Errorf("unsupported TRANSLATOR_BACKEND %q (supported: modelserver, openai)", c.TranslatorBackend)
	}

	if c.usesOpenAI() && c.OpenAIAPIKey == "" {
		return fmt.Errorf("OPENAI_API_KEY is required when an openai backend is selected")
	}
	if c.TranslatorCacheSize < 1 {
		return fmt.Errorf("TRANSLATOR_CACHE_SIZE must be at least 1")
	}
	if c.MaxConcurrentJobs < 1 {
		return fmt.Errorf("MAX_CONCURRENT_JOBS must be at least 1")
	}
	if strings.TrimSpace(c.OutputDir) == "" {
		return fmt.Errorf("OUTPUT_DIR is required")
	}

	return nil
}

// UsesModelServer reports whether any collaborator is served by the gRPC
// model server.
func (c *Config) UsesModelServer() bool {
	return c.RecognizerBackend == BackendModelServer ||
		c.RomanizerBackend == BackendModelServer ||
		c.TranslatorBackend == BackendModelServer
}

func (c *Config) usesOpenAI() bool {
	return c.RecognizerBackend == BackendOpenAI || c.TranslatorBackend == BackendOpenAI
}

// GetEnv returns the value of an environment variable or a default value
func GetEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
