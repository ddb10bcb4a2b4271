package stt

import (
	"context"
	"errors"
	"fmt"

	"github.com/sashabaranov/go-openai"

	"github.com/Thompson6626/SRT-Transcriber/internal/config"
	"github.com/Thompson6626/SRT-Transcriber/internal/resilience"
)

// audioTranscriber is the part of the OpenAI client we use.
type audioTranscriber interface {
	CreateTranscription(ctx context.Context, request openai.AudioRequest) (openai.AudioResponse, error)
}

// OpenAIRecognizer transcribes files with the OpenAI audio API.
type OpenAIRecognizer struct {
	client         audioTranscriber
	model          string
	circuitBreaker *resilience.CircuitBreaker
}

// NewOpenAIClient builds an API client honoring OPENAI_BASE_URL.
func NewOpenAIClient(cfg *config.Config) *openai.Client {
	clientConfig := openai.DefaultConfig(cfg.OpenAIAPIKey)
	if cfg.OpenAIBaseURL != "" {
		clientConfig.BaseURL = cfg.OpenAIBaseURL
	}
	return openai.NewClientWithConfig(clientConfig)
}

// NewOpenAIRecognizer creates a whisper-backed recognizer.
func NewOpenAIRecognizer(client *openai.Client, cfg *config.Config) *OpenAIRecognizer {
	return newOpenAIRecognizer(client, cfg)
}

func newOpenAIRecognizer(client audioTranscriber, cfg *config.Config) *OpenAIRecognizer {
	model := cfg.OpenAITranscriptionModel
	if model == "" {
		model = openai.Whisper1
	}
	return &OpenAIRecognizer{
		client:         client,
		model:          model,
		circuitBreaker: newBreaker("openai", cfg),
	}
}

// Name implements Recognizer.
func (o *OpenAIRecognizer) Name() string {
	return "openai"
}

// Recognize implements Recognizer using the verbose JSON response, which is
// the only format that carries segment timing.
func (o *OpenAIRecognizer) Recognize(ctx context.Context, audioPath string, opts Options) ([]Segment, error) {
	req := openai.AudioRequest{
		Model:    o.model,
		FilePath: audioPath,
		Language: opts.Language,
		Format:   openai.AudioResponseFormatVerboseJSON,
	}

	var resp openai.AudioResponse
	err := o.circuitBreaker.Call(func() error {
		var callErr error
		resp, callErr = o.client.CreateTranscription(ctx, req)
		return callErr
	}, countsAgainstOpenAIBreaker)
	recordBreakerFailure("openai", err)
	if err != nil {
		return nil, fmt.Errorf("openai transcription failed: %w", err)
	}

	segments := make([]Segment, 0, len(resp.Segments))
	for _, s := range resp.Segments {
		segments = append(segments, Segment{Start: s.Start, End: s.End, Text: s.Text})
	}
	return sanitize(segments), nil
}

// countsAgainstOpenAIBreaker skips client-side rejections (4xx other than
// rate limiting) along with cancellations.
func countsAgainstOpenAIBreaker(err error) bool {
	if isContextError(err) {
		return false
	}
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode == 429 || apiErr.HTTPStatusCode >= 500
	}
	return true
}

func isContextError(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
