package stt

import (
	"fmt"

	"github.com/sashabaranov/go-openai"

	"github.com/Thompson6626/SRT-Transcriber/internal/config"
	"github.com/Thompson6626/SRT-Transcriber/internal/modelserver"
)

// NewRecognizer builds the recognizer selected by RECOGNIZER_BACKEND. The
// model server and OpenAI clients are shared with the other collaborators and
// may be nil when the backend does not need them.
func NewRecognizer(cfg *config.Config, ms *modelserver.Client, oa *openai.Client) (Recognizer, error) {
	switch cfg.RecognizerBackend {
	case config.BackendModelServer:
		if ms == nil {
			return nil, fmt.Errorf("recognizer backend %q needs a model server client", cfg.RecognizerBackend)
		}
		return NewModelServerRecognizer(ms, cfg.RecognizerModel), nil
	case config.BackendDeepgram:
		return NewDeepgramRecognizer(cfg), nil
	case config.BackendOpenAI:
		if oa == nil {
			oa = NewOpenAIClient(cfg)
		}
		return NewOpenAIRecognizer(oa, cfg), nil
	default:
		return nil, fmt.Errorf("unsupported recognizer backend %q", cfg.RecognizerBackend)
	}
}
