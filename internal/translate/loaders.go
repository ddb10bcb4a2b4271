package translate

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"

	"github.com/Thompson6626/SRT-Transcriber/internal/config"
	"github.com/Thompson6626/SRT-Transcriber/internal/modelserver"
)

// ModelServerLoader loads MarianMT models on the model server sidecar.
type ModelServerLoader struct {
	client *modelserver.Client
}

// NewModelServerLoader creates a loader backed by the sidecar.
func NewModelServerLoader(client *modelserver.Client) *ModelServerLoader {
	return &ModelServerLoader{client: client}
}

// Load implements Loader.
func (l *ModelServerLoader) Load(ctx context.Context, pair Pair, model string) (Model, error) {
	if err := l.client.LoadModel(ctx, model); err != nil {
		return nil, fmt.Errorf("load %s: %w", model, err)
	}
	return &remoteModel{client: l.client, name: model}, nil
}

type remoteModel struct {
	client *modelserver.Client
	name   string
}

func (m *remoteModel) Translate(ctx context.Context, text string) (string, error) {
	return m.client.Translate(ctx, m.name, text)
}

func (m *remoteModel) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return m.client.UnloadModel(ctx, m.name)
}

// chatCompleter is the part of the OpenAI client we use.
type chatCompleter interface {
	CreateChatCompletion(ctx context.Context, request openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// OpenAILoader translates with a chat model. Loading is free; the "model" is
// a prompt bound to one direction.
type OpenAILoader struct {
	client chatCompleter
	model  string
}

// NewOpenAILoader creates a chat-completion backed loader.
func NewOpenAILoader(client *openai.Client, model string) *OpenAILoader {
	return newOpenAILoader(client, model)
}

func newOpenAILoader(client chatCompleter, model string) *OpenAILoader {
	if model == "" {
		model = openai.GPT4oMini
	}
	return &OpenAILoader{client: client, model: model}
}

// Load implements Loader.
func (l *OpenAILoader) Load(ctx context.Context, pair Pair, _ string) (Model, error) {
	prompt := fmt.Sprintf(
		"You translate subtitle lines from %s to %s. Reply with the translation only, "+
			"keeping line breaks, without quotes or commentary.",
		LanguageName(pair.Source), LanguageName(pair.Target))
	return &chatModel{client: l.client, model: l.model, prompt: prompt}, nil
}

type chatModel struct {
	client chatCompleter
	model  string
	prompt string
}

func (m *chatModel) Translate(ctx context.Context, text string) (string, error) {
	resp, err := m.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: m.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: m.prompt},
			{Role: openai.ChatMessageRoleUser, Content: text},
		},
		// Zero is dropped by omitempty, which would mean the API default of 1.
		Temperature: math.SmallestNonzeroFloat32,
	})
	if err != nil {
		return "", fmt.Errorf("openai translation failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("openai translation returned no choices")
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

func (m *chatModel) Close() error {
	return nil
}

// NewLoader builds the loader selected by TRANSLATOR_BACKEND.
func NewLoader(cfg *config.Config, ms *modelserver.Client, oa *openai.Client) (Loader, error) {
	switch cfg.TranslatorBackend {
	case config.BackendModelServer:
		if ms == nil {
			return nil, fmt.Errorf("translator backend %q needs a model server client", cfg.TranslatorBackend)
		}
		return NewModelServerLoader(ms), nil
	case config.BackendOpenAI:
		if oa == nil {
			return nil, fmt.Errorf("translator backend %q needs an openai client", cfg.TranslatorBackend)
		}
		return NewOpenAILoader(oa, cfg.OpenAITranslationModel), nil
	default:
		return nil, fmt.Errorf("unsupported translator backend %q", cfg.TranslatorBackend)
	}
}
