// Package romaji converts Japanese transcript text to Latin script.
package romaji

import (
	"context"
	"fmt"
	"sync"

	"github.com/Thompson6626/SRT-Transcriber/internal/config"
	"github.com/Thompson6626/SRT-Transcriber/internal/modelserver"
)

// Romanizer converts text to romaji.
type Romanizer interface {
	Romanize(ctx context.Context, text string) (string, error)
	Name() string
}

// Remote romanizes on the model server, which reads kanji as well as kana.
type Remote struct {
	client *modelserver.Client
}

// NewRemote creates a romanizer backed by the model server.
func NewRemote(client *modelserver.Client) *Remote {
	return &Remote{client: client}
}

// Name implements Romanizer.
func (r *Remote) Name() string {
	return "modelserver"
}

// Romanize implements Romanizer.
func (r *Remote) Romanize(ctx context.Context, text string) (string, error) {
	return r.client.Romanize(ctx, text)
}

// Serialized allows one call at a time into an engine that is not reentrant.
type Serialized struct {
	mu    sync.Mutex
	inner Romanizer
}

// NewSerialized wraps inner.
func NewSerialized(inner Romanizer) *Serialized {
	return &Serialized{inner: inner}
}

// Name implements Romanizer.
func (s *Serialized) Name() string {
	return s.inner.Name()
}

// Romanize implements Romanizer.
func (s *Serialized) Romanize(ctx context.Context, text string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inner.Romanize(ctx, text)
}

// New builds the romanizer selected by ROMANIZER_BACKEND.
func New(cfg *config.Config, ms *modelserver.Client) (Romanizer, error) {
	switch cfg.RomanizerBackend {
	case config.BackendBuiltin, "":
		return NewKana(), nil
	case config.BackendModelServer:
		if ms == nil {
			return nil, fmt.Errorf("romanizer backend %q needs a model server client", cfg.RomanizerBackend)
		}
		// The sidecar runs a single cutlet instance.
		return NewSerialized(NewRemote(ms)), nil
	default:
		return nil, fmt.Errorf("unsupported romanizer backend %q", cfg.RomanizerBackend)
	}
}
