package translate

import (
	"container/list"
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/Thompson6626/SRT-Transcriber/internal/apperr"
	"github.com/Thompson6626/SRT-Transcriber/internal/observability"
)

// DefaultCapacity is the number of models kept loaded.
const DefaultCapacity = 3

// Model translates text in one fixed direction.
type Model interface {
	Translate(ctx context.Context, text string) (string, error)
	Close() error
}

// Loader loads the named model for pair.
type Loader interface {
	Load(ctx context.Context, pair Pair, model string) (Model, error)
}

// LoaderFunc adapts a function to Loader.
type LoaderFunc func(ctx context.Context, pair Pair, model string) (Model, error)

// Load calls f.
func (f LoaderFunc) Load(ctx context.Context, pair Pair, model string) (Model, error) {
	return f(ctx, pair, model)
}

// Translator serves translations from an LRU of loaded models. A model that
// falls out of the cache is closed once the last caller using it is done.
type Translator struct {
	loader   Loader
	registry Registry
	capacity int
	logger   zerolog.Logger

	mu      sync.Mutex
	entries map[Pair]*list.Element
	order   *list.List // front is most recently used
	closed  bool
}

type entry struct {
	pair  Pair
	model Model
	err   error
	ready chan struct{} // closed once the load finished

	// Guarded by Translator.mu.
	refs    int
	evicted bool
}

// NewTranslator creates a translator. A capacity below 1 uses DefaultCapacity.
func NewTranslator(loader Loader, registry Registry, capacity int) *Translator {
	if capacity < 1 {
		capacity = DefaultCapacity
	}
	if registry == nil {
		registry = DefaultRegistry()
	}
	return &Translator{
		loader:   loader,
		registry: registry,
		capacity: capacity,
		logger:   observability.GetLogger().With().Str("component", "translator").Logger(),
		entries:  make(map[Pair]*list.Element),
		order:    list.New(),
	}
}

// Registry returns the pair registry.
func (t *Translator) Registry() Registry {
	return t.registry
}

// Supports reports whether src-dst has a registered model.
func (t *Translator) Supports(src, dst string) bool {
	_, ok := t.registry.Model(Pair{Source: src, Target: dst})
	return ok
}

// Translate translates text from src to dst. Blank text yields "" without
// loading a model.
func (t *Translator) Translate(ctx context.Context, text, src, dst string) (string, error) {
	pair := Pair{Source: src, Target: dst}
	if !t.Supports(src, dst) {
		return "", t.unsupported(pair)
	}
	if strings.TrimSpace(text) == "" {
		return "", nil
	}

	e, err := t.acquire(ctx, pair)
	if err != nil {
		return "", err
	}
	defer t.release(e)

	return e.model.Translate(ctx, text)
}

// Loaded lists the cached pairs, most recently used first.
func (t *Translator) Loaded() []Pair {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]Pair, 0, t.order.Len())
	for el := t.order.Front(); el != nil; el = el.Next() {
		out = append(out, el.Value.(*entry).pair)
	}
	return out
}

// Close evicts every model. Models still in use are closed when released.
func (t *Translator) Close() error {
	t.mu.Lock()
	t.closed = true
	var idle []*entry
	for t.order.Len() > 0 {
		if e := t.removeLocked(t.order.Back()); e.refs == 0 {
			idle = append(idle, e)
		}
	}
	t.mu.Unlock()

	var errs []error
	for _, e := range idle {
		errs = append(errs, t.closeModel(e))
	}
	return errors.Join(errs...)
}

// acquire returns a loaded entry for pair with its reference count raised.
// Concurrent misses for the same pair share one load.
func (t *Translator) acquire(ctx context.Context, pair Pair) (*entry, error) {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil, errors.New("translator is closed")
	}

	if el, ok := t.entries[pair]; ok {
		e := el.Value.(*entry)
		e.refs++
		t.order.MoveToFront(el)
		t.mu.Unlock()
		observability.RecordTranslatorCache("hit")
		return t.await(ctx, e)
	}

	name, ok := t.registry.Model(pair)
	if !ok {
		t.mu.Unlock()
		return nil, t.unsupported(pair)
	}

	e := &entry{pair: pair, refs: 1, ready: make(chan struct{})}
	t.entries[pair] = t.order.PushFront(e)

	var victims []*entry
	for t.order.Len() > t.capacity {
		victim := t.removeLocked(t.order.Back())
		observability.RecordTranslatorCache("eviction")
		if victim.refs == 0 {
			victims = append(victims, victim)
		}
	}
	t.mu.Unlock()

	observability.RecordTranslatorCache("miss")
	for _, v := range victims {
		_ = t.closeModel(v)
	}

	t.logger.Info().Str("pair", pair.Key()).Str("model", name).Msg("Loading translation model")

	// The load is shared with other callers, so it must outlive this one.
	model, err := t.loader.Load(context.WithoutCancel(ctx), pair, name)

	t.mu.Lock()
	if err != nil {
		e.err = err
		if !e.evicted {
			t.removeLocked(t.entries[pair])
		}
	} else {
		e.model = &serialModel{inner: model}
	}
	close(e.ready)
	t.mu.Unlock()

	if err != nil {
		t.logger.Error().Err(err).Str("pair", pair.Key()).Msg("Failed to load translation model")
		t.release(e)
		return nil, err
	}
	return e, nil
}

func (t *Translator) await(ctx context.Context, e *entry) (*entry, error) {
	select {
	case <-e.ready:
	case <-ctx.Done():
		t.release(e)
		return nil, ctx.Err()
	}
	if e.err != nil {
		t.release(e)
		return nil, e.err
	}
	return e, nil
}

func (t *Translator) release(e *entry) {
	t.mu.Lock()
	e.refs--
	closeNow := e.evicted && e.refs == 0 && e.model != nil
	t.mu.Unlock()

	if closeNow {
		_ = t.closeModel(e)
	}
}

// removeLocked drops el from the cache and marks its entry evicted.
func (t *Translator) removeLocked(el *list.Element) *entry {
	e := el.Value.(*entry)
	t.order.Remove(el)
	delete(t.entries, e.pair)
	e.evicted = true
	return e
}

func (t *Translator) closeModel(e *entry) error {
	if e.model == nil {
		return nil
	}
	t.logger.Info().Str("pair", e.pair.Key()).Msg("Unloading translation model")
	if err := e.model.Close(); err != nil {
		t.logger.Warn().Err(err).Str("pair", e.pair.Key()).Msg("Failed to unload translation model")
		return err
	}
	return nil
}

func (t *Translator) unsupported(p Pair) error {
	pairs := t.registry.Pairs()
	keys := make([]string, 0, len(pairs))
	for _, rp := range pairs {
		keys = append(keys, rp.Key())
	}
	return apperr.New(apperr.KindUnsupportedLanguagePair, "", "translate",
		"no model for %s; supported pairs: %s", p.Key(), strings.Join(keys, ", "))
}

// serialModel allows one call at a time into a model instance.
type serialModel struct {
	mu    sync.Mutex
	inner Model
}

func (m *serialModel) Translate(ctx context.Context, text string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.inner.Translate(ctx, text)
}

func (m *serialModel) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.inner.Close()
}
