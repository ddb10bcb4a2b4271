package stt

import (
	"context"
	"errors"
	"fmt"
	"time"

	restapi "github.com/deepgram/deepgram-go-sdk/v3/pkg/api/listen/v1/rest"
	restinterfaces "github.com/deepgram/deepgram-go-sdk/v3/pkg/api/listen/v1/rest/interfaces"
	interfaces "github.com/deepgram/deepgram-go-sdk/v3/pkg/client/interfaces"
	listenClient "github.com/deepgram/deepgram-go-sdk/v3/pkg/client/listen"

	"github.com/Thompson6626/SRT-Transcriber/internal/config"
	"github.com/Thompson6626/SRT-Transcriber/internal/observability"
	"github.com/Thompson6626/SRT-Transcriber/internal/resilience"
)

// prerecordedAPI is the part of the Deepgram REST client we use.
type prerecordedAPI interface {
	FromFile(ctx context.Context, file string, options *interfaces.PreRecordedTranscriptionOptions) (*restinterfaces.PreRecordedResponse, error)
}

// DeepgramRecognizer transcribes files with Deepgram's prerecorded API.
type DeepgramRecognizer struct {
	api            prerecordedAPI
	model          string
	circuitBreaker *resilience.CircuitBreaker
}

// NewDeepgramRecognizer creates a Deepgram prerecorded client
func NewDeepgramRecognizer(cfg *config.Config) *DeepgramRecognizer {
	client := listenClient.NewREST(cfg.DeepgramAPIKey, &interfaces.ClientOptions{})
	return newDeepgramRecognizer(restapi.New(client), cfg)
}

func newDeepgramRecognizer(api prerecordedAPI, cfg *config.Config) *DeepgramRecognizer {
	return &DeepgramRecognizer{
		api:            api,
		model:          cfg.DeepgramModel,
		circuitBreaker: newBreaker("deepgram", cfg),
	}
}

// Name implements Recognizer.
func (d *DeepgramRecognizer) Name() string {
	return "deepgram"
}

// Recognize implements Recognizer. Utterances are used as segments since they
// carry sentence-level timing.
func (d *DeepgramRecognizer) Recognize(ctx context.Context, audioPath string, opts Options) ([]Segment, error) {
	options := &interfaces.PreRecordedTranscriptionOptions{
		Model:      d.model,
		Language:   opts.Language,
		Punctuate:  true,
		Utterances: true,
	}

	var res *restinterfaces.PreRecordedResponse
	err := d.circuitBreaker.Call(func() error {
		var callErr error
		res, callErr = d.api.FromFile(ctx, audioPath, options)
		return callErr
	}, countsAgainstBreaker)
	recordBreakerFailure("deepgram", err)
	if err != nil {
		return nil, fmt.Errorf("deepgram transcription failed: %w", err)
	}
	if res == nil || res.Results == nil {
		return nil, nil
	}

	segments := make([]Segment, 0, len(res.Results.Utterances))
	for _, u := range res.Results.Utterances {
		segments = append(segments, Segment{Start: u.Start, End: u.End, Text: u.Transcript})
	}
	return sanitize(segments), nil
}

// newBreaker builds a circuit breaker that reports its state to Prometheus.
func newBreaker(name string, cfg *config.Config) *resilience.CircuitBreaker {
	cb := resilience.NewCircuitBreaker(
		name,
		cfg.CircuitBreakerMaxFailures,
		time.Duration(cfg.CircuitBreakerResetTimeout)*time.Second,
	)
	cb.OnStateChange = func(name string, state resilience.CircuitState) {
		observability.UpdateCircuitBreakerState(name, int(state))
	}
	return cb
}

func recordBreakerFailure(name string, err error) {
	if err != nil && countsAgainstBreaker(err) && !errors.Is(err, resilience.ErrCircuitOpen) {
		observability.IncrementCircuitBreakerFailures(name)
	}
}

// countsAgainstBreaker ignores cancellations, which say nothing about the
// remote service.
func countsAgainstBreaker(err error) bool {
	return !isContextError(err)
}
