// Package modelserver talks to the inference sidecar that hosts the speech
// recognition, romanization and translation models.
//
// The sidecar exposes the subtitler.v1.ModelServer service. Requests and
// responses are google.protobuf.Struct messages so both sides can evolve the
// payload without regenerating stubs:
//
//	Recognize   {audio_path, language, model, beam_size, word_timestamps} -> {language, segments: [{start, end, text}]}
//	Romanize    {text}                                                    -> {text}
//	LoadModel   {model}                                                   -> {}
//	Translate   {model, text}                                             -> {text}
//	UnloadModel {model}                                                   -> {}
//
// Audio is passed by path; the sidecar mounts the same temp directory.
package modelserver

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"sync"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/keepalive"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/Thompson6626/SRT-Transcriber/internal/config"
	"github.com/Thompson6626/SRT-Transcriber/internal/observability"
	"github.com/Thompson6626/SRT-Transcriber/internal/resilience"
)

// ServiceName is the fully qualified gRPC service name of the sidecar.
const ServiceName = "subtitler.v1.ModelServer"

const breakerName = "modelserver"

// Segment is a recognized span as reported by the sidecar.
type Segment struct {
	Start float64
	End   float64
	Text  string
}

// RecognizeRequest describes one recognition call.
type RecognizeRequest struct {
	AudioPath      string
	Language       string
	Model          string
	BeamSize       int
	WordTimestamps bool
}

// Client manages the gRPC connection to the model server
type Client struct {
	config         *config.Config
	conn           *grpc.ClientConn
	health         healthpb.HealthClient
	timeout        time.Duration
	retryConfig    *resilience.RetryConfig
	circuitBreaker *resilience.CircuitBreaker

	mu     sync.Mutex
	closed bool
}

// NewClient creates a model server client. The connection is established
// lazily on the first call; use WaitReady to block until the sidecar answers.
func NewClient(cfg *config.Config, extra ...grpc.DialOption) (*Client, error) {
	var opts []grpc.DialOption

	if cfg.ModelServerTLSEnabled {
		opts = append(opts, grpc.WithTransportCredentials(credentials.NewTLS(&tls.Config{MinVersion: tls.VersionTLS12})))
	} else {
		opts = append(opts, grpc.WithTransportCredentials(insecure.NewCredentials()))
	}

	// Keepalive settings for long-lived connections
	opts = append(opts, grpc.WithKeepaliveParams(keepalive.ClientParameters{
		Time:                30 * time.Second,
		Timeout:             10 * time.Second,
		PermitWithoutStream: true,
	}))
	opts = append(opts, extra...)

	conn, err := grpc.NewClient(cfg.ModelServerURL, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create model server client for %s: %w", cfg.ModelServerURL, err)
	}

	breaker := resilience.NewCircuitBreaker(
		breakerName,
		cfg.CircuitBreakerMaxFailures,
		time.Duration(cfg.CircuitBreakerResetTimeout)*time.Second,
	)
	breaker.OnStateChange = func(name string, state resilience.CircuitState) {
		observability.UpdateCircuitBreakerState(name, int(state))
		logger := observability.GetLogger()
		logger.Warn().
			Str("service", name).
			Str("state", state.String()).
			Msg("Circuit breaker state changed")
	}

	timeout := time.Duration(cfg.ModelServerTimeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Minute
	}

	return &Client{
		config:  cfg,
		conn:    conn,
		health:  healthpb.NewHealthClient(conn),
		timeout: timeout,
		retryConfig: &resilience.RetryConfig{
			MaxAttempts:       cfg.RetryMaxAttempts,
			InitialBackoff:    time.Duration(cfg.RetryInitialBackoff) * time.Millisecond,
			MaxBackoff:        5 * time.Second,
			BackoffMultiplier: 2.0,
		},
		circuitBreaker: breaker,
	}, nil
}

// Recognize transcribes an audio file visible to the sidecar.
func (c *Client) Recognize(ctx context.Context, req RecognizeRequest) ([]Segment, error) {
	payload := map[string]any{
		"audio_path":      req.AudioPath,
		"language":        req.Language,
		"model":           req.Model,
		"beam_size":       req.BeamSize,
		"word_timestamps": req.WordTimestamps,
	}

	resp, err := c.invoke(ctx, "Recognize", payload)
	if err != nil {
		return nil, err
	}

	values := resp.GetFields()["segments"].GetListValue().GetValues()
	segments := make([]Segment, 0, len(values))
	for i, v := range values {
		fields := v.GetStructValue().GetFields()
		if fields == nil {
			return nil, fmt.Errorf("model server returned malformed segment %d", i)
		}
		segments = append(segments, Segment{
			Start: fields["start"].GetNumberValue(),
			End:   fields["end"].GetNumberValue(),
			Text:  fields["text"].GetStringValue(),
		})
	}
	return segments, nil
}

// Romanize converts Japanese text to Hepburn romaji on the sidecar.
func (c *Client) Romanize(ctx context.Context, text string) (string, error) {
	resp, err := c.invoke(ctx, "Romanize", map[string]any{"text": text})
	if err != nil {
		return "", err
	}
	return stringField(resp, "text")
}

// LoadModel asks the sidecar to load a translation model into memory.
func (c *Client) LoadModel(ctx context.Context, model string) error {
	_, err := c.invoke(ctx, "LoadModel", map[string]any{"model": model})
	return err
}

// Translate runs text through a loaded translation model.
func (c *Client) Translate(ctx context.Context, model, text string) (string, error) {
	resp, err := c.invoke(ctx, "Translate", map[string]any{"model": model, "text": text})
	if err != nil {
		return "", err
	}
	return stringField(resp, "text")
}

// UnloadModel releases a translation model on the sidecar.
func (c *Client) UnloadModel(ctx context.Context, model string) error {
	_, err := c.invoke(ctx, "UnloadModel", map[string]any{"model": model})
	return err
}

// HealthCheck checks if the model server is serving
func (c *Client) HealthCheck(ctx context.Context) (bool, error) {
	if c.isClosed() {
		return false, errors.New("model server client is closed")
	}
	resp, err := c.health.Check(ctx, &healthpb.HealthCheckRequest{Service: ServiceName})
	if err != nil {
		return false, fmt.Errorf("health check failed: %w", err)
	}
	if resp.GetStatus() != healthpb.HealthCheckResponse_SERVING {
		return false, fmt.Errorf("model server status %s", resp.GetStatus())
	}
	return true, nil
}

// WaitReady blocks until the sidecar reports SERVING or the reconnect budget
// is spent.
func (c *Client) WaitReady(ctx context.Context) error {
	cfg := &resilience.ReconnectConfig{
		MaxAttempts: c.config.ReconnectMaxAttempts,
		Backoff:     time.Duration(c.config.ReconnectBackoff) * time.Millisecond,
		Multiplier:  2.0,
		MaxBackoff:  30 * time.Second,
	}
	return resilience.Reconnect(ctx, breakerName, func() error {
		probeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		_, err := c.HealthCheck(probeCtx)
		return err
	}, cfg)
}

// Close closes the gRPC connection
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true
	return c.conn.Close()
}

func (c *Client) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *Client) invoke(ctx context.Context, method string, payload map[string]any) (*structpb.Struct, error) {
	if c.isClosed() {
		return nil, errors.New("model server client is closed")
	}

	req, err := structpb.NewStruct(payload)
	if err != nil {
		return nil, fmt.Errorf("encode %s request: %w", method, err)
	}

	fullMethod := "/" + ServiceName + "/" + method
	resp := &structpb.Struct{}

	err = c.circuitBreaker.Call(func() error {
		return resilience.Retry(ctx, func() error {
			callCtx, cancel := context.WithTimeout(ctx, c.timeout)
			defer cancel()
			return c.conn.Invoke(callCtx, fullMethod, req, resp)
		}, c.retryConfig, isRetryable)
	}, isServerFault)

	if err != nil {
		if isServerFault(err) && !errors.Is(err, resilience.ErrCircuitOpen) {
			observability.IncrementCircuitBreakerFailures(breakerName)
		}
		return nil, fmt.Errorf("model server %s: %w", method, err)
	}
	return resp, nil
}

func stringField(s *structpb.Struct, name string) (string, error) {
	v, ok := s.GetFields()[name]
	if !ok {
		return "", fmt.Errorf("model server response missing %q", name)
	}
	return v.GetStringValue(), nil
}

// isRetryable reports connection-level failures that are worth another attempt.
func isRetryable(err error) bool {
	switch status.Code(err) {
	case codes.Unavailable, codes.ResourceExhausted:
		return true
	}
	return false
}

// isServerFault reports failures that count against the circuit breaker.
// Rejections of the request itself say nothing about the sidecar's health.
func isServerFault(err error) bool {
	if errors.Is(err, context.Canceled) {
		return false
	}
	switch status.Code(err) {
	case codes.InvalidArgument, codes.NotFound, codes.FailedPrecondition,
		codes.OutOfRange, codes.Unimplemented, codes.Canceled, codes.AlreadyExists:
		return false
	}
	return true
}
