package transcription

import (
	"context"
	"fmt"
	"time"

	"github.com/Thompson6626/SRT-Transcriber/internal/apperr"
	"github.com/Thompson6626/SRT-Transcriber/internal/media"
	"github.com/Thompson6626/SRT-Transcriber/internal/observability"
	"github.com/Thompson6626/SRT-Transcriber/internal/srt"
)

// Normalizer turns an upload into MP3 bytes.
type Normalizer interface {
	Normalize(ctx context.Context, upload media.Upload) ([]byte, error)
}

// Request is one subtitle job as received from a caller.
type Request struct {
	Mode       Mode
	Upload     media.Upload
	SourceLang string
	TargetLang string
}

// Result describes a written artifact. Content holds the bytes this request
// published; the file at Path may since have been replaced by a later job
// with the same stem.
type Result struct {
	Path     string
	Filename string
	Content  []byte
	Elapsed  time.Duration
}

// Pipeline validates and normalizes uploads before handing them to the
// service.
type Pipeline struct {
	service    *Service
	normalizer Normalizer
}

// NewPipeline wires a pipeline.
func NewPipeline(service *Service, normalizer Normalizer) *Pipeline {
	return &Pipeline{service: service, normalizer: normalizer}
}

// Service returns the underlying service.
func (p *Pipeline) Service() *Service {
	return p.service
}

// Process runs req end to end and returns the artifact location.
func (p *Pipeline) Process(ctx context.Context, req Request) (Result, error) {
	start := time.Now()
	metrics := observability.NewRequestMetrics(string(req.Mode))

	res, err := p.process(ctx, req)
	if err != nil {
		metrics.RecordEnd(string(apperr.KindOf(err)))
		return Result{}, err
	}
	metrics.RecordEnd("")
	res.Elapsed = time.Since(start)
	return res, nil
}

func (p *Pipeline) process(ctx context.Context, req Request) (Result, error) {
	switch req.Mode {
	case ModeDirect, ModeRomanized, ModeTranslated:
	default:
		return Result{}, apperr.New(apperr.KindInvalidRequest, "", "process", "unknown mode %q", req.Mode)
	}

	done := observability.StageTimer(observability.StageValidate)
	if err := media.Validate(req.Upload); err != nil {
		done(string(apperr.KindOf(err)))
		return Result{}, err
	}
	done("")

	// Reject the pair before paying for conversion.
	if req.Mode == ModeTranslated {
		if err := p.service.CheckPair(req.SourceLang, req.TargetLang); err != nil {
			return Result{}, err
		}
	}

	done = observability.StageTimer(observability.StageNormalize)
	audio, err := p.normalizer.Normalize(ctx, req.Upload)
	if err != nil {
		done(string(apperr.KindOf(err)))
		return Result{}, err
	}
	done("")

	a, err := p.service.transcribe(ctx, req.Mode, audio, req.Upload.Filename, req.SourceLang, req.TargetLang)
	if err != nil {
		return Result{}, err
	}
	return Result{
		Path:     a.path,
		Filename: media.Stem(req.Upload.Filename) + srt.Extension,
		Content:  a.content,
	}, nil
}

// ParseMode maps a CLI or route name to a Mode.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModeDirect, ModeRomanized, ModeTranslated:
		return Mode(s), nil
	case "romanized":
		return ModeRomanized, nil
	}
	return "", fmt.Errorf("unknown mode %q (want direct, romaji or translated)", s)
}
