// Package transcription runs the subtitle pipeline: it spills normalized
// audio to a scoped temp file, recognizes speech, applies the requested text
// transform to every segment and writes the SRT artifact.
package transcription

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"

	"github.com/Thompson6626/SRT-Transcriber/internal/apperr"
	"github.com/Thompson6626/SRT-Transcriber/internal/media"
	"github.com/Thompson6626/SRT-Transcriber/internal/observability"
	"github.com/Thompson6626/SRT-Transcriber/internal/romaji"
	"github.com/Thompson6626/SRT-Transcriber/internal/srt"
	"github.com/Thompson6626/SRT-Transcriber/internal/stt"
)

// Mode selects the text transform applied to recognized segments.
type Mode string

const (
	ModeDirect     Mode = "direct"
	ModeRomanized  Mode = "romaji"
	ModeTranslated Mode = "translated"
)

// DefaultRomanizedLanguage is assumed when a romanized request names no
// source language.
const DefaultRomanizedLanguage = "ja"

// Translator translates single segments.
type Translator interface {
	Translate(ctx context.Context, text, src, dst string) (string, error)
	Supports(src, dst string) bool
}

// Deps are the long-lived collaborators of the service.
type Deps struct {
	Recognizer stt.Recognizer
	Romanizer  romaji.Romanizer
	Translator Translator

	OutputDir         string
	TempDir           string
	MaxConcurrentJobs int
}

// Service orchestrates recognition, transform and serialization.
type Service struct {
	recognizer stt.Recognizer
	romanizer  romaji.Romanizer
	translator Translator
	outputDir  string
	tempDir    string
	jobs       *semaphore.Weighted
}

// NewService validates deps and builds a service.
func NewService(deps Deps) (*Service, error) {
	if deps.Recognizer == nil {
		return nil, errors.New("transcription: recognizer is required")
	}
	if strings.TrimSpace(deps.OutputDir) == "" {
		return nil, errors.New("transcription: output dir is required")
	}
	jobs := deps.MaxConcurrentJobs
	if jobs < 1 {
		jobs = 1
	}
	return &Service{
		recognizer: deps.Recognizer,
		romanizer:  deps.Romanizer,
		translator: deps.Translator,
		outputDir:  deps.OutputDir,
		tempDir:    deps.TempDir,
		jobs:       semaphore.NewWeighted(int64(jobs)),
	}, nil
}

// OutputDir returns the artifact directory.
func (s *Service) OutputDir() string {
	return s.outputDir
}

// transformFunc rewrites one segment's trimmed text. A nil transformFunc
// leaves text as recognized.
type transformFunc func(ctx context.Context, text string) (string, error)

// artifact is one published subtitle file and the exact bytes written to it.
type artifact struct {
	path    string
	content []byte
}

// TranscribeDirect writes the recognized text as is.
func (s *Service) TranscribeDirect(ctx context.Context, audio []byte, name, sourceLang string) (string, error) {
	a, err := s.transcribe(ctx, ModeDirect, audio, name, sourceLang, "")
	return a.path, err
}

// TranscribeRomanized writes recognized text converted to romaji.
func (s *Service) TranscribeRomanized(ctx context.Context, audio []byte, name, sourceLang string) (string, error) {
	a, err := s.transcribe(ctx, ModeRomanized, audio, name, sourceLang, "")
	return a.path, err
}

// TranscribeTranslated writes recognized text translated to destLang. The
// pair is checked before any recognition work starts.
func (s *Service) TranscribeTranslated(ctx context.Context, audio []byte, name, sourceLang, destLang string) (string, error) {
	a, err := s.transcribe(ctx, ModeTranslated, audio, name, sourceLang, destLang)
	return a.path, err
}

func (s *Service) transcribe(ctx context.Context, mode Mode, audio []byte, name, sourceLang, destLang string) (artifact, error) {
	switch mode {
	case ModeDirect:
		return s.run(ctx, ModeDirect, audio, name, sourceLang, nil)

	case ModeRomanized:
		if s.romanizer == nil {
			return artifact{}, errors.New("transcription: no romanizer configured")
		}
		if sourceLang == "" {
			sourceLang = DefaultRomanizedLanguage
		}
		romanize := func(ctx context.Context, text string) (string, error) {
			out, err := s.romanizer.Romanize(ctx, text)
			if err != nil {
				return "", apperr.Wrap(apperr.KindTransform, apperr.ReasonRomanizationFailure, "romanize", err)
			}
			return out, nil
		}
		return s.run(ctx, ModeRomanized, audio, name, sourceLang, romanize)

	case ModeTranslated:
		if err := s.CheckPair(sourceLang, destLang); err != nil {
			return artifact{}, err
		}
		translate := func(ctx context.Context, text string) (string, error) {
			out, err := s.translator.Translate(ctx, text, sourceLang, destLang)
			if err != nil {
				return "", apperr.Wrap(apperr.KindTransform, apperr.ReasonTranslationFailure, "translate", err)
			}
			return out, nil
		}
		return s.run(ctx, ModeTranslated, audio, name, sourceLang, translate)
	}
	return artifact{}, apperr.New(apperr.KindInvalidRequest, "", "transcribe", "unknown mode %q", mode)
}

// CheckPair reports UnsupportedLanguagePair unless src-dst can be translated.
func (s *Service) CheckPair(src, dst string) error {
	if s.translator == nil {
		return errors.New("transcription: no translator configured")
	}
	if !s.translator.Supports(src, dst) {
		return apperr.New(apperr.KindUnsupportedLanguagePair, "", "translate",
			"translation from %q to %q is not supported", src, dst)
	}
	return nil
}

func (s *Service) run(ctx context.Context, mode Mode, audio []byte, name, lang string, transform transformFunc) (artifact, error) {
	logger := observability.LoggerFromContext(ctx).With().
		Str("mode", string(mode)).
		Str("file", name).
		Str("language", lang).
		Logger()

	if err := s.jobs.Acquire(ctx, 1); err != nil {
		return artifact{}, err
	}
	defer s.jobs.Release(1)
	observability.JobStarted()
	defer observability.JobFinished()

	audioPath, release, err := s.spill(audio, logger)
	if err != nil {
		return artifact{}, err
	}
	defer release()

	segments, err := s.recognize(ctx, audioPath, lang, logger)
	if err != nil {
		return artifact{}, err
	}

	if err := ctx.Err(); err != nil {
		return artifact{}, err
	}
	segments, err = s.transform(ctx, segments, transform)
	if err != nil {
		logger.Error().Err(err).Msg("Segment transform failed")
		return artifact{}, err
	}

	if err := ctx.Err(); err != nil {
		return artifact{}, err
	}
	done := observability.StageTimer(observability.StageSerialize)
	content := []byte(srt.Serialize(segments))
	path, err := srt.Publish(s.outputDir, media.Stem(name), content)
	if err != nil {
		done(string(apperr.KindOf(err)))
		logger.Error().Err(err).Msg("Failed to write subtitles")
		return artifact{}, err
	}
	done("")

	logger.Info().
		Str("artifact", path).
		Int("cues", len(segments)).
		Msg("Subtitles written")
	return artifact{path: path, content: content}, nil
}

// spill writes audio to a temp file. The returned release removes it and is
// safe to call when the file is already gone.
func (s *Service) spill(audio []byte, logger zerolog.Logger) (string, func(), error) {
	f, err := os.CreateTemp(s.tempDir, "srt-audio-*.mp3")
	if err != nil {
		return "", nil, fmt.Errorf("create temp audio file: %w", err)
	}
	path := f.Name()

	release := func() {
		if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			logger.Warn().Err(err).Str("path", path).Msg("Failed to remove temp audio file")
		}
	}

	if _, err := f.Write(audio); err != nil {
		_ = f.Close()
		release()
		return "", nil, fmt.Errorf("write temp audio file: %w", err)
	}
	if err := f.Close(); err != nil {
		release()
		return "", nil, fmt.Errorf("close temp audio file: %w", err)
	}
	return path, release, nil
}

func (s *Service) recognize(ctx context.Context, audioPath, lang string, logger zerolog.Logger) ([]stt.Segment, error) {
	done := observability.StageTimer(observability.StageRecognize)
	start := time.Now()

	segments, err := s.recognizer.Recognize(ctx, audioPath, stt.DefaultOptions(lang))
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			done(string(apperr.KindInternal))
			return nil, ctxErr
		}
		err = apperr.Wrap(apperr.KindRecognition, apperr.ReasonEngineFailure, "recognize", err)
		done(string(apperr.KindOf(err)))
		logger.Error().Err(err).Str("backend", s.recognizer.Name()).Msg("Speech recognition failed")
		return nil, err
	}
	if len(segments) == 0 {
		err := apperr.New(apperr.KindRecognition, apperr.ReasonEmptySegments, "recognize", "no speech was recognized")
		done(string(apperr.KindRecognition))
		logger.Warn().Str("backend", s.recognizer.Name()).Msg("Recognizer returned no segments")
		return nil, err
	}
	done("")

	logger.Info().
		Str("backend", s.recognizer.Name()).
		Int("segments", len(segments)).
		Dur("elapsed", time.Since(start)).
		Msg("Speech recognized")
	return segments, nil
}

// transform applies fn to every segment in order. Each segment is handled on
// its own; the first failure aborts the request.
func (s *Service) transform(ctx context.Context, segments []stt.Segment, fn transformFunc) ([]stt.Segment, error) {
	if fn == nil {
		return segments, nil
	}
	done := observability.StageTimer(observability.StageTransform)

	out := make([]stt.Segment, len(segments))
	for i, seg := range segments {
		if err := ctx.Err(); err != nil {
			done(string(apperr.KindInternal))
			return nil, err
		}
		text, err := fn(ctx, seg.TrimmedText())
		if err != nil {
			done(string(apperr.KindOf(err)))
			return nil, err
		}
		out[i] = seg.WithText(text)
	}
	done("")
	return out, nil
}
