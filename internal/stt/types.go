package stt

import (
	"context"
	"strings"
)

// Segment is one timed span of recognized speech.
type Segment struct {
	// Start is the start of the span in seconds
	Start float64

	// End is the end of the span in seconds, never before Start
	End float64

	// Text is the spoken text for the span
	Text string
}

// WithText returns a copy of s carrying text. Timing is unchanged.
func (s Segment) WithText(text string) Segment {
	s.Text = text
	return s
}

// TrimmedText returns the segment text without surrounding whitespace.
func (s Segment) TrimmedText() string {
	return strings.TrimSpace(s.Text)
}

// Options tune a recognition request. Backends ignore what they cannot honor.
type Options struct {
	// Language is the spoken language code, e.g. "ja"; empty lets the engine detect it
	Language string

	// BeamSize is the decoder beam width
	BeamSize int

	// WordTimestamps requests word level timing from engines that support it
	WordTimestamps bool
}

// DefaultOptions returns the options used by the transcription pipeline.
func DefaultOptions(language string) Options {
	return Options{
		Language:       language,
		BeamSize:       5,
		WordTimestamps: true,
	}
}

// Recognizer turns an audio file on disk into ordered segments.
type Recognizer interface {
	// Recognize transcribes the file at audioPath
	Recognize(ctx context.Context, audioPath string, opts Options) ([]Segment, error)

	// Name identifies the backend in logs and metrics
	Name() string
}

// RecognizerFunc adapts a function to the Recognizer interface.
type RecognizerFunc func(ctx context.Context, audioPath string, opts Options) ([]Segment, error)

// Recognize calls f.
func (f RecognizerFunc) Recognize(ctx context.Context, audioPath string, opts Options) ([]Segment, error) {
	return f(ctx, audioPath, opts)
}

// Name implements Recognizer.
func (f RecognizerFunc) Name() string {
	return "func"
}

// sanitize clamps timings so Start >= 0 and End >= Start, keeping order.
func sanitize(segments []Segment) []Segment {
	out := make([]Segment, 0, len(segments))
	for _, s := range segments {
		if s.Start < 0 {
			s.Start = 0
		}
		if s.End < s.Start {
			s.End = s.Start
		}
		out = append(out, s)
	}
	return out
}
