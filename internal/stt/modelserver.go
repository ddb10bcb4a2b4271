package stt

import (
	"context"

	"github.com/Thompson6626/SRT-Transcriber/internal/modelserver"
)

// ModelServerRecognizer runs faster-whisper on the model server sidecar.
type ModelServerRecognizer struct {
	client *modelserver.Client
	model  string
}

// NewModelServerRecognizer creates a recognizer backed by the sidecar.
func NewModelServerRecognizer(client *modelserver.Client, model string) *ModelServerRecognizer {
	return &ModelServerRecognizer{client: client, model: model}
}

// Name implements Recognizer.
func (r *ModelServerRecognizer) Name() string {
	return "modelserver"
}

// Recognize implements Recognizer.
func (r *ModelServerRecognizer) Recognize(ctx context.Context, audioPath string, opts Options) ([]Segment, error) {
	raw, err := r.client.Recognize(ctx, modelserver.RecognizeRequest{
		AudioPath:      audioPath,
		Language:       opts.Language,
		Model:          r.model,
		BeamSize:       opts.BeamSize,
		WordTimestamps: opts.WordTimestamps,
	})
	if err != nil {
		return nil, err
	}

	segments := make([]Segment, 0, len(raw))
	for _, s := range raw {
		segments = append(segments, Segment{Start: s.Start, End: s.End, Text: s.Text})
	}
	return sanitize(segments), nil
}
