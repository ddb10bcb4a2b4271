// Package audio turns uploads into the canonical MP3 stream the recognizers
// consume, and muxes finished subtitles back into video containers.
package audio

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/Thompson6626/SRT-Transcriber/internal/apperr"
	"github.com/Thompson6626/SRT-Transcriber/internal/media"
	"github.com/Thompson6626/SRT-Transcriber/internal/observability"
)

const (
	// DefaultBinary is the encoder looked up on PATH when none is configured.
	DefaultBinary = "ffmpeg"
	// DefaultBitrate is the canonical MP3 bitrate.
	DefaultBitrate = "192k"

	canonicalExtension = ".mp3"
)

// commandRunner runs name with args, wiring the given streams. A nil stdin
// leaves the child's stdin empty.
type commandRunner func(ctx context.Context, stdin io.Reader, stdout, stderr io.Writer, name string, args ...string) error

func execRunner(ctx context.Context, stdin io.Reader, stdout, stderr io.Writer, name string, args ...string) error {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdin = stdin
	cmd.Stdout = stdout
	cmd.Stderr = stderr
	// Give ffmpeg a moment to exit on its own once the context is cancelled.
	cmd.WaitDelay = 5 * time.Second
	return cmd.Run()
}

// Normalizer converts uploads to MP3 with an external ffmpeg process.
type Normalizer struct {
	binary  string
	bitrate string
	run     commandRunner
}

// NewNormalizer builds a normalizer. Empty values fall back to the defaults.
func NewNormalizer(binary, bitrate string) *Normalizer {
	if strings.TrimSpace(binary) == "" {
		binary = DefaultBinary
	}
	if strings.TrimSpace(bitrate) == "" {
		bitrate = DefaultBitrate
	}
	return &Normalizer{binary: binary, bitrate: bitrate, run: execRunner}
}

// WithCommandRunner overrides the process runner. Tests use it to stand in
// for ffmpeg.
func (n *Normalizer) WithCommandRunner(r commandRunner) {
	if r == nil {
		n.run = execRunner
		return
	}
	n.run = r
}

// Binary returns the configured encoder binary.
func (n *Normalizer) Binary() string {
	return n.binary
}

// Check reports whether the encoder binary can be resolved.
func (n *Normalizer) Check(ctx context.Context) (bool, error) {
	if _, err := exec.LookPath(n.binary); err != nil {
		return false, fmt.Errorf("%s not found: %w", n.binary, err)
	}
	return true, nil
}

// Normalize returns canonical MP3 bytes for the upload. MP3 uploads are
// returned unchanged; anything else is transcoded through ffmpeg using
// stdin and stdout only.
func (n *Normalizer) Normalize(ctx context.Context, upload media.Upload) ([]byte, error) {
	const op = "normalize"
	logger := observability.LoggerFromContext(ctx)

	observability.RecordAudioBytes("in", int64(len(upload.Content)))

	if upload.Extension() == canonicalExtension {
		logger.Debug().
			Str("file", upload.Filename).
			Str("size", humanize.Bytes(uint64(len(upload.Content)))).
			Msg("Upload already MP3, skipping conversion")
		observability.RecordAudioBytes("out", int64(len(upload.Content)))
		return upload.Content, nil
	}

	args := []string{
		"-hide_banner",
		"-loglevel", "error",
		"-i", "pipe:0",
		"-vn",
		"-map", "0:a:0",
		"-acodec", "libmp3lame",
		"-b:a", n.bitrate,
		"-f", "mp3",
		"pipe:1",
	}

	var stdout, stderr bytes.Buffer
	start := time.Now()
	err := n.run(ctx, bytes.NewReader(upload.Content), &stdout, &stderr, n.binary, args...)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		detail := strings.TrimSpace(stderr.String())
		if detail == "" {
			detail = err.Error()
		}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			detail = fmt.Sprintf("exit status %d: %s", exitErr.ExitCode(), detail)
		}
		logger.Warn().
			Str("file", upload.Filename).
			Str("stderr", detail).
			Msg("Audio conversion failed")
		return nil, &apperr.Error{Kind: apperr.KindConversion, Op: op, Detail: detail, Err: err}
	}
	if stdout.Len() == 0 {
		return nil, apperr.New(apperr.KindConversion, "", op, "encoder produced no audio for %s", upload.Filename)
	}

	logger.Info().
		Str("file", upload.Filename).
		Str("input_size", humanize.Bytes(uint64(len(upload.Content)))).
		Str("output_size", humanize.Bytes(uint64(stdout.Len()))).
		Dur("elapsed", time.Since(start)).
		Msg("Audio converted to MP3")

	observability.RecordAudioBytes("out", int64(stdout.Len()))
	return stdout.Bytes(), nil
}
