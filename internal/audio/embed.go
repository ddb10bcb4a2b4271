package audio

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/Thompson6626/SRT-Transcriber/internal/apperr"
	"github.com/Thompson6626/SRT-Transcriber/internal/observability"
)

// EmbedOptions describe the subtitle track added by Embed.
type EmbedOptions struct {
	// Language is the ISO 639 tag written on the subtitle stream, e.g. "jpn"
	Language string
	// Title names the subtitle stream in players
	Title string
	// Default marks the subtitle stream as selected by default
	Default bool
}

// Embed muxes the subtitle file into a Matroska container at output. Audio
// and video streams are copied without re-encoding.
func (n *Normalizer) Embed(ctx context.Context, video, subtitles, output string, opts EmbedOptions) error {
	const op = "embed"

	for _, p := range []string{video, subtitles} {
		if _, err := os.Stat(p); err != nil {
			return apperr.Wrap(apperr.KindInvalidRequest, "", op, err)
		}
	}

	args := []string{
		"-hide_banner",
		"-loglevel", "error",
		"-y",
		"-i", video,
		"-i", subtitles,
		"-map", "0",
		"-map", "1:0",
		"-c", "copy",
		"-c:s", "srt",
	}
	if opts.Language != "" {
		args = append(args, "-metadata:s:s:0", "language="+opts.Language)
	}
	if opts.Title != "" {
		args = append(args, "-metadata:s:s:0", "title="+opts.Title)
	}
	if opts.Default {
		args = append(args, "-disposition:s:0", "default")
	}
	args = append(args, "-f", "matroska", output)

	var stderr bytes.Buffer
	if err := n.run(ctx, nil, nil, &stderr, n.binary, args...); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		_ = os.Remove(output)
		detail := strings.TrimSpace(stderr.String())
		if detail == "" {
			detail = err.Error()
		}
		return &apperr.Error{Kind: apperr.KindConversion, Op: op, Detail: fmt.Sprintf("mux %s: %s", video, detail), Err: err}
	}

	logger := observability.LoggerFromContext(ctx)
	logger.Info().
		Str("video", video).
		Str("subtitles", subtitles).
		Str("output", output).
		Msg("Subtitles embedded")
	return nil
}
