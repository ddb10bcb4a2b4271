package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/Thompson6626/SRT-Transcriber/internal/app"
	"github.com/Thompson6626/SRT-Transcriber/internal/media"
	"github.com/Thompson6626/SRT-Transcriber/internal/srt"
	"github.com/Thompson6626/SRT-Transcriber/internal/transcription"
	"github.com/Thompson6626/SRT-Transcriber/internal/translate"
)

func newTranscribeCommand(ctx *commandContext) *cobra.Command {
	var modeFlag string
	var lang string
	var target string
	var outDir string

	cmd := &cobra.Command{
		Use:   "transcribe <media-file>",
		Short: "Write an SRT file for a local audio or video file",
		Example: "  subtitler transcribe episode.mkv --mode romaji\n" +
			"  subtitler transcribe talk.mp3 --mode translated --lang es --to en --out ./subs",
		Args: func(cmd *cobra.Command, args []string) error {
			if len(args) != 1 {
				return fmt.Errorf("provide the path to one media file. Example: subtitler transcribe /path/to/video.mkv")
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			mode, err := transcription.ParseMode(modeFlag)
			if err != nil {
				return err
			}
			lang = strings.TrimSpace(lang)
			target = strings.TrimSpace(target)
			if lang != "" && !translate.ValidLanguage(lang) {
				return fmt.Errorf("invalid --lang %q", lang)
			}
			if mode == transcription.ModeTranslated {
				if lang == "" || target == "" {
					return fmt.Errorf("--lang and --to are required with --mode translated")
				}
				if !translate.ValidLanguage(target) {
					return fmt.Errorf("invalid --to %q", target)
				}
			}

			source, _ := filepath.Abs(strings.TrimSpace(args[0]))
			info, err := os.Stat(source)
			if err != nil {
				if os.IsNotExist(err) {
					return fmt.Errorf("source file %q not found", source)
				}
				return fmt.Errorf("stat source: %w", err)
			}
			if info.IsDir() {
				return fmt.Errorf("source path %q is a directory", source)
			}
			// Reject before reading a large file or loading any model.
			if err := media.Validate(media.Upload{Filename: source}); err != nil {
				return err
			}

			cfg, err := ctx.ensureConfig()
			if err != nil {
				return fmt.Errorf("load configuration: %w", err)
			}
			if dir := strings.TrimSpace(outDir); dir != "" {
				cfg.OutputDir = dir
			}

			content, err := os.ReadFile(source)
			if err != nil {
				return fmt.Errorf("read source: %w", err)
			}

			pipeline, err := app.New(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer pipeline.Close()

			res, err := pipeline.Pipeline.Process(cmd.Context(), transcription.Request{
				Mode:       mode,
				Upload:     media.Upload{Filename: filepath.Base(source), Content: content},
				SourceLang: lang,
				TargetLang: target,
			})
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "%s\n  %d cues, %s, %s from %s (%s)\n",
				res.Path,
				srt.CountCues(res.Content),
				humanize.Bytes(uint64(len(res.Content))),
				res.Elapsed.Round(100*time.Millisecond),
				filepath.Base(source),
				humanize.Bytes(uint64(info.Size())),
			)
			return nil
		},
	}

	cmd.Flags().StringVarP(&modeFlag, "mode", "m", string(transcription.ModeDirect), "Output mode: direct, romaji or translated")
	cmd.Flags().StringVarP(&lang, "lang", "l", "", "Spoken language code (empty to auto-detect; romaji defaults to ja)")
	cmd.Flags().StringVarP(&target, "to", "t", "", "Target language code for --mode translated")
	cmd.Flags().StringVarP(&outDir, "out", "o", "", "Output directory (defaults to OUTPUT_DIR)")
	return cmd
}
