package main

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Thompson6626/SRT-Transcriber/internal/audio"
	"github.com/Thompson6626/SRT-Transcriber/internal/config"
)

func newEmbedCommand() *cobra.Command {
	var language string
	var title string
	var makeDefault bool

	cmd := &cobra.Command{
		Use:   "embed <video> <subtitles.srt> <output.mkv>",
		Short: "Mux an SRT file into a Matroska copy of a video",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			video, subs, output := args[0], args[1], args[2]
			if !strings.EqualFold(filepath.Ext(output), ".mkv") {
				return fmt.Errorf("output %q must be an .mkv file", output)
			}

			n := audio.NewNormalizer(config.GetEnv("FFMPEG_BINARY", "ffmpeg"), config.GetEnv("AUDIO_BITRATE", "192k"))
			if err := n.Embed(cmd.Context(), video, subs, output, audio.EmbedOptions{
				Language: language,
				Title:    title,
				Default:  makeDefault,
			}); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), output)
			return nil
		},
	}

	cmd.Flags().StringVar(&language, "language", "", "Language tag for the subtitle track, e.g. jpn")
	cmd.Flags().StringVar(&title, "title", "", "Subtitle track title")
	cmd.Flags().BoolVar(&makeDefault, "default", true, "Mark the subtitle track as default")
	return cmd
}
