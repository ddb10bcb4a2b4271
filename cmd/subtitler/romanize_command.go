package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Thompson6626/SRT-Transcriber/internal/config"
	"github.com/Thompson6626/SRT-Transcriber/internal/modelserver"
	"github.com/Thompson6626/SRT-Transcriber/internal/romaji"
)

func newRomanizeCommand(ctx *commandContext) *cobra.Command {
	var remote bool

	cmd := &cobra.Command{
		Use:   "romanize [text...]",
		Short: "Print Japanese text in romaji (reads stdin when no text is given)",
		RunE: func(cmd *cobra.Command, args []string) error {
			text := strings.Join(args, " ")
			if len(args) == 0 {
				data, err := io.ReadAll(cmd.InOrStdin())
				if err != nil {
					return fmt.Errorf("read stdin: %w", err)
				}
				text = string(data)
			}

			var r romaji.Romanizer = romaji.NewKana()
			if remote {
				cfg, err := ctx.ensureConfig()
				if err != nil {
					return fmt.Errorf("load configuration: %w", err)
				}
				ms, err := modelserver.NewClient(cfg)
				if err != nil {
					return err
				}
				defer ms.Close()
				cfg.RomanizerBackend = config.BackendModelServer
				if r, err = romaji.New(cfg, ms); err != nil {
					return err
				}
			}

			for _, line := range strings.Split(strings.TrimRight(text, "\n"), "\n") {
				out, err := r.Romanize(cmd.Context(), line)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), out)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&remote, "remote", false, "Use the model server romanizer (handles kanji)")
	return cmd
}
