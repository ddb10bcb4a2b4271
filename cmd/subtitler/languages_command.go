package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Thompson6626/SRT-Transcriber/internal/translate"
)

func newLanguagesCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "languages",
		Short: "List the supported translation pairs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			registry := translate.DefaultRegistry()
			rows := languageRows(registry)
			fmt.Fprintln(cmd.OutOrStdout(), renderTable([]string{"Pair", "From", "To", "Model"}, rows, nil))
			return nil
		},
	}
}

func languageRows(registry translate.Registry) [][]string {
	pairs := registry.Pairs()
	rows := make([][]string, 0, len(pairs))
	for _, p := range pairs {
		model, _ := registry.Model(p)
		rows = append(rows, []string{p.Key(), translate.LanguageName(p.Source), translate.LanguageName(p.Target), model})
	}
	return rows
}
