package main

import (
	"log/slog"

	"github.com/cmshub/cmshub/internal/config"
	"github.com/spf13/cobra"
)

var probeCmd = structured(&cobra.Command{
	Use:   "probe <url>...",
	Short: "Probe ad-hoc URLs once each, without a stored integration.",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.LoadOptionalDB()
		if err != nil {
			return err
		}
		results, err := buildProber(cfg, slog.Default()).Probe(cmd.Context(), args)
		if err != nil {
			return err
		}
		return writeJSON(cmd.OutOrStdout(), results)
	},
})
