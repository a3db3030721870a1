package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"text/tabwriter"

	"github.com/cmshub/cmshub/internal/config"
	"github.com/cmshub/cmshub/internal/connectors/registry"
	"github.com/cmshub/cmshub/internal/fetch"
	"github.com/spf13/cobra"
)

var driversCmd = &cobra.Command{
	Use:   "drivers",
	Short: "Inspect the driver registry.",
}

var driversListCmd = &cobra.Command{
	Use:   "list",
	Short: "List valid drivers.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		reg, _, err := loadRegistry(cmd)
		if err != nil {
			return err
		}
		systemType, _ := cmd.Flags().GetString("type")
		iconClass, _ := cmd.Flags().GetString("icon-class")
		asJSON, _ := cmd.Flags().GetBool("json")

		var descs []registry.Descriptor
		switch {
		case strings.TrimSpace(systemType) != "":
			descs = reg.ListByType(systemType)
		case strings.TrimSpace(iconClass) != "":
			descs = reg.ListByIconClass(iconClass)
		default:
			descs = reg.Discover()
		}
		if asJSON {
			return writeJSON(cmd.OutOrStdout(), descs)
		}
		return writeDriverTable(cmd.OutOrStdout(), descs)
	},
}

var driversDescribeCmd = &cobra.Command{
	Use:   "describe <id>",
	Short: "Show a driver's metadata and settings form.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		reg, cfg, err := loadRegistry(cmd)
		if err != nil {
			return err
		}
		desc, ok := reg.Describe(args[0])
		if !ok {
			return notFoundError(fmt.Errorf("%w: %q", registry.ErrDriverNotFound, args[0]))
		}
		// Bound for one candidate URL under the default timing; a config with
		// n URLs multiplies it by n.
		perURL := fetch.Config{URLs: []string{"http://bound"}, Timing: cfg.FetchTiming()}.WorstCaseLatency()
		return writeJSON(cmd.OutOrStdout(), struct {
			registry.Descriptor
			Settings        registry.SettingsForm `json:"settings"`
			WorstCasePerURL string                `json:"worst_case_per_url"`
		}{desc, desc.SettingsForm(), perURL.String()})
	},
}

var driversTypesCmd = &cobra.Command{
	Use:   "types",
	Short: "List the distinct system types and icon classes.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		reg, _, err := loadRegistry(cmd)
		if err != nil {
			return err
		}
		return writeJSON(cmd.OutOrStdout(), map[string][]string{
			"types":        reg.ListTypes(),
			"icon_classes": reg.ListIconClasses(),
		})
	},
}

func init() {
	driversListCmd.Flags().String("type", "", "only drivers of this system type")
	driversListCmd.Flags().String("icon-class", "", "only drivers with this icon class")
	driversListCmd.Flags().Bool("json", false, "print JSON instead of a table")
	driversCmd.AddCommand(driversListCmd, driversDescribeCmd, driversTypesCmd)
}

func loadRegistry(cmd *cobra.Command) (*registry.ConnectorRegistry, config.Config, error) {
	cfg, err := config.LoadOptionalDB()
	if err != nil {
		return nil, cfg, err
	}
	applyFlagOverrides(cmd, &cfg)
	reg, err := buildConnectorRegistry(cfg, slog.Default())
	return reg, cfg, err
}

func writeDriverTable(w io.Writer, descs []registry.Descriptor) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tTYPE\tVERSION\tSOURCE")
	for _, d := range descs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", d.ID, d.Name, d.SystemType, d.Version, d.Source)
	}
	return tw.Flush()
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
