package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/cmshub/cmshub/internal/logging"
	"github.com/spf13/cobra"
)

// annotationStructuredLog marks commands whose output and failures go through
// the structured logger.
const annotationStructuredLog = "cmshub.structured_log"

var rootCmd = &cobra.Command{
	Use:           "cmshub",
	Short:         "cmshub connects a catalog to external ERP and REST systems through pluggable drivers.",
	SilenceErrors: true,
	SilenceUsage:  true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		execCtx := commandExecutionContext{
			CommandPath:       cmd.CommandPath(),
			UsesStructuredLog: commandUsesStructuredLogging(cmd),
		}
		setCommandExecutionContext(execCtx)
		if !execCtx.UsesStructuredLog {
			return nil
		}
		_, err := logging.BootstrapFromEnv(logging.BootstrapOptions{
			Command: execCtx.CommandPath,
			Writer:  os.Stderr,
		})
		return err
	},
}

func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	rootCmd.PersistentFlags().String("connectors-root", "", "directory of driver manifests (overrides CONNECTORS_ROOT)")
	rootCmd.AddCommand(serveCmd, migrateCmd, driversCmd, integrationsCmd, probeCmd)
}

func structured(cmd *cobra.Command) *cobra.Command {
	if cmd.Annotations == nil {
		cmd.Annotations = map[string]string{}
	}
	cmd.Annotations[annotationStructuredLog] = "true"
	return cmd
}
