package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/cmshub/cmshub/internal/config"
	"github.com/cmshub/cmshub/internal/connectors/configstore"
	"github.com/cmshub/cmshub/internal/integrations"
	"github.com/cmshub/cmshub/internal/store"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"
)

var integrationsCmd = structured(&cobra.Command{
	Use:   "integrations",
	Short: "Run driver operations for a stored integration.",
})

var integrationsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List active integrations and whether their driver is available.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		applyFlagOverrides(cmd, &cfg)

		ctx := cmd.Context()
		pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return err
		}
		defer pool.Close()

		recs, err := store.New(pool).ListActive(ctx)
		if err != nil {
			return err
		}
		reg, err := buildConnectorRegistry(cfg, slog.Default())
		if err != nil {
			return err
		}
		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "ID\tNAME\tDRIVER\tAVAILABLE")
		for _, rec := range recs {
			fmt.Fprintf(tw, "%d\t%s\t%s\t%t\n", rec.ID, rec.Name, rec.DriverID, reg.IsValid(rec.DriverID))
		}
		return tw.Flush()
	},
}

var integrationsProbeCmd = &cobra.Command{
	Use:   "probe <id>",
	Short: "Check every configured URL of an integration once.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withIntegration(cmd, args[0], func(ctx context.Context, svc *integrations.Service, rec configstore.Integration) error {
			results, err := svc.Probe(ctx, rec)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), results)
		})
	},
}

var integrationsTestCmd = &cobra.Command{
	Use:   "test <id>",
	Short: "Run the driver's connection test.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withIntegration(cmd, args[0], func(ctx context.Context, svc *integrations.Service, rec configstore.Integration) error {
			ok, err := svc.Test(ctx, rec)
			if err != nil {
				return err
			}
			if err := writeJSON(cmd.OutOrStdout(), map[string]bool{"ok": ok}); err != nil {
				return err
			}
			if !ok {
				return negativeResult()
			}
			return nil
		})
	},
}

var integrationsFetchCmd = &cobra.Command{
	Use:   "fetch <id> <endpoint>",
	Short: "Fetch records from a logical endpoint.",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		raw, _ := cmd.Flags().GetStringToString("param")
		params := make(map[string]any, len(raw))
		for k, v := range raw {
			params[k] = v
		}
		return withIntegration(cmd, args[0], func(ctx context.Context, svc *integrations.Service, rec configstore.Integration) error {
			res, err := svc.Fetch(ctx, rec, args[1], params)
			if err != nil {
				return err
			}
			if res.Err != nil {
				return res.Err
			}
			return writeJSON(cmd.OutOrStdout(), res.Payload)
		})
	},
}

var integrationsSendCmd = &cobra.Command{
	Use:   "send <id> <endpoint>",
	Short: "Send a JSON object to a logical endpoint.",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		body, _ := cmd.Flags().GetString("payload")
		var payload map[string]any
		if err := json.Unmarshal([]byte(body), &payload); err != nil {
			return notFoundError(fmt.Errorf("--payload must be a JSON object: %w", err))
		}
		return withIntegration(cmd, args[0], func(ctx context.Context, svc *integrations.Service, rec configstore.Integration) error {
			ok, err := svc.Send(ctx, rec, args[1], payload)
			if err != nil {
				return err
			}
			if err := writeJSON(cmd.OutOrStdout(), map[string]bool{"accepted": ok}); err != nil {
				return err
			}
			if !ok {
				return negativeResult()
			}
			return nil
		})
	},
}

func init() {
	integrationsFetchCmd.Flags().StringToString("param", nil, "query parameter override, repeatable (key=value)")
	integrationsSendCmd.Flags().String("payload", "{}", "JSON object to send")
	integrationsCmd.AddCommand(integrationsListCmd, integrationsProbeCmd, integrationsTestCmd, integrationsFetchCmd, integrationsSendCmd)
}

type integrationFunc func(ctx context.Context, svc *integrations.Service, rec configstore.Integration) error

func withIntegration(cmd *cobra.Command, rawID string, fn integrationFunc) error {
	id, err := strconv.ParseInt(strings.TrimSpace(rawID), 10, 64)
	if err != nil || id <= 0 {
		return notFoundError(fmt.Errorf("invalid integration id %q", rawID))
	}
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	applyFlagOverrides(cmd, &cfg)

	ctx := cmd.Context()
	logger := slog.Default()
	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer pool.Close()

	rec, err := store.New(pool).GetIntegration(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return notFoundError(err)
		}
		return err
	}

	reg, err := buildConnectorRegistry(cfg, logger)
	if err != nil {
		return err
	}
	resolver, err := buildSecretResolver(cfg)
	if err != nil {
		return err
	}
	svc := &integrations.Service{
		Registry: reg,
		Secrets:  resolver,
		Prober:   buildProber(cfg, logger),
		Logger:   logger,
	}
	return fn(ctx, svc, rec)
}
