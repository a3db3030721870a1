package main

import (
	"context"
	"log/slog"

	"github.com/cmshub/cmshub/internal/config"
	httpapp "github.com/cmshub/cmshub/internal/http"
	"github.com/cmshub/cmshub/internal/http/handlers"
	"github.com/cmshub/cmshub/internal/integrations"
	"github.com/cmshub/cmshub/internal/metrics"
	"github.com/cmshub/cmshub/internal/store"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var serveCmd = structured(&cobra.Command{
	Use:   "serve",
	Short: "Run the diagnostics HTTP API and metrics listener.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		applyFlagOverrides(cmd, &cfg)
		return runServe(cmd.Context(), cfg, slog.Default())
	},
})

func runServe(ctx context.Context, cfg config.Config, logger *slog.Logger) error {
	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer pool.Close()

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

	drivers := reg.Discover()
	logger.Info("drivers discovered", "count", len(drivers), "connectors_root", cfg.ConnectorsRoot)

	srv := httpapp.NewEchoServer(&handlers.Handlers{
		Registry: reg,
		Store:    store.New(pool),
		Service:  svc,
		Logger:   logger,
	}, logger)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.Run(gctx, cfg.HTTPAddr)
	})
	if _, metricsErr := metrics.StartServer(gctx, cfg.MetricsAddr, logger); metricsErr != nil {
		g.Go(func() error {
			select {
			case err := <-metricsErr:
				return err
			case <-gctx.Done():
				return nil
			}
		})
	}
	return g.Wait()
}
