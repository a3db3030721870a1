package main

import (
	"log/slog"
	"strings"

	"github.com/cmshub/cmshub/internal/config"
	"github.com/cmshub/cmshub/internal/connectors/onec"
	"github.com/cmshub/cmshub/internal/connectors/registry"
	"github.com/cmshub/cmshub/internal/connectors/restjson"
	"github.com/cmshub/cmshub/internal/probe"
	"github.com/cmshub/cmshub/internal/secrets"
	"github.com/spf13/cobra"
)

func buildConnectorRegistry(cfg config.Config, logger *slog.Logger) (*registry.ConnectorRegistry, error) {
	reg := registry.NewRegistry()
	if err := reg.Register(onec.NewDefinition()); err != nil {
		return nil, err
	}
	if err := reg.Register(restjson.NewDefinition()); err != nil {
		return nil, err
	}
	reg.SetRoot(cfg.ConnectorsRoot)
	reg.SetLogger(logger)
	reg.SetDeps(registry.Deps{Logger: logger, Timing: cfg.FetchTiming()})
	return reg, nil
}

func buildSecretResolver(cfg config.Config) (secrets.Resolver, error) {
	if !cfg.VaultEnabled() {
		return secrets.Static{}, nil
	}
	return secrets.NewVault(secrets.VaultOptions{
		Address:   cfg.VaultAddr,
		Token:     cfg.VaultToken,
		Namespace: cfg.VaultNamespace,
	})
}

func buildProber(cfg config.Config, logger *slog.Logger) *probe.Prober {
	return probe.New(cfg.ProbeTimeout, cfg.ProbeWorkers, logger)
}

// applyFlagOverrides lets persistent flags win over the environment.
func applyFlagOverrides(cmd *cobra.Command, cfg *config.Config) {
	if root, err := cmd.Flags().GetString("connectors-root"); err == nil && strings.TrimSpace(root) != "" {
		cfg.ConnectorsRoot = strings.TrimSpace(root)
	}
}
