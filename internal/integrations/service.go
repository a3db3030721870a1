package integrations

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/cmshub/cmshub/internal/connectors/configstore"
	"github.com/cmshub/cmshub/internal/connectors/registry"
	"github.com/cmshub/cmshub/internal/fetch"
	"github.com/cmshub/cmshub/internal/probe"
	"github.com/cmshub/cmshub/internal/secrets"
)

// ErrInactiveIntegration means the record is switched off.
var ErrInactiveIntegration = errors.New("integration is inactive")

// Service runs driver operations for stored integration records.
type Service struct {
	Registry *registry.ConnectorRegistry
	Secrets  secrets.Resolver
	Prober   *probe.Prober
	Logger   *slog.Logger
}

// Open resolves secrets, instantiates the record's driver and initializes it.
func (s *Service) Open(ctx context.Context, rec configstore.Integration) (registry.Connector, error) {
	if err := rec.Validate(); err != nil {
		return nil, err
	}
	if !rec.IsActive {
		return nil, fmt.Errorf("%w: %d", ErrInactiveIntegration, rec.ID)
	}
	cfg, err := s.resolve(ctx, rec.Config)
	if err != nil {
		return nil, fmt.Errorf("integration %d: resolve secrets: %w", rec.ID, err)
	}
	conn, err := s.Registry.Instantiate(rec.DriverID)
	if err != nil {
		return nil, fmt.Errorf("integration %d: %w", rec.ID, err)
	}
	if err := conn.Initialize(cfg); err != nil {
		return nil, fmt.Errorf("integration %d: initialize %s: %w", rec.ID, rec.DriverID, err)
	}
	return conn, nil
}

// Probe checks every configured URL of rec once. Secrets are resolved but the
// driver is not instantiated.
func (s *Service) Probe(ctx context.Context, rec configstore.Integration) ([]probe.Result, error) {
	cfg, err := s.resolve(ctx, rec.Config)
	if err != nil {
		return nil, fmt.Errorf("integration %d: resolve secrets: %w", rec.ID, err)
	}
	p := s.Prober
	if p == nil {
		p = probe.New(probe.DefaultTimeout, probe.DefaultWorkers, s.logger())
	}
	return p.Probe(ctx, configstore.CandidateURLs(cfg))
}

func (s *Service) Test(ctx context.Context, rec configstore.Integration) (bool, error) {
	conn, err := s.Open(ctx, rec)
	if err != nil {
		return false, err
	}
	ok, err := conn.TestConnection(ctx)
	s.logger().Info("integration connection tested", "integration_id", rec.ID, "driver", rec.DriverID, "ok", ok)
	return ok, err
}

func (s *Service) Fetch(ctx context.Context, rec configstore.Integration, endpoint string, params map[string]any) (fetch.Result, error) {
	conn, err := s.Open(ctx, rec)
	if err != nil {
		return fetch.Result{}, err
	}
	res, err := conn.FetchData(ctx, endpoint, params)
	if err != nil {
		return res, err
	}
	s.logger().Info("integration fetch finished",
		"integration_id", rec.ID,
		"driver", rec.DriverID,
		"endpoint", endpoint,
		"ok", res.OK(),
		"records", len(res.Records),
		"attempts", res.Attempts,
	)
	return res, nil
}

func (s *Service) Send(ctx context.Context, rec configstore.Integration, endpoint string, payload map[string]any) (bool, error) {
	conn, err := s.Open(ctx, rec)
	if err != nil {
		return false, err
	}
	return conn.SendData(ctx, endpoint, payload)
}

func (s *Service) resolve(ctx context.Context, cfg map[string]any) (map[string]any, error) {
	if cfg == nil {
		cfg = map[string]any{}
	}
	if s.Secrets == nil {
		return secrets.Static{}.Resolve(ctx, cfg)
	}
	return s.Secrets.Resolve(ctx, cfg)
}

func (s *Service) logger() *slog.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return slog.Default()
}
