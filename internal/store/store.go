package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/cmshub/cmshub/internal/connectors/configstore"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// ErrNotFound means no integration has the requested id.
var ErrNotFound = errors.New("integration not found")

// DBTX is satisfied by *pgxpool.Pool, *pgx.Conn and pgx.Tx.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

const integrationColumns = `id, name, driver_id, version, config, is_active`

const getIntegration = `SELECT ` + integrationColumns + ` FROM integrations WHERE id = $1`

const listActiveIntegrations = `SELECT ` + integrationColumns + ` FROM integrations WHERE is_active ORDER BY id`

// Store reads integration records.
type Store struct {
	db DBTX
}

func New(db DBTX) *Store {
	return &Store{db: db}
}

func (s *Store) GetIntegration(ctx context.Context, id int64) (configstore.Integration, error) {
	rec, err := scanIntegration(s.db.QueryRow(ctx, getIntegration, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return configstore.Integration{}, fmt.Errorf("%w: %d", ErrNotFound, id)
	}
	if err != nil {
		return configstore.Integration{}, fmt.Errorf("get integration %d: %w", id, err)
	}
	return rec, nil
}

// ListActive returns every active integration ordered by id.
func (s *Store) ListActive(ctx context.Context) ([]configstore.Integration, error) {
	rows, err := s.db.Query(ctx, listActiveIntegrations)
	if err != nil {
		return nil, fmt.Errorf("list active integrations: %w", err)
	}
	defer rows.Close()

	var out []configstore.Integration
	for rows.Next() {
		rec, err := scanIntegration(rows)
		if err != nil {
			return nil, fmt.Errorf("list active integrations: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list active integrations: %w", err)
	}
	return out, nil
}

func scanIntegration(row pgx.Row) (configstore.Integration, error) {
	var (
		rec configstore.Integration
		raw []byte
	)
	if err := row.Scan(&rec.ID, &rec.Name, &rec.DriverID, &rec.Version, &raw, &rec.IsActive); err != nil {
		return configstore.Integration{}, err
	}
	cfg, err := configstore.DecodeConfig(raw)
	if err != nil {
		return configstore.Integration{}, fmt.Errorf("integration %d: %w", rec.ID, err)
	}
	rec.Config = cfg
	return rec, nil
}
