// Package relstore is the Postgres-backed ports.RelationalStore adapter:
// datasets, raw data records, pipeline runs, and entity aliases all live
// in one pool-backed schema, scoped per tenant by a tenant_id column.
package relstore

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cognipipe/cognipipe/internal/domain"
)

// OpenPool opens a Postgres connection pool with conservative pool
// defaults and verifies connectivity before returning.
func OpenPool(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, err
	}
	cfg.MaxConns = 16
	cfg.MinConns = 0
	cfg.MaxConnLifetime = time.Hour
	cfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}
	pctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := pool.Ping(pctx); err != nil {
		pool.Close()
		return nil, err
	}
	return pool, nil
}

// Store is a Postgres-backed ports.RelationalStore.
type Store struct {
	pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// Init creates the schema if it does not already exist. Safe to call on
// every startup.
func (s *Store) Init(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
CREATE TABLE IF NOT EXISTS datasets (
    id TEXT PRIMARY KEY,
    tenant_id TEXT NOT NULL,
    name TEXT NOT NULL,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS datasets_tenant_idx ON datasets(tenant_id);

CREATE TABLE IF NOT EXISTS data_items (
    id TEXT PRIMARY KEY,
    dataset_id TEXT NOT NULL,
    tenant_id TEXT NOT NULL,
    source TEXT NOT NULL,
    content_hash TEXT NOT NULL,
    status TEXT NOT NULL,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS data_items_tenant_idx ON data_items(tenant_id);
CREATE INDEX IF NOT EXISTS data_items_dataset_idx ON data_items(dataset_id);

CREATE TABLE IF NOT EXISTS pipeline_runs (
    id TEXT PRIMARY KEY,
    tenant_id TEXT NOT NULL,
    dataset_id TEXT NOT NULL,
    status TEXT NOT NULL,
    warnings JSONB NOT NULL DEFAULT '[]',
    started_at TIMESTAMPTZ NOT NULL,
    completed_at TIMESTAMPTZ
);
CREATE INDEX IF NOT EXISTS pipeline_runs_tenant_idx ON pipeline_runs(tenant_id);

CREATE TABLE IF NOT EXISTS entity_aliases (
    from_id TEXT PRIMARY KEY,
    to_id TEXT NOT NULL
);
`)
	return err
}

func (s *Store) CreateDataset(ctx context.Context, d domain.Dataset) error {
	_, err := s.pool.Exec(ctx, `
INSERT INTO datasets (id, tenant_id, name, created_at) VALUES ($1, $2, $3, $4)
ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name`,
		d.ID, d.TenantID, d.Name, d.CreatedAt)
	return err
}

func (s *Store) GetDataset(ctx context.Context, tenantID, id string) (domain.Dataset, error) {
	var d domain.Dataset
	row := s.pool.QueryRow(ctx, `
SELECT id, tenant_id, name, created_at FROM datasets WHERE tenant_id = $1 AND id = $2`,
		tenantID, id)
	if err := row.Scan(&d.ID, &d.TenantID, &d.Name, &d.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Dataset{}, domain.NewNotFoundError("dataset", id)
		}
		return domain.Dataset{}, err
	}
	return d, nil
}

func (s *Store) UpsertData(ctx context.Context, d domain.Data) error {
	_, err := s.pool.Exec(ctx, `
INSERT INTO data_items (id, dataset_id, tenant_id, source, content_hash, status, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)
ON CONFLICT (id) DO UPDATE SET status = EXCLUDED.status`,
		d.ID, d.DatasetID, d.TenantID, d.Source, d.ContentHash, d.Status, d.CreatedAt)
	return err
}

func (s *Store) GetData(ctx context.Context, tenantID, id string) (domain.Data, error) {
	var d domain.Data
	row := s.pool.QueryRow(ctx, `
SELECT id, dataset_id, tenant_id, source, content_hash, status, created_at
FROM data_items WHERE tenant_id = $1 AND id = $2`,
		tenantID, id)
	if err := row.Scan(&d.ID, &d.DatasetID, &d.TenantID, &d.Source, &d.ContentHash, &d.Status, &d.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Data{}, domain.NewNotFoundError("data", id)
		}
		return domain.Data{}, err
	}
	return d, nil
}

func (s *Store) SaveRun(ctx context.Context, run domain.PipelineRun) error {
	warnings, err := json.Marshal(run.Warnings)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx, `
INSERT INTO pipeline_runs (id, tenant_id, dataset_id, status, warnings, started_at, completed_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)
ON CONFLICT (id) DO UPDATE SET
    status = EXCLUDED.status,
    warnings = EXCLUDED.warnings,
    completed_at = EXCLUDED.completed_at`,
		run.ID, run.TenantID, run.DatasetID, run.Status, warnings, run.StartedAt, run.CompletedAt)
	return err
}

func (s *Store) GetRun(ctx context.Context, tenantID, id string) (domain.PipelineRun, error) {
	var run domain.PipelineRun
	var warnings []byte
	row := s.pool.QueryRow(ctx, `
SELECT id, tenant_id, dataset_id, status, warnings, started_at, completed_at
FROM pipeline_runs WHERE tenant_id = $1 AND id = $2`,
		tenantID, id)
	if err := row.Scan(&run.ID, &run.TenantID, &run.DatasetID, &run.Status, &warnings, &run.StartedAt, &run.CompletedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.PipelineRun{}, domain.NewNotFoundError("run", id)
		}
		return domain.PipelineRun{}, err
	}
	if len(warnings) > 0 {
		if err := json.Unmarshal(warnings, &run.Warnings); err != nil {
			return domain.PipelineRun{}, err
		}
	}
	return run, nil
}

// SaveAlias persists that FromID was merged into ToID. Both IDs are
// already tenant-scoped by construction (domain.EntityID hashes the
// tenant in), so the alias table needs no separate tenant column.
func (s *Store) SaveAlias(ctx context.Context, a domain.AliasOf) error {
	_, err := s.pool.Exec(ctx, `
INSERT INTO entity_aliases (from_id, to_id) VALUES ($1, $2)
ON CONFLICT (from_id) DO UPDATE SET to_id = EXCLUDED.to_id`,
		a.FromID, a.ToID)
	return err
}

func (s *Store) ResolveAlias(ctx context.Context, tenantID, id string) (string, error) {
	var toID string
	row := s.pool.QueryRow(ctx, `SELECT to_id FROM entity_aliases WHERE from_id = $1`, id)
	if err := row.Scan(&toID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return id, nil
		}
		return "", err
	}
	return toID, nil
}
