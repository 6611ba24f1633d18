package db

import "context"

var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS datasets (
    id                BIGSERIAL PRIMARY KEY,
    external_id       TEXT NOT NULL,
    code              TEXT NOT NULL UNIQUE,
    name              TEXT NOT NULL DEFAULT '',
    url               TEXT,
    active            BOOLEAN NOT NULL DEFAULT TRUE,
    last_collected_ms BIGINT,
    created_at        TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at        TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`,
	`CREATE TABLE IF NOT EXISTS series_metadata (
    id                  BIGSERIAL PRIMARY KEY,
    dataset_external_id TEXT NOT NULL,
    code                TEXT NOT NULL,
    name                TEXT,
    unit_id             TEXT,
    scale_id            TEXT,
    created_at          TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at          TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    UNIQUE (dataset_external_id, code)
)`,
	`CREATE TABLE IF NOT EXISTS observations (
    id                 BIGSERIAL PRIMARY KEY,
    series_metadata_id BIGINT NOT NULL REFERENCES series_metadata(id) ON DELETE CASCADE,
    ordinal            INTEGER NOT NULL,
    value              NUMERIC,
    is_secret          BOOLEAN NOT NULL DEFAULT FALSE,
    period_id          INTEGER,
    year               INTEGER,
    data_type_id       INTEGER,
    timestamp_ms       BIGINT,
    created_at         TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    UNIQUE (series_metadata_id, ordinal)
)`,
	`CREATE INDEX IF NOT EXISTS idx_observations_series ON observations(series_metadata_id)`,
	`CREATE INDEX IF NOT EXISTS idx_observations_year_period ON observations(year, period_id)`,
	`CREATE INDEX IF NOT EXISTS idx_datasets_active ON datasets(active)`,
}

// Migrate applies the idempotent schema.
func (s *Store) Migrate(ctx context.Context) error {
	for _, stmt := range schemaStatements {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return persistErr("migrate", err)
		}
	}
	return nil
}
