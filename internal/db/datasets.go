package db

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"github.com/zerotwo/ine-collector/internal/models"
)

// ErrDatasetNotFound is returned when no dataset row matches.
var ErrDatasetNotFound = errors.New("dataset not found")

const datasetColumns = `id, external_id, code, name, active, last_collected_ms`

const listActiveDatasetsSQL = `
    SELECT ` + datasetColumns + `
    FROM datasets
    WHERE active
    ORDER BY id
`

// ListActiveDatasets returns the datasets a collection run should process.
func (s *Store) ListActiveDatasets(ctx context.Context) ([]models.Dataset, error) {
	rows, err := s.pool.Query(ctx, listActiveDatasetsSQL)
	if err != nil {
		return nil, persistErr("list datasets", err)
	}
	out, err := scanDatasets(rows)
	if err != nil {
		return nil, persistErr("list datasets", err)
	}
	return out, nil
}

const datasetByCodeSQL = `
    SELECT ` + datasetColumns + `
    FROM datasets
    WHERE code = $1
`

// GetDatasetByCode returns ErrDatasetNotFound for unknown codes.
func (s *Store) GetDatasetByCode(ctx context.Context, code string) (*models.Dataset, error) {
	var d models.Dataset
	err := s.pool.QueryRow(ctx, datasetByCodeSQL, code).Scan(
		&d.ID, &d.ExternalID, &d.Code, &d.Name, &d.Active, &d.LastCollectedMs,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrDatasetNotFound
	}
	if err != nil {
		return nil, persistErr("get dataset", err)
	}
	return &d, nil
}

const syncCatalogSQL = `
INSERT INTO datasets (external_id, code, name, url, active, created_at, updated_at)
VALUES ($1, $2, $3, NULLIF($4, ''), TRUE, NOW(), NOW())
ON CONFLICT (code) DO UPDATE
SET external_id = EXCLUDED.external_id,
    name = EXCLUDED.name,
    url = EXCLUDED.url,
    active = TRUE,
    updated_at = NOW()`

const deactivateMissingSQL = `
UPDATE datasets
SET active = FALSE, updated_at = NOW()
WHERE active AND NOT (code = ANY($1::text[]))`

// SyncCatalog makes the datasets table follow the catalog: entries are
// upserted by code and active, rows whose code left the catalog are
// deactivated. last_collected_ms is never touched. An empty catalog is a
// no-op so a missing catalog file cannot switch every dataset off.
func (s *Store) SyncCatalog(ctx context.Context, entries []models.CatalogEntry) error {
	if len(entries) == 0 {
		return nil
	}

	codes := make([]string, 0, len(entries))
	batch := &pgx.Batch{}
	for _, e := range entries {
		batch.Queue(syncCatalogSQL, e.ExternalID, e.Code, e.Name, e.URL)
		codes = append(codes, e.Code)
	}
	batch.Queue(deactivateMissingSQL, codes)

	res := s.pool.SendBatch(ctx, batch)
	defer res.Close()

	for i := 0; i < batch.Len(); i++ {
		if _, err := res.Exec(); err != nil {
			return persistErr("sync catalog", err)
		}
	}
	return nil
}

// markCollected records a successful collection time (epoch ms).
func markCollected(ctx context.Context, q Querier, datasetID int64, timestampMs int64) error {
	tag, err := q.Exec(ctx, markCollectedSQL, timestampMs, datasetID)
	if err != nil {
		return persistErr("mark collected", err)
	}
	if tag.RowsAffected() == 0 {
		return persistErr("mark collected", ErrDatasetNotFound)
	}
	return nil
}

func scanDatasets(rows pgx.Rows) ([]models.Dataset, error) {
	defer rows.Close()

	out := make([]models.Dataset, 0)
	for rows.Next() {
		var d models.Dataset
		if err := rows.Scan(&d.ID, &d.ExternalID, &d.Code, &d.Name, &d.Active, &d.LastCollectedMs); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}
