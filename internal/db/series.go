package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/zerotwo/ine-collector/internal/models"
)

const upsertSeriesMetadataSQL = `
INSERT INTO series_metadata (dataset_external_id, code, name, unit_id, scale_id, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, NOW(), NOW())
ON CONFLICT (dataset_external_id, code) DO UPDATE
SET name = EXCLUDED.name,
    unit_id = EXCLUDED.unit_id,
    scale_id = EXCLUDED.scale_id,
    updated_at = NOW()
RETURNING id`

const deleteObservationsSQL = `DELETE FROM observations WHERE series_metadata_id = $1`

var observationColumns = []string{
	"series_metadata_id",
	"ordinal",
	"value",
	"is_secret",
	"period_id",
	"year",
	"data_type_id",
	"timestamp_ms",
}

// UpsertSeriesMetadata inserts or refreshes a series row and returns its stable id.
func UpsertSeriesMetadata(ctx context.Context, q Querier, datasetExternalID string, draft models.SeriesMetadataDraft) (int64, error) {
	var id int64
	err := q.QueryRow(ctx, upsertSeriesMetadataSQL,
		datasetExternalID, draft.Code, draft.Name, draft.UnitID, draft.ScaleID,
	).Scan(&id)
	if err != nil {
		return 0, persistErr("upsert series metadata", err)
	}
	return id, nil
}

// ReplaceObservations deletes every observation of the series and copies the
// new set in ordinal order.
func ReplaceObservations(ctx context.Context, q Querier, seriesID int64, observations []models.ObservationDraft) (int64, error) {
	if _, err := q.Exec(ctx, deleteObservationsSQL, seriesID); err != nil {
		return 0, persistErr("delete observations", err)
	}
	if len(observations) == 0 {
		return 0, nil
	}

	rows := make([][]any, 0, len(observations))
	for _, o := range observations {
		rows = append(rows, []any{
			seriesID,
			int32(o.Ordinal),
			o.Value,
			o.IsSecret,
			o.PeriodID,
			o.Year,
			o.DataTypeID,
			o.TimestampMs,
		})
	}

	n, err := q.CopyFrom(ctx, pgx.Identifier{"observations"}, observationColumns, pgx.CopyFromRows(rows))
	if err != nil {
		return 0, persistErr("copy observations", err)
	}
	return n, nil
}

// SaveDataset persists every series of one dataset in a single transaction:
// metadata upsert and observation replacement per series, then the
// last-collected marker. Any failure rolls the whole dataset back.
// A zero dataset.ID skips the marker. Series codes must be unique.
func (s *Store) SaveDataset(ctx context.Context, dataset models.Dataset, series []models.NormalizedSeries, collectedAtMs int64) (models.SaveResult, error) {
	var result models.SaveResult

	codes := make(map[string]struct{}, len(series))
	for _, item := range series {
		if _, dup := codes[item.Metadata.Code]; dup {
			return result, persistErr("save dataset", fmt.Errorf("duplicate series code %q", item.Metadata.Code))
		}
		codes[item.Metadata.Code] = struct{}{}
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return result, persistErr("begin", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	for _, item := range series {
		seriesID, err := UpsertSeriesMetadata(ctx, tx, dataset.ExternalID, item.Metadata)
		if err != nil {
			return models.SaveResult{}, err
		}
		n, err := ReplaceObservations(ctx, tx, seriesID, item.Observations)
		if err != nil {
			return models.SaveResult{}, err
		}
		result.SeriesUpserted++
		result.ObservationsInserted += int(n)
	}

	if dataset.ID != 0 {
		if err := markCollected(ctx, tx, dataset.ID, collectedAtMs); err != nil {
			return models.SaveResult{}, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return models.SaveResult{}, persistErr("commit", err)
	}
	return result, nil
}
