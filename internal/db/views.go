package db

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/zerotwo/ine-collector/internal/models"
)

// StoredPoint is one stored observation as served by the raw view.
type StoredPoint struct {
	Ordinal     int      `json:"ordinal"`
	Value       *float64 `json:"value"`
	IsSecret    bool     `json:"is_secret"`
	PeriodID    *int64   `json:"period_id"`
	Year        *int64   `json:"year"`
	DataTypeID  *int64   `json:"data_type_id"`
	TimestampMs *int64   `json:"timestamp_ms"`
}

// StoredSeries is one stored series with its observations in ordinal order.
type StoredSeries struct {
	Code       string        `json:"code"`
	Name       *string       `json:"name,omitempty"`
	UnitID     *string       `json:"unit_id,omitempty"`
	ScaleID    *string       `json:"scale_id,omitempty"`
	UpdatedAt  time.Time     `json:"updated_at"`
	DataPoints []StoredPoint `json:"data_points"`
}

const storedSeriesSQL = `
    SELECT m.id, m.code, m.name, m.unit_id, m.scale_id, m.updated_at,
           o.ordinal, o.value::double precision, o.is_secret, o.period_id, o.year, o.data_type_id, o.timestamp_ms
    FROM series_metadata m
    LEFT JOIN observations o ON o.series_metadata_id = m.id
    WHERE m.dataset_external_id = $1
    ORDER BY m.code, o.ordinal
`

// StoredSeries returns the stored series of a dataset with values rounded
// to two decimals. Series without observations carry an empty list.
func (s *Store) StoredSeries(ctx context.Context, datasetExternalID string) ([]StoredSeries, error) {
	rows, err := s.pool.Query(ctx, storedSeriesSQL, datasetExternalID)
	if err != nil {
		return nil, persistErr("stored series", err)
	}
	defer rows.Close()

	out := make([]StoredSeries, 0)
	var lastID int64
	for rows.Next() {
		var (
			seriesID int64
			series   StoredSeries
			ordinal  *int32
			secret   *bool
			point    StoredPoint
		)
		if err := rows.Scan(
			&seriesID,
			&series.Code,
			&series.Name,
			&series.UnitID,
			&series.ScaleID,
			&series.UpdatedAt,
			&ordinal,
			&point.Value,
			&secret,
			&point.PeriodID,
			&point.Year,
			&point.DataTypeID,
			&point.TimestampMs,
		); err != nil {
			return nil, persistErr("stored series", err)
		}

		if len(out) == 0 || seriesID != lastID {
			series.DataPoints = make([]StoredPoint, 0)
			out = append(out, series)
			lastID = seriesID
		}
		if ordinal == nil {
			continue
		}
		point.Ordinal = int(*ordinal)
		point.IsSecret = secret != nil && *secret
		point.Value = RoundValue(point.Value, 2)
		cur := &out[len(out)-1]
		cur.DataPoints = append(cur.DataPoints, point)
	}
	if err := rows.Err(); err != nil {
		return nil, persistErr("stored series", err)
	}
	return out, nil
}

// LoadSeries rebuilds the normalized shape of a stored dataset so it can be
// enriched like a freshly fetched one.
func (s *Store) LoadSeries(ctx context.Context, datasetExternalID string) ([]models.NormalizedSeries, error) {
	stored, err := s.StoredSeries(ctx, datasetExternalID)
	if err != nil {
		return nil, err
	}
	out := make([]models.NormalizedSeries, 0, len(stored))
	for _, st := range stored {
		item := models.NormalizedSeries{
			Metadata: models.SeriesMetadataDraft{
				Code:    st.Code,
				Name:    deref(st.Name),
				UnitID:  deref(st.UnitID),
				ScaleID: deref(st.ScaleID),
			},
			Observations: make([]models.ObservationDraft, 0, len(st.DataPoints)),
		}
		for _, p := range st.DataPoints {
			item.Observations = append(item.Observations, models.ObservationDraft{
				Ordinal:     p.Ordinal,
				Value:       p.Value,
				IsSecret:    p.IsSecret,
				PeriodID:    p.PeriodID,
				Year:        p.Year,
				DataTypeID:  p.DataTypeID,
				TimestampMs: p.TimestampMs,
			})
		}
		out = append(out, item)
	}
	return out, nil
}

// SeriesMetadataRow is a stored series row with its observation count.
type SeriesMetadataRow struct {
	ID              int64     `json:"id"`
	Code            string    `json:"code"`
	Name            *string   `json:"name,omitempty"`
	UnitID          *string   `json:"unit_id,omitempty"`
	ScaleID         *string   `json:"scale_id,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
	DataPointsCount int64     `json:"data_points_count"`
}

const seriesMetadataSQL = `
    SELECT m.id, m.code, m.name, m.unit_id, m.scale_id, m.created_at, m.updated_at, COUNT(o.id)
    FROM series_metadata m
    LEFT JOIN observations o ON o.series_metadata_id = m.id
    WHERE m.dataset_external_id = $1
    GROUP BY m.id, m.code, m.name, m.unit_id, m.scale_id, m.created_at, m.updated_at
    ORDER BY m.code
`

// SeriesMetadata returns the metadata rows of a dataset.
func (s *Store) SeriesMetadata(ctx context.Context, datasetExternalID string) ([]SeriesMetadataRow, error) {
	rows, err := s.pool.Query(ctx, seriesMetadataSQL, datasetExternalID)
	if err != nil {
		return nil, persistErr("series metadata", err)
	}
	defer rows.Close()

	out := make([]SeriesMetadataRow, 0)
	for rows.Next() {
		var m SeriesMetadataRow
		if err := rows.Scan(&m.ID, &m.Code, &m.Name, &m.UnitID, &m.ScaleID, &m.CreatedAt, &m.UpdatedAt, &m.DataPointsCount); err != nil {
			return nil, persistErr("series metadata", err)
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, persistErr("series metadata", err)
	}
	return out, nil
}

// RoundValue rounds v half away from zero to places decimals.
func RoundValue(v *float64, places int32) *float64 {
	if v == nil {
		return nil
	}
	r := decimal.NewFromFloat(*v).Round(places).InexactFloat64()
	return &r
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
