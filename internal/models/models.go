package models

import "time"

// Dataset is a row of the datasets table: one remote table collected as a unit.
type Dataset struct {
	ID              int64  `json:"id"`
	ExternalID      string `json:"external_id"`
	Code            string `json:"code"`
	Name            string `json:"name"`
	Active          bool   `json:"active"`
	LastCollectedMs *int64 `json:"last_collected_ms,omitempty"`
}

// CatalogEntry is one dataset of the static catalog file.
type CatalogEntry struct {
	Code       string `json:"codigo"`
	Name       string `json:"nombre"`
	ExternalID string `json:"cod_ioe,omitempty"`
	URL        string `json:"url,omitempty"`
}

// SeriesMetadataDraft is the normalized metadata of one series.
type SeriesMetadataDraft struct {
	Code    string
	Name    string
	UnitID  string
	ScaleID string
}

// ObservationDraft is one normalized data point. Ordinal is the position in
// the delivered series and is the replacement key.
type ObservationDraft struct {
	Ordinal     int
	Value       *float64
	IsSecret    bool
	PeriodID    *int64
	Year        *int64
	DataTypeID  *int64
	TimestampMs *int64
}

// NormalizedSeries pairs a series' metadata with its ordered observations.
type NormalizedSeries struct {
	Metadata     SeriesMetadataDraft
	Observations []ObservationDraft
}

// ObservationCount returns the total number of observations across series.
func ObservationCount(series []NormalizedSeries) int {
	total := 0
	for _, s := range series {
		total += len(s.Observations)
	}
	return total
}

// EnrichedSeries is the human-readable rendition of a normalized series.
type EnrichedSeries struct {
	Code             string                `json:"COD"`
	Name             string                `json:"Nombre"`
	UnitID           string                `json:"FK_Unidad"`
	ScaleID          string                `json:"FK_Escala"`
	UnitDescription  string                `json:"Unidad_Descripcion"`
	ScaleDescription string                `json:"Escala_Descripcion"`
	Observations     []EnrichedObservation `json:"Data"`
}

// EnrichedObservation carries an observation plus its descriptions.
type EnrichedObservation struct {
	Ordinal                int      `json:"Orden"`
	TimestampMs            *int64   `json:"Fecha"`
	ReadableDate           string   `json:"Fecha_Legible,omitempty"`
	DataTypeID             *int64   `json:"FK_TipoDato"`
	DataTypeDescription    string   `json:"TipoDato_Descripcion"`
	PeriodID               *int64   `json:"FK_Periodo"`
	PeriodDescription      string   `json:"Periodo_Descripcion"`
	Year                   *int64   `json:"Anyo"`
	Value                  *float64 `json:"Valor"`
	IsSecret               bool     `json:"Secreto"`
	ConfidentialityMessage string   `json:"Secreto_Descripcion"`
}

// ProcessingSummary aggregates an enriched payload.
type ProcessingSummary struct {
	TotalSeries          int            `json:"total_series"`
	TotalDataPoints      int            `json:"total_data_points"`
	DataTypeDistribution map[string]int `json:"data_type_distribution"`
	PeriodDistribution   map[string]int `json:"period_distribution"`
	UnitDistribution     map[string]int `json:"unit_distribution"`
	MetadataEnriched     bool           `json:"metadata_enriched"`
	UnitsEnriched        bool           `json:"units_enriched"`
}

// DatasetStatus is the terminal state of one dataset within a run.
type DatasetStatus string

const (
	StatusSuccess      DatasetStatus = "success"
	StatusNoData       DatasetStatus = "no_data"
	StatusError        DatasetStatus = "error"
	StatusTimeout      DatasetStatus = "timeout"
	StatusTimeoutError DatasetStatus = "timeout_error"
	// StatusCancelled marks datasets left unprocessed by a cancelled run.
	StatusCancelled DatasetStatus = "cancelled"
)

// DatasetResult records the outcome of one dataset.
type DatasetResult struct {
	DatasetID   int64         `json:"dataset_id"`
	Code        string        `json:"code"`
	Name        string        `json:"dataset_name"`
	ExternalID  string        `json:"external_id"`
	Status      DatasetStatus `json:"status"`
	SeriesCount int           `json:"series_count"`
	RecordCount int           `json:"record_count"`
	Error       string        `json:"error,omitempty"`
}

// RunSummary is the result of one collection run.
type RunSummary struct {
	RunID         string                `json:"run_id"`
	StartedAt     time.Time             `json:"started_at"`
	FinishedAt    time.Time             `json:"finished_at"`
	TotalDatasets int                   `json:"total_datasets"`
	TotalRecords  int                   `json:"total_records"`
	StatusCounts  map[DatasetStatus]int `json:"status_counts"`
	Results       []DatasetResult       `json:"results"`
}

// SaveResult reports what a dataset persistence pass wrote.
type SaveResult struct {
	SeriesUpserted       int `json:"series_upserted"`
	ObservationsInserted int `json:"records_inserted"`
}
