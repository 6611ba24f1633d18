package enrich

import (
	"strconv"
	"time"

	"github.com/zerotwo/ine-collector/internal/models"
)

const (
	ConfidentialMessage = "Confidential — not publicly shown"
	PublicMessage       = "Public data — freely available"

	dateLayout = "2006-01-02"
)

// Enricher annotates normalized series with human-readable descriptions.
// It never fails: unknown ids degrade to a placeholder.
type Enricher struct {
	ref *Reference
}

func New(ref *Reference) *Enricher {
	if ref == nil {
		ref = &Reference{}
	}
	return &Enricher{ref: ref}
}

func (e *Enricher) Enrich(series []models.NormalizedSeries) []models.EnrichedSeries {
	out := make([]models.EnrichedSeries, 0, len(series))
	for _, s := range series {
		item := models.EnrichedSeries{
			Code:             s.Metadata.Code,
			Name:             s.Metadata.Name,
			UnitID:           s.Metadata.UnitID,
			ScaleID:          s.Metadata.ScaleID,
			UnitDescription:  Describe(e.ref.Units, s.Metadata.UnitID),
			ScaleDescription: Describe(e.ref.Scales, s.Metadata.ScaleID),
			Observations:     make([]models.EnrichedObservation, 0, len(s.Observations)),
		}
		for _, o := range s.Observations {
			item.Observations = append(item.Observations, models.EnrichedObservation{
				Ordinal:                o.Ordinal,
				TimestampMs:            o.TimestampMs,
				ReadableDate:           FormatTimestamp(o.TimestampMs),
				DataTypeID:             o.DataTypeID,
				DataTypeDescription:    Describe(e.ref.DataTypes, idString(o.DataTypeID)),
				PeriodID:               o.PeriodID,
				PeriodDescription:      Describe(e.ref.Periods, idString(o.PeriodID)),
				Year:                   o.Year,
				Value:                  o.Value,
				IsSecret:               o.IsSecret,
				ConfidentialityMessage: Confidentiality(o.IsSecret),
			})
		}
		out = append(out, item)
	}
	return out
}

// Describe looks id up in m, returning "Unknown (<id>)" when absent.
func Describe(m Mapping, id string) string {
	if desc, ok := m[id]; ok {
		return desc
	}
	return "Unknown (" + id + ")"
}

func Confidentiality(secret bool) string {
	if secret {
		return ConfidentialMessage
	}
	return PublicMessage
}

// FormatTimestamp renders a millisecond timestamp as a UTC calendar date.
// Nil yields an empty string; out-of-range values yield a diagnostic.
func FormatTimestamp(ms *int64) string {
	if ms == nil {
		return ""
	}
	t := time.UnixMilli(*ms).UTC()
	if t.Year() < 1 || t.Year() > 9999 {
		return "Invalid timestamp: " + strconv.FormatInt(*ms, 10)
	}
	return t.Format(dateLayout)
}

// Summarize computes totals and distributions over enriched series.
func (e *Enricher) Summarize(series []models.EnrichedSeries) models.ProcessingSummary {
	summary := models.ProcessingSummary{
		TotalSeries:          len(series),
		DataTypeDistribution: map[string]int{},
		PeriodDistribution:   map[string]int{},
		UnitDistribution:     map[string]int{},
		MetadataEnriched:     e.ref.MetadataLoaded(),
		UnitsEnriched:        len(e.ref.Units) > 0,
	}
	for _, s := range series {
		summary.UnitDistribution[s.UnitDescription]++
		for _, o := range s.Observations {
			summary.TotalDataPoints++
			summary.DataTypeDistribution[o.DataTypeDescription]++
			summary.PeriodDistribution[o.PeriodDescription]++
		}
	}
	return summary
}

func idString(v *int64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatInt(*v, 10)
}
