package normalize

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/zerotwo/ine-collector/internal/models"
)

// Series converts a raw series list into metadata drafts and ordered
// observations. Malformed entries are logged and skipped. Codes are unique
// in the result: a later entry resolving to an already seen code is dropped.
func Series(list models.SeriesList, log *zap.Logger) []models.NormalizedSeries {
	if log == nil {
		log = zap.NewNop()
	}

	out := make([]models.NormalizedSeries, 0, len(list))
	seen := make(map[string]int, len(list))
	for i, item := range list {
		var raw models.RawSeries
		if err := json.Unmarshal(item, &raw); err != nil {
			log.Warn("skipping undecodable series", zap.Int("index", i), zap.Error(err))
			continue
		}

		code := seriesCode(raw)
		if code == "" {
			log.Warn("skipping series without code", zap.Int("index", i))
			continue
		}
		if raw.Observations == nil {
			log.Warn("skipping series without observations", zap.Int("index", i), zap.String("code", code))
			continue
		}
		if first, dup := seen[code]; dup {
			log.Warn("skipping duplicate series code",
				zap.Int("index", i),
				zap.Int("first_index", first),
				zap.String("code", code),
			)
			continue
		}
		seen[code] = i

		name := code
		if raw.Name != nil && strings.TrimSpace(*raw.Name) != "" {
			name = strings.TrimSpace(*raw.Name)
		}

		out = append(out, models.NormalizedSeries{
			Metadata: models.SeriesMetadataDraft{
				Code:    code,
				Name:    name,
				UnitID:  raw.UnitID.Raw(),
				ScaleID: raw.ScaleID.Raw(),
			},
			Observations: BuildObservations(*raw.Observations),
		})
	}
	return out
}

// BuildObservations keeps the delivered order; the slice index becomes the ordinal.
func BuildObservations(raw []models.RawObservation) []models.ObservationDraft {
	obs := make([]models.ObservationDraft, 0, len(raw))
	for i, r := range raw {
		obs = append(obs, models.ObservationDraft{
			Ordinal:     i,
			Value:       NormalizeValue(r.Value),
			IsSecret:    r.Secret.Set && r.Secret.Value,
			PeriodID:    r.PeriodID.Ptr(),
			Year:        r.Year.Ptr(),
			DataTypeID:  r.DataTypeID.Ptr(),
			TimestampMs: r.Timestamp.Ptr(),
		})
	}
	return obs
}

// NormalizeValue coerces a raw Valor field; null, missing and non-numeric -> nil.
func NormalizeValue(raw json.RawMessage) *float64 {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil
	}

	text := string(raw)
	if raw[0] == '"' {
		if err := json.Unmarshal(raw, &text); err != nil {
			return nil
		}
		text = strings.TrimSpace(text)
		// decimal comma, as published in Spanish locale exports
		if strings.Count(text, ",") == 1 && !strings.Contains(text, ".") {
			text = strings.Replace(text, ",", ".", 1)
		}
	}
	if text == "" {
		return nil
	}

	d, err := decimal.NewFromString(text)
	if err != nil {
		return nil
	}
	v := d.InexactFloat64()
	return &v
}

func seriesCode(raw models.RawSeries) string {
	if raw.Code != nil {
		if code := strings.TrimSpace(*raw.Code); code != "" {
			return code
		}
	}
	if raw.Name != nil {
		return strings.TrimSpace(*raw.Name)
	}
	return ""
}

// ValuePtrString prints pointer values for logging.
func ValuePtrString(v *float64) string {
	if v == nil {
		return "null"
	}
	return decimal.NewFromFloat(*v).StringFixed(3)
}
