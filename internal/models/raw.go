package models

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
)

// SeriesList is the list of raw series objects returned by DATOS_TABLA.
// Elements are kept undecoded so a single malformed series can be skipped.
type SeriesList []json.RawMessage

// RawSeries models one series object of the remote payload. Every field is
// optional; absence is represented by nil.
type RawSeries struct {
	Code         *string           `json:"COD"`
	Name         *string           `json:"Nombre"`
	UnitID       FlexString        `json:"FK_Unidad"`
	ScaleID      FlexString        `json:"FK_Escala"`
	Observations *[]RawObservation `json:"Data"`
}

// RawObservation models one data point of a series.
type RawObservation struct {
	Value      json.RawMessage `json:"Valor"`
	Secret     FlexBool        `json:"Secreto"`
	PeriodID   FlexInt         `json:"FK_Periodo"`
	Year       FlexInt         `json:"Anyo"`
	DataTypeID FlexInt         `json:"FK_TipoDato"`
	Timestamp  FlexInt         `json:"Fecha"`
}

// FlexString accepts a JSON string or number. Set is false when the field
// was absent or null.
type FlexString struct {
	Value string
	Set   bool
}

func (f *FlexString) UnmarshalJSON(data []byte) error {
	*f = FlexString{}
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = FlexString{Value: s, Set: true}
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*f = FlexString{Value: n.String(), Set: true}
	return nil
}

// Raw returns the value, or the empty string when unset.
func (f FlexString) Raw() string {
	if !f.Set {
		return ""
	}
	return f.Value
}

// FlexInt accepts a JSON integer or a numeric string.
type FlexInt struct {
	Value int64
	Set   bool
}

func (f *FlexInt) UnmarshalJSON(data []byte) error {
	*f = FlexInt{}
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil
	}
	raw := string(data)
	if data[0] == '"' {
		if err := json.Unmarshal(data, &raw); err != nil {
			return err
		}
		raw = strings.TrimSpace(raw)
		if raw == "" {
			return nil
		}
	}
	if n, err := strconv.ParseInt(raw, 10, 64); err == nil {
		*f = FlexInt{Value: n, Set: true}
		return nil
	}
	fl, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		// non-numeric values stay unset
		return nil
	}
	*f = FlexInt{Value: int64(fl), Set: true}
	return nil
}

// Ptr returns a pointer to the value, or nil when unset.
func (f FlexInt) Ptr() *int64 {
	if !f.Set {
		return nil
	}
	v := f.Value
	return &v
}

// FlexBool accepts a JSON bool, a "true"/"false" string or 0/1.
type FlexBool struct {
	Value bool
	Set   bool
}

func (f *FlexBool) UnmarshalJSON(data []byte) error {
	*f = FlexBool{}
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil
	}
	raw := string(data)
	if data[0] == '"' {
		if err := json.Unmarshal(data, &raw); err != nil {
			return err
		}
	}
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "true", "1":
		*f = FlexBool{Value: true, Set: true}
	case "false", "0":
		*f = FlexBool{Value: false, Set: true}
	}
	return nil
}
