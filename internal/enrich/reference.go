package enrich

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/zerotwo/ine-collector/internal/models"
)

const (
	unitsFile    = "units.json"
	metadataFile = "ice_metadata.json"
)

// Mapping is an immutable id -> description table.
type Mapping map[string]string

// Reference bundles the lookup tables used for enrichment. It is built once
// and never mutated, so it can be shared across goroutines.
type Reference struct {
	Units     Mapping
	Scales    Mapping
	Periods   Mapping
	DataTypes Mapping
}

// MetadataLoaded reports whether any field mapping besides units was loaded.
func (r *Reference) MetadataLoaded() bool {
	return len(r.Scales) > 0 || len(r.Periods) > 0 || len(r.DataTypes) > 0
}

type unitEntry struct {
	ID   models.FlexString `json:"Id"`
	Name string            `json:"Nombre"`
}

// LoadReference reads units.json and ice_metadata.json from dir. Missing
// files yield empty mappings; unreadable files are logged and ignored.
func LoadReference(dir string, log *zap.Logger) *Reference {
	if log == nil {
		log = zap.NewNop()
	}
	ref := &Reference{
		Units:     Mapping{},
		Scales:    Mapping{},
		Periods:   Mapping{},
		DataTypes: Mapping{},
	}

	units, err := loadUnits(filepath.Join(dir, unitsFile))
	switch {
	case errors.Is(err, fs.ErrNotExist):
		log.Warn("units file not found, using empty units", zap.String("dir", dir))
	case err != nil:
		log.Error("failed to load units", zap.Error(err))
	default:
		ref.Units = units
	}

	fields, err := loadFieldMetadata(filepath.Join(dir, metadataFile))
	switch {
	case errors.Is(err, fs.ErrNotExist):
		log.Warn("metadata file not found, using empty metadata", zap.String("dir", dir))
	case err != nil:
		log.Error("failed to load metadata", zap.Error(err))
	default:
		if m := fields["FK_Escala"]; m != nil {
			ref.Scales = m
		}
		if m := fields["FK_Periodo"]; m != nil {
			ref.Periods = m
		}
		if m := fields["FK_TipoDato"]; m != nil {
			ref.DataTypes = m
		}
		if m := fields["FK_Unidad"]; m != nil {
			for k, v := range m {
				if _, ok := ref.Units[k]; !ok {
					ref.Units[k] = v
				}
			}
		}
	}

	log.Info("reference mappings loaded",
		zap.Int("units", len(ref.Units)),
		zap.Int("scales", len(ref.Scales)),
		zap.Int("periods", len(ref.Periods)),
		zap.Int("data_types", len(ref.DataTypes)),
	)
	return ref
}

func loadUnits(path string) (Mapping, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var entries []unitEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	out := make(Mapping, len(entries))
	for _, e := range entries {
		if !e.ID.Set || e.ID.Value == "" {
			continue
		}
		name := e.Name
		if name == "" {
			name = "Unit " + e.ID.Value
		}
		out[e.ID.Value] = name
	}
	return out, nil
}

func loadFieldMetadata(path string) (map[string]Mapping, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var out map[string]Mapping
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return out, nil
}
