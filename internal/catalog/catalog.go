package catalog

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/zerotwo/ine-collector/internal/models"
)

const tableListFile = "TABLELIST.json"

// ErrNotFound is returned for an unknown dataset code.
var ErrNotFound = errors.New("dataset not found")

type tableEntry struct {
	Code   string            `json:"Codigo"`
	Name   string            `json:"Nombre"`
	CodIOE models.FlexString `json:"Cod_IOE"`
	ID     models.FlexString `json:"Id"`
	URL    string            `json:"Url"`
}

// Catalog is the immutable dataset catalog, keyed by code.
type Catalog struct {
	entries []models.CatalogEntry
	byCode  map[string]int
}

// New builds a catalog from entries. Entries without a code or external id
// are dropped; the first entry wins on duplicate codes.
func New(entries []models.CatalogEntry) *Catalog {
	c := &Catalog{byCode: make(map[string]int, len(entries))}
	for _, e := range entries {
		e.Code = strings.TrimSpace(e.Code)
		e.ExternalID = strings.TrimSpace(e.ExternalID)
		if e.Code == "" || e.ExternalID == "" {
			continue
		}
		if _, dup := c.byCode[e.Code]; dup {
			continue
		}
		if e.Name == "" {
			e.Name = "Unknown Dataset"
		}
		c.byCode[e.Code] = len(c.entries)
		c.entries = append(c.entries, e)
	}
	return c
}

// Load reads TABLELIST.json from dir. A missing file yields an empty catalog.
func Load(dir string, log *zap.Logger) (*Catalog, error) {
	if log == nil {
		log = zap.NewNop()
	}
	path := filepath.Join(dir, tableListFile)
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		log.Warn("catalog file not found, using empty dataset list", zap.String("path", path))
		return New(nil), nil
	}
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}

	var raw []tableEntry
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decode catalog %s: %w", path, err)
	}

	entries := make([]models.CatalogEntry, 0, len(raw))
	for _, r := range raw {
		externalID := r.CodIOE.Raw()
		if externalID == "" {
			externalID = r.ID.Raw()
		}
		entries = append(entries, models.CatalogEntry{
			Code:       r.Code,
			Name:       r.Name,
			ExternalID: externalID,
			URL:        r.URL,
		})
	}

	c := New(entries)
	log.Info("catalog loaded", zap.String("path", path), zap.Int("datasets", c.Len()))
	return c, nil
}

func (c *Catalog) Len() int {
	return len(c.entries)
}

// Get returns the entry for code or ErrNotFound.
func (c *Catalog) Get(code string) (models.CatalogEntry, error) {
	idx, ok := c.byCode[strings.TrimSpace(code)]
	if !ok {
		return models.CatalogEntry{}, fmt.Errorf("%w: %q", ErrNotFound, code)
	}
	return c.entries[idx], nil
}

// List returns up to limit entries in file order; limit <= 0 means all.
func (c *Catalog) List(limit int) []models.CatalogEntry {
	n := len(c.entries)
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]models.CatalogEntry, n)
	copy(out, c.entries[:n])
	return out
}

// Search matches query case-insensitively against code and name.
func (c *Catalog) Search(query string, limit int) []models.CatalogEntry {
	q := strings.ToLower(strings.TrimSpace(query))
	out := make([]models.CatalogEntry, 0)
	for _, e := range c.entries {
		if strings.Contains(strings.ToLower(e.Code), q) || strings.Contains(strings.ToLower(e.Name), q) {
			out = append(out, e)
			if limit > 0 && len(out) == limit {
				break
			}
		}
	}
	return out
}
