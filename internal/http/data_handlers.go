package http

import (
	"context"
	"fmt"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/zerotwo/ine-collector/internal/models"
	"github.com/zerotwo/ine-collector/internal/normalize"
)

const storeReadTimeout = 30 * time.Second

// handleRawData fetches a table live and returns it untouched
// GET /api/v1/data/raw/:code
func (s *Server) handleRawData(c *gin.Context) {
	entry, err := s.deps.Catalog.Get(c.Param("code"))
	if err != nil {
		respondErr(c, err)
		return
	}

	raw, err := s.deps.Fetcher.Fetch(c.Request.Context(), entry.ExternalID)
	if err != nil {
		s.log.Warn("live fetch failed", zap.String("code", entry.Code), zap.Error(err))
		respondErr(c, err)
		return
	}

	respondOK(c, gin.H{
		"codigo":       entry.Code,
		"dataset_name": entry.Name,
		"external_id":  entry.ExternalID,
		"record_count": len(raw),
		"raw_data":     raw,
		"message":      fmt.Sprintf("Fetched raw data for %s", entry.Code),
	})
}

// handleProcessedData fetches a table live, normalizes and enriches it
// GET /api/v1/data/processed/:code
func (s *Server) handleProcessedData(c *gin.Context) {
	entry, err := s.deps.Catalog.Get(c.Param("code"))
	if err != nil {
		respondErr(c, err)
		return
	}

	raw, err := s.deps.Fetcher.Fetch(c.Request.Context(), entry.ExternalID)
	if err != nil {
		s.log.Warn("live fetch failed", zap.String("code", entry.Code), zap.Error(err))
		respondErr(c, err)
		return
	}

	series := normalize.Series(raw, s.log)
	s.respondEnriched(c, entry, series)
}

// handleStoredData returns the stored series of a dataset
// GET /api/v1/data/stored/:code
func (s *Server) handleStoredData(c *gin.Context) {
	entry, err := s.deps.Catalog.Get(c.Param("code"))
	if err != nil {
		respondErr(c, err)
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), storeReadTimeout)
	defer cancel()

	stored, err := s.deps.Store.StoredSeries(ctx, entry.ExternalID)
	if err != nil {
		respondErr(c, err)
		return
	}

	records := 0
	for _, st := range stored {
		records += len(st.DataPoints)
	}
	respondOK(c, gin.H{
		"codigo":       entry.Code,
		"dataset_name": entry.Name,
		"external_id":  entry.ExternalID,
		"series_count": len(stored),
		"record_count": records,
		"data":         stored,
	})
}

// handleStoredProcessed enriches the stored series of a dataset
// GET /api/v1/data/stored/:code/processed
func (s *Server) handleStoredProcessed(c *gin.Context) {
	entry, err := s.deps.Catalog.Get(c.Param("code"))
	if err != nil {
		respondErr(c, err)
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), storeReadTimeout)
	defer cancel()

	series, err := s.deps.Store.LoadSeries(ctx, entry.ExternalID)
	if err != nil {
		respondErr(c, err)
		return
	}
	s.respondEnriched(c, entry, series)
}

// handleSeriesMetadata GET /api/v1/data/metadata/:code
func (s *Server) handleSeriesMetadata(c *gin.Context) {
	entry, err := s.deps.Catalog.Get(c.Param("code"))
	if err != nil {
		respondErr(c, err)
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), storeReadTimeout)
	defer cancel()

	rows, err := s.deps.Store.SeriesMetadata(ctx, entry.ExternalID)
	if err != nil {
		respondErr(c, err)
		return
	}
	respondOK(c, gin.H{
		"codigo":       entry.Code,
		"external_id":  entry.ExternalID,
		"series_count": len(rows),
		"series":       rows,
	})
}

func (s *Server) respondEnriched(c *gin.Context, entry models.CatalogEntry, series []models.NormalizedSeries) {
	enriched := s.deps.Enricher.Enrich(series)
	summary := s.deps.Enricher.Summarize(enriched)

	respondOK(c, gin.H{
		"codigo":         entry.Code,
		"dataset_name":   entry.Name,
		"external_id":    entry.ExternalID,
		"series_count":   len(enriched),
		"record_count":   summary.TotalDataPoints,
		"processed_data": enriched,
		"summary":        summary,
		"message":        fmt.Sprintf("Processed %d records for %s", summary.TotalDataPoints, entry.Code),
	})
}
