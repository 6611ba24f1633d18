package http

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/zerotwo/ine-collector/internal/db"
)

const (
	defaultSearchLimit = 20
	maxSearchLimit     = 100
)

// handleListDatasets returns the dataset catalog
// GET /api/v1/datasets
func (s *Server) handleListDatasets(c *gin.Context) {
	limit := 0
	if v := c.Query("limit"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed <= 0 {
			respondError(c, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = parsed
	}

	entries := s.deps.Catalog.List(limit)
	respondOK(c, gin.H{
		"count":    len(entries),
		"total":    s.deps.Catalog.Len(),
		"datasets": entries,
	})
}

// handleSearchDatasets matches datasets by code or name
// GET /api/v1/datasets/search?q=&limit=
func (s *Server) handleSearchDatasets(c *gin.Context) {
	q := strings.TrimSpace(c.Query("q"))
	if len(q) < 2 {
		respondError(c, http.StatusBadRequest, "q must be at least 2 characters")
		return
	}

	limit := defaultSearchLimit
	if v := c.Query("limit"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed < 1 || parsed > maxSearchLimit {
			respondError(c, http.StatusBadRequest, "limit must be between 1 and 100")
			return
		}
		limit = parsed
	}

	results := s.deps.Catalog.Search(q, limit)
	respondOK(c, gin.H{
		"query":    q,
		"count":    len(results),
		"datasets": results,
	})
}

// handleGetDataset returns the catalog entry plus its stored collection
// state when the dataset has been synced.
// GET /api/v1/datasets/:code
func (s *Server) handleGetDataset(c *gin.Context) {
	entry, err := s.deps.Catalog.Get(c.Param("code"))
	if err != nil {
		respondErr(c, err)
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
	defer cancel()

	payload := gin.H{
		"dataset": entry,
		"api_url": s.deps.Fetcher.TableURL(entry.ExternalID),
	}
	stored, err := s.deps.Store.GetDatasetByCode(ctx, entry.Code)
	switch {
	case err == nil:
		payload["active"] = stored.Active
		payload["last_collected_ms"] = stored.LastCollectedMs
	case errors.Is(err, db.ErrDatasetNotFound):
	default:
		s.log.Warn("dataset state unavailable", zap.String("code", entry.Code), zap.Error(err))
	}
	respondOK(c, payload)
}
