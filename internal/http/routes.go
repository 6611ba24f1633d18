package http

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// registerRoutes sets up health checks at the root and the API under /api/v1.
// Groups: /datasets, /data, /jobs
func (s *Server) registerRoutes() {
	s.engine.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	s.engine.GET("/readyz", s.handleReady)

	v1 := s.engine.Group("/api/v1")
	v1.Use(apiVersionMiddleware())

	v1.GET("/health", s.handleHealth)

	datasets := v1.Group("/datasets")
	{
		datasets.GET("", s.handleListDatasets)
		datasets.GET("/search", s.handleSearchDatasets)
		datasets.GET("/:code", s.handleGetDataset)
	}

	data := v1.Group("/data")
	{
		data.GET("/raw/:code", s.handleRawData)
		data.GET("/processed/:code", s.handleProcessedData)
		data.GET("/stored/:code", s.handleStoredData)
		data.GET("/stored/:code/processed", s.handleStoredProcessed)
		data.GET("/metadata/:code", s.handleSeriesMetadata)
	}

	jobs := v1.Group("/jobs")
	{
		jobs.GET("/health", s.handleJobsHealth)
		jobs.GET("/test-connection", s.handleTestConnection)
		jobs.POST("/run-collection", s.handleRunCollection)
	}
}

func apiVersionMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("X-API-Version", "v1")
		c.Next()
	}
}

func (s *Server) handleReady(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
	defer cancel()

	if err := s.deps.Store.Ping(ctx); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ready"})
}

// handleHealth GET /api/v1/health
func (s *Server) handleHealth(c *gin.Context) {
	respondOK(c, gin.H{
		"service":  "ine-collector",
		"health":   "healthy",
		"datasets": s.deps.Catalog.Len(),
	})
}
