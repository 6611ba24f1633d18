package http

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/zerotwo/ine-collector/internal/collector"
)

// handleJobsHealth GET /api/v1/jobs/health
func (s *Server) handleJobsHealth(c *gin.Context) {
	respondOK(c, gin.H{
		"service": "job-service",
		"health":  "healthy",
		"running": s.deps.Collector.Running(),
	})
}

// handleTestConnection GET /api/v1/jobs/test-connection
func (s *Server) handleTestConnection(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 30*time.Second)
	defer cancel()

	connected := s.deps.Collector.TestConnection(ctx)
	respondOK(c, gin.H{
		"connected": connected,
		"message":   "connection test completed",
	})
}

// handleRunCollection runs a collection synchronously and returns its summary.
// A dropped client does not cancel the run.
// POST /api/v1/jobs/run-collection
func (s *Server) handleRunCollection(c *gin.Context) {
	ctx := context.WithoutCancel(c.Request.Context())

	summary, err := s.deps.Collector.Run(ctx)
	if errors.Is(err, collector.ErrRunInProgress) {
		respondError(c, http.StatusConflict, err.Error())
		return
	}
	if err != nil {
		s.log.Error("collection run failed", zap.Error(err))
		respondErr(c, err)
		return
	}

	respondOK(c, gin.H{
		"message": "collection completed",
		"data":    summary,
	})
}
