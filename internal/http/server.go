package http

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/zerotwo/ine-collector/internal/config"
	"github.com/zerotwo/ine-collector/internal/db"
	"github.com/zerotwo/ine-collector/internal/enrich"
	"github.com/zerotwo/ine-collector/internal/models"
)

// Catalog is the read side of the static dataset catalog.
type Catalog interface {
	Len() int
	Get(code string) (models.CatalogEntry, error)
	List(limit int) []models.CatalogEntry
	Search(query string, limit int) []models.CatalogEntry
}

// Fetcher performs live reads against the remote API.
type Fetcher interface {
	Fetch(ctx context.Context, externalID string) (models.SeriesList, error)
	TableURL(externalID string) string
}

// Store serves the stored views.
type Store interface {
	Ping(ctx context.Context) error
	GetDatasetByCode(ctx context.Context, code string) (*models.Dataset, error)
	StoredSeries(ctx context.Context, datasetExternalID string) ([]db.StoredSeries, error)
	LoadSeries(ctx context.Context, datasetExternalID string) ([]models.NormalizedSeries, error)
	SeriesMetadata(ctx context.Context, datasetExternalID string) ([]db.SeriesMetadataRow, error)
}

// Collector triggers collection runs.
type Collector interface {
	Run(ctx context.Context) (models.RunSummary, error)
	Running() bool
	TestConnection(ctx context.Context) bool
}

// Deps groups the collaborators the handlers use.
type Deps struct {
	Catalog   Catalog
	Fetcher   Fetcher
	Store     Store
	Collector Collector
	Enricher  *enrich.Enricher
}

// Server bundles router and dependencies for the REST API.
type Server struct {
	cfg    config.Config
	deps   Deps
	log    *zap.Logger
	engine *gin.Engine
}

// New constructs a server with routes and middleware.
func New(cfg config.Config, deps Deps, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	if deps.Enricher == nil {
		deps.Enricher = enrich.New(nil)
	}

	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(requestLogger(log))
	engine.Use(corsMiddleware(cfg.AllowedOrigins))

	server := &Server{cfg: cfg, deps: deps, log: log, engine: engine}
	server.registerRoutes()
	return server
}

// Engine exposes the underlying gin engine (for tests).
func (s *Server) Engine() *gin.Engine {
	return s.engine
}

// Run starts the HTTP server and blocks until shutdown.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.ListenAddr(),
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("http server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

func requestLogger(log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.Info("request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
		)
	}
}

func corsMiddleware(allowed []string) gin.HandlerFunc {
	origins := make(map[string]struct{}, len(allowed))
	wildcard := false
	for _, o := range allowed {
		if o == "*" {
			wildcard = true
		}
		origins[o] = struct{}{}
	}

	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		if origin != "" {
			if _, ok := origins[origin]; ok || wildcard {
				c.Header("Access-Control-Allow-Origin", origin)
				c.Header("Access-Control-Allow-Credentials", "true")
				c.Header("Vary", "Origin")
			}
		}
		c.Header("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}
