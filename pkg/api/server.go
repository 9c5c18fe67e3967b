// Package api provides the HTTP surface for evoengine: job submission and
// status endpoints for external clients, plus the /orchestrate and
// /worker endpoints the task queue dispatcher posts to.
package api

import (
	"context"
	"net/http"
	"os"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/evoengine/evoengine/pkg/config"
	"github.com/evoengine/evoengine/pkg/database"
	"github.com/evoengine/evoengine/pkg/orchestrator"
	"github.com/evoengine/evoengine/pkg/store"
	"github.com/evoengine/evoengine/pkg/taskqueue"
	"github.com/evoengine/evoengine/pkg/version"
	"github.com/evoengine/evoengine/pkg/workers"
)

// Server is the HTTP API server.
type Server struct {
	router       *gin.Engine
	httpServer   *http.Server
	cfg          *config.Config
	dbClient     *database.Client
	store        *store.Store
	queue        *taskqueue.Queue
	orchestrator *orchestrator.Orchestrator
	variator     *workers.Variator
	enricher     *workers.Enricher
	ranker       *workers.Ranker
}

// NewServer creates the router and registers every route.
func NewServer(
	cfg *config.Config,
	dbClient *database.Client,
	s *store.Store,
	q *taskqueue.Queue,
	orch *orchestrator.Orchestrator,
	variator *workers.Variator,
	enricher *workers.Enricher,
	ranker *workers.Ranker,
) *Server {
	router := gin.New()
	router.Use(gin.Recovery(), securityHeaders())

	srv := &Server{
		router:       router,
		cfg:          cfg,
		dbClient:     dbClient,
		store:        s,
		queue:        q,
		orchestrator: orch,
		variator:     variator,
		enricher:     enricher,
		ranker:       ranker,
	}

	srv.setupRoutes()
	return srv
}

func (s *Server) setupRoutes() {
	s.router.GET("/health", s.healthHandler)

	v1 := s.router.Group("/api/v1")
	v1.POST("/jobs", s.createJobHandler)
	v1.GET("/jobs/:id", s.getJobHandler)
	v1.GET("/jobs/:id/results", s.getJobResultsHandler)
	v1.POST("/jobs/:id/cancel", s.cancelJobHandler)

	var secret string
	if s.cfg.Queue.DispatchSharedSecretEnv != "" {
		secret = os.Getenv(s.cfg.Queue.DispatchSharedSecretEnv)
	}
	dispatch := s.router.Group("/", dispatchAuth(secret))
	dispatch.POST("/orchestrate", s.orchestrateHandler)
	dispatch.POST("/worker", s.workerHandler)
}

// Start starts the HTTP server on addr (blocking).
func (s *Server) Start(addr string) error {
	s.httpServer = &http.Server{Addr: addr, Handler: s.router}
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) healthHandler(c *gin.Context) {
	reqCtx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	dbHealth, err := database.Health(reqCtx, s.dbClient.DB())
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status":   "unhealthy",
			"version":  version.Full(),
			"database": dbHealth,
			"error":    err.Error(),
		})
		return
	}

	stats := s.cfg.Stats()
	c.JSON(http.StatusOK, gin.H{
		"status":   "healthy",
		"version":  version.Full(),
		"database": dbHealth,
		"configuration": gin.H{
			"default_generations":     stats.DefaultGenerations,
			"default_population_size": stats.DefaultPopulationSize,
			"enricher_concurrency":    stats.EnricherConcurrency,
			"dispatcher_worker_count": stats.DispatcherWorkerCount,
		},
	})
}
