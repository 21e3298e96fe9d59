// Package api is the HTTP ingress for story submission and polling. It
// binds requests, maps domain errors to status codes and hands the real work
// to the dispatcher and the repository; nothing in here talks to providers.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/storyloom/storyloom/pkg/dispatch"
	"github.com/storyloom/storyloom/pkg/metrics"
	"github.com/storyloom/storyloom/pkg/models"
	"github.com/storyloom/storyloom/pkg/queue"
)

// StorySubmitter accepts new story jobs. *dispatch.Dispatcher satisfies it.
type StorySubmitter interface {
	Submit(ctx context.Context, input dispatch.SubmitStoryInput) (*models.Story, error)
}

// StoryReader is the read-only repository surface the handlers poll.
// *store.Stories satisfies it.
type StoryReader interface {
	Get(ctx context.Context, storyID string) (*models.Story, error)
	GetDetail(ctx context.Context, storyID string) (*models.StoryDetail, error)
	List(ctx context.Context, filters models.StoryFilters) (*models.StoryListResponse, error)
}

// PoolReporter exposes worker pool health. *queue.WorkerPool satisfies it.
type PoolReporter interface {
	Health() *queue.PoolHealth
}

// Server is the HTTP API server.
type Server struct {
	dispatcher StorySubmitter
	stories    StoryReader
	workerPool PoolReporter
	dbPool     *pgxpool.Pool
	recorder   metrics.Recorder

	scrapeHandler http.Handler
	httpServer    *http.Server
}

// NewServer creates the API server. workerPool and dbPool may be nil in
// API-only deployments; the health endpoint then skips their checks.
func NewServer(dispatcher StorySubmitter, stories StoryReader, workerPool PoolReporter, dbPool *pgxpool.Pool) *Server {
	return &Server{
		dispatcher: dispatcher,
		stories:    stories,
		workerPool: workerPool,
		dbPool:     dbPool,
		recorder:   metrics.Nop(),
	}
}

// WithMetrics wires the request recorder and mounts the scrape handler on
// GET /metrics. Must be called before Start.
func (s *Server) WithMetrics(rec metrics.Recorder, scrape http.Handler) *Server {
	if rec != nil {
		s.recorder = rec
	}
	s.scrapeHandler = scrape
	return s
}

// Router builds the gin engine with all routes registered.
func (s *Server) Router() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(securityHeaders())
	router.Use(requestMetrics(s.recorder))

	v1 := router.Group("/api/v1")
	{
		v1.POST("/stories", s.submitStoryHandler)
		v1.GET("/stories", s.listStoriesHandler)
		v1.GET("/stories/:id", s.getStoryHandler)
		v1.GET("/stories/:id/status", s.storyStatusHandler)
	}

	router.GET("/healthz", s.healthHandler)
	if s.scrapeHandler != nil {
		router.GET("/metrics", gin.WrapH(s.scrapeHandler))
	}

	return router
}

// Start runs the HTTP server on addr, blocking until shutdown or failure.
func (s *Server) Start(addr string) error {
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s.httpServer.ListenAndServe()
}

// Shutdown stops the HTTP server gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}
