// Package api implements the Job API: HTTP handlers for submitting jobs,
// reading status, requesting cancellation, fetching output, and a
// WebSocket endpoint for live status streaming.
package api

import (
	"context"
	"net/http"

	echo "github.com/labstack/echo/v5"
	"github.com/labstack/echo/v5/middleware"

	"github.com/deckpipe/deckpipe/internal/config"
	"github.com/deckpipe/deckpipe/internal/models"
	"github.com/deckpipe/deckpipe/internal/queue"
	"github.com/deckpipe/deckpipe/internal/wsfanout"
)

// StatusReader is the subset of the Status Channel the API reads live
// progress from, to merge over the Job Store's terminal-state record.
type StatusReader interface {
	Get(ctx context.Context, jobID string) (*models.StatusSnapshot, bool, error)
}

// JobStore is the subset of the Job Store the API depends on.
type JobStore interface {
	Create(ctx context.Context, job *models.Job) error
	Get(ctx context.Context, id string) (*models.Job, error)
	List(ctx context.Context, filter models.ListFilter) ([]*models.Job, error)
	Update(ctx context.Context, id string, fromStatus models.JobStatus, patch models.Patch) error
}

// Scheduler is the subset of the Job Scheduler the API depends on.
type Scheduler interface {
	Cancel(jobID string) bool
	Health() []queue.PoolHealth
}

// DatabasePinger is the subset of the database client the health endpoint
// depends on.
type DatabasePinger interface {
	Health(ctx context.Context) error
}

// Server is the Job API's HTTP server, built on echo/v5.
type Server struct {
	echo       *echo.Echo
	httpServer *http.Server

	jobStore  JobStore
	scheduler Scheduler
	db        DatabasePinger
	status    StatusReader
	ws        *wsfanout.Manager
}

// NewServer constructs a Server and registers all routes.
func NewServer(cfg config.ServerConfig, jobStore JobStore, scheduler Scheduler, db DatabasePinger, status StatusReader, ws *wsfanout.Manager) *Server {
	e := echo.New()

	s := &Server{
		echo:      e,
		jobStore:  jobStore,
		scheduler: scheduler,
		db:        db,
		status:    status,
		ws:        ws,
	}

	s.setupRoutes(cfg)
	return s
}

func (s *Server) setupRoutes(cfg config.ServerConfig) {
	s.echo.Use(middleware.BodyLimit(8 * 1024 * 1024))
	s.echo.Use(securityHeaders())

	s.echo.GET("/health", s.healthHandler)

	v1 := s.echo.Group("/api/v1")
	v1.POST("/jobs", s.submitJobHandler)
	v1.GET("/jobs", s.listJobsHandler)
	v1.GET("/jobs/:id", s.getJobHandler)
	v1.POST("/jobs/:id/cancel", s.cancelJobHandler)
	v1.GET("/jobs/:id/output", s.outputJobHandler)
	v1.GET("/jobs/:id/stream", s.streamJobHandler(cfg.AllowedWSOrigins))
}

// Start starts the HTTP server on addr (blocking).
func (s *Server) Start(addr string) error {
	s.httpServer = &http.Server{Addr: addr, Handler: s.echo}
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}
