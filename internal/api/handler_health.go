package api

import (
	"context"
	"net/http"
	"time"

	echo "github.com/labstack/echo/v5"
)

// healthHandler handles GET /health.
func (s *Server) healthHandler(c *echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	resp := &HealthResponse{Status: "healthy", Database: "healthy"}

	if err := s.db.Health(ctx); err != nil {
		resp.Status = "unhealthy"
		resp.Database = "unhealthy: " + err.Error()
	}

	if s.scheduler != nil {
		for _, ph := range s.scheduler.Health() {
			resp.Queues = append(resp.Queues, queueHealthView{
				Queue:         ph.Queue,
				ActiveWorkers: ph.ActiveWorkers,
				TotalWorkers:  ph.TotalWorkers,
			})
		}
	}

	status := http.StatusOK
	if resp.Status != "healthy" {
		status = http.StatusServiceUnavailable
	}
	return c.JSON(status, resp)
}
