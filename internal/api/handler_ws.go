package api

import (
	"net/http"

	"github.com/coder/websocket"
	echo "github.com/labstack/echo/v5"
)

// streamJobHandler upgrades the request to a WebSocket and delegates to the
// WebSocket Fanout Manager for the job named by :id. allowedOrigins
// restricts which browser origins may connect; an empty list accepts any
// origin, deferring origin policy to the deployment's reverse proxy.
func (s *Server) streamJobHandler(allowedOrigins []string) echo.HandlerFunc {
	return func(c *echo.Context) error {
		if s.ws == nil {
			return echo.NewHTTPError(http.StatusServiceUnavailable, "websocket streaming not available")
		}
		jobID := c.Param("id")
		if jobID == "" {
			return echo.NewHTTPError(http.StatusBadRequest, "job id is required")
		}

		opts := &websocket.AcceptOptions{}
		if len(allowedOrigins) > 0 {
			opts.OriginPatterns = allowedOrigins
		} else {
			opts.InsecureSkipVerify = true
		}

		conn, err := websocket.Accept(c.Response(), c.Request(), opts)
		if err != nil {
			return err
		}

		s.ws.HandleConnection(c.Request().Context(), jobID, conn)
		return nil
	}
}
