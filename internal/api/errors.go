package api

import (
	"errors"
	"log/slog"
	"net/http"

	echo "github.com/labstack/echo/v5"

	"github.com/deckpipe/deckpipe/internal/store"
)

// mapStoreError maps Job Store errors to HTTP error responses.
func mapStoreError(err error) *echo.HTTPError {
	switch {
	case errors.Is(err, store.ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "job not found")
	case errors.Is(err, store.ErrAlreadyExists):
		return echo.NewHTTPError(http.StatusConflict, "job already exists")
	case errors.Is(err, store.ErrIllegalTransition):
		return echo.NewHTTPError(http.StatusConflict, "job is not in a state that allows this operation")
	default:
		slog.Error("unexpected job store error", "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "internal server error")
	}
}
