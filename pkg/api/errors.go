package api

import (
	"log/slog"
	"net/http"

	echo "github.com/labstack/echo/v5"

	"github.com/nexops/operator/pkg/apierr"
)

// mapError maps a domain error to an HTTP error response. A typed
// *apierr.Error carries its own status via Kind; anything else is an
// unexpected internal error.
func mapError(err error) *echo.HTTPError {
	if e, ok := apierr.As(err); ok {
		return echo.NewHTTPError(e.Kind.Status(), e.Message)
	}

	slog.Error("unexpected error", "error", err)
	return echo.NewHTTPError(http.StatusInternalServerError, "internal server error")
}
