package api

import (
	"context"
	"net/http"
	"strconv"
	"time"

	echo "github.com/labstack/echo/v5"

	"github.com/nexops/operator/pkg/database"
	"github.com/nexops/operator/pkg/version"
)

const (
	healthStatusHealthy   = "healthy"
	healthStatusDegraded  = "degraded"
	healthStatusUnhealthy = "unhealthy"
)

// healthHandler handles GET /health. It checks only the Operator's
// own dependencies (database, agent registry); an external agent
// being unreachable is not a reason to report the control plane
// itself unhealthy.
func (s *Server) healthHandler(c *echo.Context) error {
	reqCtx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	checks := make(map[string]HealthCheck)
	status := healthStatusHealthy

	pool, err := database.Ping(reqCtx, s.db.DB())
	switch {
	case err != nil:
		status = healthStatusUnhealthy
		checks["database"] = HealthCheck{Status: healthStatusUnhealthy, Message: err.Error()}
	case pool.Status == healthStatusDegraded:
		if status == healthStatusHealthy {
			status = healthStatusDegraded
		}
		checks["database"] = HealthCheck{
			Status:  healthStatusDegraded,
			Message: strconv.FormatInt(pool.WaitCount, 10) + " connections waited for the pool",
		}
	default:
		checks["database"] = HealthCheck{Status: healthStatusHealthy}
	}

	online := len(s.registry.Online())
	checks["agents"] = HealthCheck{Status: healthStatusHealthy, Message: strconv.Itoa(online) + " online"}
	if online == 0 && status == healthStatusHealthy {
		status = healthStatusDegraded
		checks["agents"] = HealthCheck{Status: healthStatusDegraded, Message: "no agents online"}
	}

	httpStatus := http.StatusOK
	if status == healthStatusUnhealthy {
		httpStatus = http.StatusServiceUnavailable
	}

	return c.JSON(httpStatus, &HealthResponse{
		Status:  status,
		Version: version.Full(),
		Checks:  checks,
	})
}

// versionHandler handles GET /version.
func (s *Server) versionHandler(c *echo.Context) error {
	resp := &VersionResponse{Version: version.Full()}
	if s.policy != nil {
		resp.CatalogVersion = s.policy.CatalogVersion()
	}
	return c.JSON(http.StatusOK, resp)
}
