package api

import (
	"context"
	"net/http"
	"time"

	echo "github.com/labstack/echo/v5"
)

// listAgentsHandler handles GET /agents.
func (s *Server) listAgentsHandler(c *echo.Context) error {
	return c.JSON(http.StatusOK, s.registry.All())
}

// getAgentHandler handles GET /agents/{id}.
func (s *Server) getAgentHandler(c *echo.Context) error {
	agent, ok := s.registry.Get(c.Param("id"))
	if !ok {
		return echo.NewHTTPError(http.StatusNotFound, "agent not found")
	}
	return c.JSON(http.StatusOK, agent)
}

const pingTimeout = 5 * time.Second

// pingAgentHandler handles POST /agents/{id}/ping, a liveness probe
// independent of the heartbeat cadence — useful right after a
// register to confirm the session is actually writable.
func (s *Server) pingAgentHandler(c *echo.Context) error {
	id := c.Param("id")
	if _, ok := s.registry.Get(id); !ok {
		return echo.NewHTTPError(http.StatusNotFound, "agent not found")
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), pingTimeout)
	defer cancel()

	if err := s.registry.Send(ctx, id, map[string]string{"type": "ping"}); err != nil {
		return echo.NewHTTPError(http.StatusBadGateway, err.Error())
	}
	return c.NoContent(http.StatusAccepted)
}

// deleteAgentHandler handles DELETE /agents/{id}: forcibly drops the
// agent's session, the same path a transport failure takes.
func (s *Server) deleteAgentHandler(c *echo.Context) error {
	id := c.Param("id")
	if _, ok := s.registry.Get(id); !ok {
		return echo.NewHTTPError(http.StatusNotFound, "agent not found")
	}
	s.registry.Unregister(id)
	return c.NoContent(http.StatusNoContent)
}
