package api

import (
	"net/http"

	echo "github.com/labstack/echo/v5"

	"github.com/nexops/operator/pkg/apierr"
	"github.com/nexops/operator/pkg/policy"
)

// evaluatePolicyHandler handles POST /policy/evaluate. The request
// and response are policy.EvaluateRequest/EvaluateResponse directly:
// both are already the wire shape, so no API-layer DTO translation is
// needed.
func (s *Server) evaluatePolicyHandler(c *echo.Context) error {
	var req policy.EvaluateRequest
	if err := c.Bind(&req); err != nil {
		return mapError(apierr.New(apierr.Input, "malformed policy evaluation request", err))
	}
	if s.policy == nil {
		return mapError(apierr.New(apierr.Configuration, "no policy catalog loaded", nil))
	}

	resp := s.policy.Evaluate(req)
	return c.JSON(http.StatusOK, resp)
}
