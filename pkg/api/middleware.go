package api

import (
	echo "github.com/labstack/echo/v5"

	"github.com/nexops/operator/pkg/version"
)

// securityHeaders returns middleware that sets standard security response headers.
func securityHeaders() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c *echo.Context) error {
			h := c.Response().Header()
			h.Set("X-Frame-Options", "DENY")
			h.Set("X-Content-Type-Options", "nosniff")
			h.Set("Referrer-Policy", "strict-origin-when-cross-origin")
			h.Set("Permissions-Policy", "camera=(), microphone=(), geolocation=()")
			return next(c)
		}
	}
}

// catalogHeaders stamps every response with the Operator's build
// version and the loaded policy catalog's version, per the external
// interfaces contract that every response carries both.
func catalogHeaders(s *Server) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c *echo.Context) error {
			h := c.Response().Header()
			h.Set("X-Operator-Version", version.Full())
			if s.policy != nil {
				h.Set("X-Catalog-Version", s.policy.CatalogVersion())
			}
			return next(c)
		}
	}
}
