// Package api exposes the Operator's HTTP surface: agent inventory,
// task lifecycle, policy evaluation, the governance ledger, and the
// agent session WebSocket endpoint.
package api

import (
	"context"
	"log/slog"
	"net"
	"net/http"

	echo "github.com/labstack/echo/v5"
	"github.com/labstack/echo/v5/middleware"

	"github.com/nexops/operator/pkg/database"
	"github.com/nexops/operator/pkg/ledger"
	"github.com/nexops/operator/pkg/policy"
	"github.com/nexops/operator/pkg/registry"
	"github.com/nexops/operator/pkg/scheduler"
)

// Server is the Operator's HTTP API server.
type Server struct {
	echo       *echo.Echo
	httpServer *http.Server

	db        *database.Client
	registry  *registry.Registry
	scheduler *scheduler.Scheduler
	policy    *policy.Engine
	ledger    *ledger.Service
	planner   Planner // nil until SetPlanner; task creation fails planning until set
	logger    *slog.Logger
}

// NewServer wires the core collaborators and registers every route.
// db, reg, sched, and pol must not be nil; led may be nil to disable
// audit recording (task creation and completion simply skip it).
func NewServer(db *database.Client, reg *registry.Registry, sched *scheduler.Scheduler, pol *policy.Engine, led *ledger.Service, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		echo:      echo.New(),
		db:        db,
		registry:  reg,
		scheduler: sched,
		policy:    pol,
		ledger:    led,
		logger:    logger,
	}
	s.setupRoutes()
	return s
}

// SetPlanner wires the external planner consulted by POST /tasks.
// Task creation before this is called fails planning immediately,
// the same path as a planner returning an error.
func (s *Server) SetPlanner(p Planner) {
	s.planner = p
}

func (s *Server) setupRoutes() {
	s.echo.Use(middleware.BodyLimit(2 * 1024 * 1024))
	s.echo.Use(securityHeaders())
	s.echo.Use(catalogHeaders(s))

	s.echo.GET("/health", s.healthHandler)
	s.echo.GET("/version", s.versionHandler)

	s.echo.GET("/agents", s.listAgentsHandler)
	s.echo.GET("/agents/:id", s.getAgentHandler)
	s.echo.POST("/agents/:id/ping", s.pingAgentHandler)
	s.echo.DELETE("/agents/:id", s.deleteAgentHandler)

	s.echo.GET("/tasks", s.listTasksHandler)
	s.echo.POST("/tasks", s.createTaskHandler)
	s.echo.GET("/tasks/:id", s.getTaskHandler)
	s.echo.POST("/tasks/:id/approve", s.approveTaskHandler)
	s.echo.POST("/tasks/:id/cancel", s.cancelTaskHandler)
	s.echo.POST("/tasks/:id/retry", s.retryTaskHandler)

	s.echo.POST("/policy/evaluate", s.evaluatePolicyHandler)

	s.echo.POST("/ledger/event", s.appendLedgerEventHandler)
	s.echo.GET("/ledger/events", s.queryLedgerEventsHandler)

	s.echo.GET("/ws", s.wsHandler)
}

// Start starts the HTTP server on addr (blocking).
func (s *Server) Start(addr string) error {
	s.httpServer = &http.Server{Addr: addr, Handler: s.echo}
	return s.httpServer.ListenAndServe()
}

// StartWithListener starts the HTTP server on a pre-created listener.
// Used by test infrastructure to serve on a random OS-assigned port.
func (s *Server) StartWithListener(ln net.Listener) error {
	s.httpServer = &http.Server{Handler: s.echo}
	return s.httpServer.Serve(ln)
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}
