package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	echo "github.com/labstack/echo/v5"

	"github.com/nexops/operator/pkg/apierr"
	"github.com/nexops/operator/pkg/ledger"
)

// appendLedgerEventHandler handles POST /ledger/event. The body is a
// ledger.EventCreate directly; the ledger assigns id and
// recorded_at.
func (s *Server) appendLedgerEventHandler(c *echo.Context) error {
	var ev ledger.EventCreate
	if err := c.Bind(&ev); err != nil {
		return mapError(apierr.New(apierr.Input, "malformed ledger event", err))
	}

	recorded, err := s.ledger.Record(ev)
	if err != nil {
		return mapError(apierr.New(apierr.Configuration, "append ledger event", err))
	}
	return c.JSON(http.StatusCreated, recorded)
}

// queryLedgerEventsHandler handles GET /ledger/events, translating
// query-string parameters into a ledger.Query.
func (s *Server) queryLedgerEventsHandler(c *echo.Context) error {
	q := ledger.Query{
		ActorUserID:  c.QueryParam("actor_user_id"),
		ActorAgentID: c.QueryParam("actor_agent_id"),
		Action:       c.QueryParam("action"),
		PolicyScope:  c.QueryParam("policy_scope"),
		Decision:     ledger.Decision(c.QueryParam("decision")),
		Host:         c.QueryParam("host"),
		Service:      c.QueryParam("service"),
	}

	if v := c.QueryParam("correlation_id"); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			return mapError(apierr.New(apierr.Input, "invalid correlation_id", err))
		}
		q.CorrelationID = &id
	}
	if v := c.QueryParam("occurred_after"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return mapError(apierr.New(apierr.Input, "invalid occurred_after", err))
		}
		q.OccurredAfter = &t
	}
	if v := c.QueryParam("occurred_before"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return mapError(apierr.New(apierr.Input, "invalid occurred_before", err))
		}
		q.OccurredBefore = &t
	}
	if v := c.QueryParam("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return mapError(apierr.New(apierr.Input, "invalid limit", err))
		}
		q.Limit = n
	}
	if v := c.QueryParam("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return mapError(apierr.New(apierr.Input, "invalid offset", err))
		}
		q.Offset = n
	}

	return c.JSON(http.StatusOK, s.ledger.Query(q))
}
