package api

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	echo "github.com/labstack/echo/v5"

	"github.com/nexops/operator/pkg/ledger"
	"github.com/nexops/operator/pkg/registry"
	"github.com/nexops/operator/pkg/version"
)

const wsWriteTimeout = 5 * time.Second

// wsSession adapts one WebSocket connection to registry.Session. Send
// may be called from the dispatcher or a broadcast goroutine while
// wsHandler's own goroutine blocks in conn.Read; coder/websocket
// serializes concurrent writers on the same connection, so no
// additional locking is needed here.
type wsSession struct {
	conn *websocket.Conn
}

func (s *wsSession) Send(ctx context.Context, message interface{}) error {
	data, err := json.Marshal(message)
	if err != nil {
		return fmt.Errorf("marshal agent message: %w", err)
	}
	writeCtx, cancel := context.WithTimeout(ctx, wsWriteTimeout)
	defer cancel()
	return s.conn.Write(writeCtx, websocket.MessageText, data)
}

func (s *wsSession) Close() error {
	return s.conn.Close(websocket.StatusNormalClosure, "")
}

// inboundFrame is the envelope every agent-to-operator message opens
// with. Payload is re-decoded per concrete type once Type is known.
type inboundFrame struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type taskOutputPayload struct {
	TaskID       string `json:"task_id"`
	Stream       string `json:"stream"`
	Content      string `json:"content"`
	CommandIndex *int   `json:"command_index,omitempty"`
}

type commandResultPayload struct {
	TaskID       string    `json:"task_id"`
	CommandIndex int       `json:"command_index"`
	Command      string    `json:"command"`
	ExitCode     int       `json:"exit_code"`
	DurationMs   int64     `json:"duration_ms"`
	StartedAt    time.Time `json:"started_at"`
	CompletedAt  time.Time `json:"completed_at"`
}

type taskCompletePayload struct {
	TaskID   string `json:"task_id"`
	Success  bool   `json:"success"`
	ExitCode int    `json:"exit_code"`
	Output   string `json:"output,omitempty"`
	Error    string `json:"error,omitempty"`
}

// wsHandler upgrades the HTTP connection and runs the agent session
// protocol (register, then heartbeat/task_output/command_result/
// task_complete/pong) until the connection closes.
func (s *Server) wsHandler(c *echo.Context) error {
	conn, err := websocket.Accept(c.Response(), c.Request(), &websocket.AcceptOptions{
		// Origin checking is left to a reverse proxy / allowlist in
		// front of the Operator; agents dial a private address.
		InsecureSkipVerify: true,
	})
	if err != nil {
		return err
	}

	session := &wsSession{conn: conn}
	ctx := c.Request().Context()

	agentID, err := s.awaitRegistration(ctx, session)
	if err != nil {
		s.logger.Warn("agent registration failed", "error", err)
		_ = conn.Close(websocket.StatusPolicyViolation, err.Error())
		return nil
	}
	defer s.registry.Unregister(agentID)

	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			return nil
		}

		var frame inboundFrame
		if err := json.Unmarshal(data, &frame); err != nil {
			s.logger.Warn("invalid agent frame", "agent_id", agentID, "error", err)
			continue
		}
		s.handleAgentFrame(ctx, agentID, frame)
	}
}

// awaitRegistration blocks for the connection's first frame, which
// must be a "register" frame, and registers the agent before any
// other frame type is accepted.
func (s *Server) awaitRegistration(ctx context.Context, session *wsSession) (string, error) {
	_, data, err := session.conn.Read(ctx)
	if err != nil {
		return "", fmt.Errorf("read register frame: %w", err)
	}

	var frame inboundFrame
	if err := json.Unmarshal(data, &frame); err != nil {
		return "", fmt.Errorf("decode register frame: %w", err)
	}
	if frame.Type != "register" {
		return "", fmt.Errorf("first frame must be register, got %q", frame.Type)
	}

	var reg registry.Registration
	if err := json.Unmarshal(frame.Payload, &reg); err != nil {
		return "", fmt.Errorf("decode registration: %w", err)
	}
	if reg.ID == "" {
		return "", fmt.Errorf("registration missing id")
	}

	s.registry.Register(reg, session)

	if err := session.Send(ctx, map[string]interface{}{
		"type":     "registered",
		"agent_id": reg.ID,
		"message":  fmt.Sprintf("connected to %s", version.Full()),
	}); err != nil {
		return "", fmt.Errorf("send registered ack: %w", err)
	}
	return reg.ID, nil
}

func (s *Server) handleAgentFrame(ctx context.Context, agentID string, frame inboundFrame) {
	switch frame.Type {
	case "heartbeat":
		var hb registry.Heartbeat
		if err := json.Unmarshal(frame.Payload, &hb); err != nil {
			s.logger.Warn("invalid heartbeat frame", "agent_id", agentID, "error", err)
			return
		}
		s.registry.Heartbeat(hb)

	case "task_output":
		var out taskOutputPayload
		if err := json.Unmarshal(frame.Payload, &out); err != nil {
			s.logger.Warn("invalid task_output frame", "agent_id", agentID, "error", err)
			return
		}
		s.logger.Debug("task output", "agent_id", agentID, "task_id", out.TaskID, "stream", out.Stream)

	case "command_result":
		var res commandResultPayload
		if err := json.Unmarshal(frame.Payload, &res); err != nil {
			s.logger.Warn("invalid command_result frame", "agent_id", agentID, "error", err)
			return
		}
		s.logger.Info("command result", "agent_id", agentID, "task_id", res.TaskID,
			"command_index", res.CommandIndex, "exit_code", res.ExitCode)

	case "task_complete":
		var done taskCompletePayload
		if err := json.Unmarshal(frame.Payload, &done); err != nil {
			s.logger.Warn("invalid task_complete frame", "agent_id", agentID, "error", err)
			return
		}
		s.finishTask(ctx, agentID, done)

	case "pong":
		// liveness reply to our own ping; nothing to update beyond
		// last_seen, which the next heartbeat will refresh.

	default:
		s.logger.Warn("unknown agent frame type", "agent_id", agentID, "type", frame.Type)
	}
}

func (s *Server) finishTask(ctx context.Context, agentID string, done taskCompletePayload) {
	task, err := s.scheduler.CompleteTask(done.TaskID, done.Success, done.ExitCode, done.Output, done.Error)
	if err != nil {
		s.logger.Error("complete task failed", "task_id", done.TaskID, "agent_id", agentID, "error", err)
		return
	}

	if s.ledger == nil {
		return
	}
	if _, err := s.ledger.RecordTaskCompleted(uuid.New(), task.ID, done.Success, done.ExitCode, done.Output, done.Error, ledger.Actor{AgentID: agentID}); err != nil {
		s.logger.Error("failed to record task completion", "task_id", task.ID, "error", err)
	}
}
