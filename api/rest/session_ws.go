package rest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/gofiber/fiber/v2"
	fiberws "github.com/gofiber/websocket/v2"

	"allin1/orchestrator/internal/engine"
	"allin1/orchestrator/internal/session"
	"allin1/orchestrator/internal/store"
	"allin1/orchestrator/pkg/logger"
	"allin1/orchestrator/pkg/types"
)

// setupSessionWSRoute registers the Fiber-native session channel.
func (s *Server) setupSessionWSRoute() {
	s.app.Use("/api/v1/tasks/:id/session", func(c *fiber.Ctx) error {
		if fiberws.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})

	s.app.Get("/api/v1/tasks/:id/session", fiberws.New(func(c *fiberws.Conn) {
		s.handleSession(c)
	}))
}

// sessionConn is the slice of the WebSocket connection the session needs.
type sessionConn interface {
	ReadJSON(v any) error
	WriteJSON(v any) error
}

// wsSession adapts one WebSocket connection to the session callback
// contract. The protocol is strict request/reply: after sending a
// question the session reads messages until the expected reply type
// arrives. There is never more than one outstanding exchange, so a plain
// sequential read loop is sufficient.
//
// 会话通道严格一问一答，读写都在本连接的处理协程内完成。
type wsSession struct {
	conn sessionConn
}

func (w *wsSession) send(msgType types.WSMessageType, payload any) error {
	var data json.RawMessage
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		data = raw
	}
	return w.conn.WriteJSON(&types.WSMessage{Type: msgType, Data: data})
}

// expect reads messages until one of the wanted types arrives.
// Unexpected message types are answered with an error frame and skipped.
func (w *wsSession) expect(want ...types.WSMessageType) (*types.WSMessage, error) {
	for {
		var msg types.WSMessage
		if err := w.conn.ReadJSON(&msg); err != nil {
			return nil, fmt.Errorf("session channel closed: %w", err)
		}
		for _, t := range want {
			if msg.Type == t {
				return &msg, nil
			}
		}
		_ = w.send(types.WSMsgError, types.ErrorResponse{
			Error:   "unexpected_message",
			Message: fmt.Sprintf("expected one of %v, got %q", want, msg.Type),
		})
	}
}

func (w *wsSession) OnQuestion(_ context.Context, q *types.Question) (string, error) {
	if err := w.send(types.WSMsgQuestion, q); err != nil {
		return "", err
	}
	msg, err := w.expect(types.WSMsgAnswer)
	if err != nil {
		return "", err
	}
	var answer types.AnswerMessage
	if err := json.Unmarshal(msg.Data, &answer); err != nil {
		return "", fmt.Errorf("parse answer: %w", err)
	}
	return answer.Value, nil
}

// OnAuthChallenge sends the challenge and reads exactly one reply. Unlike
// questions, an unexpected reply here is not skipped: only an explicit
// auth_confirmed continues the run, anything else declines it. Waiting
// for a well-formed decline would leave the run suspended forever on a
// confused client.
func (w *wsSession) OnAuthChallenge(_ context.Context, ch *types.AuthChallenge) (bool, error) {
	if err := w.send(types.WSMsgAuthChallenge, ch); err != nil {
		return false, err
	}
	var msg types.WSMessage
	if err := w.conn.ReadJSON(&msg); err != nil {
		return false, fmt.Errorf("session channel closed: %w", err)
	}
	if msg.Type != types.WSMsgAuthConfirm && msg.Type != types.WSMsgAuthDecline {
		_ = w.send(types.WSMsgError, types.ErrorResponse{
			Error:   "unexpected_message",
			Message: fmt.Sprintf("expected %q or %q, got %q; treating as decline", types.WSMsgAuthConfirm, types.WSMsgAuthDecline, msg.Type),
		})
	}
	return msg.Type == types.WSMsgAuthConfirm, nil
}

func (w *wsSession) OnExecutionStart(_ context.Context, g *types.TaskGraph) error {
	if err := w.send(types.WSMsgGatherComplete, nil); err != nil {
		return err
	}
	return w.send(types.WSMsgExecuting, fiber.Map{"task_graph_id": g.ID})
}

func (w *wsSession) OnSubtaskComplete(_ context.Context, name string) error {
	return w.send(types.WSMsgSubtaskComplete, types.SubtaskCompleteMessage{Name: name})
}

// handleSession drives one full gathering+execution session over a
// WebSocket connection.
func (s *Server) handleSession(c *fiberws.Conn) {
	graphID := c.Params("id")
	ws := &wsSession{conn: c}

	// The first message must attach a user to the session.
	first, err := ws.expect(types.WSMsgAttach)
	if err != nil {
		logger.Error("ws: read attach message failed: %v", err)
		return
	}
	var attach types.AttachRequest
	if err := json.Unmarshal(first.Data, &attach); err != nil || attach.UserID == "" {
		_ = ws.send(types.WSMsgError, types.ErrorResponse{
			Error:   "invalid_attach",
			Message: "attach message must carry a user_id",
		})
		return
	}

	logger.Info("ws: user %s attached to task graph %s", attach.UserID, graphID)

	ctx := context.Background()
	if err := s.orch.Run(ctx, attach.UserID, graphID, ws); err != nil {
		s.sendSessionFailure(ws, err)
		logger.Info("ws: session for task graph %s ended: %v", graphID, err)
		return
	}

	// Reload so the final frame carries every subtask result.
	g, err := s.orch.Get(ctx, attach.UserID, graphID)
	if err != nil {
		s.sendSessionFailure(ws, err)
		return
	}
	_ = ws.send(types.WSMsgExecuted, types.ExecutedMessage{Graph: g})
	logger.Info("ws: task graph %s executed, session closing", graphID)
}

// sendSessionFailure maps an orchestration error onto the right terminal
// frame. Execution failures are reported as failed; everything else
// (ownership, unknown graph, protocol errors) as a plain error frame.
func (s *Server) sendSessionFailure(ws *wsSession, err error) {
	switch {
	case errors.Is(err, engine.ErrAuthenticationAbandoned),
		errors.Is(err, engine.ErrUnresolvedDependency),
		errors.Is(err, engine.ErrMissingResultKey),
		errors.Is(err, engine.ErrNoMatchingOperation),
		errors.Is(err, engine.ErrUnresolvedInput):
		_ = ws.send(types.WSMsgFailed, types.FailedMessage{Error: err.Error()})
	case errors.Is(err, store.ErrNotFound):
		_ = ws.send(types.WSMsgError, types.ErrorResponse{Error: "not_found", Message: err.Error()})
	case errors.Is(err, session.ErrNotOwner):
		_ = ws.send(types.WSMsgError, types.ErrorResponse{Error: "forbidden", Message: err.Error()})
	case errors.Is(err, session.ErrNotRunnable):
		_ = ws.send(types.WSMsgError, types.ErrorResponse{Error: "not_runnable", Message: err.Error()})
	default:
		_ = ws.send(types.WSMsgFailed, types.FailedMessage{Error: err.Error()})
	}
}
