package client

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/gorilla/websocket"

	"allin1/orchestrator/pkg/types"
)

// SessionHandler supplies the interactive side of a session: answers to
// gathering questions and decisions on authentication challenges. The
// progress callbacks are optional.
type SessionHandler struct {
	// OnQuestion returns the answer to a gathering question.
	OnQuestion func(q *types.Question) (string, error)

	// OnAuthChallenge returns true to retry after completing the
	// authorization, false to abandon the run.
	OnAuthChallenge func(ch *types.AuthChallenge) (bool, error)

	// OnProgress receives non-interactive frames (executing,
	// subtask_complete, gathering_complete). May be nil.
	OnProgress func(msg *types.WSMessage)
}

// SessionResult is the terminal outcome of a session.
type SessionResult struct {
	// Graph is the executed graph, set on success.
	Graph *types.TaskGraph

	// Err describes the failure, set when the run failed.
	Err string
}

// RunSession opens the session channel for a task graph and drives it to
// a terminal frame, delegating every interactive exchange to the handler.
func (c *Client) RunSession(ctx context.Context, graphID string, handler SessionHandler) (*SessionResult, error) {
	wsURL := toWebSocketURL(c.config.BaseURL) + fmt.Sprintf("/api/v1/tasks/%s/session", graphID)

	dialer := websocket.Dialer{
		HandshakeTimeout: c.config.RequestTimeout,
	}
	ws, _, err := dialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return nil, fmt.Errorf("WebSocket dial failed: %w", err)
	}
	defer ws.Close()

	// The first message must attach this user to the session.
	if err := sendWS(ws, types.WSMsgAttach, types.AttachRequest{UserID: c.config.UserID}); err != nil {
		return nil, fmt.Errorf("send attach message failed: %w", err)
	}

	for {
		var msg types.WSMessage
		if err := ws.ReadJSON(&msg); err != nil {
			return nil, fmt.Errorf("session channel closed: %w", err)
		}

		switch msg.Type {
		case types.WSMsgQuestion:
			var q types.Question
			if err := json.Unmarshal(msg.Data, &q); err != nil {
				return nil, fmt.Errorf("parse question: %w", err)
			}
			answer, err := handler.OnQuestion(&q)
			if err != nil {
				return nil, err
			}
			if err := sendWS(ws, types.WSMsgAnswer, types.AnswerMessage{Value: answer}); err != nil {
				return nil, err
			}

		case types.WSMsgAuthChallenge:
			var ch types.AuthChallenge
			if err := json.Unmarshal(msg.Data, &ch); err != nil {
				return nil, fmt.Errorf("parse auth challenge: %w", err)
			}
			confirmed, err := handler.OnAuthChallenge(&ch)
			if err != nil {
				return nil, err
			}
			reply := types.WSMsgAuthDecline
			if confirmed {
				reply = types.WSMsgAuthConfirm
			}
			if err := sendWS(ws, reply, nil); err != nil {
				return nil, err
			}

		case types.WSMsgExecuted:
			var done types.ExecutedMessage
			if err := json.Unmarshal(msg.Data, &done); err != nil {
				return nil, fmt.Errorf("parse executed message: %w", err)
			}
			return &SessionResult{Graph: done.Graph}, nil

		case types.WSMsgFailed:
			var failed types.FailedMessage
			if err := json.Unmarshal(msg.Data, &failed); err != nil {
				return nil, fmt.Errorf("parse failed message: %w", err)
			}
			return &SessionResult{Err: failed.Error}, nil

		case types.WSMsgError:
			var errResp types.ErrorResponse
			if err := json.Unmarshal(msg.Data, &errResp); err != nil {
				return nil, fmt.Errorf("parse error message: %w", err)
			}
			return nil, fmt.Errorf("session error: %s: %s", errResp.Error, errResp.Message)

		default:
			if handler.OnProgress != nil {
				handler.OnProgress(&msg)
			}
		}
	}
}

func sendWS(ws *websocket.Conn, msgType types.WSMessageType, payload any) error {
	var data json.RawMessage
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		data = raw
	}
	return ws.WriteJSON(&types.WSMessage{Type: msgType, Data: data})
}

// toWebSocketURL converts an http(s) base URL to its ws(s) equivalent.
func toWebSocketURL(baseURL string) string {
	switch {
	case strings.HasPrefix(baseURL, "https://"):
		return "wss://" + strings.TrimPrefix(baseURL, "https://")
	case strings.HasPrefix(baseURL, "http://"):
		return "ws://" + strings.TrimPrefix(baseURL, "http://")
	}
	return baseURL
}
