// Package types provides request/response types for the REST and
// WebSocket surfaces. These types are used by both api/rest and the Go
// client package.
package types

import "encoding/json"

// WSMessageType defines the session channel message types.
type WSMessageType string

const (
	// Client -> Server
	WSMsgAttach      WSMessageType = "attach"
	WSMsgAnswer      WSMessageType = "answer"
	WSMsgAuthConfirm WSMessageType = "auth_confirmed"
	WSMsgAuthDecline WSMessageType = "auth_declined"

	// Server -> Client
	WSMsgQuestion        WSMessageType = "question"
	WSMsgGatherComplete  WSMessageType = "gathering_complete"
	WSMsgExecuting       WSMessageType = "executing"
	WSMsgSubtaskComplete WSMessageType = "subtask_complete"
	WSMsgAuthChallenge   WSMessageType = "auth_challenge"
	WSMsgExecuted        WSMessageType = "executed"
	WSMsgFailed          WSMessageType = "failed"
	WSMsgError           WSMessageType = "error"
)

// WSMessage is the unified envelope for all session channel messages.
type WSMessage struct {
	Type WSMessageType   `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// AttachRequest is the mandatory first client message on a session
// channel; it identifies the user driving the session.
type AttachRequest struct {
	UserID string `json:"user_id"`
}

// AnswerMessage carries the answer to the most recently issued question.
type AnswerMessage struct {
	Value string `json:"value"`
}

// SubtaskCompleteMessage reports one finished subtask.
type SubtaskCompleteMessage struct {
	Name   string `json:"name"`
	Detail string `json:"detail,omitempty"`
}

// ExecutedMessage is the terminal success message, carrying the final
// graph with all results filled in.
type ExecutedMessage struct {
	Graph *TaskGraph `json:"graph"`
}

// FailedMessage is the terminal failure message.
type FailedMessage struct {
	Error string `json:"error"`
}

// CreateTaskRequest is the body of POST /api/v1/tasks.
type CreateTaskRequest struct {
	Query string `json:"query"`
}

// ErrorResponse is the standard error body for REST endpoints.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}
