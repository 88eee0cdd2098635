// Package types 定义编排引擎与客户端会话通道之间的回调契约
package types

import "context"

// AuthKind discriminates the two interactive authentication challenge
// kinds a backend can raise mid-execution.
type AuthKind string

const (
	// AuthKindOAuth means the user must complete a redirect-based
	// authorization out of band before execution can continue.
	AuthKindOAuth AuthKind = "oauth"

	// AuthKindCredential means the user must supply secret values
	// directly (API key, token, password).
	AuthKindCredential AuthKind = "credential"
)

// Question is one question issued by the information-gathering phase.
type Question struct {
	ParamName string `json:"param_name"`
	Question  string `json:"question"`
}

// AuthChallenge is raised when a subtask's backend is not yet authorized
// for the current user. Exactly one of RedirectURL or Fields is set,
// depending on Kind.
type AuthChallenge struct {
	Backend     string   `json:"backend"`
	Kind        AuthKind `json:"kind"`
	RedirectURL string   `json:"redirect_url,omitempty"`
	Fields      []string `json:"fields,omitempty"`
	Message     string   `json:"message,omitempty"`
}

// SessionCallback is the contract between the two phase drivers and the
// client session channel. There is exactly one outstanding exchange at a
// time per session; OnQuestion and OnAuthChallenge block until the client
// replies or the channel is closed.
//
// 每个会话同一时刻只有一个未完成的交互，严格请求/应答。
type SessionCallback interface {
	// OnQuestion delivers one question and blocks for the user's answer.
	OnQuestion(ctx context.Context, q *Question) (string, error)

	// OnAuthChallenge delivers an authentication challenge and blocks
	// until the client confirms (true) or declines (false).
	OnAuthChallenge(ctx context.Context, ch *AuthChallenge) (bool, error)

	// OnExecutionStart notifies the client that execution has begun.
	OnExecutionStart(ctx context.Context, graph *TaskGraph) error

	// OnSubtaskComplete notifies the client that one subtask finished.
	OnSubtaskComplete(ctx context.Context, name string) error
}
