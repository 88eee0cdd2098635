// Package backend provides the action-execution boundary: a router that
// multiplexes operation listing and invocation across concrete providers
// (MCP servers, the built-in script runtime) and tracks per-user
// authorization against each backend.
package backend

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"allin1/orchestrator/internal/config"
)

var (
	// ErrUnknownBackend is returned when a subtask names a backend that
	// is not configured.
	ErrUnknownBackend = errors.New("unknown backend")
)

// Operation is one invokable operation exposed by a backend.
type Operation struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	InputSchema json.RawMessage `json:"input_schema,omitempty"`
}

// Provider is one concrete backend implementation.
type Provider interface {
	// ListOperations returns the operations the backend exposes.
	ListOperations(ctx context.Context) ([]Operation, error)

	// Invoke executes one operation with a fully resolved payload and
	// returns its structured result.
	Invoke(ctx context.Context, operation string, payload map[string]any) (map[string]any, error)
}

// Router routes engine calls to the provider configured for a backend
// identifier and fronts the authorization registry.
type Router struct {
	providers map[string]Provider
	configs   map[string]config.BackendConfig
	auth      *AuthRegistry
}

// NewRouter builds a router from the backend configuration.
func NewRouter(cfgs map[string]config.BackendConfig, auth *AuthRegistry) (*Router, error) {
	if auth == nil {
		auth = NewAuthRegistry()
	}
	r := &Router{
		providers: make(map[string]Provider),
		configs:   make(map[string]config.BackendConfig),
		auth:      auth,
	}
	for name, cfg := range cfgs {
		switch cfg.Type {
		case "mcp":
			r.providers[name] = NewMCPProvider(cfg.URL)
		case "script":
			r.providers[name] = NewScriptProvider()
		default:
			return nil, fmt.Errorf("backend %q: unknown type %q", name, cfg.Type)
		}
		r.configs[name] = cfg
	}
	return r, nil
}

// RegisterProvider installs a provider under a backend identifier,
// replacing any configured one. Used by tests and by callers that build
// providers programmatically.
func (r *Router) RegisterProvider(name string, p Provider, cfg config.BackendConfig) {
	r.providers[name] = p
	r.configs[name] = cfg
}

// Auth returns the authorization registry behind this router.
func (r *Router) Auth() *AuthRegistry {
	return r.auth
}

// Provider returns the provider registered under name.
func (r *Router) Provider(name string) (Provider, bool) {
	p, ok := r.providers[name]
	return p, ok
}

// CheckAuthorization reports whether the user is currently authorized
// against the backend.
func (r *Router) CheckAuthorization(_ context.Context, userID, backendID string) (bool, error) {
	cfg, ok := r.configs[backendID]
	if !ok {
		return false, fmt.Errorf("%w: %s", ErrUnknownBackend, backendID)
	}
	return r.auth.Authorized(userID, backendID, cfg.Auth), nil
}

// InitiateAuthorization starts an authorization hand-off and returns the
// challenge to surface to the client.
func (r *Router) InitiateAuthorization(_ context.Context, userID, backendID string) (*AuthChallengeInfo, error) {
	cfg, ok := r.configs[backendID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownBackend, backendID)
	}
	return r.auth.Challenge(userID, backendID, cfg.Auth)
}

// ListOperations lists the operations of one backend.
func (r *Router) ListOperations(ctx context.Context, backendID string) ([]Operation, error) {
	p, ok := r.providers[backendID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownBackend, backendID)
	}
	return p.ListOperations(ctx)
}

// Invoke executes one operation on one backend.
func (r *Router) Invoke(ctx context.Context, userID, backendID, operation string, payload map[string]any) (map[string]any, error) {
	p, ok := r.providers[backendID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownBackend, backendID)
	}
	_ = userID // providers are shared; per-user state lives in the auth registry
	return p.Invoke(ctx, operation, payload)
}

// OperationOverride returns the explicitly mapped operation name for a
// function identifier, when one is configured.
func (r *Router) OperationOverride(backendID, function string) (string, bool) {
	cfg, ok := r.configs[backendID]
	if !ok {
		return "", false
	}
	op, ok := cfg.OperationOverrides[function]
	return op, ok
}
