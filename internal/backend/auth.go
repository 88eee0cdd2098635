package backend

import (
	"fmt"
	"strings"
	"sync"

	"allin1/orchestrator/internal/config"
	"allin1/orchestrator/pkg/logger"
	"allin1/orchestrator/pkg/types"
)

// AuthChallengeInfo describes an authorization hand-off in progress.
type AuthChallengeInfo struct {
	Backend     string
	Kind        types.AuthKind
	RedirectURL string
	Fields      []string
}

// Challenge converts the info into the wire challenge sent to the client.
func (c *AuthChallengeInfo) Challenge() *types.AuthChallenge {
	return &types.AuthChallenge{
		Backend:     c.Backend,
		Kind:        c.Kind,
		RedirectURL: c.RedirectURL,
		Fields:      c.Fields,
		Message:     fmt.Sprintf("Please authorize access to %s to continue.", c.Backend),
	}
}

// AuthRegistry tracks which users have connected which backends. It is
// the engine's view of authorization state; completing an authorization
// (the redirect landing, or a credential submission) updates it, and the
// engine re-reads it after every client confirmation.
type AuthRegistry struct {
	mu        sync.RWMutex
	connected map[string]map[string]bool
	secrets   map[string]map[string]map[string]string
}

// NewAuthRegistry creates an empty registry.
func NewAuthRegistry() *AuthRegistry {
	return &AuthRegistry{
		connected: make(map[string]map[string]bool),
		secrets:   make(map[string]map[string]map[string]string),
	}
}

// Authorized reports whether the user may invoke the backend. Backends
// with auth kind "none" (or no auth section) are always authorized.
func (a *AuthRegistry) Authorized(userID, backendID string, cfg config.AuthConfig) bool {
	if cfg.Kind == "" || cfg.Kind == "none" {
		return true
	}
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.connected[userID][backendID]
}

// Challenge builds the challenge for an unauthorized backend.
func (a *AuthRegistry) Challenge(userID, backendID string, cfg config.AuthConfig) (*AuthChallengeInfo, error) {
	switch cfg.Kind {
	case "oauth":
		url := strings.NewReplacer(
			"{user_id}", userID,
			"{backend}", backendID,
		).Replace(cfg.RedirectURL)
		return &AuthChallengeInfo{
			Backend:     backendID,
			Kind:        types.AuthKindOAuth,
			RedirectURL: url,
		}, nil
	case "credential":
		return &AuthChallengeInfo{
			Backend: backendID,
			Kind:    types.AuthKindCredential,
			Fields:  cfg.CredentialFields,
		}, nil
	default:
		return nil, fmt.Errorf("backend %s requires no authorization", backendID)
	}
}

// Complete records a finished authorization for the user. For credential
// backends the submitted secrets are kept for the provider to use.
func (a *AuthRegistry) Complete(userID, backendID string, secrets map[string]string) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.connected[userID] == nil {
		a.connected[userID] = make(map[string]bool)
	}
	a.connected[userID][backendID] = true

	if len(secrets) > 0 {
		if a.secrets[userID] == nil {
			a.secrets[userID] = make(map[string]map[string]string)
		}
		a.secrets[userID][backendID] = secrets
	}
	logger.Info("auth: user %s connected backend %s", userID, backendID)
}

// Secrets returns the credentials submitted for a backend, if any.
func (a *AuthRegistry) Secrets(userID, backendID string) (map[string]string, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	s, ok := a.secrets[userID][backendID]
	return s, ok
}

// Revoke removes a connection.
func (a *AuthRegistry) Revoke(userID, backendID string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.connected[userID], backendID)
	delete(a.secrets[userID], backendID)
}
