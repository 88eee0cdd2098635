// Package client implements the Go client for the orchestrator API:
// plain REST calls for task creation and retrieval, and the interactive
// session channel over WebSocket.
package client

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"

	"allin1/orchestrator/pkg/types"
)

// Config holds the configuration for the orchestrator client.
type Config struct {
	// BaseURL is the base URL of the orchestrator (e.g., "http://localhost:8080").
	BaseURL string

	// UserID identifies the user on every request.
	UserID string

	// RequestTimeout is the timeout for HTTP requests.
	RequestTimeout time.Duration
}

// DefaultConfig returns a default client configuration.
func DefaultConfig() *Config {
	return &Config{
		BaseURL:        "http://localhost:8080",
		RequestTimeout: 30 * time.Second,
	}
}

// Client is the orchestrator API client.
type Client struct {
	config *Config
	agent  *fiber.Client
}

// NewClient creates a new orchestrator client.
func NewClient(config *Config) *Client {
	if config == nil {
		config = DefaultConfig()
	}
	return &Client{
		config: config,
		agent:  fiber.AcquireClient(),
	}
}

// CreateTask submits a query for planning and returns the pending task
// graph, placeholders intact.
func (c *Client) CreateTask(query string) (*types.TaskGraph, error) {
	body, err := json.Marshal(types.CreateTaskRequest{Query: query})
	if err != nil {
		return nil, err
	}

	url := fmt.Sprintf("%s/api/v1/tasks", c.config.BaseURL)
	req := c.agent.Post(url)
	req.Timeout(c.config.RequestTimeout)
	req.Body(body)
	req.Set("Content-Type", "application/json")
	req.Set("X-User-ID", c.config.UserID)

	statusCode, respBody, errs := req.Bytes()
	if len(errs) > 0 {
		return nil, fmt.Errorf("create task failed: %v", errs[0])
	}
	if statusCode != fiber.StatusCreated {
		return nil, apiError("create task", statusCode, respBody)
	}

	var g types.TaskGraph
	if err := json.Unmarshal(respBody, &g); err != nil {
		return nil, fmt.Errorf("failed to unmarshal task graph: %w", err)
	}
	return &g, nil
}

// GetTask fetches the current state of a task graph.
func (c *Client) GetTask(id string) (*types.TaskGraph, error) {
	url := fmt.Sprintf("%s/api/v1/tasks/%s", c.config.BaseURL, id)
	req := c.agent.Get(url)
	req.Timeout(c.config.RequestTimeout)
	req.Set("X-User-ID", c.config.UserID)

	statusCode, respBody, errs := req.Bytes()
	if len(errs) > 0 {
		return nil, fmt.Errorf("get task failed: %v", errs[0])
	}
	if statusCode != fiber.StatusOK {
		return nil, apiError("get task", statusCode, respBody)
	}

	var g types.TaskGraph
	if err := json.Unmarshal(respBody, &g); err != nil {
		return nil, fmt.Errorf("failed to unmarshal task graph: %w", err)
	}
	return &g, nil
}

// CompleteAuth marks the user as authorized against the backend. For
// credential backends secrets carries the requested values; for OAuth
// backends it may be nil.
func (c *Client) CompleteAuth(backendID string, secrets map[string]string) error {
	body, err := json.Marshal(struct {
		Secrets map[string]string `json:"secrets,omitempty"`
	}{Secrets: secrets})
	if err != nil {
		return err
	}

	url := fmt.Sprintf("%s/api/v1/backends/%s/auth", c.config.BaseURL, backendID)
	req := c.agent.Post(url)
	req.Timeout(c.config.RequestTimeout)
	req.Body(body)
	req.Set("Content-Type", "application/json")
	req.Set("X-User-ID", c.config.UserID)

	statusCode, respBody, errs := req.Bytes()
	if len(errs) > 0 {
		return fmt.Errorf("complete auth failed: %v", errs[0])
	}
	if statusCode != fiber.StatusOK {
		return apiError("complete auth", statusCode, respBody)
	}
	return nil
}

func apiError(op string, statusCode int, respBody []byte) error {
	var errResp types.ErrorResponse
	if err := json.Unmarshal(respBody, &errResp); err == nil && errResp.Message != "" {
		return fmt.Errorf("%s failed: %s", op, errResp.Message)
	}
	return fmt.Errorf("%s failed with status: %d", op, statusCode)
}
