package rest

import "allin1/orchestrator/internal/metrics"

// HealthResponse represents a health check response.
type HealthResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
}

// AuthCompleteRequest is the body of the backend authorization callback.
// For OAuth backends the body may be empty; for credential backends it
// carries the secret values the challenge asked for.
type AuthCompleteRequest struct {
	Secrets map[string]string `json:"secrets,omitempty"`
}

// MetricsResponse is the body of GET /api/v1/metrics: one latency
// summary per backend invoked since startup.
type MetricsResponse struct {
	Backends  map[string]metrics.Summary `json:"backends"`
	Timestamp string                     `json:"timestamp"`
}

// WatchMessage is one frame of the status watch stream.
type WatchMessage struct {
	Type      string `json:"type"`
	TaskID    string `json:"task_id"`
	Status    string `json:"status,omitempty"`
	Timestamp string `json:"timestamp"`
	Error     string `json:"error,omitempty"`
}
