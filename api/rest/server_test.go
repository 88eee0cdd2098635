package rest

import (
	"context"
	"encoding/json"
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"allin1/orchestrator/internal/backend"
	"allin1/orchestrator/internal/config"
	"allin1/orchestrator/internal/engine"
	"allin1/orchestrator/internal/metrics"
	"allin1/orchestrator/internal/session"
	"allin1/orchestrator/internal/store"
	"allin1/orchestrator/pkg/types"
)

// stubPlanner returns a fixed plan for every query.
type stubPlanner struct{}

func (stubPlanner) GeneratePlan(_ context.Context, query string) (*types.TaskGraph, error) {
	return &types.TaskGraph{
		Query: query,
		Task:  "flight booking",
		Subtasks: []*types.Subtask{
			{
				Name:     "Search flights",
				Function: "search_flights",
				Backend:  "flights",
				Payload: map[string]types.Value{
					"destination": types.UserInput("destination"),
				},
			},
		},
	}, nil
}

type stubQuestions struct{}

func (stubQuestions) GenerateQuestion(_ context.Context, _, paramName string, _ []types.Exchange) (string, error) {
	return "What is your " + paramName + "?", nil
}

// stubProvider answers every invocation with a fixed result.
type stubProvider struct{}

func (stubProvider) ListOperations(_ context.Context) ([]backend.Operation, error) {
	return []backend.Operation{{Name: "flights_search_flights"}}, nil
}

func (stubProvider) Invoke(_ context.Context, _ string, _ map[string]any) (map[string]any, error) {
	return map[string]any{"flight_id": "NH842"}, nil
}

func newTestServer(t *testing.T) (*Server, store.Store) {
	t.Helper()

	s := store.NewMemoryStore()
	router, err := backend.NewRouter(nil, nil)
	require.NoError(t, err)
	router.RegisterProvider("flights", stubProvider{}, config.BackendConfig{Type: "script"})

	recorder := metrics.NewRecorder()
	eng := engine.New(s, router, recorder)
	orch := session.New(stubPlanner{}, stubQuestions{}, eng, s)

	return NewServer(orch, router, recorder, nil), s
}

func TestHealthCheck(t *testing.T) {
	server, _ := newTestServer(t)

	req := httptest.NewRequest("GET", "/health", nil)
	resp, err := server.App().Test(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, 200, resp.StatusCode)

	var health HealthResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&health))
	assert.Equal(t, "healthy", health.Status)
}

func TestCreateTask(t *testing.T) {
	server, s := newTestServer(t)

	req := httptest.NewRequest("POST", "/api/v1/tasks", strings.NewReader(`{"query":"book me a flight"}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-User-ID", "u1")
	resp, err := server.App().Test(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, 201, resp.StatusCode)

	var g types.TaskGraph
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&g))
	assert.NotEmpty(t, g.ID)
	assert.Equal(t, "u1", g.UserID)
	assert.Equal(t, types.StatusPending, g.Status)
	require.Len(t, g.Subtasks, 1)
	// The placeholder survives the round trip untouched.
	assert.Equal(t, types.UserInput("destination"), g.Subtasks[0].Payload["destination"])

	stored, err := s.Get(context.Background(), g.ID)
	require.NoError(t, err)
	assert.Equal(t, types.StatusPending, stored.Status)
}

func TestCreateTaskRequiresUser(t *testing.T) {
	server, _ := newTestServer(t)

	req := httptest.NewRequest("POST", "/api/v1/tasks", strings.NewReader(`{"query":"book me a flight"}`))
	req.Header.Set("Content-Type", "application/json")
	resp, err := server.App().Test(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, 401, resp.StatusCode)
}

func TestCreateTaskRejectsEmptyQuery(t *testing.T) {
	server, _ := newTestServer(t)

	req := httptest.NewRequest("POST", "/api/v1/tasks", strings.NewReader(`{"query":"  "}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-User-ID", "u1")
	resp, err := server.App().Test(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, 400, resp.StatusCode)
}

func TestGetTaskOwnership(t *testing.T) {
	server, s := newTestServer(t)

	g := &types.TaskGraph{
		UserID: "u1",
		Query:  "book me a flight",
		Subtasks: []*types.Subtask{
			{Name: "n", Function: "f", Backend: "flights", Payload: map[string]types.Value{}},
		},
		Status: types.StatusPending,
	}
	id, err := s.Create(context.Background(), g)
	require.NoError(t, err)

	req := httptest.NewRequest("GET", "/api/v1/tasks/"+id, nil)
	req.Header.Set("X-User-ID", "u1")
	resp, err := server.App().Test(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, 200, resp.StatusCode)

	// Another user cannot read the graph.
	req = httptest.NewRequest("GET", "/api/v1/tasks/"+id, nil)
	req.Header.Set("X-User-ID", "u2")
	resp, err = server.App().Test(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, 403, resp.StatusCode)

	req = httptest.NewRequest("GET", "/api/v1/tasks/missing", nil)
	req.Header.Set("X-User-ID", "u1")
	resp, err = server.App().Test(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, 404, resp.StatusCode)
}

func TestCompleteAuth(t *testing.T) {
	server, _ := newTestServer(t)

	req := httptest.NewRequest("POST", "/api/v1/backends/flights/auth", strings.NewReader(`{"secrets":{"api_key":"k"}}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-User-ID", "u1")
	resp, err := server.App().Test(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, 200, resp.StatusCode)

	secrets, ok := server.router.Auth().Secrets("u1", "flights")
	require.True(t, ok)
	assert.Equal(t, "k", secrets["api_key"])
}

func TestCompleteAuthUnknownBackend(t *testing.T) {
	server, _ := newTestServer(t)

	req := httptest.NewRequest("POST", "/api/v1/backends/nope/auth", nil)
	req.Header.Set("X-User-ID", "u1")
	resp, err := server.App().Test(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, 404, resp.StatusCode)
}

func TestGetMetrics(t *testing.T) {
	server, _ := newTestServer(t)

	req := httptest.NewRequest("GET", "/api/v1/metrics", nil)
	resp, err := server.App().Test(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, 200, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	var m MetricsResponse
	require.NoError(t, json.Unmarshal(body, &m))
	assert.NotNil(t, m.Backends)
}

func TestExtractTaskID(t *testing.T) {
	assert.Equal(t, "tg-1", extractTaskID("/api/v1/tasks/tg-1/watch"))
	assert.Equal(t, "", extractTaskID("/api/v1/tasks/tg-1"))
	assert.Equal(t, "", extractTaskID("/health"))
}
