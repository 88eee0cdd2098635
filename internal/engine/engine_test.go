package engine

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"allin1/orchestrator/internal/backend"
	"allin1/orchestrator/internal/store"
	"allin1/orchestrator/pkg/types"
)

// fakeBackend scripts authorization and invocation behavior per backend.
type fakeBackend struct {
	authorized map[string]bool
	ops        map[string][]backend.Operation
	results    map[string]map[string]any
	overrides  map[string]string
	invokeErr  error

	invocations []invocation
	authChecks  int
}

type invocation struct {
	backendID string
	operation string
	payload   map[string]any
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		authorized: map[string]bool{},
		ops:        map[string][]backend.Operation{},
		results:    map[string]map[string]any{},
		overrides:  map[string]string{},
	}
}

func (f *fakeBackend) CheckAuthorization(_ context.Context, _, backendID string) (bool, error) {
	f.authChecks++
	return f.authorized[backendID], nil
}

func (f *fakeBackend) InitiateAuthorization(_ context.Context, userID, backendID string) (*backend.AuthChallengeInfo, error) {
	return &backend.AuthChallengeInfo{
		Backend:     backendID,
		Kind:        types.AuthKindOAuth,
		RedirectURL: "https://auth.example.com/" + userID + "/" + backendID,
	}, nil
}

func (f *fakeBackend) ListOperations(_ context.Context, backendID string) ([]backend.Operation, error) {
	return f.ops[backendID], nil
}

func (f *fakeBackend) Invoke(_ context.Context, _, backendID, operation string, payload map[string]any) (map[string]any, error) {
	f.invocations = append(f.invocations, invocation{backendID: backendID, operation: operation, payload: payload})
	if f.invokeErr != nil {
		return nil, f.invokeErr
	}
	return f.results[operation], nil
}

func (f *fakeBackend) OperationOverride(backendID, function string) (string, bool) {
	op, ok := f.overrides[backendID+"/"+function]
	return op, ok
}

// fakeCallback records notifications and scripts challenge replies.
type fakeCallback struct {
	confirmAuth bool
	authSideFx  func()

	challenges []*types.AuthChallenge
	started    bool
	completed  []string
}

func (f *fakeCallback) OnQuestion(_ context.Context, _ *types.Question) (string, error) {
	return "", errors.New("unexpected question during execution")
}

func (f *fakeCallback) OnAuthChallenge(_ context.Context, ch *types.AuthChallenge) (bool, error) {
	f.challenges = append(f.challenges, ch)
	if f.authSideFx != nil {
		f.authSideFx()
	}
	return f.confirmAuth, nil
}

func (f *fakeCallback) OnExecutionStart(_ context.Context, _ *types.TaskGraph) error {
	f.started = true
	return nil
}

func (f *fakeCallback) OnSubtaskComplete(_ context.Context, name string) error {
	f.completed = append(f.completed, name)
	return nil
}

// travelGraph is the canonical two-step plan: an internal step seeding
// user input, a search and a booking consuming the search result.
func travelGraph(t *testing.T, s store.Store) *types.TaskGraph {
	t.Helper()
	g := &types.TaskGraph{
		UserID: "u1",
		Query:  "book me a flight to Tokyo",
		Task:   "flight booking",
		Subtasks: []*types.Subtask{
			{
				Name:     "Collect travel details",
				Function: "collect_details",
				Backend:  types.BackendNone,
				Payload: map[string]types.Value{
					"destination": types.Concrete("Tokyo"),
					"date":        types.Concrete("2026-09-12"),
				},
			},
			{
				Name:     "Search flights",
				Function: "search_flights",
				Backend:  "flights",
				Payload: map[string]types.Value{
					"destination": types.ResultRef("collect_details", "destination"),
					"date":        types.ResultRef("collect_details", "date"),
				},
			},
			{
				Name:     "Book flight",
				Function: "book_flight",
				Backend:  "flights",
				Payload: map[string]types.Value{
					"flight_id": types.ResultRef("search_flights", "flight_id"),
				},
			},
		},
		Status: types.StatusCompleted,
	}
	id, err := s.Create(context.Background(), g)
	require.NoError(t, err)
	g.ID = id
	return g
}

func TestExecuteHappyPath(t *testing.T) {
	s := store.NewMemoryStore()
	fb := newFakeBackend()
	fb.authorized["flights"] = true
	fb.ops["flights"] = []backend.Operation{
		{Name: "flights_search_flights"},
		{Name: "flights_book_flight"},
	}
	fb.results["flights_search_flights"] = map[string]any{"flight_id": "NH842", "price": 412.50}
	fb.results["flights_book_flight"] = map[string]any{"confirmation": "ABC123"}

	g := travelGraph(t, s)
	cb := &fakeCallback{}

	err := New(s, fb, nil).Execute(context.Background(), g, cb)
	require.NoError(t, err)

	assert.Equal(t, types.StatusExecuted, g.Status)
	assert.True(t, cb.started)
	assert.Equal(t, []string{"Collect travel details", "Search flights", "Book flight"}, cb.completed)

	// The internal step never reaches the backend.
	require.Len(t, fb.invocations, 2)
	assert.Equal(t, "flights_search_flights", fb.invocations[0].operation)
	assert.Equal(t, map[string]any{"destination": "Tokyo", "date": "2026-09-12"}, fb.invocations[0].payload)
	// The booking consumed the search result.
	assert.Equal(t, map[string]any{"flight_id": "NH842"}, fb.invocations[1].payload)

	assert.Equal(t, types.InternalResult, g.Subtasks[0].Result)
	assert.Equal(t, map[string]any{"confirmation": "ABC123"}, g.Subtasks[2].Result)

	stored, err := s.Get(context.Background(), g.ID)
	require.NoError(t, err)
	assert.Equal(t, types.StatusExecuted, stored.Status)
}

func TestExecuteUnresolvedDependency(t *testing.T) {
	s := store.NewMemoryStore()
	fb := newFakeBackend()
	fb.authorized["flights"] = true

	g := &types.TaskGraph{
		UserID: "u1",
		Query:  "book a flight",
		Subtasks: []*types.Subtask{
			{
				Name:     "Book flight",
				Function: "book_flight",
				Backend:  "flights",
				Payload: map[string]types.Value{
					"flight_id": types.ResultRef("search_flights", "flight_id"),
				},
			},
		},
	}
	id, err := s.Create(context.Background(), g)
	require.NoError(t, err)
	g.ID = id

	err = New(s, fb, nil).Execute(context.Background(), g, &fakeCallback{})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnresolvedDependency)

	assert.Equal(t, types.StatusFailed, g.Status)
	assert.Contains(t, g.Subtasks[0].Result, "Error:")
	assert.Empty(t, fb.invocations)

	// The failed state was persisted before the error propagated.
	stored, err := s.Get(context.Background(), g.ID)
	require.NoError(t, err)
	assert.Equal(t, types.StatusFailed, stored.Status)
}

func TestExecuteMissingResultKey(t *testing.T) {
	s := store.NewMemoryStore()
	fb := newFakeBackend()
	fb.authorized["flights"] = true
	fb.ops["flights"] = []backend.Operation{{Name: "flights_search_flights"}}
	fb.results["flights_search_flights"] = map[string]any{"flights": []any{}}

	g := &types.TaskGraph{
		UserID: "u1",
		Query:  "book a flight",
		Subtasks: []*types.Subtask{
			{
				Name:     "Search flights",
				Function: "search_flights",
				Backend:  "flights",
				Payload:  map[string]types.Value{"destination": types.Concrete("Tokyo")},
			},
			{
				Name:     "Book flight",
				Function: "book_flight",
				Backend:  "flights",
				Payload: map[string]types.Value{
					"flight_id": types.ResultRef("search_flights", "flight_id"),
				},
			},
		},
	}
	id, err := s.Create(context.Background(), g)
	require.NoError(t, err)
	g.ID = id

	err = New(s, fb, nil).Execute(context.Background(), g, &fakeCallback{})
	assert.ErrorIs(t, err, ErrMissingResultKey)
	assert.Equal(t, types.StatusFailed, g.Status)
}

func TestExecuteNestedResultKey(t *testing.T) {
	ctx := NewExecutionContext()
	ctx.Set("search_flights", map[string]any{
		"best": map[string]any{"flight_id": "NH842"},
	})

	v, err := ctx.Resolve("search_flights", "best.flight_id")
	require.NoError(t, err)
	assert.Equal(t, "NH842", v)

	_, err = ctx.Resolve("search_flights", "best.seat")
	assert.ErrorIs(t, err, ErrMissingResultKey)

	_, err = ctx.Resolve("search_hotels", "hotel_id")
	assert.ErrorIs(t, err, ErrUnresolvedDependency)
}

func TestExecuteAuthConfirmRetriesSameSubtask(t *testing.T) {
	s := store.NewMemoryStore()
	fb := newFakeBackend()
	fb.ops["flights"] = []backend.Operation{{Name: "flights_search_flights"}, {Name: "flights_book_flight"}}
	fb.results["flights_search_flights"] = map[string]any{"flight_id": "NH842"}
	fb.results["flights_book_flight"] = map[string]any{"confirmation": "ABC123"}

	g := travelGraph(t, s)
	cb := &fakeCallback{confirmAuth: true}
	// The confirmation completes authorization out of band.
	cb.authSideFx = func() { fb.authorized["flights"] = true }

	err := New(s, fb, nil).Execute(context.Background(), g, cb)
	require.NoError(t, err)

	require.Len(t, cb.challenges, 1)
	assert.Equal(t, "flights", cb.challenges[0].Backend)
	assert.Equal(t, types.AuthKindOAuth, cb.challenges[0].Kind)

	// The challenged subtask ran after confirmation with the same payload.
	require.Len(t, fb.invocations, 2)
	assert.Equal(t, "flights_search_flights", fb.invocations[0].operation)
	assert.Equal(t, map[string]any{"destination": "Tokyo", "date": "2026-09-12"}, fb.invocations[0].payload)
	assert.Equal(t, types.StatusExecuted, g.Status)
}

func TestExecuteAuthDeclineAbandons(t *testing.T) {
	s := store.NewMemoryStore()
	fb := newFakeBackend()
	fb.ops["flights"] = []backend.Operation{{Name: "flights_search_flights"}}

	g := travelGraph(t, s)
	cb := &fakeCallback{confirmAuth: false}

	err := New(s, fb, nil).Execute(context.Background(), g, cb)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrAuthenticationAbandoned)

	assert.Equal(t, types.StatusFailed, g.Status)
	assert.Empty(t, fb.invocations)

	stored, err := s.Get(context.Background(), g.ID)
	require.NoError(t, err)
	assert.Equal(t, types.StatusFailed, stored.Status)
}

func TestExecuteOperationOverride(t *testing.T) {
	s := store.NewMemoryStore()
	fb := newFakeBackend()
	fb.authorized["flights"] = true
	fb.overrides["flights/search_flights"] = "custom_search_v2"
	fb.results["custom_search_v2"] = map[string]any{"flight_id": "NH842"}

	g := &types.TaskGraph{
		UserID: "u1",
		Query:  "search flights",
		Subtasks: []*types.Subtask{
			{
				Name:     "Search flights",
				Function: "search_flights",
				Backend:  "flights",
				Payload:  map[string]types.Value{"destination": types.Concrete("Tokyo")},
			},
		},
	}
	id, err := s.Create(context.Background(), g)
	require.NoError(t, err)
	g.ID = id

	err = New(s, fb, nil).Execute(context.Background(), g, &fakeCallback{})
	require.NoError(t, err)
	require.Len(t, fb.invocations, 1)
	assert.Equal(t, "custom_search_v2", fb.invocations[0].operation)
}

func TestExecuteNoMatchingOperation(t *testing.T) {
	s := store.NewMemoryStore()
	fb := newFakeBackend()
	fb.authorized["flights"] = true
	fb.ops["flights"] = []backend.Operation{{Name: "hotels_search"}}

	g := &types.TaskGraph{
		UserID: "u1",
		Query:  "search flights",
		Subtasks: []*types.Subtask{
			{
				Name:     "Search flights",
				Function: "search_flights",
				Backend:  "flights",
				Payload:  map[string]types.Value{"destination": types.Concrete("Tokyo")},
			},
		},
	}
	id, err := s.Create(context.Background(), g)
	require.NoError(t, err)
	g.ID = id

	err = New(s, fb, nil).Execute(context.Background(), g, &fakeCallback{})
	assert.ErrorIs(t, err, ErrNoMatchingOperation)
	assert.Equal(t, types.StatusFailed, g.Status)
}

func TestExecuteLingeringUserInputFails(t *testing.T) {
	s := store.NewMemoryStore()
	fb := newFakeBackend()
	fb.authorized["flights"] = true

	g := &types.TaskGraph{
		UserID: "u1",
		Query:  "search flights",
		Subtasks: []*types.Subtask{
			{
				Name:     "Search flights",
				Function: "search_flights",
				Backend:  "flights",
				Payload:  map[string]types.Value{"destination": types.UserInput("destination")},
			},
		},
	}
	id, err := s.Create(context.Background(), g)
	require.NoError(t, err)
	g.ID = id

	err = New(s, fb, nil).Execute(context.Background(), g, &fakeCallback{})
	assert.ErrorIs(t, err, ErrUnresolvedInput)
	assert.Equal(t, types.StatusFailed, g.Status)
	assert.Empty(t, fb.invocations)
}

func TestMatchOperation(t *testing.T) {
	ops := []backend.Operation{
		{Name: "flights_search_flights_v2_extra"},
		{Name: "flights_search_flights"},
	}

	// Exact suffix beats substring even when the substring match comes first.
	op, ok := matchOperation("search_flights", ops)
	require.True(t, ok)
	assert.Equal(t, "flights_search_flights", op)

	op, ok = matchOperation("SEARCH_FLIGHTS", ops)
	require.True(t, ok)
	assert.Equal(t, "flights_search_flights", op)

	_, ok = matchOperation("cancel_booking", ops)
	assert.False(t, ok)
}

// brokenStore refuses every update, as a store would during an outage.
type brokenStore struct {
	store.Store
	updateErr error
}

func (b *brokenStore) Update(_ context.Context, _ *types.TaskGraph) error {
	return b.updateErr
}

func TestExecutePersistFailureMarksGraphFailed(t *testing.T) {
	s := store.NewMemoryStore()
	fb := newFakeBackend()
	fb.authorized["flights"] = true
	fb.ops["flights"] = []backend.Operation{{Name: "flights_search_flights"}}

	g := &types.TaskGraph{
		UserID: "u1",
		Query:  "search flights",
		Subtasks: []*types.Subtask{
			{
				Name:     "Search flights",
				Function: "search_flights",
				Backend:  "flights",
				Payload:  map[string]types.Value{"destination": types.Concrete("Tokyo")},
			},
		},
	}
	id, err := s.Create(context.Background(), g)
	require.NoError(t, err)
	g.ID = id

	updateErr := errors.New("store is down")
	err = New(&brokenStore{Store: s, updateErr: updateErr}, fb, nil).Execute(context.Background(), g, &fakeCallback{})
	require.ErrorIs(t, err, updateErr)
	// The graph never entered execution, so nothing was invoked and the
	// in-memory graph reflects the failure.
	assert.Empty(t, fb.invocations)
	assert.Equal(t, types.StatusFailed, g.Status)
}
