package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"allin1/orchestrator/pkg/types"
)

func sampleGraph() *types.TaskGraph {
	return &types.TaskGraph{
		UserID: "user-1",
		Query:  "book a flight",
		Status: types.StatusPending,
		Subtasks: []*types.Subtask{
			{
				Name:     "Search for Flights",
				Function: "search_flights",
				Backend:  "flights",
				Payload: map[string]types.Value{
					"destination": types.Concrete("NYC"),
					"city":        types.UserInput("city"),
				},
			},
		},
	}
}

// Both implementations must behave identically.
func stores(t *testing.T) map[string]Store {
	t.Helper()
	sq, err := OpenSQLite(filepath.Join(t.TempDir(), "graphs.db"))
	require.NoError(t, err)
	t.Cleanup(func() { sq.Close() })
	return map[string]Store{
		"sqlite": sq,
		"memory": NewMemoryStore(),
	}
}

func TestCreateAssignsID(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			g := sampleGraph()

			id, err := s.Create(ctx, g)
			require.NoError(t, err)
			assert.NotEmpty(t, id)
			assert.Equal(t, id, g.ID)
			assert.False(t, g.CreatedAt.IsZero())
		})
	}
}

func TestGetRoundTripsPlaceholders(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			id, err := s.Create(ctx, sampleGraph())
			require.NoError(t, err)

			got, err := s.Get(ctx, id)
			require.NoError(t, err)

			assert.Equal(t, "book a flight", got.Query)
			v := got.Subtasks[0].Payload["city"]
			assert.Equal(t, types.ValueUserInput, v.Kind)
			assert.Equal(t, "city", v.Param)
		})
	}
}

func TestGetMissing(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			_, err := s.Get(context.Background(), "nope")
			assert.ErrorIs(t, err, ErrNotFound)
		})
	}
}

func TestUpdatePersistsProgress(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			g := sampleGraph()
			id, err := s.Create(ctx, g)
			require.NoError(t, err)

			g.Status = types.StatusInProgress
			g.Subtasks[0].Payload["city"] = types.Concrete("NYC")
			require.NoError(t, s.Update(ctx, g))

			got, err := s.Get(ctx, id)
			require.NoError(t, err)
			assert.Equal(t, types.StatusInProgress, got.Status)
			assert.Equal(t, types.ValueConcrete, got.Subtasks[0].Payload["city"].Kind)
		})
	}
}

func TestUpdateMissing(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			g := sampleGraph()
			g.ID = "ghost"
			assert.ErrorIs(t, s.Update(context.Background(), g), ErrNotFound)
		})
	}
}

func TestStoredCopiesAreIsolated(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			g := sampleGraph()
			id, err := s.Create(ctx, g)
			require.NoError(t, err)

			// Mutating the caller's graph must not leak into the store
			// without an Update.
			g.Status = types.StatusFailed

			got, err := s.Get(ctx, id)
			require.NoError(t, err)
			assert.Equal(t, types.StatusPending, got.Status)
		})
	}
}
