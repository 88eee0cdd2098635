// Package store persists task graphs. The engine treats every call as
// fire-and-confirm; there is no retry or transaction layering on top of
// what the backing database provides.
package store

import (
	"context"
	"errors"

	"allin1/orchestrator/pkg/types"
)

// ErrNotFound is returned when no graph exists under the requested id.
var ErrNotFound = errors.New("task graph not found")

// Store is the persistence contract for task graphs.
type Store interface {
	// Create persists a new graph, assigns its identifier and returns it.
	Create(ctx context.Context, g *types.TaskGraph) (string, error)

	// Get loads the graph stored under id.
	Get(ctx context.Context, id string) (*types.TaskGraph, error)

	// Update overwrites the stored graph. The full document is written,
	// mirroring how each phase persists after every step.
	Update(ctx context.Context, g *types.TaskGraph) error

	// Close releases any underlying resources.
	Close() error
}
