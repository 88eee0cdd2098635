package store

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"

	"allin1/orchestrator/pkg/types"
)

// MemoryStore is an in-process Store used by tests and the plan command.
// Graphs are copied through their JSON encoding on every call, so callers
// see the same isolation a real database would give them.
type MemoryStore struct {
	mu     sync.RWMutex
	graphs map[string][]byte
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{graphs: make(map[string][]byte)}
}

// Create implements Store.
func (s *MemoryStore) Create(_ context.Context, g *types.TaskGraph) (string, error) {
	if g.ID == "" {
		g.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if g.CreatedAt.IsZero() {
		g.CreatedAt = now
	}
	g.UpdatedAt = now

	data, err := json.Marshal(g)
	if err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.graphs[g.ID] = data
	return g.ID, nil
}

// Get implements Store.
func (s *MemoryStore) Get(_ context.Context, id string) (*types.TaskGraph, error) {
	s.mu.RLock()
	data, ok := s.graphs[id]
	s.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}

	var g types.TaskGraph
	if err := json.Unmarshal(data, &g); err != nil {
		return nil, err
	}
	return &g, nil
}

// Update implements Store.
func (s *MemoryStore) Update(_ context.Context, g *types.TaskGraph) error {
	g.UpdatedAt = time.Now().UTC()
	data, err := json.Marshal(g)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.graphs[g.ID]; !ok {
		return ErrNotFound
	}
	s.graphs[g.ID] = data
	return nil
}

// Close implements Store.
func (s *MemoryStore) Close() error { return nil }

// Len reports the number of stored graphs.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.graphs)
}
