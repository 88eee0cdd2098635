package types

import "errors"

var (
	// ErrMalformedGraph is returned when plan-generation output cannot be
	// parsed into a valid task graph: missing subtasks, missing identity
	// fields, or a payload value that fails the placeholder grammar.
	ErrMalformedGraph = errors.New("malformed task graph")
)
