package engine

import "errors"

var (
	// ErrUnresolvedDependency is returned when a RESULT reference names a
	// function that has not produced a result in this run.
	ErrUnresolvedDependency = errors.New("unresolved dependency")

	// ErrMissingResultKey is returned when a RESULT reference names a key
	// absent from the referenced function's result.
	ErrMissingResultKey = errors.New("missing result key")

	// ErrNoMatchingOperation is returned when neither match pass finds a
	// backend operation for a function identifier.
	ErrNoMatchingOperation = errors.New("no matching backend operation")

	// ErrAuthenticationAbandoned is returned when the client declines an
	// authentication challenge instead of confirming it.
	ErrAuthenticationAbandoned = errors.New("authentication abandoned")

	// ErrUnresolvedInput is returned when a USER_INPUT placeholder
	// survives into execution; the gathering phase must fill these first.
	ErrUnresolvedInput = errors.New("unresolved user input in payload")
)
