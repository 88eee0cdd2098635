// Package types defines the core data structures for the task orchestrator.
//
// This package contains the fundamental types used throughout the engine,
// including:
//   - TaskGraph and Subtask definitions
//   - The payload placeholder grammar and its parsed Value variant
//   - Graph lifecycle statuses
//   - The session callback contract between the engine and the client channel
//   - WebSocket message envelopes for the session channel
package types
