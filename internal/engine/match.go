package engine

import (
	"strings"

	"allin1/orchestrator/internal/backend"
)

// matchOperation maps a function identifier onto one of the backend's
// operations. Two passes, exact before fuzzy: an operation whose name
// ends with the function identifier wins over one that merely contains
// it. Matching is case-insensitive.
//
// This heuristic is deliberately preserved for compatibility with
// existing plans; explicit per-backend overrides take priority upstream.
func matchOperation(function string, ops []backend.Operation) (string, bool) {
	fn := strings.ToLower(function)

	for _, op := range ops {
		if strings.HasSuffix(strings.ToLower(op.Name), fn) {
			return op.Name, true
		}
	}
	for _, op := range ops {
		if strings.Contains(strings.ToLower(op.Name), fn) {
			return op.Name, true
		}
	}
	return "", false
}
