package types

// Status represents the lifecycle state of a task graph.
//
// The gathering phase moves a graph through pending -> in_progress ->
// completed; the execution phase through executing -> executed, with
// failed reachable from executing only.
type Status string

const (
	// StatusPending means the graph was created and no question has been
	// asked yet.
	StatusPending Status = "pending"

	// StatusInProgress means information gathering has started and at
	// least one placeholder is still unfilled.
	StatusInProgress Status = "in_progress"

	// StatusCompleted means every USER_INPUT placeholder has been filled.
	StatusCompleted Status = "completed"

	// StatusExecuting means the execution engine is walking the subtasks.
	StatusExecuting Status = "executing"

	// StatusExecuted means every subtask finished successfully.
	StatusExecuted Status = "executed"

	// StatusFailed means a subtask failed and the run was aborted.
	StatusFailed Status = "failed"
)

// ReadyForExecution reports whether a graph in this status may enter the
// execution phase. This is the single gate between gathering and execution.
func (s Status) ReadyForExecution() bool {
	return s == StatusCompleted
}

// Terminal reports whether the status is a terminal execution state.
func (s Status) Terminal() bool {
	return s == StatusExecuted || s == StatusFailed
}

// Valid reports whether s is one of the known lifecycle statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusInProgress, StatusCompleted,
		StatusExecuting, StatusExecuted, StatusFailed:
		return true
	}
	return false
}
