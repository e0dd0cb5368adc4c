// Package models defines the shared vocabulary spoken by the planner and
// executor loops: executor status, the command/feedback protocol, and todo
// items. No other state crosses the loop boundary.
package models

import "fmt"

// ExecutorState enumerates the executor's lifecycle states.
type ExecutorState int

const (
	// StateIdle means the executor is waiting for a task.
	StateIdle ExecutorState = iota
	// StateRunning means the executor is actively stepping a task.
	StateRunning
	// StatePaused means execution is suspended by external command.
	StatePaused
	// StateStuck means the screen has not changed for the configured
	// number of consecutive ticks.
	StateStuck
	// StateCompleted means the current task reported finished.
	StateCompleted
	// StateFailed means an unrecoverable error halted the task.
	StateFailed
)

// String returns the lowercase name of the state.
func (s ExecutorState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StatePaused:
		return "paused"
	case StateStuck:
		return "stuck"
	case StateCompleted:
		return "completed"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("unknown(%d)", int(s))
	}
}

// ExecutorStatus is the executor's current state plus, for StateFailed,
// the reason the task was halted. Reason is empty for every other state.
type ExecutorStatus struct {
	State  ExecutorState
	Reason string
}

// Idle returns the idle status.
func Idle() ExecutorStatus { return ExecutorStatus{State: StateIdle} }

// Running returns the running status.
func Running() ExecutorStatus { return ExecutorStatus{State: StateRunning} }

// Paused returns the paused status.
func Paused() ExecutorStatus { return ExecutorStatus{State: StatePaused} }

// Stuck returns the stuck status.
func Stuck() ExecutorStatus { return ExecutorStatus{State: StateStuck} }

// Completed returns the completed status.
func Completed() ExecutorStatus { return ExecutorStatus{State: StateCompleted} }

// Failed returns a failed status carrying the halt reason.
func Failed(reason string) ExecutorStatus {
	return ExecutorStatus{State: StateFailed, Reason: reason}
}

// String renders the status for logs; failed statuses include the reason.
func (s ExecutorStatus) String() string {
	if s.State == StateFailed && s.Reason != "" {
		return fmt.Sprintf("failed: %s", s.Reason)
	}
	return s.State.String()
}

// Terminal reports whether the status ends automatic ticking until a new
// StartTask is processed.
func (s ExecutorStatus) Terminal() bool {
	return s.State == StateCompleted || s.State == StateFailed
}
