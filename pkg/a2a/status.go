package a2a

import "time"

/*
TaskState enumerates the mutually‑exclusive states a task may be in.  The
zero value is the empty string; TaskStateUnknown ("unknown") is a distinct
named state.
*/
type TaskState string

const (
	TaskStateSubmitted TaskState = "submitted"
	TaskStateWorking   TaskState = "working"
	TaskStateInputReq  TaskState = "input-required"
	TaskStateCompleted TaskState = "completed"
	TaskStateCanceled  TaskState = "canceled"
	TaskStateFailed    TaskState = "failed"
	TaskStateUnknown   TaskState = "unknown"
)

// Terminal reports whether the state is a terminal state of the task
// lifecycle (no further transitions are possible).
func (s TaskState) Terminal() bool {
	switch s {
	case TaskStateCompleted, TaskStateCanceled, TaskStateFailed:
		return true
	default:
		return false
	}
}

// validTransitions mirrors the state DAG enforced by the core: submitted
// starts the task, working is the only state that can halt at
// input-required, and only input-required can resume back to working.
var validTransitions = map[TaskState][]TaskState{
	TaskStateSubmitted: {TaskStateWorking, TaskStateCanceled, TaskStateFailed},
	TaskStateWorking:   {TaskStateInputReq, TaskStateCompleted, TaskStateCanceled, TaskStateFailed},
	TaskStateInputReq:  {TaskStateWorking, TaskStateCanceled, TaskStateFailed},
}

// CanTransition reports whether moving from s to next is legal under the
// task lifecycle state machine.
func (s TaskState) CanTransition(next TaskState) bool {
	for _, allowed := range validTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

type TaskStatus struct {
	State     TaskState `json:"state"`
	Message   *Message  `json:"message,omitempty"`
	Timestamp time.Time `json:"timestamp,omitempty"`
}
