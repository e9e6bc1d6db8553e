package a2a

import "time"

/*
EventKind discriminates the two shapes a TaskEvent may take on the wire.
*/
type EventKind string

const (
	EventKindStatusUpdate   EventKind = "status-update"
	EventKindArtifactUpdate EventKind = "artifact-update"
)

/*
TaskEvent is the tagged variant streamed from Scheduler to every observer
(Task Manager halt-detection, SSE subscribers, gRPC StreamMessage, push
dispatch). Exactly one of Status/ArtifactUpdate is populated according to
Kind.
*/
type TaskEvent struct {
	Kind      EventKind `json:"kind"`
	TaskID    string    `json:"taskId"`
	ContextID string    `json:"contextId"`

	Status   *TaskStatusEvent `json:"status,omitempty"`
	Artifact *ArtifactEvent   `json:"artifact,omitempty"`

	Final    bool           `json:"final"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

type TaskStatusEvent struct {
	State     TaskState `json:"state"`
	Timestamp time.Time `json:"timestamp"`
	Message   *Message  `json:"message,omitempty"`
}

type ArtifactEvent struct {
	Artifact  Artifact `json:"artifact"`
	Append    bool     `json:"append"`
	LastChunk bool     `json:"lastChunk"`
}

// NewStatusEvent builds a status-update TaskEvent. final marks whether the
// event halts the task (input-required or any terminal state).
func NewStatusEvent(taskID, contextID string, state TaskState, msg *Message, final bool) TaskEvent {
	return TaskEvent{
		Kind:      EventKindStatusUpdate,
		TaskID:    taskID,
		ContextID: contextID,
		Status: &TaskStatusEvent{
			State:     state,
			Timestamp: time.Now().UTC(),
			Message:   msg,
		},
		Final: final,
	}
}

// NewArtifactEvent builds an artifact-update TaskEvent. It is never final on
// its own; the worker follows it with a status-update once the task halts.
func NewArtifactEvent(taskID, contextID string, artifact Artifact, append, lastChunk bool) TaskEvent {
	return TaskEvent{
		Kind:      EventKindArtifactUpdate,
		TaskID:    taskID,
		ContextID: contextID,
		Artifact: &ArtifactEvent{
			Artifact:  artifact,
			Append:    append,
			LastChunk: lastChunk,
		},
	}
}
