package a2a

import (
	"time"

	"github.com/charmbracelet/log"
	"github.com/cohesivestack/valgo"
)

/*
Task is a unit of handler execution. ContextID is immutable once set;
NewTask sets Kind to "task", and a zero-value Task has an empty Kind.
*/
type Task struct {
	TaskID    string         `json:"id"`
	ContextID string         `json:"contextId"`
	Kind      string         `json:"kind"`
	Status    TaskStatus     `json:"status"`
	Artifacts []Artifact     `json:"artifacts,omitempty"`
	History   []Message      `json:"history,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// Validate enforces the minimal wire-shape invariants of a freshly
// constructed task, independent of the state-transition rules in status.go.
func (task *Task) Validate() error {
	v := valgo.Is(
		valgo.String(task.TaskID, "id").Not().Blank(),
		valgo.String(task.ContextID, "contextId").Not().Blank(),
		valgo.String(string(task.Status.State), "status.state").Not().Blank(),
	)
	if !v.Valid() {
		return ErrInvalidArgument("%s", v.Error())
	}
	return nil
}

// NewTask creates a task in the submitted state under the given context. If
// contextID is empty a fresh one is minted (first message of a new context).
func NewTask(contextID string) *Task {
	if contextID == "" {
		contextID = NewID()
	}

	return &Task{
		TaskID:    NewID(),
		ContextID: contextID,
		Kind:      "task",
		Status: TaskStatus{
			State:     TaskStateSubmitted,
			Timestamp: time.Now().UTC(),
		},
		Artifacts: make([]Artifact, 0),
		History:   make([]Message, 0),
		Metadata:  make(map[string]any),
	}
}

// ToStatus transitions the task to the given state, rejecting moves that
// violate the lifecycle DAG (see TaskState.CanTransition).
func (task *Task) ToStatus(state TaskState, message *Message) error {
	if !task.Status.State.CanTransition(state) {
		return ErrFailedPrecondition(
			"task %s cannot transition from %s to %s", task.TaskID, task.Status.State, state,
		)
	}

	log.Info("task status update", "task_id", task.TaskID, "from", task.Status.State, "to", state)

	task.Status.State = state
	task.Status.Timestamp = time.Now().UTC()
	task.Status.Message = message
	return nil
}

func (task *Task) LastMessage() *Message {
	if len(task.History) == 0 {
		return nil
	}

	return &task.History[len(task.History)-1]
}

// AppendHistory appends a message to the task's authoritative history order.
func (task *Task) AppendHistory(msg Message) {
	task.History = append(task.History, msg)
}

// AddArtifact implements the non-append path of append_artifact: replace an
// existing artifact with the same ArtifactID, or add it.
func (task *Task) AddArtifact(artifact Artifact) {
	for i, existing := range task.Artifacts {
		if existing.ArtifactID == artifact.ArtifactID {
			task.Artifacts[i] = artifact
			return
		}
	}
	task.Artifacts = append(task.Artifacts, artifact)
}

// MergeArtifact implements the append=true path: merge new parts into the
// existing artifact identified by artifactID, creating it if absent.
func (task *Task) MergeArtifact(artifactID string, parts []Part) {
	for i, existing := range task.Artifacts {
		if existing.ArtifactID == artifactID {
			task.Artifacts[i].Parts = append(task.Artifacts[i].Parts, parts...)
			return
		}
	}
	task.Artifacts = append(task.Artifacts, Artifact{ArtifactID: artifactID, Parts: parts})
}

// --- JSON-RPC / gRPC parameter shapes (pkg/jsonrpc, pkg/grpcsurface) ---

// MessageSendParams is the params object of message/send and message/stream.
type MessageSendParams struct {
	Message       Message        `json:"message"`
	Configuration *SendConfig    `json:"configuration,omitempty"`
	Metadata      map[string]any `json:"metadata,omitempty"`
}

// SendConfig carries the caller's optional per-request overrides.
type SendConfig struct {
	HistoryLength       *int                    `json:"historyLength,omitempty"`
	PushNotification    *PushNotificationConfig `json:"pushNotificationConfig,omitempty"`
	AcceptedOutputModes []string                `json:"acceptedOutputModes,omitempty"`
}

// TaskIDParams is the params object of tasks/cancel and the push-config
// lookups keyed only on a task id.
type TaskIDParams struct {
	ID       string         `json:"id"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// TaskQueryParams is the params object of tasks/get.
type TaskQueryParams struct {
	TaskIDParams
	HistoryLength *int `json:"historyLength,omitempty"`
}

// TaskListParams is the params object of tasks/list and contexts/list.
type TaskListParams struct {
	Limit *int `json:"limit,omitempty"`
}

// ContextIDParams is the params object of contexts/clear.
type ContextIDParams struct {
	ContextID string `json:"contextId"`
}

// TaskFeedbackParams is the params object of tasks/feedback.
type TaskFeedbackParams struct {
	TaskID   string         `json:"taskId"`
	Feedback string         `json:"feedback"`
	Rating   *int           `json:"rating,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// PushNotificationConfig is the webhook target a caller registers to be
// notified of terminal/halt status updates out of band.
type PushNotificationConfig struct {
	ID             string               `json:"id,omitempty"`
	URL            string               `json:"url"`
	Token          string               `json:"token,omitempty"`
	Authentication *AgentAuthentication `json:"authentication,omitempty"`
}

// TaskPushNotificationConfig binds a PushNotificationConfig to a task.
type TaskPushNotificationConfig struct {
	TaskID                 string                 `json:"taskId"`
	PushNotificationConfig PushNotificationConfig `json:"pushNotificationConfig"`
}

// TaskPushNotificationConfigParams is the params object of
// tasks/pushNotificationConfig/{list,delete}.
type TaskPushNotificationConfigParams struct {
	TaskID   string `json:"taskId"`
	ConfigID string `json:"id,omitempty"`
}
