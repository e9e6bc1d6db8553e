// Package pb holds the gRPC wire message types for the A2A service.
//
// Protobuf codegen tooling is out of scope here: there is no .proto file
// and no protoc-gen-go output to vendor. These structs are hand-authored
// stand-ins for what generated code would produce, mirroring bindu's own
// a2a_pb2 module (itself generated from a2a.proto) field-for-field closely
// enough that pkg/grpcsurface/convert.go reads like a real proto <-> domain
// converter. They are carried over the wire by the JSON codec in codec.go
// rather than binary protobuf encoding.
package pb

// Part mirrors the oneof{text_part, file_part, data_part} proto message.
type Part struct {
	TextPart *TextPart `json:"textPart,omitempty"`
	FilePart *FilePart `json:"filePart,omitempty"`
	DataPart *DataPart `json:"dataPart,omitempty"`
}

type TextPart struct {
	Text       string            `json:"text"`
	Embeddings []float32         `json:"embeddings,omitempty"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}

type FilePart struct {
	FileID   string            `json:"fileId"`
	MimeType string            `json:"mimeType"`
	Filename string            `json:"filename"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

type DataPart struct {
	MimeType string            `json:"mimeType"`
	Data     []byte            `json:"data"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// Message mirrors the proto Message.
type Message struct {
	MessageID        string   `json:"messageId"`
	ContextID        string   `json:"contextId,omitempty"`
	TaskID           string   `json:"taskId,omitempty"`
	Role             string   `json:"role"`
	Parts            []*Part  `json:"parts"`
	ReferenceTaskIDs []string `json:"referenceTaskIds,omitempty"`
}

// TaskStatus mirrors the proto TaskStatus.
type TaskStatus struct {
	State     string   `json:"state"`
	Message   *Message `json:"message,omitempty"`
	Timestamp int64    `json:"timestamp"` // unix seconds
}

// Artifact mirrors the proto Artifact.
type Artifact struct {
	ArtifactID  string  `json:"artifactId"`
	Name        string  `json:"name,omitempty"`
	Description string  `json:"description,omitempty"`
	Parts       []*Part `json:"parts"`
}

// Task mirrors the proto Task.
type Task struct {
	ID        string      `json:"id"`
	ContextID string      `json:"contextId"`
	Status    TaskStatus  `json:"status"`
	Artifacts []*Artifact `json:"artifacts,omitempty"`
	History   []*Message  `json:"history,omitempty"`
}

// TaskStatusUpdateEvent and TaskArtifactUpdateEvent mirror the two proto
// event payloads that TaskEvent's oneof selects between.
type TaskStatusUpdateEvent struct {
	TaskID    string     `json:"taskId"`
	ContextID string     `json:"contextId"`
	Status    TaskStatus `json:"status"`
	Final     bool       `json:"final"`
}

type TaskArtifactUpdateEvent struct {
	TaskID    string   `json:"taskId"`
	ContextID string   `json:"contextId"`
	Artifact  Artifact `json:"artifact"`
	Append    bool     `json:"append"`
	LastChunk bool     `json:"lastChunk"`
}

// TaskEvent is the oneof{status_update, artifact_update} proto message
// streamed by StreamMessage.
type TaskEvent struct {
	StatusUpdate   *TaskStatusUpdateEvent   `json:"statusUpdate,omitempty"`
	ArtifactUpdate *TaskArtifactUpdateEvent `json:"artifactUpdate,omitempty"`
}

// PushNotificationConfig mirrors the proto message of the same name.
type PushNotificationConfig struct {
	ID             string            `json:"id,omitempty"`
	URL            string            `json:"url"`
	Token          string            `json:"token,omitempty"`
	Authentication map[string]string `json:"authentication,omitempty"`
}

// TaskPushNotificationConfig binds a PushNotificationConfig to a task.
type TaskPushNotificationConfig struct {
	TaskID                 string                  `json:"taskId"`
	PushNotificationConfig *PushNotificationConfig `json:"pushNotificationConfig"`
}

// ContextSummary mirrors the proto ContextSummary. Task counts and ids ride
// in the string metadata map (task_ids as a JSON array string) rather than
// dedicated fields, so the proto schema never has to grow for them.
type ContextSummary struct {
	ContextID string            `json:"contextId"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// Empty is the nullary request/response shared by several RPCs, mirroring
// google.protobuf.Empty's usual stand-in role in hand-rolled services.
type Empty struct{}

// --- per-RPC request/response envelopes, one per servicer.py method ---

type SendMessageRequest struct {
	Message             *Message `json:"message"`
	HistoryLength       int32    `json:"historyLength,omitempty"`
	AcceptedOutputModes []string `json:"acceptedOutputModes,omitempty"`
}

type SendMessageResponse struct {
	Task *Task `json:"task"`
}

type StreamMessageRequest struct {
	Message *Message `json:"message"`
}

type GetTaskRequest struct {
	ID            string `json:"id"`
	HistoryLength int32  `json:"historyLength,omitempty"`
}

type ListTasksRequest struct {
	Limit int32 `json:"limit,omitempty"`
}

type ListTasksResponse struct {
	Tasks []*Task `json:"tasks"`
}

type CancelTaskRequest struct {
	ID string `json:"id"`
}

type TaskFeedbackRequest struct {
	TaskID   string `json:"taskId"`
	Feedback string `json:"feedback"`
	Rating   int32  `json:"rating,omitempty"`
}

type ListContextsRequest struct {
	Limit int32 `json:"limit,omitempty"`
}

type ListContextsResponse struct {
	Contexts []*ContextSummary `json:"contexts"`
}

type ClearContextRequest struct {
	ContextID string `json:"contextId"`
}

type SetTaskPushNotificationRequest struct {
	Config *TaskPushNotificationConfig `json:"config"`
}

type GetTaskPushNotificationRequest struct {
	TaskID string `json:"taskId"`
}

type ListTaskPushNotificationsRequest struct {
	TaskID string `json:"taskId"`
}

type ListTaskPushNotificationsResponse struct {
	Configs []*TaskPushNotificationConfig `json:"configs"`
}

type DeleteTaskPushNotificationRequest struct {
	TaskID   string `json:"taskId"`
	ConfigID string `json:"id"`
}

type HealthCheckResponse struct {
	Running bool `json:"running"`
}
