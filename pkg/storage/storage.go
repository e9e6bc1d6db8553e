// Package storage implements the task execution core's durable layer: tasks,
// contexts, message history, artifacts and push-notification configs, with
// serializable per-task state transitions.
package storage

import (
	"context"

	"github.com/theapemachine/a2a-go/pkg/a2a"
)

// MaxHistoryLength is the default per-task history cap; append_history
// beyond it fails with invalid-argument rather than growing unbounded.
const MaxHistoryLength = 500

// MaxArtifactBytes is the default per-artifact size cap, measured over the
// JSON-encoded size of an artifact's parts.
const MaxArtifactBytes = 10 * 1024 * 1024

// ArtifactDelta is the append_artifact request shape: when Append is false
// the artifact replaces-or-adds by ArtifactID; when true, Parts are merged
// into the existing artifact and LastChunk marks completion.
type ArtifactDelta struct {
	Append    bool
	LastChunk bool
	Artifact  a2a.Artifact
}

// Storage is the polymorphic contract implemented by MemoryStorage and
// PostgresStorage. Every operation returns a *a2a.Error on failure,
// classified per the shared error taxonomy.
type Storage interface {
	// EnsureSchema prepares the backend for use (no-op for memory, schema
	// creation for postgres). Called once at process startup.
	EnsureSchema(ctx context.Context) error

	SubmitTask(ctx context.Context, contextID string, message a2a.Message) (*a2a.Task, error)
	LoadTask(ctx context.Context, taskID string) (*a2a.Task, error)
	ListTasks(ctx context.Context, limit int) ([]*a2a.Task, error)
	UpdateTaskStatus(ctx context.Context, taskID string, state a2a.TaskState, message *a2a.Message) (*a2a.Task, error)
	AppendArtifact(ctx context.Context, taskID string, delta ArtifactDelta) (*a2a.Task, error)
	AppendHistory(ctx context.Context, taskID string, message a2a.Message) error
	// UpdateTaskMetadata merges keys into a task's metadata, persisting
	// feedback and similar out-of-band annotations (spec §4.3 tasks/feedback).
	UpdateTaskMetadata(ctx context.Context, taskID string, metadata map[string]any) error

	ListContexts(ctx context.Context, limit int) ([]a2a.ContextSummary, error)
	ClearContext(ctx context.Context, contextID string) error

	SetPushConfig(ctx context.Context, cfg a2a.TaskPushNotificationConfig) error
	GetPushConfig(ctx context.Context, taskID string) (*a2a.TaskPushNotificationConfig, error)
	ListPushConfigs(ctx context.Context, taskID string) ([]a2a.TaskPushNotificationConfig, error)
	DeletePushConfig(ctx context.Context, taskID, configID string) error
}
