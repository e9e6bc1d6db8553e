package storage

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/theapemachine/a2a-go/pkg/a2a"
)

// contextEntry tracks a context's task membership, mirroring list_contexts'
// cheap-projection need. Message history itself lives on each Task.
type contextEntry struct {
	summary a2a.ContextSummary
	taskIDs map[string]struct{}
}

// MemoryStorage is the single-process backend: mutex-guarded maps, good
// enough for demos, tests and the STORAGE_TYPE=memory deployment mode. It
// mirrors the teacher's sync.RWMutex-guarded map idiom, generalized across
// contexts/tasks/push-configs.
type MemoryStorage struct {
	mu sync.RWMutex

	tasks    map[string]*a2a.Task
	contexts map[string]*contextEntry
	push     map[string][]a2a.TaskPushNotificationConfig

	maxHistory  int
	maxArtifact int
}

// NewMemoryStorage constructs an empty in-memory store with the default
// history/artifact limits.
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		tasks:       make(map[string]*a2a.Task),
		contexts:    make(map[string]*contextEntry),
		push:        make(map[string][]a2a.TaskPushNotificationConfig),
		maxHistory:  MaxHistoryLength,
		maxArtifact: MaxArtifactBytes,
	}
}

// EnsureSchema is a no-op for the in-memory backend; there is no schema to
// prepare.
func (s *MemoryStorage) EnsureSchema(ctx context.Context) error {
	return nil
}

func (s *MemoryStorage) ctxEntry(contextID string) *contextEntry {
	entry, ok := s.contexts[contextID]
	if !ok {
		entry = &contextEntry{
			summary: a2a.ContextSummary{ContextID: contextID},
			taskIDs: make(map[string]struct{}),
		}
		s.contexts[contextID] = entry
	}
	return entry
}

// SubmitTask implements Storage.SubmitTask: a new task_id mints a fresh
// submitted task under contextID; an existing task_id validates context_id
// match (invariant 1), appends the message to that task's history and
// returns the existing task.
func (s *MemoryStorage) SubmitTask(ctx context.Context, contextID string, message a2a.Message) (*a2a.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if message.TaskID != "" {
		existing, ok := s.tasks[message.TaskID]
		if ok {
			if existing.ContextID != contextID && contextID != "" {
				return nil, a2a.ErrIdentifierMismatch(
					"message contextId %q does not match task %s's contextId %q",
					contextID, existing.TaskID, existing.ContextID,
				)
			}
			if len(existing.History) >= s.maxHistory {
				return nil, a2a.ErrInvalidArgument("task %s history exceeds max length of %d", existing.TaskID, s.maxHistory)
			}
			message.TaskID = existing.TaskID
			message.ContextID = existing.ContextID
			existing.AppendHistory(message)
			if entry, ok := s.contexts[existing.ContextID]; ok {
				s.refreshSummary(entry)
			}
			return existing, nil
		}
	}

	task := a2a.NewTask(contextID)
	if message.TaskID != "" {
		task.TaskID = message.TaskID
	}
	message.TaskID = task.TaskID
	message.ContextID = task.ContextID

	task.AppendHistory(message)
	s.tasks[task.TaskID] = task

	entry := s.ctxEntry(task.ContextID)
	entry.taskIDs[task.TaskID] = struct{}{}
	s.refreshSummary(entry)

	log.Info("storage: task submitted", "task_id", task.TaskID, "context_id", task.ContextID)
	return task, nil
}

func (s *MemoryStorage) refreshSummary(entry *contextEntry) {
	ids := make([]string, 0, len(entry.taskIDs))
	for id := range entry.taskIDs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	entry.summary.TaskIDs = ids
	entry.summary.TaskCount = len(ids)
	entry.summary.LastActivity = time.Now().UTC()
}

func (s *MemoryStorage) LoadTask(ctx context.Context, taskID string) (*a2a.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	task, ok := s.tasks[taskID]
	if !ok {
		return nil, a2a.ErrNotFound("task %s not found", taskID)
	}
	return task, nil
}

// ListTasks returns a newest-first snapshot, limited when limit > 0.
func (s *MemoryStorage) ListTasks(ctx context.Context, limit int) ([]*a2a.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*a2a.Task, 0, len(s.tasks))
	for _, t := range s.tasks {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Status.Timestamp.After(out[j].Status.Timestamp)
	})
	if limit > 0 && limit < len(out) {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemoryStorage) UpdateTaskStatus(ctx context.Context, taskID string, state a2a.TaskState, message *a2a.Message) (*a2a.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	task, ok := s.tasks[taskID]
	if !ok {
		return nil, a2a.ErrNotFound("task %s not found", taskID)
	}
	if err := task.ToStatus(state, message); err != nil {
		return nil, err
	}
	return task, nil
}

// UpdateTaskMetadata merges metadata into a task's stored Metadata map.
func (s *MemoryStorage) UpdateTaskMetadata(ctx context.Context, taskID string, metadata map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	task, ok := s.tasks[taskID]
	if !ok {
		return a2a.ErrNotFound("task %s not found", taskID)
	}
	if task.Metadata == nil {
		task.Metadata = make(map[string]any)
	}
	for k, v := range metadata {
		task.Metadata[k] = v
	}
	return nil
}

func artifactByteSize(artifact a2a.Artifact) int {
	b, err := json.Marshal(artifact.Parts)
	if err != nil {
		return 0
	}
	return len(b)
}

func (s *MemoryStorage) AppendArtifact(ctx context.Context, taskID string, delta ArtifactDelta) (*a2a.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	task, ok := s.tasks[taskID]
	if !ok {
		return nil, a2a.ErrNotFound("task %s not found", taskID)
	}

	// The cap applies to the reassembled artifact, not just this chunk.
	size := artifactByteSize(delta.Artifact)
	if delta.Append {
		for _, artifact := range task.Artifacts {
			if artifact.ArtifactID == delta.Artifact.ArtifactID {
				size += artifactByteSize(artifact)
			}
		}
	}
	if size > s.maxArtifact {
		return nil, a2a.ErrInvalidArgument("artifact %s exceeds max size of %d bytes", delta.Artifact.ArtifactID, s.maxArtifact)
	}

	if delta.Append {
		task.MergeArtifact(delta.Artifact.ArtifactID, delta.Artifact.Parts)
	} else {
		task.AddArtifact(delta.Artifact)
	}
	return task, nil
}

func (s *MemoryStorage) AppendHistory(ctx context.Context, taskID string, message a2a.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	task, ok := s.tasks[taskID]
	if !ok {
		return a2a.ErrNotFound("task %s not found", taskID)
	}
	if len(task.History) >= s.maxHistory {
		return a2a.ErrInvalidArgument("task %s history exceeds max length of %d", taskID, s.maxHistory)
	}
	task.AppendHistory(message)

	if entry, ok := s.contexts[task.ContextID]; ok {
		s.refreshSummary(entry)
	}
	return nil
}

func (s *MemoryStorage) ListContexts(ctx context.Context, limit int) ([]a2a.ContextSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]a2a.ContextSummary, 0, len(s.contexts))
	for _, entry := range s.contexts {
		out = append(out, entry.summary)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].LastActivity.After(out[j].LastActivity)
	})
	if limit > 0 && limit < len(out) {
		out = out[:limit]
	}
	return out, nil
}

// ClearContext deletes tasks, messages, artifacts and push configs bound to
// contextID (invariant 6: push configs cascade with the task).
func (s *MemoryStorage) ClearContext(ctx context.Context, contextID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.contexts[contextID]
	if !ok {
		return a2a.ErrNotFound("context %s not found", contextID)
	}

	for taskID := range entry.taskIDs {
		delete(s.tasks, taskID)
		delete(s.push, taskID)
	}
	delete(s.contexts, contextID)
	return nil
}

func (s *MemoryStorage) SetPushConfig(ctx context.Context, cfg a2a.TaskPushNotificationConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.tasks[cfg.TaskID]; !ok {
		return a2a.ErrNotFound("task %s not found", cfg.TaskID)
	}

	if cfg.PushNotificationConfig.ID == "" {
		cfg.PushNotificationConfig.ID = a2a.NewID()
	}

	list := s.push[cfg.TaskID]
	for i, existing := range list {
		if existing.PushNotificationConfig.ID == cfg.PushNotificationConfig.ID {
			list[i] = cfg
			s.push[cfg.TaskID] = list
			return nil
		}
	}
	s.push[cfg.TaskID] = append(list, cfg)
	return nil
}

func (s *MemoryStorage) GetPushConfig(ctx context.Context, taskID string) (*a2a.TaskPushNotificationConfig, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	list := s.push[taskID]
	if len(list) == 0 {
		return nil, a2a.ErrNotFound("no push config for task %s", taskID)
	}
	cfg := list[0]
	return &cfg, nil
}

func (s *MemoryStorage) ListPushConfigs(ctx context.Context, taskID string) ([]a2a.TaskPushNotificationConfig, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]a2a.TaskPushNotificationConfig, len(s.push[taskID]))
	copy(out, s.push[taskID])
	return out, nil
}

func (s *MemoryStorage) DeletePushConfig(ctx context.Context, taskID, configID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	list := s.push[taskID]
	for i, cfg := range list {
		if cfg.PushNotificationConfig.ID == configID {
			s.push[taskID] = append(list[:i], list[i+1:]...)
			return nil
		}
	}
	return a2a.ErrNotFound("push config %s not found for task %s", configID, taskID)
}
