package storage

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/theapemachine/a2a-go/pkg/a2a"
)

func TestMemoryStorage_SubmitTask_NewTask(t *testing.T) {
	s := NewMemoryStorage()
	ctx := context.Background()

	msg := *a2a.NewTextMessage("user", "hello")
	task, err := s.SubmitTask(ctx, "", msg)
	require.NoError(t, err)
	assert.Equal(t, a2a.TaskStateSubmitted, task.Status.State)
	assert.NotEmpty(t, task.ContextID)
}

func TestMemoryStorage_SubmitTask_IdentifierMismatch(t *testing.T) {
	s := NewMemoryStorage()
	ctx := context.Background()

	msg := *a2a.NewTextMessage("user", "hello")
	msg.TaskID = "fixed-task"
	task, err := s.SubmitTask(ctx, "context-a", msg)
	require.NoError(t, err)
	require.Equal(t, "context-a", task.ContextID)

	msg2 := *a2a.NewTextMessage("user", "follow-up")
	msg2.TaskID = "fixed-task"
	_, err = s.SubmitTask(ctx, "context-b", msg2)
	require.Error(t, err)

	aerr, ok := a2a.AsError(err)
	require.True(t, ok)
	assert.Equal(t, a2a.KindIdentifierMismatch, aerr.Kind)
}

func TestMemoryStorage_UpdateTaskStatus_RejectsIllegalTransition(t *testing.T) {
	s := NewMemoryStorage()
	ctx := context.Background()

	task, err := s.SubmitTask(ctx, "", *a2a.NewTextMessage("user", "hi"))
	require.NoError(t, err)

	_, err = s.UpdateTaskStatus(ctx, task.TaskID, a2a.TaskStateCompleted, nil)
	require.Error(t, err)

	_, err = s.UpdateTaskStatus(ctx, task.TaskID, a2a.TaskStateWorking, nil)
	require.NoError(t, err)

	_, err = s.UpdateTaskStatus(ctx, task.TaskID, a2a.TaskStateCompleted, nil)
	require.NoError(t, err)

	_, err = s.UpdateTaskStatus(ctx, task.TaskID, a2a.TaskStateWorking, nil)
	require.Error(t, err)
}

func TestMemoryStorage_AppendArtifact_AppendAndReplace(t *testing.T) {
	s := NewMemoryStorage()
	ctx := context.Background()

	task, err := s.SubmitTask(ctx, "", *a2a.NewTextMessage("user", "hi"))
	require.NoError(t, err)

	artifact := a2a.NewArtifact("result", a2a.NewTextPart("a"))
	updated, err := s.AppendArtifact(ctx, task.TaskID, ArtifactDelta{Artifact: artifact})
	require.NoError(t, err)
	require.Len(t, updated.Artifacts, 1)

	updated, err = s.AppendArtifact(ctx, task.TaskID, ArtifactDelta{
		Append:   true,
		Artifact: a2a.Artifact{ArtifactID: artifact.ArtifactID, Parts: []a2a.Part{a2a.NewTextPart("b")}},
	})
	require.NoError(t, err)
	require.Len(t, updated.Artifacts, 1)
	assert.Len(t, updated.Artifacts[0].Parts, 2)
}

func TestMemoryStorage_ClearContext_CascadesPushConfigs(t *testing.T) {
	s := NewMemoryStorage()
	ctx := context.Background()

	task, err := s.SubmitTask(ctx, "ctx-1", *a2a.NewTextMessage("user", "hi"))
	require.NoError(t, err)

	require.NoError(t, s.SetPushConfig(ctx, a2a.TaskPushNotificationConfig{
		TaskID:                 task.TaskID,
		PushNotificationConfig: a2a.PushNotificationConfig{URL: "https://example.test/hook"},
	}))

	require.NoError(t, s.ClearContext(ctx, "ctx-1"))

	_, err = s.LoadTask(ctx, task.TaskID)
	require.Error(t, err)

	_, err = s.GetPushConfig(ctx, task.TaskID)
	require.Error(t, err)
}

func TestMemoryStorage_ListContexts_ReportsTaskIDs(t *testing.T) {
	s := NewMemoryStorage()
	ctx := context.Background()

	task, err := s.SubmitTask(ctx, "ctx-list", *a2a.NewTextMessage("user", "hi"))
	require.NoError(t, err)

	summaries, err := s.ListContexts(ctx, 0)
	require.NoError(t, err)
	require.Len(t, summaries, 1)
	assert.Equal(t, 1, summaries[0].TaskCount)
	assert.Contains(t, summaries[0].TaskIDs, task.TaskID)
}

func TestMemoryStorage_UpdateTaskMetadata_MergesKeys(t *testing.T) {
	s := NewMemoryStorage()
	ctx := context.Background()

	task, err := s.SubmitTask(ctx, "", *a2a.NewTextMessage("user", "hi"))
	require.NoError(t, err)

	require.NoError(t, s.UpdateTaskMetadata(ctx, task.TaskID, map[string]any{"a": 1}))
	require.NoError(t, s.UpdateTaskMetadata(ctx, task.TaskID, map[string]any{"b": 2}))

	loaded, err := s.LoadTask(ctx, task.TaskID)
	require.NoError(t, err)
	assert.EqualValues(t, 1, loaded.Metadata["a"])
	assert.EqualValues(t, 2, loaded.Metadata["b"])
}
