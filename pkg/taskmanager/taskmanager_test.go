package taskmanager

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/theapemachine/a2a-go/pkg/a2a"
	"github.com/theapemachine/a2a-go/pkg/scheduler"
	"github.com/theapemachine/a2a-go/pkg/storage"
	"github.com/theapemachine/a2a-go/pkg/worker"
)

func newFixture(handler worker.Handler) (*TaskManager, storage.Storage) {
	store := storage.NewMemoryStorage()
	sched := scheduler.NewMemoryScheduler()
	tm := New(store, sched, handler)
	tm.PushNotificationsEnabled = true
	return tm, store
}

func withTimeout(t *testing.T) (context.Context, context.CancelFunc) {
	t.Helper()
	return context.WithTimeout(context.Background(), 2*time.Second)
}

func TestTaskManager_SendMessageCompletesSimpleTask(t *testing.T) {
	tm, _ := newFixture(func(ctx context.Context, history []worker.HistoryRecord, cancel worker.CancelToken) (any, error) {
		return "pong", nil
	})

	ctx, cancel := withTimeout(t)
	defer cancel()

	task, err := tm.SendMessage(ctx, a2a.MessageSendParams{Message: *a2a.NewTextMessage("user", "ping")})
	require.NoError(t, err)
	assert.Equal(t, a2a.TaskStateCompleted, task.Status.State)
	require.Len(t, task.Artifacts, 1)
}

func TestTaskManager_SendMessageIdentifierMismatchRejected(t *testing.T) {
	tm, _ := newFixture(func(ctx context.Context, history []worker.HistoryRecord, cancel worker.CancelToken) (any, error) {
		return "pong", nil
	})

	ctx, cancel := withTimeout(t)
	defer cancel()

	task, err := tm.SendMessage(ctx, a2a.MessageSendParams{Message: *a2a.NewTextMessage("user", "ping")})
	require.NoError(t, err)

	follow := a2a.NewTextMessage("user", "follow-up")
	follow.TaskID = task.TaskID
	follow.ContextID = "some-other-context"

	_, err = tm.SendMessage(ctx, a2a.MessageSendParams{Message: *follow})
	require.Error(t, err)
	var a2aErr *a2a.Error
	require.ErrorAs(t, err, &a2aErr)
	assert.Equal(t, a2a.KindIdentifierMismatch, a2aErr.Kind)
}

func TestTaskManager_StreamMessageDeliversLiveEvents(t *testing.T) {
	tm, _ := newFixture(func(ctx context.Context, history []worker.HistoryRecord, cancel worker.CancelToken) (any, error) {
		items := make(chan string, 2)
		items <- "chunk-1"
		items <- "chunk-2"
		close(items)
		return worker.StreamResult{Items: items}, nil
	})

	ctx, cancel := withTimeout(t)
	defer cancel()

	stream, err := tm.StreamMessage(ctx, a2a.MessageSendParams{Message: *a2a.NewTextMessage("user", "stream please")})
	require.NoError(t, err)
	defer stream.Close()

	var events []a2a.TaskEvent
	deadline := time.After(time.Second)
loop:
	for {
		select {
		case event, ok := <-stream.Events():
			if !ok {
				break loop
			}
			events = append(events, event)
			if event.Final {
				break loop
			}
		case <-deadline:
			t.Fatal("timed out waiting for stream events")
		}
	}

	require.NotEmpty(t, events)
	assert.Equal(t, a2a.TaskStateCompleted, events[len(events)-1].Status.State)
}

func TestTaskManager_CancelTaskEndsRunInCanceledState(t *testing.T) {
	started := make(chan struct{})
	tm, _ := newFixture(func(ctx context.Context, history []worker.HistoryRecord, cancel worker.CancelToken) (any, error) {
		close(started)
		<-cancel.Done()
		return "ignored", nil
	})

	store := tm.Storage
	task, err := store.SubmitTask(context.Background(), "", *a2a.NewTextMessage("user", "long running"))
	require.NoError(t, err)

	require.NoError(t, tm.Scheduler.EnqueueRun(context.Background(), task.TaskID, tm.Worker.RunFunc(task, tm.Handler)))
	<-started

	ctx, cancel := withTimeout(t)
	defer cancel()

	result, err := tm.CancelTask(ctx, task.TaskID)
	require.NoError(t, err)
	assert.Equal(t, a2a.TaskStateCanceled, result.Status.State)
}

func TestTaskManager_InputRequiredFollowUpResumesTask(t *testing.T) {
	var calls atomic.Int32
	tm, _ := newFixture(func(ctx context.Context, history []worker.HistoryRecord, cancel worker.CancelToken) (any, error) {
		if calls.Add(1) == 1 {
			return worker.InputRequiredResult{Prompt: "which city?"}, nil
		}
		return "sunny", nil
	})

	ctx, cancel := withTimeout(t)
	defer cancel()

	task, err := tm.SendMessage(ctx, a2a.MessageSendParams{Message: *a2a.NewTextMessage("user", "weather please")})
	require.NoError(t, err)
	require.Equal(t, a2a.TaskStateInputReq, task.Status.State)

	follow := a2a.NewTextMessage("user", "amsterdam")
	follow.TaskID = task.TaskID
	follow.ContextID = task.ContextID

	resumed, err := tm.SendMessage(ctx, a2a.MessageSendParams{Message: *follow})
	require.NoError(t, err)
	assert.Equal(t, task.TaskID, resumed.TaskID)
	assert.Equal(t, task.ContextID, resumed.ContextID)
	assert.Equal(t, a2a.TaskStateCompleted, resumed.Status.State)
}

func TestTaskManager_FollowUpToTerminalTaskOpensNewTask(t *testing.T) {
	tm, _ := newFixture(func(ctx context.Context, history []worker.HistoryRecord, cancel worker.CancelToken) (any, error) {
		return "pong", nil
	})

	ctx, cancel := withTimeout(t)
	defer cancel()

	task, err := tm.SendMessage(ctx, a2a.MessageSendParams{Message: *a2a.NewTextMessage("user", "ping")})
	require.NoError(t, err)
	require.True(t, task.Status.State.Terminal())

	follow := a2a.NewTextMessage("user", "ping again")
	follow.TaskID = task.TaskID
	follow.ContextID = task.ContextID

	next, err := tm.SendMessage(ctx, a2a.MessageSendParams{Message: *follow})
	require.NoError(t, err)
	assert.NotEqual(t, task.TaskID, next.TaskID)
	assert.Equal(t, task.ContextID, next.ContextID)
}

func TestTaskManager_CancelIdleTaskFinalizesDirectly(t *testing.T) {
	tm, store := newFixture(func(ctx context.Context, history []worker.HistoryRecord, cancel worker.CancelToken) (any, error) {
		return "pong", nil
	})

	task, err := store.SubmitTask(context.Background(), "", *a2a.NewTextMessage("user", "never runs"))
	require.NoError(t, err)

	ctx, cancel := withTimeout(t)
	defer cancel()

	result, err := tm.CancelTask(ctx, task.TaskID)
	require.NoError(t, err)
	assert.Equal(t, a2a.TaskStateCanceled, result.Status.State)
}

func TestTaskManager_SendMessageHandlerErrorFails(t *testing.T) {
	tm, _ := newFixture(func(ctx context.Context, history []worker.HistoryRecord, cancel worker.CancelToken) (any, error) {
		return nil, errors.New("boom")
	})

	ctx, cancel := withTimeout(t)
	defer cancel()

	task, err := tm.SendMessage(ctx, a2a.MessageSendParams{Message: *a2a.NewTextMessage("user", "ping")})
	require.NoError(t, err)
	assert.Equal(t, a2a.TaskStateFailed, task.Status.State)
}

func TestTaskManager_PushNotificationCRUD(t *testing.T) {
	tm, _ := newFixture(func(ctx context.Context, history []worker.HistoryRecord, cancel worker.CancelToken) (any, error) {
		return "pong", nil
	})

	ctx, cancel := withTimeout(t)
	defer cancel()

	task, err := tm.SendMessage(ctx, a2a.MessageSendParams{Message: *a2a.NewTextMessage("user", "ping")})
	require.NoError(t, err)

	cfg := a2a.TaskPushNotificationConfig{
		TaskID: task.TaskID,
		PushNotificationConfig: a2a.PushNotificationConfig{
			URL: "https://example.com/webhook",
		},
	}

	set, err := tm.SetTaskPushNotification(ctx, cfg)
	require.NoError(t, err)
	require.NotEmpty(t, set.PushNotificationConfig.ID)

	got, err := tm.GetTaskPushNotification(ctx, task.TaskID)
	require.NoError(t, err)
	assert.Equal(t, set.PushNotificationConfig.ID, got.PushNotificationConfig.ID)

	list, err := tm.ListTaskPushNotifications(ctx, task.TaskID)
	require.NoError(t, err)
	assert.Len(t, list, 1)

	require.NoError(t, tm.DeleteTaskPushNotification(ctx, task.TaskID, set.PushNotificationConfig.ID))
	_, err = tm.GetTaskPushNotification(ctx, task.TaskID)
	require.Error(t, err)
}

func TestTaskManager_PushNotificationRejectedWhenCapabilityDisabled(t *testing.T) {
	store := storage.NewMemoryStorage()
	sched := scheduler.NewMemoryScheduler()
	tm := New(store, sched, func(ctx context.Context, history []worker.HistoryRecord, cancel worker.CancelToken) (any, error) {
		return "pong", nil
	})

	ctx, cancel := withTimeout(t)
	defer cancel()

	task, err := tm.SendMessage(ctx, a2a.MessageSendParams{Message: *a2a.NewTextMessage("user", "ping")})
	require.NoError(t, err)

	_, err = tm.SetTaskPushNotification(ctx, a2a.TaskPushNotificationConfig{
		TaskID:                 task.TaskID,
		PushNotificationConfig: a2a.PushNotificationConfig{URL: "https://example.com/webhook"},
	})
	require.Error(t, err)
	var a2aErr *a2a.Error
	require.ErrorAs(t, err, &a2aErr)
	assert.Equal(t, a2a.KindFailedPrecondition, a2aErr.Kind)
}

func TestTaskManager_ClearContextRemovesTasksAndPushConfigs(t *testing.T) {
	tm, _ := newFixture(func(ctx context.Context, history []worker.HistoryRecord, cancel worker.CancelToken) (any, error) {
		return "pong", nil
	})

	ctx, cancel := withTimeout(t)
	defer cancel()

	msg := a2a.NewTextMessage("user", "ping")
	msg.ContextID = "ctx-1"
	task, err := tm.SendMessage(ctx, a2a.MessageSendParams{Message: *msg})
	require.NoError(t, err)

	require.NoError(t, tm.ClearContext(ctx, task.ContextID))

	_, err = tm.GetTask(ctx, task.TaskID, 0)
	require.Error(t, err)
}

type stubOffloader struct{ calls int }

func (s *stubOffloader) Offload(ctx context.Context, part *a2a.Part) error {
	s.calls++
	if part.Type == a2a.PartTypeFile && part.File != nil && part.File.Bytes != "" {
		part.File.Bytes = ""
		part.File.URI = "s3://bucket/object"
	}
	return nil
}

func TestTaskManager_OffloaderRewritesInboundFileParts(t *testing.T) {
	tm, store := newFixture(func(ctx context.Context, history []worker.HistoryRecord, cancel worker.CancelToken) (any, error) {
		return "stored", nil
	})
	offloader := &stubOffloader{}
	tm.WithOffloader(offloader)

	ctx, cancel := withTimeout(t)
	defer cancel()

	msg := a2a.Message{
		MessageID: a2a.NewID(),
		Role:      "user",
		Kind:      "message",
		Parts:     []a2a.Part{a2a.NewFilePartFromBytes("report.bin", "application/octet-stream", []byte("payload"))},
	}
	task, err := tm.SendMessage(ctx, a2a.MessageSendParams{Message: msg})
	require.NoError(t, err)
	require.Positive(t, offloader.calls)

	loaded, err := store.LoadTask(ctx, task.TaskID)
	require.NoError(t, err)
	require.NotEmpty(t, loaded.History)
	part := loaded.History[0].Parts[0]
	require.NotNil(t, part.File)
	assert.Empty(t, part.File.Bytes)
	assert.Equal(t, "s3://bucket/object", part.File.URI)
}

func TestTaskManager_TaskFeedbackPersistsMetadata(t *testing.T) {
	tm, store := newFixture(func(ctx context.Context, history []worker.HistoryRecord, cancel worker.CancelToken) (any, error) {
		return "pong", nil
	})

	ctx, cancel := withTimeout(t)
	defer cancel()

	task, err := tm.SendMessage(ctx, a2a.MessageSendParams{Message: *a2a.NewTextMessage("user", "ping")})
	require.NoError(t, err)

	rating := 5
	err = tm.TaskFeedback(ctx, a2a.TaskFeedbackParams{
		TaskID:   task.TaskID,
		Feedback: "helpful",
		Rating:   &rating,
		Metadata: map[string]any{"source": "cli"},
	})
	require.NoError(t, err)

	loaded, err := store.LoadTask(ctx, task.TaskID)
	require.NoError(t, err)
	assert.Equal(t, "helpful", loaded.Metadata["feedback"])
	assert.EqualValues(t, 5, loaded.Metadata["feedback_rating"])
	assert.Equal(t, "cli", loaded.Metadata["source"])
}
