package worker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/theapemachine/a2a-go/pkg/a2a"
	"github.com/theapemachine/a2a-go/pkg/scheduler"
	"github.com/theapemachine/a2a-go/pkg/storage"
)

func newFixture(t *testing.T) (*Worker, storage.Storage, scheduler.Scheduler, *a2a.Task) {
	t.Helper()
	store := storage.NewMemoryStorage()
	sched := scheduler.NewMemoryScheduler()

	task, err := store.SubmitTask(context.Background(), "", *a2a.NewTextMessage("user", "hi"))
	require.NoError(t, err)

	return &Worker{Storage: store, Scheduler: sched}, store, sched, task
}

func drain(t *testing.T, stream scheduler.Stream, timeout time.Duration) []a2a.TaskEvent {
	t.Helper()
	var events []a2a.TaskEvent
	deadline := time.After(timeout)
	for {
		select {
		case event, ok := <-stream.Events():
			if !ok {
				return events
			}
			events = append(events, event)
			if event.Final {
				return events
			}
		case <-deadline:
			t.Fatal("timed out draining stream")
		}
	}
}

func TestWorker_PlainReturnCompletesTask(t *testing.T) {
	w, store, sched, task := newFixture(t)
	stream, err := sched.Subscribe(context.Background(), task.TaskID)
	require.NoError(t, err)

	handler := func(ctx context.Context, history []HistoryRecord, cancel CancelToken) (any, error) {
		return "done", nil
	}
	sched.EnqueueRun(context.Background(), task.TaskID, w.RunFunc(task, handler))

	events := drain(t, stream, time.Second)
	require.NotEmpty(t, events)
	assert.Equal(t, a2a.TaskStateCompleted, events[len(events)-1].Status.State)

	persisted, err := store.LoadTask(context.Background(), task.TaskID)
	require.NoError(t, err)
	assert.Equal(t, a2a.TaskStateCompleted, persisted.Status.State)
	require.Len(t, persisted.Artifacts, 1)
}

func TestWorker_HandlerErrorFails(t *testing.T) {
	w, _, sched, task := newFixture(t)
	stream, err := sched.Subscribe(context.Background(), task.TaskID)
	require.NoError(t, err)

	handler := func(ctx context.Context, history []HistoryRecord, cancel CancelToken) (any, error) {
		return nil, errors.New("boom")
	}
	sched.EnqueueRun(context.Background(), task.TaskID, w.RunFunc(task, handler))

	events := drain(t, stream, time.Second)
	last := events[len(events)-1]
	assert.Equal(t, a2a.TaskStateFailed, last.Status.State)
	assert.Equal(t, "boom", last.Metadata["error"])
}

func TestWorker_InputRequiredHaltsWithoutTerminal(t *testing.T) {
	w, _, sched, task := newFixture(t)
	stream, err := sched.Subscribe(context.Background(), task.TaskID)
	require.NoError(t, err)

	handler := func(ctx context.Context, history []HistoryRecord, cancel CancelToken) (any, error) {
		return InputRequiredResult{Prompt: "more info please"}, nil
	}
	sched.EnqueueRun(context.Background(), task.TaskID, w.RunFunc(task, handler))

	events := drain(t, stream, time.Second)
	last := events[len(events)-1]
	assert.Equal(t, a2a.TaskStateInputReq, last.Status.State)
	assert.False(t, last.Status.State.Terminal())
}

func TestWorker_StreamResultChunksArtifact(t *testing.T) {
	w, _, sched, task := newFixture(t)
	stream, err := sched.Subscribe(context.Background(), task.TaskID)
	require.NoError(t, err)

	handler := func(ctx context.Context, history []HistoryRecord, cancel CancelToken) (any, error) {
		items := make(chan string, 3)
		items <- "a"
		items <- "b"
		items <- "c"
		close(items)
		return StreamResult{Items: items}, nil
	}
	sched.EnqueueRun(context.Background(), task.TaskID, w.RunFunc(task, handler))

	events := drain(t, stream, time.Second)

	var artifactEvents int
	for _, e := range events {
		if e.Kind == a2a.EventKindArtifactUpdate {
			artifactEvents++
		}
	}
	assert.Equal(t, 3, artifactEvents)
	assert.Equal(t, a2a.TaskStateCompleted, events[len(events)-1].Status.State)
}

func TestWorker_CancelEndsRunWithCanceledState(t *testing.T) {
	w, _, sched, task := newFixture(t)
	stream, err := sched.Subscribe(context.Background(), task.TaskID)
	require.NoError(t, err)

	started := make(chan struct{})
	handler := func(ctx context.Context, history []HistoryRecord, cancel CancelToken) (any, error) {
		close(started)
		<-cancel.Done()
		return "ignored", nil
	}
	sched.EnqueueRun(context.Background(), task.TaskID, w.RunFunc(task, handler))
	<-started
	sched.Cancel(context.Background(), task.TaskID)

	events := drain(t, stream, time.Second)
	assert.Equal(t, a2a.TaskStateCanceled, events[len(events)-1].Status.State)
}
