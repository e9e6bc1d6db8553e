package push

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/theapemachine/a2a-go/pkg/a2a"
	"github.com/theapemachine/a2a-go/pkg/storage"
)

func TestDispatcher_DeliversToRegisteredWebhook(t *testing.T) {
	var got atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got.Add(1)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))

		var body struct {
			TaskID string        `json:"task_id"`
			Event  a2a.TaskEvent `json:"event"`
		}
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.NotEmpty(t, body.TaskID)
		if assert.NotNil(t, body.Event.Status) {
			assert.Equal(t, a2a.TaskStateCompleted, body.Event.Status.State)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	store := storage.NewMemoryStorage()
	task, err := store.SubmitTask(context.Background(), "", *a2a.NewTextMessage("user", "hi"))
	require.NoError(t, err)
	require.NoError(t, store.SetPushConfig(context.Background(), a2a.TaskPushNotificationConfig{
		TaskID: task.TaskID,
		PushNotificationConfig: a2a.PushNotificationConfig{
			ID: "cfg-1", URL: srv.URL, Token: "secret",
		},
	}))

	d := NewDispatcher(store)
	d.Dispatch(context.Background(), a2a.NewStatusEvent(task.TaskID, task.ContextID, a2a.TaskStateCompleted, nil, true))

	require.Eventually(t, func() bool { return got.Load() == 1 }, time.Second, 10*time.Millisecond)
}

func TestDispatcher_SurvivesCallerContextCancellation(t *testing.T) {
	var attempts atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if attempts.Add(1) < 2 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	store := storage.NewMemoryStorage()
	task, err := store.SubmitTask(context.Background(), "", *a2a.NewTextMessage("user", "hi"))
	require.NoError(t, err)
	require.NoError(t, store.SetPushConfig(context.Background(), a2a.TaskPushNotificationConfig{
		TaskID:                 task.TaskID,
		PushNotificationConfig: a2a.PushNotificationConfig{ID: "cfg-1", URL: srv.URL},
	}))

	d := NewDispatcher(store)

	// Simulates the inbound HTTP request context: canceled the instant the
	// handler that called Dispatch returns, well before the retry's backoff
	// window elapses.
	requestCtx, cancel := context.WithCancel(context.Background())
	d.Dispatch(requestCtx, a2a.NewStatusEvent(task.TaskID, task.ContextID, a2a.TaskStateCompleted, nil, true))
	cancel()

	require.Eventually(t, func() bool { return attempts.Load() == 2 }, 5*time.Second, 50*time.Millisecond)
}

func TestDispatcher_DoesNotRetry4xx(t *testing.T) {
	var attempts atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	store := storage.NewMemoryStorage()
	task, err := store.SubmitTask(context.Background(), "", *a2a.NewTextMessage("user", "hi"))
	require.NoError(t, err)
	require.NoError(t, store.SetPushConfig(context.Background(), a2a.TaskPushNotificationConfig{
		TaskID:                 task.TaskID,
		PushNotificationConfig: a2a.PushNotificationConfig{ID: "cfg-1", URL: srv.URL},
	}))

	d := NewDispatcher(store)
	d.deliverWithRetry(context.Background(), a2a.PushNotificationConfig{ID: "cfg-1", URL: srv.URL},
		a2a.NewStatusEvent(task.TaskID, task.ContextID, a2a.TaskStateFailed, nil, true))

	time.Sleep(50 * time.Millisecond)
	assert.EqualValues(t, 1, attempts.Load())
}

func TestDispatcher_RetriesOn5xxThenSucceeds(t *testing.T) {
	var attempts atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if attempts.Add(1) < 2 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	store := storage.NewMemoryStorage()
	d := NewDispatcher(store)

	d.deliverWithRetry(context.Background(), a2a.PushNotificationConfig{ID: "cfg-1", URL: srv.URL},
		a2a.NewStatusEvent("t1", "c1", a2a.TaskStateCompleted, nil, true))

	require.Eventually(t, func() bool { return attempts.Load() == 2 }, 5*time.Second, 50*time.Millisecond)
}
