package sse

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/theapemachine/a2a-go/pkg/a2a"
)

func streamServer(t *testing.T, frames []string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		w.WriteHeader(http.StatusOK)
		for _, frame := range frames {
			_, _ = w.Write([]byte("data: " + frame + "\n\n"))
			w.(http.Flusher).Flush()
		}
	}))
}

func TestClientStream(t *testing.T) {
	Convey("Given a server streaming events for a task", t, func() {
		server := streamServer(t, []string{
			`{"kind":"status-update","taskId":"t1","contextId":"c1","status":{"state":"working"},"final":false}`,
			`{"kind":"artifact-update","taskId":"t1","contextId":"c1","artifact":{"artifact":{"artifactId":"a1","parts":[]},"append":false,"lastChunk":true}}`,
			`{"kind":"status-update","taskId":"t1","contextId":"c1","status":{"state":"completed"},"final":true}`,
		})
		defer server.Close()

		client := NewClient(server.URL, "")

		Convey("When streaming a message", func() {
			var events []a2a.TaskEvent
			err := client.Stream(context.Background(), a2a.MessageSendParams{
				Message: *a2a.NewTextMessage("user", "hi"),
			}, func(event a2a.TaskEvent) {
				events = append(events, event)
			})

			Convey("Then every event arrives in order and the last is final", func() {
				So(err, ShouldBeNil)
				So(len(events), ShouldEqual, 3)
				So(events[0].Status.State, ShouldEqual, a2a.TaskStateWorking)
				So(events[len(events)-1].Final, ShouldBeTrue)
			})
		})
	})

	Convey("Given a server that closes before the final event", t, func() {
		server := streamServer(t, []string{
			`{"kind":"status-update","taskId":"t1","contextId":"c1","status":{"state":"working"},"final":false}`,
		})
		defer server.Close()

		client := NewClient(server.URL, "")

		Convey("When streaming a message", func() {
			err := client.Stream(context.Background(), a2a.MessageSendParams{
				Message: *a2a.NewTextMessage("user", "hi"),
			}, func(a2a.TaskEvent) {})

			Convey("Then the truncation surfaces as an error", func() {
				So(err, ShouldNotBeNil)
				So(err.Error(), ShouldContainSubstring, "before final event")
			})
		})
	})
}

func TestClientConnectRetries(t *testing.T) {
	Convey("Given a server that rejects the first connection attempt", t, func() {
		var attempts atomic.Int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if attempts.Add(1) == 1 {
				w.WriteHeader(http.StatusServiceUnavailable)
				return
			}
			w.Header().Set("Content-Type", "text/event-stream")
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte(`data: {"kind":"status-update","taskId":"t1","contextId":"c1","status":{"state":"completed"},"final":true}` + "\n\n"))
		}))
		defer server.Close()

		client := NewClient(server.URL, "")

		Convey("When streaming a message", func() {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()

			var final atomic.Bool
			err := client.Stream(ctx, a2a.MessageSendParams{
				Message: *a2a.NewTextMessage("user", "hi"),
			}, func(event a2a.TaskEvent) {
				final.Store(event.Final)
			})

			Convey("Then the second attempt succeeds", func() {
				So(err, ShouldBeNil)
				So(attempts.Load(), ShouldEqual, 2)
				So(final.Load(), ShouldBeTrue)
			})
		})
	})
}
