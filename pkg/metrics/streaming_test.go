package metrics

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"
)

func TestNewStreamingMetrics(t *testing.T) {
	Convey("When creating a new metrics instance", t, func() {
		m := NewStreamingMetrics()
		Convey("Then it should not be nil", func() {
			So(m, ShouldNotBeNil)
		})
	})
}

func TestRecordConnection(t *testing.T) {
	Convey("Given a metrics instance", t, func() {
		m := NewStreamingMetrics()
		m.RecordConnection(true, time.Second)
		m.RecordConnection(false, time.Millisecond)

		Convey("Then the exposition text carries both counters", func() {
			body := scrape(m)
			So(body, ShouldContainSubstring, "a2a_stream_connections_total 2")
			So(body, ShouldContainSubstring, "a2a_stream_connections_failed_total 1")
		})
	})
}

func TestRecordReconnection(t *testing.T) {
	Convey("Given a metrics instance", t, func() {
		m := NewStreamingMetrics()
		m.RecordReconnection()

		Convey("Then the reconnection counter increments", func() {
			So(scrape(m), ShouldContainSubstring, "a2a_stream_reconnections_total 1")
		})
	})
}

func TestRecordEvent(t *testing.T) {
	Convey("Given a metrics instance", t, func() {
		m := NewStreamingMetrics()
		m.RecordEvent(false, time.Second, time.Second)
		m.RecordEvent(true, time.Second, time.Second)

		Convey("Then event and dropped-event counters both advance", func() {
			body := scrape(m)
			So(body, ShouldContainSubstring, "a2a_task_events_total 2")
			So(body, ShouldContainSubstring, "a2a_task_events_dropped_total 1")
		})
	})
}

func scrape(m *StreamingMetrics) string {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/metrics", nil)
	m.Handler().ServeHTTP(rec, req)
	return strings.TrimSpace(rec.Body.String())
}
