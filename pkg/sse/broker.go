// Package sse writes the server-sent-event wire format used by
// message/stream (spec §4.5, §6): each event is one `data: <json>\n\n`
// frame, newline-terminated, closing the connection once a final=true
// event has been written.
package sse

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"github.com/theapemachine/a2a-go/pkg/a2a"
	"github.com/theapemachine/a2a-go/pkg/metrics"
	"github.com/theapemachine/a2a-go/pkg/scheduler"
)

// HeartbeatInterval is how often a comment line is sent to keep
// intermediary proxies from timing out an idle connection.
var HeartbeatInterval = 25 * time.Second

// Broker writes events from a scheduler.Stream to an http.ResponseWriter as
// SSE frames, stopping on client disconnect or the stream's final event.
type Broker struct {
	Metrics *metrics.StreamingMetrics
}

// NewBroker constructs a Broker with its own metrics instance.
func NewBroker() *Broker {
	return &Broker{Metrics: metrics.NewStreamingMetrics()}
}

// Serve upgrades w/r to an SSE response and relays stream until it closes,
// the request context is canceled, or a final=true event is written.
func (b *Broker) Serve(w http.ResponseWriter, r *http.Request, stream scheduler.Stream) error {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return nil
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	start := time.Now()
	ticker := time.NewTicker(HeartbeatInterval)
	defer ticker.Stop()
	defer stream.Close()

	for {
		select {
		case <-r.Context().Done():
			b.Metrics.RecordConnection(true, time.Since(start))
			return nil
		case event, ok := <-stream.Events():
			if !ok {
				b.Metrics.RecordConnection(true, time.Since(start))
				return nil
			}
			if err := b.write(w, flusher, event); err != nil {
				log.Warn("sse: write failed", "error", err)
				b.Metrics.RecordConnection(false, time.Since(start))
				return err
			}
			if event.Final {
				b.Metrics.RecordConnection(true, time.Since(start))
				return nil
			}
		case <-ticker.C:
			if _, err := w.Write([]byte(": heartbeat\n\n")); err != nil {
				return err
			}
			flusher.Flush()
		}
	}
}

func (b *Broker) write(w http.ResponseWriter, flusher http.Flusher, event a2a.TaskEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}

	eventStart := time.Now()
	if _, err := w.Write([]byte("data: ")); err != nil {
		return err
	}
	if _, err := w.Write(payload); err != nil {
		return err
	}
	if _, err := w.Write([]byte("\n\n")); err != nil {
		return err
	}
	flusher.Flush()
	b.Metrics.RecordEvent(false, 0, time.Since(eventStart))
	return nil
}
