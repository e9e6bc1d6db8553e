// Package push implements the webhook dispatcher of spec §4.7: for every
// TaskEvent, POST a JSON body to each push config registered against the
// task, retrying 5xx/network failures with bounded exponential backoff and
// recording (never retrying) 4xx responses as failed deliveries.
package push

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"github.com/theapemachine/a2a-go/pkg/a2a"
	"github.com/theapemachine/a2a-go/pkg/storage"
)

// maxAttempts bounds the retry loop per spec §4.7 ("up to a fixed maximum
// (e.g., 5 attempts)").
const maxAttempts = 5

// baseBackoff is the first retry delay; it doubles on each subsequent
// attempt (1s, 2s, 4s, 8s between the five attempts).
const baseBackoff = time.Second

// Dispatcher delivers TaskEvents to the webhooks registered against a task.
type Dispatcher struct {
	Storage storage.Storage
	HTTP    *http.Client
}

// NewDispatcher wires a Dispatcher over store with a 10s-timeout client.
func NewDispatcher(store storage.Storage) *Dispatcher {
	return &Dispatcher{Storage: store, HTTP: &http.Client{Timeout: 10 * time.Second}}
}

// Dispatch looks up every push config for event.TaskID and delivers event
// to each, independently and in the background: the caller never waits on
// delivery, and retries are not bounded by ctx's cancellation or deadline.
func (d *Dispatcher) Dispatch(ctx context.Context, event a2a.TaskEvent) {
	configs, err := d.Storage.ListPushConfigs(ctx, event.TaskID)
	if err != nil || len(configs) == 0 {
		return
	}

	// Retries run past the lifetime of the request that triggered them, so
	// they must not inherit its cancellation.
	detached := context.WithoutCancel(ctx)
	for _, cfg := range configs {
		go d.deliverWithRetry(detached, cfg.PushNotificationConfig, event)
	}
}

func (d *Dispatcher) deliverWithRetry(ctx context.Context, cfg a2a.PushNotificationConfig, event a2a.TaskEvent) {
	backoff := baseBackoff

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		status, err := d.deliver(ctx, cfg, event)
		if err == nil && status >= 200 && status < 300 {
			return
		}

		if status >= 400 && status < 500 {
			log.Warn("push: delivery rejected, not retrying", "url", cfg.URL, "status", status)
			return
		}

		if attempt == maxAttempts {
			log.Error("push: delivery failed after max attempts", "url", cfg.URL, "attempts", attempt, "error", err)
			return
		}

		log.Warn("push: delivery failed, retrying", "url", cfg.URL, "attempt", attempt, "error", err)

		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return
		}
		backoff *= 2
	}
}

// webhookBody is the POST payload: the task id alongside the serialized
// event, so receivers can route without unwrapping the event itself.
type webhookBody struct {
	TaskID string        `json:"task_id"`
	Event  a2a.TaskEvent `json:"event"`
}

// deliver issues one POST attempt and returns the response status code (or
// 0 on a transport-level error).
func (d *Dispatcher) deliver(ctx context.Context, cfg a2a.PushNotificationConfig, event a2a.TaskEvent) (int, error) {
	body, err := json.Marshal(webhookBody{TaskID: event.TaskID, Event: event})
	if err != nil {
		return 0, fmt.Errorf("marshal event: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, cfg.URL, bytes.NewReader(body))
	if err != nil {
		return 0, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if cfg.Token != "" {
		req.Header.Set("Authorization", "Bearer "+cfg.Token)
	}

	resp, err := d.HTTP.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	return resp.StatusCode, nil
}
