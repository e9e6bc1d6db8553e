// Package worker executes one user handler invocation per task and
// translates its outcome into the status-update / artifact-update events
// the scheduler publishes.
package worker

import (
	"context"
	"fmt"

	"github.com/charmbracelet/log"
	"github.com/theapemachine/a2a-go/pkg/a2a"
	"github.com/theapemachine/a2a-go/pkg/scheduler"
	"github.com/theapemachine/a2a-go/pkg/storage"
)

// HistoryRecord is the flattened {role, content} shape a handler receives;
// the core is the boundary at which Part lists collapse to plain text for
// the handler's consumption.
type HistoryRecord struct {
	Role    string
	Content string
}

// CancelToken is the cooperative-cancellation checker a handler may poll
// instead of relying on an exception/panic to stop mid-run.
type CancelToken struct {
	ch <-chan struct{}
}

// Canceled reports whether cancellation has been requested, without
// blocking.
func (c CancelToken) Canceled() bool {
	select {
	case <-c.ch:
		return true
	default:
		return false
	}
}

// Done returns the channel that closes when cancellation is requested, for
// handlers that want to select on it directly.
func (c CancelToken) Done() <-chan struct{} { return c.ch }

// StreamResult is a handler outcome that yields successive textual chunks
// of one artifact; the channel must close to signal completion.
type StreamResult struct {
	Items <-chan string
}

// InputRequiredResult is the sentinel a handler returns to halt a task at
// input-required rather than complete it.
type InputRequiredResult struct {
	Prompt string
}

// Handler is user-supplied task execution logic. Its return value's
// dynamic type selects the translation in Worker.execute:
//   - string or any other value (JSON-marshalable) → single completed artifact
//   - StreamResult → a sequence of artifact-update(append=true) chunks
//   - InputRequiredResult → status-update(input-required) without a terminal state
//
// A non-nil error is treated as a handler-error: it never propagates past
// the worker boundary, surfacing instead as status-update(failed).
type Handler func(ctx context.Context, history []HistoryRecord, cancel CancelToken) (any, error)

// Notifier delivers a published TaskEvent out of band (spec §4.7's push
// dispatcher). It is optional: a nil Worker.Push disables delivery.
type Notifier interface {
	Dispatch(ctx context.Context, event a2a.TaskEvent)
}

// Worker executes one Handler invocation per task, keeping Storage and the
// Scheduler's per-task topic in sync.
type Worker struct {
	Storage   storage.Storage
	Scheduler scheduler.Scheduler
	Push      Notifier
}

func flattenHistory(history []a2a.Message) []HistoryRecord {
	records := make([]HistoryRecord, 0, len(history))
	for _, msg := range history {
		records = append(records, HistoryRecord{Role: msg.Role, Content: msg.String()})
	}
	return records
}

// RunFunc adapts task/handler into the scheduler.RunFunc signature so the
// Task Manager can hand it straight to Scheduler.EnqueueRun.
func (w *Worker) RunFunc(task *a2a.Task, handler Handler) scheduler.RunFunc {
	return func(ctx context.Context, taskID string, cancelCh <-chan struct{}) {
		w.execute(ctx, task, handler, CancelToken{ch: cancelCh})
	}
}

func (w *Worker) emitStatus(ctx context.Context, task *a2a.Task, state a2a.TaskState, msg *a2a.Message, final bool) {
	w.emitStatusWithMetadata(ctx, task, state, msg, final, nil)
}

func (w *Worker) emitStatusWithMetadata(ctx context.Context, task *a2a.Task, state a2a.TaskState, msg *a2a.Message, final bool, metadata map[string]any) {
	if _, err := w.Storage.UpdateTaskStatus(ctx, task.TaskID, state, msg); err != nil {
		log.Error("worker: failed to persist status update", "task_id", task.TaskID, "state", state, "error", err)
	}
	event := a2a.NewStatusEvent(task.TaskID, task.ContextID, state, msg, final)
	event.Metadata = metadata
	if err := w.Scheduler.Publish(ctx, event); err != nil {
		log.Error("worker: failed to publish status update", "task_id", task.TaskID, "state", state, "error", err)
	}
	if w.Push != nil {
		w.Push.Dispatch(ctx, event)
	}
}

func (w *Worker) emitArtifact(ctx context.Context, task *a2a.Task, artifact a2a.Artifact, append, lastChunk bool) {
	if _, err := w.Storage.AppendArtifact(ctx, task.TaskID, storage.ArtifactDelta{
		Append: append, LastChunk: lastChunk, Artifact: artifact,
	}); err != nil {
		log.Error("worker: failed to persist artifact", "task_id", task.TaskID, "artifact_id", artifact.ArtifactID, "error", err)
	}
	event := a2a.NewArtifactEvent(task.TaskID, task.ContextID, artifact, append, lastChunk)
	if err := w.Scheduler.Publish(ctx, event); err != nil {
		log.Error("worker: failed to publish artifact update", "task_id", task.TaskID, "artifact_id", artifact.ArtifactID, "error", err)
	}
	if w.Push != nil {
		w.Push.Dispatch(ctx, event)
	}
}

// execute is the heart of C3: emit working, invoke the handler guarded
// against panics, and translate its outcome (or the cooperative-cancel
// signal) into the ordered sequence of status/artifact events.
func (w *Worker) execute(ctx context.Context, task *a2a.Task, handler Handler, cancel CancelToken) {
	log.Info("worker: run starting", "task_id", task.TaskID)
	w.emitStatus(ctx, task, a2a.TaskStateWorking, nil, false)

	result, err := w.invoke(ctx, task, handler, cancel)

	if cancel.Canceled() {
		log.Info("worker: run canceled", "task_id", task.TaskID)
		w.emitStatus(ctx, task, a2a.TaskStateCanceled, nil, true)
		return
	}

	if err != nil {
		log.Error("worker: handler returned an error", "task_id", task.TaskID, "error", err)
		w.emitStatusWithMetadata(ctx, task, a2a.TaskStateFailed, nil, true, map[string]any{"error": err.Error()})
		return
	}

	switch outcome := result.(type) {
	case InputRequiredResult:
		msg := a2a.NewTextMessage("agent", outcome.Prompt)
		w.emitStatus(ctx, task, a2a.TaskStateInputReq, msg, true)

	case StreamResult:
		artifactID := a2a.NewID()
		var last string
		any := false
		for chunk := range outcome.Items {
			if any {
				w.emitArtifact(ctx, task, a2a.Artifact{ArtifactID: artifactID, Parts: []a2a.Part{a2a.NewTextPart(last)}}, true, false)
			}
			last = chunk
			any = true
			if cancel.Canceled() {
				w.emitStatus(ctx, task, a2a.TaskStateCanceled, nil, true)
				return
			}
		}
		if any {
			w.emitArtifact(ctx, task, a2a.Artifact{ArtifactID: artifactID, Parts: []a2a.Part{a2a.NewTextPart(last)}}, true, true)
		} else {
			w.emitArtifact(ctx, task, a2a.NewArtifact("result"), false, true)
		}
		w.emitStatus(ctx, task, a2a.TaskStateCompleted, nil, true)

	default:
		text := stringify(result)
		artifact := a2a.NewArtifact("result", a2a.NewTextPart(text))
		w.emitArtifact(ctx, task, artifact, false, true)
		w.emitStatus(ctx, task, a2a.TaskStateCompleted, nil, true)
	}

	log.Info("worker: run finished", "task_id", task.TaskID)
}

// invoke calls handler, recovering from panics and folding them into the
// same handler-error path as a returned error (spec §4.3: "handler errors
// never crash the process").
func (w *Worker) invoke(ctx context.Context, task *a2a.Task, handler Handler, cancel CancelToken) (result any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panicked: %v", r)
		}
	}()
	return handler(ctx, flattenHistory(task.History), cancel)
}

func stringify(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprintf("%v", v)
}
