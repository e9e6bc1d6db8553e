// Package taskmanager is the thin coordinating layer (C4) the RPC surface
// calls into: it validates requests, persists via Storage, dispatches runs
// via the Scheduler, and bridges external observers to the per-task event
// stream.
package taskmanager

import (
	"context"
	"sync/atomic"

	"github.com/charmbracelet/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/theapemachine/a2a-go/pkg/a2a"
	"github.com/theapemachine/a2a-go/pkg/scheduler"
	"github.com/theapemachine/a2a-go/pkg/storage"
	"github.com/theapemachine/a2a-go/pkg/worker"
)

var tracer = otel.Tracer("github.com/theapemachine/a2a-go/pkg/taskmanager")

// TaskManager implements every operation in the Task Manager contract,
// generalizing the teacher's EchoTaskManager from a single ad-hoc store
// into Storage/Scheduler/Worker collaborators.
type TaskManager struct {
	Storage   storage.Storage
	Scheduler scheduler.Scheduler
	Worker    *worker.Worker
	Handler   worker.Handler

	// Offloader, when set, rewrites oversized inline file parts to
	// object-store references before a message is persisted.
	Offloader PartOffloader

	// PushNotificationsEnabled mirrors the agent card's
	// capabilities.pushNotifications flag. Push-notification operations
	// are rejected with failed-precondition when the agent never
	// advertised the capability.
	PushNotificationsEnabled bool

	running atomic.Bool
}

// New wires a TaskManager over the given collaborators and the single
// user-supplied handler this process runs tasks against.
func New(store storage.Storage, sched scheduler.Scheduler, handler worker.Handler) *TaskManager {
	tm := &TaskManager{
		Storage:   store,
		Scheduler: sched,
		Worker:    &worker.Worker{Storage: store, Scheduler: sched},
		Handler:   handler,
	}
	tm.running.Store(true)
	return tm
}

// PartOffloader moves a part's oversized inline payload out of band,
// rewriting the part in place. Satisfied by *storage.FileOffloader.
type PartOffloader interface {
	Offload(ctx context.Context, part *a2a.Part) error
}

// WithPush attaches the push-notification dispatcher so every published
// TaskEvent also fans out to registered webhooks (spec §4.7).
func (tm *TaskManager) WithPush(notifier worker.Notifier) *TaskManager {
	tm.Worker.Push = notifier
	return tm
}

// WithOffloader attaches the object-storage off-loader applied to inbound
// message parts.
func (tm *TaskManager) WithOffloader(offloader PartOffloader) *TaskManager {
	tm.Offloader = offloader
	return tm
}

// offloadParts runs every part of an inbound message through the
// configured off-loader, if any.
func (tm *TaskManager) offloadParts(ctx context.Context, msg *a2a.Message) error {
	if tm.Offloader == nil {
		return nil
	}
	for i := range msg.Parts {
		if err := tm.Offloader.Offload(ctx, &msg.Parts[i]); err != nil {
			return err
		}
	}
	return nil
}

// IsRunning is the liveness indicator for health checks.
func (tm *TaskManager) IsRunning() bool { return tm.running.Load() }

// Shutdown stops accepting new runs and drains in-flight ones via the
// scheduler, up to ctx's deadline.
func (tm *TaskManager) Shutdown(ctx context.Context) {
	tm.running.Store(false)
	tm.Scheduler.Shutdown(ctx)
}

func (tm *TaskManager) validateSend(params a2a.MessageSendParams) error {
	if err := params.Message.Validate(); err != nil {
		return err
	}
	return nil
}

// enqueueIfNeeded starts a run for task unless one is already in-flight;
// the scheduler's EnqueueRun is itself idempotent, but we only ever want to
// kick off a run when the task is not already halted in a terminal state.
func (tm *TaskManager) enqueueIfNeeded(ctx context.Context, task *a2a.Task) error {
	if task.Status.State.Terminal() {
		return nil
	}
	return tm.Scheduler.EnqueueRun(ctx, task.TaskID, tm.Worker.RunFunc(task, tm.Handler))
}

// waitForHalt subscribes to task's topic and blocks until the first
// final=true event, returning the task's latest snapshot from Storage.
func (tm *TaskManager) waitForHalt(ctx context.Context, taskID string) (*a2a.Task, error) {
	stream, err := tm.Scheduler.Subscribe(ctx, taskID)
	if err != nil {
		return nil, a2a.ErrInternal("subscribe to task %s: %s", taskID, err)
	}
	defer stream.Close()

	for {
		select {
		case event, ok := <-stream.Events():
			if !ok || event.Final {
				return tm.Storage.LoadTask(ctx, taskID)
			}
		case <-ctx.Done():
			return nil, a2a.ErrInternal("context canceled while waiting for task %s to halt", taskID)
		}
	}
}

// prepareSend applies the follow-up rules shared by SendMessage and
// StreamMessage: a message referencing a terminal task opens a fresh task
// under the same context (after the identifier check), and a follow-up on a
// task that is neither submitted nor input-required is rejected.
func (tm *TaskManager) prepareSend(ctx context.Context, message a2a.Message) (a2a.Message, error) {
	if message.TaskID == "" {
		return message, nil
	}

	existing, err := tm.Storage.LoadTask(ctx, message.TaskID)
	if err != nil {
		return message, nil
	}

	if existing.Status.State.Terminal() {
		if message.ContextID != "" && message.ContextID != existing.ContextID {
			return message, a2a.ErrIdentifierMismatch(
				"message contextId %q does not match task %s's contextId %q",
				message.ContextID, existing.TaskID, existing.ContextID,
			)
		}
		message.TaskID = ""
		message.ContextID = existing.ContextID
		return message, nil
	}

	if existing.Status.State != a2a.TaskStateInputReq && existing.Status.State != a2a.TaskStateSubmitted {
		return message, a2a.ErrFailedPrecondition("task %s is not in input-required state", message.TaskID)
	}
	return message, nil
}

// SendMessage validates, persists, enqueues a run if the task is new or
// non-terminal, then blocks until the task halts (input-required or
// terminal), returning its snapshot.
func (tm *TaskManager) SendMessage(ctx context.Context, params a2a.MessageSendParams) (*a2a.Task, error) {
	ctx, span := tracer.Start(ctx, "taskmanager.SendMessage")
	defer span.End()

	if err := tm.validateSend(params); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	message, err := tm.prepareSend(ctx, params.Message)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	if err := tm.offloadParts(ctx, &message); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	task, err := tm.Storage.SubmitTask(ctx, message.ContextID, message)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(attribute.String("task_id", task.TaskID), attribute.String("context_id", task.ContextID))

	if err := tm.enqueueIfNeeded(ctx, task); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	halted, err := tm.waitForHalt(ctx, task.TaskID)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	return halted, nil
}

// StreamMessage is SendMessage's streaming counterpart: it returns a live
// Stream<TaskEvent> instead of blocking until halt.
func (tm *TaskManager) StreamMessage(ctx context.Context, params a2a.MessageSendParams) (scheduler.Stream, error) {
	ctx, span := tracer.Start(ctx, "taskmanager.StreamMessage")
	defer span.End()

	if err := tm.validateSend(params); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	message, err := tm.prepareSend(ctx, params.Message)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	if err := tm.offloadParts(ctx, &message); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	task, err := tm.Storage.SubmitTask(ctx, message.ContextID, message)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(attribute.String("task_id", task.TaskID), attribute.String("context_id", task.ContextID))

	// Enqueue before subscribing: a follow-up run resets the task's topic,
	// and the replayable subscribe contract guarantees no events are missed
	// in between.
	if err := tm.enqueueIfNeeded(ctx, task); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	stream, err := tm.Scheduler.Subscribe(ctx, task.TaskID)
	if err != nil {
		return nil, a2a.ErrInternal("subscribe to task %s: %s", task.TaskID, err)
	}

	return stream, nil
}

func (tm *TaskManager) GetTask(ctx context.Context, taskID string, historyLength int) (*a2a.Task, error) {
	_, span := tracer.Start(ctx, "taskmanager.GetTask", trace.WithAttributes(attribute.String("task_id", taskID)))
	defer span.End()

	task, err := tm.Storage.LoadTask(ctx, taskID)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	if historyLength > 0 && historyLength < len(task.History) {
		projected := *task
		projected.History = task.History[len(task.History)-historyLength:]
		return &projected, nil
	}
	return task, nil
}

func (tm *TaskManager) ListTasks(ctx context.Context, limit int) ([]*a2a.Task, error) {
	_, span := tracer.Start(ctx, "taskmanager.ListTasks")
	defer span.End()
	return tm.Storage.ListTasks(ctx, limit)
}

// CancelTask signals cooperative cancellation for non-terminal tasks and
// returns the resulting snapshot once the worker observes it.
func (tm *TaskManager) CancelTask(ctx context.Context, taskID string) (*a2a.Task, error) {
	ctx, span := tracer.Start(ctx, "taskmanager.CancelTask", trace.WithAttributes(attribute.String("task_id", taskID)))
	defer span.End()

	task, err := tm.Storage.LoadTask(ctx, taskID)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	if task.Status.State.Terminal() {
		return task, nil
	}

	if !tm.Scheduler.Cancel(ctx, taskID) {
		// No run in-flight (submitted or halted at input-required):
		// finalize directly rather than waiting on a worker that will
		// never observe the signal.
		task, err = tm.Storage.UpdateTaskStatus(ctx, taskID, a2a.TaskStateCanceled, nil)
		if err != nil {
			span.SetStatus(codes.Error, err.Error())
			return nil, err
		}
		if perr := tm.Scheduler.Publish(ctx, a2a.NewStatusEvent(task.TaskID, task.ContextID, a2a.TaskStateCanceled, nil, true)); perr != nil {
			log.Error("taskmanager: failed to publish cancel event", "task_id", taskID, "error", perr)
		}
		return task, nil
	}

	return tm.waitForHalt(ctx, taskID)
}

func (tm *TaskManager) ListContexts(ctx context.Context, limit int) ([]a2a.ContextSummary, error) {
	_, span := tracer.Start(ctx, "taskmanager.ListContexts")
	defer span.End()
	return tm.Storage.ListContexts(ctx, limit)
}

func (tm *TaskManager) ClearContext(ctx context.Context, contextID string) error {
	_, span := tracer.Start(ctx, "taskmanager.ClearContext", trace.WithAttributes(attribute.String("context_id", contextID)))
	defer span.End()

	if err := tm.Storage.ClearContext(ctx, contextID); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	return nil
}

// TaskFeedback attaches feedback to a task's metadata. Terminal tasks are
// accepted (spec open question, resolved explicitly in SPEC_FULL.md).
func (tm *TaskManager) TaskFeedback(ctx context.Context, params a2a.TaskFeedbackParams) error {
	_, span := tracer.Start(ctx, "taskmanager.TaskFeedback", trace.WithAttributes(attribute.String("task_id", params.TaskID)))
	defer span.End()

	if _, err := tm.Storage.LoadTask(ctx, params.TaskID); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	metadata := map[string]any{"feedback": params.Feedback}
	if params.Rating != nil {
		metadata["feedback_rating"] = *params.Rating
	}
	for k, v := range params.Metadata {
		metadata[k] = v
	}
	if err := tm.Storage.UpdateTaskMetadata(ctx, params.TaskID, metadata); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	log.Info("taskmanager: feedback recorded", "task_id", params.TaskID)
	return nil
}

func (tm *TaskManager) SetTaskPushNotification(ctx context.Context, cfg a2a.TaskPushNotificationConfig) (*a2a.TaskPushNotificationConfig, error) {
	_, span := tracer.Start(ctx, "taskmanager.SetTaskPushNotification", trace.WithAttributes(attribute.String("task_id", cfg.TaskID)))
	defer span.End()

	if !tm.PushNotificationsEnabled {
		return nil, a2a.ErrFailedPrecondition("agent does not support push notifications")
	}
	if _, err := tm.Storage.LoadTask(ctx, cfg.TaskID); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	if cfg.PushNotificationConfig.URL == "" {
		return nil, a2a.ErrInvalidArgument("pushNotificationConfig.url is required")
	}
	if cfg.PushNotificationConfig.ID == "" {
		cfg.PushNotificationConfig.ID = a2a.NewID()
	}
	if err := tm.Storage.SetPushConfig(ctx, cfg); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	return &cfg, nil
}

func (tm *TaskManager) GetTaskPushNotification(ctx context.Context, taskID string) (*a2a.TaskPushNotificationConfig, error) {
	_, span := tracer.Start(ctx, "taskmanager.GetTaskPushNotification", trace.WithAttributes(attribute.String("task_id", taskID)))
	defer span.End()

	if !tm.PushNotificationsEnabled {
		return nil, a2a.ErrFailedPrecondition("agent does not support push notifications")
	}
	return tm.Storage.GetPushConfig(ctx, taskID)
}

func (tm *TaskManager) ListTaskPushNotifications(ctx context.Context, taskID string) ([]a2a.TaskPushNotificationConfig, error) {
	_, span := tracer.Start(ctx, "taskmanager.ListTaskPushNotifications", trace.WithAttributes(attribute.String("task_id", taskID)))
	defer span.End()

	if !tm.PushNotificationsEnabled {
		return nil, a2a.ErrFailedPrecondition("agent does not support push notifications")
	}
	return tm.Storage.ListPushConfigs(ctx, taskID)
}

func (tm *TaskManager) DeleteTaskPushNotification(ctx context.Context, taskID, configID string) error {
	_, span := tracer.Start(ctx, "taskmanager.DeleteTaskPushNotification", trace.WithAttributes(attribute.String("task_id", taskID)))
	defer span.End()

	if !tm.PushNotificationsEnabled {
		return a2a.ErrFailedPrecondition("agent does not support push notifications")
	}
	return tm.Storage.DeletePushConfig(ctx, taskID, configID)
}
