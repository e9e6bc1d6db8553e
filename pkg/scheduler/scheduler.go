// Package scheduler implements the at-most-one-in-flight run dispatcher and
// the per-task replayable event topic that SSE/gRPC subscribers and the
// push dispatcher consume from.
package scheduler

import (
	"context"

	"github.com/theapemachine/a2a-go/pkg/a2a"
)

// RunFunc is invoked by a Scheduler to actually execute a task; supplied by
// the Task Manager at construction time so the scheduler never imports the
// worker package directly.
type RunFunc func(ctx context.Context, taskID string, cancel <-chan struct{})

// Stream is a replayable, subscribable sequence of TaskEvents for one task:
// on Subscribe, every event already published during this process's
// lifetime replays first, then live events follow until a final=true event
// closes the channel.
type Stream interface {
	Events() <-chan a2a.TaskEvent
	Close()
}

// Scheduler is the C2 contract: idempotent run enqueueing, per-task
// publish/subscribe, and cooperative cancellation.
type Scheduler interface {
	// EnqueueRun starts (or no-ops if already in-flight/queued for taskID)
	// a run of run against taskID.
	EnqueueRun(ctx context.Context, taskID string, run RunFunc) error

	// Subscribe returns a replayable stream of events for taskID.
	Subscribe(ctx context.Context, taskID string) (Stream, error)

	// Publish broadcasts event to all current subscribers of its TaskID and
	// retains it in the per-task event log until the task reaches a
	// terminal state plus a grace period.
	Publish(ctx context.Context, event a2a.TaskEvent) error

	// Cancel requests cooperative cancellation of the in-flight worker for
	// taskID. It reports whether a run was actually signaled; false means
	// nothing is in-flight and the caller must finalize the task itself.
	Cancel(ctx context.Context, taskID string) bool

	// Shutdown drains in-flight runs up to the host's grace period.
	Shutdown(ctx context.Context)
}
