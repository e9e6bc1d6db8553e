package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/theapemachine/a2a-go/pkg/a2a"
)

func TestMemoryScheduler_EnqueueRunIsIdempotent(t *testing.T) {
	s := NewMemoryScheduler()
	var runs int32
	started := make(chan struct{})
	release := make(chan struct{})

	run := func(ctx context.Context, taskID string, cancel <-chan struct{}) {
		runs++
		close(started)
		<-release
	}

	require.NoError(t, s.EnqueueRun(context.Background(), "t1", run))
	<-started
	require.NoError(t, s.EnqueueRun(context.Background(), "t1", run))
	close(release)

	assert.Equal(t, int32(1), runs)
}

func TestMemoryScheduler_SubscribeReplaysThenLive(t *testing.T) {
	s := NewMemoryScheduler()
	ctx := context.Background()

	require.NoError(t, s.Publish(ctx, a2a.NewStatusEvent("t1", "c1", a2a.TaskStateWorking, nil, false)))

	stream, err := s.Subscribe(ctx, "t1")
	require.NoError(t, err)

	first := <-stream.Events()
	assert.Equal(t, a2a.TaskStateWorking, first.Status.State)

	require.NoError(t, s.Publish(ctx, a2a.NewStatusEvent("t1", "c1", a2a.TaskStateCompleted, nil, true)))

	select {
	case final := <-stream.Events():
		assert.True(t, final.Final)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for final event")
	}
}

func TestMemoryScheduler_CancelSignalsInFlightRun(t *testing.T) {
	s := NewMemoryScheduler()
	ctx := context.Background()

	canceled := make(chan struct{})
	run := func(ctx context.Context, taskID string, cancel <-chan struct{}) {
		<-cancel
		close(canceled)
	}

	require.NoError(t, s.EnqueueRun(ctx, "t2", run))
	s.Cancel(ctx, "t2")

	select {
	case <-canceled:
	case <-time.After(time.Second):
		t.Fatal("cancel signal was not observed")
	}
}
