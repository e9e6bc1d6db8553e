package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/theapemachine/a2a-go/pkg/a2a"
)

// TopicCapacity bounds the per-task event log and each subscriber's
// buffered channel. When a slow subscriber falls behind, the oldest
// non-final event is dropped in favor of the newest; a final=true event is
// never dropped.
const TopicCapacity = 256

// FinalEventGrace is how long a terminated task's event log is retained
// after the final event, before GC sweeps it. In-flight run entries are
// removed as soon as the run returns, not by the sweep.
const FinalEventGrace = 5 * time.Minute

type memoryStream struct {
	ch    chan a2a.TaskEvent
	close func()
}

func (s *memoryStream) Events() <-chan a2a.TaskEvent { return s.ch }
func (s *memoryStream) Close()                       { s.close() }

type topic struct {
	mu          sync.Mutex
	log         []a2a.TaskEvent
	subscribers map[int]chan a2a.TaskEvent
	nextSubID   int
	final       bool
	finalAt     time.Time
}

func newTopic() *topic {
	return &topic{subscribers: make(map[int]chan a2a.TaskEvent)}
}

// appendLocked enforces the drop-oldest-non-final slow-subscriber policy on
// the retained log itself.
func (t *topic) appendLocked(event a2a.TaskEvent) {
	t.log = append(t.log, event)
	if len(t.log) > TopicCapacity {
		for i, e := range t.log {
			if !e.Final {
				t.log = append(t.log[:i], t.log[i+1:]...)
				break
			}
		}
	}
	if event.Final {
		t.final = true
		t.finalAt = time.Now().UTC()
	}
}

func (t *topic) publish(event a2a.TaskEvent) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.appendLocked(event)

	for id, ch := range t.subscribers {
		select {
		case ch <- event:
		default:
			// Slow subscriber: drop the oldest buffered non-final event to
			// make room, never dropping a final event already queued.
			select {
			case dropped := <-ch:
				if dropped.Final {
					// Put it back; we will not evict a final event.
					select {
					case ch <- dropped:
					default:
					}
					continue
				}
			default:
			}
			select {
			case ch <- event:
			default:
				log.Warn("scheduler: subscriber channel saturated, dropping event", "task_id", event.TaskID, "subscriber", id)
			}
		}
		if event.Final {
			close(ch)
			delete(t.subscribers, id)
		}
	}
}

// reset clears a finalized topic so a follow-up run (input-required →
// working) starts a fresh event sequence instead of handing new
// subscribers the previous run's already-final stream.
func (t *topic) reset() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.final {
		return
	}
	t.log = nil
	t.final = false
	t.finalAt = time.Time{}
}

func (t *topic) subscribe() *memoryStream {
	t.mu.Lock()
	defer t.mu.Unlock()

	ch := make(chan a2a.TaskEvent, TopicCapacity)
	for _, event := range t.log {
		select {
		case ch <- event:
		default:
		}
	}

	if t.final {
		close(ch)
		return &memoryStream{ch: ch, close: func() {}}
	}

	id := t.nextSubID
	t.nextSubID++
	t.subscribers[id] = ch

	return &memoryStream{
		ch: ch,
		close: func() {
			t.mu.Lock()
			defer t.mu.Unlock()
			if existing, ok := t.subscribers[id]; ok {
				delete(t.subscribers, id)
				close(existing)
			}
		},
	}
}

type inFlightRun struct {
	cancel chan struct{}
	done   chan struct{}
}

// MemoryScheduler is the single-process Scheduler backend: one bounded
// buffered channel per task topic, an in-flight map guarding
// at-most-one-worker-per-task, and cooperative cancellation via a closed
// channel the worker polls.
type MemoryScheduler struct {
	mu       sync.Mutex
	topics   map[string]*topic
	inFlight map[string]*inFlightRun
}

// NewMemoryScheduler constructs an empty in-memory scheduler.
func NewMemoryScheduler() *MemoryScheduler {
	return &MemoryScheduler{
		topics:   make(map[string]*topic),
		inFlight: make(map[string]*inFlightRun),
	}
}

func (s *MemoryScheduler) topicFor(taskID string) *topic {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.sweepLocked()

	t, ok := s.topics[taskID]
	if !ok {
		t = newTopic()
		s.topics[taskID] = t
	}
	return t
}

// sweepLocked drops topics whose final event is older than FinalEventGrace;
// late subscribers inside the grace window still get the full replay, after
// it the task's log is gone and a fresh subscribe sees an empty topic.
func (s *MemoryScheduler) sweepLocked() {
	cutoff := time.Now().UTC().Add(-FinalEventGrace)
	for taskID, t := range s.topics {
		t.mu.Lock()
		expired := t.final && t.finalAt.Before(cutoff)
		t.mu.Unlock()
		if expired {
			delete(s.topics, taskID)
		}
	}
}

// EnqueueRun is idempotent: a second call while taskID is already in-flight
// is a no-op, per the at-most-one-in-flight invariant.
func (s *MemoryScheduler) EnqueueRun(ctx context.Context, taskID string, run RunFunc) error {
	s.mu.Lock()
	if _, inFlight := s.inFlight[taskID]; inFlight {
		s.mu.Unlock()
		return nil
	}

	entry := &inFlightRun{cancel: make(chan struct{}), done: make(chan struct{})}
	s.inFlight[taskID] = entry
	s.mu.Unlock()

	s.topicFor(taskID).reset()

	go func() {
		defer func() {
			s.mu.Lock()
			delete(s.inFlight, taskID)
			s.mu.Unlock()
			close(entry.done)
		}()
		run(ctx, taskID, entry.cancel)
	}()

	return nil
}

func (s *MemoryScheduler) Subscribe(ctx context.Context, taskID string) (Stream, error) {
	return s.topicFor(taskID).subscribe(), nil
}

func (s *MemoryScheduler) Publish(ctx context.Context, event a2a.TaskEvent) error {
	s.topicFor(event.TaskID).publish(event)
	return nil
}

func (s *MemoryScheduler) Cancel(ctx context.Context, taskID string) bool {
	s.mu.Lock()
	entry, ok := s.inFlight[taskID]
	s.mu.Unlock()
	if !ok {
		return false
	}

	select {
	case <-entry.cancel:
		// already closed
	default:
		close(entry.cancel)
	}
	return true
}

// Shutdown cancels every in-flight run and waits for each to observe the
// signal and exit, up to ctx's deadline.
func (s *MemoryScheduler) Shutdown(ctx context.Context) {
	s.mu.Lock()
	entries := make([]*inFlightRun, 0, len(s.inFlight))
	for _, e := range s.inFlight {
		entries = append(entries, e)
	}
	s.mu.Unlock()

	for _, e := range entries {
		select {
		case <-e.cancel:
		default:
			close(e.cancel)
		}
	}

	for _, e := range entries {
		select {
		case <-e.done:
		case <-ctx.Done():
			log.Warn("scheduler: shutdown grace period exceeded, runs may still be in-flight")
			return
		}
	}
}
