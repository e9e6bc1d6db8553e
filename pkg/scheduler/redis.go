package scheduler

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/redis/go-redis/v9"
	"github.com/theapemachine/a2a-go/pkg/a2a"
)

// RedisScheduler is the SCHEDULER_TYPE=redis distributed backend: a Redis
// list is the replay log for a task topic, Redis Pub/Sub fans out live
// events, and in-flight run ownership is a SET NX lock so at most one
// process node runs a given task. Grounded on goadesign-goa-ai's
// ResultStreamManager (Redis-mapping + Pub/Sub sink idiom), generalized
// from a single-result rendezvous to a replayable multi-event topic.
type RedisScheduler struct {
	rdb *redis.Client

	mu       sync.Mutex
	inFlight map[string]chan struct{} // local cancel signal, this node's runs only
}

// NewRedisScheduler wraps an already-configured *redis.Client.
func NewRedisScheduler(rdb *redis.Client) *RedisScheduler {
	return &RedisScheduler{rdb: rdb, inFlight: make(map[string]chan struct{})}
}

func logKey(taskID string) string     { return fmt.Sprintf("a2a:task:%s:log", taskID) }
func channelKey(taskID string) string { return fmt.Sprintf("a2a:task:%s:events", taskID) }
func lockKey(taskID string) string    { return fmt.Sprintf("a2a:task:%s:lock", taskID) }

// EnqueueRun acquires a distributed lock keyed on taskID (SET NX) so at
// most one process node runs it; a second EnqueueRun call anywhere in the
// cluster while the lock holds is a no-op.
func (s *RedisScheduler) EnqueueRun(ctx context.Context, taskID string, run RunFunc) error {
	acquired, err := s.rdb.SetNX(ctx, lockKey(taskID), "1", 0).Result()
	if err != nil {
		return a2a.ErrInternal("acquire run lock for task %s: %s", taskID, err)
	}
	if !acquired {
		return nil
	}

	// A fresh run after an input-required halt restarts the event sequence;
	// dropping the previous run's log keeps Subscribe's replay from ending
	// at a stale final event.
	if err := s.rdb.Del(ctx, logKey(taskID)).Err(); err != nil {
		log.Warn("scheduler: failed to reset event log", "task_id", taskID, "error", err)
	}

	s.mu.Lock()
	cancel := make(chan struct{})
	s.inFlight[taskID] = cancel
	s.mu.Unlock()

	go func() {
		defer func() {
			s.mu.Lock()
			delete(s.inFlight, taskID)
			s.mu.Unlock()
			if err := s.rdb.Del(context.Background(), lockKey(taskID)).Err(); err != nil {
				log.Error("scheduler: failed to release run lock", "task_id", taskID, "error", err)
			}
		}()
		run(ctx, taskID, cancel)
	}()

	return nil
}

// redisStream adapts a redis Pub/Sub subscription plus a replayed backlog
// into the Stream contract.
type redisStream struct {
	ch     chan a2a.TaskEvent
	cancel context.CancelFunc
	sub    *redis.PubSub
}

func (s *redisStream) Events() <-chan a2a.TaskEvent { return s.ch }
func (s *redisStream) Close() {
	s.cancel()
	_ = s.sub.Close()
}

// Subscribe replays the task's retained event log (a Redis list) before
// forwarding live Pub/Sub events, matching the in-memory backend's
// replayable-stream contract.
func (s *RedisScheduler) Subscribe(ctx context.Context, taskID string) (Stream, error) {
	raw, err := s.rdb.LRange(ctx, logKey(taskID), 0, -1).Result()
	if err != nil && err != redis.Nil {
		return nil, a2a.ErrInternal("replay event log for task %s: %s", taskID, err)
	}

	out := make(chan a2a.TaskEvent, TopicCapacity)
	for _, entry := range raw {
		var event a2a.TaskEvent
		if err := json.Unmarshal([]byte(entry), &event); err == nil {
			select {
			case out <- event:
			default:
			}
			if event.Final {
				close(out)
				return &redisStream{ch: out, cancel: func() {}, sub: nil}, nil
			}
		}
	}

	subCtx, cancel := context.WithCancel(ctx)
	sub := s.rdb.Subscribe(subCtx, channelKey(taskID))

	go func() {
		defer close(out)
		ch := sub.Channel()
		for {
			select {
			case <-subCtx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				var event a2a.TaskEvent
				if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
					continue
				}
				select {
				case out <- event:
				case <-subCtx.Done():
					return
				}
				if event.Final {
					return
				}
			}
		}
	}()

	return &redisStream{ch: out, cancel: cancel, sub: sub}, nil
}

// Publish appends event to the task's replay log, trims it to
// TopicCapacity, and broadcasts it over the task's Pub/Sub channel.
func (s *RedisScheduler) Publish(ctx context.Context, event a2a.TaskEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return a2a.ErrInternal("marshal task event: %s", err)
	}

	pipe := s.rdb.TxPipeline()
	pipe.RPush(ctx, logKey(event.TaskID), payload)
	pipe.LTrim(ctx, logKey(event.TaskID), -TopicCapacity, -1)
	if _, err := pipe.Exec(ctx); err != nil {
		return a2a.ErrInternal("append event log for task %s: %s", event.TaskID, err)
	}

	if err := s.rdb.Publish(ctx, channelKey(event.TaskID), payload).Err(); err != nil {
		return a2a.ErrInternal("publish event for task %s: %s", event.TaskID, err)
	}

	return nil
}

// Cancel closes the local cancel channel for taskID if this node owns the
// in-flight run; cross-node cancellation is out of scope for the cancel
// signal itself (the lock ensures only one node can be running it, and
// operators route cancel requests to any node holding task state).
func (s *RedisScheduler) Cancel(ctx context.Context, taskID string) bool {
	s.mu.Lock()
	cancel, ok := s.inFlight[taskID]
	s.mu.Unlock()
	if !ok {
		return false
	}
	select {
	case <-cancel:
	default:
		close(cancel)
	}
	return true
}

func (s *RedisScheduler) Shutdown(ctx context.Context) {
	s.mu.Lock()
	cancels := make([]chan struct{}, 0, len(s.inFlight))
	for _, c := range s.inFlight {
		cancels = append(cancels, c)
	}
	s.mu.Unlock()

	for _, c := range cancels {
		select {
		case <-c:
		default:
			close(c)
		}
	}
}
