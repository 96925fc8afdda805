// Package events provides a small in-process publish/subscribe bus with
// bounded history. The workflow executor and trigger manager publish
// lifecycle events; subscribers receive them through buffered channels with
// non-blocking delivery, so a slow consumer never stalls a publisher.
package events

import (
	"context"
	"sync"
	"time"
)

// Workflow lifecycle event names.
const (
	WorkflowStarted   = "workflow.started"
	WorkflowCompleted = "workflow.completed"
	WorkflowFailed    = "workflow.failed"
	WorkflowCancelled = "workflow.cancelled"

	StepStarted   = "step.started"
	StepCompleted = "step.completed"
	StepFailed    = "step.failed"
	StepSkipped   = "step.skipped"

	TriggerFired = "trigger.fired"
)

// Event is a named occurrence with an opaque data payload.
type Event struct {
	Name      string         `json:"name"`
	Data      map[string]any `json:"data,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

const (
	defaultHistoryLimit = 100
	defaultBufferSize   = 16
)

type subscription struct {
	name string // event name filter, "" matches all

	mu     sync.Mutex
	closed bool
	ch     chan Event
}

// trySend delivers the event unless the buffer is full. The lock orders
// sends against close, so a concurrent cancel cannot panic a publisher.
func (s *subscription) trySend(e Event) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return true
	}
	select {
	case s.ch <- e:
		return true
	default:
		return false
	}
}

func (s *subscription) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.ch)
	}
}

// Bus distributes events to subscribers and keeps a bounded history.
// All methods are safe for concurrent use.
type Bus struct {
	mu           sync.RWMutex
	subs         map[int]*subscription
	nextID       int
	history      []Event
	historyLimit int
	dropped      int64
}

// NewBus creates a Bus with the default history limit.
func NewBus() *Bus {
	return NewBusWithHistory(defaultHistoryLimit)
}

// NewBusWithHistory creates a Bus keeping up to limit past events.
func NewBusWithHistory(limit int) *Bus {
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	return &Bus{
		subs:         make(map[int]*subscription),
		historyLimit: limit,
	}
}

// Publish records the event and delivers it to matching subscribers.
// Delivery is non-blocking: events are dropped for subscribers whose
// buffer is full.
func (b *Bus) Publish(ctx context.Context, name string, data map[string]any) {
	event := Event{Name: name, Data: data, Timestamp: time.Now()}

	b.mu.Lock()
	b.history = append(b.history, event)
	if len(b.history) > b.historyLimit {
		b.history = b.history[len(b.history)-b.historyLimit:]
	}
	subs := make([]*subscription, 0, len(b.subs))
	for _, s := range b.subs {
		subs = append(subs, s)
	}
	b.mu.Unlock()

	for _, s := range subs {
		if s.name != "" && s.name != name {
			continue
		}
		if ctx.Err() != nil {
			return
		}
		if !s.trySend(event) {
			b.mu.Lock()
			b.dropped++
			b.mu.Unlock()
		}
	}
}

// Subscribe registers interest in events with the given name; the empty
// string matches every event. The returned cancel function must be called
// to release the subscription.
func (b *Bus) Subscribe(name string) (<-chan Event, func()) {
	sub := &subscription{name: name, ch: make(chan Event, defaultBufferSize)}

	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.subs[id] = sub
	b.mu.Unlock()

	cancel := func() {
		b.mu.Lock()
		delete(b.subs, id)
		b.mu.Unlock()
		sub.close()
	}
	return sub.ch, cancel
}

// History returns up to limit past events, newest last. A non-empty name
// filters by event name; limit <= 0 means no limit.
func (b *Bus) History(name string, limit int) []Event {
	b.mu.RLock()
	defer b.mu.RUnlock()

	var out []Event
	for _, e := range b.history {
		if name == "" || e.Name == name {
			out = append(out, e)
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out
}

// Dropped reports how many events were discarded due to full subscriber
// buffers.
func (b *Bus) Dropped() int64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.dropped
}
