// Package events provides synchronous fan-out of typed lifecycle events.
// Event kinds are a closed set; subscribers pattern-match on Kind and
// ignore kinds they do not recognize.
package events

import (
	"log"
	"sync"
	"time"
)

// Kind enumerates the lifecycle event variants.
type Kind string

const (
	ProjectCreated  Kind = "project_created"
	SessionCreated  Kind = "session_created"
	SessionActivity Kind = "session_activity"
	SessionUpdated  Kind = "session_updated"
	SessionEnded    Kind = "session_ended"
	SessionDeleted  Kind = "session_deleted"
	PromptAdded     Kind = "prompt_added"
	GoalSet         Kind = "goal_set"
	GoalCompleted   Kind = "goal_completed"
)

// Event is a single lifecycle notification.
type Event struct {
	Kind      Kind
	SessionID string
	ProjectID string
	PromptID  string
	Timestamp time.Time
	Data      any
}

// Listener receives events. Panics are caught by the bus.
type Listener func(Event)

// Bus fans events out to subscribers in subscription order on the caller's
// goroutine. A failing listener is logged and does not affect the others.
type Bus struct {
	mu        sync.Mutex
	nextID    int
	listeners []subscription
}

type subscription struct {
	id int
	fn Listener
}

// NewBus creates an empty event bus.
func NewBus() *Bus {
	return &Bus{}
}

// Subscribe registers a listener and returns its unsubscribe function.
// Unsubscribing twice is a no-op.
func (b *Bus) Subscribe(fn Listener) func() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	id := b.nextID
	b.listeners = append(b.listeners, subscription{id: id, fn: fn})

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		for i, sub := range b.listeners {
			if sub.id == id {
				b.listeners = append(b.listeners[:i], b.listeners[i+1:]...)
				return
			}
		}
	}
}

// Emit delivers the event to every subscriber synchronously. If the event
// carries no timestamp one is stamped here.
func (b *Bus) Emit(ev Event) {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}

	b.mu.Lock()
	subs := make([]subscription, len(b.listeners))
	copy(subs, b.listeners)
	b.mu.Unlock()

	for _, sub := range subs {
		b.dispatch(sub, ev)
	}
}

// dispatch invokes one listener, isolating panics so a single bad listener
// cannot break fan-out.
func (b *Bus) dispatch(sub subscription, ev Event) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("events: listener panic on %s: %v", ev.Kind, r)
		}
	}()
	sub.fn(ev)
}
