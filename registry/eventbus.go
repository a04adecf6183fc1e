package registry

import (
	"sync"

	taskstate "github.com/goliatone/go-taskstate"
)

// Listener receives the task id and the record of a transition that landed
// on the state it subscribed to. Listeners run synchronously on the
// publishing goroutine; they must be fast and must not call back into the
// Registry for the same task id.
type Listener func(taskID string, rec taskstate.TransitionRecord)

// Subscription detaches a listener from the bus.
type Subscription interface {
	Unsubscribe()
}

// EventBus fans transition records out to listeners keyed by destination
// state. Delivery is best-effort: a panicking listener is logged and the
// remaining listeners still run.
type EventBus struct {
	mu        sync.RWMutex
	listeners map[taskstate.State][]*busSubscription
	logger    taskstate.Logger
}

// EventBusOption customizes the bus.
type EventBusOption func(*EventBus)

// WithBusLogger sets the logger used to report listener failures.
func WithBusLogger(logger taskstate.Logger) EventBusOption {
	return func(b *EventBus) {
		b.logger = taskstate.NormalizeLogger(logger)
	}
}

// NewEventBus constructs an empty bus.
func NewEventBus(opts ...EventBusOption) *EventBus {
	b := &EventBus{
		listeners: make(map[taskstate.State][]*busSubscription),
		logger:    taskstate.NormalizeLogger(nil),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(b)
		}
	}
	return b
}

// Subscribe registers a listener for transitions into state and returns a
// handle to detach it later.
func (b *EventBus) Subscribe(state taskstate.State, fn Listener) Subscription {
	sub := &busSubscription{bus: b, state: state, fn: fn}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.listeners[state] = append(b.listeners[state], sub)
	return sub
}

// Publish invokes every listener registered for rec.To in registration
// order.
func (b *EventBus) Publish(taskID string, rec taskstate.TransitionRecord) {
	b.mu.RLock()
	subs := make([]*busSubscription, len(b.listeners[rec.To]))
	copy(subs, b.listeners[rec.To])
	b.mu.RUnlock()

	for _, sub := range subs {
		b.invoke(sub, taskID, rec)
	}
}

// invoke isolates one listener call so a panic never reaches the
// transition that triggered it.
func (b *EventBus) invoke(sub *busSubscription, taskID string, rec taskstate.TransitionRecord) {
	defer func() {
		if r := recover(); r != nil {
			taskstate.WithLoggerFields(b.logger, map[string]any{
				"task_id": taskID,
				"state":   string(rec.To),
			}).Error("state listener panicked: %v", r)
		}
	}()
	if sub.fn != nil {
		sub.fn(taskID, rec)
	}
}

type busSubscription struct {
	bus   *EventBus
	state taskstate.State
	fn    Listener
}

func (s *busSubscription) Unsubscribe() {
	b := s.bus
	b.mu.Lock()
	defer b.mu.Unlock()

	subs := b.listeners[s.state]
	kept := make([]*busSubscription, 0, len(subs))
	for _, sub := range subs {
		if sub != s {
			kept = append(kept, sub)
		}
	}
	b.listeners[s.state] = kept
}
