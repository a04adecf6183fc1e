package registry

import (
	"sync"
	"time"

	taskstate "github.com/goliatone/go-taskstate"
)

// Registry is the orchestrating façade over per-task histories and the
// event bus. One mutex guards the history map; the check-then-append in
// Transition is atomic under it. Events publish after the lock is
// released so listeners can safely touch other tasks.
type Registry struct {
	mu        sync.RWMutex
	histories map[string]*History
	bus       *EventBus
	logger    taskstate.Logger
	now       func() time.Time
}

// Option customizes registry construction.
type Option func(*Registry)

// WithEventBus shares an externally owned bus, e.g. one that already has
// listeners attached.
func WithEventBus(bus *EventBus) Option {
	return func(r *Registry) {
		if bus != nil {
			r.bus = bus
		}
	}
}

// WithLogger sets the registry logger.
func WithLogger(logger taskstate.Logger) Option {
	return func(r *Registry) {
		r.logger = taskstate.NormalizeLogger(logger)
	}
}

// WithClock overrides the time source, mainly for retention tests.
func WithClock(now func() time.Time) Option {
	return func(r *Registry) {
		if now != nil {
			r.now = now
		}
	}
}

// New constructs an empty registry.
func New(opts ...Option) *Registry {
	r := &Registry{
		histories: make(map[string]*History),
		logger:    taskstate.NormalizeLogger(nil),
		now:       func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	if r.bus == nil {
		r.bus = NewEventBus(WithBusLogger(r.logger))
	}
	return r
}

// Bus exposes the event bus for subscribing listeners.
func (r *Registry) Bus() *EventBus {
	return r.bus
}

// Initialize creates the history for a new task and seeds it with the
// initial state. The seed record bypasses the legality table.
func (r *Registry) Initialize(taskID string, initial taskstate.State) (taskstate.TransitionRecord, error) {
	if taskID == "" {
		return taskstate.TransitionRecord{}, taskstate.WrapError(taskstate.ErrInvalidArgument,
			"task id cannot be empty", nil, nil)
	}
	if !initial.Valid() {
		return taskstate.TransitionRecord{}, taskstate.WrapError(taskstate.ErrInvalidArgument,
			"unknown state", nil, map[string]any{"state": string(initial)})
	}

	rec := taskstate.TransitionRecord{To: initial, Timestamp: r.now()}

	r.mu.Lock()
	if _, exists := r.histories[taskID]; exists {
		r.mu.Unlock()
		return taskstate.TransitionRecord{}, taskstate.WrapError(taskstate.ErrAlreadyExists,
			"", nil, map[string]any{"task_id": taskID})
	}
	h := r.newHistory(taskID)
	if err := h.Append(rec); err != nil {
		r.mu.Unlock()
		return taskstate.TransitionRecord{}, err
	}
	r.histories[taskID] = h
	r.mu.Unlock()

	r.logger.Info("task %s initialized as %s", taskID, initial)
	r.bus.Publish(taskID, rec)
	return rec, nil
}

// Transition moves a task to a new state after validating the edge, then
// publishes the resulting record.
func (r *Registry) Transition(taskID string, to taskstate.State, message string) (taskstate.TransitionRecord, error) {
	r.mu.Lock()
	h, ok := r.histories[taskID]
	if !ok {
		r.mu.Unlock()
		return taskstate.TransitionRecord{}, r.notFound(taskID)
	}
	rec := taskstate.TransitionRecord{
		From:      h.CurrentState(),
		To:        to,
		Timestamp: r.now(),
		Message:   message,
	}
	if err := h.Append(rec); err != nil {
		r.mu.Unlock()
		return taskstate.TransitionRecord{}, err
	}
	r.mu.Unlock()

	r.logger.Debug("task %s: %s", taskID, rec)
	r.bus.Publish(taskID, rec)
	return rec, nil
}

// Rollback restores a previously visited state, bypassing the legality
// table, then publishes the record like any other transition.
func (r *Registry) Rollback(taskID string, target taskstate.State, message string) (taskstate.TransitionRecord, error) {
	r.mu.Lock()
	h, ok := r.histories[taskID]
	if !ok {
		r.mu.Unlock()
		return taskstate.TransitionRecord{}, r.notFound(taskID)
	}
	rec, err := h.RollbackTo(target, message)
	if err != nil {
		r.mu.Unlock()
		return taskstate.TransitionRecord{}, err
	}
	r.mu.Unlock()

	r.logger.Info("task %s rolled back to %s", taskID, target)
	r.bus.Publish(taskID, rec)
	return rec, nil
}

// CurrentState returns the task's derived state.
func (r *Registry) CurrentState(taskID string) (taskstate.State, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.histories[taskID]
	if !ok {
		return "", r.notFound(taskID)
	}
	return h.CurrentState(), nil
}

// Records returns a copy of the task's transition log.
func (r *Registry) Records(taskID string) ([]taskstate.TransitionRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.histories[taskID]
	if !ok {
		return nil, r.notFound(taskID)
	}
	return h.Records(), nil
}

// DurationIn reports the total time the task spent in state.
func (r *Registry) DurationIn(taskID string, state taskstate.State) (time.Duration, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.histories[taskID]
	if !ok {
		return 0, r.notFound(taskID)
	}
	return h.DurationIn(state), nil
}

// Has reports whether a history exists for the id.
func (r *Registry) Has(taskID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.histories[taskID]
	return ok
}

// Len returns the number of tracked histories.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.histories)
}

// Statistics counts tracked tasks by current state. Every known state is
// present in the result, zero or not.
func (r *Registry) Statistics() map[taskstate.State]int {
	stats := make(map[taskstate.State]int, len(taskstate.States()))
	for _, s := range taskstate.States() {
		stats[s] = 0
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, h := range r.histories {
		if s := h.CurrentState(); s.Valid() {
			stats[s]++
		}
	}
	return stats
}

// Cleanup removes histories whose terminal transition is older than
// maxAge. In-flight histories are never removed regardless of age.
func (r *Registry) Cleanup(maxAge time.Duration) int {
	cutoff := r.now().Add(-maxAge)

	r.mu.Lock()
	defer r.mu.Unlock()

	removed := 0
	for taskID, h := range r.histories {
		if len(h.records) == 0 {
			continue
		}
		last := h.records[len(h.records)-1]
		if !last.To.Terminal() {
			continue
		}
		if last.Timestamp.Before(cutoff) {
			delete(r.histories, taskID)
			removed++
		}
	}
	if removed > 0 {
		r.logger.Info("removed %d finished task histories older than %s", removed, maxAge)
	}
	return removed
}

func (r *Registry) newHistory(taskID string) *History {
	h := NewHistory(taskID)
	h.now = r.now
	return h
}

func (r *Registry) notFound(taskID string) error {
	return taskstate.WrapError(taskstate.ErrNotFound, "", nil, map[string]any{
		"task_id": taskID,
	})
}
