package taskstate

import (
	"strings"
)

// State is one of the closed set of task lifecycle states.
type State string

const (
	StatePending    State = "pending"
	StateInProgress State = "in_progress"
	StateCompleted  State = "completed"
	StateFailed     State = "failed"
	StateCancelled  State = "cancelled"
)

// States returns every known state in declaration order.
func States() []State {
	return []State{
		StatePending,
		StateInProgress,
		StateCompleted,
		StateFailed,
		StateCancelled,
	}
}

// transitions is the legality table: each state maps to the states it may
// move into. Terminal states only self-loop, which makes re-confirmation
// of a terminal outcome idempotent.
var transitions = map[State][]State{
	StatePending:    {StateInProgress, StateCancelled},
	StateInProgress: {StateCompleted, StateFailed, StateCancelled},
	StateCompleted:  {StateCompleted},
	StateFailed:     {StateFailed},
	StateCancelled:  {StateCancelled},
}

// ParseState normalizes and validates a state name.
func ParseState(raw string) (State, error) {
	s := State(strings.ToLower(strings.TrimSpace(raw)))
	if !s.Valid() {
		return "", WrapError(ErrInvalidArgument, "unknown state", nil, map[string]any{
			"state": raw,
		})
	}
	return s, nil
}

func (s State) String() string {
	return string(s)
}

// Valid reports whether s is a member of the closed state set.
func (s State) Valid() bool {
	_, ok := transitions[s]
	return ok
}

// Terminal reports whether s has no outgoing edges other than its
// self-loop.
func (s State) Terminal() bool {
	switch s {
	case StateCompleted, StateFailed, StateCancelled:
		return true
	default:
		return false
	}
}

// CanTransitionTo reports whether the edge s -> to is in the table.
func (s State) CanTransitionTo(to State) bool {
	for _, next := range transitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

func isBlank(s string) bool {
	return strings.TrimSpace(s) == ""
}

// ValidateTransition checks the edge from -> to against the table.
func ValidateTransition(from, to State) error {
	if !from.Valid() {
		return WrapError(ErrInvalidArgument, "unknown state", nil, map[string]any{
			"state": string(from),
		})
	}
	if !to.Valid() {
		return WrapError(ErrInvalidArgument, "unknown state", nil, map[string]any{
			"state": string(to),
		})
	}
	if !from.CanTransitionTo(to) {
		return WrapError(ErrIllegalTransition, "", nil, map[string]any{
			"from": string(from),
			"to":   string(to),
		})
	}
	return nil
}
