package taskstate

import (
	"fmt"
	"time"
)

// TransitionRecord is one immutable entry in a task's audit history. From
// is empty on the seed record written when a task is initialized. Rollback
// marks escape-hatch transitions that bypass the legality table.
type TransitionRecord struct {
	From      State     `json:"from_state,omitempty" yaml:"from_state,omitempty"`
	To        State     `json:"to_state" yaml:"to_state"`
	Timestamp time.Time `json:"timestamp" yaml:"timestamp"`
	Message   string    `json:"message,omitempty" yaml:"message,omitempty"`
	Rollback  bool      `json:"rollback,omitempty" yaml:"rollback,omitempty"`
}

// NewTransitionRecord builds a table-validated record stamped with the
// current UTC time. The record itself is not checked here; History.Append
// performs sequencing and legality checks.
func NewTransitionRecord(from, to State, message string) TransitionRecord {
	return TransitionRecord{
		From:      from,
		To:        to,
		Timestamp: time.Now().UTC(),
		Message:   message,
	}
}

// Initial reports whether this is a seed record with no originating state.
func (r TransitionRecord) Initial() bool {
	return r.From == ""
}

// Validate checks the edge against the transition table. Seed and rollback
// records skip the table on purpose.
func (r TransitionRecord) Validate() error {
	if !r.To.Valid() {
		return WrapError(ErrInvalidArgument, "unknown state", nil, map[string]any{
			"state": string(r.To),
		})
	}
	if r.Initial() || r.Rollback {
		return nil
	}
	return ValidateTransition(r.From, r.To)
}

func (r TransitionRecord) String() string {
	from := string(r.From)
	if r.Initial() {
		from = "none"
	}
	if r.Rollback {
		return fmt.Sprintf("%s -> %s (rollback)", from, r.To)
	}
	return fmt.Sprintf("%s -> %s", from, r.To)
}
