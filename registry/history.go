// Package registry tracks the validated lifecycle of tasks: per-task
// transition histories, state-change notifications, and the orchestrating
// façade that ties them together.
package registry

import (
	"fmt"
	"time"

	taskstate "github.com/goliatone/go-taskstate"
)

// History is the ordered, append-only transition log for one task. It
// performs no locking of its own; the owning Registry serializes access.
type History struct {
	taskID  string
	records []taskstate.TransitionRecord
	now     func() time.Time
}

// NewHistory builds an empty history with no current state.
func NewHistory(taskID string) *History {
	return &History{
		taskID: taskID,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// TaskID returns the owning task id.
func (h *History) TaskID() string {
	return h.taskID
}

// Len returns the number of recorded transitions.
func (h *History) Len() int {
	return len(h.records)
}

// CurrentState derives the task's state from the last record; it is empty
// while the history has no records.
func (h *History) CurrentState() taskstate.State {
	if len(h.records) == 0 {
		return ""
	}
	return h.records[len(h.records)-1].To
}

// Records returns a copy of the transition log.
func (h *History) Records() []taskstate.TransitionRecord {
	out := make([]taskstate.TransitionRecord, len(h.records))
	copy(out, h.records)
	return out
}

// Append validates sequencing and legality, then adds the record. The
// record's From must match the current state (except for the seed record),
// and the edge must be in the transition table unless the record is a
// rollback.
func (h *History) Append(rec taskstate.TransitionRecord) error {
	if len(h.records) > 0 {
		if current := h.CurrentState(); rec.From != current {
			return taskstate.WrapError(taskstate.ErrIllegalTransition,
				"record from-state does not match current state", nil, map[string]any{
					"task_id": h.taskID,
					"from":    string(rec.From),
					"current": string(current),
				})
		}
	}
	if err := rec.Validate(); err != nil {
		return err
	}
	h.records = append(h.records, rec)
	return nil
}

// DurationIn sums the wall-clock time the task spent in state across every
// visit, counting the still-open interval for the active state.
func (h *History) DurationIn(state taskstate.State) time.Duration {
	var total time.Duration
	for i, rec := range h.records {
		if rec.To != state {
			continue
		}
		end := h.now()
		if i+1 < len(h.records) {
			end = h.records[i+1].Timestamp
		}
		if d := end.Sub(rec.Timestamp); d > 0 {
			total += d
		}
	}
	return total
}

// Visited reports whether state ever appears as a destination in the log.
func (h *History) Visited(state taskstate.State) bool {
	for _, rec := range h.records {
		if rec.To == state {
			return true
		}
	}
	return false
}

// RollbackTo appends an escape-hatch transition back to a previously
// visited state, bypassing the legality table. This is the recovery path
// from terminal Failed back to the last known-good in-flight state.
func (h *History) RollbackTo(target taskstate.State, message string) (taskstate.TransitionRecord, error) {
	if !h.Visited(target) {
		return taskstate.TransitionRecord{}, taskstate.WrapError(taskstate.ErrUnknownState,
			"cannot rollback to a state not in history", nil, map[string]any{
				"task_id": h.taskID,
				"target":  string(target),
			})
	}
	if message == "" {
		message = fmt.Sprintf("rollback to %s", target)
	}
	rec := taskstate.TransitionRecord{
		From:      h.CurrentState(),
		To:        target,
		Timestamp: h.now(),
		Message:   message,
		Rollback:  true,
	}
	if err := h.Append(rec); err != nil {
		return taskstate.TransitionRecord{}, err
	}
	return rec, nil
}
