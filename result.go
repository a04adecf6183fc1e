package taskstate

import (
	"time"
)

// PlatformResult is the opaque payload reported by one platform client.
// The shape is platform-specific; values must stay JSON/YAML serializable.
type PlatformResult map[string]any

func (p PlatformResult) clone() PlatformResult {
	if p == nil {
		return nil
	}
	out := make(PlatformResult, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}

// TaskResult is the externally visible snapshot of one tracked task. It is
// correlated with the registry's history only by TaskID; neither side
// holds a reference into the other.
type TaskResult struct {
	TaskID         string                    `json:"task_id" yaml:"task_id"`
	Status         State                     `json:"status" yaml:"status"`
	Message        string                    `json:"message,omitempty" yaml:"message,omitempty"`
	Error          string                    `json:"error,omitempty" yaml:"error,omitempty"`
	FailedPlatform string                    `json:"failed_platform,omitempty" yaml:"failed_platform,omitempty"`
	Results        map[string]PlatformResult `json:"results,omitempty" yaml:"results,omitempty"`
	CreatedAt      time.Time                 `json:"created_at" yaml:"created_at"`
	UpdatedAt      time.Time                 `json:"updated_at" yaml:"updated_at"`
}

// NewTaskResult builds a snapshot stamped with the current UTC time.
func NewTaskResult(taskID string, status State) *TaskResult {
	now := time.Now().UTC()
	return &TaskResult{
		TaskID:    taskID,
		Status:    status,
		Results:   make(map[string]PlatformResult),
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Validate checks structural invariants: non-empty id, known status, and
// error detail present on failed tasks.
func (r *TaskResult) Validate() error {
	if r == nil {
		return WrapError(ErrInvalidArgument, "task result cannot be nil", nil, nil)
	}
	if isBlank(r.TaskID) {
		return WrapError(ErrInvalidArgument, "task id cannot be empty", nil, nil)
	}
	if !r.Status.Valid() {
		return WrapError(ErrInvalidArgument, "unknown status", nil, map[string]any{
			"task_id": r.TaskID,
			"status":  string(r.Status),
		})
	}
	if r.Status == StateFailed && r.Error == "" {
		return WrapError(ErrInvalidArgument, "failed tasks must carry error information", nil, map[string]any{
			"task_id": r.TaskID,
		})
	}
	return nil
}

// UpdateStatus moves the snapshot to the next status after checking the
// transition table, replacing the message and bumping UpdatedAt.
func (r *TaskResult) UpdateStatus(next State, message string) error {
	if err := ValidateTransition(r.Status, next); err != nil {
		return err
	}
	r.Status = next
	r.Message = message
	r.UpdatedAt = time.Now().UTC()
	return nil
}

// AddPlatformResult records the output of one platform and bumps
// UpdatedAt.
func (r *TaskResult) AddPlatformResult(platform string, result PlatformResult) {
	if r.Results == nil {
		r.Results = make(map[string]PlatformResult)
	}
	r.Results[platform] = result.clone()
	r.UpdatedAt = time.Now().UTC()
}

// Clone returns a deep copy so stored records never alias caller memory.
func (r *TaskResult) Clone() *TaskResult {
	if r == nil {
		return nil
	}
	cp := *r
	if r.Results != nil {
		cp.Results = make(map[string]PlatformResult, len(r.Results))
		for platform, res := range r.Results {
			cp.Results[platform] = res.clone()
		}
	}
	return &cp
}
