// Package store holds the externally visible task result snapshots behind
// a single collection lock. It is independent of the lifecycle registry;
// the two share only the task id space.
package store

import (
	"sync"
	"time"

	taskstate "github.com/goliatone/go-taskstate"
)

// Store is a thread-safe in-memory result store. Records are cloned on
// the way in and out so callers never alias store-owned memory.
type Store struct {
	mu     sync.RWMutex
	tasks  map[string]*taskstate.TaskResult
	logger taskstate.Logger
	now    func() time.Time
}

// Option customizes store construction.
type Option func(*Store)

// WithLogger sets the store logger.
func WithLogger(logger taskstate.Logger) Option {
	return func(s *Store) {
		s.logger = taskstate.NormalizeLogger(logger)
	}
}

// WithClock overrides the time source, mainly for retention tests.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// New constructs an empty store.
func New(opts ...Option) *Store {
	s := &Store{
		tasks:  make(map[string]*taskstate.TaskResult),
		logger: taskstate.NormalizeLogger(nil),
		now:    func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// Create inserts a new record. Missing timestamps are stamped at insert
// time.
func (s *Store) Create(result *taskstate.TaskResult) error {
	if result == nil {
		return storeError("task result cannot be nil", nil)
	}
	if result.TaskID == "" {
		return storeError("empty id", nil)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.tasks[result.TaskID]; exists {
		return storeError("already exists", map[string]any{"task_id": result.TaskID})
	}

	rec := result.Clone()
	now := s.now()
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	if rec.UpdatedAt.Before(rec.CreatedAt) {
		rec.UpdatedAt = rec.CreatedAt
	}
	s.tasks[rec.TaskID] = rec

	s.logger.Debug("stored task %s with status %s", rec.TaskID, rec.Status)
	return nil
}

// Get returns a copy of the record, or nil when the id is unknown. An
// unknown or empty id is not an error.
func (s *Store) Get(taskID string) *taskstate.TaskResult {
	if taskID == "" {
		return nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.tasks[taskID].Clone()
}

// Update replaces the whole record for an existing id.
func (s *Store) Update(result *taskstate.TaskResult) error {
	if result == nil {
		return storeError("task result cannot be nil", nil)
	}
	if result.TaskID == "" {
		return storeError("empty id", nil)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.tasks[result.TaskID]; !exists {
		return storeError("not found", map[string]any{"task_id": result.TaskID})
	}
	s.tasks[result.TaskID] = result.Clone()

	s.logger.Debug("updated task %s with status %s", result.TaskID, result.Status)
	return nil
}

// UpdateStatus bumps an existing record's status under the store lock,
// validating the transition against the table.
func (s *Store) UpdateStatus(taskID string, next taskstate.State, message string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, exists := s.tasks[taskID]
	if !exists {
		return storeError("not found", map[string]any{"task_id": taskID})
	}
	return rec.UpdateStatus(next, message)
}

// AttachPlatformResult records one platform's output on an existing task
// under the store lock.
func (s *Store) AttachPlatformResult(taskID, platform string, result taskstate.PlatformResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, exists := s.tasks[taskID]
	if !exists {
		return storeError("not found", map[string]any{"task_id": taskID})
	}
	rec.AddPlatformResult(platform, result)
	return nil
}

// Delete removes a record, reporting whether anything was removed.
func (s *Store) Delete(taskID string) bool {
	if taskID == "" {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.tasks[taskID]; !exists {
		return false
	}
	delete(s.tasks, taskID)
	s.logger.Debug("deleted task %s", taskID)
	return true
}

// Exists reports whether a record is present.
func (s *Store) Exists(taskID string) bool {
	if taskID == "" {
		return false
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, exists := s.tasks[taskID]
	return exists
}

// List returns an unordered snapshot of records, optionally filtered to
// the given statuses.
func (s *Store) List(statuses ...taskstate.State) []*taskstate.TaskResult {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*taskstate.TaskResult, 0, len(s.tasks))
	for _, rec := range s.tasks {
		if matchesStatus(rec.Status, statuses) {
			out = append(out, rec.Clone())
		}
	}
	return out
}

// ListCreatedAfter returns records created strictly after cutoff.
func (s *Store) ListCreatedAfter(cutoff time.Time) []*taskstate.TaskResult {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*taskstate.TaskResult
	for _, rec := range s.tasks {
		if rec.CreatedAt.After(cutoff) {
			out = append(out, rec.Clone())
		}
	}
	return out
}

// Count returns the number of records, optionally filtered by status.
func (s *Store) Count(statuses ...taskstate.State) int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(statuses) == 0 {
		return len(s.tasks)
	}
	n := 0
	for _, rec := range s.tasks {
		if matchesStatus(rec.Status, statuses) {
			n++
		}
	}
	return n
}

// Cleanup removes records whose CreatedAt is at or beyond maxAge. When a
// status filter is given, only matching records are eligible; everything
// else is retained regardless of age.
func (s *Store) Cleanup(maxAge time.Duration, statuses ...taskstate.State) int {
	cutoff := s.now().Add(-maxAge)

	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for taskID, rec := range s.tasks {
		if rec.CreatedAt.After(cutoff) {
			continue
		}
		if len(statuses) > 0 && !matchesStatus(rec.Status, statuses) {
			continue
		}
		delete(s.tasks, taskID)
		removed++
	}
	if removed > 0 {
		s.logger.Info("cleaned up %d tasks older than %s", removed, maxAge)
	}
	return removed
}

// Clear drops every record and returns how many were held.
func (s *Store) Clear() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := len(s.tasks)
	s.tasks = make(map[string]*taskstate.TaskResult)
	s.logger.Debug("cleared %d tasks", n)
	return n
}

// Stats is an operational snapshot of the store contents.
type Stats struct {
	Total      int
	ByStatus   map[taskstate.State]int
	OldestAge  time.Duration
	NewestAge  time.Duration
	AverageAge time.Duration
}

// Stats summarizes record counts and ages.
func (s *Store) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := Stats{
		Total:    len(s.tasks),
		ByStatus: make(map[taskstate.State]int),
	}
	if stats.Total == 0 {
		return stats
	}

	now := s.now()
	var sum time.Duration
	first := true
	for _, rec := range s.tasks {
		stats.ByStatus[rec.Status]++
		age := now.Sub(rec.CreatedAt)
		sum += age
		if first {
			stats.OldestAge, stats.NewestAge = age, age
			first = false
			continue
		}
		if age > stats.OldestAge {
			stats.OldestAge = age
		}
		if age < stats.NewestAge {
			stats.NewestAge = age
		}
	}
	stats.AverageAge = sum / time.Duration(stats.Total)
	return stats
}

func matchesStatus(status taskstate.State, filter []taskstate.State) bool {
	if len(filter) == 0 {
		return true
	}
	for _, want := range filter {
		if status == want {
			return true
		}
	}
	return false
}

func storeError(message string, metadata map[string]any) error {
	return taskstate.WrapError(taskstate.ErrStore, message, nil, metadata)
}
