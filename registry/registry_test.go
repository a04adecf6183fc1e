package registry

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	taskstate "github.com/goliatone/go-taskstate"
)

func TestRegistryInitialize(t *testing.T) {
	r := New()

	rec, err := r.Initialize("task_1", taskstate.StatePending)
	require.NoError(t, err)
	assert.True(t, rec.Initial())
	assert.Equal(t, taskstate.StatePending, rec.To)

	state, err := r.CurrentState("task_1")
	require.NoError(t, err)
	assert.Equal(t, taskstate.StatePending, state)

	_, err = r.Initialize("task_1", taskstate.StatePending)
	require.Error(t, err)
	assert.True(t, taskstate.IsAlreadyExists(err))

	_, err = r.Initialize("", taskstate.StatePending)
	require.Error(t, err)
	assert.True(t, taskstate.IsInvalidArgument(err))

	_, err = r.Initialize("task_2", "archived")
	require.Error(t, err)
	assert.True(t, taskstate.IsInvalidArgument(err))
}

func TestRegistryTransition(t *testing.T) {
	r := New()
	_, err := r.Initialize("task_1", taskstate.StatePending)
	require.NoError(t, err)

	rec, err := r.Transition("task_1", taskstate.StateInProgress, "picked up")
	require.NoError(t, err)
	assert.Equal(t, taskstate.StatePending, rec.From)
	assert.Equal(t, "picked up", rec.Message)

	_, err = r.Transition("task_1", taskstate.StatePending, "")
	require.Error(t, err)
	assert.True(t, taskstate.IsIllegalTransition(err))

	state, err := r.CurrentState("task_1")
	require.NoError(t, err)
	assert.Equal(t, taskstate.StateInProgress, state, "failed transition must not mutate")

	_, err = r.Transition("missing", taskstate.StateInProgress, "")
	require.Error(t, err)
	assert.True(t, taskstate.IsNotFound(err))
}

func TestRegistryCompletedIsFinal(t *testing.T) {
	r := New()
	_, err := r.Initialize("task_1", taskstate.StatePending)
	require.NoError(t, err)
	_, err = r.Transition("task_1", taskstate.StateInProgress, "")
	require.NoError(t, err)
	_, err = r.Transition("task_1", taskstate.StateCompleted, "")
	require.NoError(t, err)

	_, err = r.Transition("task_1", taskstate.StatePending, "")
	require.Error(t, err)
	assert.True(t, taskstate.IsIllegalTransition(err))

	_, err = r.Transition("task_1", taskstate.StateCompleted, "confirm")
	assert.NoError(t, err, "terminal self-loop is idempotent")
}

func TestRegistryRollbackRoundTrip(t *testing.T) {
	r := New()
	_, err := r.Initialize("task_1", taskstate.StatePending)
	require.NoError(t, err)
	_, err = r.Transition("task_1", taskstate.StateInProgress, "")
	require.NoError(t, err)
	_, err = r.Transition("task_1", taskstate.StateFailed, "upload timed out")
	require.NoError(t, err)

	rec, err := r.Rollback("task_1", taskstate.StateInProgress, "retrying")
	require.NoError(t, err)
	assert.True(t, rec.Rollback)

	_, err = r.Transition("task_1", taskstate.StateCompleted, "retry succeeded")
	require.NoError(t, err)

	records, err := r.Records("task_1")
	require.NoError(t, err)
	require.Len(t, records, 5)
	assert.Equal(t, taskstate.StateCompleted, records[4].To)

	_, err = r.Rollback("task_1", "archived", "")
	require.Error(t, err)
	assert.True(t, taskstate.IsUnknownState(err), "never-visited target is rejected")

	_, err = r.Rollback("missing", taskstate.StatePending, "")
	require.Error(t, err)
	assert.True(t, taskstate.IsNotFound(err))
}

func TestRegistryPublishesTransitions(t *testing.T) {
	r := New()

	var mu sync.Mutex
	var seen []string
	r.Bus().Subscribe(taskstate.StateCompleted, func(taskID string, rec taskstate.TransitionRecord) {
		mu.Lock()
		defer mu.Unlock()
		seen = append(seen, fmt.Sprintf("%s:%s", taskID, rec.To))
	})

	_, err := r.Initialize("task_1", taskstate.StatePending)
	require.NoError(t, err)
	_, err = r.Transition("task_1", taskstate.StateInProgress, "")
	require.NoError(t, err)
	_, err = r.Transition("task_1", taskstate.StateCompleted, "")
	require.NoError(t, err)

	assert.Equal(t, []string{"task_1:completed"}, seen)
}

func TestRegistryListenerCanTouchOtherTasks(t *testing.T) {
	r := New()
	_, err := r.Initialize("task_a", taskstate.StatePending)
	require.NoError(t, err)
	_, err = r.Initialize("task_b", taskstate.StatePending)
	require.NoError(t, err)

	// Events fire after the registry lock is released, so a listener may
	// transition a different task.
	r.Bus().Subscribe(taskstate.StateCancelled, func(taskID string, rec taskstate.TransitionRecord) {
		if taskID == "task_a" {
			_, _ = r.Transition("task_b", taskstate.StateCancelled, "cascade")
		}
	})

	_, err = r.Transition("task_a", taskstate.StateCancelled, "")
	require.NoError(t, err)

	state, err := r.CurrentState("task_b")
	require.NoError(t, err)
	assert.Equal(t, taskstate.StateCancelled, state)
}

func TestRegistryStatistics(t *testing.T) {
	r := New()
	assert.Equal(t, map[taskstate.State]int{
		taskstate.StatePending:    0,
		taskstate.StateInProgress: 0,
		taskstate.StateCompleted:  0,
		taskstate.StateFailed:     0,
		taskstate.StateCancelled:  0,
	}, r.Statistics(), "all states reported even when empty")

	for i := 0; i < 3; i++ {
		_, err := r.Initialize(fmt.Sprintf("task_%d", i), taskstate.StatePending)
		require.NoError(t, err)
	}
	_, err := r.Transition("task_0", taskstate.StateInProgress, "")
	require.NoError(t, err)
	_, err = r.Transition("task_0", taskstate.StateCompleted, "")
	require.NoError(t, err)

	stats := r.Statistics()
	assert.Equal(t, 2, stats[taskstate.StatePending])
	assert.Equal(t, 1, stats[taskstate.StateCompleted])
	assert.Equal(t, 3, r.Len())
}

func TestRegistryCleanupOnlyRemovesFinishedHistories(t *testing.T) {
	base := time.Date(2026, 8, 24, 10, 0, 0, 0, time.UTC)
	now := base
	r := New(WithClock(func() time.Time { return now }))

	_, err := r.Initialize("old_done", taskstate.StatePending)
	require.NoError(t, err)
	_, err = r.Transition("old_done", taskstate.StateInProgress, "")
	require.NoError(t, err)
	_, err = r.Transition("old_done", taskstate.StateCompleted, "")
	require.NoError(t, err)

	_, err = r.Initialize("old_running", taskstate.StatePending)
	require.NoError(t, err)
	_, err = r.Transition("old_running", taskstate.StateInProgress, "")
	require.NoError(t, err)

	now = base.Add(48 * time.Hour)
	_, err = r.Initialize("fresh_done", taskstate.StatePending)
	require.NoError(t, err)
	_, err = r.Transition("fresh_done", taskstate.StateCancelled, "")
	require.NoError(t, err)

	removed := r.Cleanup(24 * time.Hour)
	assert.Equal(t, 1, removed)
	assert.False(t, r.Has("old_done"))
	assert.True(t, r.Has("old_running"), "in-flight histories survive any age")
	assert.True(t, r.Has("fresh_done"))
}

func TestRegistryConcurrentTransitions(t *testing.T) {
	r := New()

	const workers = 10
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		id := fmt.Sprintf("task_%d", i)
		_, err := r.Initialize(id, taskstate.StatePending)
		require.NoError(t, err)

		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			if _, err := r.Transition(id, taskstate.StateInProgress, ""); err != nil {
				t.Error(err)
				return
			}
			if _, err := r.Transition(id, taskstate.StateCompleted, ""); err != nil {
				t.Error(err)
			}
		}(id)
	}
	wg.Wait()

	stats := r.Statistics()
	assert.Equal(t, workers, stats[taskstate.StateCompleted])
}

func TestRegistryDurationIn(t *testing.T) {
	base := time.Date(2026, 8, 24, 10, 0, 0, 0, time.UTC)
	now := base
	r := New(WithClock(func() time.Time { return now }))

	_, err := r.Initialize("task_1", taskstate.StatePending)
	require.NoError(t, err)

	now = base.Add(5 * time.Minute)
	_, err = r.Transition("task_1", taskstate.StateInProgress, "")
	require.NoError(t, err)

	now = base.Add(9 * time.Minute)
	d, err := r.DurationIn("task_1", taskstate.StatePending)
	require.NoError(t, err)
	assert.Equal(t, 5*time.Minute, d)

	d, err = r.DurationIn("task_1", taskstate.StateInProgress)
	require.NoError(t, err)
	assert.Equal(t, 4*time.Minute, d)

	_, err = r.DurationIn("missing", taskstate.StatePending)
	require.Error(t, err)
	assert.True(t, taskstate.IsNotFound(err))
}
