package store

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	taskstate "github.com/goliatone/go-taskstate"
)

func TestStoreCreateAndGet(t *testing.T) {
	s := New()

	rec := taskstate.NewTaskResult("task_1", taskstate.StatePending)
	require.NoError(t, s.Create(rec))
	assert.True(t, s.Exists("task_1"))
	assert.Equal(t, 1, s.Count())

	got := s.Get("task_1")
	require.NotNil(t, got)
	assert.Equal(t, taskstate.StatePending, got.Status)
	assert.False(t, got.CreatedAt.IsZero())

	assert.Nil(t, s.Get("missing"))
	assert.Nil(t, s.Get(""))
}

func TestStoreCreateRejections(t *testing.T) {
	s := New()

	err := s.Create(nil)
	require.Error(t, err)
	assert.True(t, taskstate.IsStoreError(err))

	err = s.Create(&taskstate.TaskResult{})
	require.Error(t, err)
	assert.True(t, taskstate.IsStoreError(err))

	require.NoError(t, s.Create(taskstate.NewTaskResult("task_1", taskstate.StatePending)))
	err = s.Create(taskstate.NewTaskResult("task_1", taskstate.StatePending))
	require.Error(t, err)
	assert.True(t, taskstate.IsStoreError(err))
}

func TestStoreGetReturnsCopy(t *testing.T) {
	s := New()
	rec := taskstate.NewTaskResult("task_1", taskstate.StateInProgress)
	rec.AddPlatformResult("youtube", taskstate.PlatformResult{"video_id": "abc"})
	require.NoError(t, s.Create(rec))

	got := s.Get("task_1")
	got.Status = taskstate.StateFailed
	got.Results["youtube"]["video_id"] = "mutated"

	fresh := s.Get("task_1")
	assert.Equal(t, taskstate.StateInProgress, fresh.Status)
	assert.Equal(t, "abc", fresh.Results["youtube"]["video_id"])
}

func TestStoreUpdate(t *testing.T) {
	s := New()
	require.NoError(t, s.Create(taskstate.NewTaskResult("task_1", taskstate.StatePending)))

	rec := s.Get("task_1")
	rec.Status = taskstate.StateInProgress
	rec.Message = "working"
	require.NoError(t, s.Update(rec))
	assert.Equal(t, taskstate.StateInProgress, s.Get("task_1").Status)

	err := s.Update(taskstate.NewTaskResult("missing", taskstate.StatePending))
	require.Error(t, err)
	assert.True(t, taskstate.IsStoreError(err))
}

func TestStoreUpdateStatus(t *testing.T) {
	s := New()
	require.NoError(t, s.Create(taskstate.NewTaskResult("task_1", taskstate.StatePending)))

	require.NoError(t, s.UpdateStatus("task_1", taskstate.StateInProgress, "working"))
	assert.Equal(t, taskstate.StateInProgress, s.Get("task_1").Status)

	err := s.UpdateStatus("task_1", taskstate.StatePending, "")
	require.Error(t, err)
	assert.True(t, taskstate.IsIllegalTransition(err))

	err = s.UpdateStatus("missing", taskstate.StateInProgress, "")
	require.Error(t, err)
	assert.True(t, taskstate.IsStoreError(err))
}

func TestStoreAttachPlatformResult(t *testing.T) {
	s := New()
	require.NoError(t, s.Create(taskstate.NewTaskResult("task_1", taskstate.StateInProgress)))

	require.NoError(t, s.AttachPlatformResult("task_1", "tiktok", taskstate.PlatformResult{"post_id": "xyz"}))
	got := s.Get("task_1")
	assert.Equal(t, "xyz", got.Results["tiktok"]["post_id"])

	err := s.AttachPlatformResult("missing", "tiktok", nil)
	require.Error(t, err)
	assert.True(t, taskstate.IsStoreError(err))
}

func TestStoreDelete(t *testing.T) {
	s := New()
	require.NoError(t, s.Create(taskstate.NewTaskResult("task_1", taskstate.StatePending)))

	assert.True(t, s.Delete("task_1"))
	assert.False(t, s.Delete("task_1"))
	assert.False(t, s.Delete(""))
	assert.False(t, s.Exists("task_1"))
}

func TestStoreListAndCount(t *testing.T) {
	s := New()
	require.NoError(t, s.Create(taskstate.NewTaskResult("task_1", taskstate.StatePending)))
	require.NoError(t, s.Create(taskstate.NewTaskResult("task_2", taskstate.StateCompleted)))
	require.NoError(t, s.Create(taskstate.NewTaskResult("task_3", taskstate.StateCompleted)))

	assert.Len(t, s.List(), 3)
	assert.Len(t, s.List(taskstate.StateCompleted), 2)
	assert.Len(t, s.List(taskstate.StateFailed), 0)
	assert.Len(t, s.List(taskstate.StatePending, taskstate.StateCompleted), 3)

	assert.Equal(t, 3, s.Count())
	assert.Equal(t, 2, s.Count(taskstate.StateCompleted))
}

func TestStoreListCreatedAfter(t *testing.T) {
	base := time.Date(2026, 8, 24, 10, 0, 0, 0, time.UTC)
	now := base
	s := New(WithClock(func() time.Time { return now }))

	old := &taskstate.TaskResult{TaskID: "old", Status: taskstate.StatePending}
	require.NoError(t, s.Create(old))

	now = base.Add(time.Hour)
	fresh := &taskstate.TaskResult{TaskID: "fresh", Status: taskstate.StatePending}
	require.NoError(t, s.Create(fresh))

	got := s.ListCreatedAfter(base)
	require.Len(t, got, 1)
	assert.Equal(t, "fresh", got[0].TaskID)
}

func TestStoreCleanupWithStatusFilter(t *testing.T) {
	base := time.Date(2026, 8, 24, 10, 0, 0, 0, time.UTC)
	now := base
	s := New(WithClock(func() time.Time { return now }))

	for i, status := range []taskstate.State{
		taskstate.StateCompleted,
		taskstate.StateFailed,
		taskstate.StateInProgress,
	} {
		rec := &taskstate.TaskResult{TaskID: fmt.Sprintf("old_%d", i), Status: status}
		require.NoError(t, s.Create(rec))
	}

	now = base.Add(48 * time.Hour)
	require.NoError(t, s.Create(&taskstate.TaskResult{TaskID: "fresh", Status: taskstate.StateCompleted}))

	removed := s.Cleanup(24*time.Hour, taskstate.StateCompleted, taskstate.StateFailed)
	assert.Equal(t, 2, removed, "only old records matching the filter go")
	assert.True(t, s.Exists("old_2"), "in-progress record survives the filter")
	assert.True(t, s.Exists("fresh"))
	assert.Equal(t, 2, s.Count())
}

func TestStoreCleanupWithoutFilter(t *testing.T) {
	base := time.Date(2026, 8, 24, 10, 0, 0, 0, time.UTC)
	now := base
	s := New(WithClock(func() time.Time { return now }))

	require.NoError(t, s.Create(&taskstate.TaskResult{TaskID: "old", Status: taskstate.StateInProgress}))
	now = base.Add(48 * time.Hour)

	assert.Equal(t, 1, s.Cleanup(24*time.Hour))
	assert.Equal(t, 0, s.Count())
}

func TestStoreClear(t *testing.T) {
	s := New()
	require.NoError(t, s.Create(taskstate.NewTaskResult("task_1", taskstate.StatePending)))
	require.NoError(t, s.Create(taskstate.NewTaskResult("task_2", taskstate.StatePending)))

	assert.Equal(t, 2, s.Clear())
	assert.Equal(t, 0, s.Count())
	assert.Equal(t, 0, s.Clear())
}

func TestStoreStats(t *testing.T) {
	base := time.Date(2026, 8, 24, 10, 0, 0, 0, time.UTC)
	now := base
	s := New(WithClock(func() time.Time { return now }))

	assert.Equal(t, 0, s.Stats().Total)

	require.NoError(t, s.Create(&taskstate.TaskResult{TaskID: "a", Status: taskstate.StateCompleted}))
	now = base.Add(time.Hour)
	require.NoError(t, s.Create(&taskstate.TaskResult{TaskID: "b", Status: taskstate.StateCompleted}))
	require.NoError(t, s.Create(&taskstate.TaskResult{TaskID: "c", Status: taskstate.StatePending}))
	now = base.Add(2 * time.Hour)

	stats := s.Stats()
	assert.Equal(t, 3, stats.Total)
	assert.Equal(t, 2, stats.ByStatus[taskstate.StateCompleted])
	assert.Equal(t, 1, stats.ByStatus[taskstate.StatePending])
	assert.Equal(t, 2*time.Hour, stats.OldestAge)
	assert.Equal(t, time.Hour, stats.NewestAge)
}

func TestStoreConcurrentCreates(t *testing.T) {
	s := New()

	const workers = 10
	const perWorker = 5

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				rec := taskstate.NewTaskResult(fmt.Sprintf("task_%d_%d", w, i), taskstate.StatePending)
				if err := s.Create(rec); err != nil {
					t.Error(err)
				}
			}
		}(w)
	}
	wg.Wait()

	assert.Equal(t, workers*perWorker, s.Count())
}
