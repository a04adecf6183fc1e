// Package janitor runs periodic retention sweeps against the registry
// and the result store.
package janitor

import (
	"context"
	"fmt"
	"sync"
	"time"

	taskstate "github.com/goliatone/go-taskstate"

	rcron "github.com/robfig/cron/v3"
)

// Sweep removes expired entries from one component and reports how many
// it dropped.
type Sweep func() int

type namedSweep struct {
	name  string
	sweep Sweep
}

// Janitor owns the cron schedule that fires the registered sweeps. It is
// inert until Start; RunNow works either way.
type Janitor struct {
	mu       sync.Mutex
	cron     *rcron.Cron
	interval time.Duration
	sweeps   []namedSweep
	logger   taskstate.Logger
	entryID  rcron.EntryID
	started  bool
}

// Option customizes janitor construction.
type Option func(*Janitor)

// WithLogger sets the janitor logger.
func WithLogger(logger taskstate.Logger) Option {
	return func(j *Janitor) {
		j.logger = taskstate.NormalizeLogger(logger)
	}
}

// WithInterval overrides how often the sweeps fire.
func WithInterval(interval time.Duration) Option {
	return func(j *Janitor) {
		if interval > 0 {
			j.interval = interval
		}
	}
}

// New constructs a janitor with no sweeps registered.
func New(opts ...Option) *Janitor {
	j := &Janitor{
		interval: time.Hour,
		logger:   taskstate.NormalizeLogger(nil),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(j)
		}
	}
	j.cron = rcron.New(
		rcron.WithChain(rcron.Recover(cronLogger{j.logger})),
	)
	return j
}

// Register adds a named sweep. Registration order is execution order.
func (j *Janitor) Register(name string, sweep Sweep) {
	if sweep == nil {
		return
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	j.sweeps = append(j.sweeps, namedSweep{name: name, sweep: sweep})
}

// Start schedules the sweep loop. Calling Start twice is a no-op.
func (j *Janitor) Start(ctx context.Context) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.started {
		return nil
	}

	id, err := j.cron.AddFunc(fmt.Sprintf("@every %s", j.interval), func() {
		j.RunNow()
	})
	if err != nil {
		return taskstate.WrapError(taskstate.ErrInvalidArgument,
			"failed to schedule retention sweep", err, map[string]any{
				"interval": j.interval.String(),
			})
	}
	j.entryID = id
	j.cron.Start()
	j.started = true
	j.logger.Info("retention sweeps scheduled every %s", j.interval)
	return nil
}

// Stop halts the schedule and waits for an in-flight sweep to finish, or
// for ctx to expire.
func (j *Janitor) Stop(ctx context.Context) error {
	j.mu.Lock()
	if !j.started {
		j.mu.Unlock()
		return nil
	}
	j.started = false
	done := j.cron.Stop()
	j.mu.Unlock()

	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RunNow executes every registered sweep once and returns the total
// number of entries removed.
func (j *Janitor) RunNow() int {
	j.mu.Lock()
	sweeps := make([]namedSweep, len(j.sweeps))
	copy(sweeps, j.sweeps)
	j.mu.Unlock()

	total := 0
	for _, s := range sweeps {
		removed := s.sweep()
		total += removed
		if removed > 0 {
			j.logger.Info("sweep %s removed %d entries", s.name, removed)
		} else {
			j.logger.Trace("sweep %s removed nothing", s.name)
		}
	}
	return total
}

// cronLogger adapts the shared logger to the scheduler's interface so
// panicking sweeps get recovered and reported.
type cronLogger struct {
	logger taskstate.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Trace("%s %v", msg, keysAndValues)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Error("%s: %v %v", msg, err, keysAndValues)
}
