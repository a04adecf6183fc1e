// Package tracker wires the identity generator, lifecycle registry,
// result store and retention janitor into one ready-to-use component.
package tracker

import (
	"context"

	taskstate "github.com/goliatone/go-taskstate"
	"github.com/goliatone/go-taskstate/identity"
	"github.com/goliatone/go-taskstate/janitor"
	"github.com/goliatone/go-taskstate/registry"
	"github.com/goliatone/go-taskstate/store"
)

// Tracker bundles the task-tracking components behind one entry point.
// Each part stays reachable through its accessor for callers that need
// the finer-grained API.
type Tracker struct {
	cfg    taskstate.Config
	ids    *identity.Generator
	reg    *registry.Registry
	sto    *store.Store
	jan    *janitor.Janitor
	logger taskstate.Logger
}

// Option customizes tracker construction.
type Option func(*Tracker)

// WithLogger sets the logger shared by every component the tracker
// creates.
func WithLogger(logger taskstate.Logger) Option {
	return func(t *Tracker) {
		t.logger = taskstate.NormalizeLogger(logger)
	}
}

// WithConfig replaces the default configuration.
func WithConfig(cfg taskstate.Config) Option {
	return func(t *Tracker) {
		t.cfg = cfg
	}
}

// New builds a tracker from the configuration, validating it first.
func New(opts ...Option) (*Tracker, error) {
	t := &Tracker{
		cfg:    taskstate.DefaultConfig(),
		logger: taskstate.NormalizeLogger(nil),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(t)
		}
	}
	if err := t.cfg.Validate(); err != nil {
		return nil, err
	}

	ids, err := identity.New(t.cfg.Prefix)
	if err != nil {
		return nil, err
	}
	t.ids = ids
	t.reg = registry.New(registry.WithLogger(t.logger))
	t.sto = store.New(store.WithLogger(t.logger))

	if t.cfg.Retention.Enabled {
		states, err := t.cfg.Retention.States()
		if err != nil {
			return nil, err
		}
		maxAge := t.cfg.Retention.MaxAge()
		t.jan = janitor.New(
			janitor.WithLogger(t.logger),
			janitor.WithInterval(t.cfg.Retention.Interval()),
		)
		t.jan.Register("registry", func() int {
			return t.reg.Cleanup(maxAge)
		})
		t.jan.Register("store", func() int {
			return t.sto.Cleanup(maxAge, states...)
		})
	}
	return t, nil
}

// Start begins retention sweeps when they are enabled.
func (t *Tracker) Start(ctx context.Context) error {
	if t.jan == nil {
		return nil
	}
	return t.jan.Start(ctx)
}

// Stop halts retention sweeps.
func (t *Tracker) Stop(ctx context.Context) error {
	if t.jan == nil {
		return nil
	}
	return t.jan.Stop(ctx)
}

// Begin mints a new task id, registers it as pending, and stores the
// initial result snapshot.
func (t *Tracker) Begin(taskType string) (string, error) {
	taskID, err := t.ids.Generate(taskType)
	if err != nil {
		return "", err
	}
	if _, err := t.reg.Initialize(taskID, taskstate.StatePending); err != nil {
		return "", err
	}
	if err := t.sto.Create(taskstate.NewTaskResult(taskID, taskstate.StatePending)); err != nil {
		return "", err
	}
	return taskID, nil
}

// Update transitions the task and mirrors the new status into the result
// store when a snapshot exists.
func (t *Tracker) Update(taskID string, to taskstate.State, message string) error {
	if _, err := t.reg.Transition(taskID, to, message); err != nil {
		return err
	}
	if t.sto.Exists(taskID) {
		return t.sto.UpdateStatus(taskID, to, message)
	}
	return nil
}

// Begin-to-end helpers for the common endings.

// Complete marks the task completed.
func (t *Tracker) Complete(taskID, message string) error {
	return t.Update(taskID, taskstate.StateCompleted, message)
}

// Cancel marks the task cancelled.
func (t *Tracker) Cancel(taskID, message string) error {
	return t.Update(taskID, taskstate.StateCancelled, message)
}

// Fail marks the task failed and records the error detail on the stored
// snapshot.
func (t *Tracker) Fail(taskID, errorDetail, failedPlatform string) error {
	if _, err := t.reg.Transition(taskID, taskstate.StateFailed, errorDetail); err != nil {
		return err
	}
	rec := t.sto.Get(taskID)
	if rec == nil {
		return nil
	}
	if err := rec.UpdateStatus(taskstate.StateFailed, errorDetail); err != nil {
		return err
	}
	rec.Error = errorDetail
	rec.FailedPlatform = failedPlatform
	return t.sto.Update(rec)
}

// RunRetentionNow fires the sweeps immediately, returning how many
// entries were removed. It is safe to call with retention disabled.
func (t *Tracker) RunRetentionNow() int {
	if t.jan == nil {
		return 0
	}
	return t.jan.RunNow()
}

// Identity returns the id generator.
func (t *Tracker) Identity() *identity.Generator {
	return t.ids
}

// Registry returns the lifecycle registry.
func (t *Tracker) Registry() *registry.Registry {
	return t.reg
}

// Store returns the result store.
func (t *Tracker) Store() *store.Store {
	return t.sto
}

// Bus returns the registry's event bus for subscribing listeners.
func (t *Tracker) Bus() *registry.EventBus {
	return t.reg.Bus()
}

// Janitor returns the retention janitor, nil when retention is disabled.
func (t *Tracker) Janitor() *janitor.Janitor {
	return t.jan
}
