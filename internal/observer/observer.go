// Package observer defines the progress notifications emitted while a
// pipeline runs and provides the stock observers: a no-op, a fan-out, a
// function adapter, a structured logger and a live terminal table.
//
// The executor delivers, per step, OnStart followed by exactly one of
// OnFinish or OnFail. Notifications for one run are never concurrent.
package observer

import (
	"log/slog"
	"sync"
	"time"
)

// Observer receives per-step lifecycle notifications.
type Observer interface {
	OnStart(stepID string)
	OnFinish(stepID string)
	OnFail(stepID, message string)
}

// Nop ignores every notification.
type Nop struct{}

func (Nop) OnStart(string) {}
func (Nop) OnFinish(string) {}
func (Nop) OnFail(string, string) {}

type multi []Observer

// Multi fans every notification out to obs in order. Nil entries are
// skipped.
func Multi(obs ...Observer) Observer {
	m := make(multi, 0, len(obs))
	for _, o := range obs {
		if o != nil {
			m = append(m, o)
		}
	}
	return m
}

func (m multi) OnStart(stepID string) {
	for _, o := range m {
		o.OnStart(stepID)
	}
}

func (m multi) OnFinish(stepID string) {
	for _, o := range m {
		o.OnFinish(stepID)
	}
}

func (m multi) OnFail(stepID, message string) {
	for _, o := range m {
		o.OnFail(stepID, message)
	}
}

// Funcs adapts plain functions to Observer. Nil fields are ignored.
type Funcs struct {
	Start  func(stepID string)
	Finish func(stepID string)
	Fail   func(stepID, message string)
}

func (f Funcs) OnStart(stepID string) {
	if f.Start != nil {
		f.Start(stepID)
	}
}

func (f Funcs) OnFinish(stepID string) {
	if f.Finish != nil {
		f.Finish(stepID)
	}
}

func (f Funcs) OnFail(stepID, message string) {
	if f.Fail != nil {
		f.Fail(stepID, message)
	}
}

// LogObserver writes each notification to a slog.Logger.
type LogObserver struct {
	logger *slog.Logger
	runID  string

	mu      sync.Mutex
	started map[string]time.Time
}

// NewLogObserver returns an observer logging under the given run id.
// A nil logger means slog.Default().
func NewLogObserver(logger *slog.Logger, runID string) *LogObserver {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogObserver{
		logger:  logger,
		runID:   runID,
		started: make(map[string]time.Time),
	}
}

func (o *LogObserver) OnStart(stepID string) {
	o.mu.Lock()
	o.started[stepID] = time.Now()
	o.mu.Unlock()
	o.logger.Info("step started", "run_id", o.runID, "step", stepID)
}

func (o *LogObserver) OnFinish(stepID string) {
	o.logger.Info("step finished", "run_id", o.runID, "step", stepID, "duration", o.elapsed(stepID))
}

func (o *LogObserver) OnFail(stepID, message string) {
	o.logger.Warn("step failed", "run_id", o.runID, "step", stepID,
		"duration", o.elapsed(stepID), "error", message)
}

func (o *LogObserver) elapsed(stepID string) time.Duration {
	o.mu.Lock()
	defer o.mu.Unlock()
	start, ok := o.started[stepID]
	if !ok {
		return 0
	}
	delete(o.started, stepID)
	return time.Since(start).Round(time.Millisecond)
}
