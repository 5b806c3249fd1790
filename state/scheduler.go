package state

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync/atomic"
	"time"

	"github.com/encodeous/tollmesh/perf"
	"github.com/google/uuid"
)

// Task is a periodic unit of work. At most one run of a Task is in flight at any time.
type Task struct {
	Name     string
	Interval time.Duration
	// Timeout bounds a single run, zero means no deadline
	Timeout time.Duration
	Run     func(ctx context.Context) error

	running atomic.Bool
}

// ErrTaskBusy is returned by Trigger when the previous run has not completed
var ErrTaskBusy = errors.New("task is already running")

// Trigger runs the task once. It never panics, a panic in Run is returned as an error.
func (t *Task) Trigger(ctx context.Context) (err error) {
	if !t.running.CompareAndSwap(false, true) {
		return ErrTaskBusy
	}
	defer t.running.Store(false)

	if t.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.Timeout)
		defer cancel()
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic in task %s: %v\n%s", t.Name, r, debug.Stack())
		}
	}()
	return t.Run(ctx)
}

func (t *Task) Running() bool {
	return t.running.Load()
}

func (e *Env) runTask(t *Task) {
	log := e.Log.With("task", t.Name, "tick", uuid.NewString())
	start := time.Now()
	err := t.Trigger(e.Context)
	elapsed := time.Since(start)
	perf.TickLatency.Add(float64(elapsed.Milliseconds()))
	switch {
	case err == nil:
		log.Debug("task done", "elapsed", elapsed)
	case errors.Is(err, ErrTaskBusy):
		log.Debug("skipped tick, previous run still in flight")
	case e.Context.Err() != nil:
		// shutting down
	case IsRetryable(err):
		perf.TicksFailed.Add(1)
		log.Warn("task failed, retrying next tick", "error", err, "elapsed", elapsed)
	default:
		perf.TicksFailed.Add(1)
		log.Error("task failed", "error", err, "elapsed", elapsed)
	}
}

func (e *Env) repeatedTask(t *Task) {
	defer e.tasks.Done()
	ticker := time.NewTicker(t.Interval)
	defer ticker.Stop()
	for e.Context.Err() == nil {
		e.runTask(t)
		select {
		case <-e.Context.Done():
			return
		case <-ticker.C:
		}
	}
}

// RepeatTask runs t immediately and then every t.Interval until the context is cancelled.
// Ticks that arrive while a run is in progress are dropped.
func (e *Env) RepeatTask(t *Task) {
	e.tasks.Add(1)
	go e.repeatedTask(t)
}

// ScheduleTask runs t once after delay
func (e *Env) ScheduleTask(t *Task, delay time.Duration) {
	e.tasks.Add(1)
	go func() {
		defer e.tasks.Done()
		select {
		case <-e.Context.Done():
		case <-time.After(delay):
			e.runTask(t)
		}
	}()
}

// Go runs fn on its own goroutine. Wait also waits for it to return.
func (e *Env) Go(fn func(ctx context.Context)) {
	e.tasks.Add(1)
	go func() {
		defer e.tasks.Done()
		fn(e.Context)
	}()
}
