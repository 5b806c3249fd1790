package state

import (
	"context"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func testEnv(t *testing.T) *Env {
	t.Helper()
	ctx, cancel := context.WithCancelCause(context.Background())
	t.Cleanup(func() { cancel(context.Canceled) })
	return &Env{
		Context: ctx,
		Cancel:  cancel,
		Log:     slog.New(slog.DiscardHandler),
	}
}

func TestTriggerSkipsWhileRunning(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{})
	task := &Task{
		Name: "slow",
		Run: func(ctx context.Context) error {
			close(started)
			<-release
			return nil
		},
	}

	done := make(chan error)
	go func() {
		done <- task.Trigger(context.Background())
	}()
	<-started
	assert.True(t, task.Running())
	assert.ErrorIs(t, task.Trigger(context.Background()), ErrTaskBusy)

	close(release)
	assert.NoError(t, <-done)
	assert.False(t, task.Running())
}

func TestTriggerRecoversPanic(t *testing.T) {
	task := &Task{
		Name: "boom",
		Run: func(ctx context.Context) error {
			panic("kaboom")
		},
	}
	err := task.Trigger(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "kaboom")
	assert.False(t, task.Running())
}

func TestTriggerTimeout(t *testing.T) {
	task := &Task{
		Name:    "stuck",
		Timeout: 20 * time.Millisecond,
		Run: func(ctx context.Context) error {
			<-ctx.Done()
			return ctx.Err()
		},
	}
	err := task.Trigger(context.Background())
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.True(t, IsRetryable(err))
}

func TestRepeatTask(t *testing.T) {
	defer goleak.VerifyNone(t)
	env := testEnv(t)

	var count atomic.Int32
	env.RepeatTask(&Task{
		Name:     "count",
		Interval: 10 * time.Millisecond,
		Run: func(ctx context.Context) error {
			if count.Add(1) >= 3 {
				env.Cancel(context.Canceled)
			}
			return nil
		},
	})
	env.Wait()
	assert.Equal(t, int32(3), count.Load())
}

func TestRepeatTaskSurvivesErrors(t *testing.T) {
	defer goleak.VerifyNone(t)
	env := testEnv(t)

	var count atomic.Int32
	env.RepeatTask(&Task{
		Name:     "failing",
		Interval: 5 * time.Millisecond,
		Run: func(ctx context.Context) error {
			n := count.Add(1)
			if n >= 3 {
				env.Cancel(context.Canceled)
				return nil
			}
			if n == 1 {
				panic("first tick blew up")
			}
			return &TransportError{Op: "dial", Err: context.DeadlineExceeded}
		},
	})
	env.Wait()
	assert.Equal(t, int32(3), count.Load())
}

func TestScheduleTask(t *testing.T) {
	defer goleak.VerifyNone(t)
	env := testEnv(t)

	ran := make(chan struct{})
	env.ScheduleTask(&Task{
		Name: "once",
		Run: func(ctx context.Context) error {
			close(ran)
			return nil
		},
	}, 10*time.Millisecond)

	select {
	case <-ran:
	case <-time.After(time.Second):
		t.Fatal("scheduled task did not run")
	}
	env.Wait()
}
