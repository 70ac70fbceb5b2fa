package task

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunnerExecutesSubmittedTasks(t *testing.T) {
	r := NewRunner(Config{Workers: 2}, nil)
	r.Start()

	var ran atomic.Int32
	done := make(chan struct{})
	for i := 0; i < 5; i++ {
		require.NoError(t, r.Submit(NewFunc("count", func(ctx context.Context) error {
			if ran.Add(1) == 5 {
				close(done)
			}
			return nil
		})))
	}

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("tasks did not run")
	}
	r.Stop()
	assert.Equal(t, int32(5), ran.Load())
}

func TestRunnerSurfacesErrorsOnChannel(t *testing.T) {
	r := NewRunner(Config{Workers: 1}, nil)
	r.Start()

	boom := errors.New("boom")
	require.NoError(t, r.Submit(NewFunc("failing", func(ctx context.Context) error {
		return boom
	})))

	select {
	case te := <-r.Errors():
		assert.ErrorIs(t, te.Err, boom)
		assert.Equal(t, "failing", te.Task.Type())
	case <-time.After(2 * time.Second):
		t.Fatal("no error surfaced")
	}
	r.Stop()
}

func TestRunnerRejectsAfterStop(t *testing.T) {
	r := NewRunner(Config{}, nil)
	r.Start()
	r.Stop()

	err := r.Submit(NewFunc("late", func(ctx context.Context) error { return nil }))
	assert.ErrorIs(t, err, ErrStopped)
}

func TestRunnerRejectsWhenQueueFull(t *testing.T) {
	// One worker stuck on a blocking task, queue of one.
	r := NewRunner(Config{Workers: 1, QueueSize: 1}, nil)
	r.Start()
	t.Cleanup(r.Stop)

	started := make(chan struct{})
	release := make(chan struct{})
	require.NoError(t, r.Submit(NewFunc("blocker", func(ctx context.Context) error {
		close(started)
		<-release
		return nil
	})))
	<-started

	require.NoError(t, r.Submit(NewFunc("queued", func(ctx context.Context) error { return nil })))
	err := r.Submit(NewFunc("overflow", func(ctx context.Context) error { return nil }))
	assert.ErrorIs(t, err, ErrQueueFull)
	close(release)
}

func TestRunnerCancelsTasksOnStop(t *testing.T) {
	r := NewRunner(Config{Workers: 1}, nil)
	r.Start()

	cancelled := make(chan struct{})
	started := make(chan struct{})
	require.NoError(t, r.Submit(NewFunc("long", func(ctx context.Context) error {
		close(started)
		<-ctx.Done()
		close(cancelled)
		return ctx.Err()
	})))
	<-started

	go r.Stop()
	select {
	case <-cancelled:
	case <-time.After(2 * time.Second):
		t.Fatal("task context was not cancelled")
	}
}

func TestErrorsChannelClosesAfterStop(t *testing.T) {
	r := NewRunner(Config{}, nil)
	r.Start()
	r.Stop()

	_, open := <-r.Errors()
	assert.False(t, open)
}
