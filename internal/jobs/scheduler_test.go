package jobs

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSchedulerRunsJobs(t *testing.T) {
	s := New(Config{Workers: 2, QueueSize: 8}, nil, nil)
	defer stop(t, s)

	var ran atomic.Int32
	done := make(chan struct{})
	for i := 0; i < 5; i++ {
		last := i == 4
		require.NoError(t, s.Submit(Job{
			Name: "test",
			Run: func(ctx context.Context) error {
				if ran.Add(1) == 5 && last {
					close(done)
				}
				return nil
			},
		}))
	}

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatalf("jobs did not finish, ran %d", ran.Load())
	}
}

func TestSchedulerQueueOverflow(t *testing.T) {
	block := make(chan struct{})
	s := New(Config{Workers: 1, QueueSize: 1}, nil, nil)
	defer stop(t, s)
	defer close(block)

	blocking := Job{Name: "blocker", Run: func(ctx context.Context) error {
		<-block
		return nil
	}}

	// First job occupies the worker, second fills the queue.
	require.NoError(t, s.Submit(blocking))
	waitForQueueDrain(t, s)
	require.NoError(t, s.Submit(blocking))

	err := s.Submit(Job{Name: "overflow", Run: func(ctx context.Context) error { return nil }})
	assert.ErrorIs(t, err, ErrBusy)
}

func TestSchedulerSoftDeadline(t *testing.T) {
	s := New(Config{Workers: 1, QueueSize: 1, SoftDeadline: 50 * time.Millisecond}, nil, nil)
	defer stop(t, s)

	observed := make(chan error, 1)
	require.NoError(t, s.Submit(Job{
		Name: "slow",
		Run: func(ctx context.Context) error {
			<-ctx.Done()
			observed <- ctx.Err()
			return ctx.Err()
		},
	}))

	select {
	case err := <-observed:
		assert.ErrorIs(t, err, context.DeadlineExceeded)
	case <-time.After(5 * time.Second):
		t.Fatal("job never observed its deadline")
	}
}

func TestSchedulerStopCancelsRunningJobs(t *testing.T) {
	s := New(Config{Workers: 1, QueueSize: 1}, nil, nil)

	started := make(chan struct{})
	require.NoError(t, s.Submit(Job{
		Name: "running",
		Run: func(ctx context.Context) error {
			close(started)
			<-ctx.Done()
			return ctx.Err()
		},
	}))
	<-started

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, s.Stop(ctx))

	err := s.Submit(Job{Name: "late", Run: func(ctx context.Context) error { return nil }})
	assert.ErrorIs(t, err, ErrStopped)
}

func TestSchedulerSubmitDuringStopDoesNotPanic(t *testing.T) {
	for i := 0; i < 50; i++ {
		s := New(Config{Workers: 2, QueueSize: 4}, nil, nil)

		submitted := make(chan struct{})
		go func() {
			defer close(submitted)
			for j := 0; j < 20; j++ {
				err := s.Submit(Job{Name: "racer", Run: func(ctx context.Context) error { return nil }})
				if errors.Is(err, ErrStopped) {
					return
				}
			}
		}()

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		require.NoError(t, s.Stop(ctx))
		cancel()
		<-submitted
	}
}

func TestSchedulerStopIsIdempotent(t *testing.T) {
	s := New(Config{Workers: 1, QueueSize: 1}, nil, nil)
	ctx := context.Background()
	require.NoError(t, s.Stop(ctx))
	require.NoError(t, s.Stop(ctx))
}

func stop(t *testing.T, s *Scheduler) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.Stop(ctx); err != nil && !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("stop: %v", err)
	}
}

// waitForQueueDrain waits until the worker has picked up the queued job so
// the next Submit lands in the channel buffer.
func waitForQueueDrain(t *testing.T, s *Scheduler) {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for len(s.queue) > 0 {
		select {
		case <-deadline:
			t.Fatal("queue never drained")
		case <-time.After(time.Millisecond):
		}
	}
}
