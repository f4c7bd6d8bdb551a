// internal/scheduler/scheduler_test.go
package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func waitFor(t *testing.T, within time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.After(within)
	ticker := time.NewTicker(20 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-deadline:
			t.Fatalf("condition not met within %s", within)
		case <-ticker.C:
			if cond() {
				return
			}
		}
	}
}

func TestStartRunsJobImmediately(t *testing.T) {
	var fires atomic.Int32
	sched := New()
	if err := sched.Every("tick", time.Hour, func(context.Context) error {
		fires.Add(1)
		return nil
	}); err != nil {
		t.Fatal(err)
	}
	sched.Start(context.Background())
	defer sched.Stop()

	waitFor(t, time.Second, func() bool { return fires.Load() == 1 })
}

func TestEveryFiresRepeatedly(t *testing.T) {
	var fires atomic.Int32
	sched := New()
	if err := sched.Every("tick", time.Second, func(context.Context) error {
		fires.Add(1)
		return errors.New("failures are logged, not fatal")
	}); err != nil {
		t.Fatal(err)
	}
	sched.Start(context.Background())
	defer sched.Stop()

	waitFor(t, 3*time.Second, func() bool { return fires.Load() >= 2 })
}

func TestStopCancelsRunningJob(t *testing.T) {
	started := make(chan struct{})
	var cancelled atomic.Bool
	sched := New()
	if err := sched.Every("block", time.Hour, func(ctx context.Context) error {
		close(started)
		<-ctx.Done()
		cancelled.Store(true)
		return ctx.Err()
	}); err != nil {
		t.Fatal(err)
	}
	sched.Start(context.Background())
	<-started

	sched.Stop()
	if !cancelled.Load() {
		t.Fatal("Stop returned before the running job observed cancellation")
	}
}

func TestParentContextStopsScheduler(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	sched := New()
	if err := sched.Every("block", time.Hour, func(ctx context.Context) error {
		<-ctx.Done()
		close(done)
		return nil
	}); err != nil {
		t.Fatal(err)
	}
	sched.Start(ctx)
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("job did not see parent cancellation")
	}
}

func TestAddRejectsBadSpec(t *testing.T) {
	sched := New()
	if err := sched.Add("bad", "not a schedule", func(context.Context) error { return nil }); err == nil {
		t.Fatal("expected error for invalid schedule")
	}
}
