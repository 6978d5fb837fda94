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

// fakeJob runs a script of results, one per execution.
type fakeJob struct {
	name    string
	results []error
	calls   atomic.Int32
	onCall  func(n int32)
}

func (f *fakeJob) Name() string { return f.name }

func (f *fakeJob) Execute(ctx context.Context) error {
	n := f.calls.Add(1)
	if f.onCall != nil {
		f.onCall(n)
	}
	if int(n) <= len(f.results) {
		return f.results[n-1]
	}
	return f.results[len(f.results)-1]
}

func TestRunAllSequentialStopsAtFirstError(t *testing.T) {
	boom := errors.New("boom")
	first := &fakeJob{name: "a", results: []error{nil}}
	second := &fakeJob{name: "b", results: []error{boom}}
	third := &fakeJob{name: "c", results: []error{nil}}

	s := NewScheduler()
	s.Register(first)
	s.Register(second)
	s.Register(third)

	err := s.RunAllSequential(context.Background())
	require.ErrorIs(t, err, boom)
	assert.Equal(t, int32(1), first.calls.Load())
	assert.Equal(t, int32(1), second.calls.Load())
	assert.Zero(t, third.calls.Load(), "jobs after a failure must not run")
}

func TestRunAllSequentialTreatsNoWorkAsSuccess(t *testing.T) {
	idle := &fakeJob{name: "idle", results: []error{ErrNoWork}}
	after := &fakeJob{name: "after", results: []error{nil}}

	s := NewScheduler()
	s.Register(idle)
	s.Register(after)

	require.NoError(t, s.RunAllSequential(context.Background()))
	assert.Equal(t, int32(1), after.calls.Load())
}

func TestNamedMutexSerializesExecutions(t *testing.T) {
	var inFlight, peak atomic.Int32
	job := &fakeJob{
		name:    "serial",
		results: []error{nil},
		onCall: func(int32) {
			n := inFlight.Add(1)
			if n > peak.Load() {
				peak.Store(n)
			}
			time.Sleep(20 * time.Millisecond)
			inFlight.Add(-1)
		},
	}

	s := NewScheduler()
	done := make(chan struct{})
	for i := 0; i < 4; i++ {
		go func() {
			_ = s.execute(context.Background(), job)
			done <- struct{}{}
		}()
	}
	for i := 0; i < 4; i++ {
		<-done
	}

	assert.Equal(t, int32(4), job.calls.Load())
	assert.Equal(t, int32(1), peak.Load(), "executions of one job name must never overlap")
}

func TestRunRecurringRetriesThenGivesUp(t *testing.T) {
	boom := errors.New("boom")
	job := &fakeJob{name: "flaky", results: []error{boom, boom, boom}}

	s := NewScheduler()
	s.recurringRetryDelay = time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		// One recurring cycle: three attempts, then the interval sleep
		// which we interrupt.
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()
	s.RunRecurring(ctx, job, time.Hour)

	assert.Equal(t, int32(3), job.calls.Load())
}

func TestRunRecurringStopsRetryingOnSuccess(t *testing.T) {
	boom := errors.New("boom")
	job := &fakeJob{name: "recovers", results: []error{boom, nil}}

	s := NewScheduler()
	s.recurringRetryDelay = time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()
	s.RunRecurring(ctx, job, time.Hour)

	assert.Equal(t, int32(2), job.calls.Load())
}

func TestRunContinuousLoopsOnSuccessSleepsOnNoWork(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	job := &fakeJob{
		name:    "drain",
		results: []error{nil, nil, ErrNoWork},
		onCall: func(n int32) {
			if n >= 3 {
				cancel()
			}
		},
	}

	s := NewScheduler()
	s.RunContinuous(ctx, job, time.Hour)

	// Two successful runs loop immediately; no_work hits the sleep,
	// which the canceled context interrupts.
	assert.Equal(t, int32(3), job.calls.Load())
}

func TestWithRetryEventuallySucceeds(t *testing.T) {
	calls := 0
	err := WithRetry(context.Background(), "op", func() error {
		calls++
		if calls < 2 {
			return errors.New("transient")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
}

func TestWithRetryWrapsLastError(t *testing.T) {
	last := errors.New("still broken")
	start := time.Now()
	err := WithRetry(context.Background(), "sync users", func() error { return last })
	require.ErrorIs(t, err, last)
	assert.Contains(t, err.Error(), "sync users")
	// Delays of 1s and 2s between the three attempts.
	assert.GreaterOrEqual(t, time.Since(start), 3*time.Second)
}

func TestIsNoWork(t *testing.T) {
	assert.True(t, IsNoWork(ErrNoWork))
	assert.False(t, IsNoWork(errors.New("no_work")))
	assert.False(t, IsNoWork(DatabaseErr(errors.New("down"))))
	assert.False(t, IsNoWork(nil))
}

func TestErrorFormatting(t *testing.T) {
	err := ValidationErr("bad timestamp", errors.New("parse fail"))
	assert.Contains(t, err.Error(), "validation")
	assert.Contains(t, err.Error(), "bad timestamp")

	var je *Error
	require.ErrorAs(t, err, &je)
	assert.Equal(t, KindValidation, je.Kind)
}
