package sweeper

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/guidepath/guidepath/pkg/model"
)

type fakeSnoozes struct {
	calls atomic.Int32
	err   error
}

func (f *fakeSnoozes) NotifySnoozesDue(context.Context) (int, error) {
	f.calls.Add(1)
	return 2, f.err
}

type fakeTriggers struct {
	calls atomic.Int32
	err   error
}

func (f *fakeTriggers) FireDueDateTriggers(context.Context, time.Time) ([]model.Execution, error) {
	f.calls.Add(1)
	return []model.Execution{{}}, f.err
}

func TestSweepRunsBothJobsEvenWhenOneFails(t *testing.T) {
	snoozes := &fakeSnoozes{err: errors.New("db down")}
	triggers := &fakeTriggers{}
	s := New(snoozes, triggers, "", zap.NewNop())

	err := s.Sweep(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "db down")
	assert.Equal(t, int32(1), snoozes.calls.Load())
	assert.Equal(t, int32(1), triggers.calls.Load())

	snoozes.err = nil
	assert.NoError(t, s.Sweep(context.Background()))
}

func TestRunRejectsInvalidSchedule(t *testing.T) {
	s := New(&fakeSnoozes{}, &fakeTriggers{}, "every now and then", zap.NewNop())
	assert.Error(t, s.Run(context.Background()))
}

func TestRunSweepsOnSchedule(t *testing.T) {
	snoozes := &fakeSnoozes{}
	s := New(snoozes, &fakeTriggers{}, "@every 1s", zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	assert.Eventually(t, func() bool { return snoozes.calls.Load() > 0 }, 5*time.Second, 50*time.Millisecond)
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("sweeper did not stop")
	}
}
