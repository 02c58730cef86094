package dispatch

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type countingEnqueuer struct {
	calls  atomic.Int32
	maxAge atomic.Int32
	err    error
}

func (c *countingEnqueuer) EnqueueRetentionSweep(_ context.Context, maxAgeHours int) error {
	c.calls.Add(1)
	c.maxAge.Store(int32(maxAgeHours))
	return c.err
}

func TestScheduler_Run(t *testing.T) {
	enq := &countingEnqueuer{}
	s := NewScheduler(enq, 5*time.Millisecond, 24, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()

	assert.Eventually(t, func() bool { return enq.calls.Load() >= 2 }, time.Second, time.Millisecond)
	cancel()
	<-done
	assert.Equal(t, int32(24), enq.maxAge.Load())
}

func TestScheduler_Run_KeepsGoingOnError(t *testing.T) {
	enq := &countingEnqueuer{err: errors.New("broker down")}
	s := NewScheduler(enq, 2*time.Millisecond, 1, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.Run(ctx)

	assert.Eventually(t, func() bool { return enq.calls.Load() >= 3 }, time.Second, time.Millisecond)
}

func TestScheduler_Run_Disabled(t *testing.T) {
	enq := &countingEnqueuer{}
	s := NewScheduler(enq, 0, 24, nil)

	done := make(chan struct{})
	go func() {
		s.Run(context.Background())
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("disabled scheduler did not return")
	}
	assert.Zero(t, enq.calls.Load())
}
