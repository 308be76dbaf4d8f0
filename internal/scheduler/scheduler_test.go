package scheduler

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingExpirer struct {
	calls atomic.Int32
}

func (c *countingExpirer) ExpireOverdue(ctx context.Context) (int, error) {
	c.calls.Add(1)
	return 1, nil
}

func TestSchedulerRunsExpiry(t *testing.T) {
	expirer := &countingExpirer{}
	s := NewScheduler("@every 1s", expirer, nil)
	require.NoError(t, s.Start())
	defer s.Stop()

	assert.Eventually(t, func() bool { return expirer.calls.Load() > 0 }, 3*time.Second, 50*time.Millisecond)
}

func TestSchedulerRejectsBadSpec(t *testing.T) {
	s := NewScheduler("not a schedule", &countingExpirer{}, nil)
	assert.Error(t, s.Start())
}
