package runtime

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"menu360/internal/app/logging"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSchedulerRunsJobs(t *testing.T) {
	s := NewScheduler(context.Background(), logging.Component(logging.Discard(), "cron"))
	var ok, failed atomic.Int32
	require.NoError(t, s.Add("ok", "@every 1s", func(context.Context) (int, error) {
		ok.Add(1)
		return 1, nil
	}))
	require.NoError(t, s.Add("failing", "@every 1s", func(context.Context) (int, error) {
		failed.Add(1)
		return 0, errors.New("backend down")
	}))
	assert.Equal(t, 2, s.Len())

	s.Start()
	require.Eventually(t, func() bool { return ok.Load() > 0 && failed.Load() > 0 }, 3*time.Second, 50*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	s.Stop(ctx)
}

func TestSchedulerRejectsBadSpec(t *testing.T) {
	s := NewScheduler(context.Background(), logging.Component(logging.Discard(), "cron"))
	err := s.Add("bad", "whenever", func(context.Context) (int, error) { return 0, nil })
	assert.ErrorContains(t, err, "schedule bad")
}

func TestFields(t *testing.T) {
	f := fields([]any{"entry", 3, "dangling"})
	assert.Equal(t, 3, f["entry"])
	assert.Len(t, f, 1)
}
