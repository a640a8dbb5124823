package schedule

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAddRejectsBadSpec(t *testing.T) {
	s := New(time.Second)
	assert.Error(t, s.Add("not a spec", "bad", func(context.Context) error { return nil }))
	assert.Equal(t, 0, s.Len())
}

func TestTasksRunAndSurviveErrorsAndPanics(t *testing.T) {
	s := New(time.Second)
	var ok, failing, panicking atomic.Int32

	require.NoError(t, s.Add("@every 1s", "ok", func(context.Context) error {
		ok.Add(1)
		return nil
	}))
	require.NoError(t, s.Add("@every 1s", "failing", func(context.Context) error {
		failing.Add(1)
		return errors.New("redis down")
	}))
	require.NoError(t, s.Add("@every 1s", "panicking", func(context.Context) error {
		panicking.Add(1)
		panic("boom")
	}))
	assert.Equal(t, 3, s.Len())

	s.Start()
	require.Eventually(t, func() bool {
		return ok.Load() >= 2 && failing.Load() >= 2 && panicking.Load() >= 2
	}, 5*time.Second, 50*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	s.Stop(ctx)
}
