package global

import (
	"context"
	"errors"
	"testing"

	"PSocial/global/config"
	"PSocial/service/queue"
	"PSocial/tools/errs"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigQueueBackends(t *testing.T) {
	ctx := context.Background()
	cfg := config.Default()

	cfg.Queue.Backend = config.QueueBackendMemory
	b, release, err := ConfigQueue(ctx, cfg)
	require.NoError(t, err)
	assert.IsType(t, &queue.MemoryBroker{}, b)
	assert.NoError(t, release())
	assert.NoError(t, b.Close())

	cfg.Queue.Backend = "rabbit"
	_, _, err = ConfigQueue(ctx, cfg)
	assert.True(t, errors.Is(err, errs.ErrArgs))
}

func TestRedisQueueCounts(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := config.Default()
	cfg.Redis.Addr = mr.Addr()
	require.NoError(t, ConfigRedis(cfg))

	ctx := context.Background()
	b, _, err := ConfigQueue(ctx, cfg)
	require.NoError(t, err)
	rb, ok := b.(*queue.RedisBroker)
	require.True(t, ok)

	q := queue.New("FriendRequestQueue", rb, jobOptions(cfg))
	_, err = q.Add(ctx, "sendFriendRequestNotification", map[string]int64{"userId": 1, "friendId": 2})
	require.NoError(t, err)

	counts, err := rb.Counts(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, counts["wait"])
	assert.NoError(t, logQueueCounts(ctx, rb))

	job, err := rb.Receive(ctx)
	require.NoError(t, err)
	job.AttemptsMade = job.Opts.Attempts
	require.NoError(t, rb.Fail(ctx, job, errors.New("boom")))
	assert.NoError(t, logQueueCounts(ctx, rb))
}

func TestJobOptionsFromConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Queue.Attempts = 5
	opts := jobOptions(cfg)
	assert.Equal(t, 5, opts.Attempts)
	assert.True(t, opts.RemoveOnComplete)
	assert.False(t, opts.RemoveOnFail)
}
