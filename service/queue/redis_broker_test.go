package queue

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRedisBroker(t *testing.T) (*RedisBroker, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return NewRedisBroker(rdb, RedisBrokerConf{Prefix: "ps", Queue: "notification", LockTTL: time.Second}), mr
}

func TestRedisBrokerRoundTrip(t *testing.T) {
	b, mr := newRedisBroker(t)
	ctx := context.Background()
	q := New("notification", b, DefaultJobOptions())

	added, err := q.Add(ctx, "send", notifyPayload{SenderID: 1, ReceiverID: 2, Type: "FRIEND_ACCEPTED"})
	require.NoError(t, err)

	job, err := b.Receive(ctx)
	require.NoError(t, err)
	assert.Equal(t, added.ID, job.ID)
	assert.Equal(t, "send", job.Name)
	assert.Equal(t, 3, job.Opts.Attempts)
	assert.True(t, mr.Exists("ps:queue:notification:lock:"+job.ID))

	var p notifyPayload
	require.NoError(t, job.Decode(&p))
	assert.Equal(t, "FRIEND_ACCEPTED", p.Type)

	require.NoError(t, b.Complete(ctx, job))
	assert.False(t, mr.Exists("ps:queue:notification:job:"+job.ID))
	counts, err := b.Counts(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), counts["active"])
	assert.Equal(t, int64(0), counts["completed"])
}

func TestRedisBrokerRetryAndFail(t *testing.T) {
	b, _ := newRedisBroker(t)
	ctx := context.Background()
	q := New("notification", b, DefaultJobOptions())
	_, err := q.Add(ctx, "send", notifyPayload{ReceiverID: 9})
	require.NoError(t, err)

	w := NewWorker(b, func(ctx context.Context, job *Job) error {
		return errors.New("insert failed")
	}, WorkerConf{})

	for i := 0; i < 3; i++ {
		job, err := b.Receive(ctx)
		require.NoError(t, err)
		assert.Equal(t, i, job.AttemptsMade)
		w.Process(ctx, job)
	}

	counts, err := b.Counts(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), counts["wait"])
	assert.Equal(t, int64(0), counts["active"])
	assert.Equal(t, int64(1), counts["failed"])

	failed, err := b.Failed(ctx, 10)
	require.NoError(t, err)
	require.Len(t, failed, 1)
	assert.Equal(t, 3, failed[0].AttemptsMade)
	assert.Equal(t, "insert failed", failed[0].FailedReason)
}

func TestRedisBrokerRecoverStalled(t *testing.T) {
	b, mr := newRedisBroker(t)
	ctx := context.Background()
	q := New("notification", b, DefaultJobOptions())
	_, err := q.Add(ctx, "send", notifyPayload{ReceiverID: 4})
	require.NoError(t, err)

	job, err := b.Receive(ctx)
	require.NoError(t, err)

	n, err := b.RecoverStalled(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	// 锁过期，进程假装已经挂掉
	mr.FastForward(2 * time.Second)
	b.now = func() time.Time { return time.Now().Add(2 * time.Second) }

	n, err = b.RecoverStalled(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	again, err := b.Receive(ctx)
	require.NoError(t, err)
	assert.Equal(t, job.ID, again.ID)
}

func TestRedisBrokerReceiveHonorsContext(t *testing.T) {
	b, _ := newRedisBroker(t)
	b.poll = 50 * time.Millisecond
	ctx, cancel := context.WithTimeout(context.Background(), 120*time.Millisecond)
	defer cancel()

	_, err := b.Receive(ctx)
	assert.Error(t, err)
}
