package natsx

import (
	"context"
	"errors"
	"testing"
	"time"

	"PSocial/global/config"
	"PSocial/service/queue"

	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMsgIDChangesPerAttempt(t *testing.T) {
	job := &queue.Job{ID: "17"}
	first := msgID(job)
	job.AttemptsMade = 1
	assert.NotEqual(t, first, msgID(job))
	assert.Equal(t, "17-1", msgID(job))
	assert.Equal(t, "psocial.jobs.failed", FailedSubject("psocial.jobs"))
}

func TestMemIdem(t *testing.T) {
	base := time.Unix(1_700_000_000, 0)
	mi := NewMemIdem(time.Minute)
	mi.now = func() time.Time { return base }

	assert.False(t, mi.Done("a"))
	mi.MarkDone("a", 0)
	assert.True(t, mi.Done("a"))

	mi.now = func() time.Time { return base.Add(2 * time.Minute) }
	assert.False(t, mi.Done("a"))
	assert.Equal(t, 1, mi.Sweep())
}

type recordingIdem struct {
	done map[string]bool
}

func (r *recordingIdem) Done(key string) bool { return r.done[key] }

func (r *recordingIdem) MarkDone(key string, _ time.Duration) { r.done[key] = true }

// failingJS 只覆盖 PublishMsg，模拟 stream 不可用
type failingJS struct {
	nats.JetStreamContext
}

func (failingJS) PublishMsg(*nats.Msg, ...nats.PubOpt) (*nats.PubAck, error) {
	return nil, errors.New("stream unavailable")
}

func TestUnsettledRedeliveryIsProcessedAgain(t *testing.T) {
	idem := &recordingIdem{done: map[string]bool{}}
	b := &Broker{
		c:       &Client{js: failingJS{}},
		subject: "psocial.jobs",
		idem:    idem,
		pending: make(map[string]pendingMsg),
		closed:  make(chan struct{}),
	}
	raw, err := (&queue.Job{ID: "5", Name: "sendFriendRequestNotification", Opts: queue.DefaultJobOptions()}).Marshal()
	require.NoError(t, err)
	m := &nats.Msg{Subject: "psocial.jobs", Data: raw, Header: nats.Header{nats.MsgIdHdr: []string{"5-0"}}}

	job, ok := b.accept(m)
	require.True(t, ok)

	// 重投失败：消息不 Ack，也不能记成已处理
	ctx := context.Background()
	assert.Error(t, b.Retry(ctx, job, errors.New("db down")))
	assert.Empty(t, idem.done)

	// 服务端 AckWait 后重投，任务要再跑一次
	again, ok := b.accept(m)
	require.True(t, ok)
	assert.Equal(t, "5", again.ID)

	// 落定后即使 Ack 失败（消息未绑定订阅），重投也被跳过
	assert.Error(t, b.Complete(ctx, again))
	assert.True(t, idem.done["5-0"])
	_, ok = b.accept(m)
	assert.False(t, ok)
}

func TestHeaderHelpers(t *testing.T) {
	h := toHeader(map[string]string{nats.MsgIdHdr: "9-0"})
	m := headerToMap(h)
	assert.Equal(t, "9-0", msgIDFromHeader(m))
	assert.Nil(t, headerToMap(nil))
	assert.Equal(t, "x", msgIDFromHeader(map[string]string{"X-Msg-Id": "x"}))
	assert.Empty(t, msgIDFromHeader(map[string]string{}))
}

func TestMergeSubjects(t *testing.T) {
	out, changed := mergeSubjects([]string{"a"}, []string{"a", "b"})
	assert.True(t, changed)
	assert.Equal(t, []string{"a", "b"}, out)

	_, changed = mergeSubjects([]string{"a", "b"}, []string{"b"})
	assert.False(t, changed)
}

func TestNewClientRequiresServers(t *testing.T) {
	_, err := NewClient(config.Nats{})
	assert.Error(t, err)
}
