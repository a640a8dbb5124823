package natsx

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"time"

	"PSocial/global/config"
	"PSocial/logger"
	"PSocial/service/queue"
	"PSocial/tools/errs"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

// Broker JetStream 拉取消费的任务队列。
// 每次重试用新的 Nats-Msg-Id 重新发布，原消息 Ack；用尽后发布到 <subject>.failed。
type Broker struct {
	c       *Client
	subject string
	sub     *nats.Subscription
	idem    IdemStore
	ackWait time.Duration
	poll    time.Duration

	mu      sync.Mutex
	pending map[string]pendingMsg

	closed    chan struct{}
	closeOnce sync.Once
}

func FailedSubject(subject string) string { return subject + ".failed" }

type pendingMsg struct {
	msg   *nats.Msg
	msgID string
}

// msgID 同一任务的每次尝试各自去重
func msgID(job *queue.Job) string {
	return job.ID + "-" + strconv.Itoa(job.AttemptsMade)
}

func NewBroker(c *Client, conf config.Nats) (*Broker, error) {
	if conf.Subject == "" || conf.Durable == "" {
		return nil, errs.ErrArgs.WrapMsg("nats queue requires subject and durable")
	}
	if conf.AckWait <= 0 {
		conf.AckWait = 30 * time.Second
	}
	if err := c.EnsureStream(conf.Stream, conf.Subject, FailedSubject(conf.Subject)); err != nil {
		return nil, err
	}
	js, err := c.JetStream()
	if err != nil {
		return nil, err
	}
	sub, err := js.PullSubscribe(conf.Subject, conf.Durable,
		nats.BindStream(conf.Stream),
		nats.AckExplicit(),
		nats.AckWait(conf.AckWait),
		nats.PullMaxWaiting(8),
	)
	if err != nil {
		return nil, errs.WrapMsg(err, "pull subscribe", "subject", conf.Subject, "durable", conf.Durable)
	}
	return &Broker{
		c:       c,
		subject: conf.Subject,
		sub:     sub,
		idem:    NewMemIdem(conf.AckWait * 2),
		ackWait: conf.AckWait,
		poll:    time.Second,
		pending: make(map[string]pendingMsg),
		closed:  make(chan struct{}),
	}, nil
}

func (b *Broker) isClosed() bool {
	select {
	case <-b.closed:
		return true
	default:
		return false
	}
}

func (b *Broker) Enqueue(ctx context.Context, job *queue.Job) error {
	if b.isClosed() {
		return queue.ErrClosed
	}
	return b.publish(ctx, b.subject, job)
}

func (b *Broker) publish(ctx context.Context, subject string, job *queue.Job) error {
	raw, err := job.Marshal()
	if err != nil {
		return errs.WrapMsg(err, "marshal job", "id", job.ID)
	}
	return b.c.publish(ctx, subject, raw, msgID(job), 2, 200*time.Millisecond)
}

func (b *Broker) Receive(ctx context.Context) (*queue.Job, error) {
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if b.isClosed() {
			return nil, queue.ErrClosed
		}
		msgs, err := b.sub.Fetch(1, nats.MaxWait(b.poll))
		if errors.Is(err, nats.ErrTimeout) {
			continue
		}
		if err != nil {
			if errors.Is(err, nats.ErrConnectionClosed) || errors.Is(err, nats.ErrBadSubscription) {
				return nil, queue.ErrClosed
			}
			return nil, errs.WrapMsg(err, "nats fetch", "subject", b.subject)
		}
		for _, m := range msgs {
			if job, ok := b.accept(m); ok {
				return job, nil
			}
		}
	}
}

// accept 解码并登记；坏消息 Term，已落定消息的重投直接 Ack
func (b *Broker) accept(m *nats.Msg) (*queue.Job, bool) {
	job, err := queue.UnmarshalJob(m.Data)
	if err != nil {
		logger.Error("nats drop undecodable job", zap.String("subject", m.Subject), zap.Error(err))
		_ = m.Term()
		return nil, false
	}
	id := msgIDFromHeader(headerToMap(m.Header))
	if id == "" {
		id = msgID(job)
	}
	if b.idem.Done(id) {
		logger.Debug("nats redelivery of settled job skipped", zap.String("msgId", id))
		_ = m.Ack()
		return nil, false
	}
	b.mu.Lock()
	b.pending[job.ID] = pendingMsg{msg: m, msgID: id}
	b.mu.Unlock()
	return job, true
}

func (b *Broker) take(id string) (pendingMsg, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	p, ok := b.pending[id]
	delete(b.pending, id)
	return p, ok
}

// settle 任务已落定：先记去重再 Ack，Ack 丢了重投也不会再处理
func (b *Broker) settle(id string) error {
	p, ok := b.take(id)
	if !ok {
		return nil
	}
	b.idem.MarkDone(p.msgID, 0)
	if err := p.msg.Ack(); err != nil {
		return errs.WrapMsg(err, "nats ack", "id", id)
	}
	return nil
}

func (b *Broker) Complete(_ context.Context, job *queue.Job) error {
	return b.settle(job.ID)
}

func (b *Broker) Retry(ctx context.Context, job *queue.Job, cause error) error {
	if cause != nil {
		job.FailedReason = cause.Error()
	}
	if err := b.publish(ctx, b.subject, job); err != nil {
		// 不 Ack 也不记去重，AckWait 之后由服务端重投并重新处理
		b.take(job.ID)
		return err
	}
	return b.settle(job.ID)
}

func (b *Broker) Fail(ctx context.Context, job *queue.Job, cause error) error {
	if cause != nil {
		job.FailedReason = cause.Error()
	}
	if !job.Opts.RemoveOnFail {
		if err := b.publish(ctx, FailedSubject(b.subject), job); err != nil {
			b.take(job.ID)
			return err
		}
	}
	return b.settle(job.ID)
}

// SweepIdem 清理去重表，交给定时任务
func (b *Broker) SweepIdem() int {
	if mi, ok := b.idem.(*MemIdem); ok {
		return mi.Sweep()
	}
	return 0
}

// Close 只停止拉取，连接由 Client.Close 负责
func (b *Broker) Close() error {
	var err error
	b.closeOnce.Do(func() {
		close(b.closed)
		if b.sub != nil {
			err = b.sub.Unsubscribe()
		}
	})
	if errors.Is(err, nats.ErrConnectionClosed) || errors.Is(err, nats.ErrBadSubscription) {
		return nil
	}
	return errs.Wrap(err)
}
