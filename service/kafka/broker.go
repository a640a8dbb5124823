package kafka

import (
	"context"
	"sync"

	"PSocial/global/config"
	"PSocial/logger"
	"PSocial/service/queue"
	"PSocial/tools/errs"
	"PSocial/tools/safe"

	"github.com/Shopify/sarama"
	"go.uber.org/zap"
)

// Broker 用一个 topic 承载任务队列：
// 重试 = 带着新的 attemptsMade 重新投递到同一 topic，再提交原消息 offset；
// 用尽 = 投递到 <topic>.failed 留档（removeOnFail 时直接丢弃）。
type Broker struct {
	topic    string
	producer sarama.SyncProducer
	group    sarama.ConsumerGroup
	client   sarama.Client

	deliveries chan *delivery
	mu         sync.Mutex
	pending    map[string]*delivery

	cancel    context.CancelFunc
	done      chan struct{}
	closed    chan struct{}
	closeOnce sync.Once
}

type delivery struct {
	job     *queue.Job
	msg     *sarama.ConsumerMessage
	session sarama.ConsumerGroupSession
	settled chan struct{}
}

// NewBroker 连接集群；消费组在 Start 之后才开始拉取
func NewBroker(c config.Kafka) (*Broker, error) {
	cfg, err := BuildBaseConfig(c)
	if err != nil {
		return nil, err
	}
	client, err := sarama.NewClient(c.Brokers, cfg)
	if err != nil {
		return nil, errs.WrapMsg(err, "kafka client", "brokers", c.Brokers)
	}
	admin, err := sarama.NewClusterAdminFromClient(client)
	if err == nil {
		if err := EnsureTopics(admin, []string{c.Topic, FailedTopic(c.Topic)},
			TopicSpec{Partitions: c.Partitions, ReplicationFactor: c.Replication}); err != nil {
			logger.Warn("kafka ensure topics failed", zap.Error(err))
		}
	}
	producer, err := sarama.NewSyncProducerFromClient(client)
	if err != nil {
		_ = client.Close()
		return nil, errs.WrapMsg(err, "kafka producer")
	}
	group, err := sarama.NewConsumerGroupFromClient(c.GroupID, client)
	if err != nil {
		_ = producer.Close()
		_ = client.Close()
		return nil, errs.WrapMsg(err, "kafka consumer group", "group", c.GroupID)
	}
	b := NewBrokerWith(c.Topic, producer, group)
	b.client = client
	return b, nil
}

// NewBrokerWith 直接注入 producer/group；group 为 nil 时只能生产
func NewBrokerWith(topic string, producer sarama.SyncProducer, group sarama.ConsumerGroup) *Broker {
	return &Broker{
		topic:      topic,
		producer:   producer,
		group:      group,
		deliveries: make(chan *delivery),
		pending:    make(map[string]*delivery),
		closed:     make(chan struct{}),
	}
}

func (b *Broker) Topic() string { return b.topic }

// Start 后台跑消费组，rebalance 后自动重新 Consume
func (b *Broker) Start(ctx context.Context) {
	if b.group == nil {
		return
	}
	ctx, b.cancel = context.WithCancel(ctx)
	b.done = make(chan struct{})

	safe.SafeGo(func() {
		for err := range b.group.Errors() {
			logger.Warn("kafka consumer group error", zap.Error(err))
		}
	})

	go func() {
		defer close(b.done)
		for {
			if err := b.group.Consume(ctx, []string{b.topic}, b); err != nil {
				logger.Warn("kafka consume error", zap.Error(err))
			}
			if ctx.Err() != nil {
				return
			}
		}
	}()
}

func (b *Broker) send(topic string, job *queue.Job) error {
	raw, err := job.Marshal()
	if err != nil {
		return errs.WrapMsg(err, "marshal job", "id", job.ID)
	}
	_, _, err = b.producer.SendMessage(&sarama.ProducerMessage{
		Topic: topic,
		Key:   sarama.StringEncoder(job.ID),
		Value: sarama.ByteEncoder(raw),
	})
	if err != nil {
		return errs.WrapMsg(err, "kafka send", "topic", topic, "id", job.ID)
	}
	return nil
}

func (b *Broker) Enqueue(_ context.Context, job *queue.Job) error {
	select {
	case <-b.closed:
		return queue.ErrClosed
	default:
	}
	return b.send(b.topic, job)
}

func (b *Broker) Receive(ctx context.Context) (*queue.Job, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-b.closed:
		return nil, queue.ErrClosed
	case d := <-b.deliveries:
		return d.job, nil
	}
}

// settle 提交 offset 并放行 ConsumeClaim 继续下一条
func (b *Broker) settle(id string) {
	b.mu.Lock()
	d, ok := b.pending[id]
	delete(b.pending, id)
	b.mu.Unlock()
	if !ok {
		return
	}
	d.session.MarkMessage(d.msg, "")
	close(d.settled)
}

func (b *Broker) Complete(_ context.Context, job *queue.Job) error {
	b.settle(job.ID)
	return nil
}

func (b *Broker) Retry(_ context.Context, job *queue.Job, cause error) error {
	if cause != nil {
		job.FailedReason = cause.Error()
	}
	if err := b.send(b.topic, job); err != nil {
		// 不提交 offset，rebalance/重启后会再投递
		return err
	}
	b.settle(job.ID)
	return nil
}

func (b *Broker) Fail(_ context.Context, job *queue.Job, cause error) error {
	if cause != nil {
		job.FailedReason = cause.Error()
	}
	if !job.Opts.RemoveOnFail {
		if err := b.send(FailedTopic(b.topic), job); err != nil {
			return err
		}
	}
	b.settle(job.ID)
	return nil
}

func (b *Broker) Close() error {
	var err error
	b.closeOnce.Do(func() {
		close(b.closed)
		if b.cancel != nil {
			b.cancel()
			<-b.done
		}
		if b.group != nil {
			if e := b.group.Close(); e != nil {
				err = e
			}
		}
		if e := b.producer.Close(); e != nil && err == nil {
			err = e
		}
		if b.client != nil && !b.client.Closed() {
			_ = b.client.Close()
		}
	})
	return errs.Wrap(err)
}

// sarama.ConsumerGroupHandler

func (b *Broker) Setup(sarama.ConsumerGroupSession) error {
	logger.Debug("kafka consumer group setup", zap.String("topic", b.topic))
	return nil
}

func (b *Broker) Cleanup(sarama.ConsumerGroupSession) error {
	logger.Debug("kafka consumer group cleanup", zap.String("topic", b.topic))
	return nil
}

// ConsumeClaim 一条一条交给 Receive，等结算后再取下一条，分区内保持顺序
func (b *Broker) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for msg := range claim.Messages() {
		job, err := queue.UnmarshalJob(msg.Value)
		if err != nil {
			logger.Error("kafka drop undecodable job", zap.String("topic", msg.Topic),
				zap.Int32("partition", msg.Partition), zap.Int64("offset", msg.Offset), zap.Error(err))
			session.MarkMessage(msg, "")
			continue
		}

		d := &delivery{job: job, msg: msg, session: session, settled: make(chan struct{})}
		b.mu.Lock()
		b.pending[job.ID] = d
		b.mu.Unlock()

		select {
		case b.deliveries <- d:
		case <-session.Context().Done():
			b.forget(job.ID)
			return nil
		case <-b.closed:
			b.forget(job.ID)
			return nil
		}

		select {
		case <-d.settled:
		case <-session.Context().Done():
			// 分区被收回，未结算的消息交给新的持有者
			b.forget(job.ID)
			return nil
		}
	}
	return nil
}

func (b *Broker) forget(id string) {
	b.mu.Lock()
	delete(b.pending, id)
	b.mu.Unlock()
}
