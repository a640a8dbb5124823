package queue

import (
	"context"

	"PSocial/logger"
	"PSocial/tools/errs"
	"PSocial/tools/ids"

	"go.uber.org/zap"
)

// Queue 生产端：按名字投递任务
type Queue struct {
	name   string
	broker Broker
	opts   JobOptions
	nextID func() string
}

func New(name string, broker Broker, opts JobOptions) *Queue {
	return &Queue{
		name:   name,
		broker: broker,
		opts:   opts.norm(),
		nextID: ids.GenerateString,
	}
}

func (q *Queue) Name() string { return q.name }

// Add 用默认策略入队
func (q *Queue) Add(ctx context.Context, name string, data any) (*Job, error) {
	return q.AddWithOptions(ctx, name, data, q.opts)
}

func (q *Queue) AddWithOptions(ctx context.Context, name string, data any, opts JobOptions) (*Job, error) {
	if name == "" {
		return nil, errs.ErrArgs.WrapMsg("job name is required")
	}
	job, err := newJob(q.nextID(), q.name, name, data, opts)
	if err != nil {
		return nil, err
	}
	if err := q.broker.Enqueue(ctx, job); err != nil {
		return nil, errs.WrapMsg(err, "enqueue job", "queue", q.name, "name", name)
	}
	logger.Debug("job enqueued", zap.String("queue", q.name), zap.String("name", name), zap.String("id", job.ID))
	return job, nil
}
