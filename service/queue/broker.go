package queue

import (
	"context"
	"errors"
)

var ErrClosed = errors.New("queue: broker closed")

// Broker 是任务的存取后端；Worker 只跟这个接口打交道。
// Receive 阻塞到有任务、ctx 结束或 broker 关闭。
// Complete/Retry/Fail 三选一结束一次投递；Retry/Fail 前 Worker 已经把 AttemptsMade 加一。
type Broker interface {
	Enqueue(ctx context.Context, job *Job) error
	Receive(ctx context.Context) (*Job, error)
	Complete(ctx context.Context, job *Job) error
	Retry(ctx context.Context, job *Job, cause error) error
	Fail(ctx context.Context, job *Job, cause error) error
	Close() error
}
