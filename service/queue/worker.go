package queue

import (
	"context"
	"errors"
	"sync"
	"time"

	"PSocial/logger"
	"PSocial/service/metrics"
	"PSocial/tools/safe"

	"go.uber.org/zap"
)

// Processor 处理一个任务；返回错误即本次尝试失败
type Processor func(ctx context.Context, job *Job) error

type WorkerConf struct {
	JobTimeout   time.Duration // 单次尝试超时，<=0 不限制
	ErrorBackoff time.Duration // Receive 出错后的等待
}

func (c *WorkerConf) norm() {
	if c.ErrorBackoff <= 0 {
		c.ErrorBackoff = time.Second
	}
}

// Worker 单协程消费，同一时间只处理一个任务
type Worker struct {
	broker Broker
	proc   Processor
	conf   WorkerConf

	mu          sync.RWMutex
	onFailed    []func(job *Job, err error)
	onCompleted []func(job *Job)

	cancel   context.CancelFunc
	done     chan struct{}
	stopOnce sync.Once
}

func NewWorker(broker Broker, proc Processor, conf WorkerConf) *Worker {
	conf.norm()
	return &Worker{broker: broker, proc: proc, conf: conf}
}

// OnFailed 每次尝试失败都会回调；job.Exhausted() 表示已转入 failed
func (w *Worker) OnFailed(fn func(job *Job, err error)) {
	w.mu.Lock()
	w.onFailed = append(w.onFailed, fn)
	w.mu.Unlock()
}

func (w *Worker) OnCompleted(fn func(job *Job)) {
	w.mu.Lock()
	w.onCompleted = append(w.onCompleted, fn)
	w.mu.Unlock()
}

func (w *Worker) Start(ctx context.Context) {
	ctx, w.cancel = context.WithCancel(ctx)
	w.done = make(chan struct{})
	go func() {
		defer close(w.done)
		w.loop(ctx)
	}()
}

// Stop 等当前任务处理完再返回
func (w *Worker) Stop() {
	w.stopOnce.Do(func() {
		if w.cancel == nil {
			return
		}
		w.cancel()
		<-w.done
	})
}

func (w *Worker) loop(ctx context.Context) {
	for {
		job, err := w.broker.Receive(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, ErrClosed) {
				return
			}
			logger.Warn("queue receive failed", zap.Error(err))
			select {
			case <-ctx.Done():
				return
			case <-time.After(w.conf.ErrorBackoff):
			}
			continue
		}
		// 任务收尾不跟随 ctx 取消，避免停机时把任务卡在 active
		w.Process(context.WithoutCancel(ctx), job)
	}
}

// Process 执行一次尝试并把结果交回 broker
func (w *Worker) Process(ctx context.Context, job *Job) {
	start := time.Now()
	err := w.run(ctx, job)
	if err == nil {
		if cerr := w.broker.Complete(ctx, job); cerr != nil {
			logger.Error("queue complete failed", zap.String("id", job.ID), zap.Error(cerr))
		}
		metrics.RecordJob(job.Name, "completed", time.Since(start))
		w.emitCompleted(job)
		return
	}

	job.AttemptsMade++
	job.FailedReason = err.Error()
	if job.Exhausted() {
		if ferr := w.broker.Fail(ctx, job, err); ferr != nil {
			logger.Error("queue fail failed", zap.String("id", job.ID), zap.Error(ferr))
		}
		metrics.RecordJob(job.Name, "failed", time.Since(start))
	} else {
		if rerr := w.broker.Retry(ctx, job, err); rerr != nil {
			logger.Error("queue retry failed", zap.String("id", job.ID), zap.Error(rerr))
		}
		metrics.RecordJob(job.Name, "retried", time.Since(start))
	}
	w.emitFailed(job, err)
}

func (w *Worker) run(ctx context.Context, job *Job) error {
	if w.conf.JobTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, w.conf.JobTimeout)
		defer cancel()
	}
	return safe.Run(func() error { return w.proc(ctx, job) })
}

func (w *Worker) emitFailed(job *Job, err error) {
	w.mu.RLock()
	hs := append([]func(*Job, error){}, w.onFailed...)
	w.mu.RUnlock()
	for _, h := range hs {
		func() {
			defer safe.Recover("queue.onFailed")
			h(job, err)
		}()
	}
}

func (w *Worker) emitCompleted(job *Job) {
	w.mu.RLock()
	hs := append([]func(*Job){}, w.onCompleted...)
	w.mu.RUnlock()
	for _, h := range hs {
		func() {
			defer safe.Recover("queue.onCompleted")
			h(job)
		}()
	}
}

// LogFailures 默认的失败事件处理：打日志
func LogFailures(job *Job, err error) {
	fields := []zap.Field{
		zap.String("queue", job.Queue),
		zap.String("id", job.ID),
		zap.String("name", job.Name),
		zap.Int("attemptsMade", job.AttemptsMade),
		zap.Int("attempts", job.Opts.Attempts),
		zap.Error(err),
	}
	if job.Exhausted() {
		logger.Error("job failed permanently", fields...)
		return
	}
	logger.Warn("job attempt failed", fields...)
}
