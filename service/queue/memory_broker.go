package queue

import (
	"context"
	"sync"
	"time"
)

// MemoryBroker 进程内实现，单二进制开发和测试用；不持久化
type MemoryBroker struct {
	mu        sync.Mutex
	wait      []*Job
	active    map[string]*Job
	failed    []*Job
	completed []*Job
	notify    chan struct{}
	closed    chan struct{}
	closeOnce sync.Once
}

func NewMemoryBroker() *MemoryBroker {
	return &MemoryBroker{
		active: make(map[string]*Job),
		notify: make(chan struct{}, 1),
		closed: make(chan struct{}),
	}
}

func (b *MemoryBroker) signal() {
	select {
	case b.notify <- struct{}{}:
	default:
	}
}

func (b *MemoryBroker) Enqueue(_ context.Context, job *Job) error {
	select {
	case <-b.closed:
		return ErrClosed
	default:
	}
	cp := *job
	b.mu.Lock()
	b.wait = append(b.wait, &cp)
	b.mu.Unlock()
	b.signal()
	return nil
}

func (b *MemoryBroker) Receive(ctx context.Context) (*Job, error) {
	for {
		b.mu.Lock()
		if len(b.wait) > 0 {
			job := b.wait[0]
			b.wait = b.wait[1:]
			job.ProcessedOn = time.Now().UnixMilli()
			b.active[job.ID] = job
			more := len(b.wait) > 0
			b.mu.Unlock()
			if more {
				b.signal()
			}
			cp := *job
			return &cp, nil
		}
		b.mu.Unlock()

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-b.closed:
			return nil, ErrClosed
		case <-b.notify:
		}
	}
}

func (b *MemoryBroker) Complete(_ context.Context, job *Job) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.active, job.ID)
	if !job.Opts.RemoveOnComplete {
		cp := *job
		cp.FinishedOn = time.Now().UnixMilli()
		b.completed = append(b.completed, &cp)
	}
	return nil
}

func (b *MemoryBroker) Retry(_ context.Context, job *Job, cause error) error {
	cp := *job
	if cause != nil {
		cp.FailedReason = cause.Error()
	}
	b.mu.Lock()
	delete(b.active, job.ID)
	b.wait = append(b.wait, &cp)
	b.mu.Unlock()
	b.signal()
	return nil
}

func (b *MemoryBroker) Fail(_ context.Context, job *Job, cause error) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.active, job.ID)
	if job.Opts.RemoveOnFail {
		return nil
	}
	cp := *job
	if cause != nil {
		cp.FailedReason = cause.Error()
	}
	cp.FinishedOn = time.Now().UnixMilli()
	b.failed = append(b.failed, &cp)
	return nil
}

func (b *MemoryBroker) Close() error {
	b.closeOnce.Do(func() { close(b.closed) })
	return nil
}

// Failed 保留的失败任务（副本）
func (b *MemoryBroker) Failed() []*Job {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]*Job, 0, len(b.failed))
	for _, j := range b.failed {
		cp := *j
		out = append(out, &cp)
	}
	return out
}

// Counts wait/active/failed/completed 数量
func (b *MemoryBroker) Counts() map[string]int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return map[string]int{
		"wait":      len(b.wait),
		"active":    len(b.active),
		"failed":    len(b.failed),
		"completed": len(b.completed),
	}
}
