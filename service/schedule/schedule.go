package schedule

import (
	"context"
	"time"

	"PSocial/logger"
	"PSocial/tools/errs"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Task 定时任务体；返回错误只记日志
type Task func(ctx context.Context) error

// Scheduler 包一层 cron：panic 恢复、上一轮没跑完就跳过
type Scheduler struct {
	c       *cron.Cron
	ctx     context.Context
	cancel  context.CancelFunc
	timeout time.Duration
}

func New(timeout time.Duration) *Scheduler {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	l := zapLogger{}
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		c: cron.New(
			cron.WithLogger(l),
			cron.WithChain(cron.Recover(l), cron.SkipIfStillRunning(l)),
		),
		ctx:     ctx,
		cancel:  cancel,
		timeout: timeout,
	}
}

// Add 注册任务，spec 支持标准 5 段表达式和 @every 1m 这类写法
func (s *Scheduler) Add(spec, name string, task Task) error {
	_, err := s.c.AddFunc(spec, func() {
		ctx, cancel := context.WithTimeout(s.ctx, s.timeout)
		defer cancel()
		start := time.Now()
		if err := task(ctx); err != nil {
			logger.Warn("scheduled task failed", zap.String("task", name), zap.Error(err))
			return
		}
		logger.Debug("scheduled task done", zap.String("task", name), zap.Duration("cost", time.Since(start)))
	})
	if err != nil {
		return errs.ErrArgs.WrapMsg("invalid cron spec", "task", name, "spec", spec)
	}
	return nil
}

func (s *Scheduler) Start() { s.c.Start() }

// Stop 不再触发新任务，并等正在跑的任务结束（或 ctx 到期）
func (s *Scheduler) Stop(ctx context.Context) {
	done := s.c.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
		s.cancel()
	}
	s.cancel()
}

func (s *Scheduler) Len() int { return len(s.c.Entries()) }

type zapLogger struct{}

func (zapLogger) Info(msg string, kv ...interface{}) {
	logger.Log.Sugar().Debugw("cron: "+msg, kv...)
}

func (zapLogger) Error(err error, msg string, kv ...interface{}) {
	logger.Log.Sugar().Errorw("cron: "+msg, append(kv, "error", err)...)
}
