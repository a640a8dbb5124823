package mgo

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	mgo "PSocial/data/database/mgo/mongoutil"
	"PSocial/logger"

	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
)

type MongoManager struct {
	mu        sync.RWMutex
	client    *mgo.Client
	readyCh   chan struct{} // 首次就绪通知；只会被 close 一次
	readyOnce sync.Once
	startOnce sync.Once

	lastErr atomic.Value // error
}

var globalMgr = &MongoManager{readyCh: make(chan struct{})}

const (
	baseBackoff = 200 * time.Millisecond
	maxBackoff  = 5 * time.Second
	healthEvery = 10 * time.Second // 健康检查周期
	failThresh  = 3                // 连续失败阈值
)

// StartAsync 一直运行到 ctx.Done()；首次连上时 close readyCh，后续掉线会自动重连
func StartAsync(ctx context.Context, cfg *mgo.Config) {
	globalMgr.startOnce.Do(func() {
		go globalMgr.run(ctx, cfg)
	})
}

func (m *MongoManager) run(ctx context.Context, cfg *mgo.Config) {
	for {
		if !m.connect(ctx, cfg) {
			return
		}
		m.watch(ctx) // 健康循环结束后回到外层 for 重连
		if ctx.Err() != nil {
			return
		}
	}
}

// connect 带退避重试；ctx 结束返回 false
func (m *MongoManager) connect(ctx context.Context, cfg *mgo.Config) bool {
	attempt := 0
	for {
		if ctx.Err() != nil {
			return false
		}
		cli, err := mgo.NewMongoDB(ctx, cfg)
		if err == nil {
			m.mu.Lock()
			m.client = cli
			m.mu.Unlock()
			m.readyOnce.Do(func() { close(m.readyCh) })
			logger.Info("mongo connected", zap.String("db", cfg.Database))
			return true
		}

		m.lastErr.Store(err)
		logger.Warn("mongo connect failed", zap.Int("attempt", attempt), zap.Error(err))

		// 退避 + 抖动
		backoff := baseBackoff << attempt
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
		jitter := time.Duration(rand.Int63n(int64(backoff/5) + 1)) // 0~20%
		timer := time.NewTimer(backoff - jitter/2)
		select {
		case <-ctx.Done():
			timer.Stop()
			return false
		case <-timer.C:
		}
		if attempt < 6 {
			attempt++
		}
	}
}

func (m *MongoManager) watch(ctx context.Context) {
	fail := 0
	t := time.NewTicker(healthEvery)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			m.drop()
			return
		case <-t.C:
			m.mu.RLock()
			c := m.client
			m.mu.RUnlock()
			if c == nil {
				return
			}
			pctx, cancel := context.WithTimeout(ctx, 3*time.Second)
			err := c.Ping(pctx)
			cancel()
			if err == nil {
				fail = 0
				continue
			}
			fail++
			m.lastErr.Store(err)
			if fail >= failThresh {
				logger.Warn("mongo unhealthy, reconnecting", zap.Error(err))
				m.drop()
				return
			}
		}
	}
}

func (m *MongoManager) drop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.client != nil {
		_ = m.client.Disconnect(context.Background())
		m.client = nil
	}
}

// Ready 首次连接成功时会 close；可 select 等待
func Ready() <-chan struct{} {
	return globalMgr.readyCh
}

func Manager() *MongoManager {
	return globalMgr
}

// Err 最近一次错误
func Err() error {
	if v := globalMgr.lastErr.Load(); v != nil {
		return v.(error)
	}
	return nil
}

func GetDB() *mongo.Database {
	db, ok := TryGetDB()
	if !ok {
		panic("Mongo not ready: wait Ready() or use TryGetDB()")
	}
	return db
}

func TryGetDB() (*mongo.Database, bool) {
	globalMgr.mu.RLock()
	defer globalMgr.mu.RUnlock()
	if globalMgr.client == nil {
		return nil, false
	}
	return globalMgr.client.GetDB(), true
}

// WaitReady 阻塞到首次连接成功或 ctx 结束
func WaitReady(ctx context.Context, m *MongoManager) error {
	m.mu.RLock()
	readyCh := m.readyCh
	connected := m.client != nil
	m.mu.RUnlock()

	if connected {
		return nil
	}
	if readyCh == nil {
		return fmt.Errorf("mongo manager not started")
	}

	select {
	case <-readyCh:
		return nil
	case <-ctx.Done():
		if err := Err(); err != nil {
			return fmt.Errorf("mongo not ready: %w", err)
		}
		return ctx.Err()
	}
}

// Close 进程退出时调用
func Close() {
	globalMgr.drop()
}
