package natsx

import (
	"errors"
	"strings"
	"sync"
	"time"

	"PSocial/global/config"
	"PSocial/logger"
	"PSocial/tools/errs"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

// Client 连接 + JetStream 上下文
type Client struct {
	cfg config.Nats
	nc  *nats.Conn

	mu sync.Mutex
	js nats.JetStreamContext
}

// NewClient 连接 NATS，断线无限重连
func NewClient(cfg config.Nats) (*Client, error) {
	if len(cfg.Servers) == 0 {
		return nil, errs.ErrArgs.WrapMsg("nats servers missing")
	}
	opts := []nats.Option{
		nats.Name(cfg.Name),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(500 * time.Millisecond),
		nats.ReconnectJitter(100*time.Millisecond, 500*time.Millisecond),
		nats.Timeout(3 * time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("nats disconnected", zap.Error(err))
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("nats reconnected", zap.String("url", nc.ConnectedUrl()))
		}),
	}
	if cfg.User != "" {
		opts = append(opts, nats.UserInfo(cfg.User, cfg.Password))
	}
	nc, err := nats.Connect(strings.Join(cfg.Servers, ","), opts...)
	if err != nil {
		return nil, errs.WrapMsg(err, "nats connect", "servers", cfg.Servers)
	}
	return &Client{cfg: cfg, nc: nc}, nil
}

// JetStream 懒加载
func (c *Client) JetStream() (nats.JetStreamContext, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.js != nil {
		return c.js, nil
	}
	js, err := c.nc.JetStream(nats.PublishAsyncMaxPending(4096))
	if err != nil {
		return nil, errs.WrapMsg(err, "init jetstream")
	}
	c.js = js
	return js, nil
}

// EnsureStream 不存在则创建；已存在时补齐 subjects
func (c *Client) EnsureStream(name string, subjects ...string) error {
	js, err := c.JetStream()
	if err != nil {
		return err
	}
	info, err := js.StreamInfo(name)
	if errors.Is(err, nats.ErrStreamNotFound) {
		_, err = js.AddStream(&nats.StreamConfig{
			Name:       name,
			Subjects:   subjects,
			Storage:    nats.FileStorage,
			Retention:  nats.LimitsPolicy,
			Duplicates: 2 * time.Minute,
		})
		if err != nil {
			return errs.WrapMsg(err, "add stream", "stream", name)
		}
		logger.Info("nats stream created", zap.String("stream", name), zap.Strings("subjects", subjects))
		return nil
	}
	if err != nil {
		return errs.WrapMsg(err, "stream info", "stream", name)
	}

	merged, changed := mergeSubjects(info.Config.Subjects, subjects)
	if !changed {
		return nil
	}
	cfg := info.Config
	cfg.Subjects = merged
	if _, err := js.UpdateStream(&cfg); err != nil {
		return errs.WrapMsg(err, "update stream", "stream", name)
	}
	return nil
}

func mergeSubjects(have, want []string) ([]string, bool) {
	seen := make(map[string]struct{}, len(have))
	out := append([]string(nil), have...)
	for _, s := range have {
		seen[s] = struct{}{}
	}
	changed := false
	for _, s := range want {
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
		changed = true
	}
	return out, changed
}

// Close 优雅关闭
func (c *Client) Close() error {
	if c.nc == nil || c.nc.IsClosed() {
		return nil
	}
	return c.nc.Drain()
}
