package redis

import (
	"context"
	"strings"
	"sync"
	"time"

	"PSocial/tools/errs"

	"github.com/redis/go-redis/v9"
)

var (
	redisOnce sync.Once
	redisMgr  *RedisManager
)

type RedisManager struct {
	client *redis.Client
	prefix string
}

// Config 用于初始化 Redis
type Config struct {
	Addr     string
	Password string
	DB       int
	PoolSize int
	Prefix   string // key 前缀，多个环境共用一个实例时区分
}

// InitRedis 初始化 Redis 管理器（单例）
func InitRedis(c Config) error {
	var initErr error
	redisOnce.Do(func() {
		rdb := redis.NewClient(&redis.Options{
			Addr:     c.Addr,
			Password: c.Password,
			DB:       c.DB,
			PoolSize: c.PoolSize,
		})

		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()

		if err := rdb.Ping(ctx).Err(); err != nil {
			initErr = errs.WrapMsg(err, "redis ping", "addr", c.Addr)
			_ = rdb.Close()
			return
		}

		redisMgr = &RedisManager{client: rdb, prefix: c.Prefix}
	})
	return initErr
}

// GetRedis 获取 Redis Client
func GetRedis() *redis.Client {
	if redisMgr == nil {
		panic("Redis not initialized, call InitRedis first")
	}
	return redisMgr.client
}

// Key 拼接带前缀的 key：Key("queue", "wait") -> psocial:queue:wait
func Key(parts ...string) string {
	prefix := ""
	if redisMgr != nil {
		prefix = redisMgr.prefix
	}
	return JoinKey(prefix, parts...)
}

func JoinKey(prefix string, parts ...string) string {
	all := make([]string, 0, len(parts)+1)
	if prefix != "" {
		all = append(all, prefix)
	}
	all = append(all, parts...)
	return strings.Join(all, ":")
}

// CloseRedis 关闭连接
func CloseRedis() error {
	if redisMgr != nil && redisMgr.client != nil {
		return redisMgr.client.Close()
	}
	return nil
}
