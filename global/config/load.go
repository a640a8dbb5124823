package config

import (
	"os"
	"strings"

	"PSocial/tools"
	"PSocial/tools/errs"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

var Global = Default()

// Load 读取 yaml（可为空路径）+ .env + 环境变量，结果写入 Global
func Load(path string) (AppConfig, error) {
	cfg := Default()

	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return cfg, errs.WrapMsg(err, "read config", "path", path)
		}
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return cfg, errs.WrapMsg(err, "parse config", "path", path)
		}
	}

	// .env 不存在不算错误
	_ = godotenv.Load()
	applyEnv(&cfg)

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	Global = cfg
	return cfg, nil
}

// 环境变量名沿用老服务的命名（PORT / JWT_SECRET / MONGODB_URI ...）
func applyEnv(c *AppConfig) {
	c.App.Port = tools.GetEnvInt("PORT", c.App.Port)
	c.App.Env = tools.GetEnv("NODE_ENV", tools.GetEnv("APP_ENV", c.App.Env))
	c.App.NodeID = int64(tools.GetEnvInt("NODE_ID", int(c.App.NodeID)))
	c.App.FrontendURLs = tools.GetEnvList("FRONTEND_URLS", c.App.FrontendURLs)
	c.App.ShutdownWait = tools.GetEnvDuration("SHUTDOWN_WAIT", c.App.ShutdownWait)

	c.Log.Level = tools.GetEnv("LOG_LEVEL", c.Log.Level)
	c.Log.Development = tools.GetEnvBool("LOG_DEVELOPMENT", c.Log.Development)

	c.JWT.Secret = tools.GetEnv("JWT_SECRET", c.JWT.Secret)
	c.JWT.TTL = tools.GetEnvDuration("JWT_TTL", c.JWT.TTL)

	if host := os.Getenv("REDIS_HOST"); host != "" {
		c.Redis.Addr = host + ":" + tools.GetEnv("REDIS_PORT", "6379")
	}
	c.Redis.Addr = tools.GetEnv("REDIS_ADDR", c.Redis.Addr)
	c.Redis.Password = tools.GetEnv("REDIS_PASSWORD", c.Redis.Password)
	c.Redis.DB = tools.GetEnvInt("REDIS_DB", c.Redis.DB)

	c.Mongo.Uri = tools.GetEnv("MONGODB_URI", c.Mongo.Uri)
	c.Mongo.Database = tools.GetEnv("MONGODB_DATABASE", c.Mongo.Database)

	c.Postgres.DSN = tools.GetEnv("DATABASE_URL", c.Postgres.DSN)

	c.Queue.Backend = strings.ToLower(tools.GetEnv("QUEUE_BACKEND", c.Queue.Backend))
	c.Queue.Attempts = tools.GetEnvInt("QUEUE_ATTEMPTS", c.Queue.Attempts)

	c.Kafka.Brokers = tools.GetEnvList("KAFKA_BROKERS", c.Kafka.Brokers)
	c.Nats.Servers = tools.GetEnvList("NATS_SERVERS", c.Nats.Servers)
	c.Nats.User = tools.GetEnv("NATS_USER", c.Nats.User)
	c.Nats.Password = tools.GetEnv("NATS_PASSWORD", c.Nats.Password)
}

func (c AppConfig) Validate() error {
	if c.JWT.Secret == "" {
		return errs.ErrArgs.WrapMsg("jwt secret is required (JWT_SECRET)")
	}
	if c.App.Port <= 0 || c.App.Port > 65535 {
		return errs.ErrArgs.WrapMsg("invalid port", "port", c.App.Port)
	}
	if c.Queue.Attempts <= 0 {
		return errs.ErrArgs.WrapMsg("queue attempts must be positive", "attempts", c.Queue.Attempts)
	}
	switch c.Queue.Backend {
	case QueueBackendRedis, QueueBackendKafka, QueueBackendNats, QueueBackendMemory:
	default:
		return errs.ErrArgs.WrapMsg("unknown queue backend", "backend", c.Queue.Backend)
	}
	return nil
}
