package global

import (
	"context"
	"time"

	"PSocial/data/database/mgo/mongoutil"
	"PSocial/data/database/pg/pgutil"
	"PSocial/global/config"
	"PSocial/logger"
	mid "PSocial/middleware"
	midsec "PSocial/middleware/security"
	"PSocial/service/kafka"
	mgoSrv "PSocial/service/mgo"
	"PSocial/service/natsx"
	"PSocial/service/queue"
	rdx "PSocial/service/storage/redis"
	"PSocial/tools/errs"
	"PSocial/tools/ids"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

func ConfigLogger(c config.AppConfig) {
	logger.Init(c.Log.Level, c.Log.Development)
}

func ConfigIds(c config.AppConfig) {
	ids.SetNodeID(c.App.NodeID)
}

func ConfigRedis(c config.AppConfig) error {
	return rdx.InitRedis(rdx.Config{
		Addr:     c.Redis.Addr,
		Password: c.Redis.Password,
		DB:       c.Redis.DB,
		PoolSize: c.Redis.PoolSize,
		Prefix:   c.Redis.Prefix,
	})
}

// ConfigMgo 后台连接并自动重连；这里等首次就绪，超时算启动失败
func ConfigMgo(ctx context.Context, c config.AppConfig) error {
	cfg := &mongoutil.Config{
		Uri:         c.Mongo.Uri,
		Address:     c.Mongo.Address,
		Database:    c.Mongo.Database,
		Username:    c.Mongo.Username,
		Password:    c.Mongo.Password,
		AuthSource:  c.Mongo.AuthSource,
		MaxPoolSize: c.Mongo.MaxPoolSize,
		MaxRetry:    c.Mongo.MaxRetry,
	}
	mgoSrv.StartAsync(ctx, cfg)

	wctx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()
	return mgoSrv.WaitReady(wctx, mgoSrv.Manager())
}

func ConfigPostgres(ctx context.Context, c config.AppConfig) (*pgxpool.Pool, error) {
	return pgutil.NewPool(ctx, pgutil.Config{DSN: c.Postgres.DSN, MaxConns: c.Postgres.MaxConns})
}

// ConfigMiddleware 全局前置检查 + 路由鉴权
func ConfigMiddleware(c config.AppConfig) {
	mid.Manager().Add(mid.Origin(c.App.FrontendURLs))
	mid.SetAuth(midsec.Middleware(midsec.DefaultOptions()))
}

// ConfigQueue 按 backend 选 broker；kafka 需要 Start 之后才开始消费。
// release 在 broker.Close 之后调用，用来断开底层连接。
func ConfigQueue(ctx context.Context, c config.AppConfig) (b queue.Broker, release func() error, err error) {
	noop := func() error { return nil }
	switch c.Queue.Backend {
	case config.QueueBackendRedis, "":
		return queue.NewRedisBroker(rdx.GetRedis(), queue.RedisBrokerConf{
			Prefix:  c.Redis.Prefix,
			Queue:   c.Queue.Name,
			LockTTL: c.Queue.LockTTL,
		}), noop, nil
	case config.QueueBackendKafka:
		kb, err := kafka.NewBroker(c.Kafka)
		if err != nil {
			return nil, nil, err
		}
		kb.Start(ctx)
		return kb, noop, nil
	case config.QueueBackendNats:
		cli, err := natsx.NewClient(c.Nats)
		if err != nil {
			return nil, nil, err
		}
		nb, err := natsx.NewBroker(cli, c.Nats)
		if err != nil {
			_ = cli.Close()
			return nil, nil, err
		}
		return nb, cli.Close, nil
	case config.QueueBackendMemory:
		logger.Warn("queue backend is memory, jobs are lost on restart")
		return queue.NewMemoryBroker(), noop, nil
	}
	return nil, nil, errs.ErrArgs.WrapMsg("unknown queue backend", "backend", c.Queue.Backend)
}

func jobOptions(c config.AppConfig) queue.JobOptions {
	return queue.JobOptions{
		Attempts:         c.Queue.Attempts,
		RemoveOnComplete: c.Queue.RemoveOnComplete,
		RemoveOnFail:     c.Queue.RemoveOnFail,
	}
}

func logQueueCounts(ctx context.Context, b *queue.RedisBroker) error {
	counts, err := b.Counts(ctx)
	if err != nil {
		return err
	}
	fields := []zap.Field{zap.Any("counts", counts)}
	if counts["failed"] > 0 {
		failed, err := b.Failed(ctx, 5)
		if err != nil {
			return err
		}
		for _, j := range failed {
			fields = append(fields, zap.String("failed."+j.ID, j.Name+": "+j.FailedReason))
		}
		logger.Warn("queue has failed jobs", fields...)
		return nil
	}
	logger.Debug("queue counts", fields...)
	return nil
}
