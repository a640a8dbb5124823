package global

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"PSocial/global/config"
	"PSocial/logger"
	mid "PSocial/middleware"
	midsec "PSocial/middleware/security"
	"PSocial/module/chat"
	"PSocial/module/chat/handler"
	chatmodel "PSocial/module/chat/model"
	chatstore "PSocial/module/chat/store"
	"PSocial/module/friend"
	friendsvc "PSocial/module/friend/service"
	friendstore "PSocial/module/friend/store"
	"PSocial/module/notification"
	nmodel "PSocial/module/notification/model"
	nsvc "PSocial/module/notification/service"
	nstore "PSocial/module/notification/store"
	userstore "PSocial/module/user/store"
	wsgw "PSocial/service/chat"
	"PSocial/service/metrics"
	mgoSrv "PSocial/service/mgo"
	"PSocial/service/natsx"
	"PSocial/service/queue"
	"PSocial/service/schedule"
	"PSocial/service/sse"
	"PSocial/service/storage"
	rdx "PSocial/service/storage/redis"
	"PSocial/tools/errs"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// App 进程内的所有长生命周期组件
type App struct {
	Cfg config.AppConfig

	PG      *pgxpool.Pool
	Mirror  *storage.OnlineMirror
	Hub     *sse.Hub
	Gateway *wsgw.Server

	Queue     *queue.Queue
	Broker    queue.Broker
	Worker    *queue.Worker
	Scheduler *schedule.Scheduler

	releaseBroker func() error
	messages      *chatstore.MessageStore
}

// Boot 按依赖顺序初始化；任何一步失败都会把已经起来的部分关掉
func Boot(ctx context.Context, path string) (_ *App, err error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	config.Global = cfg

	ConfigLogger(cfg)
	ConfigIds(cfg)
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	app := &App{Cfg: cfg, Hub: sse.NewHub()}
	defer func() {
		if err != nil {
			sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			app.Shutdown(sctx)
			cancel()
		}
	}()

	if err = ConfigRedis(cfg); err != nil {
		return nil, err
	}
	if err = ConfigMgo(ctx, cfg); err != nil {
		return nil, errs.WrapMsg(err, "mongo not ready")
	}
	if app.PG, err = ConfigPostgres(ctx, cfg); err != nil {
		return nil, err
	}
	ConfigMiddleware(cfg)

	app.messages = chatstore.NewMessageStore(chatmodel.Message{}.Collection())
	if err = app.messages.EnsureIndexes(ctx); err != nil {
		logger.Warn("ensure message indexes failed", zap.Error(err))
	}

	node := cfg.App.Name + "-" + strconv.FormatInt(cfg.App.NodeID, 10)
	app.Mirror = storage.NewOnlineMirror(rdx.GetRedis(), cfg.Redis.Prefix, node, cfg.WS.PresenceTTL)
	app.bootGateway(cfg)

	if err = app.bootQueue(ctx, cfg); err != nil {
		return nil, err
	}
	if err = app.bootScheduler(cfg); err != nil {
		return nil, err
	}
	return app, nil
}

func (a *App) bootGateway(cfg config.AppConfig) {
	disp := wsgw.NewDispatcher()
	handler.New(a.messages, chatstore.NewChatRepo(a.PG)).Register(disp)

	auth := midsec.DefaultOptions()
	auth.QueryParam = "token"
	a.Gateway = wsgw.NewServer(wsgw.Conf{
		PingInterval:   cfg.WS.PingInterval,
		WriteWait:      cfg.WS.WriteWait,
		PongWait:       cfg.WS.PongWait,
		ReadLimit:      cfg.WS.ReadLimit,
		SendBuffer:     cfg.WS.SendBuffer,
		HandlerTimeout: cfg.WS.HandlerTimeout,
		AllowedOrigins: cfg.App.FrontendURLs,
	}, auth, disp)
	a.Gateway.SetMirror(a.Mirror)
	logger.Info("socket events registered", zap.Strings("events", disp.Events()))
}

func (a *App) bootQueue(ctx context.Context, cfg config.AppConfig) error {
	b, release, err := ConfigQueue(ctx, cfg)
	if err != nil {
		return err
	}
	a.Broker, a.releaseBroker = b, release
	a.Queue = queue.New(nmodel.QueueName, b, jobOptions(cfg))

	proc := nsvc.NewProcessor(nstore.NewNotificationRepo(a.PG), userstore.NewProfileRepo(a.PG), a.Hub)
	a.Worker = queue.NewWorker(b, proc.Process, queue.WorkerConf{JobTimeout: cfg.WS.HandlerTimeout})
	a.Worker.OnFailed(queue.LogFailures)
	a.Worker.Start(ctx)
	logger.Info("notification worker started", zap.String("backend", cfg.Queue.Backend), zap.String("queue", a.Queue.Name()))
	return nil
}

func (a *App) bootScheduler(cfg config.AppConfig) error {
	a.Scheduler = schedule.New(30 * time.Second)

	refresh := cfg.WS.PresenceTTL / 2
	if refresh <= 0 {
		refresh = time.Minute
	}
	refreshEvery := "@every " + refresh.String()
	if err := a.Scheduler.Add(refreshEvery, "presence-refresh", func(ctx context.Context) error {
		return a.Mirror.Refresh(ctx, a.Gateway.Registry().Snapshot())
	}); err != nil {
		return err
	}

	switch b := a.Broker.(type) {
	case *queue.RedisBroker:
		if err := a.Scheduler.Add(cfg.Queue.StalledEvery, "queue-recover-stalled", func(ctx context.Context) error {
			n, err := b.RecoverStalled(ctx)
			if n > 0 {
				logger.Warn("stalled jobs moved back to wait", zap.Int("count", n))
			}
			return err
		}); err != nil {
			return err
		}
		if err := a.Scheduler.Add("@every 1m", "queue-counts", func(ctx context.Context) error {
			return logQueueCounts(ctx, b)
		}); err != nil {
			return err
		}
	case *natsx.Broker:
		if err := a.Scheduler.Add("@every 1m", "nats-idem-sweep", func(context.Context) error {
			if n := b.SweepIdem(); n > 0 {
				logger.Debug("nats idem swept", zap.Int("count", n))
			}
			return nil
		}); err != nil {
			return err
		}
	}
	a.Scheduler.Start()
	return nil
}

// Router 组装 HTTP 入口
func (a *App) Router() *gin.Engine {
	r := gin.New()
	r.Use(mid.Recovery(), mid.AccessLog(), mid.Metrics(), mid.Manager().Use())

	r.GET("/ws", a.Gateway.HandleWS)
	r.GET("/healthz", a.health)
	r.GET("/metrics", gin.WrapH(metrics.Handler()))

	profiles := userstore.NewProfileRepo(a.PG)
	chat.NewAPI(a.messages, profiles, a.Mirror).Routes(r)
	notification.NewAPI(nstore.NewNotificationRepo(a.PG), a.Hub, a.Cfg.SSE.Heartbeat).Routes(r)
	friend.NewAPI(friendsvc.New(friendstore.NewFriendshipRepo(a.PG), a.Queue)).Routes(r)
	return r
}

func (a *App) health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	status := gin.H{"postgres": "ok", "redis": "ok", "mongo": "ok"}
	code := http.StatusOK
	if err := a.PG.Ping(ctx); err != nil {
		status["postgres"], code = err.Error(), http.StatusServiceUnavailable
	}
	if err := rdx.GetRedis().Ping(ctx).Err(); err != nil {
		status["redis"], code = err.Error(), http.StatusServiceUnavailable
	}
	if _, ok := mgoSrv.TryGetDB(); !ok {
		status["mongo"], code = "not connected", http.StatusServiceUnavailable
	}
	status["sockets"] = a.Gateway.ConnCount()
	status["sse"] = a.Hub.Count()
	c.JSON(code, status)
}

// Shutdown 先断客户端，再停后台任务，最后关存储
func (a *App) Shutdown(ctx context.Context) {
	if a.Gateway != nil {
		a.Gateway.Close(ctx)
	}
	if a.Hub != nil {
		a.Hub.CloseAll()
	}
	if a.Scheduler != nil {
		a.Scheduler.Stop(ctx)
	}
	if a.Worker != nil {
		a.Worker.Stop()
	}
	if a.Broker != nil {
		if err := a.Broker.Close(); err != nil {
			logger.Warn("close broker", zap.Error(err))
		}
		if err := a.releaseBroker(); err != nil {
			logger.Warn("release broker connection", zap.Error(err))
		}
	}
	if a.PG != nil {
		a.PG.Close()
	}
	mgoSrv.Close()
	if err := rdx.CloseRedis(); err != nil {
		logger.Warn("close redis", zap.Error(err))
	}
	logger.Info("shutdown complete")
	logger.Sync()
}
