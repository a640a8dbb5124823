package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"PSocial/global"
	"PSocial/logger"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func main() {
	path := flag.String("config", "config/psocial.yaml", "config file path")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := global.Boot(ctx, *path)
	if err != nil {
		logger.Error("boot failed", zap.Error(err))
		logger.Sync()
		os.Exit(1)
	}

	srv := &http.Server{
		Addr:    ":" + strconv.Itoa(app.Cfg.App.Port),
		Handler: app.Router(),
	}
	// SSE 请求不结束 Shutdown 就一直等，开始关闭时先把流断掉
	srv.RegisterOnShutdown(app.Hub.CloseAll)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("http listening", zap.String("addr", srv.Addr), zap.String("env", app.Cfg.App.Env))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		sctx, cancel := context.WithTimeout(context.Background(), app.Cfg.App.ShutdownWait)
		defer cancel()
		err := srv.Shutdown(sctx)
		// websocket 是 hijack 出去的连接，http.Server 不管，交给 gateway 关
		app.Shutdown(sctx)
		return err
	})

	if err := g.Wait(); err != nil {
		logger.Error("server exited", zap.Error(err))
		os.Exit(1)
	}
}
