package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/d60-Lab/tailor-checkout/config"
	"github.com/d60-Lab/tailor-checkout/internal/api"
	"github.com/d60-Lab/tailor-checkout/internal/app"
	"github.com/d60-Lab/tailor-checkout/internal/service"
	"github.com/d60-Lab/tailor-checkout/pkg/logger"
	"github.com/d60-Lab/tailor-checkout/pkg/observability"
)

// @title Tailor Checkout API
// @version 1.0
// @description Payment initialization, verification, webhook intake and order reconciliation.
// @BasePath /
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}
	if err := logger.Init(cfg.Log.Level, cfg.Log.Env); err != nil {
		panic(err)
	}
	defer logger.Sync()

	flushSentry, err := observability.InitSentry(cfg.Sentry)
	if err != nil {
		logger.Fatal("init sentry", zap.Error(err))
	}
	defer flushSentry()

	ctx := context.Background()
	shutdownTracer, err := observability.InitTracer(ctx, cfg.Tracing)
	if err != nil {
		logger.Fatal("init tracer", zap.Error(err))
	}

	a, err := app.Build(ctx, cfg)
	if err != nil {
		logger.Fatal("build app", zap.Error(err))
	}
	defer a.Close()

	dispatcher := service.NewDispatcher(a.Reconciler, cfg.Dispatcher.QueueSize)
	stopDispatcher := dispatcher.Start(cfg.Dispatcher.Workers)

	router := api.NewRouter(api.Deps{
		Config:     cfg,
		Checkout:   a.Checkout,
		Reconciler: a.Reconciler,
		Dispatcher: dispatcher,
		Auth:       a.Auth,
		DB:         a.DB,
		Redis:      a.Redis,
	})

	srv := &http.Server{
		Addr:              a.Addr(),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("listen", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", zap.Error(err))
	}
	if err := stopDispatcher(shutdownCtx); err != nil {
		logger.Error("dispatcher shutdown", zap.Error(err), zap.Int("pending", dispatcher.QueueLen()))
	}
	if err := shutdownTracer(shutdownCtx); err != nil {
		logger.Error("tracer shutdown", zap.Error(err))
	}
}
