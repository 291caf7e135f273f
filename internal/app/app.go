// Package app 组装服务依赖，供 server 与 checkoutctl 共用
package app

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/d60-Lab/tailor-checkout/config"
	"github.com/d60-Lab/tailor-checkout/internal/claim"
	"github.com/d60-Lab/tailor-checkout/internal/gateway"
	"github.com/d60-Lab/tailor-checkout/internal/ledger"
	"github.com/d60-Lab/tailor-checkout/internal/notify"
	"github.com/d60-Lab/tailor-checkout/internal/repository"
	"github.com/d60-Lab/tailor-checkout/internal/service"
	"github.com/d60-Lab/tailor-checkout/pkg/cache"
	"github.com/d60-Lab/tailor-checkout/pkg/database"
	"github.com/d60-Lab/tailor-checkout/pkg/logger"
)

type App struct {
	Config     *config.Config
	DB         *gorm.DB
	Redis      *redis.Client
	Gateway    *gateway.Client
	Snapshots  repository.SnapshotRepository
	Checkout   *service.CheckoutService
	Reconciler *service.Reconciler
	Auth       *service.AuthService
}

// Build 打开数据库/Redis 并构造各组件
func Build(ctx context.Context, cfg *config.Config) (*App, error) {
	db, err := database.InitDB(cfg)
	if err != nil {
		return nil, err
	}
	if err := repository.InitSchema(db); err != nil {
		_ = database.Close(db)
		return nil, err
	}

	a := &App{Config: cfg, DB: db}
	if cfg.Claims.Store == "" || cfg.Claims.Store == "redis" {
		if a.Redis, err = cache.InitRedis(ctx, cfg); err != nil {
			a.Close()
			return nil, err
		}
	}

	claims, err := claim.NewStore(cfg.Claims, a.Redis, db)
	if err != nil {
		a.Close()
		return nil, err
	}

	notifier := notify.NewNotifier(cfg.SMTP)
	if !notifier.Enabled() {
		logger.Warn("smtp not configured, admin notifications disabled")
	}

	var sheets ledger.SheetsAPI
	if cfg.Sheets.SpreadsheetID != "" {
		gs, err := ledger.NewGoogleSheets(ctx, cfg.Sheets)
		if err != nil {
			logger.Warn("google sheets unavailable, ledger export disabled", zap.Error(err))
		} else {
			sheets = gs
		}
	} else {
		logger.Warn("sheets.spreadsheet_id not set, ledger export disabled")
	}
	exporter := ledger.NewExporter(sheets, cfg.Sheets)

	a.Gateway = gateway.NewClient(cfg.Paystack, nil)
	a.Snapshots = repository.NewSnapshotRepository(db)
	orders := repository.NewOrderRepository(db)

	a.Checkout = service.NewCheckoutService(a.Gateway, a.Snapshots)
	a.Reconciler = service.NewReconciler(a.Gateway, notifier, exporter, claims, orders, a.Snapshots)
	a.Auth = service.NewAuthService(cfg.Auth)
	return a, nil
}

// Close 释放连接
func (a *App) Close() {
	if a.Redis != nil {
		if err := a.Redis.Close(); err != nil {
			logger.Warn("close redis", zap.Error(err))
		}
	}
	if a.DB != nil {
		if err := database.Close(a.DB); err != nil {
			logger.Warn("close database", zap.Error(err))
		}
	}
}

// Addr HTTP 监听地址
func (a *App) Addr() string {
	return fmt.Sprintf(":%d", a.Config.Server.Port)
}
