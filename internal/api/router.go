package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"gorm.io/gorm"

	"github.com/d60-Lab/tailor-checkout/config"
	_ "github.com/d60-Lab/tailor-checkout/docs"
	"github.com/d60-Lab/tailor-checkout/internal/api/handler"
	"github.com/d60-Lab/tailor-checkout/internal/api/middleware"
	"github.com/d60-Lab/tailor-checkout/internal/service"
	"github.com/d60-Lab/tailor-checkout/pkg/logger"
	"github.com/d60-Lab/tailor-checkout/pkg/response"
)

// Deps 路由依赖，db/rdb 仅用于健康检查，可为空
type Deps struct {
	Config     *config.Config
	Checkout   *service.CheckoutService
	Reconciler *service.Reconciler
	Dispatcher *service.Dispatcher
	Auth       *service.AuthService
	DB         *gorm.DB
	Redis      *redis.Client
}

// NewRouter 注册全部路由
func NewRouter(d Deps) *gin.Engine {
	if d.Config.Server.Mode != "" {
		gin.SetMode(d.Config.Server.Mode)
	}
	r := gin.New()
	r.Use(gin.Recovery(), logger.GinLogger())
	if d.Config.Tracing.Enabled {
		r.Use(otelgin.Middleware(d.Config.Tracing.ServiceName))
	}

	h := handler.New(d.Checkout, d.Reconciler, d.Dispatcher, d.Auth)
	limiter := middleware.NewRateLimiter(d.Config.RateLimit.RPS, d.Config.RateLimit.Burst)

	r.GET("/healthz", healthz(d.DB, d.Redis))
	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	v1 := r.Group("/api/v1")
	{
		// webhook 需要原始 body 验签，不走 gzip
		v1.POST("/payments/webhook", limiter.Middleware(), h.PaymentWebhook)

		pay := v1.Group("/payments", gzip.Gzip(gzip.DefaultCompression), limiter.Middleware())
		pay.POST("/initialize", h.InitializePayment)
		pay.GET("/verify/:reference", h.VerifyPayment)
		pay.POST("/confirm", h.ConfirmPayment)

		v1.POST("/orders", gzip.Gzip(gzip.DefaultCompression), limiter.Middleware(), h.PlaceOrder)

		ops := v1.Group("/ops", gzip.Gzip(gzip.DefaultCompression))
		ops.POST("/login", limiter.Middleware(), h.Login)
		authed := ops.Group("", middleware.JWTAuth(d.Auth))
		authed.GET("/orders", h.ListOrders)
		authed.GET("/orders/:reference", h.GetOrder)
		authed.POST("/orders/:reference/replay", h.ReplayOrder)
	}
	return r
}

func healthz(db *gorm.DB, rdb *redis.Client) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()

		status := gin.H{"database": "skipped", "redis": "skipped"}
		healthy := true
		if db != nil {
			status["database"] = "ok"
			if sqlDB, err := db.DB(); err != nil || sqlDB.PingContext(ctx) != nil {
				status["database"] = "down"
				healthy = false
			}
		}
		if rdb != nil {
			status["redis"] = "ok"
			if err := rdb.Ping(ctx).Err(); err != nil {
				status["redis"] = "down"
				healthy = false
			}
		}
		if !healthy {
			response.FailWithData(c, http.StatusServiceUnavailable, "unhealthy", status)
			return
		}
		response.Success(c, status)
	}
}
