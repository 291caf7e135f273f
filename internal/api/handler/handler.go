package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/d60-Lab/tailor-checkout/internal/gateway"
	"github.com/d60-Lab/tailor-checkout/internal/service"
	"github.com/d60-Lab/tailor-checkout/pkg/logger"
	"github.com/d60-Lab/tailor-checkout/pkg/response"
)

// Handler HTTP 处理器集合
type Handler struct {
	checkout   *service.CheckoutService
	reconciler *service.Reconciler
	dispatcher *service.Dispatcher
	auth       *service.AuthService
}

// New dispatcher 为空时 webhook 同步处理
func New(checkout *service.CheckoutService, reconciler *service.Reconciler, dispatcher *service.Dispatcher, auth *service.AuthService) *Handler {
	return &Handler{checkout: checkout, reconciler: reconciler, dispatcher: dispatcher, auth: auth}
}

// writeError 按错误类型映射 HTTP 状态
func writeError(c *gin.Context, err error) {
	var cfgErr *gateway.ConfigurationError
	var gwErr *gateway.Error
	switch {
	case errors.Is(err, service.ErrInvalidOrder):
		response.BadRequest(c, err.Error())
	case errors.As(err, &cfgErr):
		logger.Error("payment gateway misconfigured", zap.String("setting", cfgErr.Setting))
		response.InternalError(c, err)
	case errors.As(err, &gwErr):
		logger.Warn("payment gateway error", zap.String("op", gwErr.Op), zap.Int("status", gwErr.StatusCode), zap.Error(err))
		response.Fail(c, http.StatusBadGateway, "payment gateway error: "+gwErr.Message)
	default:
		response.InternalError(c, err)
	}
}
