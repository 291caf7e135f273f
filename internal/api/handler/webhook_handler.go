package handler

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/d60-Lab/tailor-checkout/internal/gateway"
	"github.com/d60-Lab/tailor-checkout/internal/service"
	"github.com/d60-Lab/tailor-checkout/pkg/logger"
	"github.com/d60-Lab/tailor-checkout/pkg/response"
)

const maxWebhookBody = 1 << 20

// PaymentWebhook 网关事件推送；签名通过后尽快应答，提交交给 dispatcher
// @Summary 支付 webhook
// @Tags 支付
// @Accept json
// @Produce json
// @Param X-Paystack-Signature header string true "HMAC-SHA512 签名"
// @Success 200 {object} response.Response
// @Failure 400 {object} response.Response
// @Failure 401 {object} response.Response
// @Router /api/v1/payments/webhook [post]
func (h *Handler) PaymentWebhook(c *gin.Context) {
	raw, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody))
	if err != nil {
		response.BadRequest(c, "unreadable body")
		return
	}

	txn, relevant, err := h.reconciler.ParseWebhook(raw, c.GetHeader(gateway.SignatureHeader))
	switch {
	case errors.Is(err, service.ErrInvalidSignature):
		logger.Warn("webhook rejected", zap.String("client_ip", c.ClientIP()))
		response.Unauthorized(c, "invalid signature")
		return
	case err != nil:
		response.BadRequest(c, err.Error())
		return
	case !relevant:
		response.Success(c, gin.H{"status": "ignored"})
		return
	}

	if h.dispatcher != nil && h.dispatcher.Enqueue(txn) {
		response.Success(c, gin.H{"status": "queued", "reference": txn.Reference})
		return
	}

	out, err := h.reconciler.ReconcileWebhook(c.Request.Context(), txn)
	if err != nil {
		// 网关会重投，返回 5xx
		logger.Error("webhook reconcile failed", zap.String("reference", txn.Reference), zap.Error(err))
		response.Fail(c, http.StatusInternalServerError, "reconcile failed")
		return
	}
	response.Success(c, gin.H{"status": "processed", "reference": out.Reference, "state": out.State})
}
