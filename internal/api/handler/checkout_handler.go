package handler

import (
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"github.com/d60-Lab/tailor-checkout/internal/model"
	"github.com/d60-Lab/tailor-checkout/internal/service"
	"github.com/d60-Lab/tailor-checkout/pkg/response"
)

type confirmRequest struct {
	Reference string              `json:"reference" binding:"required"`
	Order     *model.PendingOrder `json:"order"`
}

type verifyResponse struct {
	Reference string          `json:"reference"`
	Status    string          `json:"status"`
	Amount    decimal.Decimal `json:"amount"`
	Currency  string          `json:"currency"`
	Channel   string          `json:"channel,omitempty"`
	Message   string          `json:"message,omitempty"`
}

// Payer-visible confirmation result
type confirmResponse struct {
	Reference        string `json:"reference"`
	Status           string `json:"status"`
	State            string `json:"state"`
	FollowUpRequired bool   `json:"follow_up_required"`
	Message          string `json:"message,omitempty"`
}

// InitializePayment 发起支付
// @Summary 发起支付
// @Tags 支付
// @Accept json
// @Produce json
// @Param request body model.PendingOrder true "订单"
// @Success 200 {object} response.Response{data=gateway.InitializeResult}
// @Failure 400 {object} response.Response
// @Failure 502 {object} response.Response
// @Router /api/v1/payments/initialize [post]
func (h *Handler) InitializePayment(c *gin.Context) {
	var order model.PendingOrder
	if err := c.ShouldBindJSON(&order); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	res, err := h.checkout.Initialize(c.Request.Context(), &order)
	if err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, res)
}

// VerifyPayment 只查询交易状态
// @Summary 查询支付
// @Tags 支付
// @Produce json
// @Param reference path string true "支付 reference"
// @Success 200 {object} response.Response{data=verifyResponse}
// @Failure 502 {object} response.Response
// @Router /api/v1/payments/verify/{reference} [get]
func (h *Handler) VerifyPayment(c *gin.Context) {
	txn, err := h.checkout.Verify(c.Request.Context(), c.Param("reference"))
	if err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, verifyResponse{
		Reference: txn.Reference,
		Status:    string(txn.Status),
		Amount:    txn.Amount,
		Currency:  txn.Currency,
		Channel:   txn.Channel,
		Message:   txn.GatewayResponse,
	})
}

// ConfirmPayment 浏览器支付回调：验证并提交订单
// @Summary 确认支付
// @Tags 支付
// @Accept json
// @Produce json
// @Param request body confirmRequest true "reference 与订单"
// @Success 200 {object} response.Response{data=confirmResponse}
// @Failure 400 {object} response.Response
// @Failure 502 {object} response.Response
// @Router /api/v1/payments/confirm [post]
func (h *Handler) ConfirmPayment(c *gin.Context) {
	var req confirmRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	out, err := h.reconciler.ConfirmPayment(c.Request.Context(), req.Reference, req.Order)
	if err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, toConfirmResponse(out))
}

func toConfirmResponse(out *service.Outcome) confirmResponse {
	resp := confirmResponse{
		Reference:        out.Reference,
		Status:           "confirmed",
		State:            string(out.State),
		FollowUpRequired: out.FollowUpRequired(),
		Message:          out.Message,
	}
	if out.State == model.StateVerificationFailed {
		resp.Status = "failed"
	}
	if resp.FollowUpRequired && resp.Message == "" {
		resp.Message = "payment received; our team will contact you to finalize the order"
	}
	return resp
}
