package handler

import (
	"errors"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/d60-Lab/tailor-checkout/internal/model"
	"github.com/d60-Lab/tailor-checkout/internal/repository"
	"github.com/d60-Lab/tailor-checkout/internal/service"
	"github.com/d60-Lab/tailor-checkout/pkg/response"
)

type placeOrderRequest struct {
	Reference string             `json:"reference"`
	Order     model.PendingOrder `json:"order"`
}

type loginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// PlaceOrder 直接下单（带 reference 时先验证支付）
// @Summary 提交订单
// @Tags 订单
// @Accept json
// @Produce json
// @Param request body placeOrderRequest true "订单"
// @Success 200 {object} response.Response{data=confirmResponse}
// @Failure 400 {object} response.Response
// @Router /api/v1/orders [post]
func (h *Handler) PlaceOrder(c *gin.Context) {
	var req placeOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	out, err := h.reconciler.PlaceOrder(c.Request.Context(), req.Order, req.Reference)
	if err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, toConfirmResponse(out))
}

// Login 运维登录
// @Summary 运维登录
// @Tags 运维
// @Accept json
// @Produce json
// @Param request body loginRequest true "账号"
// @Success 200 {object} response.Response{data=map[string]interface{}}
// @Failure 401 {object} response.Response
// @Router /api/v1/ops/login [post]
func (h *Handler) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	token, exp, err := h.auth.Login(req.Username, req.Password)
	if err != nil {
		if errors.Is(err, service.ErrInvalidCredentials) || errors.Is(err, service.ErrAuthDisabled) {
			response.Unauthorized(c, "invalid credentials")
			return
		}
		response.InternalError(c, err)
		return
	}
	response.Success(c, gin.H{"token": token, "expires_at": exp.UTC().Format(time.RFC3339)})
}

// ListOrders 已提交订单
// @Summary 订单列表
// @Tags 运维
// @Security BearerAuth
// @Param state query string false "状态"
// @Param follow_up query bool false "只看需跟进"
// @Param page query int false "页码" default(1)
// @Param page_size query int false "每页数量" default(50)
// @Success 200 {object} response.Response{data=map[string]interface{}}
// @Router /api/v1/ops/orders [get]
func (h *Handler) ListOrders(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "50"))
	if page < 1 {
		page = 1
	}
	followUp, _ := strconv.ParseBool(c.DefaultQuery("follow_up", "false"))

	list, err := h.reconciler.List(c.Request.Context(), repository.OrderFilter{
		State:        model.ReconcileState(c.Query("state")),
		FollowUpOnly: followUp,
		Offset:       (page - 1) * pageSize,
		Limit:        pageSize,
	})
	if err != nil {
		response.InternalError(c, err)
		return
	}
	response.Success(c, gin.H{"page": page, "page_size": pageSize, "list": list})
}

// GetOrder 单个订单
// @Summary 订单详情
// @Tags 运维
// @Security BearerAuth
// @Param reference path string true "支付 reference"
// @Success 200 {object} response.Response{data=model.CommittedOrder}
// @Failure 404 {object} response.Response
// @Router /api/v1/ops/orders/{reference} [get]
func (h *Handler) GetOrder(c *gin.Context) {
	order, err := h.reconciler.Lookup(c.Request.Context(), c.Param("reference"))
	if errors.Is(err, repository.ErrOrderNotFound) {
		response.NotFound(c, "order not found")
		return
	}
	if err != nil {
		response.InternalError(c, err)
		return
	}
	response.Success(c, order)
}

// ReplayOrder 重跑通知/导出
// @Summary 重放订单
// @Tags 运维
// @Security BearerAuth
// @Param reference path string true "支付 reference"
// @Success 200 {object} response.Response{data=confirmResponse}
// @Failure 502 {object} response.Response
// @Router /api/v1/ops/orders/{reference}/replay [post]
func (h *Handler) ReplayOrder(c *gin.Context) {
	out, err := h.reconciler.Replay(c.Request.Context(), c.Param("reference"))
	if err != nil {
		writeError(c, err)
		return
	}
	resp := toConfirmResponse(out)
	response.Success(c, gin.H{
		"reference":          resp.Reference,
		"state":              resp.State,
		"notified":           out.Notified,
		"exported":           out.Exported,
		"follow_up_required": resp.FollowUpRequired,
	})
}
