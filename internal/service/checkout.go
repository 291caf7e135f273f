package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/d60-Lab/tailor-checkout/internal/gateway"
	"github.com/d60-Lab/tailor-checkout/internal/model"
	"github.com/d60-Lab/tailor-checkout/internal/repository"
	"github.com/d60-Lab/tailor-checkout/pkg/logger"
)

var validate = validator.New()

// CheckoutService 发起支付与查询
type CheckoutService struct {
	gateway   PaymentGateway
	snapshots repository.SnapshotRepository
}

func NewCheckoutService(gw PaymentGateway, snapshots repository.SnapshotRepository) *CheckoutService {
	return &CheckoutService{gateway: gw, snapshots: snapshots}
}

// Initialize 校验订单、向网关发起支付并保存快照
func (s *CheckoutService) Initialize(ctx context.Context, order *model.PendingOrder) (*gateway.InitializeResult, error) {
	if order == nil {
		return nil, fmt.Errorf("%w: order is required", ErrInvalidOrder)
	}
	if err := validate.Struct(order); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidOrder, err)
	}
	if order.Total.IsZero() {
		order.Total = computeTotal(order)
	}
	if !order.Total.IsPositive() {
		return nil, fmt.Errorf("%w: total must be positive", ErrInvalidOrder)
	}
	if order.Currency == "" {
		order.Currency = s.gateway.DefaultCurrency()
	}
	order.Currency = strings.ToUpper(order.Currency)

	res, err := s.gateway.Initialize(ctx, gateway.InitializeRequest{
		Email:    order.Customer.Email,
		Amount:   order.Total,
		Currency: order.Currency,
		Order:    order,
	})
	if err != nil {
		return nil, err
	}

	if s.snapshots != nil {
		if err := s.snapshots.Save(ctx, res.Reference, order); err != nil {
			logger.Warn("save order snapshot failed",
				zap.String("reference", res.Reference),
				zap.Error(err),
			)
		}
	}
	return res, nil
}

// Verify 仅查询，不提交订单
func (s *CheckoutService) Verify(ctx context.Context, reference string) (*model.Transaction, error) {
	return s.gateway.Verify(ctx, reference)
}

func computeTotal(order *model.PendingOrder) decimal.Decimal {
	total := order.Subtotal
	if total.IsZero() {
		for _, it := range order.Items {
			total = total.Add(it.UnitPrice().Mul(decimal.NewFromInt(int64(it.Quantity))))
		}
	}
	return total.Add(order.Shipping).Add(order.Tax)
}

// itemsTotal 只按行项目重新计价，忽略客户端给出的 subtotal/total；
// 全部单价为零 (metadata 还原) 时 priced 为 false
func itemsTotal(order *model.PendingOrder) (total decimal.Decimal, priced bool) {
	for _, it := range order.Items {
		price := it.UnitPrice()
		if !price.IsZero() {
			priced = true
		}
		total = total.Add(price.Mul(decimal.NewFromInt(int64(it.Quantity))))
	}
	return total.Add(order.Shipping).Add(order.Tax), priced
}
