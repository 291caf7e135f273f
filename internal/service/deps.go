package service

import (
	"context"
	"errors"

	"github.com/d60-Lab/tailor-checkout/internal/gateway"
	"github.com/d60-Lab/tailor-checkout/internal/model"
)

var (
	ErrInvalidSignature = errors.New("invalid webhook signature")
	ErrMalformedEvent   = errors.New("malformed webhook event")
	ErrInvalidOrder     = errors.New("invalid order")
)

// PaymentGateway 由 gateway.Client 实现
type PaymentGateway interface {
	Initialize(ctx context.Context, req gateway.InitializeRequest) (*gateway.InitializeResult, error)
	Verify(ctx context.Context, reference string) (*model.Transaction, error)
	VerifyWebhookSignature(rawBody []byte, signature string) bool
	DefaultCurrency() string
}

// AdminNotifier 由 notify.Notifier 实现
type AdminNotifier interface {
	NotifyAdmin(ctx context.Context, rec model.OrderRecord) bool
}

// LedgerExporter 由 ledger.Exporter 实现
type LedgerExporter interface {
	AppendOrder(ctx context.Context, rec model.OrderRecord) error
}
