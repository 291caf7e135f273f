package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/d60-Lab/tailor-checkout/config"
	"github.com/d60-Lab/tailor-checkout/internal/model"
	"github.com/d60-Lab/tailor-checkout/pkg/logger"
)

const maxResponseBytes = 1 << 20

// InitializeRequest 发起支付
type InitializeRequest struct {
	Email    string
	Amount   decimal.Decimal
	Currency string
	Order    *model.PendingOrder
}

type InitializeResult struct {
	Reference        string `json:"reference"`
	AuthorizationURL string `json:"authorization_url"`
	AccessCode       string `json:"access_code"`
	AmountMinor      int64  `json:"amount_minor"`
}

// Client Paystack 风格网关客户端
type Client struct {
	cfg           config.PaystackConfig
	http          *http.Client
	tracer        trace.Tracer
	retryInterval time.Duration
}

// NewClient httpClient 为空时按配置超时创建
func NewClient(cfg config.PaystackConfig, httpClient *http.Client) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	if cfg.VerifyTries == 0 {
		cfg.VerifyTries = 3
	}
	if cfg.Currency == "" {
		cfg.Currency = "NGN"
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}
	return &Client{
		cfg:           cfg,
		http:          httpClient,
		tracer:        otel.Tracer("github.com/d60-Lab/tailor-checkout/internal/gateway"),
		retryInterval: 250 * time.Millisecond,
	}
}

// DefaultCurrency used when a request carries none.
func (c *Client) DefaultCurrency() string { return c.cfg.Currency }

// Initialize is never retried: a second attempt would reuse the reference.
func (c *Client) Initialize(ctx context.Context, req InitializeRequest) (*InitializeResult, error) {
	if c.cfg.SecretKey == "" {
		return nil, &ConfigurationError{Setting: "paystack.secret_key"}
	}
	currency := strings.ToUpper(req.Currency)
	if currency == "" {
		currency = c.cfg.Currency
	}

	reference := GenerateReference(c.cfg.ReferencePrefix)
	minor := FormatAmount(req.Amount, currency)

	ctx, span := c.tracer.Start(ctx, "gateway.Initialize", trace.WithAttributes(
		attribute.String("payment.reference", reference),
		attribute.Int64("payment.amount_minor", minor),
	))
	defer span.End()

	body := initializeBody{
		Email:       req.Email,
		Amount:      minor,
		Reference:   reference,
		Currency:    currency,
		CallbackURL: c.cfg.CallbackURL,
		Metadata:    BuildMetadata(req.Order),
	}

	var env envelope[initializeData]
	if err := c.do(ctx, "initialize", http.MethodPost, "/transaction/initialize", body, &env); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "initialize failed")
		return nil, err
	}

	logger.Info("payment initialized",
		zap.String("reference", reference),
		zap.Int64("amount_minor", minor),
		zap.String("currency", currency),
	)

	ref := env.Data.Reference
	if ref == "" {
		ref = reference
	}
	return &InitializeResult{
		Reference:        ref,
		AuthorizationURL: env.Data.AuthorizationURL,
		AccessCode:       env.Data.AccessCode,
		AmountMinor:      minor,
	}, nil
}

// Verify 查询交易；网关报告未成功时返回 Status != success 而不是错误
func (c *Client) Verify(ctx context.Context, reference string) (*model.Transaction, error) {
	if c.cfg.SecretKey == "" {
		return nil, &ConfigurationError{Setting: "paystack.secret_key"}
	}
	if strings.TrimSpace(reference) == "" {
		return nil, &Error{Op: "verify", Message: "reference is required"}
	}

	ctx, span := c.tracer.Start(ctx, "gateway.Verify", trace.WithAttributes(
		attribute.String("payment.reference", reference),
	))
	defer span.End()

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.retryInterval
	b.MaxInterval = 4 * c.retryInterval

	attempt := 0
	txn, err := backoff.Retry(ctx, func() (*model.Transaction, error) {
		attempt++
		txn, err := c.verifyOnce(ctx, reference)
		if err == nil {
			return txn, nil
		}
		var gerr *Error
		if errors.As(err, &gerr) && gerr.Temporary() {
			logger.Warn("verify attempt failed",
				zap.String("reference", reference),
				zap.Int("attempt", attempt),
				zap.Error(err),
			)
			return nil, err
		}
		return nil, backoff.Permanent(err)
	},
		backoff.WithBackOff(b),
		backoff.WithMaxTries(c.cfg.VerifyTries),
		backoff.WithMaxElapsedTime(time.Duration(c.cfg.VerifyTries)*c.cfg.Timeout),
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "verify failed")
		return nil, err
	}
	span.SetAttributes(attribute.String("payment.status", string(txn.Status)))
	return txn, nil
}

func (c *Client) verifyOnce(ctx context.Context, reference string) (*model.Transaction, error) {
	var env envelope[verifyData]
	path := "/transaction/verify/" + url.PathEscape(reference)
	if err := c.do(ctx, "verify", http.MethodGet, path, nil, &env); err != nil {
		return nil, err
	}
	d := env.Data
	if d.Reference == "" {
		return nil, &Error{Op: "verify", Message: "malformed payload: missing reference"}
	}
	currency := d.Currency
	if currency == "" {
		currency = c.cfg.Currency
	}
	return &model.Transaction{
		Reference:       d.Reference,
		Status:          model.TransactionStatus(d.Status),
		Amount:          ParseAmount(d.Amount, currency),
		Currency:        currency,
		Channel:         d.Channel,
		GatewayResponse: d.GatewayResponse,
		Customer:        d.Customer,
		Metadata:        d.Metadata.Metadata,
		PaidAt:          d.PaidAt,
		CreatedAt:       d.CreatedAt,
	}, nil
}

// VerifyWebhookSignature 签名校验，失败一律返回 false
func (c *Client) VerifyWebhookSignature(rawBody []byte, signature string) bool {
	return VerifySignature(c.cfg.SecretKey, rawBody, signature)
}

func (c *Client) do(ctx context.Context, op, method, path string, in, out interface{}) error {
	var body io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return &Error{Op: op, Err: fmt.Errorf("encode request: %w", err)}
		}
		body = bytes.NewReader(payload)
	}

	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, method, strings.TrimRight(c.cfg.BaseURL, "/")+path, body)
	if err != nil {
		return &Error{Op: op, Err: fmt.Errorf("build request: %w", err)}
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.SecretKey)
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	res, err := c.http.Do(req)
	if err != nil {
		return &Error{Op: op, Err: err}
	}
	defer res.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(res.Body, maxResponseBytes))
	if err != nil {
		return &Error{Op: op, StatusCode: res.StatusCode, Err: fmt.Errorf("read response: %w", err)}
	}

	var head envelope[json.RawMessage]
	decodeErr := json.Unmarshal(raw, &head)

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		msg := http.StatusText(res.StatusCode)
		if decodeErr == nil && head.Message != "" {
			msg = head.Message
		}
		return &Error{Op: op, StatusCode: res.StatusCode, Message: msg}
	}
	if decodeErr != nil {
		return &Error{Op: op, StatusCode: res.StatusCode, Message: "malformed payload"}
	}
	if !head.Status {
		return &Error{Op: op, StatusCode: res.StatusCode, Message: head.Message}
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return &Error{Op: op, StatusCode: res.StatusCode, Message: "malformed payload"}
	}
	return nil
}
