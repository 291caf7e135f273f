package gateway

import (
	"bytes"
	"encoding/json"
	"time"

	"github.com/d60-Lab/tailor-checkout/internal/model"
)

type envelope[T any] struct {
	Status  bool   `json:"status"`
	Message string `json:"message"`
	Data    T      `json:"data"`
}

type initializeBody struct {
	Email       string         `json:"email"`
	Amount      int64          `json:"amount"`
	Reference   string         `json:"reference"`
	Currency    string         `json:"currency"`
	CallbackURL string         `json:"callback_url,omitempty"`
	Metadata    model.Metadata `json:"metadata"`
}

type initializeData struct {
	AuthorizationURL string `json:"authorization_url"`
	AccessCode       string `json:"access_code"`
	Reference        string `json:"reference"`
}

type verifyData struct {
	Reference       string           `json:"reference"`
	Status          string           `json:"status"`
	Amount          int64            `json:"amount"`
	Currency        string           `json:"currency"`
	Channel         string           `json:"channel"`
	GatewayResponse string           `json:"gateway_response"`
	Customer        model.TxCustomer `json:"customer"`
	Metadata        flexMetadata     `json:"metadata"`
	PaidAt          *time.Time       `json:"paid_at"`
	CreatedAt       time.Time        `json:"created_at"`
}

// WebhookEvent 网关推送事件
type WebhookEvent struct {
	Event string     `json:"event"`
	Data  verifyData `json:"data"`
}

// Transaction 将事件数据规整为主单位交易
func (e *WebhookEvent) Transaction(defaultCurrency string) *model.Transaction {
	currency := e.Data.Currency
	if currency == "" {
		currency = defaultCurrency
	}
	return &model.Transaction{
		Reference:       e.Data.Reference,
		Status:          model.TransactionStatus(e.Data.Status),
		Amount:          ParseAmount(e.Data.Amount, currency),
		Currency:        currency,
		Channel:         e.Data.Channel,
		GatewayResponse: e.Data.GatewayResponse,
		Customer:        e.Data.Customer,
		Metadata:        e.Data.Metadata.Metadata,
		PaidAt:          e.Data.PaidAt,
		CreatedAt:       e.Data.CreatedAt,
	}
}

// flexMetadata accepts an object, a JSON-encoded string, "" or null.
type flexMetadata struct {
	model.Metadata
}

func (f *flexMetadata) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil || s == "" {
			return nil
		}
		b = []byte(s)
	}
	var md model.Metadata
	if err := json.Unmarshal(b, &md); err != nil {
		return nil
	}
	f.Metadata = md
	return nil
}
