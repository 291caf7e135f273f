package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// TransactionStatus 网关交易状态
type TransactionStatus string

const (
	TxInitialized TransactionStatus = "initialized"
	TxSuccess     TransactionStatus = "success"
	TxFailed      TransactionStatus = "failed"
	TxAbandoned   TransactionStatus = "abandoned"
)

// Metadata custom field names
const (
	FieldCustomerName    = "customer_name"
	FieldCustomerPhone   = "customer_phone"
	FieldOrderItems      = "order_items"
	FieldMeasurements    = "measurements"
	FieldDeliveryAddress = "delivery_address"
	FieldDeliverySpeed   = "delivery_speed"
	FieldNotes           = "notes"
)

// CustomField 网关 metadata.custom_fields 条目
type CustomField struct {
	DisplayName  string `json:"display_name"`
	VariableName string `json:"variable_name"`
	Value        string `json:"value"`
}

type Metadata struct {
	CustomFields []CustomField `json:"custom_fields"`
}

// Field 按 variable_name 取值
func (m Metadata) Field(name string) string {
	for _, f := range m.CustomFields {
		if f.VariableName == name {
			return f.Value
		}
	}
	return ""
}

type TxCustomer struct {
	Email     string `json:"email"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Phone     string `json:"phone"`
}

// Transaction 规整后的网关交易，Amount 为主单位
type Transaction struct {
	Reference       string            `json:"reference"`
	Status          TransactionStatus `json:"status"`
	Amount          decimal.Decimal   `json:"amount"`
	Currency        string            `json:"currency"`
	Channel         string            `json:"channel"`
	GatewayResponse string            `json:"gateway_response"`
	Customer        TxCustomer        `json:"customer"`
	Metadata        Metadata          `json:"metadata"`
	PaidAt          *time.Time        `json:"paid_at,omitempty"`
	CreatedAt       time.Time         `json:"created_at"`
}

func (t *Transaction) Succeeded() bool {
	return t != nil && t.Status == TxSuccess
}
