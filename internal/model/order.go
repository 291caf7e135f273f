package model

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// Customer 下单人
type Customer struct {
	Name  string `json:"name" validate:"required"`
	Email string `json:"email" validate:"required,email"`
	Phone string `json:"phone"`
}

// Address 收货地址
type Address struct {
	Street  string `json:"street"`
	City    string `json:"city"`
	State   string `json:"state"`
	Zip     string `json:"zip"`
	Country string `json:"country"`
}

// CartItem 购物车行
type CartItem struct {
	ProductID   string          `json:"product_id"`
	Name        string          `json:"name" validate:"required"`
	Image       string          `json:"image"`
	Category    string          `json:"category"`
	SubCategory string          `json:"sub_category"`
	Price       decimal.Decimal `json:"price"`
	SalePrice   decimal.Decimal `json:"sale_price"`
	Quantity    int             `json:"quantity" validate:"gte=1"`
}

// UnitPrice 有促销价时取促销价
func (i CartItem) UnitPrice() decimal.Decimal {
	if i.SalePrice.IsPositive() {
		return i.SalePrice
	}
	return i.Price
}

// Measurement 单人量体数据
type Measurement struct {
	Name   string            `json:"name"`
	Unit   string            `json:"unit"`
	Values map[string]string `json:"values"`
}

// PendingOrder 发起支付时浏览器持有的订单
type PendingOrder struct {
	Customer      Customer        `json:"customer"`
	Address       Address         `json:"address"`
	Items         []CartItem      `json:"items" validate:"required,min=1,dive"`
	Measurements  []Measurement   `json:"measurements"`
	Subtotal      decimal.Decimal `json:"subtotal"`
	Shipping      decimal.Decimal `json:"shipping"`
	Tax           decimal.Decimal `json:"tax"`
	Total         decimal.Decimal `json:"total"`
	Currency      string          `json:"currency"`
	DeliverySpeed string          `json:"delivery_speed"`
	Notes         string          `json:"notes"`
}

// Order sources
const (
	SourceBrowser = "browser"
	SourceWebhook = "webhook"
	SourceDirect  = "direct"
)

// OrderRecord 对账时刻由 PendingOrder + Transaction 生成，写入账本后不再修改
type OrderRecord struct {
	PendingOrder
	Reference     string    `json:"reference"`
	Source        string    `json:"source"`
	PaymentStatus string    `json:"payment_status"`
	PaymentMethod string    `json:"payment_method"`
	OrderedAt     time.Time `json:"ordered_at"`

	// AmountMismatch 实付金额与订单计价不一致
	AmountMismatch bool `json:"amount_mismatch,omitempty"`
}

// NewOrderRecord txn 为空表示未经网关的直接下单
func NewOrderRecord(order PendingOrder, txn *Transaction, source string) OrderRecord {
	rec := OrderRecord{
		PendingOrder: order,
		Source:       source,
		OrderedAt:    time.Now().UTC(),
	}
	if txn == nil {
		rec.PaymentStatus = "pending"
		rec.PaymentMethod = "direct"
		return rec
	}
	rec.Reference = txn.Reference
	rec.PaymentStatus = string(txn.Status)
	rec.PaymentMethod = "paystack"
	if txn.Channel != "" {
		rec.PaymentMethod = "paystack:" + txn.Channel
	}
	if txn.PaidAt != nil {
		rec.OrderedAt = txn.PaidAt.UTC()
	}
	if rec.Total.IsZero() {
		rec.Total = txn.Amount
	}
	if rec.Currency == "" {
		rec.Currency = txn.Currency
	}
	if rec.Customer.Email == "" {
		rec.Customer.Email = txn.Customer.Email
	}
	return rec
}

// CommittedOrder 已对账订单 (副作用结果记录)
type CommittedOrder struct {
	Reference    string          `json:"reference" gorm:"primaryKey;type:varchar(64)"`
	Source       string          `json:"source" gorm:"type:varchar(16);not null"`
	Email        string          `json:"email" gorm:"type:varchar(255);index"`
	CustomerName string          `json:"customer_name" gorm:"type:varchar(255)"`
	Total        decimal.Decimal `json:"total" gorm:"type:decimal(14,2);not null"`
	Currency     string          `json:"currency" gorm:"type:varchar(8)"`
	State        ReconcileState  `json:"state" gorm:"type:varchar(32);index;not null"`
	Notified     bool            `json:"notified" gorm:"not null;default:false"`
	Exported     bool            `json:"exported" gorm:"not null;default:false"`

	// AmountMismatch 需人工核对金额
	AmountMismatch bool `json:"amount_mismatch" gorm:"not null;default:false"`

	LastError string         `json:"last_error" gorm:"type:text"`
	Record    datatypes.JSON `json:"record"`
	CreatedAt time.Time      `json:"created_at" gorm:"index"`
	UpdatedAt time.Time      `json:"updated_at"`
}

func (CommittedOrder) TableName() string {
	return "committed_orders"
}

// FollowUpRequired 通知或导出未成功，或金额不符，需要人工跟进
func (o *CommittedOrder) FollowUpRequired() bool {
	return !o.Notified || !o.Exported || o.AmountMismatch
}

// PendingOrderSnapshot 初始化支付时落地的订单快照，供 webhook 路径还原
type PendingOrderSnapshot struct {
	Reference string          `gorm:"primaryKey;type:varchar(64)"`
	Email     string          `gorm:"type:varchar(255)"`
	Amount    decimal.Decimal `gorm:"type:decimal(14,2);not null"`
	Currency  string          `gorm:"type:varchar(8)"`
	Payload   datatypes.JSON
	CreatedAt time.Time `gorm:"index"`
}

func (PendingOrderSnapshot) TableName() string {
	return "pending_order_snapshots"
}
