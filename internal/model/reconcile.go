package model

import "time"

// ReconcileState 对账状态机
type ReconcileState string

const (
	StatePendingPayment     ReconcileState = "PENDING_PAYMENT"
	StateVerified           ReconcileState = "VERIFIED"
	StateNotified           ReconcileState = "NOTIFIED"
	StateExported           ReconcileState = "EXPORTED"
	StateComplete           ReconcileState = "COMPLETE"
	StateVerificationFailed ReconcileState = "VERIFICATION_FAILED"
	// StateDuplicate 另一条路径已认领该 reference
	StateDuplicate ReconcileState = "DUPLICATE"
)

// Terminal 终态
func (s ReconcileState) Terminal() bool {
	return s == StateComplete || s == StateVerificationFailed || s == StateDuplicate
}

// OrderClaim 以 reference 为主键的首次认领记录
type OrderClaim struct {
	Reference string         `gorm:"primaryKey;type:varchar(64)"`
	Owner     string         `gorm:"type:varchar(16);not null"`
	State     ReconcileState `gorm:"type:varchar(32);not null"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (OrderClaim) TableName() string {
	return "order_claims"
}
