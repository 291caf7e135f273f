package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/d60-Lab/tailor-checkout/internal/model"
)

var ErrSnapshotNotFound = errors.New("pending order snapshot not found")

// SnapshotRepository 支付发起时的订单快照
type SnapshotRepository interface {
	Save(ctx context.Context, reference string, order *model.PendingOrder) error
	Get(ctx context.Context, reference string) (*model.PendingOrder, error)
	Delete(ctx context.Context, reference string) error
	// PurgeBefore 清理早于 t 的快照，返回删除条数
	PurgeBefore(ctx context.Context, t time.Time) (int64, error)
}

type snapshotRepository struct{ db *gorm.DB }

func NewSnapshotRepository(db *gorm.DB) SnapshotRepository { return &snapshotRepository{db: db} }

func (r *snapshotRepository) Save(ctx context.Context, reference string, order *model.PendingOrder) error {
	payload, err := json.Marshal(order)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	s := &model.PendingOrderSnapshot{
		Reference: reference,
		Email:     order.Customer.Email,
		Amount:    order.Total,
		Currency:  order.Currency,
		Payload:   payload,
	}
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{UpdateAll: true}).Create(s).Error
}

func (r *snapshotRepository) Get(ctx context.Context, reference string) (*model.PendingOrder, error) {
	var s model.PendingOrderSnapshot
	err := r.db.WithContext(ctx).Where("reference = ?", reference).First(&s).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrSnapshotNotFound
	}
	if err != nil {
		return nil, err
	}
	var order model.PendingOrder
	if err := json.Unmarshal(s.Payload, &order); err != nil {
		return nil, fmt.Errorf("decode snapshot %s: %w", reference, err)
	}
	return &order, nil
}

func (r *snapshotRepository) Delete(ctx context.Context, reference string) error {
	return r.db.WithContext(ctx).Where("reference = ?", reference).Delete(&model.PendingOrderSnapshot{}).Error
}

func (r *snapshotRepository) PurgeBefore(ctx context.Context, t time.Time) (int64, error) {
	res := r.db.WithContext(ctx).Where("created_at < ?", t).Delete(&model.PendingOrderSnapshot{})
	return res.RowsAffected, res.Error
}
