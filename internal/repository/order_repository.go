package repository

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/d60-Lab/tailor-checkout/internal/model"
)

var ErrOrderNotFound = errors.New("committed order not found")

// OrderFilter 列表查询条件
type OrderFilter struct {
	State        model.ReconcileState
	FollowUpOnly bool
	Offset       int
	Limit        int
}

// OutcomeUpdate 副作用执行结果
type OutcomeUpdate struct {
	State     model.ReconcileState
	Notified  bool
	Exported  bool
	LastError string
}

// OrderRepository 已对账订单仓储接口
type OrderRepository interface {
	// Create 写入对账结果，reference 已存在时返回错误
	Create(ctx context.Context, order *model.CommittedOrder) error

	// GetByReference 根据网关 reference 查询
	GetByReference(ctx context.Context, reference string) (*model.CommittedOrder, error)

	// List 按创建时间倒序
	List(ctx context.Context, f OrderFilter) ([]*model.CommittedOrder, error)

	// UpdateOutcome 重放后更新通知/导出结果
	UpdateOutcome(ctx context.Context, reference string, u OutcomeUpdate) error

	// Count 统计订单数量
	Count(ctx context.Context) (int64, error)
}

type orderRepository struct {
	db *gorm.DB
}

func NewOrderRepository(db *gorm.DB) OrderRepository {
	return &orderRepository{db: db}
}

func (r *orderRepository) Create(ctx context.Context, order *model.CommittedOrder) error {
	return r.db.WithContext(ctx).Create(order).Error
}

func (r *orderRepository) GetByReference(ctx context.Context, reference string) (*model.CommittedOrder, error) {
	var order model.CommittedOrder
	err := r.db.WithContext(ctx).Where("reference = ?", reference).First(&order).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrOrderNotFound
	}
	if err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *orderRepository) List(ctx context.Context, f OrderFilter) ([]*model.CommittedOrder, error) {
	if f.Limit <= 0 || f.Limit > 200 {
		f.Limit = 50
	}
	q := r.db.WithContext(ctx).Model(&model.CommittedOrder{})
	if f.State != "" {
		q = q.Where("state = ?", f.State)
	}
	if f.FollowUpOnly {
		q = q.Where("notified = ? OR exported = ? OR amount_mismatch = ?", false, false, true)
	}
	var orders []*model.CommittedOrder
	err := q.Order("created_at DESC").Offset(f.Offset).Limit(f.Limit).Find(&orders).Error
	if err != nil {
		return nil, err
	}
	return orders, nil
}

func (r *orderRepository) UpdateOutcome(ctx context.Context, reference string, u OutcomeUpdate) error {
	res := r.db.WithContext(ctx).
		Model(&model.CommittedOrder{}).
		Where("reference = ?", reference).
		Updates(map[string]interface{}{
			"state":      u.State,
			"notified":   u.Notified,
			"exported":   u.Exported,
			"last_error": u.LastError,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrOrderNotFound
	}
	return nil
}

func (r *orderRepository) Count(ctx context.Context) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&model.CommittedOrder{}).Count(&count).Error
	return count, err
}

// InitSchema 初始化数据库表结构
func InitSchema(db *gorm.DB) error {
	if err := db.AutoMigrate(&model.CommittedOrder{}, &model.PendingOrderSnapshot{}, &model.OrderClaim{}); err != nil {
		return fmt.Errorf("failed to migrate checkout tables: %w", err)
	}
	return nil
}
