package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/d60-Lab/tailor-checkout/internal/model"
)

var ErrClaimNotFound = errors.New("claim not found")

// ClaimRepository 以主键冲突实现的首次认领
type ClaimRepository struct{ db *gorm.DB }

func NewClaimRepository(db *gorm.DB) *ClaimRepository { return &ClaimRepository{db: db} }

// Claim 返回 true 表示本次调用赢得 reference
func (r *ClaimRepository) Claim(ctx context.Context, reference, owner string) (bool, error) {
	c := &model.OrderClaim{Reference: reference, Owner: owner, State: model.StateVerified}
	res := r.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(c)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *ClaimRepository) Advance(ctx context.Context, reference string, state model.ReconcileState) error {
	res := r.db.WithContext(ctx).
		Model(&model.OrderClaim{}).
		Where("reference = ?", reference).
		Update("state", state)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrClaimNotFound
	}
	return nil
}

// Lookup 返回认领方和当前状态
func (r *ClaimRepository) Lookup(ctx context.Context, reference string) (string, model.ReconcileState, error) {
	var c model.OrderClaim
	err := r.db.WithContext(ctx).Where("reference = ?", reference).First(&c).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", "", ErrClaimNotFound
	}
	if err != nil {
		return "", "", err
	}
	return c.Owner, c.State, nil
}
