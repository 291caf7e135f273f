// Package claim 保证同一笔支付只被浏览器路径或 webhook 路径之一提交。
package claim

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/d60-Lab/tailor-checkout/config"
	"github.com/d60-Lab/tailor-checkout/internal/model"
	"github.com/d60-Lab/tailor-checkout/internal/repository"
)

// ErrNotFound reference 从未被认领
var ErrNotFound = repository.ErrClaimNotFound

// Store 以 reference 为键的首次认领存储
type Store interface {
	// Claim 原子地认领 reference，只有第一个调用方得到 true
	Claim(ctx context.Context, reference, owner string) (bool, error)
	// Advance 记录认领后的状态推进
	Advance(ctx context.Context, reference string, state model.ReconcileState) error
	Lookup(ctx context.Context, reference string) (owner string, state model.ReconcileState, err error)
}

// NewStore 按配置选择 Redis 或数据库实现
func NewStore(cfg config.ClaimsConfig, rdb *redis.Client, db *gorm.DB) (Store, error) {
	switch cfg.Store {
	case "", "redis":
		if rdb == nil {
			return nil, fmt.Errorf("claims store redis: client not initialized")
		}
		return NewRedisStore(rdb, cfg.TTL), nil
	case "database", "db":
		if db == nil {
			return nil, fmt.Errorf("claims store database: db not initialized")
		}
		return repository.NewClaimRepository(db), nil
	default:
		return nil, fmt.Errorf("unknown claims store %q", cfg.Store)
	}
}

const defaultTTL = 30 * 24 * time.Hour
