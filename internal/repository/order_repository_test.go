package repository

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/d60-Lab/tailor-checkout/internal/model"
)

func setupDB(t testing.TB) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	// :memory: 每个连接一份库
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, InitSchema(db))
	return db
}

func committed(ref string, state model.ReconcileState, notified, exported bool) *model.CommittedOrder {
	rec, _ := json.Marshal(model.OrderRecord{Reference: ref})
	return &model.CommittedOrder{
		Reference: ref,
		Source:    model.SourceBrowser,
		Email:     "ade@example.com",
		Total:     decimal.RequireFromString("5000.50"),
		Currency:  "NGN",
		State:     state,
		Notified:  notified,
		Exported:  exported,
		Record:    rec,
	}
}

func TestOrderRepositoryCreateAndGet(t *testing.T) {
	repo := NewOrderRepository(setupDB(t))
	ctx := context.Background()

	require.NoError(t, repo.Create(ctx, committed("TLR-1", model.StateComplete, true, true)))
	assert.Error(t, repo.Create(ctx, committed("TLR-1", model.StateComplete, true, true)), "reference is unique")

	got, err := repo.GetByReference(ctx, "TLR-1")
	require.NoError(t, err)
	assert.True(t, got.Total.Equal(decimal.RequireFromString("5000.50")))
	assert.Equal(t, model.StateComplete, got.State)
	assert.False(t, got.FollowUpRequired())

	_, err = repo.GetByReference(ctx, "missing")
	assert.ErrorIs(t, err, ErrOrderNotFound)
}

func TestOrderRepositoryListAndUpdate(t *testing.T) {
	repo := NewOrderRepository(setupDB(t))
	ctx := context.Background()

	require.NoError(t, repo.Create(ctx, committed("A", model.StateComplete, true, true)))
	require.NoError(t, repo.Create(ctx, committed("B", model.StateNotified, true, false)))
	require.NoError(t, repo.Create(ctx, committed("C", model.StateVerified, false, false)))

	all, err := repo.List(ctx, OrderFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 3)

	follow, err := repo.List(ctx, OrderFilter{FollowUpOnly: true})
	require.NoError(t, err)
	assert.Len(t, follow, 2)

	require.NoError(t, repo.UpdateOutcome(ctx, "B", OutcomeUpdate{State: model.StateComplete, Notified: true, Exported: true}))
	follow, err = repo.List(ctx, OrderFilter{FollowUpOnly: true})
	require.NoError(t, err)
	require.Len(t, follow, 1)
	assert.Equal(t, "C", follow[0].Reference)

	assert.ErrorIs(t, repo.UpdateOutcome(ctx, "Z", OutcomeUpdate{State: model.StateComplete}), ErrOrderNotFound)

	n, err := repo.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
}

func TestSnapshotRepository(t *testing.T) {
	repo := NewSnapshotRepository(setupDB(t))
	ctx := context.Background()

	order := &model.PendingOrder{
		Customer: model.Customer{Name: "Ade", Email: "ade@example.com"},
		Items:    []model.CartItem{{Name: "Agbada", Quantity: 2, Price: decimal.NewFromInt(2500)}},
		Total:    decimal.NewFromInt(5000),
		Currency: "NGN",
	}
	require.NoError(t, repo.Save(ctx, "TLR-1", order))
	order.Notes = "updated"
	require.NoError(t, repo.Save(ctx, "TLR-1", order), "save overwrites")

	got, err := repo.Get(ctx, "TLR-1")
	require.NoError(t, err)
	assert.Equal(t, "updated", got.Notes)
	require.Len(t, got.Items, 1)
	assert.True(t, got.Items[0].Price.Equal(decimal.NewFromInt(2500)))

	n, err := repo.PurgeBefore(ctx, time.Now().Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	_, err = repo.Get(ctx, "TLR-1")
	assert.ErrorIs(t, err, ErrSnapshotNotFound)
	assert.NoError(t, repo.Delete(ctx, "TLR-1"))
}
