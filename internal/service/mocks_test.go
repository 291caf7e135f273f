package service

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/d60-Lab/tailor-checkout/internal/claim"
	"github.com/d60-Lab/tailor-checkout/internal/gateway"
	"github.com/d60-Lab/tailor-checkout/internal/model"
	"github.com/d60-Lab/tailor-checkout/internal/repository"
)

type mockGateway struct{ mock.Mock }

func (m *mockGateway) Initialize(ctx context.Context, req gateway.InitializeRequest) (*gateway.InitializeResult, error) {
	args := m.Called(ctx, req)
	res, _ := args.Get(0).(*gateway.InitializeResult)
	return res, args.Error(1)
}

func (m *mockGateway) Verify(ctx context.Context, reference string) (*model.Transaction, error) {
	args := m.Called(ctx, reference)
	txn, _ := args.Get(0).(*model.Transaction)
	return txn, args.Error(1)
}

func (m *mockGateway) VerifyWebhookSignature(rawBody []byte, signature string) bool {
	return m.Called(rawBody, signature).Bool(0)
}

func (m *mockGateway) DefaultCurrency() string { return "NGN" }

type mockNotifier struct{ mock.Mock }

func (m *mockNotifier) NotifyAdmin(ctx context.Context, rec model.OrderRecord) bool {
	return m.Called(ctx, rec).Bool(0)
}

type mockExporter struct{ mock.Mock }

func (m *mockExporter) AppendOrder(ctx context.Context, rec model.OrderRecord) error {
	return m.Called(ctx, rec).Error(0)
}

type fixture struct {
	gw        *mockGateway
	notifier  *mockNotifier
	exporter  *mockExporter
	claims    claim.Store
	orders    repository.OrderRepository
	snapshots repository.SnapshotRepository
	rec       *Reconciler
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{Logger: gormlogger.Default.LogMode(gormlogger.Silent)})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, repository.InitSchema(db))

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	f := &fixture{
		gw:        &mockGateway{},
		notifier:  &mockNotifier{},
		exporter:  &mockExporter{},
		claims:    claim.NewRedisStore(rdb, time.Hour),
		orders:    repository.NewOrderRepository(db),
		snapshots: repository.NewSnapshotRepository(db),
	}
	f.rec = NewReconciler(f.gw, f.notifier, f.exporter, f.claims, f.orders, f.snapshots)
	return f
}

func (f *fixture) sideEffectsSucceed() {
	f.notifier.On("NotifyAdmin", mock.Anything, mock.Anything).Return(true)
	f.exporter.On("AppendOrder", mock.Anything, mock.Anything).Return(nil)
}
