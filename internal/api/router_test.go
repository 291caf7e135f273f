package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/d60-Lab/tailor-checkout/config"
	"github.com/d60-Lab/tailor-checkout/internal/claim"
	"github.com/d60-Lab/tailor-checkout/internal/gateway"
	"github.com/d60-Lab/tailor-checkout/internal/ledger"
	"github.com/d60-Lab/tailor-checkout/internal/model"
	"github.com/d60-Lab/tailor-checkout/internal/repository"
	"github.com/d60-Lab/tailor-checkout/internal/service"
)

const secret = "sk_test_e2e"

// fakePaystack 记录 initialize 请求并对 verify 返回成功
type fakePaystack struct {
	mu          sync.Mutex
	initialized map[string]int64
}

func (f *fakePaystack) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	switch {
	case r.URL.Path == "/transaction/initialize":
		var body struct {
			Amount    int64  `json:"amount"`
			Reference string `json:"reference"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		f.initialized[body.Reference] = body.Amount
		_, _ = io.WriteString(w, `{"status":true,"message":"ok","data":{"authorization_url":"https://checkout.test/x","access_code":"x","reference":"`+body.Reference+`"}}`)
	case strings.HasPrefix(r.URL.Path, "/transaction/verify/"):
		ref := strings.TrimPrefix(r.URL.Path, "/transaction/verify/")
		amount, ok := f.initialized[ref]
		if !ok {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = io.WriteString(w, `{"status":false,"message":"Transaction reference not found"}`)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"status": true, "message": "Verification successful",
			"data": map[string]interface{}{
				"reference": ref, "status": "success", "amount": amount, "currency": "NGN",
				"channel": "card", "paid_at": "2026-10-15T10:00:00Z",
				"customer": map[string]string{"email": "ade@example.com"},
			},
		})
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (f *fakePaystack) amountFor(ref string) int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.initialized[ref]
}

type countingNotifier struct {
	mu   sync.Mutex
	sent []model.OrderRecord
}

func (n *countingNotifier) NotifyAdmin(ctx context.Context, rec model.OrderRecord) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, rec)
	return true
}

func (n *countingNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.sent)
}

type memorySheets struct {
	mu   sync.Mutex
	rows [][]interface{}
}

func (m *memorySheets) SheetTitles(ctx context.Context, id string) ([]string, error) {
	return []string{"Orders"}, nil
}

func (m *memorySheets) AddSheet(ctx context.Context, id, title string) error { return nil }

func (m *memorySheets) AppendRow(ctx context.Context, id, rng string, row []interface{}) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rows = append(m.rows, row)
	return nil
}

func (m *memorySheets) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.rows)
}

type testServer struct {
	router   *gin.Engine
	paystack *fakePaystack
	notifier *countingNotifier
	sheets   *memorySheets
	orders   repository.OrderRepository
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	ps := &fakePaystack{initialized: map[string]int64{}}
	srv := httptest.NewServer(ps)
	t.Cleanup(srv.Close)

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{Logger: gormlogger.Default.LogMode(gormlogger.Silent)})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, repository.InitSchema(db))

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	hash, err := service.HashPassword("pw")
	require.NoError(t, err)
	cfg := &config.Config{
		Server:   config.ServerConfig{Mode: gin.TestMode},
		Paystack: config.PaystackConfig{BaseURL: srv.URL, SecretKey: secret, Currency: "NGN", Timeout: 2 * time.Second, VerifyTries: 1, ReferencePrefix: "TLR"},
		Sheets:   config.SheetsConfig{SpreadsheetID: "sheet", SheetName: "Orders", AppendTries: 1},
		Auth:     config.AuthConfig{JWTSecret: "jwt", AdminUser: "ops", AdminPasswordHash: hash},
	}

	gw := gateway.NewClient(cfg.Paystack, srv.Client())
	notifier := &countingNotifier{}
	sheets := &memorySheets{}
	orders := repository.NewOrderRepository(db)
	snapshots := repository.NewSnapshotRepository(db)
	reconciler := service.NewReconciler(gw, notifier, ledger.NewExporter(sheets, cfg.Sheets),
		claim.NewRedisStore(rdb, time.Hour), orders, snapshots)

	router := NewRouter(Deps{
		Config:     cfg,
		Checkout:   service.NewCheckoutService(gw, snapshots),
		Reconciler: reconciler,
		Auth:       service.NewAuthService(cfg.Auth),
		DB:         db,
		Redis:      rdb,
	})
	return &testServer{router: router, paystack: ps, notifier: notifier, sheets: sheets, orders: orders}
}

type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func (s *testServer) do(t *testing.T, method, path string, body []byte, headers map[string]string) (int, envelope) {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env), w.Body.String())
	return w.Code, env
}

const orderJSON = `{
	"customer": {"name": "Ade Bello", "email": "ade@example.com", "phone": "0803"},
	"address": {"street": "12 Marina Rd, Flat 3", "city": "Lagos", "country": "NG"},
	"items": [{"name": "Agbada", "quantity": 2, "price": "2000"}, {"name": "Kaftan", "quantity": 1, "price": "1000"}],
	"measurements": [{"name": "Ade", "unit": "in", "values": {"chest": "40"}}],
	"total": "5000",
	"currency": "NGN"
}`

func (s *testServer) initialize(t *testing.T) string {
	t.Helper()
	code, env := s.do(t, http.MethodPost, "/api/v1/payments/initialize", []byte(orderJSON), nil)
	require.Equal(t, http.StatusOK, code, env.Message)
	var res gateway.InitializeResult
	require.NoError(t, json.Unmarshal(env.Data, &res))
	return res.Reference
}

func TestEndToEndCheckout(t *testing.T) {
	s := newTestServer(t)

	ref := s.initialize(t)
	assert.True(t, strings.HasPrefix(ref, "TLR-"))
	assert.Equal(t, int64(500000), s.paystack.amountFor(ref))

	code, env := s.do(t, http.MethodGet, "/api/v1/payments/verify/"+ref, nil, nil)
	require.Equal(t, http.StatusOK, code)
	var verified struct {
		Status string `json:"status"`
		Amount string `json:"amount"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &verified))
	assert.Equal(t, "success", verified.Status)
	assert.Equal(t, "5000", verified.Amount)

	code, env = s.do(t, http.MethodPost, "/api/v1/payments/confirm", []byte(`{"reference":"`+ref+`"}`), nil)
	require.Equal(t, http.StatusOK, code, env.Message)
	var confirmed struct {
		Status           string `json:"status"`
		State            string `json:"state"`
		FollowUpRequired bool   `json:"follow_up_required"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &confirmed))
	assert.Equal(t, "confirmed", confirmed.Status)
	assert.Equal(t, string(model.StateComplete), confirmed.State)
	assert.False(t, confirmed.FollowUpRequired)

	require.Equal(t, 1, s.sheets.count())
	row := s.sheets.rows[0]
	require.Len(t, row, ledger.RowWidth)
	assert.Equal(t, ref, row[0])
	assert.Equal(t, "Agbada; Kaftan", row[4])
	assert.Equal(t, "2000.00; 1000.00", row[6], "snapshot keeps prices")
	assert.Equal(t, "12 Marina Rd\nFlat 3", row[12])
	assert.Equal(t, 1, s.notifier.count())

	// 网关随后推送同一笔支付
	body := []byte(`{"event":"charge.success","data":{"reference":"` + ref + `","status":"success","amount":500000,"currency":"NGN"}}`)
	code, _ = s.do(t, http.MethodPost, "/api/v1/payments/webhook", body, map[string]string{
		gateway.SignatureHeader: gateway.Sign(secret, body),
	})
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, 1, s.sheets.count())
	assert.Equal(t, 1, s.notifier.count())
}

func TestWebhookInvalidSignatureHasNoSideEffects(t *testing.T) {
	s := newTestServer(t)
	body := []byte(`{"event":"charge.success","data":{"reference":"TLR-X","status":"success","amount":500000}}`)

	for _, sig := range []string{"", "deadbeef", gateway.Sign("sk_wrong", body)} {
		code, env := s.do(t, http.MethodPost, "/api/v1/payments/webhook", body, map[string]string{gateway.SignatureHeader: sig})
		assert.Equal(t, http.StatusUnauthorized, code)
		assert.Equal(t, "invalid signature", env.Message)
	}

	assert.Zero(t, s.sheets.count())
	assert.Zero(t, s.notifier.count())
	n, err := s.orders.Count(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestWebhookCommitsAndIgnores(t *testing.T) {
	s := newTestServer(t)

	ignored := []byte(`{"event":"transfer.success","data":{"reference":"TLR-T","status":"success"}}`)
	code, env := s.do(t, http.MethodPost, "/api/v1/payments/webhook", ignored, map[string]string{gateway.SignatureHeader: gateway.Sign(secret, ignored)})
	assert.Equal(t, http.StatusOK, code)
	assert.Contains(t, string(env.Data), "ignored")
	assert.Zero(t, s.sheets.count())

	paid := []byte(`{"event":"charge.success","data":{"reference":"TLR-W","status":"success","amount":250000,"currency":"NGN",` +
		`"customer":{"email":"k@example.com","first_name":"Kemi","last_name":"Ola"},` +
		`"metadata":{"custom_fields":[{"display_name":"Order Items","variable_name":"order_items","value":"Buba x1"}]}}}`)
	for i := 0; i < 2; i++ {
		code, _ = s.do(t, http.MethodPost, "/api/v1/payments/webhook", paid, map[string]string{gateway.SignatureHeader: gateway.Sign(secret, paid)})
		assert.Equal(t, http.StatusOK, code)
	}
	require.Equal(t, 1, s.sheets.count())
	assert.Equal(t, 1, s.notifier.count())
	row := s.sheets.rows[0]
	assert.Equal(t, "Kemi Ola", row[1])
	assert.Equal(t, "Buba", row[4])
	assert.Equal(t, "2500.00", row[7])
}

func TestPlaceDirectOrder(t *testing.T) {
	s := newTestServer(t)

	code, env := s.do(t, http.MethodPost, "/api/v1/orders", []byte(`{"order":`+orderJSON+`}`), nil)
	require.Equal(t, http.StatusOK, code, env.Message)
	assert.Contains(t, string(env.Data), "DIRECT-")
	assert.Equal(t, "direct", s.sheets.rows[0][22])

	code, _ = s.do(t, http.MethodPost, "/api/v1/orders", []byte(`{"order":{"customer":{"name":"x","email":"x@example.com"}}}`), nil)
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestConfirmUnknownReferenceIsGatewayError(t *testing.T) {
	s := newTestServer(t)
	code, env := s.do(t, http.MethodPost, "/api/v1/payments/confirm", []byte(`{"reference":"TLR-NOPE"}`), nil)
	assert.Equal(t, http.StatusBadGateway, code)
	assert.Contains(t, env.Message, "Transaction reference not found")
}

func TestOpsEndpoints(t *testing.T) {
	s := newTestServer(t)
	ref := s.initialize(t)
	code, _ := s.do(t, http.MethodPost, "/api/v1/payments/confirm", []byte(`{"reference":"`+ref+`"}`), nil)
	require.Equal(t, http.StatusOK, code)

	code, _ = s.do(t, http.MethodGet, "/api/v1/ops/orders", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, code)

	code, _ = s.do(t, http.MethodPost, "/api/v1/ops/login", []byte(`{"username":"ops","password":"wrong"}`), nil)
	assert.Equal(t, http.StatusUnauthorized, code)

	code, env := s.do(t, http.MethodPost, "/api/v1/ops/login", []byte(`{"username":"ops","password":"pw"}`), nil)
	require.Equal(t, http.StatusOK, code)
	var login struct {
		Token string `json:"token"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &login))
	auth := map[string]string{"Authorization": "Bearer " + login.Token}

	code, env = s.do(t, http.MethodGet, "/api/v1/ops/orders", nil, auth)
	require.Equal(t, http.StatusOK, code)
	assert.Contains(t, string(env.Data), ref)

	code, _ = s.do(t, http.MethodGet, "/api/v1/ops/orders/"+ref, nil, auth)
	assert.Equal(t, http.StatusOK, code)
	code, _ = s.do(t, http.MethodGet, "/api/v1/ops/orders/TLR-MISSING", nil, auth)
	assert.Equal(t, http.StatusNotFound, code)

	code, env = s.do(t, http.MethodPost, "/api/v1/ops/orders/"+ref+"/replay", nil, auth)
	require.Equal(t, http.StatusOK, code)
	assert.Contains(t, string(env.Data), `"exported":true`)
	assert.Equal(t, 1, s.sheets.count(), "replay skips completed side effects")
}

func TestHealthz(t *testing.T) {
	s := newTestServer(t)
	code, env := s.do(t, http.MethodGet, "/healthz", nil, nil)
	assert.Equal(t, http.StatusOK, code)
	assert.Contains(t, string(env.Data), `"redis":"ok"`)
}
