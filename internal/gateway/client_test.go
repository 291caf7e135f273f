package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/d60-Lab/tailor-checkout/config"
	"github.com/d60-Lab/tailor-checkout/internal/model"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	c := NewClient(config.PaystackConfig{
		BaseURL:         srv.URL,
		SecretKey:       "sk_test",
		CallbackURL:     "http://shop.test/callback",
		Currency:        "NGN",
		Timeout:         2 * time.Second,
		VerifyTries:     3,
		ReferencePrefix: "TST",
	}, srv.Client())
	c.retryInterval = time.Millisecond
	return c, srv
}

func TestInitializeSendsMinorUnits(t *testing.T) {
	var got initializeBody
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/transaction/initialize", r.URL.Path)
		assert.Equal(t, "Bearer sk_test", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = io.WriteString(w, `{"status":true,"message":"Authorization URL created","data":{"authorization_url":"https://checkout.test/abc","access_code":"abc","reference":"`+got.Reference+`"}}`)
	})

	res, err := c.Initialize(context.Background(), InitializeRequest{
		Email:    "ade@example.com",
		Amount:   decimal.NewFromInt(5000),
		Currency: "NGN",
		Order:    sampleOrder(),
	})
	require.NoError(t, err)

	assert.Equal(t, int64(500000), got.Amount)
	assert.Equal(t, "NGN", got.Currency)
	assert.Equal(t, "http://shop.test/callback", got.CallbackURL)
	assert.True(t, strings.HasPrefix(got.Reference, "TST-"))
	assert.Equal(t, "Agbada x2; Kaftan x1", got.Metadata.Field(model.FieldOrderItems))

	assert.Equal(t, got.Reference, res.Reference)
	assert.Equal(t, "https://checkout.test/abc", res.AuthorizationURL)
	assert.Equal(t, "abc", res.AccessCode)
	assert.Equal(t, int64(500000), res.AmountMinor)
}

func TestInitializeMissingSecret(t *testing.T) {
	c := NewClient(config.PaystackConfig{BaseURL: "http://unused"}, nil)

	_, err := c.Initialize(context.Background(), InitializeRequest{Email: "a@b.c", Amount: decimal.NewFromInt(1)})

	var cfgErr *ConfigurationError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, "paystack.secret_key", cfgErr.Setting)
}

func TestInitializeRejectedIsNotRetried(t *testing.T) {
	var calls atomic.Int32
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
		_, _ = io.WriteString(w, `{"status":false,"message":"Invalid Email Address Passed"}`)
	})

	_, err := c.Initialize(context.Background(), InitializeRequest{Email: "bad", Amount: decimal.NewFromInt(10)})

	var gerr *Error
	require.ErrorAs(t, err, &gerr)
	assert.Equal(t, http.StatusBadRequest, gerr.StatusCode)
	assert.Equal(t, "Invalid Email Address Passed", gerr.Message)
	assert.Equal(t, int32(1), calls.Load())
}

func TestVerifySuccess(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/transaction/verify/TST-1", r.URL.Path)
		_, _ = io.WriteString(w, `{"status":true,"message":"Verification successful","data":{
			"reference":"TST-1","status":"success","amount":500000,"currency":"NGN","channel":"card",
			"paid_at":"2026-10-15T10:00:00.000Z","created_at":"2026-10-15T09:58:00.000Z",
			"customer":{"email":"ade@example.com","first_name":"Ade","last_name":"Bello"},
			"metadata":{"custom_fields":[{"display_name":"Order Items","variable_name":"order_items","value":"Agbada x2"}]}}}`)
	})

	txn, err := c.Verify(context.Background(), "TST-1")
	require.NoError(t, err)

	assert.True(t, txn.Succeeded())
	assert.True(t, txn.Amount.Equal(decimal.NewFromInt(5000)))
	assert.Equal(t, "card", txn.Channel)
	assert.Equal(t, "Agbada x2", txn.Metadata.Field(model.FieldOrderItems))
	require.NotNil(t, txn.PaidAt)
	assert.Equal(t, 10, txn.PaidAt.Hour())
}

func TestVerifyNotSuccessIsNotAnError(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"status":true,"message":"Verification successful","data":{"reference":"TST-2","status":"abandoned","amount":100,"currency":"NGN","metadata":""}}`)
	})

	txn, err := c.Verify(context.Background(), "TST-2")
	require.NoError(t, err)
	assert.False(t, txn.Succeeded())
	assert.Equal(t, model.TxAbandoned, txn.Status)
	assert.Empty(t, txn.Metadata.CustomFields)
}

func TestVerifyRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = io.WriteString(w, `{"status":true,"data":{"reference":"TST-3","status":"success","amount":100}}`)
	})

	txn, err := c.Verify(context.Background(), "TST-3")
	require.NoError(t, err)
	assert.True(t, txn.Succeeded())
	assert.Equal(t, int32(3), calls.Load())
}

func TestVerifyErrors(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		calls   int32
		message string
	}{
		{"not found", http.StatusBadRequest, `{"status":false,"message":"Transaction reference not found"}`, 1, "Transaction reference not found"},
		{"malformed", http.StatusOK, `not json`, 1, "malformed payload"},
		{"status false", http.StatusOK, `{"status":false,"message":"nope"}`, 1, "nope"},
		{"missing reference", http.StatusOK, `{"status":true,"data":{"status":"success"}}`, 1, "malformed payload: missing reference"},
		{"server down", http.StatusServiceUnavailable, ``, 3, "Service Unavailable"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var calls atomic.Int32
			c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				calls.Add(1)
				w.WriteHeader(tc.status)
				_, _ = io.WriteString(w, tc.body)
			})

			_, err := c.Verify(context.Background(), "TST-X")

			var gerr *Error
			require.True(t, errors.As(err, &gerr), "got %v", err)
			assert.Equal(t, tc.message, gerr.Message)
			assert.Equal(t, tc.calls, calls.Load())
		})
	}
}

func TestGenerateReferenceUnique(t *testing.T) {
	seen := make(map[string]struct{}, 1000)
	for i := 0; i < 1000; i++ {
		ref := GenerateReference("TLR")
		_, dup := seen[ref]
		require.False(t, dup, "duplicate reference %s", ref)
		seen[ref] = struct{}{}
	}
}

func TestWebhookSignatureUsesSecret(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {})
	body := []byte(`{"event":"charge.success"}`)

	assert.True(t, c.VerifyWebhookSignature(body, Sign("sk_test", body)))
	assert.False(t, c.VerifyWebhookSignature(body, Sign("sk_other", body)))
}
