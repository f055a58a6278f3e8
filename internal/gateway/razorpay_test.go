package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SigNoz/checkout-service/internal/models"
)

func newTestClient(url string, timeout time.Duration) *Client {
	return NewClient(url, "rzp_test_key", "key_secret", "webhook_secret", timeout)
}

func gatewayKind(t *testing.T, err error) models.GatewayErrorKind {
	t.Helper()
	var gwErr *models.GatewayError
	require.True(t, errors.As(err, &gwErr), "expected GatewayError, got %v", err)
	return gwErr.Kind
}

func TestCreateRemoteOrder_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/orders", r.URL.Path)
		user, pass, ok := r.BasicAuth()
		assert.True(t, ok)
		assert.Equal(t, "rzp_test_key", user)
		assert.Equal(t, "key_secret", pass)

		var body createOrderRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, int64(23050), body.Amount)
		assert.Equal(t, "INR", body.Currency)
		assert.Equal(t, "order-1", body.Receipt)

		json.NewEncoder(w).Encode(createOrderResponse{ID: "order_ABC", Status: "created"})
	}))
	defer srv.Close()

	id, err := newTestClient(srv.URL, time.Second).CreateRemoteOrder(context.Background(), decimal.RequireFromString("230.50"), "INR", "order-1")
	require.NoError(t, err)
	assert.Equal(t, "order_ABC", id)
}

func TestCreateRemoteOrder_ErrorClassification(t *testing.T) {
	tests := []struct {
		name   string
		status int
		want   models.GatewayErrorKind
	}{
		{"bad request is rejected", http.StatusBadRequest, models.GatewayRejected},
		{"unauthorized is rejected", http.StatusUnauthorized, models.GatewayRejected},
		{"throttled is unknown", http.StatusTooManyRequests, models.GatewayUnknown},
		{"server error is unknown", http.StatusInternalServerError, models.GatewayUnknown},
		{"upstream timeout is timeout", http.StatusGatewayTimeout, models.GatewayTimeout},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(`{"error":{"code":"BAD_REQUEST_ERROR","description":"amount invalid"}}`))
			}))
			defer srv.Close()

			_, err := newTestClient(srv.URL, time.Second).CreateRemoteOrder(context.Background(), decimal.NewFromInt(1), "INR", "r")
			require.Error(t, err)
			assert.Equal(t, tt.want, gatewayKind(t, err))
		})
	}
}

func TestCreateRemoteOrder_Timeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	_, err := newTestClient(srv.URL, 50*time.Millisecond).CreateRemoteOrder(context.Background(), decimal.NewFromInt(1), "INR", "r")
	require.Error(t, err)
	assert.Equal(t, models.GatewayTimeout, gatewayKind(t, err))
}

func TestCreateRemoteOrder_GarbledResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("not json"))
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL, time.Second).CreateRemoteOrder(context.Background(), decimal.NewFromInt(1), "INR", "r")
	assert.Equal(t, models.GatewayUnknown, gatewayKind(t, err))
}

func TestIssueRefund(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/payments/pay_123/refund", r.URL.Path)
		var body refundRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, int64(25000), body.Amount)
		json.NewEncoder(w).Encode(refundResponse{ID: "rfnd_1"})
	}))
	defer srv.Close()

	id, err := newTestClient(srv.URL, time.Second).IssueRefund(context.Background(), "pay_123", decimal.NewFromInt(250))
	require.NoError(t, err)
	assert.Equal(t, "rfnd_1", id)
}

func TestCapturedPayment(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		switch r.URL.Path {
		case "/v1/orders/order_paid/payments":
			fmt.Fprint(w, `{"items":[{"id":"pay_1","status":"failed"},{"id":"pay_2","status":"captured"}]}`)
		case "/v1/orders/order_open/payments":
			fmt.Fprint(w, `{"items":[{"id":"pay_3","status":"failed"}]}`)
		default:
			w.WriteHeader(http.StatusBadRequest)
			fmt.Fprint(w, `{"error":{"code":"BAD_REQUEST_ERROR","description":"order not found"}}`)
		}
	}))
	defer srv.Close()
	c := newTestClient(srv.URL, time.Second)

	id, err := c.CapturedPayment(context.Background(), "order_paid")
	require.NoError(t, err)
	assert.Equal(t, "pay_2", id)

	id, err = c.CapturedPayment(context.Background(), "order_open")
	require.NoError(t, err)
	assert.Empty(t, id)

	_, err = c.CapturedPayment(context.Background(), "order_missing")
	assert.Equal(t, models.GatewayRejected, gatewayKind(t, err))
}

func TestVerifyPaymentSignature(t *testing.T) {
	c := newTestClient("http://unused", time.Second)
	sig := Sign([]byte("order_ABC|pay_123"), "key_secret")

	assert.True(t, c.VerifyPaymentSignature("order_ABC", "pay_123", sig))
	assert.False(t, c.VerifyPaymentSignature("order_ABC", "pay_999", sig))
	assert.False(t, c.VerifyPaymentSignature("order_ABC", "pay_123", ""))
}

func TestVerifyWebhookSignature_UsesRawBytes(t *testing.T) {
	c := newTestClient("http://unused", time.Second)
	body := []byte(`{"event":"payment.captured","payload":{}}`)
	sig := Sign(body, "webhook_secret")

	assert.True(t, c.VerifyWebhookSignature(body, sig))
	// same JSON, different bytes
	assert.False(t, c.VerifyWebhookSignature([]byte(`{"payload":{},"event":"payment.captured"}`), sig))
	// wrong secret
	assert.False(t, c.VerifyWebhookSignature(body, Sign(body, "key_secret")))
}

func TestVerify_EmptySecretNeverMatches(t *testing.T) {
	c := NewClient("http://unused", "k", "", "", time.Second)
	assert.False(t, c.VerifyWebhookSignature([]byte("x"), Sign([]byte("x"), "")))
}
