// Package gateway talks to the Razorpay-style payment provider: remote
// order creation, refunds, payment lookups and HMAC signature checks for
// client callbacks and webhooks.
package gateway

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/SigNoz/checkout-service/internal/models"
)

// Client is a Razorpay REST client. Every call is bounded by the
// http.Client timeout.
type Client struct {
	baseURL       string
	keyID         string
	keySecret     string
	webhookSecret string
	httpClient    *http.Client
}

// NewClient creates a gateway client.
func NewClient(baseURL, keyID, keySecret, webhookSecret string, timeout time.Duration) *Client {
	return &Client{
		baseURL:       strings.TrimRight(baseURL, "/"),
		keyID:         keyID,
		keySecret:     keySecret,
		webhookSecret: webhookSecret,
		httpClient: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
}

type createOrderRequest struct {
	Amount         int64  `json:"amount"`
	Currency       string `json:"currency"`
	Receipt        string `json:"receipt"`
	PaymentCapture int    `json:"payment_capture"`
}

type createOrderResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

type refundRequest struct {
	Amount int64 `json:"amount"`
}

type refundResponse struct {
	ID string `json:"id"`
}

type orderPaymentsResponse struct {
	Items []struct {
		ID     string `json:"id"`
		Status string `json:"status"`
	} `json:"items"`
}

type errorResponse struct {
	Error struct {
		Code        string `json:"code"`
		Description string `json:"description"`
	} `json:"error"`
}

// CreateRemoteOrder registers amount with the provider and returns the
// remote order id.
func (c *Client) CreateRemoteOrder(ctx context.Context, amount decimal.Decimal, currency, receipt string) (string, error) {
	var out createOrderResponse
	err := c.do(ctx, "create_order", http.MethodPost, "/v1/orders", createOrderRequest{
		Amount:         toMinorUnits(amount),
		Currency:       currency,
		Receipt:        receipt,
		PaymentCapture: 1,
	}, &out)
	if err != nil {
		return "", err
	}
	if out.ID == "" {
		return "", &models.GatewayError{Kind: models.GatewayUnknown, Op: "create_order", Err: errors.New("empty order id in response")}
	}
	return out.ID, nil
}

// IssueRefund refunds amount of a captured payment and returns the refund id.
func (c *Client) IssueRefund(ctx context.Context, gatewayPaymentID string, amount decimal.Decimal) (string, error) {
	var out refundResponse
	path := "/v1/payments/" + gatewayPaymentID + "/refund"
	if err := c.do(ctx, "refund", http.MethodPost, path, refundRequest{Amount: toMinorUnits(amount)}, &out); err != nil {
		return "", err
	}
	return out.ID, nil
}

// CapturedPayment returns the id of a captured payment made against the
// remote order, or "" when the provider holds none.
func (c *Client) CapturedPayment(ctx context.Context, gatewayOrderID string) (string, error) {
	var out orderPaymentsResponse
	if err := c.do(ctx, "fetch_payments", http.MethodGet, "/v1/orders/"+gatewayOrderID+"/payments", nil, &out); err != nil {
		return "", err
	}
	for _, item := range out.Items {
		if item.Status == "captured" {
			return item.ID, nil
		}
	}
	return "", nil
}

// VerifyPaymentSignature checks the signature the checkout page receives:
// HMAC-SHA256 of "order_id|payment_id" keyed by the API secret.
func (c *Client) VerifyPaymentSignature(gatewayOrderID, gatewayPaymentID, signature string) bool {
	return verify([]byte(gatewayOrderID+"|"+gatewayPaymentID), c.keySecret, signature)
}

// VerifyWebhookSignature checks the HMAC-SHA256 of the raw webhook body
// keyed by the webhook secret.
func (c *Client) VerifyWebhookSignature(body []byte, signature string) bool {
	return verify(body, c.webhookSecret, signature)
}

// Sign computes the hex HMAC-SHA256 of payload.
func Sign(payload []byte, secret string) string {
	h := hmac.New(sha256.New, []byte(secret))
	h.Write(payload)
	return hex.EncodeToString(h.Sum(nil))
}

func verify(payload []byte, secret, signature string) bool {
	if secret == "" || signature == "" {
		return false
	}
	expected := Sign(payload, secret)
	return hmac.Equal([]byte(expected), []byte(strings.ToLower(signature)))
}

func toMinorUnits(amount decimal.Decimal) int64 {
	return amount.Shift(2).Round(0).IntPart()
}

func (c *Client) do(ctx context.Context, op, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return &models.GatewayError{Kind: models.GatewayUnknown, Op: op, Err: err}
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return &models.GatewayError{Kind: models.GatewayUnknown, Op: op, Err: err}
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.SetBasicAuth(c.keyID, c.keySecret)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &models.GatewayError{Kind: classifyTransportError(err), Op: op, Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return &models.GatewayError{Kind: classifyTransportError(err), Op: op, Err: err}
	}

	if resp.StatusCode >= 300 {
		return &models.GatewayError{Kind: classifyStatus(resp.StatusCode), Op: op, Err: describeError(resp.StatusCode, raw)}
	}

	if err := json.Unmarshal(raw, out); err != nil {
		return &models.GatewayError{Kind: models.GatewayUnknown, Op: op, Err: fmt.Errorf("decode response: %w", err)}
	}
	return nil
}

func classifyTransportError(err error) models.GatewayErrorKind {
	if errors.Is(err, context.DeadlineExceeded) {
		return models.GatewayTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return models.GatewayTimeout
	}
	return models.GatewayUnknown
}

// 4xx means the provider looked at the request and refused it, except
// for throttling and request timeouts which may succeed on retry.
func classifyStatus(code int) models.GatewayErrorKind {
	switch {
	case code == http.StatusRequestTimeout || code == http.StatusGatewayTimeout:
		return models.GatewayTimeout
	case code == http.StatusTooManyRequests:
		return models.GatewayUnknown
	case code >= 400 && code < 500:
		return models.GatewayRejected
	}
	return models.GatewayUnknown
}

func describeError(code int, raw []byte) error {
	var e errorResponse
	if json.Unmarshal(raw, &e) == nil && e.Error.Description != "" {
		return fmt.Errorf("status %d: %s: %s", code, e.Error.Code, e.Error.Description)
	}
	return fmt.Errorf("status %d", code)
}
