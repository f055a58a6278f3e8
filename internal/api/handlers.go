package api

import (
	"encoding/json"
	"errors"
	"io"
	"log"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/SigNoz/checkout-service/internal/metrics"
	"github.com/SigNoz/checkout-service/internal/middleware"
	"github.com/SigNoz/checkout-service/internal/models"
	"github.com/SigNoz/checkout-service/internal/requestid"
	"github.com/SigNoz/checkout-service/internal/services"
)

// SignatureHeader carries the provider's HMAC over the raw webhook body.
const SignatureHeader = "X-Razorpay-Signature"

const maxWebhookBody = 1 << 20

// Services groups the domain services the handlers call.
type Services struct {
	Carts    *services.CartService
	Checkout *services.CheckoutService
	Orders   *services.OrderService
	Payments *services.PaymentService
	Webhooks *services.WebhookReconciler
	Products *services.ProductService
}

// App holds application dependencies
type App struct {
	metrics     *metrics.AppMetrics
	svc         Services
	staleAfter  time.Duration
	retryAfter  time.Duration
	healthCheck func(r *http.Request) error
}

// NewApp creates a new application instance. staleAfter is the age at
// which the reconcile endpoint fails CREATED payments.
func NewApp(m *metrics.AppMetrics, svc Services, staleAfter time.Duration) *App {
	return &App{metrics: m, svc: svc, staleAfter: staleAfter, retryAfter: time.Second}
}

// WithHealthCheck sets the dependency probe behind /health.
func (a *App) WithHealthCheck(check func(r *http.Request) error) *App {
	a.healthCheck = check
	return a
}

// SetupRoutes configures the HTTP routes
func (a *App) SetupRoutes(r *mux.Router) {
	// Middleware
	r.Use(middleware.RequestIDMiddleware)
	r.Use(middleware.CORSMiddleware)
	r.Use(middleware.ErrorHandlerMiddleware)
	r.Use(middleware.MetricsMiddleware(a.metrics))

	// Provider callbacks carry no user identity
	r.HandleFunc("/payments/webhook", a.WebhookHandler).Methods("POST")
	r.HandleFunc("/health", a.HealthHandler).Methods("GET")

	api := r.PathPrefix("/api/v1").Subrouter()
	api.Use(middleware.AuthenticateMiddleware)

	// Products
	api.HandleFunc("/products/{id}", a.GetProductHandler).Methods("GET")

	// Cart
	api.HandleFunc("/cart", a.GetCartHandler).Methods("GET")
	api.HandleFunc("/cart/items", a.AddCartItemHandler).Methods("POST")
	api.HandleFunc("/cart/items/{id}", a.UpdateCartItemHandler).Methods("PATCH")
	api.HandleFunc("/cart/items/{id}", a.RemoveCartItemHandler).Methods("DELETE")
	api.HandleFunc("/cart/promo", a.ApplyPromoHandler).Methods("POST")
	api.HandleFunc("/cart/promo", a.RemovePromoHandler).Methods("DELETE")
	api.HandleFunc("/cart/merge", a.MergeCartHandler).Methods("POST")

	// Orders
	api.HandleFunc("/orders", a.CheckoutHandler).Methods("POST")
	api.HandleFunc("/orders/{id}", a.GetOrderHandler).Methods("GET")
	api.HandleFunc("/orders/{id}/cancel", a.CancelOrderHandler).Methods("POST")

	// Payments
	api.HandleFunc("/payments/init", a.InitPaymentHandler).Methods("POST")
	api.HandleFunc("/payments/verify", a.VerifyPaymentHandler).Methods("POST")

	// Admin
	api.HandleFunc("/admin/orders/{id}/status", a.AdminOrderStatusHandler).Methods("PUT")
	api.HandleFunc("/admin/orders/{id}/refund", a.AdminRefundHandler).Methods("POST")
	api.HandleFunc("/admin/payments/reconcile", a.AdminReconcileHandler).Methods("POST")
	api.HandleFunc("/admin/products/{id}/stock", a.AdminAdjustStockHandler).Methods("PUT")
}

// HealthHandler handles health check requests
func (a *App) HealthHandler(w http.ResponseWriter, r *http.Request) {
	if a.healthCheck != nil {
		if err := a.healthCheck(r); err != nil {
			log.Printf("request_id=%s health check failed: %v", requestid.From(r.Context()), err)
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unhealthy"})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

// GetProductHandler handles GET /api/v1/products/{id}
func (a *App) GetProductHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	product, err := a.svc.Products.GetProduct(r.Context(), id)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, product)
}

// GetCartHandler handles GET /api/v1/cart
func (a *App) GetCartHandler(w http.ResponseWriter, r *http.Request) {
	view, err := a.svc.Carts.GetCart(r.Context(), middleware.PrincipalFromContext(r.Context()))
	a.respond(w, r, http.StatusOK, view, err)
}

// AddCartItemHandler handles POST /api/v1/cart/items
func (a *App) AddCartItemHandler(w http.ResponseWriter, r *http.Request) {
	var req services.AddItemRequest
	if !decode(w, r, &req) {
		return
	}
	view, err := a.svc.Carts.AddItem(r.Context(), middleware.PrincipalFromContext(r.Context()), req)
	a.respond(w, r, http.StatusOK, view, err)
}

// UpdateCartItemHandler handles PATCH /api/v1/cart/items/{id}
func (a *App) UpdateCartItemHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var req struct {
		Quantity int `json:"quantity"`
	}
	if !decode(w, r, &req) {
		return
	}
	view, err := a.svc.Carts.UpdateItem(r.Context(), middleware.PrincipalFromContext(r.Context()), id, req.Quantity)
	a.respond(w, r, http.StatusOK, view, err)
}

// RemoveCartItemHandler handles DELETE /api/v1/cart/items/{id}
func (a *App) RemoveCartItemHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	view, err := a.svc.Carts.RemoveItem(r.Context(), middleware.PrincipalFromContext(r.Context()), id)
	a.respond(w, r, http.StatusOK, view, err)
}

// ApplyPromoHandler handles POST /api/v1/cart/promo
func (a *App) ApplyPromoHandler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Code string `json:"code"`
	}
	if !decode(w, r, &req) {
		return
	}
	view, err := a.svc.Carts.ApplyPromo(r.Context(), middleware.PrincipalFromContext(r.Context()), req.Code)
	a.respond(w, r, http.StatusOK, view, err)
}

// RemovePromoHandler handles DELETE /api/v1/cart/promo
func (a *App) RemovePromoHandler(w http.ResponseWriter, r *http.Request) {
	view, err := a.svc.Carts.RemovePromo(r.Context(), middleware.PrincipalFromContext(r.Context()))
	a.respond(w, r, http.StatusOK, view, err)
}

// MergeCartHandler handles POST /api/v1/cart/merge. The guest session key
// comes from the body so a freshly logged-in client can name it.
func (a *App) MergeCartHandler(w http.ResponseWriter, r *http.Request) {
	p := middleware.PrincipalFromContext(r.Context())
	var req struct {
		SessionKey string `json:"session_key"`
	}
	if !decodeOptional(w, r, &req) {
		return
	}
	if req.SessionKey == "" {
		req.SessionKey = p.SessionKey
	}
	view, err := a.svc.Carts.Merge(r.Context(), p, req.SessionKey)
	a.respond(w, r, http.StatusOK, view, err)
}

// CheckoutHandler handles POST /api/v1/orders
func (a *App) CheckoutHandler(w http.ResponseWriter, r *http.Request) {
	var req services.CheckoutRequest
	if !decode(w, r, &req) {
		return
	}
	order, err := a.svc.Checkout.Checkout(r.Context(), middleware.PrincipalFromContext(r.Context()), req)
	a.respond(w, r, http.StatusCreated, order, err)
}

// GetOrderHandler handles GET /api/v1/orders/{id}
func (a *App) GetOrderHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	order, err := a.svc.Orders.GetOrder(r.Context(), middleware.PrincipalFromContext(r.Context()), id)
	a.respond(w, r, http.StatusOK, order, err)
}

// CancelOrderHandler handles POST /api/v1/orders/{id}/cancel
func (a *App) CancelOrderHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var req struct {
		Reason string `json:"reason"`
	}
	if !decodeOptional(w, r, &req) {
		return
	}
	order, err := a.svc.Orders.Cancel(r.Context(), middleware.PrincipalFromContext(r.Context()), id, req.Reason)
	a.respond(w, r, http.StatusOK, order, err)
}

// InitPaymentHandler handles POST /api/v1/payments/init
func (a *App) InitPaymentHandler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		OrderID uuid.UUID `json:"order_id"`
	}
	if !decode(w, r, &req) {
		return
	}
	payment, err := a.svc.Payments.Init(r.Context(), middleware.PrincipalFromContext(r.Context()), req.OrderID)
	a.respond(w, r, http.StatusOK, payment, err)
}

// VerifyPaymentHandler handles POST /api/v1/payments/verify
func (a *App) VerifyPaymentHandler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		GatewayOrderID   string `json:"gateway_order_id"`
		GatewayPaymentID string `json:"gateway_payment_id"`
		Signature        string `json:"signature"`
	}
	if !decode(w, r, &req) {
		return
	}
	payment, err := a.svc.Payments.Verify(r.Context(), middleware.PrincipalFromContext(r.Context()), req.GatewayOrderID, req.GatewayPaymentID, req.Signature)
	a.respond(w, r, http.StatusOK, payment, err)
}

// WebhookHandler handles POST /payments/webhook. The body is read raw:
// the signature covers the exact bytes the provider sent.
func (a *App) WebhookHandler(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"status": metrics.WebhookMalformed})
		return
	}
	res := a.svc.Webhooks.HandleWebhook(r.Context(), body, r.Header.Get(SignatureHeader), remoteIP(r))
	writeJSON(w, res.HTTPStatus, res)
}

// AdminOrderStatusHandler handles PUT /api/v1/admin/orders/{id}/status
func (a *App) AdminOrderStatusHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var req struct {
		Status models.OrderStatus `json:"status"`
		Reason string             `json:"reason"`
	}
	if !decode(w, r, &req) {
		return
	}
	order, err := a.svc.Orders.AdminSetStatus(r.Context(), middleware.PrincipalFromContext(r.Context()), id, req.Status, req.Reason)
	a.respond(w, r, http.StatusOK, order, err)
}

// AdminRefundHandler handles POST /api/v1/admin/orders/{id}/refund
func (a *App) AdminRefundHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var req struct {
		Reason string `json:"reason"`
	}
	if !decodeOptional(w, r, &req) {
		return
	}
	payment, err := a.svc.Payments.Refund(r.Context(), middleware.PrincipalFromContext(r.Context()), id, req.Reason)
	a.respond(w, r, http.StatusOK, payment, err)
}

// AdminReconcileHandler handles POST /api/v1/admin/payments/reconcile
func (a *App) AdminReconcileHandler(w http.ResponseWriter, r *http.Request) {
	if !middleware.PrincipalFromContext(r.Context()).IsAdmin() {
		a.writeError(w, r, models.ErrForbidden)
		return
	}
	staleAfter := a.staleAfter
	if s := r.URL.Query().Get("older_than"); s != "" {
		d, err := time.ParseDuration(s)
		if err != nil || d <= 0 {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "older_than must be a positive duration"})
			return
		}
		staleAfter = d
	}
	failed, err := a.svc.Payments.SweepStale(r.Context(), staleAfter)
	a.respond(w, r, http.StatusOK, map[string]int{"failed": failed}, err)
}

// AdminAdjustStockHandler handles PUT /api/v1/admin/products/{id}/stock
func (a *App) AdminAdjustStockHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var req struct {
		Delta  int    `json:"delta"`
		Reason string `json:"reason"`
	}
	if !decode(w, r, &req) {
		return
	}
	product, err := a.svc.Products.AdjustStock(r.Context(), middleware.PrincipalFromContext(r.Context()), id, req.Delta, req.Reason)
	a.respond(w, r, http.StatusOK, product, err)
}

func (a *App) respond(w http.ResponseWriter, r *http.Request, status int, body any, err error) {
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, status, body)
}

type errorBody struct {
	Error     string     `json:"error"`
	RequestID string     `json:"request_id"`
	ProductID *uuid.UUID `json:"product_id,omitempty"`
	Available *int       `json:"available,omitempty"`
}

// writeError maps the domain error taxonomy onto HTTP statuses. Unknown
// errors are logged and answered with a generic message.
func (a *App) writeError(w http.ResponseWriter, r *http.Request, err error) {
	body := errorBody{Error: err.Error(), RequestID: requestid.From(r.Context())}
	status := http.StatusInternalServerError

	var (
		stock   *models.InsufficientStockError
		illegal *models.IllegalTransitionError
		promo   *models.PromoRejectedError
		gw      *models.GatewayError
	)
	switch {
	case errors.As(err, &stock):
		status = http.StatusConflict
		body.ProductID = &stock.ProductID
		body.Available = &stock.Available
	case errors.As(err, &illegal):
		status = http.StatusBadRequest
		log.Printf("[API] request_id=%s %s %s refused: %v", body.RequestID, r.Method, r.URL.Path, illegal)
	case errors.As(err, &promo):
		status = http.StatusBadRequest
	case errors.Is(err, models.ErrEmptyCart), errors.Is(err, models.ErrMissingContact),
		errors.Is(err, models.ErrMissingAddress), errors.Is(err, models.ErrInvalidOwner),
		errors.Is(err, models.ErrInvalidQuantity), errors.Is(err, models.ErrPriceUnavailable),
		errors.Is(err, models.ErrSignatureMismatch), errors.Is(err, models.ErrCODNotPayable),
		errors.Is(err, models.ErrInvalidPaymentMethod):
		status = http.StatusBadRequest
	case errors.Is(err, models.ErrForbidden):
		status = http.StatusForbidden
	case errors.Is(err, models.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, models.ErrLockTimeout):
		status = http.StatusServiceUnavailable
		w.Header().Set("Retry-After", strconv.Itoa(int(a.retryAfter.Seconds())))
	case errors.As(err, &gw):
		switch gw.Kind {
		case models.GatewayTimeout:
			status = http.StatusGatewayTimeout
		case models.GatewayRejected:
			status = http.StatusPaymentRequired
		default:
			status = http.StatusBadGateway
		}
	default:
		log.Printf("request_id=%s %s %s failed: %v", body.RequestID, r.Method, r.URL.Path, err)
		body.Error = "internal server error"
	}
	writeJSON(w, status, body)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Invalid request body"})
		return false
	}
	return true
}

// decodeOptional accepts an empty body.
func decodeOptional(w http.ResponseWriter, r *http.Request, dst any) bool {
	err := json.NewDecoder(r.Body).Decode(dst)
	if err != nil && !errors.Is(err, io.EOF) {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Invalid request body"})
		return false
	}
	return true
}

func pathID(w http.ResponseWriter, r *http.Request, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(mux.Vars(r)[name])
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Invalid " + name})
		return uuid.Nil, false
	}
	return id, true
}

func remoteIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		return strings.TrimSpace(first)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
