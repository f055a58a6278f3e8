package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SigNoz/checkout-service/internal/metrics"
	"github.com/SigNoz/checkout-service/internal/models"
	"github.com/SigNoz/checkout-service/internal/requestid"
)

func TestRequestIDMiddleware(t *testing.T) {
	var seen string
	h := RequestIDMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = requestid.From(r.Context())
	}))

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(requestid.Header, "abc-123")
	h.ServeHTTP(rec, req)
	assert.Equal(t, "abc-123", seen)
	assert.Equal(t, "abc-123", rec.Header().Get(requestid.Header))

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.NotEqual(t, "-", seen)
	assert.Equal(t, seen, rec.Header().Get(requestid.Header))
}

func TestAuthenticateMiddleware(t *testing.T) {
	var got models.Principal
	h := AuthenticateMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = PrincipalFromContext(r.Context())
	}))
	userID := uuid.New()

	tests := []struct {
		name    string
		headers map[string]string
		status  int
		check   func(t *testing.T, p models.Principal)
	}{
		{
			name:    "admin",
			headers: map[string]string{HeaderUserID: userID.String(), HeaderUserRole: "admin"},
			status:  http.StatusOK,
			check: func(t *testing.T, p models.Principal) {
				require.NotNil(t, p.UserID)
				assert.Equal(t, userID, *p.UserID)
				assert.True(t, p.IsAdmin())
			},
		},
		{
			name:    "guest session",
			headers: map[string]string{HeaderSessionKey: "sess-1"},
			status:  http.StatusOK,
			check: func(t *testing.T, p models.Principal) {
				assert.False(t, p.Authenticated())
				assert.Equal(t, "sess-1", p.SessionKey)
			},
		},
		{
			name:    "role without user is ignored",
			headers: map[string]string{HeaderUserRole: "ADMIN"},
			status:  http.StatusOK,
			check: func(t *testing.T, p models.Principal) {
				assert.False(t, p.IsAdmin())
			},
		},
		{name: "bad user id", headers: map[string]string{HeaderUserID: "42"}, status: http.StatusUnauthorized},
		{name: "unknown role", headers: map[string]string{HeaderUserID: userID.String(), HeaderUserRole: "root"}, status: http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got = models.Principal{}
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			assert.Equal(t, tt.status, rec.Code)
			if tt.check != nil {
				tt.check(t, got)
			}
		})
	}
}

func TestErrorHandlerMiddleware(t *testing.T) {
	h := ErrorHandlerMiddleware(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"error":"Internal Server Error"}`, rec.Body.String())
}

func TestCORSMiddleware_Preflight(t *testing.T) {
	called := false
	h := CORSMiddleware(http.HandlerFunc(func(http.ResponseWriter, *http.Request) { called = true }))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodOptions, "/api/v1/cart", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, called)
	assert.Contains(t, rec.Header().Get("Access-Control-Allow-Headers"), HeaderSessionKey)
}

func TestMetricsMiddleware_PassesStatusThrough(t *testing.T) {
	r := mux.NewRouter()
	r.Use(MetricsMiddleware(metrics.NewNoop()))
	r.HandleFunc("/teapot", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/teapot", nil))
	assert.Equal(t, http.StatusTeapot, rec.Code)
}
