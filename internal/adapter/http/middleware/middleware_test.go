package middleware

import (
	"bytes"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"qrpay-gateway/internal/core/ports"
	"qrpay-gateway/internal/core/ports/mocks"
	"qrpay-gateway/internal/metrics"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func adminRouter(tokenSvc ports.TokenService) *gin.Engine {
	r := gin.New()
	r.Use(RequestID())
	r.GET("/admin", AdminAuth(tokenSvc, zerolog.Nop()), func(c *gin.Context) {
		c.String(http.StatusOK, c.GetString(CtxAdminID))
	})
	return r
}

func TestAdminAuth(t *testing.T) {
	tests := []struct {
		name       string
		header     string
		setup      func(m *mocks.MockTokenService)
		wantStatus int
		wantBody   string
	}{
		{
			name:       "missing header",
			header:     "",
			setup:      func(m *mocks.MockTokenService) {},
			wantStatus: http.StatusUnauthorized,
			wantBody:   "INVALID_TOKEN",
		},
		{
			name:       "not a bearer token",
			header:     "Basic abc",
			setup:      func(m *mocks.MockTokenService) {},
			wantStatus: http.StatusUnauthorized,
			wantBody:   "INVALID_TOKEN",
		},
		{
			name:   "invalid token",
			header: "Bearer bad",
			setup: func(m *mocks.MockTokenService) {
				m.EXPECT().Validate("bad").Return(nil, errors.New("signature is invalid"))
			},
			wantStatus: http.StatusUnauthorized,
			wantBody:   "INVALID_TOKEN",
		},
		{
			name:   "non-admin role",
			header: "Bearer user-token",
			setup: func(m *mocks.MockTokenService) {
				m.EXPECT().Validate("user-token").Return(&ports.TokenClaims{Subject: "u-1", Role: "user"}, nil)
			},
			wantStatus: http.StatusForbidden,
			wantBody:   "FORBIDDEN",
		},
		{
			name:   "admin",
			header: "Bearer admin-token",
			setup: func(m *mocks.MockTokenService) {
				m.EXPECT().Validate("admin-token").Return(&ports.TokenClaims{Subject: "ops-1", Role: ports.RoleAdmin}, nil)
			},
			wantStatus: http.StatusOK,
			wantBody:   "ops-1",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctrl := gomock.NewController(t)
			tokenSvc := mocks.NewMockTokenService(ctrl)
			tt.setup(tokenSvc)

			w := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodGet, "/admin", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			adminRouter(tokenSvc).ServeHTTP(w, req)

			assert.Equal(t, tt.wantStatus, w.Code)
			assert.Contains(t, w.Body.String(), tt.wantBody)
		})
	}
}

func TestRequestID(t *testing.T) {
	r := gin.New()
	r.Use(RequestID())
	r.GET("/ping", func(c *gin.Context) {
		c.String(http.StatusOK, c.GetString(CtxRequestID))
	})

	t.Run("generates when absent", func(t *testing.T) {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ping", nil))

		id := w.Header().Get(HeaderRequestID)
		assert.Len(t, id, 36)
		assert.Equal(t, id, w.Body.String())
	})

	t.Run("reuses a valid incoming id", func(t *testing.T) {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/ping", nil)
		req.Header.Set(HeaderRequestID, "550e8400-e29b-41d4-a716-446655440000")
		r.ServeHTTP(w, req)

		assert.Equal(t, "550e8400-e29b-41d4-a716-446655440000", w.Body.String())
	})

	t.Run("replaces a malformed id", func(t *testing.T) {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/ping", nil)
		req.Header.Set(HeaderRequestID, "<script>")
		r.ServeHTTP(w, req)

		assert.NotEqual(t, "<script>", w.Body.String())
		assert.Len(t, w.Body.String(), 36)
	})
}

func TestRecovery(t *testing.T) {
	var buf bytes.Buffer
	r := gin.New()
	r.Use(RequestID(), Recovery(zerolog.New(&buf)))
	r.GET("/boom", func(c *gin.Context) {
		panic("kaboom")
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/boom", nil))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), "INTERNAL_ERROR")
	assert.NotContains(t, w.Body.String(), "kaboom")
	assert.Contains(t, buf.String(), "panic recovered")
}

func TestRequestLogger_LevelByStatus(t *testing.T) {
	tests := []struct {
		status int
		level  string
	}{
		{http.StatusOK, `"level":"info"`},
		{http.StatusNotFound, `"level":"warn"`},
		{http.StatusServiceUnavailable, `"level":"error"`},
	}

	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			var buf bytes.Buffer
			r := gin.New()
			r.Use(RequestLogger(zerolog.New(&buf)))
			r.GET("/x", func(c *gin.Context) { c.Status(tt.status) })

			r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/x", nil))

			assert.Contains(t, buf.String(), tt.level)
			assert.Contains(t, buf.String(), `"path":"/x"`)
		})
	}
}

func TestAdminAudit(t *testing.T) {
	var buf bytes.Buffer
	r := gin.New()
	r.Use(func(c *gin.Context) {
		c.Set(CtxAdminID, "ops-1")
		c.Next()
	}, AdminAudit(zerolog.New(&buf)))
	r.POST("/ok", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.POST("/fail", func(c *gin.Context) { c.Status(http.StatusConflict) })
	r.GET("/read", func(c *gin.Context) { c.Status(http.StatusOK) })

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/read", nil))
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/fail", nil))
	assert.Empty(t, buf.String())

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/ok", nil))
	require.NotEmpty(t, buf.String())
	assert.Contains(t, buf.String(), `"admin_id":"ops-1"`)
	assert.Contains(t, buf.String(), "admin action")
}

func TestHTTPMetrics(t *testing.T) {
	r := gin.New()
	r.Use(HTTPMetrics())
	r.GET("/orders/:id", func(c *gin.Context) { c.Status(http.StatusOK) })

	counter := metrics.RequestsTotal.WithLabelValues("/orders/:id", http.MethodGet, "200")
	before := testutil.ToFloat64(counter)

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/orders/abc", nil))
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/orders/def", nil))

	assert.Equal(t, before+2, testutil.ToFloat64(counter))
}
