package routes

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"storefront/apperrors"
	"storefront/controllers"
	"storefront/middleware"
	"storefront/services"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func newEngine(t *testing.T) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(apperrors.ErrorMiddleware("test"))

	limiter := middleware.NewRateLimiter(100, 50, time.Minute)
	t.Cleanup(limiter.Stop)

	tokens := services.NewTokenService("secret", time.Hour)
	RegisterRoutes(r, Controllers{
		Auth:     controllers.NewAuthController(nil),
		Products: controllers.NewProductController(nil, nil, zap.NewNop()),
		Cart:     controllers.NewCartController(nil),
		Payments: controllers.NewPaymentController(nil, zap.NewNop()),
		Health:   controllers.NewHealthController("test", func(_ context.Context) error { return nil }, nil, zap.NewNop()),
	}, Guards{
		Auth:        middleware.Auth(tokens, services.NewMemoryDenylist()),
		AuthLimiter: limiter,
	})
	return r
}

func TestRoutesAreRegistered(t *testing.T) {
	r := newEngine(t)

	have := map[string]bool{}
	for _, route := range r.Routes() {
		have[route.Method+" "+route.Path] = true
	}

	for _, want := range []string{
		"POST /api/auth/register",
		"POST /api/auth/login",
		"GET /api/auth/profile",
		"POST /api/auth/change-password",
		"POST /api/auth/logout",
		"GET /api/auth/check-username/:username",
		"GET /api/auth/security-status",
		"GET /api/products",
		"GET /api/products/search",
		"GET /api/products/category/:category",
		"GET /api/products/:id",
		"POST /api/products",
		"PUT /api/products/:id",
		"DELETE /api/products/:id",
		"POST /api/cart",
		"GET /api/cart",
		"DELETE /api/cart",
		"GET /api/cart/summary",
		"GET /api/cart/validate",
		"GET /api/cart/statistics",
		"GET /api/cart/backup",
		"POST /api/cart/items",
		"PUT /api/cart/items/:itemId",
		"DELETE /api/cart/items/:itemId",
		"POST /api/payments/create-checkout-session",
		"POST /api/payments/buy-now",
		"GET /api/payments/success",
		"GET /api/payments/history",
		"POST /api/payments/webhook",
		"GET /api/payments/test-stripe",
		"GET /api/health",
	} {
		assert.True(t, have[want], want)
	}
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	r := newEngine(t)

	for _, tc := range []struct{ method, path string }{
		{http.MethodGet, "/api/cart"},
		{http.MethodPost, "/api/products"},
		{http.MethodDelete, "/api/products/abc"},
		{http.MethodPost, "/api/payments/create-checkout-session"},
		{http.MethodGet, "/api/auth/profile"},
	} {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(tc.method, tc.path, nil))
		assert.Equal(t, http.StatusUnauthorized, rec.Code, tc.method+" "+tc.path)
	}

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}
