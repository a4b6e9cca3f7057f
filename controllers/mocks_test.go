package controllers

import (
	"context"

	"storefront/apperrors"
	"storefront/middleware"
	"storefront/models"
	"storefront/services"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/mock"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// --- Mock Services ---

type MockAuthService struct {
	mock.Mock
}

func (m *MockAuthService) Register(ctx context.Context, username, password string) (*models.AuthResponse, error) {
	args := m.Called(ctx, username, password)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.AuthResponse), args.Error(1)
}

func (m *MockAuthService) Login(ctx context.Context, username, password string) (*models.AuthResponse, error) {
	args := m.Called(ctx, username, password)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.AuthResponse), args.Error(1)
}

func (m *MockAuthService) Profile(ctx context.Context, userID primitive.ObjectID) (*models.User, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}

func (m *MockAuthService) ChangePassword(ctx context.Context, userID primitive.ObjectID, current, next string) error {
	return m.Called(ctx, userID, current, next).Error(0)
}

func (m *MockAuthService) Logout(ctx context.Context, claims *services.Claims) error {
	return m.Called(ctx, claims).Error(0)
}

func (m *MockAuthService) CheckUsername(ctx context.Context, username string) (bool, error) {
	args := m.Called(ctx, username)
	return args.Bool(0), args.Error(1)
}

func (m *MockAuthService) SecurityStatus(ctx context.Context, userID primitive.ObjectID) (*models.SecurityStatus, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.SecurityStatus), args.Error(1)
}

type MockProductService struct {
	mock.Mock
}

func (m *MockProductService) List(ctx context.Context, params models.ProductListParams) (*models.ProductListResponse, error) {
	args := m.Called(ctx, params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.ProductListResponse), args.Error(1)
}

func (m *MockProductService) Get(ctx context.Context, idHex string) (*models.Product, error) {
	args := m.Called(ctx, idHex)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Product), args.Error(1)
}

func (m *MockProductService) Create(ctx context.Context, req models.CreateProductRequest) (*models.Product, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Product), args.Error(1)
}

func (m *MockProductService) Update(ctx context.Context, idHex string, req models.UpdateProductRequest) (*models.Product, error) {
	args := m.Called(ctx, idHex, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Product), args.Error(1)
}

func (m *MockProductService) Delete(ctx context.Context, idHex string) error {
	return m.Called(ctx, idHex).Error(0)
}

type MockCartService struct {
	mock.Mock
}

func (m *MockCartService) view(args mock.Arguments) (*models.CartView, error) {
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.CartView), args.Error(1)
}

func (m *MockCartService) CreateCart(ctx context.Context, userID primitive.ObjectID) (*models.CartView, error) {
	return m.view(m.Called(ctx, userID))
}

func (m *MockCartService) GetCart(ctx context.Context, userID primitive.ObjectID) (*models.CartView, error) {
	return m.view(m.Called(ctx, userID))
}

func (m *MockCartService) AddItem(ctx context.Context, userID primitive.ObjectID, productHex string, quantity int) (*models.CartView, error) {
	return m.view(m.Called(ctx, userID, productHex, quantity))
}

func (m *MockCartService) UpdateItem(ctx context.Context, userID primitive.ObjectID, lineHex string, quantity int) (*models.CartView, error) {
	return m.view(m.Called(ctx, userID, lineHex, quantity))
}

func (m *MockCartService) RemoveItem(ctx context.Context, userID primitive.ObjectID, lineHex string) (*models.CartView, error) {
	return m.view(m.Called(ctx, userID, lineHex))
}

func (m *MockCartService) ClearCart(ctx context.Context, userID primitive.ObjectID) error {
	return m.Called(ctx, userID).Error(0)
}

func (m *MockCartService) Summary(ctx context.Context, userID primitive.ObjectID) (*models.CartSummary, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.CartSummary), args.Error(1)
}

func (m *MockCartService) Validate(ctx context.Context, userID primitive.ObjectID) (*models.CartValidation, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.CartValidation), args.Error(1)
}

func (m *MockCartService) Statistics(ctx context.Context, userID primitive.ObjectID) (*models.CartStatistics, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.CartStatistics), args.Error(1)
}

func (m *MockCartService) Backup(ctx context.Context, userID primitive.ObjectID) (*models.CartBackup, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.CartBackup), args.Error(1)
}

type MockCheckoutService struct {
	mock.Mock
}

func (m *MockCheckoutService) checkout(args mock.Arguments) (*models.CheckoutResponse, error) {
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.CheckoutResponse), args.Error(1)
}

func (m *MockCheckoutService) CreateCheckoutSession(ctx context.Context, userID primitive.ObjectID, cartHex string) (*models.CheckoutResponse, error) {
	return m.checkout(m.Called(ctx, userID, cartHex))
}

func (m *MockCheckoutService) BuyNow(ctx context.Context, userID primitive.ObjectID, productHex string, quantity int) (*models.CheckoutResponse, error) {
	return m.checkout(m.Called(ctx, userID, productHex, quantity))
}

func (m *MockCheckoutService) ConfirmSession(ctx context.Context, userID primitive.ObjectID, sessionID string) (*models.Order, error) {
	args := m.Called(ctx, userID, sessionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Order), args.Error(1)
}

func (m *MockCheckoutService) HandleWebhook(ctx context.Context, payload []byte, signature string) error {
	return m.Called(ctx, payload, signature).Error(0)
}

func (m *MockCheckoutService) History(ctx context.Context, userID primitive.ObjectID, page, limit int) (*models.OrderHistoryResponse, error) {
	args := m.Called(ctx, userID, page, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.OrderHistoryResponse), args.Error(1)
}

func (m *MockCheckoutService) GatewayStatus(ctx context.Context) (*services.GatewayStatus, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*services.GatewayStatus), args.Error(1)
}

// --- Helpers ---

func newTestRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(apperrors.ErrorMiddleware("test"))
	return r
}

// asUser stands in for middleware.Auth in handler tests.
func asUser(id primitive.ObjectID, claims *services.Claims) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(middleware.UserIDKey, id)
		if claims != nil {
			c.Set(middleware.ClaimsKey, claims)
		}
		c.Next()
	}
}
