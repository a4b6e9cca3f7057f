package controllers

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"storefront/apperrors"
	"storefront/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

func TestGetProductsPassesFilters(t *testing.T) {
	mockService := new(MockProductService)
	pc := NewProductController(mockService, nil, zap.NewNop())

	want := models.ProductListParams{Search: "lamp", Category: "Home & Garden", Page: 2, Limit: 100}
	mockService.On("List", mock.Anything, want).
		Return(&models.ProductListResponse{Products: []*models.Product{}, Meta: models.NewListMeta(2, 100, 0)}, nil).Once()

	router := newTestRouter()
	router.GET("/products", pc.GetProducts)

	recorder := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, "/products?search=+lamp+&category=Home+%26+Garden&page=2&limit=500", nil)
	router.ServeHTTP(recorder, req)

	assert.Equal(t, http.StatusOK, recorder.Code)
	assert.Contains(t, recorder.Body.String(), `"totalPages":0`)
	mockService.AssertExpectations(t)
}

func TestSearchProductsRequiresQuery(t *testing.T) {
	mockService := new(MockProductService)
	pc := NewProductController(mockService, nil, zap.NewNop())

	router := newTestRouter()
	router.GET("/products/search", pc.SearchProducts)

	recorder := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, "/products/search?q=%20", nil)
	router.ServeHTTP(recorder, req)

	assert.Equal(t, http.StatusBadRequest, recorder.Code)
	mockService.AssertNotCalled(t, "List", mock.Anything, mock.Anything)
}

func TestGetProductByID(t *testing.T) {
	t.Run("Found - 200 OK", func(t *testing.T) {
		mockService := new(MockProductService)
		pc := NewProductController(mockService, nil, zap.NewNop())
		id := primitive.NewObjectID()
		mockService.On("Get", mock.Anything, id.Hex()).Return(&models.Product{ID: id, Name: "Lamp"}, nil).Once()

		router := newTestRouter()
		router.GET("/products/:id", pc.GetProductByID)

		recorder := httptest.NewRecorder()
		req, _ := http.NewRequest(http.MethodGet, "/products/"+id.Hex(), nil)
		router.ServeHTTP(recorder, req)

		assert.Equal(t, http.StatusOK, recorder.Code)
		assert.Contains(t, recorder.Body.String(), "Lamp")
	})

	t.Run("Malformed id - 400", func(t *testing.T) {
		mockService := new(MockProductService)
		pc := NewProductController(mockService, nil, zap.NewNop())
		mockService.On("Get", mock.Anything, "nope").Return(nil, apperrors.Validation("Invalid product ID")).Once()

		router := newTestRouter()
		router.GET("/products/:id", pc.GetProductByID)

		recorder := httptest.NewRecorder()
		req, _ := http.NewRequest(http.MethodGet, "/products/nope", nil)
		router.ServeHTTP(recorder, req)

		assert.Equal(t, http.StatusBadRequest, recorder.Code)
	})

	t.Run("Missing - 404", func(t *testing.T) {
		mockService := new(MockProductService)
		pc := NewProductController(mockService, nil, zap.NewNop())
		id := primitive.NewObjectID().Hex()
		mockService.On("Get", mock.Anything, id).Return(nil, apperrors.NotFound("Product not found")).Once()

		router := newTestRouter()
		router.GET("/products/:id", pc.GetProductByID)

		recorder := httptest.NewRecorder()
		req, _ := http.NewRequest(http.MethodGet, "/products/"+id, nil)
		router.ServeHTTP(recorder, req)

		assert.Equal(t, http.StatusNotFound, recorder.Code)
	})
}

func TestUpdateProductDistinguishesAbsentFields(t *testing.T) {
	mockService := new(MockProductService)
	pc := NewProductController(mockService, nil, zap.NewNop())
	id := primitive.NewObjectID().Hex()

	mockService.On("Update", mock.Anything, id, mock.MatchedBy(func(req models.UpdateProductRequest) bool {
		return req.Image != nil && *req.Image == "" && req.Name == nil && req.Price != nil && *req.Price == 12.5
	})).Return(&models.Product{Name: "Lamp", Price: 12.5}, nil).Once()

	router := newTestRouter()
	router.PUT("/products/:id", pc.UpdateProduct)

	recorder := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodPut, "/products/"+id, bytes.NewBufferString(`{"image":"","price":12.5}`))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(recorder, req)

	assert.Equal(t, http.StatusOK, recorder.Code)
	mockService.AssertExpectations(t)
}

func TestCreateProductValidationError(t *testing.T) {
	mockService := new(MockProductService)
	pc := NewProductController(mockService, nil, zap.NewNop())
	mockService.On("Create", mock.Anything, mock.Anything).
		Return(nil, apperrors.Validation("Validation failed", "price must be greater than 0")).Once()

	router := newTestRouter()
	router.POST("/products", pc.CreateProduct)

	recorder := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodPost, "/products", bytes.NewBufferString(`{"name":"Lamp","description":"d","price":0,"stock":1}`))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(recorder, req)

	assert.Equal(t, http.StatusBadRequest, recorder.Code)
	assert.Contains(t, recorder.Body.String(), "price must be greater than 0")
}

func TestNilCacheManagerIsNoop(t *testing.T) {
	var cm *CacheManager
	_, ok := cm.GetProduct(context.Background(), "x")
	assert.False(t, ok)
	assert.NoError(t, cm.Invalidate(context.Background()))
	cm.InvalidateProduct(context.Background(), "x")
	cm.SetProductAsync(&models.Product{})
	assert.Nil(t, NewCacheManager(nil, zap.NewNop()))
}
