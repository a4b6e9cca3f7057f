package controllers

import (
	"context"
	"net/http"
	"strings"

	"storefront/apperrors"
	"storefront/logger"
	"storefront/models"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type ProductService interface {
	List(ctx context.Context, params models.ProductListParams) (*models.ProductListResponse, error)
	Get(ctx context.Context, idHex string) (*models.Product, error)
	Create(ctx context.Context, req models.CreateProductRequest) (*models.Product, error)
	Update(ctx context.Context, idHex string, req models.UpdateProductRequest) (*models.Product, error)
	Delete(ctx context.Context, idHex string) error
}

type ProductController struct {
	service ProductService
	cache   *CacheManager
	log     *zap.Logger
}

func NewProductController(service ProductService, cache *CacheManager, log *zap.Logger) *ProductController {
	return &ProductController{service: service, cache: cache, log: log}
}

// GetProducts lists products, optionally filtered by ?search and ?category.
func (pc *ProductController) GetProducts(c *gin.Context) {
	page, limit := pageQuery(c)
	pc.list(c, models.ProductListParams{
		Search:   strings.TrimSpace(c.Query("search")),
		Category: c.Query("category"),
		Page:     page,
		Limit:    limit,
	})
}

func (pc *ProductController) SearchProducts(c *gin.Context) {
	q := strings.TrimSpace(c.Query("q"))
	if q == "" {
		apperrors.Abort(c, apperrors.Validation("Search query is required", "q must not be empty"))
		return
	}
	page, limit := pageQuery(c)
	pc.list(c, models.ProductListParams{Search: q, Page: page, Limit: limit})
}

func (pc *ProductController) GetProductsByCategory(c *gin.Context) {
	page, limit := pageQuery(c)
	pc.list(c, models.ProductListParams{Category: c.Param("category"), Page: page, Limit: limit})
}

func (pc *ProductController) list(c *gin.Context, params models.ProductListParams) {
	ctx := c.Request.Context()
	if cached, ok := pc.cache.GetProductList(ctx, params); ok {
		pc.log.Debug("Product list served from cache", zap.Int("page", params.Page), zap.String("category", params.Category))
		c.Header("X-Cache", "HIT")
		c.JSON(http.StatusOK, cached)
		return
	}

	resp, err := pc.service.List(ctx, params)
	if err != nil {
		apperrors.Abort(c, err)
		return
	}
	pc.cache.SetProductListAsync(params, resp)
	c.JSON(http.StatusOK, resp)
}

func (pc *ProductController) GetProductByID(c *gin.Context) {
	id := c.Param("id")
	if cached, ok := pc.cache.GetProduct(c.Request.Context(), id); ok {
		c.Header("X-Cache", "HIT")
		c.JSON(http.StatusOK, cached)
		return
	}

	product, err := pc.service.Get(c.Request.Context(), id)
	if err != nil {
		apperrors.Abort(c, err)
		return
	}
	pc.cache.SetProductAsync(product)
	c.JSON(http.StatusOK, product)
}

func (pc *ProductController) CreateProduct(c *gin.Context) {
	var req models.CreateProductRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apperrors.Abort(c, bindError(err))
		return
	}

	product, err := pc.service.Create(c.Request.Context(), req)
	if err != nil {
		apperrors.Abort(c, err)
		return
	}
	pc.cache.InvalidateProduct(c.Request.Context(), product.ID.Hex())
	c.JSON(http.StatusCreated, gin.H{"message": "Product created successfully", "product": product})
}

func (pc *ProductController) UpdateProduct(c *gin.Context) {
	var req models.UpdateProductRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apperrors.Abort(c, bindError(err))
		return
	}

	id := c.Param("id")
	product, err := pc.service.Update(c.Request.Context(), id, req)
	if err != nil {
		apperrors.Abort(c, err)
		return
	}
	pc.cache.InvalidateProduct(c.Request.Context(), id)
	c.JSON(http.StatusOK, gin.H{"message": "Product updated successfully", "product": product})
}

func (pc *ProductController) DeleteProduct(c *gin.Context) {
	id := c.Param("id")
	if err := pc.service.Delete(c.Request.Context(), id); err != nil {
		apperrors.Abort(c, err)
		return
	}
	pc.cache.InvalidateProduct(c.Request.Context(), id)
	logger.Info(c, "Product deleted", zap.String("product_id", id))
	c.JSON(http.StatusOK, gin.H{"message": "Product deleted successfully"})
}

func GetCategories(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"categories": models.Categories})
}
