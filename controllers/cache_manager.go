package controllers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"storefront/models"
	"storefront/services"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	ProductCachePrefix     = "product:detail:"
	ProductListCachePrefix = "products:v:"
	CacheVersionKey        = "products:version"
	DefaultCacheTTL        = 5 * time.Minute
)

// CacheManager caches catalog reads in Redis. List entries are keyed by a
// version counter so a single INCR invalidates every cached page. A nil
// CacheManager or one without a client is a no-op.
type CacheManager struct {
	redis redis.Cmdable
	ttl   time.Duration
	log   *zap.Logger
}

// Checkout evicts products whose stock it changed.
var _ services.ProductCache = (*CacheManager)(nil)

func NewCacheManager(client redis.Cmdable, log *zap.Logger) *CacheManager {
	if client == nil {
		return nil
	}
	return &CacheManager{redis: client, ttl: DefaultCacheTTL, log: log}
}

// GetProductList retrieves a cached product list
func (cm *CacheManager) GetProductList(ctx context.Context, params models.ProductListParams) (*models.ProductListResponse, bool) {
	if cm == nil {
		return nil, false
	}
	version, err := cm.getCacheVersion(ctx)
	if err != nil {
		return nil, false
	}

	cached, err := cm.redis.Get(ctx, listCacheKey(version, params)).Bytes()
	if err != nil {
		return nil, false
	}

	var response models.ProductListResponse
	if err := json.Unmarshal(cached, &response); err != nil {
		cm.log.Warn("Failed to unmarshal cached product list", zap.Error(err))
		return nil, false
	}
	return &response, true
}

// SetProductList caches a product list under the current version.
func (cm *CacheManager) SetProductList(ctx context.Context, params models.ProductListParams, response *models.ProductListResponse) {
	if cm == nil {
		return
	}
	version, err := cm.getCacheVersion(ctx)
	if err != nil {
		return
	}
	data, err := json.Marshal(response)
	if err != nil {
		cm.log.Warn("Failed to marshal product list for cache", zap.Error(err))
		return
	}
	if err := cm.redis.Set(ctx, listCacheKey(version, params), data, cm.ttl).Err(); err != nil {
		cm.log.Warn("Failed to cache product list", zap.Error(err))
	}
}

func (cm *CacheManager) GetProduct(ctx context.Context, productID string) (*models.Product, bool) {
	if cm == nil {
		return nil, false
	}
	cached, err := cm.redis.Get(ctx, ProductCachePrefix+productID).Bytes()
	if err != nil {
		return nil, false
	}
	var product models.Product
	if err := json.Unmarshal(cached, &product); err != nil {
		cm.log.Warn("Failed to unmarshal cached product", zap.Error(err), zap.String("product_id", productID))
		return nil, false
	}
	return &product, true
}

func (cm *CacheManager) SetProduct(ctx context.Context, product *models.Product) {
	if cm == nil {
		return
	}
	id := product.ID.Hex()
	data, err := json.Marshal(product)
	if err != nil {
		cm.log.Warn("Failed to marshal product for cache", zap.Error(err), zap.String("product_id", id))
		return
	}
	if err := cm.redis.Set(ctx, ProductCachePrefix+id, data, cm.ttl).Err(); err != nil {
		cm.log.Warn("Failed to cache product", zap.Error(err), zap.String("product_id", id))
	}
}

// Async variants detach from the request so a slow cache never delays the
// response.
func (cm *CacheManager) SetProductListAsync(params models.ProductListParams, response *models.ProductListResponse) {
	if cm == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		cm.SetProductList(ctx, params, response)
	}()
}

func (cm *CacheManager) SetProductAsync(product *models.Product) {
	if cm == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		cm.SetProduct(ctx, product)
	}()
}

// Invalidate drops every cached list by bumping the version.
func (cm *CacheManager) Invalidate(ctx context.Context) error {
	if cm == nil {
		return nil
	}
	newVersion, err := cm.redis.Incr(ctx, CacheVersionKey).Result()
	if err != nil {
		return fmt.Errorf("failed to invalidate cache: %w", err)
	}
	cm.log.Debug("Product cache invalidated", zap.Int64("new_version", newVersion))
	return nil
}

// InvalidateProduct drops the list caches and the product's own entry.
func (cm *CacheManager) InvalidateProduct(ctx context.Context, productID string) {
	if cm == nil {
		return
	}
	if err := cm.Invalidate(ctx); err != nil {
		cm.log.Error("Failed to invalidate product cache", zap.Error(err), zap.String("product_id", productID))
	}
	if err := cm.redis.Del(ctx, ProductCachePrefix+productID).Err(); err != nil {
		cm.log.Warn("Failed to delete product cache", zap.Error(err), zap.String("product_id", productID))
	}
}

func (cm *CacheManager) getCacheVersion(ctx context.Context) (int64, error) {
	const maxRetries = 3

	for i := 0; i < maxRetries; i++ {
		ver, err := cm.redis.Get(ctx, CacheVersionKey).Int64()
		if err == nil && ver > 0 {
			return ver, nil
		}
		if errors.Is(err, redis.Nil) {
			// SETNX so concurrent initialisers agree on the first version.
			if err := cm.redis.SetNX(ctx, CacheVersionKey, 1, 0).Err(); err == nil {
				continue
			}
		}
		if i < maxRetries-1 {
			time.Sleep(50 * time.Millisecond)
		}
	}
	return 0, fmt.Errorf("failed to get cache version after %d retries", maxRetries)
}

func listCacheKey(version int64, p models.ProductListParams) string {
	return fmt.Sprintf("%s%d:p:%d:l:%d:c:%s:s:%s",
		ProductListCachePrefix, version, p.Page, p.Limit, p.Category, p.Search)
}
