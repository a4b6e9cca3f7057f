package controllers

import (
	"context"
	"net/http"

	"storefront/apperrors"
	"storefront/middleware"
	"storefront/models"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

type CartService interface {
	CreateCart(ctx context.Context, userID primitive.ObjectID) (*models.CartView, error)
	GetCart(ctx context.Context, userID primitive.ObjectID) (*models.CartView, error)
	AddItem(ctx context.Context, userID primitive.ObjectID, productHex string, quantity int) (*models.CartView, error)
	UpdateItem(ctx context.Context, userID primitive.ObjectID, lineHex string, quantity int) (*models.CartView, error)
	RemoveItem(ctx context.Context, userID primitive.ObjectID, lineHex string) (*models.CartView, error)
	ClearCart(ctx context.Context, userID primitive.ObjectID) error
	Summary(ctx context.Context, userID primitive.ObjectID) (*models.CartSummary, error)
	Validate(ctx context.Context, userID primitive.ObjectID) (*models.CartValidation, error)
	Statistics(ctx context.Context, userID primitive.ObjectID) (*models.CartStatistics, error)
	Backup(ctx context.Context, userID primitive.ObjectID) (*models.CartBackup, error)
}

type CartController struct {
	service CartService
}

func NewCartController(service CartService) *CartController {
	return &CartController{service: service}
}

func (cc *CartController) CreateCart(c *gin.Context) {
	cart, err := cc.service.CreateCart(c.Request.Context(), middleware.GetUserID(c))
	if err != nil {
		apperrors.Abort(c, err)
		return
	}
	c.JSON(http.StatusCreated, cart)
}

func (cc *CartController) GetCart(c *gin.Context) {
	cart, err := cc.service.GetCart(c.Request.Context(), middleware.GetUserID(c))
	if err != nil {
		apperrors.Abort(c, err)
		return
	}
	c.JSON(http.StatusOK, cart)
}

func (cc *CartController) AddItem(c *gin.Context) {
	var req models.AddCartItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apperrors.Abort(c, bindError(err))
		return
	}

	cart, err := cc.service.AddItem(c.Request.Context(), middleware.GetUserID(c), req.ProductID, req.Quantity)
	if err != nil {
		apperrors.Abort(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Item added to cart", "cart": cart})
}

func (cc *CartController) UpdateItem(c *gin.Context) {
	var req models.UpdateCartItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apperrors.Abort(c, bindError(err))
		return
	}

	cart, err := cc.service.UpdateItem(c.Request.Context(), middleware.GetUserID(c), c.Param("itemId"), req.Quantity)
	if err != nil {
		apperrors.Abort(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Cart item updated", "cart": cart})
}

func (cc *CartController) RemoveItem(c *gin.Context) {
	cart, err := cc.service.RemoveItem(c.Request.Context(), middleware.GetUserID(c), c.Param("itemId"))
	if err != nil {
		apperrors.Abort(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Item removed from cart", "cart": cart})
}

// ClearCart is mounted behind RequireConfirmHeader("X-Confirm-Clear").
func (cc *CartController) ClearCart(c *gin.Context) {
	if err := cc.service.ClearCart(c.Request.Context(), middleware.GetUserID(c)); err != nil {
		apperrors.Abort(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Cart cleared"})
}

func (cc *CartController) Summary(c *gin.Context) {
	summary, err := cc.service.Summary(c.Request.Context(), middleware.GetUserID(c))
	if err != nil {
		apperrors.Abort(c, err)
		return
	}
	c.JSON(http.StatusOK, summary)
}

func (cc *CartController) Validate(c *gin.Context) {
	report, err := cc.service.Validate(c.Request.Context(), middleware.GetUserID(c))
	if err != nil {
		apperrors.Abort(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}

func (cc *CartController) Statistics(c *gin.Context) {
	stats, err := cc.service.Statistics(c.Request.Context(), middleware.GetUserID(c))
	if err != nil {
		apperrors.Abort(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

func (cc *CartController) Backup(c *gin.Context) {
	backup, err := cc.service.Backup(c.Request.Context(), middleware.GetUserID(c))
	if err != nil {
		apperrors.Abort(c, err)
		return
	}
	c.Header("Content-Disposition", "attachment; filename=cart-backup-"+backup.ExportedAt.Format("20060102-150405")+".json")
	c.JSON(http.StatusOK, backup)
}
