package controllers

import (
	"context"
	"io"
	"net/http"

	"storefront/apperrors"
	"storefront/middleware"
	"storefront/models"
	"storefront/services"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

type CheckoutService interface {
	CreateCheckoutSession(ctx context.Context, userID primitive.ObjectID, cartHex string) (*models.CheckoutResponse, error)
	BuyNow(ctx context.Context, userID primitive.ObjectID, productHex string, quantity int) (*models.CheckoutResponse, error)
	ConfirmSession(ctx context.Context, userID primitive.ObjectID, sessionID string) (*models.Order, error)
	HandleWebhook(ctx context.Context, payload []byte, signature string) error
	History(ctx context.Context, userID primitive.ObjectID, page, limit int) (*models.OrderHistoryResponse, error)
	GatewayStatus(ctx context.Context) (*services.GatewayStatus, error)
}

type PaymentController struct {
	service CheckoutService
	log     *zap.Logger
}

func NewPaymentController(service CheckoutService, log *zap.Logger) *PaymentController {
	return &PaymentController{service: service, log: log}
}

// CreateCheckoutSession accepts an optional body {"cartId": "..."}.
func (pc *PaymentController) CreateCheckoutSession(c *gin.Context) {
	var req models.CheckoutRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil && err != io.EOF {
			apperrors.Abort(c, bindError(err))
			return
		}
	}

	resp, err := pc.service.CreateCheckoutSession(c.Request.Context(), middleware.GetUserID(c), req.CartID)
	if err != nil {
		apperrors.Abort(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (pc *PaymentController) BuyNow(c *gin.Context) {
	var req models.BuyNowRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apperrors.Abort(c, bindError(err))
		return
	}

	resp, err := pc.service.BuyNow(c.Request.Context(), middleware.GetUserID(c), req.ProductID, req.Quantity)
	if err != nil {
		apperrors.Abort(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// PaymentSuccess takes the session id from ?session_id or a JSON body.
func (pc *PaymentController) PaymentSuccess(c *gin.Context) {
	var req models.PaymentSuccessRequest
	req.SessionID = c.Query("session_id")
	if req.SessionID == "" && c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil && err != io.EOF {
			apperrors.Abort(c, bindError(err))
			return
		}
	}
	if req.SessionID == "" {
		apperrors.Abort(c, apperrors.Validation("Session ID is required"))
		return
	}

	order, err := pc.service.ConfirmSession(c.Request.Context(), middleware.GetUserID(c), req.SessionID)
	if err != nil {
		apperrors.Abort(c, err)
		return
	}

	message := "Payment completed successfully"
	if order.OrderStatus == models.OrderStatusCancelled {
		pc.log.Warn("Paid order cancelled during fulfilment", zap.String("order_id", order.ID.Hex()), zap.String("notes", order.Notes))
		message = "Payment received but the order could not be fulfilled"
	}
	c.JSON(http.StatusOK, gin.H{
		"message": message,
		"orderId": order.ID.Hex(),
		"order":   order,
	})
}

func (pc *PaymentController) History(c *gin.Context) {
	page, limit := pageQuery(c)
	history, err := pc.service.History(c.Request.Context(), middleware.GetUserID(c), page, limit)
	if err != nil {
		apperrors.Abort(c, err)
		return
	}
	c.JSON(http.StatusOK, history)
}

// TestStripe checks that the processor key works by reading the balance.
func (pc *PaymentController) TestStripe(c *gin.Context) {
	status, err := pc.service.GatewayStatus(c.Request.Context())
	if err != nil {
		apperrors.Abort(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Stripe connection successful", "stripe": status})
}
