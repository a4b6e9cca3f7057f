package controllers

import (
	"io"
	"net/http"

	"storefront/apperrors"
	"storefront/logger"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// StripeWebhook verifies the raw body against the Stripe-Signature header
// before dispatching. It must be mounted before any body-rewriting
// middleware.
func (pc *PaymentController) StripeWebhook(c *gin.Context) {
	payload, err := io.ReadAll(c.Request.Body)
	if err != nil {
		apperrors.Abort(c, apperrors.From(err))
		return
	}

	signature := c.GetHeader("Stripe-Signature")
	if signature == "" {
		logger.Warn(c, "Stripe webhook without signature", zap.String("client_ip", c.ClientIP()))
		apperrors.Abort(c, apperrors.Validation("Invalid webhook signature"))
		return
	}

	if err := pc.service.HandleWebhook(c.Request.Context(), payload, signature); err != nil {
		apperrors.Abort(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"received": true})
}
