package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"storefront/apperrors"
	"storefront/events"
	"storefront/models"
	aws_pkg "storefront/pkg/aws"
	"storefront/repository"

	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

const sessionPaid = "paid"

// finalizeTimeout bounds finalization, which runs detached from the caller.
const finalizeTimeout = 30 * time.Second

// ProductCache drops cached catalog entries for a product whose stock moved.
type ProductCache interface {
	InvalidateProduct(ctx context.Context, productID string)
}

// Metrics counts checkout outcomes.
type Metrics interface {
	IsEnabled() bool
	RecordCount(ctx context.Context, name string, dimensions map[string]string) error
	RecordValue(ctx context.Context, name string, value float64, dimensions map[string]string) error
}

type CheckoutConfig struct {
	Currency    string
	FrontendURL string
	SessionTTL  time.Duration
}

// CheckoutService turns carts into processor sessions and pending orders,
// and finalizes paid sessions exactly once.
type CheckoutService struct {
	carts     repository.CartRepo
	products  repository.ProductRepo
	orders    repository.OrderRepo
	gateway   PaymentGateway
	publisher events.Publisher
	cache     ProductCache
	metrics   Metrics
	cfg       CheckoutConfig
	log       *zap.Logger
	now       func() time.Time
}

// NewCheckoutService wires the checkout flow. cache and metrics may be nil.
func NewCheckoutService(
	carts repository.CartRepo,
	products repository.ProductRepo,
	orders repository.OrderRepo,
	gateway PaymentGateway,
	publisher events.Publisher,
	cache ProductCache,
	metrics Metrics,
	cfg CheckoutConfig,
	log *zap.Logger,
) *CheckoutService {
	return &CheckoutService{
		carts:     carts,
		products:  products,
		orders:    orders,
		gateway:   gateway,
		publisher: publisher,
		cache:     cache,
		metrics:   metrics,
		cfg:       cfg,
		log:       log,
		now:       time.Now,
	}
}

// Reconcile checks each cart line against live stock. Lines are kept,
// clamped down to the available stock, or dropped; every clamp or drop adds
// an advisory message.
func Reconcile(lines []models.CartLine, products map[primitive.ObjectID]*models.Product) ([]models.OrderItem, []string) {
	var items []models.OrderItem
	advisories := []string{}
	for _, line := range lines {
		product, ok := products[line.ProductID]
		switch {
		case !ok:
			advisories = append(advisories, "A product in your cart is no longer available and was removed")
			continue
		case product.Stock <= 0:
			advisories = append(advisories, fmt.Sprintf("%s: out of stock and removed from your order", product.Name))
			continue
		}

		qty := line.Quantity
		if qty > product.Stock {
			advisories = append(advisories, fmt.Sprintf("%s: quantity reduced from %d to %d (only %d in stock)",
				product.Name, qty, product.Stock, product.Stock))
			qty = product.Stock
		}
		items = append(items, snapshot(product, qty))
	}
	return items, advisories
}

func snapshot(p *models.Product, qty int) models.OrderItem {
	return models.OrderItem{
		ProductID: p.ID,
		Name:      p.Name,
		Price:     p.Price,
		Quantity:  qty,
		Image:     p.Image,
	}
}

func orderTotal(items []models.OrderItem) float64 {
	total := decimal.Zero
	for _, it := range items {
		total = total.Add(lineTotal(it.Price, it.Quantity))
	}
	return roundMoney(total)
}

func (s *CheckoutService) CreateCheckoutSession(ctx context.Context, userID primitive.ObjectID, cartHex string) (*models.CheckoutResponse, error) {
	cart, err := s.loadCart(ctx, userID, cartHex)
	if err != nil {
		return nil, err
	}
	if len(cart.Items) == 0 {
		return nil, apperrors.Validation("Cart is empty")
	}

	ids := make([]primitive.ObjectID, 0, len(cart.Items))
	for _, line := range cart.Items {
		ids = append(ids, line.ProductID)
	}
	products, err := s.products.FindByIDs(ctx, ids)
	if err != nil {
		return nil, apperrors.Internal("Failed to fetch cart products", err)
	}

	items, advisories := Reconcile(cart.Items, products)
	if len(items) == 0 {
		return nil, apperrors.Validation("No items in your cart are available for checkout", advisories...)
	}

	cartID := cart.ID
	order := &models.Order{
		ID:         primitive.NewObjectID(),
		UserID:     userID,
		CartID:     &cartID,
		Items:      items,
		Advisories: advisories,
	}
	return s.startSession(ctx, order, s.cfg.FrontendURL+"/cart")
}

// BuyNow checks out a single product without touching the cart. Unlike cart
// checkout the quantity is never clamped.
func (s *CheckoutService) BuyNow(ctx context.Context, userID primitive.ObjectID, productHex string, quantity int) (*models.CheckoutResponse, error) {
	productID, err := ParseID(productHex, "product")
	if err != nil {
		return nil, err
	}
	if quantity < 1 {
		return nil, apperrors.Validation("Validation failed", "quantity must be at least 1")
	}
	product, err := s.products.FindByID(ctx, productID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, apperrors.NotFound("Product not found")
	}
	if err != nil {
		return nil, apperrors.Internal("Failed to fetch product", err)
	}
	if quantity > product.Stock {
		return nil, insufficientStock(product, quantity)
	}

	order := &models.Order{
		ID:     primitive.NewObjectID(),
		UserID: userID,
		Items:  []models.OrderItem{snapshot(product, quantity)},
	}
	return s.startSession(ctx, order, s.cfg.FrontendURL+"/products/"+product.ID.Hex())
}

func (s *CheckoutService) loadCart(ctx context.Context, userID primitive.ObjectID, cartHex string) (*models.Cart, error) {
	if cartHex == "" {
		cart, err := s.carts.FindByUserID(ctx, userID)
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperrors.Validation("Cart is empty")
		}
		if err != nil {
			return nil, apperrors.Internal("Failed to fetch cart", err)
		}
		return cart, nil
	}

	cartID, err := ParseID(cartHex, "cart")
	if err != nil {
		return nil, err
	}
	cart, err := s.carts.FindByID(ctx, cartID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, apperrors.NotFound("Cart not found")
	}
	if err != nil {
		return nil, apperrors.Internal("Failed to fetch cart", err)
	}
	if cart.UserID != userID {
		return nil, apperrors.Forbidden("Cart does not belong to this user")
	}
	return cart, nil
}

// startSession persists order as pending, opens a processor session for it
// and records the session id on the order. The order exists before the
// session so a paid session always has an order to finalize.
func (s *CheckoutService) startSession(ctx context.Context, order *models.Order, cancelURL string) (*models.CheckoutResponse, error) {
	order.Currency = s.cfg.Currency
	order.TotalAmount = orderTotal(order.Items)
	order.OrderStatus = models.OrderStatusPending
	order.PaymentStatus = models.PaymentStatusPending

	req := SessionRequest{
		Currency:          s.cfg.Currency,
		SuccessURL:        s.cfg.FrontendURL + "/payment/success?session_id={CHECKOUT_SESSION_ID}",
		CancelURL:         cancelURL,
		ClientReferenceID: order.UserID.Hex(),
		ExpiresAt:         s.now().Add(s.cfg.SessionTTL),
		Metadata: map[string]string{
			"user_id":  order.UserID.Hex(),
			"order_id": order.ID.Hex(),
		},
	}
	if order.CartID != nil {
		req.Metadata["cart_id"] = order.CartID.Hex()
	}
	for _, it := range order.Items {
		req.Lines = append(req.Lines, SessionLine{
			Name:       it.Name,
			Image:      it.Image,
			UnitAmount: MinorUnits(it.Price),
			Quantity:   int64(it.Quantity),
		})
	}

	if err := s.orders.Create(ctx, order); err != nil {
		return nil, apperrors.Internal("Failed to create order", err)
	}

	sess, err := s.gateway.CreateSession(ctx, req)
	if err != nil {
		if serr := s.orders.SetStatus(ctx, order.ID, models.OrderStatusCancelled, "payment session could not be created"); serr != nil {
			s.log.Warn("Failed to cancel order without session",
				zap.String("order_id", order.ID.Hex()), zap.Error(serr))
		}
		return nil, err
	}

	order.PaymentSessionID = sess.ID
	if err := s.orders.AttachSession(ctx, order.ID, sess.ID); err != nil {
		// The session metadata still names the order; completion recovers it.
		s.log.Error("Failed to record session on order",
			zap.String("order_id", order.ID.Hex()), zap.String("session_id", sess.ID), zap.Error(err))
		return nil, apperrors.Internal("Failed to create order", err)
	}
	s.count(aws_pkg.MetricCheckoutSessions, nil)

	s.log.Info("Checkout session created",
		zap.String("order_id", order.ID.Hex()),
		zap.String("session_id", sess.ID),
		zap.Float64("total", order.TotalAmount),
		zap.Int("advisories", len(order.Advisories)),
	)
	return &models.CheckoutResponse{
		SessionID:  sess.ID,
		URL:        sess.URL,
		OrderID:    order.ID.Hex(),
		Advisories: order.Advisories,
	}, nil
}

// ConfirmSession is the client success callback. It trusts nothing from the
// client beyond the session id and asks the processor whether it was paid.
func (s *CheckoutService) ConfirmSession(ctx context.Context, userID primitive.ObjectID, sessionID string) (*models.Order, error) {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return nil, apperrors.Validation("Session ID is required")
	}

	sess, err := s.gateway.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if sess.PaymentStatus != sessionPaid {
		return nil, apperrors.Validation("Payment not completed", "payment status: "+sess.PaymentStatus)
	}

	order, err := s.orders.FindBySessionID(ctx, sessionID)
	if errors.Is(err, repository.ErrNotFound) && s.attachFromMetadata(ctx, sess) {
		order, err = s.orders.FindBySessionID(ctx, sessionID)
	}
	if errors.Is(err, repository.ErrNotFound) {
		return nil, apperrors.NotFound("Order not found for session")
	}
	if err != nil {
		return nil, apperrors.Internal("Failed to fetch order", err)
	}
	if order.UserID != userID {
		return nil, apperrors.Forbidden("Order does not belong to this user")
	}
	return s.FinalizeSession(ctx, sessionID)
}

// attachFromMetadata binds sess to the order named in its metadata. It
// covers sessions whose id was never written to their order.
func (s *CheckoutService) attachFromMetadata(ctx context.Context, sess *Session) bool {
	orderID, err := primitive.ObjectIDFromHex(sess.Metadata["order_id"])
	if err != nil {
		return false
	}
	if err := s.orders.AttachSession(ctx, orderID, sess.ID); err != nil {
		s.log.Warn("Failed to attach session from metadata",
			zap.String("session_id", sess.ID), zap.String("order_id", orderID.Hex()), zap.Error(err))
		return false
	}
	s.log.Warn("Recovered unrecorded checkout session",
		zap.String("session_id", sess.ID), zap.String("order_id", orderID.Hex()))
	return true
}

// FinalizeSession commits a paid session: it claims the pending order,
// decrements stock, removes the purchased lines from the cart and publishes
// order.paid. Repeated calls for the same session return the order without
// side effects.
//
// The order is cancelled only when stock ran out. Any other failure releases
// the claim and returns an unavailable error so the processor's retry can
// finalize it later.
func (s *CheckoutService) FinalizeSession(ctx context.Context, sessionID string) (*models.Order, error) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), finalizeTimeout)
	defer cancel()

	order, claimed, err := s.orders.Claim(ctx, sessionID, s.now().UTC())
	if errors.Is(err, repository.ErrNotFound) {
		return nil, apperrors.NotFound("Order not found for session")
	}
	if err != nil {
		return nil, apperrors.Internal("Failed to claim order", err)
	}
	if !claimed {
		s.log.Info("Session already finalized",
			zap.String("session_id", sessionID),
			zap.String("order_id", order.ID.Hex()),
			zap.String("payment_status", string(order.PaymentStatus)),
		)
		return order, nil
	}

	failed, err := s.commitStock(ctx, order)
	switch {
	case errors.Is(err, repository.ErrInsufficientStock):
		note := fmt.Sprintf("stock commit failed for %s: %v", failed, err)
		s.log.Error("Cancelling paid order",
			zap.String("order_id", order.ID.Hex()), zap.String("reason", note))
		if err := s.orders.SetStatus(ctx, order.ID, models.OrderStatusCancelled, note); err != nil {
			return nil, apperrors.Internal("Failed to cancel order", err)
		}
		order.OrderStatus = models.OrderStatusCancelled
		order.Notes = note
		s.publish(ctx, events.OrderCancelled, order)
		s.count(aws_pkg.MetricOrdersCancelled, map[string]string{"Reason": "stock"})
		return order, nil
	case err != nil:
		s.log.Error("Stock commit failed, releasing order for retry",
			zap.String("order_id", order.ID.Hex()), zap.String("product", failed), zap.Error(err))
		if rerr := s.orders.Release(ctx, order.ID); rerr != nil {
			s.log.Error("Failed to release claimed order",
				zap.String("order_id", order.ID.Hex()), zap.Error(rerr))
		}
		s.count(aws_pkg.MetricFinalizeRetryable, nil)
		return nil, apperrors.New(apperrors.KindUnavailable, "Order could not be finalized, please retry", err)
	}

	if err := s.orders.SetStatus(ctx, order.ID, models.OrderStatusCompleted, ""); err != nil {
		return nil, apperrors.Internal("Failed to complete order", err)
	}
	order.OrderStatus = models.OrderStatusCompleted

	if order.CartID != nil {
		ids := make([]primitive.ObjectID, 0, len(order.Items))
		for _, it := range order.Items {
			ids = append(ids, it.ProductID)
		}
		if err := s.carts.RemoveProducts(ctx, order.UserID, ids); err != nil {
			s.log.Warn("Failed to remove purchased items from cart",
				zap.String("user_id", order.UserID.Hex()), zap.Error(err))
		}
	}

	s.publish(ctx, events.OrderPaid, order)
	s.count(aws_pkg.MetricOrdersCompleted, nil)
	s.value(aws_pkg.MetricOrderAmount, order.TotalAmount)
	s.log.Info("Order completed",
		zap.String("order_id", order.ID.Hex()),
		zap.String("session_id", sessionID),
	)
	return order, nil
}

// commitStock decrements every line or none: on the first failure the lines
// already applied are put back. Every product it touched is evicted from the
// catalog cache.
func (s *CheckoutService) commitStock(ctx context.Context, order *models.Order) (string, error) {
	applied := make([]models.OrderItem, 0, len(order.Items))
	defer func() {
		for _, it := range applied {
			s.invalidate(ctx, it.ProductID)
		}
	}()

	for _, it := range order.Items {
		if err := s.products.DecrementStock(ctx, it.ProductID, it.Quantity); err != nil {
			for _, done := range applied {
				if rerr := s.products.IncrementStock(ctx, done.ProductID, done.Quantity); rerr != nil {
					s.log.Error("Failed to restore stock",
						zap.String("product_id", done.ProductID.Hex()),
						zap.Int("quantity", done.Quantity),
						zap.Error(rerr),
					)
				}
			}
			return it.Name, err
		}
		applied = append(applied, it)
	}
	return "", nil
}

func (s *CheckoutService) invalidate(ctx context.Context, productID primitive.ObjectID) {
	if s.cache != nil {
		s.cache.InvalidateProduct(ctx, productID.Hex())
	}
}

// count and value send a data point in the background.
func (s *CheckoutService) count(name string, dims map[string]string) {
	s.emit(func(ctx context.Context, d map[string]string) error {
		return s.metrics.RecordCount(ctx, name, d)
	}, dims)
}

func (s *CheckoutService) value(name string, v float64) {
	s.emit(func(ctx context.Context, d map[string]string) error {
		return s.metrics.RecordValue(ctx, name, v, d)
	}, nil)
}

func (s *CheckoutService) emit(record func(context.Context, map[string]string) error, dims map[string]string) {
	if s.metrics == nil || !s.metrics.IsEnabled() {
		return
	}
	all := map[string]string{"Service": "storefront"}
	for k, v := range dims {
		all[k] = v
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := record(ctx, all); err != nil {
			s.log.Debug("Failed to record metric", zap.Error(err))
		}
	}()
}

func (s *CheckoutService) publish(ctx context.Context, eventType string, order *models.Order) {
	items := 0
	for _, it := range order.Items {
		items += it.Quantity
	}
	event := models.OrderEvent{
		Type:        eventType,
		OrderID:     order.ID.Hex(),
		UserID:      order.UserID.Hex(),
		SessionID:   order.PaymentSessionID,
		TotalAmount: order.TotalAmount,
		Currency:    order.Currency,
		Items:       items,
		Timestamp:   s.now().UTC(),
	}
	if err := s.publisher.PublishOrderEvent(ctx, event); err != nil {
		s.log.Warn("Failed to publish order event",
			zap.String("type", eventType), zap.String("order_id", event.OrderID), zap.Error(err))
	}
}

// HandleWebhook verifies and dispatches a processor event.
func (s *CheckoutService) HandleWebhook(ctx context.Context, payload []byte, signature string) error {
	event, err := s.gateway.ParseWebhook(payload, signature)
	if err != nil {
		s.log.Warn("Webhook verification failed", zap.Error(err))
		return err
	}

	s.log.Info("Processing webhook", zap.String("event_type", event.Type), zap.String("event_id", event.ID))

	switch event.Type {
	case "checkout.session.completed", "checkout.session.async_payment_succeeded":
		if event.Session == nil || event.Session.PaymentStatus != sessionPaid {
			s.log.Info("Checkout session not paid yet", zap.String("event_id", event.ID))
			return nil
		}
		_, err := s.FinalizeSession(ctx, event.Session.ID)
		if apperrors.IsKind(err, apperrors.KindNotFound) && s.attachFromMetadata(ctx, event.Session) {
			_, err = s.FinalizeSession(ctx, event.Session.ID)
		}
		if apperrors.IsKind(err, apperrors.KindNotFound) {
			s.log.Warn("No order for completed session", zap.String("session_id", event.Session.ID))
			return nil
		}
		return err
	case "checkout.session.expired":
		if event.Session == nil {
			return nil
		}
		order, expired, err := s.orders.Expire(ctx, event.Session.ID)
		if errors.Is(err, repository.ErrNotFound) {
			return nil
		}
		if err != nil {
			return apperrors.Internal("Failed to expire order", err)
		}
		if expired {
			order.OrderStatus = models.OrderStatusCancelled
			s.publish(ctx, events.OrderExpired, order)
			s.count(aws_pkg.MetricOrdersExpired, nil)
		}
		return nil
	case "payment_intent.payment_failed":
		s.log.Warn("Payment failed",
			zap.String("payment_intent_id", event.PaymentIntentID),
			zap.String("message", event.FailureMessage),
		)
		return nil
	default:
		s.log.Info("Unhandled webhook event type", zap.String("event_type", event.Type))
		return nil
	}
}

func (s *CheckoutService) History(ctx context.Context, userID primitive.ObjectID, page, limit int) (*models.OrderHistoryResponse, error) {
	page, limit = NormalizePage(page, limit)
	orders, err := s.orders.FindByUser(ctx, userID, int64((page-1)*limit), int64(limit))
	if err != nil {
		return nil, apperrors.Internal("Failed to fetch orders", err)
	}
	total, err := s.orders.CountByUser(ctx, userID)
	if err != nil {
		return nil, apperrors.Internal("Failed to count orders", err)
	}
	return &models.OrderHistoryResponse{Orders: orders, Meta: models.NewListMeta(page, limit, total)}, nil
}

func (s *CheckoutService) GatewayStatus(ctx context.Context) (*GatewayStatus, error) {
	return s.gateway.Status(ctx)
}
