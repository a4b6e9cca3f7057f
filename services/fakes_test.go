package services

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"storefront/apperrors"
	"storefront/models"
	"storefront/repository"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// In-memory repositories used by the service tests.

type memProducts struct {
	mu       sync.Mutex
	products map[primitive.ObjectID]*models.Product
}

func newMemProducts(products ...*models.Product) *memProducts {
	m := &memProducts{products: map[primitive.ObjectID]*models.Product{}}
	for _, p := range products {
		if p.ID.IsZero() {
			p.ID = primitive.NewObjectID()
		}
		m.products[p.ID] = p
	}
	return m
}

func (m *memProducts) stock(id primitive.ObjectID) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.products[id].Stock
}

func (m *memProducts) remove(id primitive.ObjectID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.products, id)
}

func (m *memProducts) match(q repository.ProductQuery, p *models.Product) bool {
	if q.Category != "" && p.Category != q.Category {
		return false
	}
	if q.Search != "" {
		s := strings.ToLower(q.Search)
		return strings.Contains(strings.ToLower(p.Name), s) ||
			strings.Contains(strings.ToLower(p.Description), s) ||
			strings.Contains(strings.ToLower(p.Category), s)
	}
	return true
}

func (m *memProducts) Find(_ context.Context, q repository.ProductQuery) ([]*models.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.Product
	for _, p := range m.products {
		if m.match(q, p) {
			cp := *p
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if int(q.Skip) >= len(out) {
		return []*models.Product{}, nil
	}
	out = out[q.Skip:]
	if q.Limit > 0 && int(q.Limit) < len(out) {
		out = out[:q.Limit]
	}
	return out, nil
}

func (m *memProducts) Count(ctx context.Context, q repository.ProductQuery) (int64, error) {
	all, _ := m.Find(ctx, repository.ProductQuery{Search: q.Search, Category: q.Category})
	return int64(len(all)), nil
}

func (m *memProducts) FindByID(_ context.Context, id primitive.ObjectID) (*models.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.products[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (m *memProducts) FindByIDs(_ context.Context, ids []primitive.ObjectID) (map[primitive.ObjectID]*models.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := map[primitive.ObjectID]*models.Product{}
	for _, id := range ids {
		if p, ok := m.products[id]; ok {
			cp := *p
			out[id] = &cp
		}
	}
	return out, nil
}

func (m *memProducts) Create(_ context.Context, p *models.Product) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p.ID = primitive.NewObjectID()
	p.CreatedAt = time.Now()
	cp := *p
	m.products[p.ID] = &cp
	return nil
}

func (m *memProducts) Update(_ context.Context, id primitive.ObjectID, updates map[string]interface{}) (*models.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.products[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	for k, v := range updates {
		switch k {
		case "name":
			p.Name = v.(string)
		case "description":
			p.Description = v.(string)
		case "price":
			p.Price = v.(float64)
		case "stock":
			p.Stock = v.(int)
		case "category":
			p.Category = v.(string)
		case "image":
			p.Image = v.(string)
		default:
			return nil, fmt.Errorf("unexpected field %s", k)
		}
	}
	cp := *p
	return &cp, nil
}

func (m *memProducts) Delete(_ context.Context, id primitive.ObjectID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.products[id]; !ok {
		return repository.ErrNotFound
	}
	delete(m.products, id)
	return nil
}

func (m *memProducts) DecrementStock(ctx context.Context, id primitive.ObjectID, qty int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.products[id]
	if !ok || p.Stock < qty {
		return repository.ErrInsufficientStock
	}
	p.Stock -= qty
	return nil
}

func (m *memProducts) IncrementStock(ctx context.Context, id primitive.ObjectID, qty int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.products[id]
	if !ok {
		return repository.ErrNotFound
	}
	p.Stock += qty
	return nil
}

type memCarts struct {
	mu    sync.Mutex
	carts map[primitive.ObjectID]*models.Cart // by user id
	// conflicts makes the next N saves fail with a version conflict.
	conflicts int
	saves     int
}

func newMemCarts() *memCarts {
	return &memCarts{carts: map[primitive.ObjectID]*models.Cart{}}
}

func cloneCart(c *models.Cart) *models.Cart {
	cp := *c
	cp.Items = append([]models.CartLine(nil), c.Items...)
	return &cp
}

func (m *memCarts) GetOrCreate(_ context.Context, userID primitive.ObjectID) (*models.Cart, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.carts[userID]
	if !ok {
		c = &models.Cart{ID: primitive.NewObjectID(), UserID: userID, Items: []models.CartLine{}}
		m.carts[userID] = c
	}
	return cloneCart(c), nil
}

func (m *memCarts) FindByUserID(_ context.Context, userID primitive.ObjectID) (*models.Cart, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.carts[userID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return cloneCart(c), nil
}

func (m *memCarts) FindByID(_ context.Context, id primitive.ObjectID) (*models.Cart, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range m.carts {
		if c.ID == id {
			return cloneCart(c), nil
		}
	}
	return nil, repository.ErrNotFound
}

func (m *memCarts) Save(_ context.Context, cart *models.Cart) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.conflicts > 0 {
		m.conflicts--
		return repository.ErrVersionConflict
	}
	stored, ok := m.carts[cart.UserID]
	if !ok || stored.Version != cart.Version {
		return repository.ErrVersionConflict
	}
	cart.Version++
	m.carts[cart.UserID] = cloneCart(cart)
	m.saves++
	return nil
}

func (m *memCarts) RemoveProducts(_ context.Context, userID primitive.ObjectID, productIDs []primitive.ObjectID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.carts[userID]
	if !ok || len(productIDs) == 0 {
		return nil
	}
	drop := map[primitive.ObjectID]bool{}
	for _, id := range productIDs {
		drop[id] = true
	}
	kept := []models.CartLine{}
	for _, line := range c.Items {
		if !drop[line.ProductID] {
			kept = append(kept, line)
		}
	}
	c.Items = kept
	c.Version++
	return nil
}

func (m *memCarts) lines(userID primitive.ObjectID) []models.CartLine {
	m.mu.Lock()
	defer m.mu.Unlock()
	if c, ok := m.carts[userID]; ok {
		return append([]models.CartLine(nil), c.Items...)
	}
	return nil
}

type memOrders struct {
	mu        sync.Mutex
	orders    map[primitive.ObjectID]*models.Order
	createErr error
	attachErr error
}

func newMemOrders() *memOrders {
	return &memOrders{orders: map[primitive.ObjectID]*models.Order{}}
}

func cloneOrder(o *models.Order) *models.Order {
	cp := *o
	cp.Items = append([]models.OrderItem(nil), o.Items...)
	return &cp
}

func (m *memOrders) Create(_ context.Context, o *models.Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createErr != nil {
		return m.createErr
	}
	for _, existing := range m.orders {
		if o.PaymentSessionID != "" && existing.PaymentSessionID == o.PaymentSessionID {
			return repository.ErrDuplicate
		}
	}
	if o.ID.IsZero() {
		o.ID = primitive.NewObjectID()
	}
	o.CreatedAt = time.Now()
	m.orders[o.ID] = cloneOrder(o)
	return nil
}

func (m *memOrders) FindByID(_ context.Context, id primitive.ObjectID) (*models.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return cloneOrder(o), nil
}

func (m *memOrders) bySession(sessionID string) *models.Order {
	if sessionID == "" {
		return nil
	}
	for _, o := range m.orders {
		if o.PaymentSessionID == sessionID {
			return o
		}
	}
	return nil
}

func (m *memOrders) FindBySessionID(_ context.Context, sessionID string) (*models.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o := m.bySession(sessionID)
	if o == nil {
		return nil, repository.ErrNotFound
	}
	return cloneOrder(o), nil
}

func (m *memOrders) AttachSession(_ context.Context, id primitive.ObjectID, sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.attachErr != nil {
		err := m.attachErr
		m.attachErr = nil
		return err
	}
	o, ok := m.orders[id]
	if !ok || (o.PaymentSessionID != "" && o.PaymentSessionID != sessionID) {
		return repository.ErrNotFound
	}
	o.PaymentSessionID = sessionID
	return nil
}

func (m *memOrders) Release(_ context.Context, id primitive.ObjectID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok || o.PaymentStatus != models.PaymentStatusPaid || o.OrderStatus != models.OrderStatusProcessing {
		return repository.ErrNotFound
	}
	o.PaymentStatus = models.PaymentStatusPending
	o.OrderStatus = models.OrderStatusPending
	o.PaidAt = nil
	return nil
}

func (m *memOrders) Claim(_ context.Context, sessionID string, paidAt time.Time) (*models.Order, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o := m.bySession(sessionID)
	if o == nil {
		return nil, false, repository.ErrNotFound
	}
	if o.PaymentStatus != models.PaymentStatusPending {
		return cloneOrder(o), false, nil
	}
	o.PaymentStatus = models.PaymentStatusPaid
	o.OrderStatus = models.OrderStatusProcessing
	o.PaidAt = &paidAt
	return cloneOrder(o), true, nil
}

func (m *memOrders) Expire(_ context.Context, sessionID string) (*models.Order, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o := m.bySession(sessionID)
	if o == nil {
		return nil, false, repository.ErrNotFound
	}
	if o.PaymentStatus != models.PaymentStatusPending {
		return cloneOrder(o), false, nil
	}
	o.PaymentStatus = models.PaymentStatusExpired
	o.OrderStatus = models.OrderStatusCancelled
	return cloneOrder(o), true, nil
}

func (m *memOrders) SetStatus(_ context.Context, id primitive.ObjectID, status models.OrderStatus, notes string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok {
		return repository.ErrNotFound
	}
	o.OrderStatus = status
	if notes != "" {
		o.Notes = notes
	}
	return nil
}

func (m *memOrders) FindByUser(_ context.Context, userID primitive.ObjectID, skip, limit int64) ([]*models.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []*models.Order{}
	for _, o := range m.orders {
		if o.UserID == userID {
			out = append(out, cloneOrder(o))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if int(skip) >= len(out) {
		return []*models.Order{}, nil
	}
	out = out[skip:]
	if int(limit) < len(out) {
		out = out[:limit]
	}
	return out, nil
}

func (m *memOrders) CountByUser(ctx context.Context, userID primitive.ObjectID) (int64, error) {
	all, _ := m.FindByUser(ctx, userID, 0, 1<<31)
	return int64(len(all)), nil
}

func (m *memOrders) only() *models.Order {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, o := range m.orders {
		return cloneOrder(o)
	}
	return nil
}

// flakyProducts fails the first failures DecrementStock calls with err and
// records every stock change that went through.
type flakyProducts struct {
	*memProducts
	err      error
	failures int
	calls    int
}

func (f *flakyProducts) DecrementStock(ctx context.Context, id primitive.ObjectID, qty int) error {
	f.mu.Lock()
	f.calls++
	fail := f.calls <= f.failures
	f.mu.Unlock()
	if fail {
		return f.err
	}
	return f.memProducts.DecrementStock(ctx, id, qty)
}

type recordingCache struct {
	mu          sync.Mutex
	invalidated []string
}

func (c *recordingCache) InvalidateProduct(_ context.Context, productID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.invalidated = append(c.invalidated, productID)
}

type recordingMetrics struct {
	mu     sync.Mutex
	counts map[string]int
}

func (m *recordingMetrics) IsEnabled() bool { return true }

func (m *recordingMetrics) RecordCount(_ context.Context, name string, _ map[string]string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.counts == nil {
		m.counts = map[string]int{}
	}
	m.counts[name]++
	return nil
}

func (m *recordingMetrics) RecordValue(ctx context.Context, name string, _ float64, dims map[string]string) error {
	return m.RecordCount(ctx, name, dims)
}

func (m *recordingMetrics) count(name string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.counts[name]
}

type fakeGateway struct {
	mu       sync.Mutex
	created  []SessionRequest
	sessions map[string]*Session
	event    *WebhookEvent
	err      error
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{sessions: map[string]*Session{}}
}

func (g *fakeGateway) CreateSession(_ context.Context, req SessionRequest) (*Session, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.err != nil {
		return nil, g.err
	}
	g.created = append(g.created, req)
	id := fmt.Sprintf("cs_test_%d", len(g.created))
	s := &Session{ID: id, URL: "https://checkout.example/" + id, Status: "open", PaymentStatus: "unpaid", Metadata: req.Metadata}
	g.sessions[id] = s
	return s, nil
}

func (g *fakeGateway) pay(id string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.sessions[id].PaymentStatus = "paid"
	g.sessions[id].Status = "complete"
}

func (g *fakeGateway) GetSession(_ context.Context, id string) (*Session, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	s, ok := g.sessions[id]
	if !ok {
		return nil, fmt.Errorf("no such session %s", id)
	}
	cp := *s
	return &cp, nil
}

func (g *fakeGateway) ParseWebhook(payload []byte, signature string) (*WebhookEvent, error) {
	if signature != "valid" {
		return nil, apperrors.New(apperrors.KindValidation, "Invalid webhook signature", fmt.Errorf("bad signature"))
	}
	return g.event, nil
}

func (g *fakeGateway) Status(context.Context) (*GatewayStatus, error) {
	return &GatewayStatus{Connected: true}, nil
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []models.OrderEvent
}

func (p *recordingPublisher) PublishOrderEvent(_ context.Context, e models.OrderEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return nil
}

func (p *recordingPublisher) Close() error { return nil }
