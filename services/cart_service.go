package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"storefront/apperrors"
	"storefront/models"
	"storefront/repository"

	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

// maxCartAttempts bounds optimistic retries of a single cart mutation.
const maxCartAttempts = 3

var errNoChange = errors.New("no change")

type CartService struct {
	carts    repository.CartRepo
	products repository.ProductRepo
	log      *zap.Logger
}

func NewCartService(carts repository.CartRepo, products repository.ProductRepo, log *zap.Logger) *CartService {
	return &CartService{carts: carts, products: products, log: log}
}

// mutate runs a read-modify-write of the user's cart, retrying when another
// request wrote the cart in between. fn may return errNoChange to skip the
// write.
func (s *CartService) mutate(ctx context.Context, userID primitive.ObjectID, create bool, fn func(*models.Cart) error) (*models.Cart, error) {
	for attempt := 1; attempt <= maxCartAttempts; attempt++ {
		var cart *models.Cart
		var err error
		if create {
			cart, err = s.carts.GetOrCreate(ctx, userID)
		} else {
			cart, err = s.carts.FindByUserID(ctx, userID)
		}
		if err != nil {
			return nil, err
		}

		if err := fn(cart); err != nil {
			if errors.Is(err, errNoChange) {
				return cart, nil
			}
			return nil, err
		}

		err = s.carts.Save(ctx, cart)
		if errors.Is(err, repository.ErrVersionConflict) {
			s.log.Debug("Cart version conflict, retrying",
				zap.String("user_id", userID.Hex()), zap.Int("attempt", attempt))
			continue
		}
		if err != nil {
			return nil, apperrors.Internal("Failed to save cart", err)
		}
		return cart, nil
	}
	return nil, apperrors.Conflict("Cart was modified concurrently, please retry")
}

func (s *CartService) loadProduct(ctx context.Context, id primitive.ObjectID) (*models.Product, error) {
	product, err := s.products.FindByID(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, apperrors.NotFound("Product not found")
	}
	if err != nil {
		return nil, apperrors.Internal("Failed to fetch product", err)
	}
	return product, nil
}

func insufficientStock(product *models.Product, requested int) error {
	return apperrors.Validation("Insufficient stock",
		fmt.Sprintf("%s: requested %d, only %d available", product.Name, requested, product.Stock))
}

func (s *CartService) CreateCart(ctx context.Context, userID primitive.ObjectID) (*models.CartView, error) {
	cart, err := s.carts.GetOrCreate(ctx, userID)
	if err != nil {
		return nil, apperrors.Internal("Failed to create cart", err)
	}
	return s.GetCart(ctx, cart.UserID)
}

// GetCart returns the cart joined with live products. Lines whose product
// has been deleted are removed from the stored cart as a side effect.
func (s *CartService) GetCart(ctx context.Context, userID primitive.ObjectID) (*models.CartView, error) {
	for attempt := 1; attempt <= maxCartAttempts; attempt++ {
		cart, err := s.carts.FindByUserID(ctx, userID)
		if errors.Is(err, repository.ErrNotFound) {
			return emptyView(userID), nil
		}
		if err != nil {
			return nil, apperrors.Internal("Failed to fetch cart", err)
		}

		products, err := s.lookup(ctx, cart)
		if err != nil {
			return nil, err
		}

		kept := cart.Items[:0:0]
		for _, line := range cart.Items {
			if _, ok := products[line.ProductID]; ok {
				kept = append(kept, line)
			}
		}
		if len(kept) == len(cart.Items) {
			return buildView(cart, products), nil
		}

		removed := len(cart.Items) - len(kept)
		cart.Items = kept
		err = s.carts.Save(ctx, cart)
		if errors.Is(err, repository.ErrVersionConflict) {
			continue
		}
		if err != nil {
			return nil, apperrors.Internal("Failed to save cart", err)
		}
		s.log.Info("Removed cart lines for deleted products",
			zap.String("user_id", userID.Hex()), zap.Int("removed", removed))
		return buildView(cart, products), nil
	}
	return nil, apperrors.Conflict("Cart was modified concurrently, please retry")
}

func (s *CartService) AddItem(ctx context.Context, userID primitive.ObjectID, productHex string, quantity int) (*models.CartView, error) {
	productID, err := ParseID(productHex, "product")
	if err != nil {
		return nil, err
	}
	if quantity < 1 {
		return nil, apperrors.Validation("Validation failed", "quantity must be at least 1")
	}
	if _, err := s.loadProduct(ctx, productID); err != nil {
		return nil, err
	}

	cart, err := s.mutate(ctx, userID, true, func(cart *models.Cart) error {
		product, err := s.loadProduct(ctx, productID)
		if err != nil {
			return err
		}
		if quantity > product.Stock {
			return insufficientStock(product, quantity)
		}

		if idx := cart.FindProductLine(productID); idx >= 0 {
			merged := cart.Items[idx].Quantity + quantity
			if merged > product.Stock {
				return insufficientStock(product, merged)
			}
			cart.Items[idx].Quantity = merged
			return nil
		}
		cart.Items = append(cart.Items, models.CartLine{
			ID:        primitive.NewObjectID(),
			ProductID: productID,
			Quantity:  quantity,
			AddedAt:   time.Now().UTC(),
		})
		return nil
	})
	if err != nil {
		return nil, wrapCartErr(err)
	}
	return s.GetCart(ctx, cart.UserID)
}

func (s *CartService) UpdateItem(ctx context.Context, userID primitive.ObjectID, lineHex string, quantity int) (*models.CartView, error) {
	lineID, err := ParseID(lineHex, "cart item")
	if err != nil {
		return nil, err
	}
	if quantity < 1 {
		return nil, apperrors.Validation("Validation failed", "quantity must be at least 1")
	}

	_, err = s.mutate(ctx, userID, false, func(cart *models.Cart) error {
		idx := cart.FindLine(lineID)
		if idx < 0 {
			return apperrors.NotFound("Cart item not found")
		}
		product, err := s.loadProduct(ctx, cart.Items[idx].ProductID)
		if err != nil {
			return err
		}
		if quantity > product.Stock {
			return insufficientStock(product, quantity)
		}
		if cart.Items[idx].Quantity == quantity {
			return errNoChange
		}
		cart.Items[idx].Quantity = quantity
		return nil
	})
	if err != nil {
		return nil, wrapCartErr(err)
	}
	return s.GetCart(ctx, userID)
}

func (s *CartService) RemoveItem(ctx context.Context, userID primitive.ObjectID, lineHex string) (*models.CartView, error) {
	lineID, err := ParseID(lineHex, "cart item")
	if err != nil {
		return nil, err
	}

	_, err = s.mutate(ctx, userID, false, func(cart *models.Cart) error {
		idx := cart.FindLine(lineID)
		if idx < 0 {
			return apperrors.NotFound("Cart item not found")
		}
		cart.Items = append(cart.Items[:idx], cart.Items[idx+1:]...)
		return nil
	})
	if errors.Is(err, repository.ErrNotFound) {
		return nil, apperrors.NotFound("Cart item not found")
	}
	if err != nil {
		return nil, wrapCartErr(err)
	}
	return s.GetCart(ctx, userID)
}

// ClearCart empties the cart. Clearing an empty or absent cart succeeds.
func (s *CartService) ClearCart(ctx context.Context, userID primitive.ObjectID) error {
	_, err := s.mutate(ctx, userID, false, func(cart *models.Cart) error {
		if len(cart.Items) == 0 {
			return errNoChange
		}
		cart.Items = []models.CartLine{}
		return nil
	})
	if errors.Is(err, repository.ErrNotFound) {
		return nil
	}
	return wrapCartErr(err)
}

func (s *CartService) Summary(ctx context.Context, userID primitive.ObjectID) (*models.CartSummary, error) {
	view, err := s.GetCart(ctx, userID)
	if err != nil {
		return nil, err
	}
	return &view.Summary, nil
}

// Validate reports problems that would block checkout without changing the cart.
func (s *CartService) Validate(ctx context.Context, userID primitive.ObjectID) (*models.CartValidation, error) {
	cart, err := s.carts.FindByUserID(ctx, userID)
	if errors.Is(err, repository.ErrNotFound) {
		return &models.CartValidation{Valid: false, Issues: []models.CartLineIssue{}}, nil
	}
	if err != nil {
		return nil, apperrors.Internal("Failed to fetch cart", err)
	}
	products, err := s.lookup(ctx, cart)
	if err != nil {
		return nil, err
	}

	issues := []models.CartLineIssue{}
	for _, line := range cart.Items {
		issue := models.CartLineIssue{LineID: line.ID, ProductID: line.ProductID, Requested: line.Quantity}
		product, ok := products[line.ProductID]
		switch {
		case !ok:
			issue.Issue = models.IssueProductMissing
		case product.Stock == 0:
			issue.Issue, issue.Name = models.IssueOutOfStock, product.Name
		case line.Quantity > product.Stock:
			issue.Issue, issue.Name, issue.Available = models.IssueInsufficientStock, product.Name, product.Stock
		default:
			continue
		}
		issues = append(issues, issue)
	}
	return &models.CartValidation{Valid: len(cart.Items) > 0 && len(issues) == 0, Issues: issues}, nil
}

func (s *CartService) Statistics(ctx context.Context, userID primitive.ObjectID) (*models.CartStatistics, error) {
	view, err := s.GetCart(ctx, userID)
	if err != nil {
		return nil, err
	}

	stats := &models.CartStatistics{
		ItemCount:  view.Summary.ItemCount,
		TotalItems: view.Summary.TotalItems,
		TotalPrice: view.Summary.TotalPrice,
		Categories: map[string]int{},
	}
	for i := range view.Items {
		line := &view.Items[i]
		stats.Categories[line.Product.Category] += line.Quantity
		if stats.MostExpensive == nil || line.Product.Price > stats.MostExpensive.Product.Price {
			stats.MostExpensive = line
		}
	}
	if stats.TotalItems > 0 {
		avg := decimal.NewFromFloat(stats.TotalPrice).Div(decimal.NewFromInt(int64(stats.TotalItems)))
		stats.AverageUnitPrice = roundMoney(avg)
	}
	return stats, nil
}

func (s *CartService) Backup(ctx context.Context, userID primitive.ObjectID) (*models.CartBackup, error) {
	view, err := s.GetCart(ctx, userID)
	if err != nil {
		return nil, err
	}
	return &models.CartBackup{ExportedAt: time.Now().UTC(), Cart: view}, nil
}

func (s *CartService) lookup(ctx context.Context, cart *models.Cart) (map[primitive.ObjectID]*models.Product, error) {
	ids := make([]primitive.ObjectID, 0, len(cart.Items))
	for _, line := range cart.Items {
		ids = append(ids, line.ProductID)
	}
	products, err := s.products.FindByIDs(ctx, ids)
	if err != nil {
		return nil, apperrors.Internal("Failed to fetch cart products", err)
	}
	return products, nil
}

func wrapCartErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, repository.ErrNotFound) {
		return apperrors.NotFound("Cart not found")
	}
	var appErr *apperrors.Error
	if errors.As(err, &appErr) {
		return appErr
	}
	return apperrors.Internal("Cart operation failed", err)
}

func emptyView(userID primitive.ObjectID) *models.CartView {
	return &models.CartView{UserID: userID, Items: []models.CartLineView{}}
}

// buildView joins cart lines with products, skipping lines whose product is
// missing, and computes the summary over the remaining lines.
func buildView(cart *models.Cart, products map[primitive.ObjectID]*models.Product) *models.CartView {
	view := &models.CartView{
		ID:        cart.ID,
		UserID:    cart.UserID,
		Items:     make([]models.CartLineView, 0, len(cart.Items)),
		UpdatedAt: cart.UpdatedAt,
	}
	total := decimal.Zero
	for _, line := range cart.Items {
		product, ok := products[line.ProductID]
		if !ok {
			continue
		}
		subtotal := lineTotal(product.Price, line.Quantity)
		total = total.Add(subtotal)
		view.Items = append(view.Items, models.CartLineView{
			ID:        line.ID,
			ProductID: line.ProductID,
			Quantity:  line.Quantity,
			Product:   product,
			Subtotal:  roundMoney(subtotal),
			AddedAt:   line.AddedAt,
		})
		view.Summary.TotalItems += line.Quantity
	}
	view.Summary.ItemCount = len(view.Items)
	view.Summary.TotalPrice = roundMoney(total)
	return view
}
