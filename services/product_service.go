package services

import (
	"context"
	"errors"
	"strings"

	"storefront/apperrors"
	"storefront/models"
	"storefront/repository"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
)

const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

type ProductService struct {
	repo     repository.ProductRepo
	validate *validator.Validate
	log      *zap.Logger
}

func NewProductService(repo repository.ProductRepo, log *zap.Logger) *ProductService {
	return &ProductService{repo: repo, validate: newProductValidator(), log: log}
}

// NormalizePage clamps pagination parameters to sane bounds.
func NormalizePage(page, limit int) (int, int) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = DefaultPageSize
	}
	if limit > MaxPageSize {
		limit = MaxPageSize
	}
	return page, limit
}

func (s *ProductService) List(ctx context.Context, params models.ProductListParams) (*models.ProductListResponse, error) {
	params.Search = strings.TrimSpace(params.Search)
	params.Category = strings.TrimSpace(params.Category)
	if params.Category != "" && !models.IsValidCategory(params.Category) {
		return nil, apperrors.Validation("Invalid category",
			"category must be one of "+strings.Join(models.Categories, ", "))
	}
	page, limit := NormalizePage(params.Page, params.Limit)

	q := repository.ProductQuery{
		Search:   params.Search,
		Category: params.Category,
		Skip:     int64((page - 1) * limit),
		Limit:    int64(limit),
	}
	products, err := s.repo.Find(ctx, q)
	if err != nil {
		return nil, apperrors.Internal("Failed to fetch products", err)
	}
	total, err := s.repo.Count(ctx, q)
	if err != nil {
		return nil, apperrors.Internal("Failed to count products", err)
	}

	return &models.ProductListResponse{
		Products: products,
		Meta:     models.NewListMeta(page, limit, total),
	}, nil
}

func (s *ProductService) Get(ctx context.Context, idHex string) (*models.Product, error) {
	id, err := ParseID(idHex, "product")
	if err != nil {
		return nil, err
	}
	product, err := s.repo.FindByID(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, apperrors.NotFound("Product not found")
	}
	if err != nil {
		return nil, apperrors.Internal("Failed to fetch product", err)
	}
	return product, nil
}

func (s *ProductService) Create(ctx context.Context, req models.CreateProductRequest) (*models.Product, error) {
	in := productInput{
		Name:        strings.TrimSpace(req.Name),
		Description: strings.TrimSpace(req.Description),
		Category:    strings.TrimSpace(req.Category),
		Image:       strings.TrimSpace(req.Image),
	}
	if in.Category == "" {
		in.Category = models.DefaultCategory
	}

	var missing []string
	if req.Price == nil {
		missing = append(missing, "price is required")
	} else {
		in.Price = *req.Price
	}
	if req.Stock == nil {
		missing = append(missing, "stock is required")
	} else {
		in.Stock = *req.Stock
	}

	if err := s.validate.Struct(in); err != nil || len(missing) > 0 {
		details := missing
		if err != nil {
			details = append(details, validationDetails(err)...)
		}
		return nil, apperrors.Validation("Validation failed", details...)
	}

	product := &models.Product{
		Name:        in.Name,
		Description: in.Description,
		Price:       in.Price,
		Category:    in.Category,
		Image:       in.Image,
		Stock:       in.Stock,
	}
	if err := s.repo.Create(ctx, product); err != nil {
		return nil, apperrors.Internal("Failed to create product", err)
	}
	s.log.Info("Product created", zap.String("product_id", product.ID.Hex()), zap.String("name", product.Name))
	return product, nil
}

// Update applies only the fields present in req. An explicit empty image
// clears it.
func (s *ProductService) Update(ctx context.Context, idHex string, req models.UpdateProductRequest) (*models.Product, error) {
	id, err := ParseID(idHex, "product")
	if err != nil {
		return nil, err
	}
	if req.IsEmpty() {
		return nil, apperrors.Validation("No fields to update")
	}

	var in productInput
	var fields []string
	updates := map[string]interface{}{}
	if req.Name != nil {
		in.Name = strings.TrimSpace(*req.Name)
		fields = append(fields, "Name")
		updates["name"] = in.Name
	}
	if req.Description != nil {
		in.Description = strings.TrimSpace(*req.Description)
		fields = append(fields, "Description")
		updates["description"] = in.Description
	}
	if req.Price != nil {
		in.Price = *req.Price
		fields = append(fields, "Price")
		updates["price"] = in.Price
	}
	if req.Stock != nil {
		in.Stock = *req.Stock
		fields = append(fields, "Stock")
		updates["stock"] = in.Stock
	}
	if req.Category != nil {
		in.Category = strings.TrimSpace(*req.Category)
		fields = append(fields, "Category")
		updates["category"] = in.Category
	}
	if req.Image != nil {
		in.Image = strings.TrimSpace(*req.Image)
		fields = append(fields, "Image")
		updates["image"] = in.Image
	}

	if err := s.validate.StructPartial(in, fields...); err != nil {
		return nil, validationError(err)
	}

	product, err := s.repo.Update(ctx, id, updates)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, apperrors.NotFound("Product not found")
	}
	if err != nil {
		return nil, apperrors.Internal("Failed to update product", err)
	}
	s.log.Info("Product updated", zap.String("product_id", idHex), zap.Strings("fields", fields))
	return product, nil
}

func (s *ProductService) Delete(ctx context.Context, idHex string) error {
	id, err := ParseID(idHex, "product")
	if err != nil {
		return err
	}
	err = s.repo.Delete(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return apperrors.NotFound("Product not found")
	}
	if err != nil {
		return apperrors.Internal("Failed to delete product", err)
	}
	s.log.Info("Product deleted", zap.String("product_id", idHex))
	return nil
}
