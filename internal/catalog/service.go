package catalog

import (
	"context"
	"strings"

	"github.com/shopspring/decimal"
)

// Service validates and serves product master data.
type Service struct {
	repo RepositoryPort
}

// NewService builds Service.
func NewService(repo RepositoryPort) *Service {
	return &Service{repo: repo}
}

// Upsert stores a product after basic validation.
func (s *Service) Upsert(ctx context.Context, product Product) (Product, error) {
	product.SKU = strings.TrimSpace(product.SKU)
	product.Name = strings.TrimSpace(product.Name)
	if product.SKU == "" || product.Name == "" {
		return Product{}, ErrInvalidProduct
	}
	if product.ListPurchasePrice.Sign() < 0 {
		return Product{}, ErrInvalidProduct
	}
	return s.repo.Upsert(ctx, product)
}

// Get fetches a product by id.
func (s *Service) Get(ctx context.Context, id int64) (Product, error) {
	return s.repo.Get(ctx, id)
}

// List fetches all products.
func (s *Service) List(ctx context.Context) ([]Product, error) {
	return s.repo.List(ctx)
}

// ReferenceUnitCost resolves the list purchase price used to cost
// shortfalls under the degrade consumption policy.
func (s *Service) ReferenceUnitCost(ctx context.Context, productID int64) (decimal.Decimal, error) {
	product, err := s.repo.Get(ctx, productID)
	if err != nil {
		return decimal.Zero, err
	}
	return product.ListPurchasePrice, nil
}

// Name resolves a product's display name; unknown products yield "".
func (s *Service) Name(ctx context.Context, productID int64) (string, error) {
	product, err := s.repo.Get(ctx, productID)
	if err != nil {
		return "", err
	}
	return product.Name, nil
}
