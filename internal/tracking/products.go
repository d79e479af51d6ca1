package tracking

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/radiusdt/leadtrack/internal/models"
	"github.com/radiusdt/leadtrack/internal/storage"
)

// ErrInvalidProduct marks a create/update with missing required fields.
var ErrInvalidProduct = errors.New("name, offer_id and account_name are required")

// ProductService manages the offer-to-account reference data.
type ProductService struct {
	products storage.ProductRepo
}

func NewProductService(products storage.ProductRepo) *ProductService {
	return &ProductService{products: products}
}

func validateProduct(p *models.Product) error {
	if strings.TrimSpace(p.Name) == "" ||
		strings.TrimSpace(p.OfferID) == "" ||
		strings.TrimSpace(p.AccountName) == "" {
		return ErrInvalidProduct
	}
	return nil
}

func (s *ProductService) List(ctx context.Context) ([]*models.Product, error) {
	return s.products.ListAll(ctx)
}

func (s *ProductService) Create(ctx context.Context, p *models.Product) error {
	if err := validateProduct(p); err != nil {
		return err
	}
	now := time.Now()
	p.CreatedAt = now
	p.UpdatedAt = now
	_, err := s.products.Create(ctx, p)
	return err
}

// Update reports false when no product has that id.
func (s *ProductService) Update(ctx context.Context, p *models.Product) (bool, error) {
	if err := validateProduct(p); err != nil {
		return false, err
	}
	p.UpdatedAt = time.Now()
	return s.products.Update(ctx, p)
}

func (s *ProductService) Delete(ctx context.Context, id int64) (bool, error) {
	return s.products.Delete(ctx, id)
}

func (s *ProductService) Accounts(ctx context.Context) ([]string, error) {
	return s.products.ListAccounts(ctx)
}
