package catalog

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/pagination"
)

// Service exposes catalog reads plus the stock operations used by
// reconciliation and cancellation.
type Service interface {
	GetProduct(ctx context.Context, id uuid.UUID) (*models.Product, error)
	ListProducts(ctx context.Context, params pagination.Params, filters ListFilters) ([]models.Product, int64, error)
	ResolveForPurchase(ctx context.Context, requests []PurchaseRequest) ([]ResolvedItem, error)
	CommitStock(ctx context.Context, tx *gorm.DB, items []ResolvedItem) error
	ReleaseStock(ctx context.Context, tx *gorm.DB, items []models.OrderItem) error
}

// PurchaseRequest is one requested product/quantity pair.
type PurchaseRequest struct {
	ProductID uuid.UUID
	Quantity  int
}

// ResolvedItem carries the catalog snapshot taken when a purchase is resolved.
type ResolvedItem struct {
	ProductID      uuid.UUID
	ProductName    string
	UnitPriceCents int
	Quantity       int
	ImageURL       *string
}

type service struct {
	repo Repository
}

// NewService builds the catalog service.
func NewService(repo Repository) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("catalog repository required")
	}
	return &service{repo: repo}, nil
}

func (s *service) GetProduct(ctx context.Context, id uuid.UUID) (*models.Product, error) {
	if id == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "product id required")
	}
	product, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "product not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load product")
	}
	return product, nil
}

func (s *service) ListProducts(ctx context.Context, params pagination.Params, filters ListFilters) ([]models.Product, int64, error) {
	products, total, err := s.repo.List(ctx, params, filters)
	if err != nil {
		return nil, 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list products")
	}
	return products, total, nil
}

// ResolveForPurchase re-reads the live catalog for each requested product.
// Prices always come from here; client-supplied prices are never trusted.
// Stock is checked against current levels but not yet decremented.
func (s *service) ResolveForPurchase(ctx context.Context, requests []PurchaseRequest) ([]ResolvedItem, error) {
	if len(requests) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "no items requested")
	}

	ids := make([]uuid.UUID, 0, len(requests))
	for _, req := range requests {
		if req.ProductID == uuid.Nil {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "product id required")
		}
		if req.Quantity <= 0 {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "quantity must be positive")
		}
		ids = append(ids, req.ProductID)
	}

	products, err := s.repo.FindByIDs(ctx, ids)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load products")
	}
	byID := make(map[uuid.UUID]models.Product, len(products))
	for _, p := range products {
		byID[p.ID] = p
	}

	resolved := make([]ResolvedItem, 0, len(requests))
	for _, req := range requests {
		product, ok := byID[req.ProductID]
		if !ok || !product.IsActive {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "product not available")
		}
		if product.Stock < req.Quantity {
			return nil, pkgerrors.New(pkgerrors.CodeConflict, fmt.Sprintf("insufficient stock for %s", product.Name))
		}
		resolved = append(resolved, ResolvedItem{
			ProductID:      product.ID,
			ProductName:    product.Name,
			UnitPriceCents: product.PriceCents,
			Quantity:       req.Quantity,
			ImageURL:       product.ImageURL,
		})
	}
	return resolved, nil
}

// CommitStock decrements stock for every item inside the caller's transaction.
// A failed guard on any line aborts the whole commit so the transaction rolls
// back cleanly.
func (s *service) CommitStock(ctx context.Context, tx *gorm.DB, items []ResolvedItem) error {
	if tx == nil {
		return pkgerrors.New(pkgerrors.CodeDependency, "transaction required for stock commit")
	}
	repo := s.repo.WithTx(tx)
	for _, item := range items {
		ok, err := repo.DecrementStock(ctx, item.ProductID, item.Quantity)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decrement stock")
		}
		if !ok {
			return pkgerrors.New(pkgerrors.CodeConflict, fmt.Sprintf("insufficient stock for %s", item.ProductName))
		}
	}
	return nil
}

// ReleaseStock hands stock back for every order item inside the caller's
// transaction, the exact inverse of CommitStock.
func (s *service) ReleaseStock(ctx context.Context, tx *gorm.DB, items []models.OrderItem) error {
	if tx == nil {
		return pkgerrors.New(pkgerrors.CodeDependency, "transaction required for stock release")
	}
	repo := s.repo.WithTx(tx)
	for _, item := range items {
		if err := repo.RestoreStock(ctx, item.ProductID, item.Quantity); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "restore stock")
		}
	}
	return nil
}
