package controllers

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"gorm.io/gorm"

	catalogsvc "github.com/angelmondragon/storefront-backend/internal/catalog"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/angelmondragon/storefront-backend/pkg/pagination"
)

func TestListProducts(t *testing.T) {
	logg := testLogger()

	t.Run("success with category filter", func(t *testing.T) {
		stub := &stubCatalogService{
			products: []models.Product{
				{ID: uuid.New(), SKU: "SKU-1", Name: "Widget", PriceCents: 1500, Stock: 5, IsActive: true},
				{ID: uuid.New(), SKU: "SKU-2", Name: "Gadget", PriceCents: 2500, Stock: 2, IsActive: true},
			},
			total: 2,
		}
		req := httptest.NewRequest(http.MethodGet, "/api/v1/products?category=tools&limit=10", nil)
		rec := httptest.NewRecorder()
		ListProducts(stub, logg).ServeHTTP(rec, req)

		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d (%s)", rec.Code, rec.Body.String())
		}
		if !stub.listFilters.ActiveOnly {
			t.Fatalf("expected active-only listing for the public catalog")
		}
		if stub.listFilters.Category == nil || *stub.listFilters.Category != "tools" {
			t.Fatalf("expected category filter to reach the service, got %v", stub.listFilters.Category)
		}
		if stub.listParams.Limit != 10 {
			t.Fatalf("expected limit 10, got %d", stub.listParams.Limit)
		}

		var envelope struct {
			Data struct {
				Items []productResponse `json:"items"`
				Total int64             `json:"total"`
			} `json:"data"`
		}
		if err := json.Unmarshal(rec.Body.Bytes(), &envelope); err != nil {
			t.Fatalf("decode response: %v", err)
		}
		if len(envelope.Data.Items) != 2 || envelope.Data.Total != 2 {
			t.Fatalf("expected 2 items, got %d (total %d)", len(envelope.Data.Items), envelope.Data.Total)
		}
	})

	t.Run("service failure", func(t *testing.T) {
		stub := &stubCatalogService{listErr: pkgerrors.New(pkgerrors.CodeDependency, "database unavailable")}
		req := httptest.NewRequest(http.MethodGet, "/api/v1/products", nil)
		rec := httptest.NewRecorder()
		ListProducts(stub, logg).ServeHTTP(rec, req)
		if rec.Code != http.StatusServiceUnavailable {
			t.Fatalf("expected 503, got %d", rec.Code)
		}
	})
}

func TestGetProduct(t *testing.T) {
	logg := testLogger()
	productID := uuid.New()

	t.Run("invalid id", func(t *testing.T) {
		rec := getProductRequest(t, &stubCatalogService{}, logg, "not-a-uuid")
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d", rec.Code)
		}
	})

	t.Run("not found", func(t *testing.T) {
		stub := &stubCatalogService{getErr: pkgerrors.New(pkgerrors.CodeNotFound, "product not found")}
		rec := getProductRequest(t, stub, logg, productID.String())
		if rec.Code != http.StatusNotFound {
			t.Fatalf("expected 404, got %d", rec.Code)
		}
	})

	t.Run("success", func(t *testing.T) {
		stub := &stubCatalogService{product: &models.Product{ID: productID, SKU: "SKU-1", Name: "Widget", PriceCents: 1500, IsActive: true}}
		rec := getProductRequest(t, stub, logg, productID.String())
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d (%s)", rec.Code, rec.Body.String())
		}
	})
}

func getProductRequest(t *testing.T, svc catalogsvc.Service, logg *logger.Logger, rawID string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/products/"+rawID, nil)
	routeCtx := chi.NewRouteContext()
	routeCtx.URLParams.Add("productId", rawID)
	req = req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, routeCtx))
	rec := httptest.NewRecorder()
	GetProduct(svc, logg).ServeHTTP(rec, req)
	return rec
}

func testLogger() *logger.Logger {
	return logger.New(logger.Options{ServiceName: "test", Level: logger.ParseLevel("debug"), Output: io.Discard})
}

type stubCatalogService struct {
	products    []models.Product
	product     *models.Product
	total       int64
	listErr     error
	getErr      error
	listParams  pagination.Params
	listFilters catalogsvc.ListFilters
}

func (s *stubCatalogService) GetProduct(ctx context.Context, id uuid.UUID) (*models.Product, error) {
	if s.getErr != nil {
		return nil, s.getErr
	}
	return s.product, nil
}

func (s *stubCatalogService) ListProducts(ctx context.Context, params pagination.Params, filters catalogsvc.ListFilters) ([]models.Product, int64, error) {
	s.listParams = params
	s.listFilters = filters
	if s.listErr != nil {
		return nil, 0, s.listErr
	}
	return s.products, s.total, nil
}

func (s *stubCatalogService) ResolveForPurchase(ctx context.Context, requests []catalogsvc.PurchaseRequest) ([]catalogsvc.ResolvedItem, error) {
	panic("unimplemented")
}

func (s *stubCatalogService) CommitStock(ctx context.Context, tx *gorm.DB, items []catalogsvc.ResolvedItem) error {
	panic("unimplemented")
}

func (s *stubCatalogService) ReleaseStock(ctx context.Context, tx *gorm.DB, items []models.OrderItem) error {
	panic("unimplemented")
}
