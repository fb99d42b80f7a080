package controllers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/angelmondragon/storefront-backend/api/middleware"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
)

func TestGetCart(t *testing.T) {
	logg := testLogger()
	userID := uuid.New()

	t.Run("missing user", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/cart", nil)
		rec := httptest.NewRecorder()
		GetCart(&stubCartService{}, logg).ServeHTTP(rec, req)
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("expected 401 without user context, got %d", rec.Code)
		}
	})

	t.Run("success computes subtotal", func(t *testing.T) {
		productID := uuid.New()
		stub := &stubCartService{record: &models.CartRecord{
			ID:     uuid.New(),
			UserID: userID,
			Status: enums.CartStatusActive,
			Items: []models.CartItem{
				{
					ID:        uuid.New(),
					ProductID: productID,
					Quantity:  3,
					Product:   &models.Product{ID: productID, Name: "Widget", PriceCents: 1500},
				},
			},
		}}

		req := httptest.NewRequest(http.MethodGet, "/api/v1/cart", nil)
		req = req.WithContext(middleware.WithUserID(req.Context(), userID.String()))
		rec := httptest.NewRecorder()
		GetCart(stub, logg).ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d (%s)", rec.Code, rec.Body.String())
		}

		var envelope struct {
			Data cartResponse `json:"data"`
		}
		if err := json.Unmarshal(rec.Body.Bytes(), &envelope); err != nil {
			t.Fatalf("decode response: %v", err)
		}
		if envelope.Data.SubtotalCents != 4500 {
			t.Fatalf("expected subtotal 4500, got %d", envelope.Data.SubtotalCents)
		}
	})
}

func TestSetCartItem(t *testing.T) {
	logg := testLogger()
	userID := uuid.New()
	productID := uuid.New()

	postItem := func(body string, ctx context.Context) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/cart/items", strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		req = req.WithContext(ctx)
		rec := httptest.NewRecorder()
		SetCartItem(&stubCartService{record: &models.CartRecord{ID: uuid.New(), UserID: userID}}, logg).ServeHTTP(rec, req)
		return rec
	}

	authed := middleware.WithUserID(context.Background(), userID.String())

	t.Run("rejects malformed body", func(t *testing.T) {
		rec := postItem(`{"product_id":`, authed)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("expected 400 for malformed json, got %d", rec.Code)
		}
	})

	t.Run("rejects zero quantity", func(t *testing.T) {
		rec := postItem(`{"product_id":"`+productID.String()+`","quantity":0}`, authed)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("expected 400 for zero quantity, got %d", rec.Code)
		}
	})

	t.Run("rejects non-uuid product", func(t *testing.T) {
		rec := postItem(`{"product_id":"abc","quantity":1}`, authed)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("expected 400 for invalid product id, got %d", rec.Code)
		}
	})

	t.Run("success", func(t *testing.T) {
		stub := &stubCartService{record: &models.CartRecord{ID: uuid.New(), UserID: userID, Status: enums.CartStatusActive}}
		req := httptest.NewRequest(http.MethodPost, "/api/v1/cart/items", strings.NewReader(`{"product_id":"`+productID.String()+`","quantity":2}`))
		req.Header.Set("Content-Type", "application/json")
		req = req.WithContext(authed)
		rec := httptest.NewRecorder()
		SetCartItem(stub, logg).ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d (%s)", rec.Code, rec.Body.String())
		}
		if stub.setProductID != productID || stub.setQuantity != 2 {
			t.Fatalf("expected service to receive product %s qty 2, got %s qty %d", productID, stub.setProductID, stub.setQuantity)
		}
	})
}

func TestRemoveCartItem(t *testing.T) {
	logg := testLogger()
	userID := uuid.New()
	productID := uuid.New()

	t.Run("invalid product id", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodDelete, "/api/v1/cart/items/bad", nil)
		routeCtx := chi.NewRouteContext()
		routeCtx.URLParams.Add("productId", "bad")
		ctx := middleware.WithUserID(context.Background(), userID.String())
		ctx = context.WithValue(ctx, chi.RouteCtxKey, routeCtx)
		req = req.WithContext(ctx)
		rec := httptest.NewRecorder()
		RemoveCartItem(&stubCartService{}, logg).ServeHTTP(rec, req)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d", rec.Code)
		}
	})

	t.Run("missing line", func(t *testing.T) {
		stub := &stubCartService{removeErr: pkgerrors.New(pkgerrors.CodeNotFound, "cart item not found")}
		req := httptest.NewRequest(http.MethodDelete, "/api/v1/cart/items/"+productID.String(), nil)
		routeCtx := chi.NewRouteContext()
		routeCtx.URLParams.Add("productId", productID.String())
		ctx := middleware.WithUserID(context.Background(), userID.String())
		ctx = context.WithValue(ctx, chi.RouteCtxKey, routeCtx)
		req = req.WithContext(ctx)
		rec := httptest.NewRecorder()
		RemoveCartItem(stub, logg).ServeHTTP(rec, req)
		if rec.Code != http.StatusNotFound {
			t.Fatalf("expected 404, got %d", rec.Code)
		}
	})
}

type stubCartService struct {
	record       *models.CartRecord
	removeErr    error
	setProductID uuid.UUID
	setQuantity  int
}

func (s *stubCartService) GetOrCreate(ctx context.Context, userID uuid.UUID) (*models.CartRecord, error) {
	return s.record, nil
}

func (s *stubCartService) SetItem(ctx context.Context, userID, productID uuid.UUID, quantity int) (*models.CartRecord, error) {
	s.setProductID = productID
	s.setQuantity = quantity
	return s.record, nil
}

func (s *stubCartService) RemoveItem(ctx context.Context, userID, productID uuid.UUID) (*models.CartRecord, error) {
	if s.removeErr != nil {
		return nil, s.removeErr
	}
	return s.record, nil
}
