package cart

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	cartdto "github.com/furnique/furnique-backend/api/controllers/cart/dto"
	"github.com/furnique/furnique-backend/api/middleware"
	cartsvc "github.com/furnique/furnique-backend/internal/cart"
	"github.com/furnique/furnique-backend/pkg/auth"
	"github.com/furnique/furnique-backend/pkg/db/models"
	pkgerrors "github.com/furnique/furnique-backend/pkg/errors"
)

type stubCartService struct {
	snap       *cartsvc.Snapshot
	err        error
	customer   uuid.UUID
	lastAdd    cartsvc.AddItemInput
	removedSKU string
	cleared    bool
}

func (s *stubCartService) Get(_ context.Context, customerID uuid.UUID) (*cartsvc.Snapshot, error) {
	s.customer = customerID
	return s.snap, s.err
}

func (s *stubCartService) AddItem(_ context.Context, customerID uuid.UUID, input cartsvc.AddItemInput) (*cartsvc.Snapshot, error) {
	s.customer = customerID
	s.lastAdd = input
	return s.snap, s.err
}

func (s *stubCartService) RemoveItem(_ context.Context, customerID, _ uuid.UUID, sku string) (*cartsvc.Snapshot, error) {
	s.customer = customerID
	s.removedSKU = sku
	return s.snap, s.err
}

func (s *stubCartService) Clear(_ context.Context, customerID uuid.UUID) error {
	s.customer = customerID
	s.cleared = true
	return s.err
}

func withCustomer(req *http.Request, id uuid.UUID) *http.Request {
	return req.WithContext(middleware.WithActor(req.Context(), auth.CustomerActor(id)))
}

func sampleSnapshot(customerID uuid.UUID) *cartsvc.Snapshot {
	productID := uuid.New()
	return &cartsvc.Snapshot{
		CartID:     uuid.New(),
		CustomerID: customerID,
		Items: []cartsvc.Item{{
			ProductID: productID,
			SKU:       "OAK-CHAIR",
			Quantity:  2,
			Product:   models.Product{ID: productID, Name: "Oak chair"},
			Variant:   models.Variant{ProductID: productID, SKU: "OAK-CHAIR", Price: 1500, Quantity: 7},
		}},
		TotalAmount: 3000,
	}
}

func TestCartFetchSuccess(t *testing.T) {
	customerID := uuid.New()
	svc := &stubCartService{snap: sampleSnapshot(customerID)}
	req := withCustomer(httptest.NewRequest(http.MethodGet, "/api/v1/cart", nil), customerID)
	resp := httptest.NewRecorder()
	CartFetch(svc, nil).ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
	var envelope struct {
		Data cartdto.Cart `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if envelope.Data.TotalAmount != 3000 || len(envelope.Data.Items) != 1 {
		t.Fatalf("unexpected cart %+v", envelope.Data)
	}
	item := envelope.Data.Items[0]
	if item.Name != "Oak chair" || item.LineTotal != 3000 || item.InStock != 7 {
		t.Fatalf("unexpected item %+v", item)
	}
	if svc.customer != customerID {
		t.Fatalf("cart fetched for wrong customer")
	}
	if len(envelope.Data.Unavailable) != 0 {
		t.Fatalf("no unavailable lines expected, got %+v", envelope.Data.Unavailable)
	}
}

func TestCartFetchListsUnavailableLines(t *testing.T) {
	customerID := uuid.New()
	snap := sampleSnapshot(customerID)
	snap.Stale = []models.CartItem{{CartID: snap.CartID, ProductID: uuid.New(), SKU: "RETIRED-SOFA", Quantity: 1}}
	svc := &stubCartService{snap: snap}
	req := withCustomer(httptest.NewRequest(http.MethodGet, "/api/v1/cart", nil), customerID)
	resp := httptest.NewRecorder()
	CartFetch(svc, nil).ServeHTTP(resp, req)

	var envelope struct {
		Data cartdto.Cart `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(envelope.Data.Unavailable) != 1 || envelope.Data.Unavailable[0].SKU != "RETIRED-SOFA" {
		t.Fatalf("expected the retired line to be listed, got %+v", envelope.Data.Unavailable)
	}
	if envelope.Data.TotalAmount != 3000 {
		t.Fatalf("unavailable lines must not be priced, got %d", envelope.Data.TotalAmount)
	}
}

func TestCartFetchRequiresActor(t *testing.T) {
	resp := httptest.NewRecorder()
	CartFetch(&stubCartService{}, nil).ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/api/v1/cart", nil))
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 got %d", resp.Code)
	}
}

func TestCartAddItemValidatesBody(t *testing.T) {
	customerID := uuid.New()
	svc := &stubCartService{snap: sampleSnapshot(customerID)}

	body := `{"productId":"` + uuid.NewString() + `","sku":"OAK-CHAIR","quantity":0}`
	req := withCustomer(httptest.NewRequest(http.MethodPost, "/api/v1/cart/items", strings.NewReader(body)), customerID)
	resp := httptest.NewRecorder()
	CartAddItem(svc, nil).ServeHTTP(resp, req)
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", resp.Code)
	}

	body = `{"productId":"` + uuid.NewString() + `","sku":" OAK-CHAIR ","quantity":2}`
	req = withCustomer(httptest.NewRequest(http.MethodPost, "/api/v1/cart/items", strings.NewReader(body)), customerID)
	resp = httptest.NewRecorder()
	CartAddItem(svc, nil).ServeHTTP(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
	if svc.lastAdd.SKU != "OAK-CHAIR" || svc.lastAdd.Quantity != 2 {
		t.Fatalf("unexpected add input %+v", svc.lastAdd)
	}
}

func TestCartAddItemSurfacesStockErrors(t *testing.T) {
	customerID := uuid.New()
	svc := &stubCartService{err: pkgerrors.New(pkgerrors.CodeOrderItemsInvalid, "not enough stock")}
	body := `{"productId":"` + uuid.NewString() + `","sku":"OAK-CHAIR","quantity":50}`
	req := withCustomer(httptest.NewRequest(http.MethodPost, "/api/v1/cart/items", strings.NewReader(body)), customerID)
	resp := httptest.NewRecorder()
	CartAddItem(svc, nil).ServeHTTP(resp, req)
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", resp.Code)
	}
	if !strings.Contains(resp.Body.String(), "ORDER_ITEMS_INVALID") {
		t.Fatalf("expected error code in body, got %s", resp.Body.String())
	}
}

func TestCartRemoveItem(t *testing.T) {
	customerID := uuid.New()
	svc := &stubCartService{snap: &cartsvc.Snapshot{}}

	productID := uuid.New()
	req := withCustomer(httptest.NewRequest(http.MethodDelete, "/api/v1/cart/items/"+productID.String()+"?sku=OAK-CHAIR", nil), customerID)
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add("productId", productID.String())
	req = req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))

	resp := httptest.NewRecorder()
	CartRemoveItem(svc, nil).ServeHTTP(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", resp.Code, resp.Body.String())
	}
	if svc.removedSKU != "OAK-CHAIR" {
		t.Fatalf("unexpected sku %q", svc.removedSKU)
	}
}

func TestCartClear(t *testing.T) {
	customerID := uuid.New()
	svc := &stubCartService{}
	req := withCustomer(httptest.NewRequest(http.MethodDelete, "/api/v1/cart", nil), customerID)
	resp := httptest.NewRecorder()
	CartClear(svc, nil).ServeHTTP(resp, req)
	if resp.Code != http.StatusNoContent || !svc.cleared {
		t.Fatalf("expected cleared cart, got %d", resp.Code)
	}
}
