package orders

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/identitywear/storefront-backend/api/middleware"
	internalorders "github.com/identitywear/storefront-backend/internal/orders"
	"github.com/identitywear/storefront-backend/pkg/enums"
	pkgerrors "github.com/identitywear/storefront-backend/pkg/errors"
	"github.com/identitywear/storefront-backend/pkg/pagination"
)

type stubOrdersService struct {
	internalorders.Service

	listParams pagination.Params
	listUser   uuid.UUID
	requester  *uuid.UUID
	getErr     error
}

func (s *stubOrdersService) ListForUser(ctx context.Context, userID uuid.UUID, params pagination.Params) (internalorders.OrderPage, error) {
	s.listUser = userID
	s.listParams = params
	return internalorders.OrderPage{Orders: []internalorders.OrderDTO{{ID: uuid.New(), Status: enums.OrderStatusPaid}}, NextCursor: "next"}, nil
}

func (s *stubOrdersService) Get(ctx context.Context, orderID uuid.UUID, requester *uuid.UUID) (*internalorders.OrderDTO, error) {
	s.requester = requester
	if s.getErr != nil {
		return nil, s.getErr
	}
	return &internalorders.OrderDTO{ID: orderID, Status: enums.OrderStatusPending}, nil
}

func newRouter(svc internalorders.Service) http.Handler {
	r := chi.NewRouter()
	r.Get("/orders", List(svc, nil))
	r.Get("/orders/{orderId}", Detail(svc, nil))
	return r
}

func TestListRequiresUser(t *testing.T) {
	rec := httptest.NewRecorder()
	newRouter(&stubOrdersService{}).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/orders", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 got %d", rec.Code)
	}
}

func TestListPassesPagination(t *testing.T) {
	svc := &stubOrdersService{}
	userID := uuid.New()
	req := httptest.NewRequest(http.MethodGet, "/orders?limit=10&cursor=abc", nil)
	req = req.WithContext(middleware.WithUserID(req.Context(), userID.String()))
	rec := httptest.NewRecorder()
	newRouter(svc).ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d (%s)", rec.Code, rec.Body.String())
	}
	if svc.listUser != userID || svc.listParams.Limit != 10 || svc.listParams.Cursor != "abc" {
		t.Fatalf("unexpected call user=%s params=%+v", svc.listUser, svc.listParams)
	}

	var envelope struct {
		Data internalorders.OrderPage `json:"data"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&envelope); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(envelope.Data.Orders) != 1 || envelope.Data.NextCursor != "next" {
		t.Fatalf("unexpected page %+v", envelope.Data)
	}
}

func TestListRejectsBadLimit(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/orders?limit=1000", nil)
	req = req.WithContext(middleware.WithUserID(req.Context(), uuid.NewString()))
	rec := httptest.NewRecorder()
	newRouter(&stubOrdersService{}).ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", rec.Code)
	}
}

func TestDetailGuestAndOwner(t *testing.T) {
	svc := &stubOrdersService{}
	orderID := uuid.New()

	rec := httptest.NewRecorder()
	newRouter(svc).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/orders/"+orderID.String(), nil))
	if rec.Code != http.StatusOK || svc.requester != nil {
		t.Fatalf("guest lookup failed code=%d requester=%v", rec.Code, svc.requester)
	}

	userID := uuid.New()
	req := httptest.NewRequest(http.MethodGet, "/orders/"+orderID.String(), nil)
	req = req.WithContext(middleware.WithUserID(req.Context(), userID.String()))
	rec = httptest.NewRecorder()
	newRouter(svc).ServeHTTP(rec, req)
	if rec.Code != http.StatusOK || svc.requester == nil || *svc.requester != userID {
		t.Fatalf("owner lookup failed code=%d requester=%v", rec.Code, svc.requester)
	}
}

func TestDetailErrors(t *testing.T) {
	rec := httptest.NewRecorder()
	newRouter(&stubOrdersService{}).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/orders/not-a-uuid", nil))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", rec.Code)
	}

	svc := &stubOrdersService{getErr: pkgerrors.New(pkgerrors.CodeNotFound, "order not found")}
	rec = httptest.NewRecorder()
	newRouter(svc).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/orders/"+uuid.NewString(), nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 got %d", rec.Code)
	}
}
