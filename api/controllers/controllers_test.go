package controllers

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/identitywear/storefront-backend/api/middleware"
	"github.com/identitywear/storefront-backend/internal/auth"
	"github.com/identitywear/storefront-backend/internal/cart"
	"github.com/identitywear/storefront-backend/internal/products"
	"github.com/identitywear/storefront-backend/internal/wishlist"
	pkgerrors "github.com/identitywear/storefront-backend/pkg/errors"
)

type stubProducts struct {
	params products.ListParams
	detail string
}

func (s *stubProducts) List(ctx context.Context, params products.ListParams) (*products.ListResult, error) {
	s.params = params
	return &products.ListResult{Page: params.Page}, nil
}

func (s *stubProducts) Detail(ctx context.Context, id string) (*products.ProductDTO, error) {
	s.detail = id
	if id == "missing" {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "product not found")
	}
	return &products.ProductDTO{ID: id}, nil
}

func (s *stubProducts) Resolve(ctx context.Context, productID, variantID string) (cart.Product, cart.Variant, error) {
	return cart.Product{}, cart.Variant{}, nil
}

func TestProductsListParsesQuery(t *testing.T) {
	svc := &stubProducts{}
	req := httptest.NewRequest(http.MethodGet, "/products?page=2&search=%20hoodie%20&on_sale=true&in_stock=1&min_price=10000&max_price=50000&sort=price_asc", nil)
	rec := httptest.NewRecorder()
	ProductsList(svc, nil).ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d (%s)", rec.Code, rec.Body.String())
	}
	p := svc.params
	if p.Page != 2 || p.Search != "hoodie" || !p.OnSaleOnly || !p.InStockOnly || p.Sort != products.SortPriceAsc {
		t.Fatalf("unexpected params %+v", p)
	}
	if p.MinPriceCents == nil || *p.MinPriceCents != 10000 || p.MaxPriceCents == nil || *p.MaxPriceCents != 50000 {
		t.Fatalf("unexpected price range %+v", p)
	}
}

func TestProductsListDefaultsAndErrors(t *testing.T) {
	svc := &stubProducts{}
	rec := httptest.NewRecorder()
	ProductsList(svc, nil).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/products", nil))
	if rec.Code != http.StatusOK || svc.params.Page != 1 || svc.params.Sort != products.SortNewest {
		t.Fatalf("unexpected defaults code=%d params=%+v", rec.Code, svc.params)
	}

	for _, query := range []string{"page=0", "on_sale=maybe", "min_price=-1", "max_price=abc"} {
		rec = httptest.NewRecorder()
		ProductsList(svc, nil).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/products?"+query, nil))
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("%s: expected 400 got %d", query, rec.Code)
		}
	}
}

func TestProductDetail(t *testing.T) {
	svc := &stubProducts{}
	r := chi.NewRouter()
	r.Get("/products/{productId}", ProductDetail(svc, nil))

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/products/prod_1", nil))
	if rec.Code != http.StatusOK || svc.detail != "prod_1" {
		t.Fatalf("unexpected detail code=%d id=%q", rec.Code, svc.detail)
	}

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/products/missing", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 got %d", rec.Code)
	}
}

type stubWishlist struct {
	user    *uuid.UUID
	added   wishlist.AddInput
	removed string
}

func (s *stubWishlist) List(ctx context.Context, userID *uuid.UUID) ([]wishlist.ItemDTO, error) {
	s.user = userID
	if userID == nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "sign in to use the wishlist")
	}
	return []wishlist.ItemDTO{{ProductID: "prod_1"}}, nil
}

func (s *stubWishlist) Contains(ctx context.Context, userID *uuid.UUID, productID string) (bool, error) {
	s.user = userID
	return productID == "prod_1", nil
}

func (s *stubWishlist) Add(ctx context.Context, userID *uuid.UUID, input wishlist.AddInput) (wishlist.ItemDTO, error) {
	s.user = userID
	s.added = input
	return wishlist.ItemDTO{ProductID: input.ProductID, ProductName: input.ProductName}, nil
}

func (s *stubWishlist) Remove(ctx context.Context, userID *uuid.UUID, productID string) error {
	s.user = userID
	s.removed = productID
	return nil
}

func withUser(req *http.Request, id uuid.UUID) *http.Request {
	return req.WithContext(middleware.WithUserID(req.Context(), id.String()))
}

func TestWishlistRoutes(t *testing.T) {
	svc := &stubWishlist{}
	userID := uuid.New()
	r := chi.NewRouter()
	r.Get("/wishlist", WishlistList(svc, nil))
	r.Get("/wishlist/{productId}", WishlistContains(svc, nil))
	r.Post("/wishlist", WishlistAdd(svc, nil))
	r.Delete("/wishlist/{productId}", WishlistRemove(svc, nil))

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/wishlist", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("guest list expected 401 got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, withUser(httptest.NewRequest(http.MethodGet, "/wishlist", nil), userID))
	if rec.Code != http.StatusOK || svc.user == nil || *svc.user != userID {
		t.Fatalf("list failed code=%d", rec.Code)
	}

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, withUser(httptest.NewRequest(http.MethodGet, "/wishlist/prod_1", nil), userID))
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"liked":true`) {
		t.Fatalf("contains failed code=%d body=%s", rec.Code, rec.Body.String())
	}

	body := `{"product_id":"prod_2","product_name":"Hoodie","product_image":"https://cdn.example/h.png","product_price":79900}`
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, withUser(httptest.NewRequest(http.MethodPost, "/wishlist", strings.NewReader(body)), userID))
	if rec.Code != http.StatusCreated || svc.added.ProductPrice != 79900 {
		t.Fatalf("add failed code=%d input=%+v", rec.Code, svc.added)
	}

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, withUser(httptest.NewRequest(http.MethodPost, "/wishlist", strings.NewReader(`{"product_id":"prod_2"}`)), userID))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("missing product name expected 400 got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, withUser(httptest.NewRequest(http.MethodDelete, "/wishlist/prod_2", nil), userID))
	if rec.Code != http.StatusNoContent || svc.removed != "prod_2" {
		t.Fatalf("remove failed code=%d removed=%q", rec.Code, svc.removed)
	}
}

type stubAuth struct {
	signUp     auth.SignUpRequest
	signOutTok string
	signOutSID string
	signOutExp time.Time
	err        error
}

func (s *stubAuth) SignUp(ctx context.Context, req auth.SignUpRequest) (*auth.SessionResponse, error) {
	s.signUp = req
	return &auth.SessionResponse{ConfirmationRequired: true}, s.err
}

func (s *stubAuth) SignIn(ctx context.Context, req auth.SignInRequest) (*auth.SessionResponse, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &auth.SessionResponse{AccessToken: "access", RefreshToken: "refresh"}, nil
}

func (s *stubAuth) Refresh(ctx context.Context, req auth.RefreshRequest) (*auth.SessionResponse, error) {
	return &auth.SessionResponse{AccessToken: "access-2"}, s.err
}

func (s *stubAuth) SignOut(ctx context.Context, accessToken, sessionID string, expiresAt time.Time) error {
	s.signOutTok = accessToken
	s.signOutSID = sessionID
	s.signOutExp = expiresAt
	return s.err
}

func TestAuthSignUpAndLogin(t *testing.T) {
	svc := &stubAuth{}
	rec := httptest.NewRecorder()
	AuthSignUp(svc, nil).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/auth/signup",
		strings.NewReader(`{"email":"kari@example.no","password":"hemmelig","full_name":"Kari Nordmann"}`)))
	if rec.Code != http.StatusCreated || svc.signUp.FullName != "Kari Nordmann" {
		t.Fatalf("signup failed code=%d req=%+v", rec.Code, svc.signUp)
	}

	rec = httptest.NewRecorder()
	AuthSignUp(svc, nil).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/auth/signup",
		strings.NewReader(`{"email":"kari@example.no","password":"123"}`)))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("short password expected 400 got %d", rec.Code)
	}

	svc.err = pkgerrors.New(pkgerrors.CodeUnauthorized, "invalid credentials")
	rec = httptest.NewRecorder()
	AuthLogin(svc, nil).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/auth/login",
		strings.NewReader(`{"email":"kari@example.no","password":"feil"}`)))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("bad credentials expected 401 got %d", rec.Code)
	}
}

func TestAuthLogoutUsesContextSession(t *testing.T) {
	svc := &stubAuth{}
	expiry := time.Now().Add(time.Hour).Truncate(time.Second)

	rec := httptest.NewRecorder()
	AuthLogout(svc, nil).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/auth/logout", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("logout without token expected 401 got %d", rec.Code)
	}

	req := httptest.NewRequest(http.MethodPost, "/auth/logout", nil)
	req = req.WithContext(middleware.WithAccessSession(req.Context(), "token-1", "sess-1", expiry))
	rec = httptest.NewRecorder()
	AuthLogout(svc, nil).ServeHTTP(rec, req)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204 got %d", rec.Code)
	}
	if svc.signOutTok != "token-1" || svc.signOutSID != "sess-1" || !svc.signOutExp.Equal(expiry) {
		t.Fatalf("unexpected sign out args %q %q %v", svc.signOutTok, svc.signOutSID, svc.signOutExp)
	}
}

type stubPinger struct{ err error }

func (s stubPinger) Ping(ctx context.Context) error { return s.err }

func TestHealthReady(t *testing.T) {
	rec := httptest.NewRecorder()
	HealthReady("test", map[string]Pinger{"db": stubPinger{}, "redis": stubPinger{}}, nil).
		ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	HealthReady("test", map[string]Pinger{"db": stubPinger{}, "redis": stubPinger{err: errors.New("down")}}, nil).
		ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	if rec.Code != http.StatusServiceUnavailable || !strings.Contains(rec.Body.String(), "redis") {
		t.Fatalf("expected 503 naming redis, got %d %s", rec.Code, rec.Body.String())
	}
	if rec.Header().Get("X-Storefront-Env") != "test" {
		t.Fatalf("missing env header")
	}
}
