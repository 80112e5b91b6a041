package controllers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/identitywear/storefront-backend/api/responses"
	"github.com/identitywear/storefront-backend/api/validators"
	"github.com/identitywear/storefront-backend/internal/products"
	pkgerrors "github.com/identitywear/storefront-backend/pkg/errors"
	"github.com/identitywear/storefront-backend/pkg/logger"
)

const maxSearchLength = 100

// ProductsList serves one catalog page with optional in-memory filters.
func ProductsList(svc products.Service, logg *logger.Logger) http.HandlerFunc {
	if svc == nil {
		return unavailable("product", logg)
	}
	return func(w http.ResponseWriter, r *http.Request) {
		params, err := parseListParams(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.List(r.Context(), params)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

// ProductDetail returns a single product with live stock.
func ProductDetail(svc products.Service, logg *logger.Logger) http.HandlerFunc {
	if svc == nil {
		return unavailable("product", logg)
	}
	return func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(chi.URLParam(r, "productId"))
		if id == "" {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "product id is required"))
			return
		}

		product, err := svc.Detail(r.Context(), id)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, product)
	}
}

func parseListParams(r *http.Request) (products.ListParams, error) {
	query := r.URL.Query()

	page, err := validators.ParseQueryInt(r, "page", 1, 1, 1000)
	if err != nil {
		return products.ListParams{}, err
	}

	params := products.ListParams{
		Page:   page,
		Search: validators.SanitizeString(query.Get("search"), maxSearchLength),
		Sort:   products.SortOrder(strings.TrimSpace(query.Get("sort"))),
	}
	if params.Sort == "" {
		params.Sort = products.SortNewest
	}

	if params.OnSaleOnly, err = validators.ParseQueryBool(r, "on_sale"); err != nil {
		return products.ListParams{}, err
	}
	if params.InStockOnly, err = validators.ParseQueryBool(r, "in_stock"); err != nil {
		return products.ListParams{}, err
	}
	if params.MinPriceCents, err = validators.ParseQueryCents(r, "min_price"); err != nil {
		return products.ListParams{}, err
	}
	if params.MaxPriceCents, err = validators.ParseQueryCents(r, "max_price"); err != nil {
		return products.ListParams{}, err
	}
	return params, nil
}
