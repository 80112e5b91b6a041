package products

import (
	"context"
	"sort"
	"strings"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	"github.com/identitywear/storefront-backend/internal/cart"
	"github.com/identitywear/storefront-backend/pkg/catalog"
	"github.com/identitywear/storefront-backend/pkg/currency"
	pkgerrors "github.com/identitywear/storefront-backend/pkg/errors"
	"github.com/identitywear/storefront-backend/pkg/logger"
)

const (
	PageSize      = 12
	InitialOffset = 8
)

type catalogClient interface {
	GetProducts(ctx context.Context, req catalog.ProductsRequest) (*catalog.ProductsPage, error)
	GetProduct(ctx context.Context, id string) (*catalog.Product, error)
	GetProductQuantities(ctx context.Context, req catalog.QuantitiesRequest) (*catalog.QuantitiesResponse, error)
}

// Service serves the storefront catalog with live inventory.
type Service interface {
	List(ctx context.Context, params ListParams) (*ListResult, error)
	Detail(ctx context.Context, id string) (*ProductDTO, error)
	// Resolve returns the cart snapshot of a variant together with its live stock.
	Resolve(ctx context.Context, productID, variantID string) (cart.Product, cart.Variant, error)
}

type ServiceParams struct {
	Catalog   catalogClient
	Formatter currency.Formatter
	Language  language.Tag
	Logger    *logger.Logger
}

type service struct {
	catalog   catalogClient
	formatter currency.Formatter
	lang      language.Tag
	logg      *logger.Logger
}

// NewService wires the catalog service.
func NewService(params ServiceParams) (Service, error) {
	if params.Catalog == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "catalog client required")
	}
	lang := params.Language
	if lang == language.Und {
		lang = language.Norwegian
	}
	return &service{
		catalog:   params.Catalog,
		formatter: params.Formatter,
		lang:      lang,
		logg:      params.Logger,
	}, nil
}

// List fetches one catalog page, merges live quantities and then filters and
// sorts that page in memory.
func (s *service) List(ctx context.Context, params ListParams) (*ListResult, error) {
	page := params.Page
	if page < 1 {
		page = 1
	}
	order := params.Sort
	if order == "" {
		order = SortNewest
	}
	if !order.Valid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "unknown sort order").WithDetails(map[string]any{"sort": string(order)})
	}
	if params.MinPriceCents != nil && params.MaxPriceCents != nil && *params.MinPriceCents > *params.MaxPriceCents {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "min price must not exceed max price")
	}

	resp, err := s.catalog.GetProducts(ctx, catalog.ProductsRequest{
		Limit:  PageSize,
		Offset: InitialOffset + (page-1)*PageSize,
		Search: params.Search,
	})
	if err != nil {
		return nil, err
	}
	result := &ListResult{Products: []ProductDTO{}, Page: page, HasMore: len(resp.Products) >= PageSize}
	if len(resp.Products) == 0 {
		return result, nil
	}

	items, err := s.withQuantities(ctx, resp.Products)
	if err != nil {
		return nil, err
	}

	items = filterProducts(items, params)
	s.sortProducts(items, order)

	for _, p := range items {
		result.Products = append(result.Products, toDTO(p, s.formatter))
	}
	return result, nil
}

func (s *service) Detail(ctx context.Context, id string) (*ProductDTO, error) {
	product, err := s.fresh(ctx, id)
	if err != nil {
		return nil, err
	}
	dto := toDTO(*product, s.formatter)
	return &dto, nil
}

func (s *service) Resolve(ctx context.Context, productID, variantID string) (cart.Product, cart.Variant, error) {
	product, err := s.fresh(ctx, productID)
	if err != nil {
		return cart.Product{}, cart.Variant{}, err
	}
	if !product.Purchasable {
		return cart.Product{}, cart.Variant{}, pkgerrors.New(pkgerrors.CodeValidation, "product is not purchasable")
	}
	for _, v := range product.Variants {
		if v.ID == variantID {
			return toCartProduct(*product), toCartVariant(v), nil
		}
	}
	return cart.Product{}, cart.Variant{}, pkgerrors.New(pkgerrors.CodeNotFound, "variant not found").
		WithDetails(map[string]any{"product_id": productID, "variant_id": variantID})
}

func (s *service) fresh(ctx context.Context, id string) (*catalog.Product, error) {
	product, err := s.catalog.GetProduct(ctx, id)
	if err != nil {
		return nil, err
	}
	merged, err := s.withQuantities(ctx, []catalog.Product{*product})
	if err != nil {
		return nil, err
	}
	return &merged[0], nil
}

// withQuantities overwrites variant stock with the live values. Variants the
// inventory service does not know keep their catalog quantity.
func (s *service) withQuantities(ctx context.Context, items []catalog.Product) ([]catalog.Product, error) {
	ids := make([]string, 0, len(items))
	for _, p := range items {
		ids = append(ids, p.ID)
	}
	resp, err := s.catalog.GetProductQuantities(ctx, catalog.QuantitiesRequest{Fields: "inventory_quantity", ProductIDs: ids})
	if err != nil {
		if s.logg != nil {
			s.logg.Error(s.logg.WithField(ctx, "product_count", len(ids)), "products.quantities_failed", err)
		}
		return nil, err
	}
	quantities := resp.QuantityMap()

	out := make([]catalog.Product, len(items))
	for i, p := range items {
		variants := make([]catalog.Variant, len(p.Variants))
		for j, v := range p.Variants {
			if qty, ok := quantities[v.ID]; ok {
				v.InventoryQuantity = qty
			}
			variants[j] = v
		}
		p.Variants = variants
		out[i] = p
	}
	return out, nil
}

func filterProducts(items []catalog.Product, params ListParams) []catalog.Product {
	term := strings.ToLower(strings.TrimSpace(params.Search))
	out := items[:0]
	for _, p := range items {
		if term != "" && !matchesTerm(p, term) {
			continue
		}
		if params.OnSaleOnly && !onSale(p) {
			continue
		}
		if params.InStockOnly && !inStock(p) {
			continue
		}
		if params.MinPriceCents != nil || params.MaxPriceCents != nil {
			price, ok := displayPrice(p)
			if !ok {
				continue
			}
			if params.MinPriceCents != nil && price < *params.MinPriceCents {
				continue
			}
			if params.MaxPriceCents != nil && price > *params.MaxPriceCents {
				continue
			}
		}
		out = append(out, p)
	}
	return out
}

func matchesTerm(p catalog.Product, term string) bool {
	return strings.Contains(strings.ToLower(p.Title), term) ||
		strings.Contains(strings.ToLower(p.Subtitle), term) ||
		strings.Contains(strings.ToLower(p.Description), term)
}

func onSale(p catalog.Product) bool {
	for _, v := range p.Variants {
		if toCartVariant(v).OnSale() {
			return true
		}
	}
	return false
}

func inStock(p catalog.Product) bool {
	for _, v := range p.Variants {
		if !v.ManageInventory || v.InventoryQuantity > 0 {
			return true
		}
	}
	return false
}

// sortProducts orders in place. Newest keeps catalog order.
func (s *service) sortProducts(items []catalog.Product, order SortOrder) {
	price := func(p catalog.Product) int64 {
		v, _ := displayPrice(p)
		return v
	}
	switch order {
	case SortPriceAsc:
		sort.SliceStable(items, func(i, j int) bool { return price(items[i]) < price(items[j]) })
	case SortPriceDesc:
		sort.SliceStable(items, func(i, j int) bool { return price(items[i]) > price(items[j]) })
	case SortTitleAsc:
		// collators keep internal buffers, one per call
		col := collate.New(s.lang, collate.IgnoreCase)
		sort.SliceStable(items, func(i, j int) bool {
			return col.CompareString(items[i].Title, items[j].Title) < 0
		})
	}
}
