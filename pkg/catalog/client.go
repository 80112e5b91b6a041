package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	pkgerrors "github.com/identitywear/storefront-backend/pkg/errors"
)

const (
	defaultTimeout             = 10 * time.Second
	defaultQuantityFields      = "inventory_quantity"
	publishableKeyHeader       = "X-Publishable-Key"
	errorBodyReadLimit   int64 = 1024
)

var errBaseURLRequired = errors.New("catalog base url is required")

// Client reads products and inventory from the hosted store API.
type Client struct {
	httpClient     *http.Client
	baseURL        string
	publishableKey string
}

// Option configures optional client behavior.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithPublishableKey sends the store's publishable key on every request.
func WithPublishableKey(key string) Option {
	return func(c *Client) {
		c.publishableKey = strings.TrimSpace(key)
	}
}

// WithTimeout bounds every request when no custom HTTP client is supplied.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		if timeout > 0 {
			c.httpClient.Timeout = timeout
		}
	}
}

// NewClient builds the catalog client for the given base URL.
func NewClient(baseURL string, opts ...Option) (*Client, error) {
	trimmed := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if trimmed == "" {
		return nil, errBaseURLRequired
	}

	client := &Client{
		baseURL:    trimmed,
		httpClient: &http.Client{Timeout: defaultTimeout},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(client)
		}
	}
	return client, nil
}

// GetProducts lists one page of products in catalog order.
func (c *Client) GetProducts(ctx context.Context, req ProductsRequest) (*ProductsPage, error) {
	q := url.Values{}
	if req.Limit > 0 {
		q.Set("limit", strconv.Itoa(req.Limit))
	}
	if req.Offset > 0 {
		q.Set("offset", strconv.Itoa(req.Offset))
	}
	if s := strings.TrimSpace(req.Search); s != "" {
		q.Set("search", s)
	}

	var page ProductsPage
	if err := c.get(ctx, "products", q, &page); err != nil {
		return nil, err
	}
	if page.Products == nil {
		page.Products = []Product{}
	}
	return &page, nil
}

// GetProduct fetches one product. An unknown id is NOT_FOUND.
func (c *Client) GetProduct(ctx context.Context, id string) (*Product, error) {
	trimmed := strings.TrimSpace(id)
	if trimmed == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "product id is required")
	}

	var product Product
	if err := c.get(ctx, "products/"+url.PathEscape(trimmed), nil, &product); err != nil {
		return nil, err
	}
	return &product, nil
}

// GetProductQuantities returns live inventory for the variants of the given products.
func (c *Client) GetProductQuantities(ctx context.Context, req QuantitiesRequest) (*QuantitiesResponse, error) {
	if len(req.ProductIDs) == 0 {
		return &QuantitiesResponse{Variants: []VariantQuantity{}}, nil
	}
	fields := strings.TrimSpace(req.Fields)
	if fields == "" {
		fields = defaultQuantityFields
	}
	q := url.Values{}
	q.Set("fields", fields)
	q.Set("product_ids", strings.Join(req.ProductIDs, ","))

	var resp QuantitiesResponse
	if err := c.get(ctx, "products/quantities", q, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) get(ctx context.Context, path string, query url.Values, out any) error {
	if c == nil {
		return pkgerrors.New(pkgerrors.CodeDependency, "catalog client not configured")
	}
	endpoint := c.buildURL(path)
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "build catalog request")
	}
	httpReq.Header.Set("Accept", "application/json")
	if c.publishableKey != "" {
		httpReq.Header.Set(publishableKeyHeader, c.publishableKey)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "execute catalog request")
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusNotFound {
		return pkgerrors.New(pkgerrors.CodeNotFound, "product not found")
	}
	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, errorBodyReadLimit))
		return pkgerrors.Wrap(pkgerrors.CodeDependency, fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg))), "catalog request failed")
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode catalog response")
	}
	return nil
}

func (c *Client) buildURL(path string) string {
	return fmt.Sprintf("%s/%s", c.baseURL, strings.TrimLeft(path, "/"))
}
