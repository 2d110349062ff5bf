package woocommerce

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/dunglas/httpsfv"
	"golang.org/x/mod/semver"

	"costplus/internal/adapter"
	"costplus/internal/model"
	"costplus/internal/paging"
	"costplus/internal/transport"
)

// restAPIPath is the base path for WooCommerce REST API v3 endpoints.
// Must include /wp-json prefix for proper routing.
const restAPIPath = "/wp-json/wc/v3"

// MinimumVersion is the oldest WooCommerce release serving REST v3.
const MinimumVersion = "3.5.0"

// userAgent identifies this client to upstream servers.
// Required: WooCommerce CDN/WAF rate-limits requests without User-Agent.
const userAgent = "costplus/1.0"

// Config holds WooCommerce client configuration.
type Config struct {
	StoreURL       string
	ConsumerKey    string
	ConsumerSecret string

	// Transport overrides the default Chrome-fingerprint transport.
	Transport http.RoundTripper
	Timeout   time.Duration // Default: 30s
	PageSize  int           // Default: paging.DefaultPageSize
	Logger    *slog.Logger
}

// Client implements adapter.Catalog for WooCommerce stores using REST API v3.
// Every request carries a Basic auth header computed once in New.
type Client struct {
	httpClient *http.Client
	storeURL   string
	authHeader string
	pageSize   int
	logger     *slog.Logger
}

var _ adapter.Catalog = (*Client)(nil)

// New creates a WooCommerce client with the given configuration.
// Missing credentials are reported as *model.ConfigError before any request.
func New(cfg Config) (*Client, error) {
	if cfg.StoreURL == "" {
		return nil, model.NewConfigError("WOOCOMMERCE_REST_URL", "is required")
	}
	if cfg.ConsumerKey == "" {
		return nil, model.NewConfigError("WOOCOMMERCE_CONSUMER_KEY", "is required")
	}
	if cfg.ConsumerSecret == "" {
		return nil, model.NewConfigError("WOOCOMMERCE_CONSUMER_SECRET", "is required")
	}

	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	rt := cfg.Transport
	if rt == nil {
		// Chrome TLS fingerprint avoids JA3-based rate limiting.
		// See internal/transport for rationale.
		rt = transport.NewChromeTransport(timeout)
	}
	pageSize := cfg.PageSize
	if pageSize <= 0 {
		pageSize = paging.DefaultPageSize
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	creds := base64.StdEncoding.EncodeToString([]byte(cfg.ConsumerKey + ":" + cfg.ConsumerSecret))
	return &Client{
		httpClient: &http.Client{Timeout: timeout, Transport: rt},
		storeURL:   strings.TrimRight(cfg.StoreURL, "/"),
		authHeader: "Basic " + creds,
		pageSize:   pageSize,
		logger:     logger,
	}, nil
}

// =============================================================================
// PAGINATED READS
// =============================================================================

// FetchPage fetches one page of a list endpoint such as /products or
// /products/42/variations. Pages are 1-based.
func (c *Client) FetchPage(ctx context.Context, resourcePath string, page, pageSize int) ([]WooProduct, error) {
	q := url.Values{}
	q.Set("per_page", strconv.Itoa(pageSize))
	q.Set("page", strconv.Itoa(page))
	q.Set("status", "any")

	var body json.RawMessage
	header, err := c.doRequest(ctx, http.MethodGet, resourcePath, q, nil, &body)
	if err != nil {
		return nil, err
	}

	// A body that is not an array ends pagination.
	body = bytes.TrimSpace(body)
	if len(body) == 0 || body[0] != '[' {
		c.logger.Warn("list response is not an array, stopping pagination",
			"resource", resourcePath,
			"page", page,
		)
		return nil, nil
	}
	var items []WooProduct
	if err := json.Unmarshal(body, &items); err != nil {
		return nil, model.NewUpstreamError("WooCommerce", fmt.Errorf("decoding %s page %d: %w", resourcePath, page, err))
	}

	if info, ok := parsePageInfo(header); ok {
		c.logger.Debug("fetched page",
			"resource", resourcePath,
			"page", page,
			"items", len(items),
			"total", info.Total,
			"total_pages", info.TotalPages,
		)
	}
	return items, nil
}

// FetchAll walks every page of resourcePath in order.
// Stops on the first short or empty page.
func (c *Client) FetchAll(ctx context.Context, resourcePath string) ([]WooProduct, error) {
	src := paging.SourceFunc[WooProduct](func(ctx context.Context, page, size int) ([]WooProduct, error) {
		return c.FetchPage(ctx, resourcePath, page, size)
	})
	return paging.FetchAll[WooProduct](ctx, src, c.pageSize)
}

// ListProducts returns every product in the store, any status.
func (c *Client) ListProducts(ctx context.Context) ([]model.CatalogItem, error) {
	products, err := c.FetchAll(ctx, "/products")
	if err != nil {
		return nil, fmt.Errorf("listing products: %w", err)
	}
	items := make([]model.CatalogItem, 0, len(products))
	for _, p := range products {
		items = append(items, ToCatalogItem(p, false))
	}
	return items, nil
}

// ListVariations returns every variation of a variable product.
func (c *Client) ListVariations(ctx context.Context, productID int64) ([]model.CatalogItem, error) {
	variations, err := c.FetchAll(ctx, fmt.Sprintf("/products/%d/variations", productID))
	if err != nil {
		return nil, err
	}
	items := make([]model.CatalogItem, 0, len(variations))
	for _, v := range variations {
		item := ToCatalogItem(v, true)
		if item.ParentID == 0 {
			item.ParentID = productID
		}
		items = append(items, item)
	}
	return items, nil
}

// =============================================================================
// META WRITES
// =============================================================================

// UpdateProductMeta writes meta_data entries on a product.
// Entries with an EntryID update in place; others are inserted.
func (c *Client) UpdateProductMeta(ctx context.Context, productID int64, entries []model.MetadataEntry) error {
	path := fmt.Sprintf("/products/%d", productID)
	_, err := c.doRequest(ctx, http.MethodPut, path, nil, toMetaUpdateRequest(entries), nil)
	return err
}

// UpdateVariationMeta writes meta_data entries on a variation.
func (c *Client) UpdateVariationMeta(ctx context.Context, parentID, variationID int64, entries []model.MetadataEntry) error {
	path := fmt.Sprintf("/products/%d/variations/%d", parentID, variationID)
	_, err := c.doRequest(ctx, http.MethodPut, path, nil, toMetaUpdateRequest(entries), nil)
	return err
}

// UpdateMeta routes a write to the product or variation endpoint.
func (c *Client) UpdateMeta(ctx context.Context, item model.CatalogItem, entries []model.MetadataEntry) error {
	if item.Kind == model.KindVariation {
		return c.UpdateVariationMeta(ctx, item.ParentID, item.ID, entries)
	}
	return c.UpdateProductMeta(ctx, item.ID, entries)
}

// =============================================================================
// STORE DIAGNOSTICS
// =============================================================================

// StoreVersion returns the WooCommerce version reported by /system_status.
// Requires a key with read access to system status.
func (c *Client) StoreVersion(ctx context.Context) (string, error) {
	var status WooSystemStatus
	if _, err := c.doRequest(ctx, http.MethodGet, "/system_status", nil, nil, &status); err != nil {
		return "", err
	}
	return status.Environment.Version, nil
}

// CountProducts asks for a single product and reads the total from the
// X-WP-Total headers. ok is false when the store omits them.
func (c *Client) CountProducts(ctx context.Context) (info PageInfo, ok bool, err error) {
	q := url.Values{}
	q.Set("per_page", "1")
	q.Set("status", "any")

	var items []WooProduct
	header, err := c.doRequest(ctx, http.MethodGet, "/products", q, nil, &items)
	if err != nil {
		return PageInfo{}, false, err
	}
	info, ok = parsePageInfo(header)
	return info, ok, nil
}

// CheckMinimumVersion reports an error when version is older than minimum.
// Versions are compared as semver; "8.2" is read as "8.2.0".
func CheckMinimumVersion(version, minimum string) error {
	v := normalizeVersion(version)
	m := normalizeVersion(minimum)
	if !semver.IsValid(v) {
		return fmt.Errorf("unrecognized WooCommerce version %q", version)
	}
	if !semver.IsValid(m) {
		return fmt.Errorf("invalid minimum version %q", minimum)
	}
	if semver.Compare(v, m) < 0 {
		return fmt.Errorf("WooCommerce %s is older than required %s", version, minimum)
	}
	return nil
}

func normalizeVersion(v string) string {
	v = strings.TrimSpace(v)
	if v == "" {
		return "v0.0.0"
	}
	if v[0] != 'v' {
		return "v" + v
	}
	return v
}

// PageInfo holds the pagination hints WordPress sends with list responses.
type PageInfo struct {
	Total      int64
	TotalPages int64
}

// parsePageInfo reads X-WP-Total and X-WP-TotalPages as RFC 8941 integer
// items. The hints are informational; termination never depends on them.
func parsePageInfo(h http.Header) (PageInfo, bool) {
	total, okTotal := headerInt(h, "X-WP-Total")
	pages, okPages := headerInt(h, "X-WP-TotalPages")
	if !okTotal && !okPages {
		return PageInfo{}, false
	}
	return PageInfo{Total: total, TotalPages: pages}, true
}

func headerInt(h http.Header, name string) (int64, bool) {
	values := h.Values(name)
	if len(values) == 0 {
		return 0, false
	}
	item, err := httpsfv.UnmarshalItem(values)
	if err != nil {
		return 0, false
	}
	n, ok := item.Value.(int64)
	return n, ok
}

// =============================================================================
// HTTP PLUMBING
// =============================================================================

// doRequest sends one REST request and decodes a 2xx body into out.
// Non-2xx responses become *model.APIError with the store's message.
func (c *Client) doRequest(ctx context.Context, method, path string, query url.Values, body, out any) (http.Header, error) {
	var bodyReader io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshaling request: %w", err)
		}
		bodyReader = bytes.NewReader(jsonBody)
	}

	u := c.storeURL + restAPIPath + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, u, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	c.setHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, model.NewUpstreamError("WooCommerce", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, model.NewUpstreamError("WooCommerce", fmt.Errorf("reading response: %w", err))
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, c.parseErrorResponse(resp.StatusCode, respBody)
	}

	if out != nil && len(bytes.TrimSpace(respBody)) > 0 {
		if err := json.Unmarshal(respBody, out); err != nil {
			return nil, model.NewUpstreamError("WooCommerce", fmt.Errorf("parsing response: %w", err))
		}
	}
	return resp.Header, nil
}

// setHeaders sets headers for WooCommerce REST API requests.
func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Authorization", c.authHeader)
}

// parseErrorResponse converts a WooCommerce error body to *model.APIError.
func (c *Client) parseErrorResponse(statusCode int, body []byte) error {
	code, message := errorMessage(body)
	return model.NewStatusError(statusCode, code, message)
}
