package nuvemshop

import (
	"bytes"
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

	"github.com/adega-digital/vinicola-backend/pkg/config"
	"github.com/adega-digital/vinicola-backend/pkg/enums"
	pkgerrors "github.com/adega-digital/vinicola-backend/pkg/errors"
)

const errorBodyReadLimit int64 = 2048

var (
	errStoreIDRequired     = errors.New("nuvemshop store id is required")
	errTokenSourceRequired = errors.New("nuvemshop token source is required")
)

// Client wraps the storefront REST API for one store.
type Client struct {
	httpClient *http.Client
	baseURL    string
	userAgent  string
	tokens     TokenSource
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

// WithBaseURL overrides the API base URL (store id is appended by NewClient).
func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		trimmed := strings.TrimSpace(baseURL)
		if trimmed != "" {
			c.baseURL = trimmed
		}
	}
}

// NewClient builds the storefront client for the configured store.
func NewClient(cfg config.NuvemshopConfig, tokens TokenSource, opts ...Option) (*Client, error) {
	storeID := strings.TrimSpace(cfg.StoreID)
	if storeID == "" {
		return nil, errStoreIDRequired
	}
	if tokens == nil {
		return nil, errTokenSourceRequired
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	client := &Client{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		userAgent:  cfg.UserAgent,
		tokens:     tokens,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(client)
		}
	}
	client.baseURL = client.baseURL + "/" + storeID

	return client, nil
}

// FetchProduct loads a single product with its variants.
func (c *Client) FetchProduct(ctx context.Context, productID int64) (*Product, error) {
	var product Product
	if err := c.do(ctx, http.MethodGet, fmt.Sprintf("/products/%d", productID), nil, nil, &product); err != nil {
		return nil, err
	}
	return &product, nil
}

// FetchProducts lists catalog products for the given query.
func (c *Client) FetchProducts(ctx context.Context, query ProductQuery) ([]Product, error) {
	params := url.Values{}
	if query.Page > 0 {
		params.Set("page", strconv.Itoa(query.Page))
	}
	if query.PerPage > 0 {
		params.Set("per_page", strconv.Itoa(query.PerPage))
	}
	if query.Published {
		params.Set("published", "true")
	}
	if query.CategoryID > 0 {
		params.Set("category_id", strconv.FormatInt(query.CategoryID, 10))
	}
	if query.Search != "" {
		params.Set("q", query.Search)
	}

	var products []Product
	if err := c.do(ctx, http.MethodGet, "/products", params, nil, &products); err != nil {
		return nil, err
	}
	return products, nil
}

// FetchCoupons searches coupons by code.
func (c *Client) FetchCoupons(ctx context.Context, query CouponQuery) ([]Coupon, error) {
	params := url.Values{}
	if query.Code != "" {
		params.Set("q", query.Code)
	}
	if query.Valid {
		params.Set("valid", "true")
	}

	var coupons []Coupon
	if err := c.do(ctx, http.MethodGet, "/coupons", params, nil, &coupons); err != nil {
		return nil, err
	}
	return coupons, nil
}

// CreateOrder registers an order, filling the sentinel defaults the
// storefront requires for address and customer fields.
func (c *Client) CreateOrder(ctx context.Context, payload CreateOrderPayload) (*Order, error) {
	var order Order
	if err := c.do(ctx, http.MethodPost, "/orders", nil, payload.withDefaults(), &order); err != nil {
		return nil, err
	}
	if order.ID == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "storefront returned order without id")
	}
	return &order, nil
}

// GetOrder loads a single order by id.
func (c *Client) GetOrder(ctx context.Context, orderID int64) (*Order, error) {
	var order Order
	if err := c.do(ctx, http.MethodGet, fmt.Sprintf("/orders/%d", orderID), nil, nil, &order); err != nil {
		return nil, err
	}
	return &order, nil
}

// UpdateOrderPaymentStatus moves the order to the given payment status. The
// call is idempotent: when the order already carries the target status the
// mutation is skipped and the current order is returned.
func (c *Client) UpdateOrderPaymentStatus(ctx context.Context, orderID int64, status enums.PaymentStatus) (*Order, error) {
	if !status.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid payment status %q", status))
	}

	current, err := c.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if current.PaymentStatus == status {
		return current, nil
	}

	body := map[string]string{"payment_status": status.String()}
	var updated Order
	if err := c.do(ctx, http.MethodPut, fmt.Sprintf("/orders/%d", orderID), nil, body, &updated); err != nil {
		return nil, err
	}
	return &updated, nil
}

// CancelOrder voids a pending order, recording the reason. Used as the
// compensation step when preference creation fails after order creation.
func (c *Client) CancelOrder(ctx context.Context, orderID int64, reason string) error {
	body := map[string]string{"reason": reason}
	return c.do(ctx, http.MethodPost, fmt.Sprintf("/orders/%d/cancel", orderID), nil, body, nil)
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out any) error {
	token, err := c.tokens.AccessToken(ctx)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "resolve storefront access token")
	}

	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encode storefront request")
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "build storefront request")
	}
	req.Header.Set("Authentication", "bearer "+token)
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "call storefront api")
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return c.mapAPIError(resp)
	}

	if out == nil {
		io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode storefront response")
	}
	return nil
}

func (c *Client) mapAPIError(resp *http.Response) error {
	snippet, _ := io.ReadAll(io.LimitReader(resp.Body, errorBodyReadLimit))
	msg := fmt.Sprintf("storefront api error: %d - %s", resp.StatusCode, strings.TrimSpace(string(snippet)))

	switch resp.StatusCode {
	case http.StatusNotFound:
		return pkgerrors.New(pkgerrors.CodeNotFound, msg)
	case http.StatusUnauthorized, http.StatusForbidden:
		return pkgerrors.New(pkgerrors.CodeUnauthorized, msg)
	default:
		return pkgerrors.New(pkgerrors.CodeDependency, msg)
	}
}
