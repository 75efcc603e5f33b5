// Package melhorenvio quotes shipping rates through the Melhor Envio
// aggregator. Carrier selection policy lives with the caller; this client
// only normalizes input, calls the calculate endpoint and drops quotes the
// aggregator itself flagged as unavailable.
package melhorenvio

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/adega-digital/vinicola-backend/pkg/config"
	pkgerrors "github.com/adega-digital/vinicola-backend/pkg/errors"
)

// Bottle-shaped parcel defaults used when the catalog gives no dimensions.
const (
	DefaultWidthCm  = 10.0
	DefaultHeightCm = 30.0
	DefaultLengthCm = 10.0
	DefaultWeightKg = 1.5
)

// Item is one product to quote. Zero dimensions fall back to the bottle
// defaults; insurance defaults to the item price.
type Item struct {
	ID        string
	Quantity  int
	Price     float64
	WeightKg  float64
	WidthCm   float64
	HeightCm  float64
	LengthCm  float64
	Insurance float64
}

type postalCode struct {
	PostalCode string `json:"postal_code"`
}

type parcel struct {
	ID             string  `json:"id"`
	Width          float64 `json:"width"`
	Height         float64 `json:"height"`
	Length         float64 `json:"length"`
	Weight         float64 `json:"weight"`
	InsuranceValue float64 `json:"insurance_value"`
	Quantity       int     `json:"quantity"`
}

type calculateRequest struct {
	From     postalCode `json:"from"`
	To       postalCode `json:"to"`
	Products []parcel   `json:"products"`
}

// Company identifies the carrier behind a quote.
type Company struct {
	ID      int64  `json:"id"`
	Name    string `json:"name"`
	Picture string `json:"picture,omitempty"`
}

// DeliveryRange is the estimated delivery window in business days.
type DeliveryRange struct {
	Min int `json:"min"`
	Max int `json:"max"`
}

// Quote is one shipping option returned by the aggregator.
type Quote struct {
	ID            int64         `json:"id"`
	Name          string        `json:"name"`
	Price         string        `json:"price"`
	DeliveryTime  int           `json:"delivery_time"`
	DeliveryRange DeliveryRange `json:"delivery_range"`
	Company       Company       `json:"company"`
	Error         string        `json:"error,omitempty"`
}

type Client struct {
	httpClient     *http.Client
	baseURL        string
	token          string
	userAgent      string
	fromPostalCode string
}

type Option func(*Client)

func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		if httpClient != nil {
			c.httpClient = httpClient
		}
	}
}

func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		if baseURL != "" {
			c.baseURL = strings.TrimRight(baseURL, "/")
		}
	}
}

func NewClient(cfg config.MelhorEnvioConfig, opts ...Option) (*Client, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("melhor envio token is required")
	}
	from, err := NormalizeCEP(cfg.FromPostalCode)
	if err != nil {
		return nil, fmt.Errorf("origin postal code: %w", err)
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	client := &Client{
		httpClient:     &http.Client{Timeout: timeout},
		baseURL:        strings.TrimRight(cfg.BaseURL, "/"),
		token:          cfg.Token,
		userAgent:      cfg.UserAgent,
		fromPostalCode: from,
	}
	for _, opt := range opts {
		opt(client)
	}
	return client, nil
}

// NormalizeCEP strips formatting from a Brazilian postal code and validates
// the digit count.
func NormalizeCEP(cep string) (string, error) {
	var digits strings.Builder
	for _, r := range cep {
		if r >= '0' && r <= '9' {
			digits.WriteRune(r)
		}
	}
	clean := digits.String()
	if len(clean) != 8 {
		return "", pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid postal code %q", cep))
	}
	return clean, nil
}

// Quotes calculates shipping options to the given postal code. Options the
// aggregator marked with an error are removed.
func (c *Client) Quotes(ctx context.Context, toPostalCode string, items []Item) ([]Quote, error) {
	to, err := NormalizeCEP(toPostalCode)
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "no items to quote")
	}

	req := calculateRequest{
		From:     postalCode{PostalCode: c.fromPostalCode},
		To:       postalCode{PostalCode: to},
		Products: make([]parcel, 0, len(items)),
	}
	for _, item := range items {
		req.Products = append(req.Products, item.toParcel())
	}

	var quotes []Quote
	if err := c.do(ctx, "/shipment/calculate", req, &quotes); err != nil {
		return nil, err
	}

	available := quotes[:0]
	for _, quote := range quotes {
		if quote.Error == "" {
			available = append(available, quote)
		}
	}
	return available, nil
}

func (i Item) toParcel() parcel {
	p := parcel{
		ID:             i.ID,
		Width:          i.WidthCm,
		Height:         i.HeightCm,
		Length:         i.LengthCm,
		Weight:         i.WeightKg,
		InsuranceValue: i.Insurance,
		Quantity:       i.Quantity,
	}
	if p.Width <= 0 {
		p.Width = DefaultWidthCm
	}
	if p.Height <= 0 {
		p.Height = DefaultHeightCm
	}
	if p.Length <= 0 {
		p.Length = DefaultLengthCm
	}
	if p.Weight <= 0 {
		p.Weight = DefaultWeightKg
	}
	if p.InsuranceValue <= 0 {
		p.InsuranceValue = i.Price
	}
	if p.Quantity <= 0 {
		p.Quantity = 1
	}
	return p
}

func (c *Client) do(ctx context.Context, path string, body, out any) error {
	encoded, err := json.Marshal(body)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encode shipping request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(encoded))
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "build shipping request")
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "call shipping aggregator")
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		if resp.StatusCode == http.StatusUnauthorized {
			return pkgerrors.New(pkgerrors.CodeUnauthorized, "shipping aggregator rejected the token")
		}
		return pkgerrors.New(pkgerrors.CodeDependency,
			fmt.Sprintf("shipping aggregator responded %d: %s", resp.StatusCode, strings.TrimSpace(string(raw))))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode shipping response")
	}
	return nil
}
