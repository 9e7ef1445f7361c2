// Package commerceapi is a Commerce Backend that talks to a remote store API over JSON/HTTP.
package commerceapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/fairyhunter13/storefront-discount-service/internal/discount"
	"github.com/fairyhunter13/storefront-discount-service/internal/model"
)

// KeyHeader carries the publishable API key on every request.
const KeyHeader = "x-publishable-api-key"

// Config holds the remote store API settings.
type Config struct {
	BaseURL        string
	PublishableKey string
	Timeout        time.Duration
	// MaxRetries bounds retries of idempotent reads. Zero disables retrying.
	MaxRetries uint64
}

// APIError is a non-2xx response from the store API.
// Its Error text is the message from the response body so it can be classified.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return e.Message
}

// Client implements discount.Backend against the store API.
type Client struct {
	baseURL    string
	key        string
	http       *http.Client
	maxRetries uint64
}

// NewClient creates a Client with its own http.Client.
func NewClient(cfg Config) *Client {
	return NewClientWithHTTP(cfg, &http.Client{Timeout: cfg.Timeout})
}

// NewClientWithHTTP creates a Client with a custom http.Client.
// This is primarily used for testing.
func NewClientWithHTTP(cfg Config, hc *http.Client) *Client {
	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		key:        cfg.PublishableKey,
		http:       hc,
		maxRetries: cfg.MaxRetries,
	}
}

type cartEnvelope struct {
	Cart *model.Cart `json:"cart"`
}

type promotionEnvelope struct {
	Promotion *model.Promotion `json:"promotion"`
}

type promoCodesBody struct {
	PromoCodes []string `json:"promo_codes"`
}

// RetrieveCart returns the cart, or nil, nil when the API reports it missing.
func (c *Client) RetrieveCart(ctx context.Context, cartID string) (*model.Cart, error) {
	var env cartEnvelope
	err := c.get(ctx, "/store/carts/"+url.PathEscape(cartID), &env)
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.Status == http.StatusNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return env.Cart, nil
}

// CreateOrGetCart returns the existing cart or creates one in regionID.
func (c *Client) CreateOrGetCart(ctx context.Context, cartID, regionID string) (*model.Cart, error) {
	if cartID != "" {
		cart, err := c.RetrieveCart(ctx, cartID)
		if err != nil {
			return nil, err
		}
		if cart != nil {
			return cart, nil
		}
	}

	var env cartEnvelope
	body := map[string]string{"region_id": regionID}
	if err := c.do(ctx, http.MethodPost, "/store/carts", body, &env); err != nil {
		return nil, err
	}
	return env.Cart, nil
}

// ApplyPromotionCodes makes codes the cart's exact set of user-entered promotions.
// The API only adds and removes, so codes no longer wanted are removed first.
func (c *Client) ApplyPromotionCodes(ctx context.Context, cartID string, codes []string) (*model.Cart, error) {
	cart, err := c.RetrieveCart(ctx, cartID)
	if err != nil {
		return nil, err
	}
	if cart == nil {
		return nil, &APIError{Status: http.StatusNotFound, Message: "Cart not found"}
	}

	// The store may echo a code in its own casing.
	want := make(map[string]bool, len(codes))
	for _, code := range codes {
		want[discount.NormalizeCode(code)] = true
	}
	var stale []string
	for _, code := range cart.UserCodes() {
		if !want[discount.NormalizeCode(code)] {
			stale = append(stale, code)
		}
	}

	path := "/store/carts/" + url.PathEscape(cartID) + "/promotions"
	var env cartEnvelope
	if len(stale) > 0 {
		if err := c.do(ctx, http.MethodDelete, path, promoCodesBody{PromoCodes: stale}, &env); err != nil {
			return nil, err
		}
	}
	if len(codes) == 0 {
		if env.Cart == nil {
			return cart, nil
		}
		return env.Cart, nil
	}
	if err := c.do(ctx, http.MethodPost, path, promoCodesBody{PromoCodes: codes}, &env); err != nil {
		return nil, err
	}
	return env.Cart, nil
}

// UpdateCartMetadata merges patch into the cart metadata. Nil values are sent as null, which deletes the key.
func (c *Client) UpdateCartMetadata(ctx context.Context, cartID string, patch map[string]any) (*model.Cart, error) {
	var env cartEnvelope
	body := map[string]any{"metadata": patch}
	if err := c.do(ctx, http.MethodPost, "/store/carts/"+url.PathEscape(cartID), body, &env); err != nil {
		return nil, err
	}
	return env.Cart, nil
}

// LookupPromotion returns the promotion's value rule.
func (c *Client) LookupPromotion(ctx context.Context, code string) (*model.Promotion, error) {
	var env promotionEnvelope
	if err := c.get(ctx, "/store/promotions/"+url.PathEscape(code), &env); err != nil {
		return nil, err
	}
	if env.Promotion == nil {
		return nil, &APIError{Status: http.StatusNotFound, Message: "Promotion not found"}
	}
	return env.Promotion, nil
}

// AddLineItem adds an item to the cart.
func (c *Client) AddLineItem(ctx context.Context, cartID string, item model.LineItemInput) (*model.Cart, error) {
	var env cartEnvelope
	path := "/store/carts/" + url.PathEscape(cartID) + "/line-items"
	if err := c.do(ctx, http.MethodPost, path, item, &env); err != nil {
		return nil, err
	}
	return env.Cart, nil
}

// get performs an idempotent read, retrying transport failures and 5xx responses.
func (c *Client) get(ctx context.Context, path string, out any) error {
	if c.maxRetries == 0 {
		return c.do(ctx, http.MethodGet, path, nil, out)
	}

	b := backoff.WithContext(backoff.WithMaxRetries(newBackOff(), c.maxRetries), ctx)
	return backoff.Retry(func() error {
		err := c.do(ctx, http.MethodGet, path, nil, out)
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.Status < http.StatusInternalServerError {
			return backoff.Permanent(err)
		}
		return err
	}, b)
}

func newBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 100 * time.Millisecond
	b.MaxInterval = time.Second
	return b
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		buf, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.key != "" {
		req.Header.Set(KeyHeader, c.key)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %s %s: %v", discount.ErrNetwork, method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeError(resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s %s response: %w", method, path, err)
	}
	return nil
}

func decodeError(resp *http.Response) error {
	var payload struct {
		Message string `json:"message"`
	}
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err := json.Unmarshal(raw, &payload); err != nil || payload.Message == "" {
		payload.Message = http.StatusText(resp.StatusCode)
	}
	return &APIError{Status: resp.StatusCode, Message: payload.Message}
}
