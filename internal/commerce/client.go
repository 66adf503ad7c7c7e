// Pixelbridge - Dual-Channel Conversion Tracking for Commerce Storefronts
// Copyright 2026 Pixelbridge Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/pixelbridge/pixelbridge

package commerce

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/pixelbridge/pixelbridge/internal/config"
)

// Client resolves orders, products and carts from the storefront's REST API.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// Ensure Client implements Store.
var _ Store = (*Client)(nil)

// NewClient creates a storefront API client.
func NewClient(cfg config.CommerceConfig) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimSuffix(cfg.BaseURL, "/"),
		token:      cfg.Token,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// ResolveOrder fetches an order by ID.
func (c *Client) ResolveOrder(ctx context.Context, orderID int64) (*Order, error) {
	var order Order
	if err := c.get(ctx, "/orders/"+strconv.FormatInt(orderID, 10), &order); err != nil {
		return nil, err
	}
	return &order, nil
}

// ResolveProduct fetches a product by ID.
func (c *Client) ResolveProduct(ctx context.Context, productID int64) (*Product, error) {
	var product Product
	if err := c.get(ctx, "/products/"+strconv.FormatInt(productID, 10), &product); err != nil {
		return nil, err
	}
	return &product, nil
}

// ResolveCart fetches the visitor's cart by token.
func (c *Client) ResolveCart(ctx context.Context, cartToken string) (*Cart, error) {
	var cart Cart
	if err := c.get(ctx, "/carts/"+cartToken, &cart); err != nil {
		return nil, err
	}
	return &cart, nil
}

// get performs an authenticated GET and decodes the JSON response.
func (c *Client) get(ctx context.Context, endpoint string, out interface{}) error {
	if c.baseURL == "" {
		return fmt.Errorf("storefront API not configured: %w", ErrNotFound)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+endpoint, nil)
	if err != nil {
		return fmt.Errorf("build storefront request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("storefront request %s: %w", endpoint, err)
	}
	defer func() { _ = resp.Body.Close() }()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return ErrNotFound
	case resp.StatusCode != http.StatusOK:
		return fmt.Errorf("storefront %s returned status %d", endpoint, resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode storefront response %s: %w", endpoint, err)
	}
	return nil
}
