// Pixelbridge - Dual-Channel Conversion Tracking for Commerce Storefronts
// Copyright 2026 Pixelbridge Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/pixelbridge/pixelbridge

// Package commerce defines the storefront collaborators the tracking
// pipeline resolves domain data from: orders, products and carts.
//
// The storefront runtime itself is out of scope; it is reached through the
// Resolver interfaces below. Client is an HTTP implementation against the
// storefront's REST API, and Fixture is an in-memory implementation for
// tests.
package commerce

import (
	"context"
	"errors"
)

// ErrNotFound is returned when an order, product or cart cannot be resolved.
var ErrNotFound = errors.New("commerce: not found")

// Product is a resolved storefront product.
type Product struct {
	ID       int64   `json:"id"`
	Name     string  `json:"name"`
	Price    float64 `json:"price"`
	Currency string  `json:"currency"`
}

// LineItem is one purchased or carted product line.
type LineItem struct {
	ProductID int64   `json:"product_id"`
	Name      string  `json:"name"`
	Quantity  int     `json:"quantity"`
	Price     float64 `json:"price"`
}

// Order is a resolved storefront order.
type Order struct {
	ID int64 `json:"id"`

	// Key is the order's immutable business key (e.g. "wc_order_abc123").
	// Purchase correlation IDs are derived from it, so it must be stable
	// across reloads of the confirmation page.
	Key string `json:"key"`

	Total    float64    `json:"total"`
	Currency string     `json:"currency"`
	Items    []LineItem `json:"items"`
}

// Cart is the visitor's current cart snapshot.
type Cart struct {
	Token    string     `json:"token"`
	Currency string     `json:"currency"`
	Items    []LineItem `json:"items"`
}

// IsEmpty reports whether the cart holds no items.
func (c *Cart) IsEmpty() bool {
	return c == nil || len(c.Items) == 0
}

// Total returns the cart value across all lines.
func (c *Cart) Total() float64 {
	var total float64
	for _, item := range c.Items {
		total += item.Price * float64(item.Quantity)
	}
	return total
}

// OrderResolver resolves orders by ID.
type OrderResolver interface {
	// ResolveOrder returns the order or ErrNotFound.
	ResolveOrder(ctx context.Context, orderID int64) (*Order, error)
}

// ProductResolver resolves products by ID.
type ProductResolver interface {
	// ResolveProduct returns the product or ErrNotFound.
	ResolveProduct(ctx context.Context, productID int64) (*Product, error)
}

// CartProvider resolves the visitor's cart by token.
type CartProvider interface {
	// ResolveCart returns the cart or ErrNotFound.
	ResolveCart(ctx context.Context, cartToken string) (*Cart, error)
}

// Store bundles all three collaborators.
type Store interface {
	OrderResolver
	ProductResolver
	CartProvider
}
