// Pixelbridge - Dual-Channel Conversion Tracking for Commerce Storefronts
// Copyright 2026 Pixelbridge Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/pixelbridge/pixelbridge

package commerce

import (
	"context"
	"sync"
)

// Fixture is an in-memory Store for tests and local development.
type Fixture struct {
	mu       sync.RWMutex
	orders   map[int64]*Order
	products map[int64]*Product
	carts    map[string]*Cart
}

var _ Store = (*Fixture)(nil)

// NewFixture creates an empty in-memory store.
func NewFixture() *Fixture {
	return &Fixture{
		orders:   make(map[int64]*Order),
		products: make(map[int64]*Product),
		carts:    make(map[string]*Cart),
	}
}

// AddOrder registers an order.
func (f *Fixture) AddOrder(order *Order) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.orders[order.ID] = order
}

// AddProduct registers a product.
func (f *Fixture) AddProduct(product *Product) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.products[product.ID] = product
}

// AddCart registers a cart under its token.
func (f *Fixture) AddCart(cart *Cart) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.carts[cart.Token] = cart
}

// ResolveOrder implements OrderResolver.
func (f *Fixture) ResolveOrder(_ context.Context, orderID int64) (*Order, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if order, ok := f.orders[orderID]; ok {
		return order, nil
	}
	return nil, ErrNotFound
}

// ResolveProduct implements ProductResolver.
func (f *Fixture) ResolveProduct(_ context.Context, productID int64) (*Product, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if product, ok := f.products[productID]; ok {
		return product, nil
	}
	return nil, ErrNotFound
}

// ResolveCart implements CartProvider.
func (f *Fixture) ResolveCart(_ context.Context, cartToken string) (*Cart, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if cart, ok := f.carts[cartToken]; ok {
		return cart, nil
	}
	return nil, ErrNotFound
}
