// Pixelbridge - Dual-Channel Conversion Tracking for Commerce Storefronts
// Copyright 2026 Pixelbridge Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/pixelbridge/pixelbridge

package commerce

import (
	"context"
	"strconv"
	"time"

	"github.com/pixelbridge/pixelbridge/internal/cache"
)

// CachedStore decorates a Store with a product cache. Products are the hot
// lookup (every product page view and add-to-cart resolves one) and change
// rarely. Orders and carts pass through uncached: an order must be resolved
// fresh when its purchase is tracked, and a cart snapshot is stale the
// moment the visitor edits it.
type CachedStore struct {
	inner    Store
	products *cache.Cache
}

var _ Store = (*CachedStore)(nil)

// NewCachedStore wraps a store with a product cache of the given TTL.
func NewCachedStore(inner Store, ttl time.Duration) *CachedStore {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &CachedStore{
		inner:    inner,
		products: cache.New(ttl),
	}
}

// ResolveProduct returns the cached product or fetches and caches it.
func (s *CachedStore) ResolveProduct(ctx context.Context, productID int64) (*Product, error) {
	key := strconv.FormatInt(productID, 10)
	if cached, ok := s.products.Get(key); ok {
		return cached.(*Product), nil
	}

	product, err := s.inner.ResolveProduct(ctx, productID)
	if err != nil {
		return nil, err
	}
	s.products.Set(key, product)
	return product, nil
}

// ResolveOrder passes through to the inner store.
func (s *CachedStore) ResolveOrder(ctx context.Context, orderID int64) (*Order, error) {
	return s.inner.ResolveOrder(ctx, orderID)
}

// ResolveCart passes through to the inner store.
func (s *CachedStore) ResolveCart(ctx context.Context, cartToken string) (*Cart, error) {
	return s.inner.ResolveCart(ctx, cartToken)
}

// Stats exposes the product cache counters.
func (s *CachedStore) Stats() cache.Stats {
	return s.products.Stats()
}

// Close stops the cache sweeper.
func (s *CachedStore) Close() {
	s.products.Stop()
}
