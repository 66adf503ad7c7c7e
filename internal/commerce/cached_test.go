// Pixelbridge - Dual-Channel Conversion Tracking for Commerce Storefronts
// Copyright 2026 Pixelbridge Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/pixelbridge/pixelbridge

package commerce

import (
	"context"
	"sync/atomic"
	"testing"
	"time"
)

// countingStore counts resolver calls around a Fixture.
type countingStore struct {
	*Fixture
	productCalls atomic.Int32
}

func (s *countingStore) ResolveProduct(ctx context.Context, productID int64) (*Product, error) {
	s.productCalls.Add(1)
	return s.Fixture.ResolveProduct(ctx, productID)
}

func TestCachedStoreProducts(t *testing.T) {
	inner := &countingStore{Fixture: NewFixture()}
	inner.AddProduct(&Product{ID: 7, Name: "Walnut Desk Organizer", Price: 39.90, Currency: "EUR"})

	store := NewCachedStore(inner, time.Minute)
	defer store.Close()
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		product, err := store.ResolveProduct(ctx, 7)
		if err != nil {
			t.Fatalf("ResolveProduct failed: %v", err)
		}
		if product.Name != "Walnut Desk Organizer" {
			t.Errorf("Unexpected product: %+v", product)
		}
	}
	if calls := inner.productCalls.Load(); calls != 1 {
		t.Errorf("Inner store resolved %d times for 5 lookups, want 1", calls)
	}
	if stats := store.Stats(); stats.Hits != 4 {
		t.Errorf("Hits = %d, want 4", stats.Hits)
	}
}

func TestCachedStoreMissNotCached(t *testing.T) {
	inner := &countingStore{Fixture: NewFixture()}
	store := NewCachedStore(inner, time.Minute)
	defer store.Close()

	for i := 0; i < 2; i++ {
		if _, err := store.ResolveProduct(context.Background(), 99); err == nil {
			t.Fatal("Expected ErrNotFound")
		}
	}
	if calls := inner.productCalls.Load(); calls != 2 {
		t.Errorf("Inner store resolved %d times, want 2 (misses are not cached)", calls)
	}
}

func TestCachedStorePassThrough(t *testing.T) {
	inner := NewFixture()
	inner.AddOrder(&Order{ID: 42, Key: "wc_order_abc123", Total: 10, Currency: "EUR"})
	inner.AddCart(&Cart{Token: "cart-1", Currency: "EUR", Items: []LineItem{{ProductID: 7, Quantity: 1, Price: 10}}})

	store := NewCachedStore(inner, time.Minute)
	defer store.Close()
	ctx := context.Background()

	if _, err := store.ResolveOrder(ctx, 42); err != nil {
		t.Errorf("ResolveOrder failed: %v", err)
	}
	if _, err := store.ResolveCart(ctx, "cart-1"); err != nil {
		t.Errorf("ResolveCart failed: %v", err)
	}
}
