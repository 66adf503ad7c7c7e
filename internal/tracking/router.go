// Pixelbridge - Dual-Channel Conversion Tracking for Commerce Storefronts
// Copyright 2026 Pixelbridge Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/pixelbridge/pixelbridge

package tracking

import (
	"context"
	"fmt"
	"strconv"

	"github.com/pixelbridge/pixelbridge/internal/commerce"
	"github.com/pixelbridge/pixelbridge/internal/logging"
	"github.com/pixelbridge/pixelbridge/internal/metrics"
)

// Router maps storefront notifications onto tracker operations. It resolves
// commerce entities so HTTP handlers stay thin, and it owns the one routing
// subtlety of add-to-cart: a storefront with AJAX carts fires both a
// server-side form hook and a browser-side call for the same action, and
// only one of them may track.
type Router struct {
	tracker  *Tracker
	orders   commerce.OrderResolver
	products commerce.ProductResolver
	carts    commerce.CartProvider
}

// NewRouter wires the router against a commerce store.
func NewRouter(tracker *Tracker, store commerce.Store) *Router {
	return &Router{
		tracker:  tracker,
		orders:   store,
		products: store,
		carts:    store,
	}
}

// HandleOrderCompleted resolves the order and tracks the purchase. The
// storefront may fire this webhook on completion, on payment, and again on
// status replays; the tracker's state machine absorbs the repeats.
func (r *Router) HandleOrderCompleted(ctx context.Context, orderID int64, user UserContext) error {
	order, err := r.orders.ResolveOrder(ctx, orderID)
	if err != nil {
		metrics.EventsSkipped.WithLabelValues(string(KindPurchase), "build_failure").Inc()
		return fmt.Errorf("resolve order %d: %w", orderID, err)
	}
	return r.tracker.TrackPurchase(ctx, order, user)
}

// HandleAddToCartForm handles the server-side add-to-cart form hook.
// When the storefront has AJAX carts enabled the browser call is the one
// carrying the correlation ID the pixel already used, so the form hook
// stands down and the AJAX path tracks.
func (r *Router) HandleAddToCartForm(ctx context.Context, productID int64, quantity int, ajaxCart bool, correlationID string, user UserContext) error {
	if ajaxCart {
		logging.Debug().
			Int64("product_id", productID).
			Msg("ajax cart active, deferring add-to-cart to browser path")
		return nil
	}
	return r.handleAddToCart(ctx, productID, quantity, correlationID, user)
}

// HandleAddToCartAjax handles the browser-side add-to-cart call.
func (r *Router) HandleAddToCartAjax(ctx context.Context, productID int64, quantity int, correlationID string, user UserContext) error {
	return r.handleAddToCart(ctx, productID, quantity, correlationID, user)
}

func (r *Router) handleAddToCart(ctx context.Context, productID int64, quantity int, correlationID string, user UserContext) error {
	product, err := r.products.ResolveProduct(ctx, productID)
	if err != nil {
		metrics.EventsSkipped.WithLabelValues(string(KindAddToCart), "build_failure").Inc()
		return fmt.Errorf("resolve product %d: %w", productID, err)
	}
	return r.tracker.TrackAddToCart(ctx, product, quantity, correlationID, user)
}

// HandleStartCheckout snapshots the visitor's cart and tracks checkout
// start, threading through the pixel's correlation ID when the storefront
// forwarded one.
func (r *Router) HandleStartCheckout(ctx context.Context, cartToken, correlationID string, user UserContext) error {
	cart, err := r.carts.ResolveCart(ctx, cartToken)
	if err != nil {
		metrics.EventsSkipped.WithLabelValues(string(KindStartCheckout), "build_failure").Inc()
		return fmt.Errorf("resolve cart: %w", err)
	}
	return r.tracker.TrackStartCheckout(ctx, cart, correlationID, user)
}

// HandleViewContent tracks a product page view.
func (r *Router) HandleViewContent(ctx context.Context, productID int64, correlationID string, user UserContext) error {
	product, err := r.products.ResolveProduct(ctx, productID)
	if err != nil {
		metrics.EventsSkipped.WithLabelValues(string(KindViewContent), "build_failure").Inc()
		return fmt.Errorf("resolve product %d: %w", productID, err)
	}
	return r.tracker.TrackViewContent(ctx, product, correlationID, user)
}

// HandlePageView tracks a generic page view.
func (r *Router) HandlePageView(ctx context.Context, correlationID string, user UserContext) error {
	return r.tracker.TrackPageView(ctx, correlationID, user)
}

// PurchaseArgs builds the delivery args carried with a purchase event so
// post-send listeners can address the order state.
func PurchaseArgs(event *Event) map[string]string {
	if event.Kind != KindPurchase {
		return nil
	}
	return map[string]string{
		"order_key": event.OrderKey,
		"order_id":  strconv.FormatInt(event.OrderID, 10),
	}
}
