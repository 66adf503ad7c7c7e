// Pixelbridge - Dual-Channel Conversion Tracking for Commerce Storefronts
// Copyright 2026 Pixelbridge Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/pixelbridge/pixelbridge

package tracking

import (
	"errors"
	"fmt"
	"time"

	"github.com/pixelbridge/pixelbridge/internal/commerce"
)

// Build failures. The caller must skip sending rather than send a
// malformed or partial event; none of these are retried.
var (
	ErrProductNotFound = errors.New("tracking: product not found")
	ErrEmptyCart       = errors.New("tracking: cart is empty")
	ErrOrderNotFound   = errors.New("tracking: order not found")
	ErrInvalidQuantity = errors.New("tracking: quantity must be at least 1")
)

// BuildPageView builds a generic page view event.
func BuildPageView(correlationID string, user UserContext) *Event {
	return &Event{
		SchemaVersion: SchemaVersion,
		Kind:          KindPageView,
		CorrelationID: correlationID,
		User:          user,
		OccurredAt:    time.Now().UTC(),
	}
}

// BuildViewContent builds a product view event from a resolved product.
func BuildViewContent(product *commerce.Product, correlationID string, user UserContext) (*Event, error) {
	if product == nil {
		return nil, ErrProductNotFound
	}
	return &Event{
		SchemaVersion: SchemaVersion,
		Kind:          KindViewContent,
		CorrelationID: correlationID,
		User:          user,
		Value:         product.Price,
		Currency:      product.Currency,
		Items: []Item{{
			ProductID: product.ID,
			Name:      product.Name,
			Price:     product.Price,
		}},
		OccurredAt: time.Now().UTC(),
	}, nil
}

// BuildAddToCart builds an add-to-cart event.
func BuildAddToCart(product *commerce.Product, quantity int, correlationID string, user UserContext) (*Event, error) {
	if product == nil {
		return nil, ErrProductNotFound
	}
	if quantity < 1 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidQuantity, quantity)
	}
	return &Event{
		SchemaVersion: SchemaVersion,
		Kind:          KindAddToCart,
		CorrelationID: correlationID,
		User:          user,
		Value:         product.Price * float64(quantity),
		Currency:      product.Currency,
		Quantity:      quantity,
		Items: []Item{{
			ProductID: product.ID,
			Name:      product.Name,
			Quantity:  quantity,
			Price:     product.Price,
		}},
		OccurredAt: time.Now().UTC(),
	}, nil
}

// BuildStartCheckout builds a checkout-start event from the cart snapshot.
func BuildStartCheckout(cart *commerce.Cart, correlationID string, user UserContext) (*Event, error) {
	if cart.IsEmpty() {
		return nil, ErrEmptyCart
	}

	items := make([]Item, 0, len(cart.Items))
	quantity := 0
	for _, line := range cart.Items {
		items = append(items, Item{
			ProductID: line.ProductID,
			Name:      line.Name,
			Quantity:  line.Quantity,
			Price:     line.Price,
		})
		quantity += line.Quantity
	}

	return &Event{
		SchemaVersion: SchemaVersion,
		Kind:          KindStartCheckout,
		CorrelationID: correlationID,
		User:          user,
		Value:         cart.Total(),
		Currency:      cart.Currency,
		Quantity:      quantity,
		Items:         items,
		OccurredAt:    time.Now().UTC(),
	}, nil
}

// BuildPurchase builds a purchase event from a resolved order. The full
// line-item set is required; the ad platform uses it for attribution, so a
// partial list is not acceptable.
func BuildPurchase(order *commerce.Order, user UserContext) (*Event, error) {
	if order == nil {
		return nil, ErrOrderNotFound
	}

	items := make([]Item, 0, len(order.Items))
	for _, line := range order.Items {
		items = append(items, Item{
			ProductID: line.ProductID,
			Name:      line.Name,
			Quantity:  line.Quantity,
			Price:     line.Price,
		})
	}

	event := &Event{
		SchemaVersion: SchemaVersion,
		Kind:          KindPurchase,
		CorrelationID: PurchaseCorrelationID(order.Key),
		User:          user,
		Value:         order.Total,
		Currency:      order.Currency,
		Items:         items,
		OrderID:       order.ID,
		OrderKey:      order.Key,
		OccurredAt:    time.Now().UTC(),
	}
	if err := event.Validate(); err != nil {
		return nil, fmt.Errorf("purchase payload incomplete: %w", err)
	}
	return event, nil
}
