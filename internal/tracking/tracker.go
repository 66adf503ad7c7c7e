// Pixelbridge - Dual-Channel Conversion Tracking for Commerce Storefronts
// Copyright 2026 Pixelbridge Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/pixelbridge/pixelbridge

package tracking

import (
	"context"
	"fmt"

	"github.com/pixelbridge/pixelbridge/internal/commerce"
	"github.com/pixelbridge/pixelbridge/internal/config"
	"github.com/pixelbridge/pixelbridge/internal/logging"
	"github.com/pixelbridge/pixelbridge/internal/metrics"
	"github.com/pixelbridge/pixelbridge/internal/state"
)

// Sender delivers an event synchronously on the request path. Delivery
// outcomes are observed through the delivery notifier, not returned here:
// a low-criticality event is fire-and-forget from the tracker's view.
type Sender interface {
	Deliver(ctx context.Context, event *Event, args map[string]string)
}

// Enqueuer publishes an event to the durable delivery queue.
type Enqueuer interface {
	Enqueue(ctx context.Context, event *Event) error
}

// Tracker is the conversion tracking entry point. It owns the dispatch
// decision (durable queue vs direct send), the consent gate and the
// per-order idempotency state machine.
type Tracker struct {
	cfg      config.TrackingConfig
	consent  ConsentGate
	states   state.Store
	sender   Sender
	enqueuer Enqueuer
}

// NewTracker wires the tracker. All collaborators are required.
func NewTracker(cfg config.TrackingConfig, consent ConsentGate, states state.Store, sender Sender, enqueuer Enqueuer) *Tracker {
	return &Tracker{
		cfg:      cfg,
		consent:  consent,
		states:   states,
		sender:   sender,
		enqueuer: enqueuer,
	}
}

// active reports whether tracking is switched on and configured. An empty
// pixel ID is the pre-setup state; every entry point silently no-ops.
func (t *Tracker) active() bool {
	return t.cfg.Enabled && t.cfg.PixelID != ""
}

// TrackPurchase records a completed order. It is safe to call any number of
// times for the same order: the first call wins the Untracked to Queued
// transition and enqueues exactly one delivery job, later calls (and
// concurrent ones) are no-ops.
func (t *Tracker) TrackPurchase(ctx context.Context, order *commerce.Order, user UserContext) error {
	if !t.active() {
		metrics.EventsSkipped.WithLabelValues(string(KindPurchase), "disabled").Inc()
		return nil
	}
	if order == nil {
		metrics.EventsSkipped.WithLabelValues(string(KindPurchase), "build_failure").Inc()
		return ErrOrderNotFound
	}

	status, err := t.states.Status(ctx, order.Key)
	if err != nil {
		return fmt.Errorf("order status: %w", err)
	}
	if status != state.StatusUntracked {
		metrics.EventsSkipped.WithLabelValues(string(KindPurchase), "idempotent").Inc()
		logging.Debug().
			Str("order_key", order.Key).
			Str("status", status.String()).
			Msg("purchase already handled, skipping")
		return nil
	}

	// Consent is checked before the state transition so a denied purchase
	// stays Untracked and gets tracked if consent is granted later.
	if !t.consent.Allow(ctx) {
		metrics.EventsSkipped.WithLabelValues(string(KindPurchase), "consent").Inc()
		return nil
	}

	event, err := BuildPurchase(order, user)
	if err != nil {
		metrics.EventsSkipped.WithLabelValues(string(KindPurchase), "build_failure").Inc()
		logging.Warn().Err(err).Int64("order_id", order.ID).Msg("purchase event build failed, skipping")
		return err
	}

	won, err := t.states.TransitionQueued(ctx, order.Key)
	if err != nil {
		return fmt.Errorf("transition queued: %w", err)
	}
	if !won {
		metrics.EventsSkipped.WithLabelValues(string(KindPurchase), "idempotent").Inc()
		return nil
	}

	if err := t.enqueuer.Enqueue(ctx, event); err != nil {
		// The order stays Queued: losing a purchase to a double send is
		// worse than losing it to a dropped one only if the operator
		// never notices, and this is loud.
		logging.Error().Err(err).
			Str("order_key", order.Key).
			Str("correlation_id", event.CorrelationID).
			Msg("purchase enqueue failed")
		return fmt.Errorf("enqueue purchase: %w", err)
	}

	metrics.EventsTracked.WithLabelValues(string(KindPurchase), "queued").Inc()
	metrics.QueuePublishes.WithLabelValues(string(KindPurchase)).Inc()
	logging.Info().
		Str("order_key", order.Key).
		Str("correlation_id", event.CorrelationID).
		Msg("purchase queued for delivery")
	return nil
}

// TrackAddToCart records an add-to-cart action.
func (t *Tracker) TrackAddToCart(ctx context.Context, product *commerce.Product, quantity int, correlationID string, user UserContext) error {
	if !t.gate(ctx, KindAddToCart) {
		return nil
	}
	event, err := BuildAddToCart(product, quantity, CorrelationIDOrNew(correlationID), user)
	if err != nil {
		metrics.EventsSkipped.WithLabelValues(string(KindAddToCart), "build_failure").Inc()
		return err
	}
	return t.dispatch(ctx, event)
}

// TrackStartCheckout records the start of checkout from a cart snapshot. The
// correlation ID is the one the pixel's START_CHECKOUT block carries; passing
// it through is what lets the ad platform merge the two channels.
func (t *Tracker) TrackStartCheckout(ctx context.Context, cart *commerce.Cart, correlationID string, user UserContext) error {
	if !t.gate(ctx, KindStartCheckout) {
		return nil
	}
	event, err := BuildStartCheckout(cart, CorrelationIDOrNew(correlationID), user)
	if err != nil {
		metrics.EventsSkipped.WithLabelValues(string(KindStartCheckout), "build_failure").Inc()
		return err
	}
	return t.dispatch(ctx, event)
}

// TrackViewContent records a product page view.
func (t *Tracker) TrackViewContent(ctx context.Context, product *commerce.Product, correlationID string, user UserContext) error {
	if !t.gate(ctx, KindViewContent) {
		return nil
	}
	event, err := BuildViewContent(product, CorrelationIDOrNew(correlationID), user)
	if err != nil {
		metrics.EventsSkipped.WithLabelValues(string(KindViewContent), "build_failure").Inc()
		return err
	}
	return t.dispatch(ctx, event)
}

// TrackPageView records a generic page view.
func (t *Tracker) TrackPageView(ctx context.Context, correlationID string, user UserContext) error {
	if !t.gate(ctx, KindPageView) {
		return nil
	}
	return t.dispatch(ctx, BuildPageView(CorrelationIDOrNew(correlationID), user))
}

// gate applies the common checks ahead of payload building, so a disabled or
// denied event costs nothing.
func (t *Tracker) gate(ctx context.Context, kind Kind) bool {
	if !t.active() {
		metrics.EventsSkipped.WithLabelValues(string(kind), "disabled").Inc()
		return false
	}
	if !t.consent.Allow(ctx) {
		metrics.EventsSkipped.WithLabelValues(string(kind), "consent").Inc()
		return false
	}
	return true
}

// dispatch routes a gated event by criticality: events worth retrying go
// through the durable queue, the rest are sent inline and forgotten on
// failure.
func (t *Tracker) dispatch(ctx context.Context, event *Event) error {
	kind := string(event.Kind)

	if event.Kind.Queued() {
		if err := t.enqueuer.Enqueue(ctx, event); err != nil {
			logging.Error().Err(err).Str("event", kind).Msg("enqueue failed")
			return fmt.Errorf("enqueue %s: %w", kind, err)
		}
		metrics.EventsTracked.WithLabelValues(kind, "queued").Inc()
		metrics.QueuePublishes.WithLabelValues(kind).Inc()
		return nil
	}

	t.sender.Deliver(ctx, event, nil)
	metrics.EventsTracked.WithLabelValues(kind, "direct").Inc()
	return nil
}

// HandleDelivered marks a purchase order Tracked after its delivery attempt
// completed. It runs on every outcome, success or failure: a failed
// Conversions API call is not retried through the purchase state machine
// (the queue's redelivery budget already covered it), so re-enqueueing the
// order would only produce duplicates.
func (t *Tracker) HandleDelivered(ctx context.Context, event *Event, orderKey string) {
	if event.Kind != KindPurchase || orderKey == "" {
		return
	}
	if err := t.states.MarkTracked(ctx, orderKey); err != nil {
		logging.Error().Err(err).Str("order_key", orderKey).Msg("mark tracked failed")
	}
}
