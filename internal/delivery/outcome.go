// Pixelbridge - Dual-Channel Conversion Tracking for Commerce Storefronts
// Copyright 2026 Pixelbridge Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/pixelbridge/pixelbridge

// Package delivery sends conversion events to the ad partner's Conversions
// API through the authenticated Connect proxy. Failures are represented as
// data, never as errors: the caller's logging and notification steps run
// uniformly on every attempt.
package delivery

// Outcome is the result of one delivery attempt. It is not persisted; the
// order tracking state is the only durable side effect of a delivery.
type Outcome struct {
	// Success is true for a 2xx proxy response.
	Success bool

	// StatusCode is the HTTP status, 0 when no response was received
	// (network failure, breaker open, not configured).
	StatusCode int

	// ErrorDetail is the structured error message extracted from the
	// response body, or the transport error text. Empty on success.
	ErrorDetail string
}

// Args carries caller-supplied correlation arguments through the post-send
// notification, e.g. the order key the idempotency state machine needs to
// mark the order tracked.
type Args map[string]string

// Well-known Args keys.
const (
	ArgOrderKey = "order_key"
	ArgOrderID  = "order_id"
)
