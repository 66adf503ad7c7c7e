// Pixelbridge - Dual-Channel Conversion Tracking for Commerce Storefronts
// Copyright 2026 Pixelbridge Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/pixelbridge/pixelbridge

package tracking

import (
	"encoding/hex"

	"github.com/google/uuid"
	"golang.org/x/crypto/blake2b"
)

// Correlation IDs let the ad platform merge the pixel report and the
// Conversions API report of the same real-world action.
//
// Purchase IDs are derived deterministically from the order's immutable
// business key, so a reloaded confirmation page produces the same ID
// without any extra state. Every other kind gets a fresh random ID per
// discrete user action, generated once and propagated to both channels,
// never reused across two actions.

// purchaseIDLen is the hex length of a deterministic purchase ID.
const purchaseIDLen = 32

// PurchaseCorrelationID derives the correlation ID for an order's purchase
// event. Calling it twice for the same order key returns the same value;
// different keys produce different values.
func PurchaseCorrelationID(orderKey string) string {
	sum := blake2b.Sum256([]byte("purchase:" + orderKey))
	return hex.EncodeToString(sum[:])[:purchaseIDLen]
}

// NewActionCorrelationID returns a fresh random correlation ID for a single
// non-purchase user action.
func NewActionCorrelationID() string {
	return uuid.New().String()
}

// CorrelationIDOrNew returns the caller-supplied ID when present (the
// browser generated it before firing its side of the event), otherwise a
// fresh one. Purchase events must not pass through here; their IDs are
// always derived from the order key.
func CorrelationIDOrNew(supplied string) string {
	if supplied != "" {
		return supplied
	}
	return NewActionCorrelationID()
}
