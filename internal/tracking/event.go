// Pixelbridge - Dual-Channel Conversion Tracking for Commerce Storefronts
// Copyright 2026 Pixelbridge Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/pixelbridge/pixelbridge

// Package tracking implements the dual-channel conversion tracking pipeline:
// event model, payload builders, correlation IDs, consent gating, the
// per-order idempotency state machine and the sync/async dispatch split.
package tracking

import (
	"time"

	"github.com/goccy/go-json"
)

// SchemaVersion is the current event schema version.
const SchemaVersion = 1

// Kind identifies a conversion event kind.
type Kind string

// Conversion event kinds.
const (
	KindPageView      Kind = "page_view"
	KindViewContent   Kind = "view_content"
	KindAddToCart     Kind = "add_to_cart"
	KindStartCheckout Kind = "start_checkout"
	KindPurchase      Kind = "purchase"
)

// Valid reports whether k is a known event kind.
func (k Kind) Valid() bool {
	switch k {
	case KindPageView, KindViewContent, KindAddToCart, KindStartCheckout, KindPurchase:
		return true
	}
	return false
}

// Criticality is the business importance of an event kind. It determines
// the dispatch path (queued vs immediate) and the log severity on failure.
type Criticality int

// Criticality levels, lowest first.
const (
	CriticalityLow Criticality = iota
	CriticalityHigh
	CriticalityCritical
)

// String returns the level name.
func (c Criticality) String() string {
	switch c {
	case CriticalityCritical:
		return "critical"
	case CriticalityHigh:
		return "high"
	default:
		return "low"
	}
}

// Criticality derives the level from the event kind: purchases are critical,
// cart and checkout events high, browsing events low.
func (k Kind) Criticality() Criticality {
	switch k {
	case KindPurchase:
		return CriticalityCritical
	case KindAddToCart, KindStartCheckout:
		return CriticalityHigh
	default:
		return CriticalityLow
	}
}

// Queued reports whether events of this kind go through the durable queue.
// Critical and high events are queued so delivery survives the HTTP response
// and transient network failure; low events fire on every page view on
// potentially high-traffic storefronts and are sent immediately instead, so
// the job stream does not grow unboundedly.
func (k Kind) Queued() bool {
	return k.Criticality() >= CriticalityHigh
}

// UserContext carries the visitor attributes the ad platform uses to match
// the server-side report against the browser-side one. Identifiers beyond
// IP and user agent must arrive pre-hashed (SHA-256 hex).
type UserContext struct {
	ClientIP     string `json:"client_ip_address,omitempty"`
	UserAgent    string `json:"client_user_agent,omitempty"`
	HashedEmail  string `json:"hashed_email,omitempty"`
	HashedUserID string `json:"hashed_external_id,omitempty"`
}

// Item is one product line inside an event payload.
type Item struct {
	ProductID int64   `json:"item_id,string"`
	Name      string  `json:"item_name"`
	Quantity  int     `json:"quantity,omitempty"`
	Price     float64 `json:"item_price,omitempty"`
}

// Event is a transport-ready conversion event record. Immutable once built;
// builders are the only constructors.
type Event struct {
	SchemaVersion int `json:"schema_version,omitempty"`

	// Kind is the ad platform event name.
	Kind Kind `json:"event_name"`

	// CorrelationID is shared with the browser-side twin report of the
	// same real-world action so the ad platform can merge the two.
	CorrelationID string `json:"correlation_id"`

	User UserContext `json:"user_data"`

	// Commerce fields; which are set depends on Kind.
	Value    float64 `json:"value,omitempty"`
	Currency string  `json:"currency,omitempty"`
	Items    []Item  `json:"items,omitempty"`
	Quantity int     `json:"quantity,omitempty"`
	OrderID  int64   `json:"order_id,omitempty"`
	OrderKey string  `json:"order_key,omitempty"`

	OccurredAt time.Time `json:"timestamp"`
}

// Validate checks the invariants every built event must satisfy.
func (e *Event) Validate() error {
	if !e.Kind.Valid() {
		return &ValidationError{Field: "event_name", Message: "unknown kind"}
	}
	if e.CorrelationID == "" {
		return &ValidationError{Field: "correlation_id", Message: "required"}
	}
	if e.Kind == KindPurchase {
		if e.OrderID == 0 {
			return &ValidationError{Field: "order_id", Message: "required for purchase"}
		}
		if len(e.Items) == 0 {
			return &ValidationError{Field: "items", Message: "purchase requires the full line-item set"}
		}
		if e.Currency == "" {
			return &ValidationError{Field: "currency", Message: "required for purchase"}
		}
	}
	return nil
}

// Topic returns the queue subject for this event.
// Format: conversions.<partner>.<kind>, e.g. conversions.pinterest.purchase.
func (e *Event) Topic(partner string) string {
	return "conversions." + partner + "." + string(e.Kind)
}

// Marshal serializes the event for transport.
func (e *Event) Marshal() ([]byte, error) {
	return json.Marshal(e)
}

// UnmarshalEvent deserializes an event and validates it.
func UnmarshalEvent(data []byte) (*Event, error) {
	var e Event
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, err
	}
	if e.SchemaVersion == 0 {
		e.SchemaVersion = SchemaVersion
	}
	if err := e.Validate(); err != nil {
		return nil, err
	}
	return &e, nil
}

// ValidationError represents a field validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Field + ": " + e.Message
}
