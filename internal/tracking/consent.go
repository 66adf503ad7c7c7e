// Pixelbridge - Dual-Channel Conversion Tracking for Commerce Storefronts
// Copyright 2026 Pixelbridge Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/pixelbridge/pixelbridge

package tracking

import (
	"context"

	"github.com/pixelbridge/pixelbridge/internal/config"
)

// ConsentGate reports whether marketing events may be recorded for the
// current visitor. Every component checks it before building or sending a
// payload; a denial is a silent no-op, never an error.
type ConsentGate interface {
	Allow(ctx context.Context) bool
}

// consentDecisionKey carries the visitor's consent decision in the request
// context, set by the API layer from the storefront's consent header.
type consentContextKey struct{}

// ConsentDecision is an explicit visitor consent decision.
type ConsentDecision int

// Consent decisions.
const (
	ConsentUnknown ConsentDecision = iota
	ConsentGranted
	ConsentDenied
)

// WithConsentDecision stores the visitor's decision in the context.
func WithConsentDecision(ctx context.Context, d ConsentDecision) context.Context {
	return context.WithValue(ctx, consentContextKey{}, d)
}

// consentFromContext reads the decision, ConsentUnknown when absent.
func consentFromContext(ctx context.Context) ConsentDecision {
	if d, ok := ctx.Value(consentContextKey{}).(ConsentDecision); ok {
		return d
	}
	return ConsentUnknown
}

// openGate grants consent unconditionally. This is the fail-open behavior
// when no consent management platform is installed.
type openGate struct{}

func (openGate) Allow(context.Context) bool { return true }

// denyGate denies consent unconditionally.
type denyGate struct{}

func (denyGate) Allow(context.Context) bool { return false }

// headerGate honors the per-request decision forwarded by the storefront's
// consent plugin. An absent decision fails open, matching the behavior of
// a storefront without a consent platform.
type headerGate struct{}

func (headerGate) Allow(ctx context.Context) bool {
	return consentFromContext(ctx) != ConsentDenied
}

// NewConsentGate builds the gate for the configured mode. Unknown modes
// fail open.
func NewConsentGate(cfg config.ConsentConfig) ConsentGate {
	switch cfg.Mode {
	case config.ConsentModeDeny:
		return denyGate{}
	case config.ConsentModeHeader:
		return headerGate{}
	default:
		return openGate{}
	}
}
