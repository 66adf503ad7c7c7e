// Pixelbridge - Dual-Channel Conversion Tracking for Commerce Storefronts
// Copyright 2026 Pixelbridge Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/pixelbridge/pixelbridge

// Package state persists the per-order tracking state machine that keeps a
// purchase from being reported more than once across retries and page
// reloads. The server channel walks Untracked -> Queued -> Tracked; the
// pixel channel is an independent once-only flag.
package state

import (
	"context"
	"errors"
)

// Status is the server-channel tracking state of one order.
type Status int

// Server-channel states. Queued and Tracked are never re-entered once left:
// at most one delivery attempt is admitted per order.
const (
	StatusUntracked Status = iota
	StatusQueued
	StatusTracked
)

// String returns the state name as persisted.
func (s Status) String() string {
	switch s {
	case StatusQueued:
		return "queued"
	case StatusTracked:
		return "tracked"
	default:
		return "untracked"
	}
}

// parseStatus maps a persisted value back to a Status.
func parseStatus(raw string) Status {
	switch raw {
	case "queued":
		return StatusQueued
	case "tracked":
		return StatusTracked
	default:
		return StatusUntracked
	}
}

// ErrClosed is returned by operations on a closed store.
var ErrClosed = errors.New("state: store is closed")

// Store is the durable per-order tracking state. Implementations must make
// TransitionQueued and MarkPixelTracked atomic: under concurrent requests
// for the same order, exactly one caller wins.
type Store interface {
	// Status returns the order's server-channel state.
	Status(ctx context.Context, orderKey string) (Status, error)

	// TransitionQueued atomically moves Untracked -> Queued. Returns true
	// when this call performed the transition, false when the order was
	// already Queued or Tracked (the caller must not enqueue again).
	TransitionQueued(ctx context.Context, orderKey string) (bool, error)

	// MarkTracked moves the order to Tracked. Called on any delivery
	// outcome, success or failure, so a permanently failing payload is
	// not re-queued without bound.
	MarkTracked(ctx context.Context, orderKey string) error

	// MarkPixelTracked atomically sets the pixel-channel flag. Returns
	// true when this call set it, false when it was already set.
	MarkPixelTracked(ctx context.Context, orderKey string) (bool, error)

	// PixelTracked reports the pixel-channel flag.
	PixelTracked(ctx context.Context, orderKey string) (bool, error)

	// Close releases store resources.
	Close() error
}
