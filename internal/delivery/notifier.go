// Pixelbridge - Dual-Channel Conversion Tracking for Commerce Storefronts
// Copyright 2026 Pixelbridge Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/pixelbridge/pixelbridge

package delivery

import (
	"context"
	"sync"

	"github.com/pixelbridge/pixelbridge/internal/tracking"
)

// Listener observes completed delivery attempts. The idempotency state
// machine subscribes to mark orders Tracked; the live feed and audit trail
// subscribe for observability. Listeners must not block.
type Listener func(ctx context.Context, event *tracking.Event, args Args, outcome Outcome)

// Notifier fans a post-send notification out to all listeners. Decoupling
// "delivery attempted" from "state updated" lets several consumers react to
// one send.
type Notifier struct {
	mu        sync.RWMutex
	listeners []Listener
}

// NewNotifier creates an empty notifier.
func NewNotifier() *Notifier {
	return &Notifier{}
}

// Subscribe registers a listener. Intended for startup wiring; listeners
// cannot be removed.
func (n *Notifier) Subscribe(l Listener) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.listeners = append(n.listeners, l)
}

// Notify delivers the notification to every listener, in subscription order.
func (n *Notifier) Notify(ctx context.Context, event *tracking.Event, args Args, outcome Outcome) {
	n.mu.RLock()
	listeners := make([]Listener, len(n.listeners))
	copy(listeners, n.listeners)
	n.mu.RUnlock()

	for _, l := range listeners {
		l(ctx, event, args, outcome)
	}
}
