// Pixelbridge - Dual-Channel Conversion Tracking for Commerce Storefronts
// Copyright 2026 Pixelbridge Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/pixelbridge/pixelbridge

package tracking

import "sync/atomic"

// Switch is the runtime kill switch operators flip through the API without a
// restart. It gates the ingest boundary; the static config flag still gates
// the tracker itself.
type Switch struct {
	enabled atomic.Bool
}

// NewSwitch creates a switch in the given position.
func NewSwitch(enabled bool) *Switch {
	s := &Switch{}
	s.enabled.Store(enabled)
	return s
}

// Enabled reports the current position.
func (s *Switch) Enabled() bool {
	return s.enabled.Load()
}

// SetEnabled flips the switch.
func (s *Switch) SetEnabled(enabled bool) {
	s.enabled.Store(enabled)
}
