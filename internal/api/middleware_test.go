// Pixelbridge - Dual-Channel Conversion Tracking for Commerce Storefronts
// Copyright 2026 Pixelbridge Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/pixelbridge/pixelbridge

package api

import (
	"net/http/httptest"
	"testing"
)

func TestUserContextClientIP(t *testing.T) {
	cases := []struct {
		name       string
		remoteAddr string
		want       string
	}{
		{"ipv4 with port", "203.0.113.9:51234", "203.0.113.9"},
		{"ipv6 with port", "[2001:db8::1]:51234", "2001:db8::1"},
		{"ipv6 loopback with port", "[::1]:8080", "::1"},
		{"bare ipv4 from real ip", "203.0.113.9", "203.0.113.9"},
		{"bare ipv6 from real ip", "2001:db8::1", "2001:db8::1"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := httptest.NewRequest("POST", "/track/page-view", nil)
			r.RemoteAddr = tc.remoteAddr
			if got := userContext(r).ClientIP; got != tc.want {
				t.Errorf("ClientIP = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestUserContextHashedFields(t *testing.T) {
	r := httptest.NewRequest("POST", "/webhooks/order-completed", nil)
	r.Header.Set("X-User-Email-Hash", "abc123")
	r.Header.Set("X-User-ID-Hash", "def456")
	r.Header.Set("User-Agent", "storefront/1.0")

	uc := userContext(r)
	if uc.HashedEmail != "abc123" || uc.HashedUserID != "def456" {
		t.Errorf("Hashed fields lost: %+v", uc)
	}
	if uc.UserAgent != "storefront/1.0" {
		t.Errorf("UserAgent = %q", uc.UserAgent)
	}
}
