// Pixelbridge - Dual-Channel Conversion Tracking for Commerce Storefronts
// Copyright 2026 Pixelbridge Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/pixelbridge/pixelbridge

// Package testinfra provides container-backed infrastructure for integration
// tests. Everything here is behind the integration build tag; unit tests use
// the in-process fakes (commerce.Fixture, state.MemoryStore, Watermill's
// GoChannel pub/sub) instead.
//
// The NATS container runs a real nats-server with JetStream so queue
// integration tests exercise stream provisioning, dedup and redelivery the
// way production does:
//
//	func TestQueueRoundTrip(t *testing.T) {
//	    testinfra.SkipIfNoDocker(t)
//	    ctx := context.Background()
//	    nats, err := testinfra.NewNATSContainer(ctx)
//	    if err != nil {
//	        t.Fatal(err)
//	    }
//	    defer testinfra.CleanupContainer(t, ctx, nats.Container)
//
//	    cfg := config.QueueConfig{URL: nats.URL, StreamName: "CONVERSIONS"}
//	    // ...
//	}
package testinfra
