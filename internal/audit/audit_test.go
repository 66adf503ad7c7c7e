// Pixelbridge - Dual-Channel Conversion Tracking for Commerce Storefronts
// Copyright 2026 Pixelbridge Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/pixelbridge/pixelbridge

package audit

import (
	"context"
	"testing"
	"time"

	"github.com/pixelbridge/pixelbridge/internal/config"
	"github.com/pixelbridge/pixelbridge/internal/delivery"
	"github.com/pixelbridge/pixelbridge/internal/tracking"
)

func openTrail(t *testing.T, retentionDays int) *Trail {
	t.Helper()
	trail, err := Open(config.AuditConfig{Enabled: true, RetentionDays: retentionDays})
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { _ = trail.Close() })
	return trail
}

func TestTrailRecordAndQuery(t *testing.T) {
	ctx := context.Background()
	trail := openTrail(t, 90)

	trail.Record(Attempt{
		AttemptedAt:   time.Now().UTC().Add(-time.Minute),
		EventKind:     "purchase",
		CorrelationID: "corr-1",
		OrderKey:      "wc_order_abc123",
		StatusCode:    200,
		Success:       true,
	})
	trail.Record(Attempt{
		AttemptedAt:   time.Now().UTC(),
		EventKind:     "add_to_cart",
		CorrelationID: "corr-2",
		StatusCode:    422,
		Success:       false,
		ErrorDetail:   "invalid pixel id",
	})

	recent, err := trail.RecentAttempts(ctx, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(recent) != 2 {
		t.Fatalf("Expected 2 attempts, got %d", len(recent))
	}
	if recent[0].CorrelationID != "corr-2" {
		t.Errorf("Expected newest first, got %+v", recent[0])
	}
	if recent[0].ErrorDetail != "invalid pixel id" {
		t.Errorf("Error detail lost: %+v", recent[0])
	}

	forOrder, err := trail.AttemptsForOrder(ctx, "wc_order_abc123")
	if err != nil {
		t.Fatal(err)
	}
	if len(forOrder) != 1 || forOrder[0].EventKind != "purchase" {
		t.Errorf("Unexpected order attempts: %+v", forOrder)
	}
}

func TestTrailListener(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	trail := openTrail(t, 90)

	done := make(chan struct{})
	go func() {
		_ = trail.Run(ctx)
		close(done)
	}()

	event := &tracking.Event{
		Kind:          tracking.KindPurchase,
		CorrelationID: "corr-3",
		OrderKey:      "wc_order_abc123",
	}
	trail.Listener()(ctx, event, delivery.Args{delivery.ArgOrderKey: "wc_order_abc123"}, delivery.Outcome{Success: true, StatusCode: 200})

	cancel()
	<-done

	attempts, err := trail.AttemptsForOrder(context.Background(), "wc_order_abc123")
	if err != nil {
		t.Fatal(err)
	}
	if len(attempts) != 1 || !attempts[0].Success {
		t.Errorf("Listener record not persisted: %+v", attempts)
	}
}

func TestTrailFailureCounts(t *testing.T) {
	ctx := context.Background()
	trail := openTrail(t, 90)

	now := time.Now().UTC()
	for i := 0; i < 3; i++ {
		trail.Record(Attempt{AttemptedAt: now, EventKind: "purchase", CorrelationID: "p", StatusCode: 422})
	}
	trail.Record(Attempt{AttemptedAt: now, EventKind: "add_to_cart", CorrelationID: "a", StatusCode: 0, ErrorDetail: "connect refused"})
	trail.Record(Attempt{AttemptedAt: now, EventKind: "purchase", CorrelationID: "ok", StatusCode: 200, Success: true})

	counts, err := trail.FailureCounts(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(counts) != 2 {
		t.Fatalf("Expected 2 kinds with failures, got %+v", counts)
	}
	if counts[0].EventKind != "purchase" || counts[0].Failures != 3 {
		t.Errorf("Expected purchase first with 3 failures, got %+v", counts[0])
	}
	if counts[1].EventKind != "add_to_cart" || counts[1].Failures != 1 {
		t.Errorf("Unexpected second entry: %+v", counts[1])
	}
}

func TestTrailPrune(t *testing.T) {
	ctx := context.Background()
	trail := openTrail(t, 30)

	trail.Record(Attempt{
		AttemptedAt:   time.Now().UTC().AddDate(0, 0, -60),
		EventKind:     "purchase",
		CorrelationID: "old",
		StatusCode:    200,
		Success:       true,
	})
	trail.Record(Attempt{
		AttemptedAt:   time.Now().UTC(),
		EventKind:     "purchase",
		CorrelationID: "new",
		StatusCode:    200,
		Success:       true,
	})

	removed, err := trail.Prune(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if removed != 1 {
		t.Errorf("Expected 1 pruned row, got %d", removed)
	}

	remaining, err := trail.RecentAttempts(ctx, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(remaining) != 1 || remaining[0].CorrelationID != "new" {
		t.Errorf("Wrong rows survived pruning: %+v", remaining)
	}
}
