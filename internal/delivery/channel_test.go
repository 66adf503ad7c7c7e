// Pixelbridge - Dual-Channel Conversion Tracking for Commerce Storefronts
// Copyright 2026 Pixelbridge Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/pixelbridge/pixelbridge

package delivery

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/goccy/go-json"

	"github.com/pixelbridge/pixelbridge/internal/config"
	"github.com/pixelbridge/pixelbridge/internal/tracking"
)

func testEvent(kind tracking.Kind) *tracking.Event {
	return &tracking.Event{
		SchemaVersion: tracking.SchemaVersion,
		Kind:          kind,
		CorrelationID: "corr-123",
		User:          tracking.UserContext{ClientIP: "203.0.113.7", UserAgent: "test"},
		OccurredAt:    time.Now().UTC(),
	}
}

func testChannel(t *testing.T, handler http.HandlerFunc) (*Channel, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	channel := NewChannel(
		config.ConnectConfig{
			BaseURL:         srv.URL,
			ConversionsPath: "/v3/conversions",
			Token:           "proxy-token",
			Timeout:         5 * time.Second,
		},
		config.TrackingConfig{Enabled: true, Partner: "pinterest", PixelID: "123456"},
		nil,
	)
	return channel, srv
}

func TestChannelSendSuccess(t *testing.T) {
	var gotAuth, gotPixel atomic.Value
	var received atomic.Value

	channel, _ := testChannel(t, func(w http.ResponseWriter, r *http.Request) {
		gotAuth.Store(r.Header.Get("Authorization"))
		gotPixel.Store(r.Header.Get("X-Pixel-ID"))
		var body map[string]interface{}
		_ = json.NewDecoder(r.Body).Decode(&body)
		received.Store(body)
		w.WriteHeader(http.StatusOK)
	})

	outcome := channel.Send(context.Background(), testEvent(tracking.KindPageView), nil)

	if !outcome.Success {
		t.Fatalf("Expected success, got %+v", outcome)
	}
	if outcome.StatusCode != http.StatusOK {
		t.Errorf("Expected 200, got %d", outcome.StatusCode)
	}
	if gotAuth.Load() != "Bearer proxy-token" {
		t.Errorf("Expected proxy auth header, got %v", gotAuth.Load())
	}
	if gotPixel.Load() != "123456" {
		t.Errorf("Expected pixel ID header, got %v", gotPixel.Load())
	}
	body, _ := received.Load().(map[string]interface{})
	if body["event_name"] != "page_view" {
		t.Errorf("Expected event_name in payload, got %v", body["event_name"])
	}
	if body["correlation_id"] != "corr-123" {
		t.Errorf("Expected correlation_id in payload, got %v", body["correlation_id"])
	}
}

func TestChannelSendFailure(t *testing.T) {
	t.Run("structured error body", func(t *testing.T) {
		channel, _ := testChannel(t, func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusUnprocessableEntity)
			_, _ = w.Write([]byte(`{"error":{"message":"invalid pixel id"}}`))
		})

		outcome := channel.Send(context.Background(), testEvent(tracking.KindPurchase), Args{ArgOrderKey: "abc"})
		if outcome.Success {
			t.Fatal("Expected failure")
		}
		if outcome.StatusCode != http.StatusUnprocessableEntity {
			t.Errorf("Expected 422, got %d", outcome.StatusCode)
		}
		if outcome.ErrorDetail != "invalid pixel id" {
			t.Errorf("Expected extracted error detail, got %q", outcome.ErrorDetail)
		}
	})

	t.Run("network failure yields outcome not panic", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
		channel := NewChannel(
			config.ConnectConfig{BaseURL: srv.URL, ConversionsPath: "/v3/conversions", Timeout: time.Second},
			config.TrackingConfig{Partner: "pinterest", PixelID: "123456"},
			nil,
		)
		srv.Close() // connection refused from here on

		outcome := channel.Send(context.Background(), testEvent(tracking.KindViewContent), nil)
		if outcome.Success {
			t.Fatal("Expected failure")
		}
		if outcome.StatusCode != 0 {
			t.Errorf("Expected no status code on transport failure, got %d", outcome.StatusCode)
		}
		if outcome.ErrorDetail == "" {
			t.Error("Expected transport error detail")
		}
	})
}

func TestChannelNotConfigured(t *testing.T) {
	channel := NewChannel(config.ConnectConfig{}, config.TrackingConfig{}, nil)

	notified := 0
	channel.Notifier().Subscribe(func(context.Context, *tracking.Event, Args, Outcome) {
		notified++
	})

	outcome := channel.Send(context.Background(), testEvent(tracking.KindPageView), nil)
	if outcome.Success {
		t.Error("Unconfigured channel must not report success")
	}
	if notified != 1 {
		t.Errorf("Post-send notification must fire even when unconfigured, got %d", notified)
	}
}

func TestChannelNotification(t *testing.T) {
	channel, _ := testChannel(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	var gotArgs Args
	var gotOutcome Outcome
	channel.Notifier().Subscribe(func(_ context.Context, _ *tracking.Event, args Args, outcome Outcome) {
		gotArgs = args
		gotOutcome = outcome
	})

	args := Args{ArgOrderKey: "wc_order_abc123", ArgOrderID: "42"}
	channel.Send(context.Background(), testEvent(tracking.KindPurchase), args)

	if gotArgs[ArgOrderKey] != "wc_order_abc123" {
		t.Errorf("Expected order key in notification args, got %v", gotArgs)
	}
	if !gotOutcome.Success {
		t.Errorf("Expected success outcome in notification, got %+v", gotOutcome)
	}
}

func TestChannelBreakerOpens(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	channel := NewChannel(
		config.ConnectConfig{
			BaseURL:             srv.URL,
			ConversionsPath:     "/v3/conversions",
			Timeout:             time.Second,
			BreakerMaxFailures:  2,
			BreakerOpenInterval: time.Minute,
		},
		config.TrackingConfig{Partner: "pinterest", PixelID: "123456"},
		nil,
	)
	srv.Close()

	for i := 0; i < 3; i++ {
		channel.Send(context.Background(), testEvent(tracking.KindPageView), nil)
	}

	// Breaker is open now; the send completes as a failure outcome.
	outcome := channel.Send(context.Background(), testEvent(tracking.KindPageView), nil)
	if outcome.Success {
		t.Error("Expected failure with open breaker")
	}
	if outcome.ErrorDetail == "" {
		t.Error("Expected breaker error detail")
	}
}
