// Pixelbridge - Dual-Channel Conversion Tracking for Commerce Storefronts
// Copyright 2026 Pixelbridge Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/pixelbridge/pixelbridge

package pixel

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/pixelbridge/pixelbridge/internal/commerce"
	"github.com/pixelbridge/pixelbridge/internal/config"
	"github.com/pixelbridge/pixelbridge/internal/state"
	"github.com/pixelbridge/pixelbridge/internal/tracking"
)

func testInjector(t *testing.T, consentMode config.ConsentMode) (*Injector, *state.MemoryStore) {
	t.Helper()
	states := state.NewMemoryStore()
	t.Cleanup(func() { _ = states.Close() })

	trackingCfg := config.TrackingConfig{Enabled: true, Partner: "pinterest", PixelID: "123456"}
	pixelCfg := config.PixelConfig{
		LoaderURL:        "https://s.pinimg.com/ct/core.js",
		EventIDFieldName: "pixelbridge_event_id",
	}
	consent := tracking.NewConsentGate(config.ConsentConfig{Mode: consentMode})
	scripts := NewScriptCache(pixelCfg, trackingCfg.PixelID)
	return NewInjector(pixelCfg, trackingCfg, consent, states, scripts), states
}

func TestHeadSnippet(t *testing.T) {
	ctx := context.Background()

	t.Run("emits base code with consent", func(t *testing.T) {
		injector, _ := testInjector(t, config.ConsentModeOpen)
		snippet := injector.HeadSnippet(ctx)
		if !strings.Contains(snippet, "https://s.pinimg.com/ct/core.js") {
			t.Errorf("Snippet must reference the loader URL: %s", snippet)
		}
		if !strings.Contains(snippet, "123456") {
			t.Error("Snippet must initialize with the pixel ID")
		}
	})

	t.Run("consent denial silences the head", func(t *testing.T) {
		injector, _ := testInjector(t, config.ConsentModeDeny)
		if got := injector.HeadSnippet(ctx); got != "" {
			t.Errorf("Expected no snippet, got %s", got)
		}
	})

	t.Run("missing pixel id silences the head", func(t *testing.T) {
		states := state.NewMemoryStore()
		defer func() { _ = states.Close() }()
		injector := NewInjector(
			config.PixelConfig{},
			config.TrackingConfig{Enabled: true, Partner: "pinterest"},
			tracking.NewConsentGate(config.ConsentConfig{Mode: config.ConsentModeOpen}),
			states,
			NewScriptCache(config.PixelConfig{}, ""),
		)
		if got := injector.HeadSnippet(ctx); got != "" {
			t.Errorf("Expected no snippet without pixel ID, got %s", got)
		}
	})
}

func TestTrackingData(t *testing.T) {
	ctx := context.Background()
	product := &commerce.Product{ID: 7, Name: "Walnut Desk Organizer", Price: 24.95, Currency: "EUR"}

	t.Run("product page gets exactly a view content block", func(t *testing.T) {
		injector, _ := testInjector(t, config.ConsentModeOpen)
		data, err := injector.TrackingData(ctx, Page{Type: PageProduct, Product: product})
		if err != nil {
			t.Fatal(err)
		}
		if data.ViewContent == nil {
			t.Fatal("Expected VIEW_CONTENT block")
		}
		if data.StartCheckout != nil || data.PageView {
			t.Error("Only one page event may be emitted per render")
		}
		if data.ViewContent.EventID == "" {
			t.Error("VIEW_CONTENT must carry an event ID for the server-side twin")
		}
		if data.ViewContent.Products[0].ProductID != "7" {
			t.Errorf("Wrong product: %+v", data.ViewContent.Products)
		}
		if data.EventIDElName != "pixelbridge_event_id" {
			t.Errorf("Hidden field name missing: %s", data.EventIDElName)
		}
	})

	t.Run("browser correlation id is preserved", func(t *testing.T) {
		injector, _ := testInjector(t, config.ConsentModeOpen)
		data, err := injector.TrackingData(ctx, Page{Type: PageProduct, Product: product, CorrelationID: "browser-id"})
		if err != nil {
			t.Fatal(err)
		}
		if data.ViewContent.EventID != "browser-id" {
			t.Errorf("Expected browser event ID, got %s", data.ViewContent.EventID)
		}
	})

	t.Run("checkout page gets a start checkout block", func(t *testing.T) {
		injector, _ := testInjector(t, config.ConsentModeOpen)
		cart := &commerce.Cart{
			Currency: "EUR",
			Items:    []commerce.LineItem{{ProductID: 7, Name: "Walnut Desk Organizer", Quantity: 2, Price: 24.95}},
		}
		data, err := injector.TrackingData(ctx, Page{Type: PageCheckout, Cart: cart})
		if err != nil {
			t.Fatal(err)
		}
		if data.StartCheckout == nil {
			t.Fatal("Expected START_CHECKOUT block")
		}
		if data.ViewContent != nil || data.PageView {
			t.Error("Only one page event may be emitted per render")
		}
		if data.StartCheckout.Value != 49.90 || data.StartCheckout.Quantity != 2 {
			t.Errorf("Wrong cart snapshot: %+v", data.StartCheckout)
		}
	})

	t.Run("generic page gets a page view flag", func(t *testing.T) {
		injector, _ := testInjector(t, config.ConsentModeOpen)
		data, err := injector.TrackingData(ctx, Page{Type: PageGeneric})
		if err != nil {
			t.Fatal(err)
		}
		if !data.PageView {
			t.Error("Expected PAGE_VIEW flag")
		}
		if data.ViewContent != nil || data.StartCheckout != nil {
			t.Error("Only one page event may be emitted per render")
		}
	})

	t.Run("consent denied product view emits nothing", func(t *testing.T) {
		injector, _ := testInjector(t, config.ConsentModeDeny)
		data, err := injector.TrackingData(ctx, Page{Type: PageProduct, Product: product})
		if err != nil {
			t.Fatal(err)
		}
		if data != nil {
			t.Errorf("Denied visitor must get no tracking data, got %+v", data)
		}
	})
}

func TestConfirmationPagePurchase(t *testing.T) {
	ctx := context.Background()
	order := &commerce.Order{
		ID: 42, Key: "wc_order_abc123", Total: 59.90, Currency: "EUR",
		Items: []commerce.LineItem{
			{ProductID: 7, Name: "Walnut Desk Organizer", Quantity: 2, Price: 24.95},
			{ProductID: 9, Name: "Brass Pen Holder", Quantity: 1, Price: 10.00},
		},
	}

	t.Run("first render carries the purchase block", func(t *testing.T) {
		injector, _ := testInjector(t, config.ConsentModeOpen)
		data, err := injector.TrackingData(ctx, Page{Type: PageConfirmation, Order: order})
		if err != nil {
			t.Fatal(err)
		}
		if data.Checkout == nil {
			t.Fatal("Expected CHECKOUT block on first confirmation render")
		}
		if data.Checkout.EventID != tracking.PurchaseCorrelationID("wc_order_abc123") {
			t.Error("Pixel purchase must carry the deterministic correlation ID")
		}
		if len(data.Checkout.Products) != 2 || data.Checkout.OrderID != "42" {
			t.Errorf("Incomplete purchase block: %+v", data.Checkout)
		}
	})

	t.Run("reload renders without the purchase block", func(t *testing.T) {
		injector, _ := testInjector(t, config.ConsentModeOpen)
		if _, err := injector.TrackingData(ctx, Page{Type: PageConfirmation, Order: order}); err != nil {
			t.Fatal(err)
		}

		data, err := injector.TrackingData(ctx, Page{Type: PageConfirmation, Order: order})
		if err != nil {
			t.Fatal(err)
		}
		if data.Checkout != nil {
			t.Error("Reloaded confirmation page must not re-fire the pixel purchase")
		}
		if !data.PageView {
			t.Error("Reloaded page still gets its page view")
		}
	})

	t.Run("pixel flag is independent of the server channel", func(t *testing.T) {
		injector, states := testInjector(t, config.ConsentModeOpen)

		// Server channel already queued and delivered.
		if _, err := states.TransitionQueued(ctx, order.Key); err != nil {
			t.Fatal(err)
		}
		if err := states.MarkTracked(ctx, order.Key); err != nil {
			t.Fatal(err)
		}

		data, err := injector.TrackingData(ctx, Page{Type: PageConfirmation, Order: order})
		if err != nil {
			t.Fatal(err)
		}
		if data.Checkout == nil {
			t.Error("Server-channel state must not suppress the first pixel render")
		}
	})
}

func TestFooterScript(t *testing.T) {
	ctx := context.Background()
	injector, _ := testInjector(t, config.ConsentModeOpen)

	data, err := injector.TrackingData(ctx, Page{Type: PageGeneric})
	if err != nil {
		t.Fatal(err)
	}
	script, err := injector.FooterScript(data)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(script, "window.pinterestAdsTrackingData = ") {
		t.Errorf("Footer must assign the partner data object: %s", script)
	}
	if !strings.Contains(script, "pixelbridge_event_id") {
		t.Error("Footer must include the hidden field helper")
	}

	t.Run("nil data renders nothing", func(t *testing.T) {
		script, err := injector.FooterScript(nil)
		if err != nil || script != "" {
			t.Errorf("Expected an empty footer for nil data, got %q (%v)", script, err)
		}
	})

	t.Run("confirmation footer carries the purchase block", func(t *testing.T) {
		injector, _ := testInjector(t, config.ConsentModeOpen)
		order := &commerce.Order{
			ID: 42, Key: "wc_order_abc123", Total: 59.90, Currency: "EUR",
			Items: []commerce.LineItem{{ProductID: 7, Name: "Walnut Desk Organizer", Quantity: 2, Price: 24.95}},
		}

		data, err := injector.TrackingData(ctx, Page{Type: PageConfirmation, Order: order})
		if err != nil {
			t.Fatal(err)
		}
		script, err := injector.FooterScript(data)
		if err != nil {
			t.Fatal(err)
		}
		if !strings.Contains(script, "CHECKOUT") {
			t.Errorf("First confirmation footer must fire the pixel purchase: %s", script)
		}
		if !strings.Contains(script, tracking.PurchaseCorrelationID("wc_order_abc123")) {
			t.Error("Footer purchase must carry the deterministic correlation ID")
		}
	})

	t.Run("data and footer share one event id", func(t *testing.T) {
		injector, _ := testInjector(t, config.ConsentModeOpen)
		product := &commerce.Product{ID: 7, Name: "Walnut Desk Organizer", Price: 24.95, Currency: "EUR"}

		data, err := injector.TrackingData(ctx, Page{Type: PageProduct, Product: product})
		if err != nil {
			t.Fatal(err)
		}
		script, err := injector.FooterScript(data)
		if err != nil {
			t.Fatal(err)
		}
		if !strings.Contains(script, data.ViewContent.EventID) {
			t.Error("Footer must render the same event ID as the data object")
		}
	})
}

func TestScriptCache(t *testing.T) {
	ctx := context.Background()

	t.Run("serves and caches a valid remote script", func(t *testing.T) {
		fetches := 0
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			fetches++
			_, _ = w.Write([]byte("/* base code */ load('https://s.pinimg.com/ct/core.js');"))
		}))
		defer srv.Close()

		cache := NewScriptCache(config.PixelConfig{
			ScriptURL: srv.URL,
			LoaderURL: "https://s.pinimg.com/ct/core.js",
			CacheTTL:  time.Hour,
		}, "123456")

		first := cache.Get(ctx)
		second := cache.Get(ctx)
		if first != second || !strings.Contains(first, "base code") {
			t.Errorf("Expected cached remote script, got %q / %q", first, second)
		}
		if fetches != 1 {
			t.Errorf("Expected a single fetch within TTL, got %d", fetches)
		}
	})

	t.Run("rejects a script missing the loader url", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte("alert('not the vendor script')"))
		}))
		defer srv.Close()

		cache := NewScriptCache(config.PixelConfig{
			ScriptURL: srv.URL,
			LoaderURL: "https://s.pinimg.com/ct/core.js",
		}, "123456")

		got := cache.Get(ctx)
		if strings.Contains(got, "not the vendor script") {
			t.Error("Corrupt script must not be served")
		}
		if !strings.Contains(got, "https://s.pinimg.com/ct/core.js") {
			t.Error("Fallback template must reference the loader URL")
		}
	})

	t.Run("no remote url uses the built-in template", func(t *testing.T) {
		cache := NewScriptCache(config.PixelConfig{LoaderURL: "https://s.pinimg.com/ct/core.js"}, "123456")
		got := cache.Get(ctx)
		if !strings.Contains(got, "123456") || !strings.Contains(got, "core.js") {
			t.Errorf("Template must carry pixel ID and loader URL: %s", got)
		}
	})
}
