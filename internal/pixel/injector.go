// Pixelbridge - Dual-Channel Conversion Tracking for Commerce Storefronts
// Copyright 2026 Pixelbridge Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/pixelbridge/pixelbridge

package pixel

import (
	"context"
	"fmt"
	"strconv"

	"github.com/goccy/go-json"

	"github.com/pixelbridge/pixelbridge/internal/commerce"
	"github.com/pixelbridge/pixelbridge/internal/config"
	"github.com/pixelbridge/pixelbridge/internal/logging"
	"github.com/pixelbridge/pixelbridge/internal/metrics"
	"github.com/pixelbridge/pixelbridge/internal/state"
	"github.com/pixelbridge/pixelbridge/internal/tracking"
)

// PageType identifies what kind of storefront page is being rendered.
type PageType string

// Page types.
const (
	PageProduct      PageType = "product"
	PageCheckout     PageType = "checkout"
	PageConfirmation PageType = "confirmation"
	PageGeneric      PageType = "generic"
)

// Page describes the page render the storefront is asking data for. Only
// the fields relevant to the page type are set.
type Page struct {
	Type PageType

	// Product for product pages.
	Product *commerce.Product

	// Cart for checkout pages.
	Cart *commerce.Cart

	// Order for confirmation pages.
	Order *commerce.Order

	// CorrelationID is the browser-generated ID for the page's primary
	// event. Empty means the injector mints one; the server-side twin is
	// expected to receive the same ID through the tracking endpoints.
	CorrelationID string
}

// ProductData is one product entry inside the page data object.
type ProductData struct {
	ProductID string  `json:"product_id"`
	Name      string  `json:"product_name,omitempty"`
	Price     float64 `json:"product_price,omitempty"`
	Quantity  int     `json:"product_quantity,omitempty"`
}

// EventBlock is one client-side event directive.
type EventBlock struct {
	EventID  string        `json:"event_id"`
	Value    float64       `json:"value,omitempty"`
	Currency string        `json:"currency,omitempty"`
	Quantity int           `json:"order_quantity,omitempty"`
	OrderID  string        `json:"order_id,omitempty"`
	Products []ProductData `json:"products,omitempty"`
}

// Data is the page-injected tracking object the base-code script reads,
// exposed to the browser as window.<partner>AdsTrackingData. At most one of
// ViewContent, StartCheckout and PageView is set per page render.
type Data struct {
	PixelID       string      `json:"pixel_id"`
	PixelData     PixelData   `json:"pixel_data"`
	ViewContent   *EventBlock `json:"VIEW_CONTENT,omitempty"`
	StartCheckout *EventBlock `json:"START_CHECKOUT,omitempty"`
	PageView      bool        `json:"PAGE_VIEW,omitempty"`
	Checkout      *EventBlock `json:"CHECKOUT,omitempty"`
	EventIDElName string      `json:"event_id_el_name"`
}

// PixelData carries page-level commerce context.
type PixelData struct {
	Currency string        `json:"currency,omitempty"`
	Products []ProductData `json:"products,omitempty"`
}

// Injector builds head snippets and per-page tracking data. Nothing is
// emitted without consent or before the pixel ID is configured.
type Injector struct {
	pixelCfg    config.PixelConfig
	trackingCfg config.TrackingConfig
	consent     tracking.ConsentGate
	states      state.Store
	scripts     *ScriptCache
}

// NewInjector wires the injector.
func NewInjector(pixelCfg config.PixelConfig, trackingCfg config.TrackingConfig, consent tracking.ConsentGate, states state.Store, scripts *ScriptCache) *Injector {
	return &Injector{
		pixelCfg:    pixelCfg,
		trackingCfg: trackingCfg,
		consent:     consent,
		states:      states,
		scripts:     scripts,
	}
}

// active mirrors the tracker's gate: disabled or unconfigured means silence.
func (i *Injector) active() bool {
	return i.trackingCfg.Enabled && i.trackingCfg.PixelID != ""
}

// HeadSnippet returns the base-code script for the page head, or "" when
// tracking is off or the visitor denied consent.
func (i *Injector) HeadSnippet(ctx context.Context) string {
	if !i.active() || !i.consent.Allow(ctx) {
		return ""
	}
	return "<script type=\"text/javascript\">" + i.scripts.Get(ctx) + "</script>"
}

// TrackingData builds the page data object. Returns nil when nothing should
// be emitted (tracking off, consent denied).
func (i *Injector) TrackingData(ctx context.Context, page Page) (*Data, error) {
	if !i.active() || !i.consent.Allow(ctx) {
		return nil, nil
	}

	data := &Data{
		PixelID:       i.trackingCfg.PixelID,
		EventIDElName: i.pixelCfg.EventIDFieldName,
	}

	switch page.Type {
	case PageProduct:
		if page.Product == nil {
			return nil, tracking.ErrProductNotFound
		}
		product := productData(page.Product, 0)
		data.PixelData = PixelData{Currency: page.Product.Currency, Products: []ProductData{product}}
		data.ViewContent = &EventBlock{
			EventID:  tracking.CorrelationIDOrNew(page.CorrelationID),
			Value:    page.Product.Price,
			Currency: page.Product.Currency,
			Products: []ProductData{product},
		}
		metrics.SnippetRenders.WithLabelValues(string(PageProduct)).Inc()

	case PageCheckout:
		if page.Cart.IsEmpty() {
			return nil, tracking.ErrEmptyCart
		}
		products := lineData(page.Cart.Items)
		quantity := 0
		for _, line := range page.Cart.Items {
			quantity += line.Quantity
		}
		data.PixelData = PixelData{Currency: page.Cart.Currency, Products: products}
		data.StartCheckout = &EventBlock{
			EventID:  tracking.CorrelationIDOrNew(page.CorrelationID),
			Value:    page.Cart.Total(),
			Currency: page.Cart.Currency,
			Quantity: quantity,
			Products: products,
		}
		metrics.SnippetRenders.WithLabelValues(string(PageCheckout)).Inc()

	case PageConfirmation:
		data.PageView = true
		if err := i.attachPurchase(ctx, page.Order, data); err != nil {
			return nil, err
		}
		metrics.SnippetRenders.WithLabelValues(string(PageConfirmation)).Inc()

	default:
		data.PageView = true
		metrics.SnippetRenders.WithLabelValues(string(PageGeneric)).Inc()
	}

	return data, nil
}

// attachPurchase adds the browser-side purchase event on the first
// confirmation render only. The pixel channel has its own once-only flag,
// independent of the server channel: a reloaded confirmation page renders
// the data object again but without the CHECKOUT block.
func (i *Injector) attachPurchase(ctx context.Context, order *commerce.Order, data *Data) error {
	if order == nil {
		return tracking.ErrOrderNotFound
	}

	first, err := i.states.MarkPixelTracked(ctx, order.Key)
	if err != nil {
		return fmt.Errorf("mark pixel tracked: %w", err)
	}
	if !first {
		logging.Debug().Str("order_key", order.Key).Msg("pixel purchase already rendered, skipping")
		return nil
	}

	products := lineData(order.Items)
	quantity := 0
	for _, line := range order.Items {
		quantity += line.Quantity
	}
	data.PixelData = PixelData{Currency: order.Currency, Products: products}
	data.Checkout = &EventBlock{
		// Same deterministic ID as the server-side report, so the ad
		// platform merges the two.
		EventID:  tracking.PurchaseCorrelationID(order.Key),
		Value:    order.Total,
		Currency: order.Currency,
		Quantity: quantity,
		OrderID:  strconv.FormatInt(order.ID, 10),
		Products: products,
	}
	return nil
}

// FooterScript renders an already-built data object as an inline footer
// script, plus the helper that fills the hidden event-ID field right before
// an add-to-cart form submits. Taking the built object keeps a single
// TrackingData call per page render: building twice would consume the
// once-only confirmation flag and mint mismatched event IDs.
func (i *Injector) FooterScript(data *Data) (string, error) {
	if data == nil {
		return "", nil
	}

	encoded, err := json.Marshal(data)
	if err != nil {
		return "", fmt.Errorf("marshal tracking data: %w", err)
	}

	objectName := "window." + i.trackingCfg.Partner + "AdsTrackingData"
	script := "<script type=\"text/javascript\">" +
		objectName + " = " + string(encoded) + ";" +
		fillFieldHelper(i.pixelCfg.EventIDFieldName) +
		"</script>"
	return script, nil
}

// fillFieldHelper returns JS that writes a fresh UUID into the hidden
// event-ID field on form submit, so both channels of that one click share it.
func fillFieldHelper(fieldName string) string {
	if fieldName == "" {
		return ""
	}
	return "document.addEventListener('submit',function(e){" +
		"var f=e.target.querySelector('input[name=\"" + fieldName + "\"]');" +
		"if(f&&!f.value){f.value=(crypto.randomUUID?crypto.randomUUID():Date.now()+'-'+Math.random());}" +
		"},true);"
}

func productData(p *commerce.Product, quantity int) ProductData {
	return ProductData{
		ProductID: strconv.FormatInt(p.ID, 10),
		Name:      p.Name,
		Price:     p.Price,
		Quantity:  quantity,
	}
}

func lineData(items []commerce.LineItem) []ProductData {
	out := make([]ProductData, 0, len(items))
	for _, line := range items {
		out = append(out, ProductData{
			ProductID: strconv.FormatInt(line.ProductID, 10),
			Name:      line.Name,
			Price:     line.Price,
			Quantity:  line.Quantity,
		})
	}
	return out
}
