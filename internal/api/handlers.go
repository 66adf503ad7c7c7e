// Pixelbridge - Dual-Channel Conversion Tracking for Commerce Storefronts
// Copyright 2026 Pixelbridge Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/pixelbridge/pixelbridge

// Package api exposes the HTTP surface of Pixelbridge: storefront webhooks,
// nonce-protected browser tracking endpoints, pixel snippet rendering, and
// the operator API (order status, audit trail, live delivery feed).
package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/pixelbridge/pixelbridge/internal/audit"
	"github.com/pixelbridge/pixelbridge/internal/commerce"
	"github.com/pixelbridge/pixelbridge/internal/config"
	"github.com/pixelbridge/pixelbridge/internal/livefeed"
	"github.com/pixelbridge/pixelbridge/internal/logging"
	"github.com/pixelbridge/pixelbridge/internal/pixel"
	"github.com/pixelbridge/pixelbridge/internal/state"
	"github.com/pixelbridge/pixelbridge/internal/tracking"
)

// Handler carries the dependencies of every endpoint.
type Handler struct {
	cfg      *config.Config
	tracker  *tracking.Router
	injector *pixel.Injector
	states   state.Store
	trail    *audit.Trail // nil when the audit trail is disabled
	hub      *livefeed.Hub
	nonces   *NonceIssuer
	store    commerce.Store
	kill     *tracking.Switch
	validate *validator.Validate
	started  time.Time
}

// NewHandler wires the handler.
func NewHandler(cfg *config.Config, tracker *tracking.Router, injector *pixel.Injector, states state.Store, trail *audit.Trail, hub *livefeed.Hub, store commerce.Store, kill *tracking.Switch) *Handler {
	return &Handler{
		cfg:      cfg,
		tracker:  tracker,
		injector: injector,
		states:   states,
		trail:    trail,
		hub:      hub,
		nonces:   NewNonceIssuer(cfg.Security),
		store:    store,
		kill:     kill,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		started:  time.Now(),
	}
}

// --- Storefront webhooks ---

type orderCompletedRequest struct {
	OrderID int64 `json:"order_id" validate:"required,gt=0"`
}

// OrderCompleted handles the order-completion webhook. The storefront fires
// it on completion and again on status replays; repeats are absorbed by the
// order state machine and acknowledged with 200.
func (h *Handler) OrderCompleted(w http.ResponseWriter, r *http.Request) {
	var req orderCompletedRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if err := h.validate.Struct(&req); err != nil {
		respondError(w, http.StatusBadRequest, "order_id is required")
		return
	}

	if err := h.tracker.HandleOrderCompleted(r.Context(), req.OrderID, userContext(r)); err != nil {
		h.trackingError(w, err, "order completed webhook failed")
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "accepted"})
}

type addToCartRequest struct {
	ProductID int64  `json:"product_id" validate:"required,gt=0"`
	Quantity  int    `json:"quantity" validate:"omitempty,gt=0"`
	EventID   string `json:"event_id"`
	AjaxCart  bool   `json:"ajax_cart"`
}

// AddToCart handles the server-side add-to-cart form hook.
func (h *Handler) AddToCart(w http.ResponseWriter, r *http.Request) {
	var req addToCartRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if err := h.validate.Struct(&req); err != nil {
		respondError(w, http.StatusBadRequest, "product_id is required")
		return
	}
	if req.Quantity == 0 {
		req.Quantity = 1
	}

	err := h.tracker.HandleAddToCartForm(r.Context(), req.ProductID, req.Quantity, req.AjaxCart, req.EventID, userContext(r))
	if err != nil {
		h.trackingError(w, err, "add-to-cart webhook failed")
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "accepted"})
}

type checkoutStartedRequest struct {
	CartToken string `json:"cart_token" validate:"required"`
	EventID   string `json:"event_id"`
}

// CheckoutStarted handles the checkout-start hook.
func (h *Handler) CheckoutStarted(w http.ResponseWriter, r *http.Request) {
	var req checkoutStartedRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if err := h.validate.Struct(&req); err != nil {
		respondError(w, http.StatusBadRequest, "cart_token is required")
		return
	}

	if err := h.tracker.HandleStartCheckout(r.Context(), req.CartToken, req.EventID, userContext(r)); err != nil {
		h.trackingError(w, err, "checkout-started webhook failed")
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "accepted"})
}

type viewContentRequest struct {
	ProductID int64  `json:"product_id" validate:"required,gt=0"`
	EventID   string `json:"event_id"`
}

// ViewContent handles the server-rendered product view hook. Storefronts
// without the inline script report product views from this side instead.
func (h *Handler) ViewContent(w http.ResponseWriter, r *http.Request) {
	var req viewContentRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if err := h.validate.Struct(&req); err != nil {
		respondError(w, http.StatusBadRequest, "product_id is required")
		return
	}

	if err := h.tracker.HandleViewContent(r.Context(), req.ProductID, req.EventID, userContext(r)); err != nil {
		h.trackingError(w, err, "view-content webhook failed")
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "accepted"})
}

type pageViewRequest struct {
	EventID string `json:"event_id"`
}

// PageView handles the server-rendered generic page view hook.
func (h *Handler) PageView(w http.ResponseWriter, r *http.Request) {
	var req pageViewRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if err := h.tracker.HandlePageView(r.Context(), req.EventID, userContext(r)); err != nil {
		h.trackingError(w, err, "page-view webhook failed")
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "accepted"})
}

// --- Browser tracking endpoints ---

// ajaxRequest mirrors the payload shape the inline storefront script posts.
type ajaxRequest struct {
	Payload ajaxPayload `json:"payload"`
}

type ajaxPayload struct {
	ProductID    int64  `json:"productId"`
	Quantity     int    `json:"quantity"`
	ConversionID string `json:"conversionId"`
}

// TrackAddToCart handles the browser-side add-to-cart call fired by AJAX
// carts. It carries the correlation ID the pixel already reported with.
func (h *Handler) TrackAddToCart(w http.ResponseWriter, r *http.Request) {
	var req ajaxRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Payload.ProductID <= 0 {
		respondError(w, http.StatusBadRequest, "productId is required")
		return
	}
	quantity := req.Payload.Quantity
	if quantity == 0 {
		quantity = 1
	}

	err := h.tracker.HandleAddToCartAjax(r.Context(), req.Payload.ProductID, quantity, req.Payload.ConversionID, userContext(r))
	if err != nil {
		h.trackingError(w, err, "ajax add-to-cart failed")
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "accepted"})
}

// TrackViewContent handles a browser-reported product view.
func (h *Handler) TrackViewContent(w http.ResponseWriter, r *http.Request) {
	var req ajaxRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Payload.ProductID <= 0 {
		respondError(w, http.StatusBadRequest, "productId is required")
		return
	}

	err := h.tracker.HandleViewContent(r.Context(), req.Payload.ProductID, req.Payload.ConversionID, userContext(r))
	if err != nil {
		h.trackingError(w, err, "view-content tracking failed")
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "accepted"})
}

// TrackPageView handles a browser-reported generic page view.
func (h *Handler) TrackPageView(w http.ResponseWriter, r *http.Request) {
	var req ajaxRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if err := h.tracker.HandlePageView(r.Context(), req.Payload.ConversionID, userContext(r)); err != nil {
		h.trackingError(w, err, "page-view tracking failed")
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "accepted"})
}

// --- Pixel rendering ---

// PixelNonce mints a nonce for the browser tracking endpoints. The storefront
// embeds it in the rendered page alongside the footer script.
func (h *Handler) PixelNonce(w http.ResponseWriter, _ *http.Request) {
	nonce, err := h.nonces.Mint()
	if err != nil {
		respondError(w, http.StatusInternalServerError, "nonce issuance failed")
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"nonce": nonce})
}

// PixelSnippet returns the head snippet for the current visitor. Consent is
// read from the forwarded header, so a denied visitor gets an empty snippet.
func (h *Handler) PixelSnippet(w http.ResponseWriter, r *http.Request) {
	if !h.kill.Enabled() {
		respondJSON(w, http.StatusOK, map[string]string{"head": ""})
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{
		"head": h.injector.HeadSnippet(r.Context()),
	})
}

type pixelDataRequest struct {
	PageType  string `json:"page_type" validate:"required,oneof=product checkout confirmation generic"`
	ProductID int64  `json:"product_id"`
	OrderID   int64  `json:"order_id"`
	CartToken string `json:"cart_token"`
	EventID   string `json:"event_id"`
}

type pixelDataResponse struct {
	Data   *pixel.Data `json:"data"`
	Footer string      `json:"footer"`
}

// PixelData resolves the page's commerce context and returns the tracking
// data object plus the rendered footer script.
func (h *Handler) PixelData(w http.ResponseWriter, r *http.Request) {
	if !h.kill.Enabled() {
		respondJSON(w, http.StatusOK, pixelDataResponse{})
		return
	}

	var req pixelDataRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if err := h.validate.Struct(&req); err != nil {
		respondError(w, http.StatusBadRequest, "page_type must be one of product, checkout, confirmation, generic")
		return
	}

	page := pixel.Page{Type: pixel.PageType(req.PageType), CorrelationID: req.EventID}
	ctx := r.Context()

	switch page.Type {
	case pixel.PageProduct:
		product, err := h.store.ResolveProduct(ctx, req.ProductID)
		if err != nil {
			h.trackingError(w, err, "resolve product for pixel data failed")
			return
		}
		page.Product = product
	case pixel.PageCheckout:
		cart, err := h.store.ResolveCart(ctx, req.CartToken)
		if err != nil {
			h.trackingError(w, err, "resolve cart for pixel data failed")
			return
		}
		page.Cart = cart
	case pixel.PageConfirmation:
		order, err := h.store.ResolveOrder(ctx, req.OrderID)
		if err != nil {
			h.trackingError(w, err, "resolve order for pixel data failed")
			return
		}
		page.Order = order
	}

	data, err := h.injector.TrackingData(ctx, page)
	if err != nil {
		h.trackingError(w, err, "build pixel data failed")
		return
	}
	footer, err := h.injector.FooterScript(data)
	if err != nil {
		h.trackingError(w, err, "render footer script failed")
		return
	}
	respondJSON(w, http.StatusOK, pixelDataResponse{Data: data, Footer: footer})
}

// --- Operator API ---

type orderStatusResponse struct {
	OrderKey     string `json:"order_key"`
	Status       string `json:"status"`
	PixelTracked bool   `json:"pixel_tracked"`
}

// OrderStatus reports both channels' tracking state for one order.
func (h *Handler) OrderStatus(w http.ResponseWriter, r *http.Request) {
	orderKey := chi.URLParam(r, "orderKey")
	if orderKey == "" {
		respondError(w, http.StatusBadRequest, "order key is required")
		return
	}

	status, err := h.states.Status(r.Context(), orderKey)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "state lookup failed")
		return
	}
	pixelTracked, err := h.states.PixelTracked(r.Context(), orderKey)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "state lookup failed")
		return
	}
	respondJSON(w, http.StatusOK, orderStatusResponse{
		OrderKey:     orderKey,
		Status:       status.String(),
		PixelTracked: pixelTracked,
	})
}

// AuditRecent lists the newest delivery attempts.
func (h *Handler) AuditRecent(w http.ResponseWriter, r *http.Request) {
	if h.trail == nil {
		respondError(w, http.StatusNotFound, "audit trail is disabled")
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	attempts, err := h.trail.RecentAttempts(r.Context(), limit)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "audit query failed")
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"attempts": attempts})
}

// AuditForOrder lists every recorded attempt for one order.
func (h *Handler) AuditForOrder(w http.ResponseWriter, r *http.Request) {
	if h.trail == nil {
		respondError(w, http.StatusNotFound, "audit trail is disabled")
		return
	}
	orderKey := chi.URLParam(r, "orderKey")
	attempts, err := h.trail.AttemptsForOrder(r.Context(), orderKey)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "audit query failed")
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"attempts": attempts})
}

// AuditFailures aggregates failed delivery attempts by event kind.
func (h *Handler) AuditFailures(w http.ResponseWriter, r *http.Request) {
	if h.trail == nil {
		respondError(w, http.StatusNotFound, "audit trail is disabled")
		return
	}
	counts, err := h.trail.FailureCounts(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, "audit query failed")
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"failures": counts})
}

type trackingStateResponse struct {
	Enabled    bool `json:"enabled"`
	Configured bool `json:"configured"`
}

// TrackingStatus reports the runtime kill switch position alongside the
// static config flag.
func (h *Handler) TrackingStatus(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, trackingStateResponse{
		Enabled:    h.kill.Enabled(),
		Configured: h.cfg.Tracking.Enabled,
	})
}

type trackingUpdateRequest struct {
	Enabled *bool `json:"enabled" validate:"required"`
}

// TrackingUpdate flips the runtime kill switch. Admin only; the change does
// not survive a restart, which reloads the config flag.
func (h *Handler) TrackingUpdate(w http.ResponseWriter, r *http.Request) {
	var req trackingUpdateRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if err := h.validate.Struct(&req); err != nil {
		respondError(w, http.StatusBadRequest, "enabled is required")
		return
	}

	h.kill.SetEnabled(*req.Enabled)
	logging.Info().Bool("enabled", *req.Enabled).Msg("Tracking switch updated")
	respondJSON(w, http.StatusOK, trackingStateResponse{
		Enabled:    h.kill.Enabled(),
		Configured: h.cfg.Tracking.Enabled,
	})
}

// AuditPrune drops attempts past the retention window.
func (h *Handler) AuditPrune(w http.ResponseWriter, r *http.Request) {
	if h.trail == nil {
		respondError(w, http.StatusNotFound, "audit trail is disabled")
		return
	}
	pruned, err := h.trail.Prune(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, "audit prune failed")
		return
	}
	respondJSON(w, http.StatusOK, map[string]int64{"pruned": pruned})
}

// Feed upgrades the connection into the live delivery feed.
func (h *Handler) Feed(w http.ResponseWriter, r *http.Request) {
	livefeed.ServeWS(h.hub, w, r)
}

// Health reports liveness.
func (h *Handler) Health(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"status":         "ok",
		"uptime_seconds": int64(time.Since(h.started).Seconds()),
	})
}

// trackingError maps domain errors onto HTTP statuses. Entity lookups that
// miss are the caller's fault; everything else is ours.
func (h *Handler) trackingError(w http.ResponseWriter, err error, msg string) {
	logging.Warn().Err(err).Msg(msg)
	switch {
	case errors.Is(err, commerce.ErrNotFound):
		respondError(w, http.StatusNotFound, "not found")
	case errors.Is(err, tracking.ErrEmptyCart):
		respondError(w, http.StatusUnprocessableEntity, "cart is empty")
	default:
		respondError(w, http.StatusInternalServerError, "tracking failed")
	}
}
