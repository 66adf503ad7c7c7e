// Pixelbridge - Dual-Channel Conversion Tracking for Commerce Storefronts
// Copyright 2026 Pixelbridge Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/pixelbridge/pixelbridge

package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/pixelbridge/pixelbridge/internal/authz"
)

// Router assembles the HTTP surface.
type Router struct {
	handler  *Handler
	enforcer *authz.Enforcer
}

// NewRouter wires the router.
func NewRouter(handler *Handler, enforcer *authz.Enforcer) *Router {
	return &Router{handler: handler, enforcer: enforcer}
}

// Setup configures all routes.
func (rt *Router) Setup() http.Handler {
	cfg := rt.handler.cfg
	r := chi.NewRouter()

	// Global middleware, applied to all routes in order.
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(metricsMiddleware)
	// CORS must be global so OPTIONS preflight from storefront origins works.
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.Security.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Tracking-Nonce", cfg.Consent.Header},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	publicLimit := cfg.Security.RateLimitPerMinute
	if publicLimit <= 0 {
		publicLimit = 600
	}

	// Storefront webhooks: shared-token auth, consent forwarded per request.
	r.Route("/webhooks", func(r chi.Router) {
		r.Use(httprate.LimitByIP(publicLimit, time.Minute))
		r.Use(webhookAuth(cfg.Security.WebhookToken))
		r.Use(killSwitch(rt.handler.kill))
		r.Use(consentMiddleware(cfg.Consent))

		r.Post("/order-completed", rt.handler.OrderCompleted)
		r.Post("/add-to-cart", rt.handler.AddToCart)
		r.Post("/checkout-started", rt.handler.CheckoutStarted)
		r.Post("/view-content", rt.handler.ViewContent)
		r.Post("/page-view", rt.handler.PageView)
	})

	// Browser tracking endpoints: nonce-protected, fired from storefront pages.
	r.Route("/track", func(r chi.Router) {
		r.Use(httprate.LimitByIP(publicLimit, time.Minute))
		r.Use(nonceAuth(rt.handler.nonces))
		r.Use(killSwitch(rt.handler.kill))
		r.Use(consentMiddleware(cfg.Consent))

		r.Post("/add-to-cart", rt.handler.TrackAddToCart)
		r.Post("/view-content", rt.handler.TrackViewContent)
		r.Post("/page-view", rt.handler.TrackPageView)
	})

	// Pixel rendering: called by the storefront while building pages.
	r.Route("/pixel", func(r chi.Router) {
		r.Use(httprate.LimitByIP(publicLimit, time.Minute))
		r.Use(consentMiddleware(cfg.Consent))

		r.Get("/nonce", rt.handler.PixelNonce)
		r.Get("/snippet", rt.handler.PixelSnippet)
		r.Post("/data", rt.handler.PixelData)
	})

	// Operator API: bearer tokens mapped to RBAC roles.
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(httprate.LimitByIP(publicLimit, time.Minute))
		r.Use(operatorAuth(cfg.Security, rt.enforcer))

		r.Get("/health", rt.handler.Health)
		r.Get("/orders/{orderKey}/status", rt.handler.OrderStatus)
		r.Get("/audit/recent", rt.handler.AuditRecent)
		r.Get("/audit/orders/{orderKey}", rt.handler.AuditForOrder)
		r.Get("/audit/failures", rt.handler.AuditFailures)
		r.Post("/audit/prune", rt.handler.AuditPrune)
		r.Get("/tracking", rt.handler.TrackingStatus)
		r.Put("/tracking", rt.handler.TrackingUpdate)
		r.Get("/feed", rt.handler.Feed)
	})

	r.Get("/healthz", rt.handler.Health)
	r.Handle("/metrics", promhttp.Handler())

	return r
}
