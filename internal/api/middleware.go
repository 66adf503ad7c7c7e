// Pixelbridge - Dual-Channel Conversion Tracking for Commerce Storefronts
// Copyright 2026 Pixelbridge Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/pixelbridge/pixelbridge

package api

import (
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/pixelbridge/pixelbridge/internal/authz"
	"github.com/pixelbridge/pixelbridge/internal/config"
	"github.com/pixelbridge/pixelbridge/internal/metrics"
	"github.com/pixelbridge/pixelbridge/internal/tracking"
)

// consentMiddleware lifts the storefront's forwarded consent decision into
// the request context. Absent or unrecognized values stay Unknown; the gate
// decides what Unknown means.
func consentMiddleware(cfg config.ConsentConfig) func(http.Handler) http.Handler {
	header := cfg.Header
	if header == "" {
		header = "X-Marketing-Consent"
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			switch strings.ToLower(r.Header.Get(header)) {
			case "granted":
				r = r.WithContext(tracking.WithConsentDecision(r.Context(), tracking.ConsentGranted))
			case "denied":
				r = r.WithContext(tracking.WithConsentDecision(r.Context(), tracking.ConsentDenied))
			}
			next.ServeHTTP(w, r)
		})
	}
}

// killSwitch short-circuits ingest routes while tracking is switched off at
// runtime. Callers still get a 200 so storefront hooks do not retry.
func killSwitch(sw *tracking.Switch) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !sw.Enabled() {
				respondJSON(w, http.StatusOK, map[string]string{"status": "disabled"})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// webhookAuth authenticates storefront webhook calls with a shared token.
// An empty configured token disables the webhook surface outright rather
// than leaving it open.
func webhookAuth(token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if token == "" || bearerToken(r) != token {
				respondError(w, http.StatusUnauthorized, "unauthorized")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// operatorAuth authenticates operator API calls and enforces RBAC. Tokens
// are configured as "token:role" pairs.
func operatorAuth(cfg config.SecurityConfig, enforcer *authz.Enforcer) func(http.Handler) http.Handler {
	roles := make(map[string]string, len(cfg.OperatorTokens))
	for _, pair := range cfg.OperatorTokens {
		if token, role, ok := strings.Cut(pair, ":"); ok && authz.ValidRole(role) {
			roles[token] = role
		}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			role, ok := roles[bearerToken(r)]
			if !ok {
				respondError(w, http.StatusUnauthorized, "unauthorized")
				return
			}
			if !enforcer.Allow(role, r.URL.Path, r.Method) {
				respondError(w, http.StatusForbidden, "forbidden")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// nonceAuth protects the browser tracking endpoints.
func nonceAuth(nonces *NonceIssuer) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if err := nonces.Verify(r.Header.Get("X-Tracking-Nonce")); err != nil {
				respondError(w, http.StatusForbidden, "invalid nonce")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// metricsMiddleware records request counts and latency per route pattern.
func metricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		pattern := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if p := rctx.RoutePattern(); p != "" {
				pattern = p
			}
		}
		metrics.RecordAPIRequest(r.Method, pattern, ww.Status(), time.Since(start))
	})
}

func bearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if token, ok := strings.CutPrefix(auth, "Bearer "); ok {
		return token
	}
	return ""
}

// userContext assembles the matching data the ad platform uses. PII beyond
// IP and user agent must arrive pre-hashed from the storefront.
func userContext(r *http.Request) tracking.UserContext {
	// RemoteAddr is host:port for direct connections but RealIP may have
	// replaced it with a bare address from X-Forwarded-For.
	ip := r.RemoteAddr
	if host, _, err := net.SplitHostPort(ip); err == nil {
		ip = host
	}
	return tracking.UserContext{
		ClientIP:     ip,
		UserAgent:    r.UserAgent(),
		HashedEmail:  r.Header.Get("X-User-Email-Hash"),
		HashedUserID: r.Header.Get("X-User-ID-Hash"),
	}
}
