// Pixelbridge - Dual-Channel Conversion Tracking for Commerce Storefronts
// Copyright 2026 Pixelbridge Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/pixelbridge/pixelbridge

package api

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/pixelbridge/pixelbridge/internal/config"
)

// noncePurpose scopes issued tokens to the browser tracking endpoints.
const noncePurpose = "ajax-track"

// ErrInvalidNonce is returned for missing, malformed, expired or
// wrong-purpose nonce tokens.
var ErrInvalidNonce = errors.New("api: invalid nonce")

// NonceIssuer mints and verifies the short-lived tokens protecting the
// browser-facing tracking endpoints, so third-party pages cannot pump fake
// conversions through a storefront's pixel ID.
type NonceIssuer struct {
	secret []byte
	ttl    time.Duration
}

// NewNonceIssuer builds the issuer from the security configuration.
func NewNonceIssuer(cfg config.SecurityConfig) *NonceIssuer {
	ttl := cfg.NonceTTL
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	return &NonceIssuer{secret: []byte(cfg.NonceSecret), ttl: ttl}
}

// Mint issues a nonce token.
func (n *NonceIssuer) Mint() (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"purpose": noncePurpose,
		"iat":     now.Unix(),
		"exp":     now.Add(n.ttl).Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(n.secret)
	if err != nil {
		return "", fmt.Errorf("sign nonce: %w", err)
	}
	return signed, nil
}

// Verify checks a nonce token.
func (n *NonceIssuer) Verify(tokenString string) error {
	if tokenString == "" {
		return ErrInvalidNonce
	}

	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return n.secret, nil
	}, jwt.WithValidMethods([]string{"HS256"}), jwt.WithExpirationRequired())
	if err != nil || !token.Valid {
		return ErrInvalidNonce
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || claims["purpose"] != noncePurpose {
		return ErrInvalidNonce
	}
	return nil
}
