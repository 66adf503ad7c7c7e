// Pixelbridge - Dual-Channel Conversion Tracking for Commerce Storefronts
// Copyright 2026 Pixelbridge Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/pixelbridge/pixelbridge

package config

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/go-playground/validator/v10"
)

// validate runs struct-tag validation. A single instance caches the parsed
// tags across Load calls.
var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks that required configuration is present and consistent.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	checks := []func() error{
		c.validateTracking,
		c.validateConnect,
		c.validateQueue,
		c.validateSecurity,
	}
	for _, check := range checks {
		if err := check(); err != nil {
			return err
		}
	}
	return nil
}

// validateTracking validates the tracking identity.
// A missing pixel ID is an expected pre-setup state, not an error: tracking
// entry points silently no-op until the integration is configured.
func (c *Config) validateTracking() error {
	if !c.Tracking.Enabled {
		return nil
	}
	if c.Tracking.Partner == "" {
		return fmt.Errorf("TRACKING_PARTNER is required when tracking is enabled")
	}
	return nil
}

// validateConnect validates the Connect proxy settings when configured.
func (c *Config) validateConnect() error {
	if c.Connect.BaseURL == "" {
		return nil // pre-setup state: delivery no-ops
	}
	if err := validateHTTPURL(c.Connect.BaseURL, "CONNECT_BASE_URL"); err != nil {
		return err
	}
	if !strings.HasPrefix(c.Connect.ConversionsPath, "/") {
		return fmt.Errorf("CONNECT_CONVERSIONS_PATH must start with /")
	}
	if c.Connect.Timeout <= 0 {
		return fmt.Errorf("CONNECT_TIMEOUT must be positive")
	}
	return nil
}

// validateQueue validates the job queue settings.
func (c *Config) validateQueue() error {
	if c.Queue.URL == "" {
		return fmt.Errorf("QUEUE_URL is required")
	}
	if c.Queue.StreamName == "" {
		return fmt.Errorf("QUEUE_STREAM_NAME is required")
	}
	if c.Queue.MaxDeliver < 1 {
		return fmt.Errorf("QUEUE_MAX_DELIVER must be at least 1")
	}
	if c.Queue.EmbeddedServer {
		if c.Queue.StoreDir == "" {
			return fmt.Errorf("QUEUE_STORE_DIR is required when the embedded server is enabled")
		}
		if c.Queue.EmbeddedPort < 1 || c.Queue.EmbeddedPort > 65535 {
			return fmt.Errorf("QUEUE_EMBEDDED_PORT must be a valid port")
		}
	}
	return nil
}

// validateSecurity validates security settings.
func (c *Config) validateSecurity() error {
	if c.Security.NonceSecret != "" && len(c.Security.NonceSecret) < 32 {
		return fmt.Errorf("SECURITY_NONCE_SECRET must be at least 32 characters")
	}
	for _, pair := range c.Security.OperatorTokens {
		if !strings.Contains(pair, ":") {
			return fmt.Errorf("SECURITY_OPERATOR_TOKENS entries must be token:role pairs")
		}
	}
	return nil
}

// validateHTTPURL checks a URL is absolute http(s).
func validateHTTPURL(raw, name string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%s is not a valid URL: %w", name, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%s must use http or https", name)
	}
	if u.Host == "" {
		return fmt.Errorf("%s is missing a host", name)
	}
	return nil
}
