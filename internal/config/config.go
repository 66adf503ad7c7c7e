// Pixelbridge - Dual-Channel Conversion Tracking for Commerce Storefronts
// Copyright 2026 Pixelbridge Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/pixelbridge/pixelbridge

// Package config holds all Pixelbridge configuration, loaded via Koanf v2
// with layered sources (highest priority wins):
//
//  1. Built-in defaults
//  2. Optional YAML config file (config.yaml)
//  3. Environment variables
//
// Config is immutable after Load() and safe for concurrent read access.
// Components receive the sections they need through their constructors;
// nothing reads configuration ad hoc at runtime.
package config

import (
	"time"
)

// Config holds all application configuration.
type Config struct {
	Tracking TrackingConfig `koanf:"tracking"`
	Connect  ConnectConfig  `koanf:"connect"`
	Pixel    PixelConfig    `koanf:"pixel"`
	Consent  ConsentConfig  `koanf:"consent"`
	Commerce CommerceConfig `koanf:"commerce"`
	Queue    QueueConfig    `koanf:"queue"`
	State    StateConfig    `koanf:"state"`
	Audit    AuditConfig    `koanf:"audit"`
	Server   ServerConfig   `koanf:"server"`
	Security SecurityConfig `koanf:"security"`
	Logging  LoggingConfig  `koanf:"logging"`
}

// TrackingConfig is the master switch and identity for conversion tracking.
// It mirrors the plugin option flag of storefront integrations: when disabled,
// every tracking entry point becomes a silent no-op.
type TrackingConfig struct {
	// Enabled gates the entire tracking service (default: true).
	Enabled bool `koanf:"enabled"`

	// Partner is the ad partner slug used in payloads, page data object
	// names and queue subjects (e.g. "pinterest", "tiktok").
	Partner string `koanf:"partner" validate:"required,alphanum"`

	// PixelID is the ad partner pixel/tag identifier. Empty means the
	// integration is not yet configured; tracking no-ops without error.
	PixelID string `koanf:"pixel_id"`
}

// ConnectConfig holds settings for the authenticated Connect proxy that
// forwards Conversions API calls to the ad partner.
type ConnectConfig struct {
	// BaseURL is the Connect server base URL.
	BaseURL string `koanf:"base_url" validate:"omitempty,url"`

	// ConversionsPath is the path of the conversions endpoint, relative
	// to BaseURL.
	ConversionsPath string `koanf:"conversions_path"`

	// Token authenticates Pixelbridge against the Connect server.
	Token string `koanf:"token"`

	// Timeout bounds a single outbound delivery attempt.
	Timeout time.Duration `koanf:"timeout"`

	// RatePerSecond limits outbound conversions calls (0 = unlimited).
	RatePerSecond float64 `koanf:"rate_per_second"`

	// RateBurst is the rate limiter burst size.
	RateBurst int `koanf:"rate_burst"`

	// Breaker settings protect the proxy from hammering a failing partner.
	BreakerMaxFailures  uint32        `koanf:"breaker_max_failures"`
	BreakerOpenInterval time.Duration `koanf:"breaker_open_interval"`
}

// PixelConfig controls the browser-side tracking snippet.
type PixelConfig struct {
	// ScriptURL is the remote vendor base-code script fetched and cached.
	// Empty disables remote fetch; the built-in template is used instead.
	ScriptURL string `koanf:"script_url" validate:"omitempty,url"`

	// LoaderURL is the vendor script-loader URL a freshly cached script
	// must reference. A cached body missing it is discarded as corrupt.
	LoaderURL string `koanf:"loader_url"`

	// CacheTTL is how long a fetched script is served before refresh.
	CacheTTL time.Duration `koanf:"cache_ttl"`

	// EventIDFieldName is the hidden form field the inline script fills
	// with a fresh event ID before an add-to-cart submit.
	EventIDFieldName string `koanf:"event_id_field_name"`
}

// ConsentMode selects how the consent gate decides.
type ConsentMode string

const (
	// ConsentModeOpen grants consent unconditionally. This is the behavior
	// when no consent management platform is installed: the gate fails open.
	ConsentModeOpen ConsentMode = "open"

	// ConsentModeDeny denies consent unconditionally.
	ConsentModeDeny ConsentMode = "deny"

	// ConsentModeHeader reads the visitor's marketing-consent decision from
	// the request header forwarded by the storefront's consent plugin.
	ConsentModeHeader ConsentMode = "header"
)

// ConsentConfig controls the marketing-consent gate.
type ConsentConfig struct {
	Mode ConsentMode `koanf:"mode" validate:"omitempty,oneof=open deny header"`

	// Header is the request header carrying the consent decision when
	// Mode is "header" (expected values: "granted" / "denied").
	Header string `koanf:"header"`
}

// CommerceConfig points at the storefront REST API used to resolve orders,
// products and carts.
type CommerceConfig struct {
	BaseURL string        `koanf:"base_url" validate:"omitempty,url"`
	Token   string        `koanf:"token"`
	Timeout time.Duration `koanf:"timeout"`
}

// QueueConfig holds durable job queue settings (Watermill / NATS JetStream).
type QueueConfig struct {
	// URL is the NATS server URL.
	URL string `koanf:"url"`

	// EmbeddedServer starts an in-process NATS server with JetStream,
	// for single-binary deployments.
	EmbeddedServer bool `koanf:"embedded_server"`

	// EmbeddedHost is the listen address of the embedded server.
	EmbeddedHost string `koanf:"embedded_host"`

	// EmbeddedPort is the listen port of the embedded server. Two instances
	// on one host need distinct ports.
	EmbeddedPort int `koanf:"embedded_port"`

	// StoreDir is the JetStream storage directory for the embedded server.
	StoreDir string `koanf:"store_dir"`

	// StreamName is the JetStream stream holding queued deliveries.
	StreamName string `koanf:"stream_name"`

	// DurableName identifies the delivery consumer.
	DurableName string `koanf:"durable_name"`

	// QueueGroup load-balances consumers.
	QueueGroup string `koanf:"queue_group"`

	// MaxDeliver bounds JetStream redeliveries of a failing job.
	MaxDeliver int `koanf:"max_deliver"`

	// AckWait is how long JetStream waits for an ack before redelivery.
	AckWait time.Duration `koanf:"ack_wait"`

	// RetentionDays bounds stream age.
	RetentionDays int `koanf:"retention_days"`

	// Reconnect behavior for the NATS client.
	MaxReconnects   int           `koanf:"max_reconnects"`
	ReconnectWait   time.Duration `koanf:"reconnect_wait"`
	ReconnectBuffer int           `koanf:"reconnect_buffer"`
}

// StateConfig holds the order-tracking state store settings.
type StateConfig struct {
	// Path is the BadgerDB directory for durable per-order state.
	// Empty selects the in-memory store (tests, ephemeral deployments).
	Path string `koanf:"path"`
}

// AuditConfig holds the delivery audit trail settings.
type AuditConfig struct {
	// Enabled toggles the DuckDB-backed delivery audit trail.
	Enabled bool `koanf:"enabled"`

	// Path is the DuckDB database file (empty = in-memory).
	Path string `koanf:"path"`

	// RetentionDays bounds how long delivery attempts are kept.
	RetentionDays int `koanf:"retention_days"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host            string        `koanf:"host"`
	Port            int           `koanf:"port" validate:"gte=1,lte=65535"`
	ReadTimeout     time.Duration `koanf:"read_timeout"`
	WriteTimeout    time.Duration `koanf:"write_timeout"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
}

// SecurityConfig holds API security settings.
type SecurityConfig struct {
	// WebhookToken authenticates storefront webhook calls.
	WebhookToken string `koanf:"webhook_token"`

	// OperatorTokens maps bearer tokens to RBAC subjects ("token:role" pairs).
	OperatorTokens []string `koanf:"operator_tokens"`

	// NonceSecret signs the short-lived AJAX nonce tokens (32+ chars).
	NonceSecret string `koanf:"nonce_secret"`

	// NonceTTL bounds nonce token validity.
	NonceTTL time.Duration `koanf:"nonce_ttl"`

	// CORSOrigins lists storefront origins allowed to call the AJAX path.
	CORSOrigins []string `koanf:"cors_origins"`

	// RateLimitPerMinute caps requests per client IP on public routes.
	RateLimitPerMinute int `koanf:"rate_limit_per_minute"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `koanf:"level" validate:"omitempty,oneof=trace debug info warn error fatal"`
	Format string `koanf:"format" validate:"omitempty,oneof=json console"`
}

// defaultConfig returns a Config with all default values. Defaults are
// applied first, then overridden by config file and environment variables.
func defaultConfig() *Config {
	return &Config{
		Tracking: TrackingConfig{
			Enabled: true,
			Partner: "pinterest",
			PixelID: "",
		},
		Connect: ConnectConfig{
			BaseURL:             "",
			ConversionsPath:     "/v3/conversions",
			Token:               "",
			Timeout:             10 * time.Second,
			RatePerSecond:       20,
			RateBurst:           40,
			BreakerMaxFailures:  5,
			BreakerOpenInterval: 30 * time.Second,
		},
		Pixel: PixelConfig{
			ScriptURL:        "",
			LoaderURL:        "https://s.pinimg.com/ct/core.js",
			CacheTTL:         12 * time.Hour,
			EventIDFieldName: "pixelbridge_event_id",
		},
		Consent: ConsentConfig{
			Mode:   ConsentModeOpen,
			Header: "X-Marketing-Consent",
		},
		Commerce: CommerceConfig{
			BaseURL: "",
			Token:   "",
			Timeout: 10 * time.Second,
		},
		Queue: QueueConfig{
			URL:             "nats://127.0.0.1:4222",
			EmbeddedServer:  true,
			EmbeddedHost:    "127.0.0.1",
			EmbeddedPort:    4222,
			StoreDir:        "/data/nats/jetstream",
			StreamName:      "CONVERSIONS",
			DurableName:     "conversion-deliverer",
			QueueGroup:      "deliverers",
			MaxDeliver:      5,
			AckWait:         30 * time.Second,
			RetentionDays:   7,
			MaxReconnects:   -1,
			ReconnectWait:   2 * time.Second,
			ReconnectBuffer: 8 * 1024 * 1024,
		},
		State: StateConfig{
			Path: "/data/pixelbridge/state",
		},
		Audit: AuditConfig{
			Enabled:       true,
			Path:          "/data/pixelbridge/audit.duckdb",
			RetentionDays: 90,
		},
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8974,
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    15 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		Security: SecurityConfig{
			WebhookToken:       "",
			OperatorTokens:     nil,
			NonceSecret:        "",
			NonceTTL:           15 * time.Minute,
			CORSOrigins:        nil,
			RateLimitPerMinute: 600,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}
