// Pixelbridge - Dual-Channel Conversion Tracking for Commerce Storefronts
// Copyright 2026 Pixelbridge Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/pixelbridge/pixelbridge

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() with defaults failed: %v", err)
	}

	if !cfg.Tracking.Enabled {
		t.Error("Tracking should be enabled by default")
	}
	if cfg.Server.Port != 8974 {
		t.Errorf("Expected default port 8974, got %d", cfg.Server.Port)
	}
	if cfg.Queue.StreamName != "CONVERSIONS" {
		t.Errorf("Expected default stream CONVERSIONS, got %s", cfg.Queue.StreamName)
	}
	if cfg.Queue.EmbeddedHost != "127.0.0.1" || cfg.Queue.EmbeddedPort != 4222 {
		t.Errorf("Expected default embedded listen 127.0.0.1:4222, got %s:%d", cfg.Queue.EmbeddedHost, cfg.Queue.EmbeddedPort)
	}
	if cfg.Connect.Timeout != 10*time.Second {
		t.Errorf("Expected default connect timeout 10s, got %v", cfg.Connect.Timeout)
	}
	if cfg.Consent.Mode != ConsentModeOpen {
		t.Errorf("Expected consent mode open, got %s", cfg.Consent.Mode)
	}
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("PIXELBRIDGE_SERVER_PORT", "9000")
	t.Setenv("PIXELBRIDGE_TRACKING_PIXEL_ID", "123456")
	t.Setenv("PIXELBRIDGE_SECURITY_CORS_ORIGINS", "https://shop.example.com, https://staging.example.com")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if cfg.Server.Port != 9000 {
		t.Errorf("Expected env-overridden port 9000, got %d", cfg.Server.Port)
	}
	if cfg.Tracking.PixelID != "123456" {
		t.Errorf("Expected pixel ID 123456, got %s", cfg.Tracking.PixelID)
	}
	if len(cfg.Security.CORSOrigins) != 2 {
		t.Fatalf("Expected 2 CORS origins, got %v", cfg.Security.CORSOrigins)
	}
	if cfg.Security.CORSOrigins[1] != "https://staging.example.com" {
		t.Errorf("Expected trimmed origin, got %q", cfg.Security.CORSOrigins[1])
	}
}

func TestLoadConfigFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	body := []byte("tracking:\n  partner: tiktok\nconnect:\n  base_url: https://connect.example.com\n")
	if err := os.WriteFile(path, body, 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv(ConfigPathEnvVar, path)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if cfg.Tracking.Partner != "tiktok" {
		t.Errorf("Expected partner tiktok from file, got %s", cfg.Tracking.Partner)
	}
	if cfg.Connect.BaseURL != "https://connect.example.com" {
		t.Errorf("Expected connect base URL from file, got %s", cfg.Connect.BaseURL)
	}
}

func TestEnvTransformFunc(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"PIXELBRIDGE_SERVER_PORT", "server.port"},
		{"PIXELBRIDGE_CONNECT_BASE_URL", "connect.base_url"},
		{"PIXELBRIDGE_TRACKING_PIXEL_ID", "tracking.pixel_id"},
		{"PIXELBRIDGE_QUEUE_URL", "queue.url"},
	}
	for _, tt := range tests {
		if got := envTransformFunc(tt.in); got != tt.want {
			t.Errorf("envTransformFunc(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestValidate(t *testing.T) {
	t.Run("invalid connect URL", func(t *testing.T) {
		cfg := defaultConfig()
		cfg.Connect.BaseURL = "ftp://bad"
		if err := cfg.Validate(); err == nil {
			t.Error("Expected validation error for non-http URL")
		}
	})

	t.Run("short nonce secret", func(t *testing.T) {
		cfg := defaultConfig()
		cfg.Security.NonceSecret = "too-short"
		if err := cfg.Validate(); err == nil {
			t.Error("Expected validation error for short nonce secret")
		}
	})

	t.Run("malformed operator token", func(t *testing.T) {
		cfg := defaultConfig()
		cfg.Security.OperatorTokens = []string{"token-without-role"}
		if err := cfg.Validate(); err == nil {
			t.Error("Expected validation error for token without role")
		}
	})

	t.Run("missing pixel id is not an error", func(t *testing.T) {
		cfg := defaultConfig()
		cfg.Tracking.PixelID = ""
		if err := cfg.Validate(); err != nil {
			t.Errorf("Unconfigured pixel ID must validate (pre-setup state): %v", err)
		}
	})

	t.Run("zero max deliver", func(t *testing.T) {
		cfg := defaultConfig()
		cfg.Queue.MaxDeliver = 0
		if err := cfg.Validate(); err == nil {
			t.Error("Expected validation error for MaxDeliver < 1")
		}
	})

	t.Run("embedded server without a port", func(t *testing.T) {
		cfg := defaultConfig()
		cfg.Queue.EmbeddedServer = true
		cfg.Queue.EmbeddedPort = 0
		if err := cfg.Validate(); err == nil {
			t.Error("Expected validation error for embedded server without a port")
		}
	})
}
