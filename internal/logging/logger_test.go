// Pixelbridge - Dual-Channel Conversion Tracking for Commerce Storefronts
// Copyright 2026 Pixelbridge Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/pixelbridge/pixelbridge

package logging

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"
)

func TestInit(t *testing.T) {
	t.Run("json format", func(t *testing.T) {
		var buf bytes.Buffer
		Init(Config{Level: "debug", Format: "json", Output: &buf})
		defer Init(DefaultConfig())

		Info().Str("key", "value").Msg("hello")

		var decoded map[string]interface{}
		if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
			t.Fatalf("Output is not JSON: %v", err)
		}
		if decoded["message"] != "hello" {
			t.Errorf("Expected message=hello, got %v", decoded["message"])
		}
		if decoded["key"] != "value" {
			t.Errorf("Expected key=value, got %v", decoded["key"])
		}
	})

	t.Run("level filtering", func(t *testing.T) {
		var buf bytes.Buffer
		Init(Config{Level: "warn", Format: "json", Output: &buf})
		defer Init(DefaultConfig())

		Info().Msg("dropped")
		Warn().Msg("kept")

		if strings.Contains(buf.String(), "dropped") {
			t.Error("Info message should be filtered at warn level")
		}
		if !strings.Contains(buf.String(), "kept") {
			t.Error("Warn message should be emitted at warn level")
		}
	})
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input string
		want  zerolog.Level
	}{
		{"debug", zerolog.DebugLevel},
		{"info", zerolog.InfoLevel},
		{"WARN", zerolog.WarnLevel},
		{"warning", zerolog.WarnLevel},
		{"error", zerolog.ErrorLevel},
		{"bogus", zerolog.InfoLevel},
		{"", zerolog.InfoLevel},
	}

	for _, tt := range tests {
		if got := parseLevel(tt.input); got != tt.want {
			t.Errorf("parseLevel(%q) = %v, want %v", tt.input, got, tt.want)
		}
	}
}

func TestSlogHandler(t *testing.T) {
	var buf bytes.Buffer
	Init(Config{Level: "debug", Format: "json", Output: &buf})
	defer Init(DefaultConfig())

	slogger := slog.New(NewSlogHandler())
	slogger.Info("supervisor event", "service", "http-server", "restarts", int64(2))

	var decoded map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("Output is not JSON: %v", err)
	}
	if decoded["message"] != "supervisor event" {
		t.Errorf("Expected message, got %v", decoded["message"])
	}
	if decoded["service"] != "http-server" {
		t.Errorf("Expected service attr, got %v", decoded["service"])
	}
}

func TestSlogHandlerGroups(t *testing.T) {
	var buf bytes.Buffer
	Init(Config{Level: "debug", Format: "json", Output: &buf})
	defer Init(DefaultConfig())

	slogger := slog.New(NewSlogHandler()).WithGroup("queue")
	slogger.Warn("redelivery", "attempts", int64(3))

	if !strings.Contains(buf.String(), "queue.attempts") {
		t.Errorf("Expected grouped key queue.attempts, got %s", buf.String())
	}
}
