// Pixelbridge - Dual-Channel Conversion Tracking for Commerce Storefronts
// Copyright 2026 Pixelbridge Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/pixelbridge/pixelbridge

package tracking

import (
	"github.com/rs/zerolog"

	"github.com/pixelbridge/pixelbridge/internal/logging"
)

// EventLogger records the outcome of delivery attempts with a severity
// derived from the event's business criticality.
type EventLogger struct {
	logger zerolog.Logger
}

// NewEventLogger creates an event logger writing through the global logger.
func NewEventLogger() *EventLogger {
	return &EventLogger{
		logger: logging.With().Str("component", "tracking").Logger(),
	}
}

// severityFor maps (criticality, success) to a log level. A failed critical
// event is an error, a failed high event a warning, everything else info.
// Unknown criticality values fall back to info rather than dropping the log.
func severityFor(c Criticality, success bool) zerolog.Level {
	if success {
		return zerolog.InfoLevel
	}
	switch c {
	case CriticalityCritical:
		return zerolog.ErrorLevel
	case CriticalityHigh:
		return zerolog.WarnLevel
	case CriticalityLow:
		return zerolog.InfoLevel
	default:
		return zerolog.InfoLevel
	}
}

// LogOutcome records one delivery attempt.
func (l *EventLogger) LogOutcome(kind Kind, correlationID string, statusCode int, success bool, errDetail string) {
	event := l.logger.WithLevel(severityFor(kind.Criticality(), success))
	event = event.
		Str("event", string(kind)).
		Str("correlation_id", correlationID).
		Str("criticality", kind.Criticality().String())
	if statusCode > 0 {
		event = event.Int("status", statusCode)
	}
	if errDetail != "" {
		event = event.Str("error_detail", errDetail)
	}
	if success {
		event.Msg("conversion delivered")
		return
	}
	event.Msg("conversion delivery failed")
}
