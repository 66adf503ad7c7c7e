// Pixelbridge - Dual-Channel Conversion Tracking for Commerce Storefronts
// Copyright 2026 Pixelbridge Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/pixelbridge/pixelbridge

package delivery

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/goccy/go-json"
	gobreaker "github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"

	"github.com/pixelbridge/pixelbridge/internal/config"
	"github.com/pixelbridge/pixelbridge/internal/logging"
	"github.com/pixelbridge/pixelbridge/internal/metrics"
	"github.com/pixelbridge/pixelbridge/internal/tracking"
)

// maxErrorBodySize bounds how much of an error response body is read.
const maxErrorBodySize = 8 << 10

// Channel sends conversion events through the Connect proxy. A circuit
// breaker keeps a failing partner endpoint from being hammered and a client
// side rate limiter respects the partner's API limits.
type Channel struct {
	connect  config.ConnectConfig
	tracking config.TrackingConfig

	httpClient *http.Client
	breaker    *gobreaker.CircuitBreaker[Outcome]
	limiter    *rate.Limiter
	notifier   *Notifier
	eventLog   *tracking.EventLogger
}

// NewChannel creates a delivery channel. The notifier may be shared with
// other components; pass nil to create a private one.
func NewChannel(connect config.ConnectConfig, trackingCfg config.TrackingConfig, notifier *Notifier) *Channel {
	if notifier == nil {
		notifier = NewNotifier()
	}

	timeout := connect.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	maxFailures := connect.BreakerMaxFailures
	if maxFailures == 0 {
		maxFailures = 5
	}
	openInterval := connect.BreakerOpenInterval
	if openInterval <= 0 {
		openInterval = 30 * time.Second
	}

	breaker := gobreaker.NewCircuitBreaker[Outcome](gobreaker.Settings{
		Name:    "connect-proxy",
		Timeout: openInterval,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxFailures
		},
		OnStateChange: func(_ string, from, to gobreaker.State) {
			if to == gobreaker.StateOpen {
				metrics.DeliveryBreakerState.Set(1)
			} else {
				metrics.DeliveryBreakerState.Set(0)
			}
			logging.Warn().
				Str("component", "delivery").
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("delivery breaker state changed")
		},
	})

	var limiter *rate.Limiter
	if connect.RatePerSecond > 0 {
		burst := connect.RateBurst
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(connect.RatePerSecond), burst)
	}

	return &Channel{
		connect:    connect,
		tracking:   trackingCfg,
		httpClient: &http.Client{Timeout: timeout},
		breaker:    breaker,
		limiter:    limiter,
		notifier:   notifier,
		eventLog:   tracking.NewEventLogger(),
	}
}

// Notifier returns the channel's post-send notifier for subscriptions.
func (c *Channel) Notifier() *Notifier {
	return c.notifier
}

// Send delivers one event and returns the outcome. Network and HTTP
// failures are returned as data, not errors; logging, metrics and the
// post-send notification run on every path, including misconfiguration.
func (c *Channel) Send(ctx context.Context, event *tracking.Event, args Args) Outcome {
	start := time.Now()
	outcome := c.attempt(ctx, event)

	metrics.RecordDelivery(string(event.Kind), outcome.Success, outcome.StatusCode, time.Since(start))
	c.eventLog.LogOutcome(event.Kind, event.CorrelationID, outcome.StatusCode, outcome.Success, outcome.ErrorDetail)
	c.notifier.Notify(ctx, event, args, outcome)

	return outcome
}

// Deliver is the fire-and-forget form of Send used on the synchronous
// request path, where the caller has no use for the outcome.
func (c *Channel) Deliver(ctx context.Context, event *tracking.Event, args map[string]string) {
	c.Send(ctx, event, Args(args))
}

// attempt performs the HTTP call through breaker and rate limiter.
func (c *Channel) attempt(ctx context.Context, event *tracking.Event) Outcome {
	if c.connect.BaseURL == "" || c.tracking.PixelID == "" {
		// Expected pre-setup state, not an error.
		logging.Debug().Str("event", string(event.Kind)).Msg("connect proxy not configured, delivery skipped")
		return Outcome{Success: false, ErrorDetail: "connect proxy not configured"}
	}

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return Outcome{Success: false, ErrorDetail: "rate limit wait: " + err.Error()}
		}
	}

	outcome, err := c.breaker.Execute(func() (Outcome, error) {
		out := c.post(ctx, event)
		if !out.Success && out.StatusCode == 0 {
			// Only transport-level failures count against the breaker;
			// a 4xx from the partner is not a proxy outage.
			return out, errTransport
		}
		return out, nil
	})
	if err != nil {
		if outcome.ErrorDetail == "" {
			outcome = Outcome{Success: false, ErrorDetail: err.Error()}
		}
		return outcome
	}
	return outcome
}

// errTransport marks transport failures for the circuit breaker.
var errTransport = &transportError{}

type transportError struct{}

func (*transportError) Error() string { return "delivery: transport failure" }

// post performs the proxied Conversions API call.
func (c *Channel) post(ctx context.Context, event *tracking.Event) Outcome {
	body, err := event.Marshal()
	if err != nil {
		return Outcome{Success: false, ErrorDetail: "marshal event: " + err.Error()}
	}

	url := strings.TrimSuffix(c.connect.BaseURL, "/") + c.connect.ConversionsPath
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return Outcome{Success: false, ErrorDetail: "build request: " + err.Error()}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Pixel-ID", c.tracking.PixelID)
	req.Header.Set("X-Partner", c.tracking.Partner)
	if c.connect.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.connect.Token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Outcome{Success: false, ErrorDetail: err.Error()}
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return Outcome{Success: true, StatusCode: resp.StatusCode}
	}

	return Outcome{
		Success:     false,
		StatusCode:  resp.StatusCode,
		ErrorDetail: extractErrorDetail(resp.Body),
	}
}

// extractErrorDetail pulls a structured message out of an error body when
// one is present, falling back to the raw (truncated) body.
func extractErrorDetail(body io.Reader) string {
	raw, err := io.ReadAll(io.LimitReader(body, maxErrorBodySize))
	if err != nil || len(raw) == 0 {
		return ""
	}

	var structured struct {
		Message string `json:"message"`
		Error   struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(raw, &structured); err == nil {
		if structured.Error.Message != "" {
			return structured.Error.Message
		}
		if structured.Message != "" {
			return structured.Message
		}
	}
	return string(raw)
}
