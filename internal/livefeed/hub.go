// Pixelbridge - Dual-Channel Conversion Tracking for Commerce Storefronts
// Copyright 2026 Pixelbridge Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/pixelbridge/pixelbridge

// Package livefeed streams delivery outcomes to connected operator dashboards
// over WebSocket. The feed subscribes to the delivery notifier; a slow or
// dead dashboard never back-pressures the delivery path.
package livefeed

import (
	"context"
	"sync"
	"time"

	"github.com/pixelbridge/pixelbridge/internal/delivery"
	"github.com/pixelbridge/pixelbridge/internal/logging"
	"github.com/pixelbridge/pixelbridge/internal/tracking"
)

// Message types pushed to dashboards.
const (
	MessageTypeDelivery = "delivery"
	MessageTypePing     = "ping"
	MessageTypePong     = "pong"
)

// Message is one WebSocket frame.
type Message struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

// DeliveryUpdate is the payload of a delivery message.
type DeliveryUpdate struct {
	EventKind     string    `json:"event_kind"`
	CorrelationID string    `json:"correlation_id"`
	OrderKey      string    `json:"order_key,omitempty"`
	Success       bool      `json:"success"`
	StatusCode    int       `json:"status_code"`
	ErrorDetail   string    `json:"error_detail,omitempty"`
	At            time.Time `json:"at"`
}

// Hub maintains the set of connected dashboards and fans broadcasts out.
type Hub struct {
	clients    map[*Client]bool
	broadcast  chan Message
	register   chan *Client
	unregister chan *Client
	mu         sync.RWMutex
}

// NewHub creates an idle hub; call Run to start it.
func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		broadcast:  make(chan Message, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
	}
}

// Run services the hub until the context is canceled, then closes every
// connected client so a supervisor restart never leaks connections.
func (h *Hub) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			return ctx.Err()

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			total := len(h.clients)
			h.mu.Unlock()
			logging.Info().Int("total_clients", total).Msg("live feed client connected")

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			total := len(h.clients)
			h.mu.Unlock()
			logging.Info().Int("total_clients", total).Msg("live feed client disconnected")

		case message := <-h.broadcast:
			h.broadcastToClients(message)
		}
	}
}

// Broadcast queues a message for all clients. Never blocks; the oldest
// pending broadcast is dropped when the queue is full.
func (h *Hub) Broadcast(msg Message) {
	select {
	case h.broadcast <- msg:
	default:
		select {
		case <-h.broadcast:
		default:
		}
		select {
		case h.broadcast <- msg:
		default:
		}
	}
}

// Listener returns the delivery notifier subscription feeding the hub.
func (h *Hub) Listener() delivery.Listener {
	return func(_ context.Context, event *tracking.Event, args delivery.Args, outcome delivery.Outcome) {
		h.Broadcast(Message{
			Type: MessageTypeDelivery,
			Data: DeliveryUpdate{
				EventKind:     string(event.Kind),
				CorrelationID: event.CorrelationID,
				OrderKey:      args[delivery.ArgOrderKey],
				Success:       outcome.Success,
				StatusCode:    outcome.StatusCode,
				ErrorDetail:   outcome.ErrorDetail,
				At:            time.Now().UTC(),
			},
		})
	}
}

// ClientCount returns the number of connected dashboards.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) broadcastToClients(msg Message) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for client := range h.clients {
		select {
		case client.send <- msg:
		default:
			// Slow client; it will be dropped when its write pump stalls.
		}
	}
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for client := range h.clients {
		close(client.send)
		delete(h.clients, client)
	}
}
