// Dappboard - dApp Review Aggregation and Progression Service
// Copyright 2026 Radek Kuska (rkuska)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/rkuska/dappboard

// Package websocket fans out cache and progression deltas to connected
// clients. Delivery is real-time only: there is no queuing or replay for
// disconnected clients.
package websocket

import (
	"context"
	"sort"
	"sync"

	"github.com/rkuska/dappboard/internal/logging"
	"github.com/rkuska/dappboard/internal/metrics"
	"github.com/rkuska/dappboard/internal/models"
)

// Message types pushed to clients.
const (
	MessageTypeDappUpdate    = "dapp_update"
	MessageTypeNewReview     = "new_review"
	MessageTypeProfileUpdate = "profile_update"
	MessageTypeTaskUpdate    = "task_update"
	MessageTypePing          = "ping"
	MessageTypePong          = "pong"

	// MessageTypeBind is sent by a client to associate its connection
	// with a wallet address and receive per-user updates.
	MessageTypeBind = "bind"
)

// Message is the envelope for all WebSocket traffic.
type Message struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

// TaskUpdateData is the payload of a task_update message.
type TaskUpdateData struct {
	Progress models.TaskProgress   `json:"progress"`
	Task     models.TaskDefinition `json:"task"`
}

// Hub maintains the set of active clients, their address bindings, and
// broadcasts messages globally or per user.
type Hub struct {
	clients map[*Client]bool
	// byAddress maps a lowercase address to the clients bound to it.
	byAddress map[string]map[*Client]bool

	broadcast  chan Message
	Register   chan *Client
	Unregister chan *Client
	mu         sync.RWMutex
}

// NewHub creates a new Hub.
func NewHub() *Hub {
	return &Hub{
		broadcast:  make(chan Message, 256),
		Register:   make(chan *Client),
		Unregister: make(chan *Client),
		clients:    make(map[*Client]bool),
		byAddress:  make(map[string]map[*Client]bool),
	}
}

// RunWithContext runs the hub until the context is canceled, then closes
// every client and returns ctx.Err(). Designed for suture supervision.
//
// Lifecycle events are drained before broadcasts so client state is
// consistent when a message fans out.
func (h *Hub) RunWithContext(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			h.shutdown()
			return ctx.Err()
		default:
		}

		select {
		case client := <-h.Register:
			h.addClient(client)
			continue
		case client := <-h.Unregister:
			h.removeClient(client)
			continue
		default:
		}

		select {
		case <-ctx.Done():
			h.shutdown()
			return ctx.Err()
		case client := <-h.Register:
			h.addClient(client)
		case client := <-h.Unregister:
			h.removeClient(client)
		case message := <-h.broadcast:
			h.broadcastToClients(message)
		}
	}
}

func (h *Hub) addClient(client *Client) {
	h.mu.Lock()
	h.clients[client] = true
	count := len(h.clients)
	h.mu.Unlock()

	metrics.WSClients.Set(float64(count))
	logging.Info().Int("total_clients", count).Msg("websocket client connected")
}

func (h *Hub) removeClient(client *Client) {
	h.mu.Lock()
	if _, ok := h.clients[client]; ok {
		delete(h.clients, client)
		h.unbindLocked(client)
		close(client.send)
	}
	count := len(h.clients)
	h.mu.Unlock()

	metrics.WSClients.Set(float64(count))
	logging.Info().Int("total_clients", count).Msg("websocket client disconnected")
}

// Bind associates a client with a wallet address. A client holds at most
// one binding; rebinding replaces the previous address.
func (h *Hub) Bind(client *Client, address string) {
	address = models.NormalizeAddress(address)
	if address == "" {
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[client]; !ok {
		return
	}
	h.unbindLocked(client)
	client.address = address
	if h.byAddress[address] == nil {
		h.byAddress[address] = make(map[*Client]bool)
	}
	h.byAddress[address][client] = true
	logging.Debug().Str("address", address).Msg("websocket client bound to address")
}

func (h *Hub) unbindLocked(client *Client) {
	if client.address == "" {
		return
	}
	if set, ok := h.byAddress[client.address]; ok {
		delete(set, client)
		if len(set) == 0 {
			delete(h.byAddress, client.address)
		}
	}
	client.address = ""
}

// BroadcastDappUpdate pushes a refreshed dApp projection to everyone.
func (h *Hub) BroadcastDappUpdate(dapp models.Dapp) {
	h.enqueue(Message{Type: MessageTypeDappUpdate, Data: dapp})
}

// BroadcastNewReview pushes a newly ingested review to everyone.
func (h *Hub) BroadcastNewReview(review models.Review) {
	h.enqueue(Message{Type: MessageTypeNewReview, Data: review})
}

// ProfileUpdated pushes a profile delta to the clients bound to its
// address. Implements the progression engine's notifier.
func (h *Hub) ProfileUpdated(profile models.UserProfile) {
	h.sendToUser(profile.Address, Message{Type: MessageTypeProfileUpdate, Data: profile})
}

// TaskUpdated pushes a task progress delta to the clients bound to the
// address. Implements the progression engine's notifier.
func (h *Hub) TaskUpdated(address string, progress models.TaskProgress, def models.TaskDefinition) {
	h.sendToUser(address, Message{Type: MessageTypeTaskUpdate, Data: TaskUpdateData{
		Progress: progress,
		Task:     def,
	}})
}

func (h *Hub) enqueue(message Message) {
	select {
	case h.broadcast <- message:
	default:
		metrics.WSMessagesDropped.Inc()
		logging.Warn().Str("message_type", message.Type).Msg("broadcast channel full, dropping message")
	}
}

// sendToUser delivers directly to bound clients, bypassing the global
// broadcast queue.
func (h *Hub) sendToUser(address string, message Message) {
	address = models.NormalizeAddress(address)

	h.mu.RLock()
	defer h.mu.RUnlock()
	for client := range h.byAddress[address] {
		select {
		case client.send <- message:
		default:
			metrics.WSMessagesDropped.Inc()
			logging.Warn().
				Str("address", address).
				Str("message_type", message.Type).
				Msg("client send buffer full, dropping message")
		}
	}
}

// broadcastToClients fans a message out to every connected client in a
// deterministic order. Clients with a full send buffer are dropped.
func (h *Hub) broadcastToClients(message Message) {
	h.mu.Lock()
	defer h.mu.Unlock()

	clients := make([]*Client, 0, len(h.clients))
	for client := range h.clients {
		clients = append(clients, client)
	}
	sort.Slice(clients, func(i, j int) bool {
		return clients[i].id < clients[j].id
	})

	var toRemove []*Client
	for _, client := range clients {
		select {
		case client.send <- message:
		default:
			toRemove = append(toRemove, client)
		}
	}

	for _, client := range toRemove {
		metrics.WSMessagesDropped.Inc()
		close(client.send)
		delete(h.clients, client)
		h.unbindLocked(client)
	}
	if len(toRemove) > 0 {
		metrics.WSClients.Set(float64(len(h.clients)))
	}
}

func (h *Hub) shutdown() {
	h.mu.Lock()
	count := len(h.clients)
	for client := range h.clients {
		close(client.send)
		delete(h.clients, client)
	}
	h.byAddress = make(map[string]map[*Client]bool)
	h.mu.Unlock()

	metrics.WSClients.Set(0)
	logging.Info().
		Str("component", "websocket-hub").
		Int("clients_closed", count).
		Msg("websocket hub stopped")
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// BoundCount returns the number of clients bound to an address.
func (h *Hub) BoundCount(address string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.byAddress[models.NormalizeAddress(address)])
}
