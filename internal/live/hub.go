// Package live pushes snapshot changes to the owning user's websocket connections.
package live

import (
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/mtlprog/finsight/internal/snapshot"
)

// MessageSnapshotUpserted is the message type sent after a snapshot is stored.
const MessageSnapshotUpserted = "snapshot.upserted"

// Message is the JSON envelope written to clients.
type Message struct {
	Type     string            `json:"type"`
	Snapshot snapshot.Snapshot `json:"snapshot"`
}

// Hub is a per-user registry of connected clients.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]map[*Client]struct{}
}

// NewHub creates an empty Hub.
func NewHub() *Hub {
	return &Hub{
		clients: make(map[string]map[*Client]struct{}),
	}
}

func (h *Hub) Register(userID string, client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.clients[userID] == nil {
		h.clients[userID] = make(map[*Client]struct{})
	}
	h.clients[userID][client] = struct{}{}
}

// Unregister removes the client and closes its send queue. Repeated calls are no-ops.
func (h *Hub) Unregister(userID string, client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[userID][client]; !ok {
		return
	}
	delete(h.clients[userID], client)
	close(client.send)
	if len(h.clients[userID]) == 0 {
		delete(h.clients, userID)
	}
}

// ClientCount returns how many connections userID has open.
func (h *Hub) ClientCount(userID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[userID])
}

// NotifySnapshot sends s to every connection of userID. Slow clients with a full queue
// miss the message.
func (h *Hub) NotifySnapshot(userID string, s snapshot.Snapshot) {
	payload, err := json.Marshal(Message{Type: MessageSnapshotUpserted, Snapshot: s})
	if err != nil {
		slog.Error("failed to encode live message", "user_id", userID, "error", err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for client := range h.clients[userID] {
		select {
		case client.send <- payload:
		default:
			slog.Warn("live client queue full, dropping message", "user_id", userID)
		}
	}
}
