package realtime

import (
	"encoding/json"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	// PingInterval and PongWait (seconds) drive the websocket heartbeat.
	PingInterval = 30
	PongWait     = 60
)

// Hub maintains media_item_id -> set of connections and fans incoming
// Redis events out to local websocket clients. One Redis subscription is
// held per item while at least one client watches it.
type Hub struct {
	// itemID -> map[clientID]*Client
	items  map[uuid.UUID]map[string]*Client
	subs   map[uuid.UUID]func() // cancel Redis subscription per item
	mu     sync.RWMutex
	logger *zap.Logger
	sub    MediaSubscriber
}

// MediaSubscriber subscribes to a media item's event channel and invokes
// handler for incoming events.
type MediaSubscriber interface {
	SubscribeMedia(itemID uuid.UUID, handler func(event string, payload []byte)) (cancel func(), err error)
}

// NewHub creates a new WebSocket hub.
func NewHub(logger *zap.Logger, sub MediaSubscriber) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		items:  make(map[uuid.UUID]map[string]*Client),
		subs:   make(map[uuid.UUID]func()),
		logger: logger,
		sub:    sub,
	}
}

// Register adds a client watching a media item. Starts the Redis
// subscription for this item if it is the first watcher.
func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	if h.items[c.ItemID] == nil {
		h.items[c.ItemID] = make(map[string]*Client)
		if h.sub != nil {
			cancel, err := h.sub.SubscribeMedia(c.ItemID, func(event string, payload []byte) {
				h.BroadcastToItem(c.ItemID, event, json.RawMessage(payload))
			})
			if err == nil {
				h.subs[c.ItemID] = cancel
			} else {
				h.logger.Warn("media channel subscribe failed",
					zap.String("item_id", c.ItemID.String()), zap.Error(err))
			}
		}
	}
	h.items[c.ItemID][c.ID] = c
	h.mu.Unlock()
	h.logger.Debug("client watching item",
		zap.String("client_id", c.ID), zap.String("item_id", c.ItemID.String()))
}

// Unregister removes a client. Cancels the Redis subscription when the
// last watcher leaves.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	if m, ok := h.items[c.ItemID]; ok {
		delete(m, c.ID)
		if len(m) == 0 {
			delete(h.items, c.ItemID)
			if cancel, ok := h.subs[c.ItemID]; ok {
				cancel()
				delete(h.subs, c.ItemID)
			}
		}
	}
	h.mu.Unlock()
	h.logger.Debug("client stopped watching item",
		zap.String("client_id", c.ID), zap.String("item_id", c.ItemID.String()))
}

// BroadcastToItem sends a message to all local clients watching an item.
func (h *Hub) BroadcastToItem(itemID uuid.UUID, event string, payload interface{}) {
	var data []byte
	switch v := payload.(type) {
	case []byte:
		data = v
	case json.RawMessage:
		data = v
	default:
		data, _ = json.Marshal(payload)
	}
	msg := WSMessage{Event: event, Data: data}

	h.mu.RLock()
	clients := h.items[itemID]
	for _, c := range clients {
		select {
		case c.send <- msg:
		default:
			// slow consumer; drop the event rather than block the hub
		}
	}
	h.mu.RUnlock()
}

// WatcherCount returns the number of clients watching an item.
func (h *Hub) WatcherCount(itemID uuid.UUID) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.items[itemID])
}
