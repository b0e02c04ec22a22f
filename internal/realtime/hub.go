// Package realtime pushes live attendance updates to hosts over WebSocket.
package realtime

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	// PingInterval and PongWait are used for heartbeat, in seconds.
	PingInterval = 30
	PongWait     = 60

	sendBuffer = 64
)

// Broker carries room events between server instances.
type Broker interface {
	PublishEvent(ctx context.Context, eventID uuid.UUID, event string, payload []byte) error
	SubscribeEvent(eventID uuid.UUID, handler func(event string, payload []byte)) (cancel func(), err error)
}

// Hub maintains event_id -> set of connections. With a Broker, publishes go
// through Redis and every instance (this one included) delivers from its
// subscription, so each socket sees a message exactly once.
type Hub struct {
	rooms  map[uuid.UUID]map[string]*Client
	subs   map[uuid.UUID]*roomSub
	mu     sync.RWMutex
	broker Broker
	logger *zap.Logger
}

// roomSub is a room's broker subscription. cancel is nil while subscribing.
type roomSub struct {
	cancel func()
}

// NewHub creates a hub. broker may be nil for a single instance.
func NewHub(broker Broker, logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		rooms:  make(map[uuid.UUID]map[string]*Client),
		subs:   make(map[uuid.UUID]*roomSub),
		broker: broker,
		logger: logger,
	}
}

// Register adds c to its event room, subscribing to the room's channel on first join.
// The subscribe round trip runs without holding the hub lock.
func (h *Hub) Register(c *Client) {
	eventID := c.EventID
	var sub *roomSub
	h.mu.Lock()
	if h.rooms[eventID] == nil {
		h.rooms[eventID] = make(map[string]*Client)
		if h.broker != nil {
			sub = &roomSub{}
			h.subs[eventID] = sub
		}
	}
	h.rooms[eventID][c.ID] = c
	h.mu.Unlock()
	h.logger.Debug("client joined room", zap.String("client_id", c.ID), zap.String("event_id", eventID.String()))

	if sub == nil {
		return
	}
	cancel, err := h.broker.SubscribeEvent(eventID, func(event string, payload []byte) {
		h.Broadcast(eventID, event, json.RawMessage(payload))
	})
	h.mu.Lock()
	current := h.subs[eventID] == sub
	switch {
	case err != nil && current:
		delete(h.subs, eventID)
	case err == nil && current:
		sub.cancel = cancel
	}
	h.mu.Unlock()
	if err != nil {
		h.logger.Warn("room subscribe failed", zap.String("event_id", eventID.String()), zap.Error(err))
		return
	}
	if !current {
		// the room emptied while subscribing
		cancel()
	}
}

// Unregister removes c and drops the room subscription once it is empty.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	room, ok := h.rooms[c.EventID]
	if !ok {
		h.mu.Unlock()
		return
	}
	if _, ok := room[c.ID]; !ok {
		h.mu.Unlock()
		return
	}
	delete(room, c.ID)
	close(c.send)
	var cancel func()
	if len(room) == 0 {
		delete(h.rooms, c.EventID)
		if sub, ok := h.subs[c.EventID]; ok {
			cancel = sub.cancel
			delete(h.subs, c.EventID)
		}
	}
	h.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	h.logger.Debug("client left room", zap.String("client_id", c.ID), zap.String("event_id", c.EventID.String()))
}

// Broadcast delivers to this instance's sockets in the room. Slow clients drop messages.
func (h *Hub) Broadcast(eventID uuid.UUID, event string, payload any) {
	var data []byte
	switch v := payload.(type) {
	case []byte:
		data = v
	case json.RawMessage:
		data = v
	default:
		var err error
		if data, err = json.Marshal(payload); err != nil {
			h.logger.Warn("marshal room message failed", zap.String("event", event), zap.Error(err))
			return
		}
	}
	msg := WSMessage{Event: event, Data: data}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, c := range h.rooms[eventID] {
		select {
		case c.send <- msg:
		default:
		}
	}
}

// Publish sends event to every socket in the room across all instances.
func (h *Hub) Publish(ctx context.Context, eventID uuid.UUID, event string, payload any) error {
	if h.broker == nil {
		h.Broadcast(eventID, event, payload)
		return nil
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return h.broker.PublishEvent(ctx, eventID, event, data)
}

// RoomSize returns the number of local sockets watching eventID.
func (h *Hub) RoomSize(eventID uuid.UUID) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[eventID])
}
