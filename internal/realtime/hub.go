package realtime

import (
	"context"
	"encoding/json"
	"sync"

	"go.uber.org/zap"

	"github.com/askroom/backend/internal/models"
)

const (
	// PingInterval and PongWait are used for heartbeat (seconds).
	PingInterval = 30
	PongWait     = 60

	// EventRoomState carries the full room snapshot. Sent on join and after
	// every mutation; consumers replace prior state wholesale.
	EventRoomState = "room_state"
	// EventParticipantCount carries the live connection count for a room.
	EventParticipantCount = "participant_count"
)

// SnapshotFunc loads the current full snapshot for a room code. A missing or
// malformed room yields a snapshot with an empty question list, not an error.
type SnapshotFunc func(ctx context.Context, roomCode string) (*models.RoomSnapshot, error)

// RedisPublisher publishes room events for cross-instance broadcast.
type RedisPublisher interface {
	PublishRoomEvent(roomCode, event string, payload []byte) error
}

// RedisSubscriber subscribes to a room channel and invokes handler for incoming events.
type RedisSubscriber interface {
	SubscribeRoom(roomCode string, handler func(event string, payload []byte)) (cancel func(), err error)
}

// Hub maintains room code -> set of connections and fans out snapshots.
// Uses Redis pub/sub for horizontal scaling: mutations publish to Redis and the
// per-room subscription performs the local broadcast exactly once.
type Hub struct {
	// roomCode -> map[clientID]*Client
	rooms    map[string]map[string]*Client
	subs     map[string]func() // cancel Redis subscription per room
	mu       sync.RWMutex
	logger   *zap.Logger
	redis    RedisPublisher
	redisSub RedisSubscriber
	snapshot SnapshotFunc
}

// NewHub creates a new WebSocket hub.
func NewHub(logger *zap.Logger, redisPub RedisPublisher, redisSub RedisSubscriber) *Hub {
	return &Hub{
		rooms:    make(map[string]map[string]*Client),
		subs:     make(map[string]func()),
		logger:   logger,
		redis:    redisPub,
		redisSub: redisSub,
	}
}

// SetSnapshotProvider sets the loader used to push the initial room state to
// newly registered clients.
func (h *Hub) SetSnapshotProvider(fn SnapshotFunc) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.snapshot = fn
}

// Register adds a client to a room. Starts the room's Redis subscription if it
// is the first local client, and pushes the current snapshot to the newcomer.
func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	if h.rooms[c.RoomCode] == nil {
		h.rooms[c.RoomCode] = make(map[string]*Client)
		if h.redisSub != nil {
			cancel, err := h.redisSub.SubscribeRoom(c.RoomCode, func(event string, payload []byte) {
				h.BroadcastToRoom(c.RoomCode, event, json.RawMessage(payload))
			})
			if err == nil {
				h.subs[c.RoomCode] = cancel
			} else {
				h.logger.Warn("room subscription failed", zap.String("room", c.RoomCode), zap.Error(err))
			}
		}
	}
	h.rooms[c.RoomCode][c.ID] = c
	snapshot := h.snapshot
	h.mu.Unlock()

	if snapshot != nil {
		if snap, err := snapshot(context.Background(), c.RoomCode); err == nil {
			h.SendToClient(c.RoomCode, c.ID, EventRoomState, snap)
		}
	}
	h.logger.Debug("client joined room", zap.String("client_id", c.ID), zap.String("room", c.RoomCode))
}

// Unregister removes a client from a room. Cancels the room's Redis
// subscription when the last local client leaves, so no subscription outlives
// its consumers.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	if m, ok := h.rooms[c.RoomCode]; ok {
		delete(m, c.ID)
		if len(m) == 0 {
			delete(h.rooms, c.RoomCode)
			if cancel, ok := h.subs[c.RoomCode]; ok {
				cancel()
				delete(h.subs, c.RoomCode)
			}
		}
	}
	h.mu.Unlock()
	h.logger.Debug("client left room", zap.String("client_id", c.ID), zap.String("room", c.RoomCode))
}

// BroadcastToRoom sends a message to all clients in a room (local only).
func (h *Hub) BroadcastToRoom(roomCode, event string, payload interface{}) {
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

	// Copy the client set before iterating; Register/Unregister mutate the
	// inner map under the write lock concurrently with broadcasts.
	h.mu.RLock()
	clients := make([]*Client, 0, len(h.rooms[roomCode]))
	for _, c := range h.rooms[roomCode] {
		clients = append(clients, c)
	}
	h.mu.RUnlock()

	for _, c := range clients {
		select {
		case c.send <- msg:
		default:
			// buffer full, skip
		}
	}
}

// BroadcastToRoomAndPublish sends to local clients and publishes to Redis for other instances.
func (h *Hub) BroadcastToRoomAndPublish(roomCode, event string, payload interface{}) {
	data, err := json.Marshal(payload)
	if err != nil {
		return
	}
	h.BroadcastToRoom(roomCode, event, payload)
	if h.redis != nil {
		if err := h.redis.PublishRoomEvent(roomCode, event, data); err != nil {
			h.logger.Warn("redis publish failed", zap.String("room", roomCode), zap.Error(err))
		}
	}
}

// PublishToRoomOnly publishes to Redis only (no direct local broadcast); the
// Redis subscriber callback performs the broadcast once for every instance,
// including this one, so local clients never see duplicates. Falls back to a
// local broadcast when Redis is not configured.
func (h *Hub) PublishToRoomOnly(roomCode, event string, payload interface{}) {
	data, err := json.Marshal(payload)
	if err != nil {
		return
	}
	if h.redis != nil {
		if err := h.redis.PublishRoomEvent(roomCode, event, data); err != nil {
			h.logger.Warn("redis publish failed", zap.String("room", roomCode), zap.Error(err))
		}
		return
	}
	h.BroadcastToRoom(roomCode, event, payload)
}

// ParticipantCount returns the number of connected clients in a room.
func (h *Hub) ParticipantCount(roomCode string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[roomCode])
}

// SendToClient sends a message to a single client in a room.
func (h *Hub) SendToClient(roomCode, clientID, event string, payload interface{}) {
	data, err := json.Marshal(payload)
	if err != nil {
		return
	}
	msg := WSMessage{Event: event, Data: data}
	h.mu.RLock()
	c, ok := h.rooms[roomCode][clientID]
	h.mu.RUnlock()
	if !ok || c == nil {
		return
	}
	select {
	case c.send <- msg:
	default:
	}
}
