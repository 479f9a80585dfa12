package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/askroom/backend/internal/models"
)

type publishedEvent struct {
	Room    string
	Event   string
	Payload []byte
}

// fakePubSub is an in-process stand-in for the Redis pub/sub pair: publishes
// are delivered synchronously to the room's subscriber handler.
type fakePubSub struct {
	published []publishedEvent
	handlers  map[string]func(event string, payload []byte)
	canceled  []string
}

func newFakePubSub() *fakePubSub {
	return &fakePubSub{handlers: make(map[string]func(event string, payload []byte))}
}

func (f *fakePubSub) PublishRoomEvent(roomCode, event string, payload []byte) error {
	f.published = append(f.published, publishedEvent{Room: roomCode, Event: event, Payload: payload})
	if h, ok := f.handlers[roomCode]; ok {
		h(event, payload)
	}
	return nil
}

func (f *fakePubSub) SubscribeRoom(roomCode string, handler func(event string, payload []byte)) (func(), error) {
	f.handlers[roomCode] = handler
	return func() {
		delete(f.handlers, roomCode)
		f.canceled = append(f.canceled, roomCode)
	}, nil
}

func newTestClient(id, roomCode string) *Client {
	return &Client{ID: id, RoomCode: roomCode, send: make(chan WSMessage, 16)}
}

func drain(c *Client) []WSMessage {
	var msgs []WSMessage
	for {
		select {
		case msg := <-c.send:
			msgs = append(msgs, msg)
		default:
			return msgs
		}
	}
}

func staticSnapshot(code, title string) SnapshotFunc {
	return func(_ context.Context, roomCode string) (*models.RoomSnapshot, error) {
		return &models.RoomSnapshot{ID: roomCode, Title: title, Questions: []models.Question{}}, nil
	}
}

func TestRegisterSendsSnapshotToNewcomer(t *testing.T) {
	hub := NewHub(zap.NewNop(), nil, nil)
	hub.SetSnapshotProvider(staticSnapshot("abc123", "Office hours"))

	c := newTestClient("c1", "abc123")
	hub.Register(c)

	msgs := drain(c)
	require.Len(t, msgs, 1)
	assert.Equal(t, EventRoomState, msgs[0].Event)

	var snap models.RoomSnapshot
	require.NoError(t, json.Unmarshal(msgs[0].Data, &snap))
	assert.Equal(t, "abc123", snap.ID)
	assert.Equal(t, "Office hours", snap.Title)
	assert.NotNil(t, snap.Questions)
}

func TestUnregisterLastClientCancelsSubscription(t *testing.T) {
	ps := newFakePubSub()
	hub := NewHub(zap.NewNop(), ps, ps)

	c1 := newTestClient("c1", "abc123")
	c2 := newTestClient("c2", "abc123")
	hub.Register(c1)
	hub.Register(c2)
	require.Contains(t, ps.handlers, "abc123", "first register starts the room subscription")
	assert.Equal(t, 2, hub.ParticipantCount("abc123"))

	hub.Unregister(c1)
	assert.Contains(t, ps.handlers, "abc123", "subscription survives while clients remain")

	hub.Unregister(c2)
	assert.NotContains(t, ps.handlers, "abc123")
	assert.Equal(t, []string{"abc123"}, ps.canceled)
	assert.Zero(t, hub.ParticipantCount("abc123"))
}

func TestPublishToRoomOnlyDeliversExactlyOnce(t *testing.T) {
	ps := newFakePubSub()
	hub := NewHub(zap.NewNop(), ps, ps)

	c := newTestClient("c1", "abc123")
	hub.Register(c)
	drain(c)

	hub.PublishToRoomOnly("abc123", EventRoomState, map[string]string{"id": "abc123"})

	msgs := drain(c)
	require.Len(t, msgs, 1, "the subscriber callback must be the only local delivery")
	assert.Equal(t, EventRoomState, msgs[0].Event)
	require.Len(t, ps.published, 1)
	assert.Equal(t, "abc123", ps.published[0].Room)
}

func TestPublishToRoomOnlyFallsBackWithoutRedis(t *testing.T) {
	hub := NewHub(zap.NewNop(), nil, nil)

	c := newTestClient("c1", "abc123")
	hub.Register(c)

	hub.PublishToRoomOnly("abc123", EventRoomState, map[string]string{"id": "abc123"})

	msgs := drain(c)
	require.Len(t, msgs, 1)
	assert.Equal(t, EventRoomState, msgs[0].Event)
}

// Broadcasts race with clients joining and leaving the same room; run with
// -race to catch any iteration over the live client map.
func TestBroadcastDuringJoinChurn(t *testing.T) {
	hub := NewHub(zap.NewNop(), nil, nil)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 200; i++ {
			hub.BroadcastToRoom("abc123", EventParticipantCount, map[string]int{"count": i})
		}
	}()

	for i := 0; i < 200; i++ {
		c := newTestClient(fmt.Sprintf("c%d", i), "abc123")
		hub.Register(c)
		hub.Unregister(c)
	}
	<-done

	assert.Zero(t, hub.ParticipantCount("abc123"))
}

func TestBroadcastIsScopedToRoom(t *testing.T) {
	hub := NewHub(zap.NewNop(), nil, nil)

	inRoom := newTestClient("c1", "abc123")
	elsewhere := newTestClient("c2", "zzz999")
	hub.Register(inRoom)
	hub.Register(elsewhere)

	hub.BroadcastToRoom("abc123", EventParticipantCount, map[string]int{"count": 1})

	assert.Len(t, drain(inRoom), 1)
	assert.Empty(t, drain(elsewhere))
}
