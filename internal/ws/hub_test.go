package ws

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"journey-chat/internal/models"
)

func receiveEvent(t *testing.T, peer *Peer) models.RoomEvent {
	t.Helper()
	select {
	case payload := <-peer.send:
		var event models.RoomEvent
		require.NoError(t, json.Unmarshal(payload, &event))
		return event
	case <-time.After(time.Second):
		t.Fatal("expected a queued frame")
		return models.RoomEvent{}
	}
}

func TestHubJoinAndLeave(t *testing.T) {
	hub := NewHub()
	peer := NewPeer(ConnInfo{ConnID: "a", UserID: 1})

	hub.Join("r1", peer)
	hub.Join("r1", peer)
	assert.True(t, hub.Joined("r1", peer))
	assert.Len(t, hub.rooms["r1"], 1)

	hub.Leave("r1", peer)
	assert.False(t, hub.Joined("r1", peer))
	assert.Empty(t, hub.rooms)
	assert.Empty(t, hub.peerRooms)
}

func TestHubRemoveDropsAllRooms(t *testing.T) {
	hub := NewHub()
	peer := NewPeer(ConnInfo{ConnID: "a", UserID: 1})
	other := NewPeer(ConnInfo{ConnID: "b", UserID: 2})

	hub.Join("r1", peer)
	hub.Join("r2", peer)
	hub.Join("r2", other)

	hub.Remove(peer)

	assert.NotContains(t, hub.rooms, "r1")
	assert.Len(t, hub.rooms["r2"], 1)
	assert.True(t, hub.Joined("r2", other))
}

func TestHubBroadcastReachesSenderAndRoomOnly(t *testing.T) {
	hub := NewHub()
	sender := NewPeer(ConnInfo{ConnID: "a", UserID: 1})
	member := NewPeer(ConnInfo{ConnID: "b", UserID: 2})
	outsider := NewPeer(ConnInfo{ConnID: "c", UserID: 3})

	hub.Join("r1", sender)
	hub.Join("r1", member)
	hub.Join("r2", outsider)

	hub.BroadcastMessage(models.Message{RoomID: "r1", AuthorID: 1, Body: "hi", ClientNonce: "n1"})

	for _, peer := range []*Peer{sender, member} {
		event := receiveEvent(t, peer)
		assert.Equal(t, models.EventReceiveMessage, event.Type)
		require.NotNil(t, event.Message)
		assert.Equal(t, "n1", event.Message.ClientNonce)
	}
	assert.Empty(t, outsider.send)
}

func TestHubBroadcastFullQueueDoesNotBlock(t *testing.T) {
	hub := NewHub()
	peer := &Peer{info: ConnInfo{ConnID: "a"}, send: make(chan []byte, 1)}
	hub.Join("r1", peer)

	hub.BroadcastMessage(models.Message{RoomID: "r1", Body: "one"})
	hub.BroadcastMessage(models.Message{RoomID: "r1", Body: "two"})

	assert.Len(t, peer.send, 1)
}
