package ws

import (
	"context"
	"encoding/json"
	"log"
	"sync"

	"journey-chat/internal/models"
	"journey-chat/internal/observability"
)

const (
	wsKind        = "room"
	wsRoutingKey  = "ws_events.rooms"
	peerQueueSize = 64
)

// Hub maintains room subscriptions for every live connection.
type Hub struct {
	rooms     map[string]map[*Peer]struct{}
	peerRooms map[*Peer]map[string]struct{}
	mu        sync.RWMutex
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{
		rooms:     make(map[string]map[*Peer]struct{}),
		peerRooms: make(map[*Peer]map[string]struct{}),
	}
}

// Peer is one websocket connection. Outbound frames are queued on send and
// written by a single writer goroutine.
type Peer struct {
	info ConnInfo
	send chan []byte
}

func NewPeer(info ConnInfo) *Peer {
	return &Peer{info: info, send: make(chan []byte, peerQueueSize)}
}

func (p *Peer) UserID() int {
	return p.info.UserID
}

// enqueue reports false when the queue is full.
func (p *Peer) enqueue(payload []byte) bool {
	select {
	case p.send <- payload:
		return true
	default:
		return false
	}
}

// Join subscribes peer to roomID. Joining twice is a no-op.
func (h *Hub) Join(roomID string, peer *Peer) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.rooms[roomID]; !ok {
		h.rooms[roomID] = make(map[*Peer]struct{})
	}
	h.rooms[roomID][peer] = struct{}{}
	if _, ok := h.peerRooms[peer]; !ok {
		h.peerRooms[peer] = make(map[string]struct{})
	}
	if _, ok := h.peerRooms[peer][roomID]; !ok {
		h.peerRooms[peer][roomID] = struct{}{}
		observability.AddWSSubscriptions(1)
	}
}

// Leave unsubscribes peer from roomID.
func (h *Hub) Leave(roomID string, peer *Peer) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.leaveLocked(roomID, peer)
}

func (h *Hub) leaveLocked(roomID string, peer *Peer) {
	if peers, ok := h.rooms[roomID]; ok {
		delete(peers, peer)
		if len(peers) == 0 {
			delete(h.rooms, roomID)
		}
	}
	if rooms, ok := h.peerRooms[peer]; ok {
		if _, joined := rooms[roomID]; joined {
			delete(rooms, roomID)
			observability.AddWSSubscriptions(-1)
		}
		if len(rooms) == 0 {
			delete(h.peerRooms, peer)
		}
	}
}

// Remove drops peer from every room. After Remove returns no broadcast
// references the peer, so its queue may be closed.
func (h *Hub) Remove(peer *Peer) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for roomID := range h.peerRooms[peer] {
		h.leaveLocked(roomID, peer)
	}
}

// Joined reports whether peer is subscribed to roomID.
func (h *Hub) Joined(roomID string, peer *Peer) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.rooms[roomID][peer]
	return ok
}

// BroadcastMessage delivers a receive_message event to every peer in the room,
// the sender included.
func (h *Hub) BroadcastMessage(msg models.Message) {
	event := models.RoomEvent{Type: models.EventReceiveMessage, RoomID: msg.RoomID, Message: &msg}
	payload, err := json.Marshal(event)
	if err != nil {
		log.Printf("websocket marshal error: %v", err)
		return
	}

	var dropped []*Peer
	h.mu.RLock()
	for peer := range h.rooms[msg.RoomID] {
		if !peer.enqueue(payload) {
			dropped = append(dropped, peer)
		}
	}
	queued := len(h.rooms[msg.RoomID]) - len(dropped)
	h.mu.RUnlock()
	observability.ObserveBroadcast(queued, len(dropped))

	for _, peer := range dropped {
		log.Printf("websocket queue full: conn_id=%s room_id=%s", peer.info.ConnID, msg.RoomID)
		publishWSEvent(context.Background(), "ws_error", msg.RoomID, peer.info, "send queue full")
	}
}

func publishWSEvent(ctx context.Context, event, roomID string, info ConnInfo, reason string) {
	observability.IncWSEvent(wsKind, event)
	envelope := observability.NewWSEnvelope(observability.WSEvent{
		Kind:   wsKind,
		RoomID: roomID,
		Event:  event,
		ConnID: info.ConnID,
		Reason: reason,
	}, info.identity(), info.ConnectedAt)
	_ = observability.PublishEvent(ctx, wsRoutingKey, envelope, observability.BuildHeaders(info.RequestID, info.TraceID))
}
