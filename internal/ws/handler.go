package ws

import (
	"context"
	"errors"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"journey-chat/internal/middleware"
	"journey-chat/internal/models"
	"journey-chat/internal/observability"
	"journey-chat/internal/repositories"
	"journey-chat/internal/validation"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxFrameSize   = 16 * 1024
	storeOpTimeout = 5 * time.Second
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Handler serves the shared room transport: one connection per client,
// any number of joined rooms.
type Handler struct {
	hub       *Hub
	rooms     repositories.RoomRepository
	messages  repositories.MessageRepository
	profiles  repositories.ProfileRepository
	tokens    middleware.TokenParser
	validator *validation.Validator
	bodyRule  string
}

// NewHandler constructs a Handler. profiles may be nil.
func NewHandler(hub *Hub, rooms repositories.RoomRepository, messages repositories.MessageRepository, profiles repositories.ProfileRepository, tokens middleware.TokenParser, v *validation.Validator, maxBody int) *Handler {
	return &Handler{
		hub:       hub,
		rooms:     rooms,
		messages:  messages,
		profiles:  profiles,
		tokens:    tokens,
		validator: v,
		bodyRule:  BodyRule(maxBody),
	}
}

// Handle authenticates, upgrades and serves the connection.
func (h *Handler) Handle(c *gin.Context) {
	ctx, span := otel.Tracer("journey-chat/ws").Start(c.Request.Context(), "ws.handshake", trace.WithSpanKind(trace.SpanKindServer))
	defer span.End()
	c.Request = c.Request.WithContext(ctx)

	token, ok := middleware.BearerToken(c.GetHeader("Authorization"))
	if !ok {
		token = c.Query("token")
	}
	userID, err := h.tokens.ParseToken(token)
	if err != nil {
		span.SetStatus(codes.Error, "invalid token")
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
		return
	}
	span.SetAttributes(attribute.Int("chat.user_id", userID))

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		span.RecordError(err)
		return
	}

	traceID := span.SpanContext().TraceID().String()
	info := ConnInfo{
		RequestMeta: observability.MetaFromRequest(c.Request),
		ConnID:      newConnID(),
		UserID:      userID,
		TraceID:     traceID,
		ConnectedAt: time.Now(),
	}
	peer := NewPeer(info)

	observability.IncWSActive(wsKind)
	publishWSEvent(ctx, "ws_connect", "", info, "")

	go h.writeLoop(conn, peer)
	go h.readLoop(context.WithoutCancel(ctx), conn, peer)
}

func (h *Handler) readLoop(ctx context.Context, conn *websocket.Conn, peer *Peer) {
	var closeReason string
	defer func() {
		h.hub.Remove(peer)
		close(peer.send)
		observability.DecWSActive(wsKind)
		publishWSEvent(ctx, "ws_disconnect", "", peer.info, closeReason)
	}()

	conn.SetReadLimit(maxFrameSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var event models.RoomEvent
		if err := conn.ReadJSON(&event); err != nil {
			closeReason = err.Error()
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				publishWSEvent(ctx, "ws_error", "", peer.info, closeReason)
			}
			return
		}
		h.Dispatch(ctx, peer, event)
	}
}

func (h *Handler) writeLoop(conn *websocket.Conn, peer *Peer) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		conn.Close()
	}()

	for {
		select {
		case payload, ok := <-peer.send:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				log.Printf("websocket write error: conn_id=%s err=%v", peer.info.ConnID, err)
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// Dispatch applies one inbound event for peer.
func (h *Handler) Dispatch(ctx context.Context, peer *Peer, event models.RoomEvent) {
	switch event.Type {
	case models.EventJoinRoom:
		h.join(ctx, peer, event.RoomID)
	case models.EventLeaveRoom:
		h.hub.Leave(event.RoomID, peer)
		publishWSEvent(ctx, models.EventLeaveRoom, event.RoomID, peer.info, "")
	case models.EventSendMessage:
		h.send(ctx, peer, event)
	default:
		h.replyError(peer, event.RoomID, "unknown event type")
	}
}

func (h *Handler) join(ctx context.Context, peer *Peer, roomID string) {
	if roomID == "" {
		h.replyError(peer, roomID, "room_id is required")
		return
	}
	opCtx, cancel := context.WithTimeout(ctx, storeOpTimeout)
	defer cancel()

	member, err := h.rooms.IsParticipant(opCtx, roomID, peer.UserID())
	if err != nil {
		log.Printf("ws join membership check failed: room_id=%s err=%v", roomID, err)
		h.replyError(peer, roomID, "failed to verify membership")
		return
	}
	if !member {
		h.replyError(peer, roomID, "not a room member")
		return
	}
	h.hub.Join(roomID, peer)
	publishWSEvent(ctx, models.EventJoinRoom, roomID, peer.info, "")
}

func (h *Handler) send(ctx context.Context, peer *Peer, event models.RoomEvent) {
	if event.Message == nil {
		h.replyError(peer, event.RoomID, "message is required")
		return
	}
	msg := *event.Message
	if msg.RoomID == "" {
		msg.RoomID = event.RoomID
	}
	if !h.hub.Joined(msg.RoomID, peer) {
		h.replyError(peer, msg.RoomID, "room not joined")
		return
	}

	msg.Body = strings.TrimSpace(msg.Body)
	if err := h.validator.Validate("body", msg.Body, h.bodyRule); err != nil {
		h.replyError(peer, msg.RoomID, err.Error())
		return
	}
	msg.AuthorID = peer.UserID()

	opCtx, cancel := context.WithTimeout(ctx, storeOpTimeout)
	defer cancel()

	saved, err := h.messages.CreateMessage(opCtx, msg)
	if err != nil {
		log.Printf("ws persist message failed: room_id=%s err=%v", msg.RoomID, err)
		h.replyError(peer, msg.RoomID, "failed to send message")
		return
	}
	observability.IncMessagePersisted("ws")
	publishWSEvent(ctx, models.EventSendMessage, msg.RoomID, peer.info, "")

	h.hub.BroadcastMessage(AttachAuthor(opCtx, h.profiles, saved))
}

func (h *Handler) replyError(peer *Peer, roomID, reason string) {
	payload, err := encodeEvent(models.RoomEvent{Type: models.EventError, RoomID: roomID, Error: reason})
	if err != nil {
		return
	}
	if !peer.enqueue(payload) {
		log.Printf("websocket queue full, error reply dropped: conn_id=%s", peer.info.ConnID)
	}
}

// AttachAuthor embeds the author's profile into msg when one exists.
func AttachAuthor(ctx context.Context, profiles repositories.ProfileRepository, msg models.Message) models.Message {
	if profiles == nil || msg.Author != nil {
		return msg
	}
	profile, err := profiles.GetProfile(ctx, msg.AuthorID)
	if err != nil {
		if !errors.Is(err, repositories.ErrProfileNotFound) {
			log.Printf("author lookup failed: user_id=%d err=%v", msg.AuthorID, err)
		}
		return msg
	}
	msg.Author = &models.Author{DisplayName: profile.DisplayName, AvatarURL: profile.AvatarURL}
	return msg
}
