package ws

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"journey-chat/internal/auth"
	"journey-chat/internal/mocks"
	"journey-chat/internal/models"
	"journey-chat/internal/repositories"
	"journey-chat/internal/validation"
)

func newTestHandler(rooms *mocks.RoomRepositoryMock, messages *mocks.MessageRepositoryMock, profiles *mocks.ProfileRepositoryMock) (*Handler, *Hub) {
	hub := NewHub()
	tokens := auth.NewManager("secret", "journey-chat", time.Hour)
	var profileRepo repositories.ProfileRepository
	if profiles != nil {
		profileRepo = profiles
	}
	return NewHandler(hub, rooms, messages, profileRepo, tokens, validation.New(), 2000), hub
}

func TestDispatchJoinRequiresMembership(t *testing.T) {
	rooms := new(mocks.RoomRepositoryMock)
	handler, hub := newTestHandler(rooms, new(mocks.MessageRepositoryMock), nil)
	peer := NewPeer(ConnInfo{ConnID: "a", UserID: 1})

	rooms.On("IsParticipant", mock.Anything, "r1", 1).Return(false, nil).Once()
	rooms.On("IsParticipant", mock.Anything, "r2", 1).Return(true, nil).Once()

	handler.Dispatch(context.Background(), peer, models.RoomEvent{Type: models.EventJoinRoom, RoomID: "r1"})
	event := receiveEvent(t, peer)
	assert.Equal(t, models.EventError, event.Type)
	assert.False(t, hub.Joined("r1", peer))

	handler.Dispatch(context.Background(), peer, models.RoomEvent{Type: models.EventJoinRoom, RoomID: "r2"})
	assert.True(t, hub.Joined("r2", peer))
	rooms.AssertExpectations(t)
}

func TestDispatchSendPersistsAndBroadcasts(t *testing.T) {
	rooms := new(mocks.RoomRepositoryMock)
	messages := new(mocks.MessageRepositoryMock)
	profiles := new(mocks.ProfileRepositoryMock)
	handler, hub := newTestHandler(rooms, messages, profiles)
	peer := NewPeer(ConnInfo{ConnID: "a", UserID: 1})
	hub.Join("r1", peer)

	sentAt := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	messages.On("CreateMessage", mock.Anything, models.Message{RoomID: "r1", AuthorID: 1, Body: "hello", ClientNonce: "n1"}).
		Return(models.Message{ID: 9, RoomID: "r1", AuthorID: 1, Body: "hello", ClientNonce: "n1", SentAt: sentAt}, nil).Once()
	profiles.On("GetProfile", mock.Anything, 1).Return(models.Profile{UserID: 1, DisplayName: "Ana"}, nil).Once()

	handler.Dispatch(context.Background(), peer, models.RoomEvent{
		Type:    models.EventSendMessage,
		RoomID:  "r1",
		Message: &models.Message{Body: "  hello  ", ClientNonce: "n1", AuthorID: 99},
	})

	event := receiveEvent(t, peer)
	assert.Equal(t, models.EventReceiveMessage, event.Type)
	require.NotNil(t, event.Message)
	assert.Equal(t, 1, event.Message.AuthorID)
	assert.Equal(t, "n1", event.Message.ClientNonce)
	require.NotNil(t, event.Message.Author)
	assert.Equal(t, "Ana", event.Message.Author.DisplayName)
	messages.AssertExpectations(t)
	profiles.AssertExpectations(t)
}

func TestDispatchSendRejectsInvalidBody(t *testing.T) {
	messages := new(mocks.MessageRepositoryMock)
	handler, hub := newTestHandler(new(mocks.RoomRepositoryMock), messages, nil)
	peer := NewPeer(ConnInfo{ConnID: "a", UserID: 1})
	hub.Join("r1", peer)

	for _, body := range []string{"   ", strings.Repeat("x", 2001)} {
		handler.Dispatch(context.Background(), peer, models.RoomEvent{
			Type:    models.EventSendMessage,
			Message: &models.Message{RoomID: "r1", Body: body},
		})
		assert.Equal(t, models.EventError, receiveEvent(t, peer).Type)
	}
	messages.AssertNotCalled(t, "CreateMessage", mock.Anything, mock.Anything)
}

func TestDispatchSendRequiresJoinedRoom(t *testing.T) {
	messages := new(mocks.MessageRepositoryMock)
	handler, _ := newTestHandler(new(mocks.RoomRepositoryMock), messages, nil)
	peer := NewPeer(ConnInfo{ConnID: "a", UserID: 1})

	handler.Dispatch(context.Background(), peer, models.RoomEvent{
		Type:    models.EventSendMessage,
		Message: &models.Message{RoomID: "r1", Body: "hi"},
	})

	event := receiveEvent(t, peer)
	assert.Equal(t, "room not joined", event.Error)
	messages.AssertNotCalled(t, "CreateMessage", mock.Anything, mock.Anything)
}

func TestHandleRoundTrip(t *testing.T) {
	gin.SetMode(gin.TestMode)
	rooms := new(mocks.RoomRepositoryMock)
	messages := new(mocks.MessageRepositoryMock)
	handler, _ := newTestHandler(rooms, messages, nil)

	router := gin.New()
	router.GET("/v1/ws", handler.Handle)
	server := httptest.NewServer(router)
	defer server.Close()

	token, err := auth.NewManager("secret", "journey-chat", time.Hour).IssueToken(1)
	require.NoError(t, err)

	rooms.On("IsParticipant", mock.Anything, "r1", 1).Return(true, nil).Once()
	messages.On("CreateMessage", mock.Anything, mock.AnythingOfType("models.Message")).
		Return(models.Message{ID: 1, RoomID: "r1", AuthorID: 1, Body: "hey", ClientNonce: "n1", SentAt: time.Now().UTC()}, nil).Once()

	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/v1/ws?token=" + token
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	// Frames on one connection are handled in order, so the join lands first.
	require.NoError(t, conn.WriteJSON(models.RoomEvent{Type: models.EventJoinRoom, RoomID: "r1"}))
	require.NoError(t, conn.WriteJSON(models.RoomEvent{
		Type:    models.EventSendMessage,
		RoomID:  "r1",
		Message: &models.Message{Body: "hey", ClientNonce: "n1"},
	}))

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var event models.RoomEvent
	require.NoError(t, conn.ReadJSON(&event))
	assert.Equal(t, models.EventReceiveMessage, event.Type)
	require.NotNil(t, event.Message)
	assert.Equal(t, "n1", event.Message.ClientNonce)
}

func TestHandleRejectsBadToken(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler, _ := newTestHandler(new(mocks.RoomRepositoryMock), new(mocks.MessageRepositoryMock), nil)
	router := gin.New()
	router.GET("/v1/ws", handler.Handle)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v1/ws?token=bad", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}
