package observability_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"journey-chat/internal/mocks"
	"journey-chat/internal/observability"
)

func TestPublishEventUsesInstalledPublisher(t *testing.T) {
	publisher := new(mocks.PublisherMock)
	observability.SetPublisher(publisher)
	defer observability.SetPublisher(nil)

	envelope := observability.EventEnvelope{EventType: "ws_events", EventName: "join_room"}
	publisher.On("Publish", mock.Anything, "ws_events.rooms", envelope, map[string]string{"x-request-id": "r"}).Return(errors.New("down")).Once()

	err := observability.PublishEvent(context.Background(), "ws_events.rooms", envelope, observability.BuildHeaders("r", ""))
	require.Error(t, err)
	publisher.AssertExpectations(t)
}

func TestPublishEventWithoutPublisher(t *testing.T) {
	observability.SetPublisher(nil)
	assert.NoError(t, observability.PublishEvent(context.Background(), "k", nil, nil))
}

func TestBuildHeadersSkipsEmpty(t *testing.T) {
	assert.Empty(t, observability.BuildHeaders("", ""))
	assert.Equal(t, map[string]string{"x-request-id": "a", "trace_id": "b"}, observability.BuildHeaders("a", "b"))
}

func TestMetaFromRequest(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Forwarded-For", "10.0.0.1, 10.0.0.2")
	req.Header.Set("X-Request-Id", "req-1")
	req.Header.Set("X-Device-Id", "phone")
	assert.Equal(t, observability.RequestMeta{DeviceID: "phone", RequestID: "req-1", IP: "10.0.0.1"}, observability.MetaFromRequest(req))

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "192.168.1.5:4000"
	meta := observability.MetaFromRequest(req)
	assert.Equal(t, "192.168.1.5", meta.IP)
	assert.NotEmpty(t, meta.RequestID)
}

func TestNewWSEnvelope(t *testing.T) {
	envelope := observability.NewWSEnvelope(observability.WSEvent{Kind: "room", RoomID: "r1", Event: "join_room", ConnID: "c1"},
		observability.Identity{UserID: 7, IP: "10.0.0.1"}, time.Now().Add(-time.Second))

	assert.Equal(t, "ws_events", envelope.EventType)
	assert.Equal(t, "join_room", envelope.EventName)
	payload, ok := envelope.Payload.(observability.WSEventPayload)
	require.True(t, ok)
	assert.Equal(t, "r1", payload.WS.RoomID)
	assert.GreaterOrEqual(t, payload.WS.DurationMS, int64(1000))
	assert.Equal(t, 7, payload.Identity.UserID)
}

func TestInitTracingWithoutEndpointIsNoop(t *testing.T) {
	shutdown, err := observability.InitTracing(context.Background(), "", "journey-chat", "test")
	require.NoError(t, err)
	assert.NoError(t, shutdown(context.Background()))
}

func TestHTTPMetricsMiddlewarePassesThrough(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(observability.HTTPMetricsMiddleware())
	router.GET("/ping", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ping", nil))
	assert.Equal(t, http.StatusNoContent, w.Code)
}
