package handlers

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"journey-chat/internal/mocks"
	"journey-chat/internal/telemetry"
	"journey-chat/internal/validation"
)

func TestDebugAuditRoute(t *testing.T) {
	gin.SetMode(gin.TestMode)
	publisher := new(mocks.PublisherMock)
	publisher.On("Publish", mock.Anything, "audit.chat", mock.AnythingOfType("telemetry.AuditEnvelope"), mock.Anything).Return(nil).Once()

	router := gin.New()
	RegisterDebugRoutes(router, telemetry.NewAuditEmitter(publisher, "audit.chat", "journey-chat", "test"), validation.New(), true)

	req := httptest.NewRequest(http.MethodGet, "/debug/audit-test", nil)
	req.Header.Set("X-Request-ID", "req-9")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	publisher.AssertExpectations(t)
}

func TestDebugRoutesDisabled(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	RegisterDebugRoutes(router, nil, validation.New(), false)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/debug/audit-test", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDebugAuditRouteCarriesRequestContext(t *testing.T) {
	gin.SetMode(gin.TestMode)
	publisher := new(mocks.PublisherMock)
	publisher.On("Publish", mock.Anything, "audit.chat", mock.MatchedBy(func(event any) bool {
		env, ok := event.(telemetry.AuditEnvelope)
		return ok && env.RequestID == "req-9" && env.Payload.RoomID == "r1" && env.Payload.Action == telemetry.ActionDebug && *env.UserID == 5
	}), map[string]string{"x-request-id": "req-9", "x-audit-action": telemetry.ActionDebug}).Return(nil).Once()

	router := gin.New()
	router.Use(func(c *gin.Context) { c.Set("userID", 5) })
	RegisterDebugRoutes(router, telemetry.NewAuditEmitter(publisher, "audit.chat", "journey-chat", "test"), validation.New(), true)

	req := httptest.NewRequest(http.MethodGet, "/debug/audit-test?room_id=r1", nil)
	req.Header.Set("X-Request-ID", "req-9")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	publisher.AssertExpectations(t)
}

func TestDebugAuditRouteEmitsRequestedAction(t *testing.T) {
	gin.SetMode(gin.TestMode)
	publisher := new(mocks.PublisherMock)
	publisher.On("Publish", mock.Anything, "audit.chat", mock.MatchedBy(func(event any) bool {
		env, ok := event.(telemetry.AuditEnvelope)
		return ok && env.Payload.Action == telemetry.ActionRoomCreated && env.Payload.Text == "smoke" && env.Payload.RoomID == "group-3"
	}), mock.Anything).Return(nil).Once()

	router := gin.New()
	RegisterDebugRoutes(router, telemetry.NewAuditEmitter(publisher, "audit.chat", "journey-chat", "test"), validation.New(), true)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/debug/audit-test?action=room.created&text=smoke&room_id=group-3", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok","action":"room.created","room_id":"group-3"}`, rec.Body.String())
	publisher.AssertExpectations(t)
}

func TestDebugAuditRouteRejectsBadQuery(t *testing.T) {
	gin.SetMode(gin.TestMode)
	publisher := new(mocks.PublisherMock)
	router := gin.New()
	RegisterDebugRoutes(router, telemetry.NewAuditEmitter(publisher, "audit.chat", "journey-chat", "test"), validation.New(), true)

	for _, query := range []string{"action=room.deleted", "room_id=" + strings.Repeat("r", 65)} {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/debug/audit-test?"+query, nil))
		assert.Equal(t, http.StatusBadRequest, rec.Code, query)
	}
	publisher.AssertNotCalled(t, "Publish", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}
