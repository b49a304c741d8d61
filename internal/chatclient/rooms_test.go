package chatclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRoomIdentity(t *testing.T, handler http.HandlerFunc, sessions *SessionStore) *RoomIdentity {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	rooms := NewRoomIdentity(NewAPIClient(server.URL, server.Client(), sessions), sessions)
	rooms.newBackOff = func() backoff.BackOff {
		return backoff.WithMaxRetries(&backoff.ConstantBackOff{Interval: time.Millisecond}, 3)
	}
	return rooms
}

func privateRoomHandler(t *testing.T, calls *atomic.Int32, pairs chan<- [2]int) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		assert.Equal(t, "Bearer token", r.Header.Get("Authorization"))
		var req struct {
			UserIDs []int `json:"user_ids"`
		}
		if !assert.NoError(t, json.NewDecoder(r.Body).Decode(&req)) || !assert.Len(t, req.UserIDs, 2) {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		if pairs != nil {
			pairs <- [2]int{req.UserIDs[0], req.UserIDs[1]}
		}
		low, high := req.UserIDs[0], req.UserIDs[1]
		if low > high {
			low, high = high, low
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = fmt.Fprintf(w, `{"room":{"id":"private-%d-%d","kind":"private","participants":[%d,%d]}}`, low, high, low, high)
	}
}

func TestResolvePrivateIsCommutative(t *testing.T) {
	var calls atomic.Int32
	pairs := make(chan [2]int, 2)
	rooms := newTestRoomIdentity(t, privateRoomHandler(t, &calls, pairs), NewSessionStore(Session{UserID: 1, Token: "token"}))

	ab, err := rooms.ResolvePrivate(context.Background(), 1, 2)
	require.NoError(t, err)
	ba, err := rooms.ResolvePrivate(context.Background(), 2, 1)
	require.NoError(t, err)

	assert.Equal(t, ab, ba)
	assert.Equal(t, "private-1-2", ab)
	assert.Equal(t, [2]int{1, 2}, <-pairs)
	assert.Equal(t, [2]int{1, 2}, <-pairs)
	assert.EqualValues(t, 2, calls.Load())
}

func TestResolvePrivateRetriesTransientFailures(t *testing.T) {
	var calls atomic.Int32
	ok := privateRoomHandler(t, &calls, nil)
	rooms := newTestRoomIdentity(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Load() < 2 {
			calls.Add(1)
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		ok(w, r)
	}, NewSessionStore(Session{UserID: 1, Token: "token"}))

	id, err := rooms.ResolvePrivate(context.Background(), 2, 1)
	require.NoError(t, err)
	assert.Equal(t, "private-1-2", id)
	assert.EqualValues(t, 3, calls.Load())
}

func TestResolvePrivateGivesUpOnPermanentFailure(t *testing.T) {
	var calls atomic.Int32
	rooms := newTestRoomIdentity(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusForbidden)
	}, NewSessionStore(Session{UserID: 1, Token: "token"}))

	_, err := rooms.ResolvePrivate(context.Background(), 1, 2)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.EqualValues(t, 1, calls.Load())
}

func TestResolvePrivateExhaustedRetriesStayTransient(t *testing.T) {
	rooms := newTestRoomIdentity(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}, NewSessionStore(Session{UserID: 1, Token: "token"}))

	_, err := rooms.ResolvePrivate(context.Background(), 1, 2)
	require.Error(t, err)
	assert.True(t, IsTransient(err))
}

func TestResolvePrivateValidation(t *testing.T) {
	var calls atomic.Int32
	handler := privateRoomHandler(t, &calls, nil)

	rooms := newTestRoomIdentity(t, handler, NewSessionStore(Session{UserID: 1, Token: "token"}))
	for _, pair := range [][2]int{{1, 1}, {0, 2}, {3, -1}} {
		_, err := rooms.ResolvePrivate(context.Background(), pair[0], pair[1])
		var verr *ValidationError
		assert.True(t, errors.As(err, &verr), "pair %v", pair)
	}

	anonymous := newTestRoomIdentity(t, handler, &SessionStore{})
	_, err := anonymous.ResolvePrivate(context.Background(), 1, 2)
	assert.ErrorIs(t, err, ErrNoSession)

	assert.EqualValues(t, 0, calls.Load())
}

func TestResolveGroup(t *testing.T) {
	rooms := newTestRoomIdentity(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/groups/7/room":
			_, _ = w.Write([]byte(`{"room":{"id":"group-7","kind":"group"}}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}, NewSessionStore(Session{UserID: 1, Token: "token"}))

	id, err := rooms.ResolveGroup(context.Background(), 7)
	require.NoError(t, err)
	assert.Equal(t, "group-7", id)

	_, err = rooms.ResolveGroup(context.Background(), 8)
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = rooms.ResolveGroup(context.Background(), 0)
	var verr *ValidationError
	assert.True(t, errors.As(err, &verr))
}
