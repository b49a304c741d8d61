package chatclient

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"

	"journey-chat/internal/models"
)

// RoomSource resolves rooms on the backend. *APIClient implements it.
type RoomSource interface {
	CreatePrivateRoom(ctx context.Context, userA, userB int) (models.Room, error)
	GroupRoom(ctx context.Context, groupID int) (models.Room, error)
}

// RoomIdentity maps a pair of users or a group to a room id.
type RoomIdentity struct {
	rooms      RoomSource
	sessions   *SessionStore
	newBackOff func() backoff.BackOff
}

func NewRoomIdentity(rooms RoomSource, sessions *SessionStore) *RoomIdentity {
	return &RoomIdentity{
		rooms:      rooms,
		sessions:   sessions,
		newBackOff: defaultResolveBackOff,
	}
}

func defaultResolveBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 200 * time.Millisecond
	b.MaxInterval = 2 * time.Second
	b.MaxElapsedTime = 10 * time.Second
	return backoff.WithMaxRetries(b, 4)
}

// ResolvePrivate returns the room shared by userA and userB, creating it on
// first use. The result does not depend on argument order. Transient failures
// are retried; nothing is cached, so a failed call leaves no tentative id.
func (r *RoomIdentity) ResolvePrivate(ctx context.Context, userA, userB int) (string, error) {
	if _, ok := r.sessions.Get(); !ok {
		return "", ErrNoSession
	}
	if userA <= 0 || userB <= 0 {
		return "", &ValidationError{Field: "user_ids", Reason: "user ids must be positive"}
	}
	if userA == userB {
		return "", &ValidationError{Field: "user_ids", Reason: "a private room needs two distinct users"}
	}
	low, high := userA, userB
	if low > high {
		low, high = high, low
	}

	var room models.Room
	op := func() error {
		var err error
		room, err = r.rooms.CreatePrivateRoom(ctx, low, high)
		if err != nil && !IsTransient(err) {
			return backoff.Permanent(err)
		}
		return err
	}
	if err := backoff.Retry(op, backoff.WithContext(r.newBackOff(), ctx)); err != nil {
		return "", fmt.Errorf("resolve private room %d/%d: %w", low, high, err)
	}
	return room.ID, nil
}

// ResolveGroup returns the room of an existing group.
func (r *RoomIdentity) ResolveGroup(ctx context.Context, groupID int) (string, error) {
	if _, ok := r.sessions.Get(); !ok {
		return "", ErrNoSession
	}
	if groupID <= 0 {
		return "", &ValidationError{Field: "group_id", Reason: "group id must be positive"}
	}
	room, err := r.rooms.GroupRoom(ctx, groupID)
	if err != nil {
		return "", fmt.Errorf("resolve group room %d: %w", groupID, err)
	}
	return room.ID, nil
}
