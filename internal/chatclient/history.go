package chatclient

import (
	"context"
	"fmt"
	"sort"
	"time"

	"journey-chat/internal/models"
)

const defaultHistoryTimeout = 10 * time.Second

// MessageSource fetches persisted room messages. *APIClient implements it.
type MessageSource interface {
	RoomMessages(ctx context.Context, roomID string) ([]models.Message, error)
}

// Decorator normalizes a wire message into a timeline entry. *Directory
// implements it and is shared by HistoryLoader and LiveChannel.
type Decorator interface {
	Decorate(ctx context.Context, msg models.Message) Entry
}

// HistoryLoader fetches and normalizes the backlog of a room.
type HistoryLoader struct {
	source    MessageSource
	decorator Decorator
	timeout   time.Duration
}

// NewHistoryLoader builds a loader. A non-positive timeout uses 10s.
func NewHistoryLoader(source MessageSource, decorator Decorator, timeout time.Duration) *HistoryLoader {
	if timeout <= 0 {
		timeout = defaultHistoryTimeout
	}
	return &HistoryLoader{source: source, decorator: decorator, timeout: timeout}
}

// LoadHistory returns the room's entries oldest first. Failures are
// ErrNotFound or a *TransientFetchError; an empty room is not an error.
func (l *HistoryLoader) LoadHistory(ctx context.Context, roomID string) ([]Entry, error) {
	ctx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()

	msgs, err := l.source.RoomMessages(ctx, roomID)
	if err != nil {
		return nil, fmt.Errorf("load history of %s: %w", roomID, err)
	}

	entries := make([]Entry, 0, len(msgs))
	for _, msg := range msgs {
		if msg.RoomID == "" {
			msg.RoomID = roomID
		}
		entries = append(entries, l.decorator.Decorate(ctx, msg))
	}
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].SentAt.Before(entries[j].SentAt)
	})
	return entries, nil
}
