package chatclient

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"journey-chat/internal/models"
)

func at(hour, minute int) time.Time {
	return time.Date(2024, 5, 1, hour, minute, 0, 0, time.UTC)
}

func entryAt(roomID string, authorID int, body string, sentAt time.Time) Entry {
	return Entry{
		Message: models.Message{RoomID: roomID, AuthorID: authorID, Body: body, SentAt: sentAt},
		Display: Display{Name: fmt.Sprintf("user-%d", authorID), AvatarURL: DefaultAvatarURL},
	}
}

func bodies(entries []Entry) []string {
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.Body)
	}
	return out
}

// fakeChannel records timeline traffic instead of touching a network.
type fakeChannel struct {
	mu      sync.Mutex
	joins   []string
	leaves  []string
	sent    []models.Message
	refuse  bool
	handler func(Entry)
}

func (f *fakeChannel) Join(roomID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.joins = append(f.joins, roomID)
}

func (f *fakeChannel) Leave(roomID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.leaves = append(f.leaves, roomID)
}

func (f *fakeChannel) Send(msg models.Message) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.refuse {
		return false
	}
	f.sent = append(f.sent, msg)
	return true
}

func (f *fakeChannel) OnMessage(fn func(Entry)) {
	f.handler = fn
}

func (f *fakeChannel) deliver(entry Entry) {
	f.handler(entry)
}

func (f *fakeChannel) sentMessages() []models.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]models.Message, len(f.sent))
	copy(out, f.sent)
	return out
}

type historyFunc func(ctx context.Context, roomID string) ([]Entry, error)

func (h historyFunc) LoadHistory(ctx context.Context, roomID string) ([]Entry, error) {
	return h(ctx, roomID)
}

type namedDisplayer struct{}

func (namedDisplayer) ResolveDisplay(_ context.Context, userID int) Display {
	return Display{Name: fmt.Sprintf("user-%d", userID), AvatarURL: DefaultAvatarURL}
}

var errConnClosed = errors.New("connection closed")

// fakeConn is an in-memory websocket connection.
type fakeConn struct {
	inbound chan models.RoomEvent
	closed  chan struct{}
	once    sync.Once

	mu      sync.Mutex
	written []models.RoomEvent
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		inbound: make(chan models.RoomEvent, 16),
		closed:  make(chan struct{}),
	}
}

func (c *fakeConn) ReadJSON(v interface{}) error {
	select {
	case event := <-c.inbound:
		*(v.(*models.RoomEvent)) = event
		return nil
	case <-c.closed:
		return errConnClosed
	}
}

func (c *fakeConn) WriteJSON(v interface{}) error {
	select {
	case <-c.closed:
		return errConnClosed
	default:
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.written = append(c.written, v.(models.RoomEvent))
	return nil
}

func (c *fakeConn) WriteMessage(int, []byte) error            { return nil }
func (c *fakeConn) SetReadDeadline(time.Time) error           { return nil }
func (c *fakeConn) SetWriteDeadline(time.Time) error          { return nil }
func (c *fakeConn) SetPongHandler(func(appData string) error) {}

func (c *fakeConn) Close() error {
	c.once.Do(func() { close(c.closed) })
	return nil
}

func (c *fakeConn) frames() []models.RoomEvent {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]models.RoomEvent, len(c.written))
	copy(out, c.written)
	return out
}

type fakeDialer struct {
	conns chan *fakeConn
}

func (d *fakeDialer) Dial(ctx context.Context) (Conn, error) {
	select {
	case conn := <-d.conns:
		return conn, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
