package chatclient

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"
	"sort"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gorilla/websocket"

	"journey-chat/internal/models"
)

// State is the connection state of a LiveChannel.
type State int

const (
	Disconnected State = iota
	Connecting
	Connected
)

func (s State) String() string {
	switch s {
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	default:
		return "disconnected"
	}
}

// Conn is the subset of *websocket.Conn used by LiveChannel.
type Conn interface {
	ReadJSON(v interface{}) error
	WriteJSON(v interface{}) error
	WriteMessage(messageType int, data []byte) error
	SetReadDeadline(t time.Time) error
	SetWriteDeadline(t time.Time) error
	SetPongHandler(h func(appData string) error)
	Close() error
}

// Dialer opens a transport connection.
type Dialer interface {
	Dial(ctx context.Context) (Conn, error)
}

// WebsocketDialer dials the chat websocket endpoint with the session token.
type WebsocketDialer struct {
	URL      string
	Sessions *SessionStore
	Dialer   *websocket.Dialer
}

func (d WebsocketDialer) Dial(ctx context.Context) (Conn, error) {
	session, ok := d.Sessions.Get()
	if !ok {
		return nil, ErrNoSession
	}
	u, err := url.Parse(d.URL)
	if err != nil {
		return nil, err
	}
	q := u.Query()
	q.Set("token", session.Token)
	u.RawQuery = q.Encode()

	dialer := d.Dialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}
	header := http.Header{}
	header.Set("Authorization", "Bearer "+session.Token)
	conn, _, err := dialer.DialContext(ctx, u.String(), header)
	if err != nil {
		return nil, err
	}
	return conn, nil
}

// LiveConfig tunes a LiveChannel. Zero values pick defaults.
type LiveConfig struct {
	QueueSize  int
	PingPeriod time.Duration
	PongWait   time.Duration
	WriteWait  time.Duration
	// NewBackOff builds the reconnect schedule for each Run.
	NewBackOff func() backoff.BackOff
	Logger     *slog.Logger
}

const maxReconnectDelay = 30 * time.Second

func (c LiveConfig) withDefaults() LiveConfig {
	if c.QueueSize <= 0 {
		c.QueueSize = 256
	}
	if c.PongWait <= 0 {
		c.PongWait = 60 * time.Second
	}
	if c.PingPeriod <= 0 {
		c.PingPeriod = (c.PongWait * 9) / 10
	}
	if c.WriteWait <= 0 {
		c.WriteWait = 10 * time.Second
	}
	if c.NewBackOff == nil {
		c.NewBackOff = func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = 500 * time.Millisecond
			b.MaxInterval = maxReconnectDelay
			b.MaxElapsedTime = 0
			return b
		}
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	return c
}

// LiveChannel is the single shared transport connection. Room subscriptions
// are reference counted: only the first Join and the last Leave of a room
// reach the wire, and every subscribed room is re-joined after a reconnect.
type LiveChannel struct {
	dialer    Dialer
	decorator Decorator
	cfg       LiveConfig
	logger    *slog.Logger

	mu       sync.Mutex
	state    State
	refs     map[string]int
	out      chan models.RoomEvent
	kick     context.CancelFunc
	handlers []func(Entry)
}

func NewLiveChannel(dialer Dialer, decorator Decorator, cfg LiveConfig) *LiveChannel {
	cfg = cfg.withDefaults()
	return &LiveChannel{
		dialer:    dialer,
		decorator: decorator,
		cfg:       cfg,
		logger:    cfg.Logger,
		refs:      make(map[string]int),
	}
}

// State returns the current connection state.
func (l *LiveChannel) State() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

// OnMessage registers fn for every inbound message. fn runs on the reader
// goroutine and must not block for long.
func (l *LiveChannel) OnMessage(fn func(Entry)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.handlers = append(l.handlers, fn)
}

// Join subscribes to roomID.
func (l *LiveChannel) Join(roomID string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.refs[roomID]++
	if l.refs[roomID] == 1 {
		l.enqueueControlLocked(models.RoomEvent{Type: models.EventJoinRoom, RoomID: roomID})
	}
}

// Leave drops one subscription to roomID.
func (l *LiveChannel) Leave(roomID string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.refs[roomID] == 0 {
		return
	}
	l.refs[roomID]--
	if l.refs[roomID] == 0 {
		delete(l.refs, roomID)
		l.enqueueControlLocked(models.RoomEvent{Type: models.EventLeaveRoom, RoomID: roomID})
	}
}

// Send queues msg for delivery and never blocks. It reports false when the
// frame was dropped because the channel is disconnected or saturated.
func (l *LiveChannel) Send(msg models.Message) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	ok := l.enqueueLocked(models.RoomEvent{Type: models.EventSendMessage, RoomID: msg.RoomID, Message: &msg})
	if !ok {
		l.logger.Warn("live send dropped", "room_id", msg.RoomID, "state", l.state.String())
	}
	return ok
}

// enqueueControlLocked queues a join or leave. While disconnected nothing is
// queued: the next connection replays refs. A frame dropped on a saturated
// connection drops that connection, and the reconnect resyncs from refs.
func (l *LiveChannel) enqueueControlLocked(event models.RoomEvent) {
	if l.out == nil || l.enqueueLocked(event) {
		return
	}
	l.logger.Warn("live control frame dropped, reconnecting", "type", event.Type, "room_id", event.RoomID)
	if l.kick != nil {
		l.kick()
	}
}

func (l *LiveChannel) enqueueLocked(event models.RoomEvent) bool {
	if l.out == nil {
		return false
	}
	select {
	case l.out <- event:
		return true
	default:
		return false
	}
}

// Run connects and keeps the channel connected until ctx is done.
func (l *LiveChannel) Run(ctx context.Context) error {
	b := l.cfg.NewBackOff()
	for {
		l.setState(Connecting)
		conn, err := l.dialer.Dial(ctx)
		if err != nil {
			l.setState(Disconnected)
			if ctx.Err() != nil {
				return ctx.Err()
			}
			l.logger.Warn("live dial failed", "err", err)
		} else {
			b.Reset()
			l.serve(ctx, conn)
			if ctx.Err() != nil {
				return ctx.Err()
			}
		}

		delay := b.NextBackOff()
		if delay == backoff.Stop || delay <= 0 {
			delay = maxReconnectDelay
		}
		l.logger.Info("live reconnect scheduled", "delay", delay)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
}

func (l *LiveChannel) setState(s State) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.state = s
}

// serve runs one connection until it fails or ctx is done.
func (l *LiveChannel) serve(ctx context.Context, conn Conn) {
	out := make(chan models.RoomEvent, l.cfg.QueueSize)
	connCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	l.mu.Lock()
	rooms := make([]string, 0, len(l.refs))
	for roomID := range l.refs {
		rooms = append(rooms, roomID)
	}
	l.out = out
	l.kick = cancel
	l.state = Connected
	l.mu.Unlock()
	sort.Strings(rooms)

	defer func() {
		l.mu.Lock()
		if l.out == out {
			l.out = nil
			l.kick = nil
		}
		l.state = Disconnected
		l.mu.Unlock()
		conn.Close()
		l.logger.Info("live disconnected")
	}()

	// Rejoin before the writer starts so queued frames follow the joins.
	for _, roomID := range rooms {
		_ = conn.SetWriteDeadline(time.Now().Add(l.cfg.WriteWait))
		if err := conn.WriteJSON(models.RoomEvent{Type: models.EventJoinRoom, RoomID: roomID}); err != nil {
			l.logger.Warn("live rejoin failed", "room_id", roomID, "err", err)
			return
		}
	}
	l.logger.Info("live connected", "rooms", len(rooms))

	stop := context.AfterFunc(connCtx, func() { conn.Close() })
	defer stop()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		l.writeLoop(connCtx, conn, out)
		conn.Close()
	}()

	l.readLoop(ctx, conn)
	cancel()
	wg.Wait()
}

func (l *LiveChannel) writeLoop(ctx context.Context, conn Conn, out <-chan models.RoomEvent) {
	ticker := time.NewTicker(l.cfg.PingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case event := <-out:
			_ = conn.SetWriteDeadline(time.Now().Add(l.cfg.WriteWait))
			if err := conn.WriteJSON(event); err != nil {
				l.logger.Warn("live write failed", "type", event.Type, "room_id", event.RoomID, "err", err)
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(l.cfg.WriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				l.logger.Warn("live ping failed", "err", err)
				return
			}
		}
	}
}

func (l *LiveChannel) readLoop(ctx context.Context, conn Conn) {
	_ = conn.SetReadDeadline(time.Now().Add(l.cfg.PongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(l.cfg.PongWait))
	})

	for {
		var event models.RoomEvent
		if err := conn.ReadJSON(&event); err != nil {
			if ctx.Err() == nil && !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				l.logger.Warn("live read failed", "err", err)
			}
			return
		}
		l.handleEvent(ctx, event)
	}
}

func (l *LiveChannel) handleEvent(ctx context.Context, event models.RoomEvent) {
	switch event.Type {
	case models.EventReceiveMessage:
		if event.Message == nil {
			l.logger.Warn("live message without payload", "room_id", event.RoomID)
			return
		}
		msg := *event.Message
		if msg.RoomID == "" {
			msg.RoomID = event.RoomID
		}
		entry := l.decorator.Decorate(ctx, msg)

		l.mu.Lock()
		handlers := make([]func(Entry), len(l.handlers))
		copy(handlers, l.handlers)
		l.mu.Unlock()
		for _, fn := range handlers {
			fn(entry)
		}
	case models.EventError:
		l.logger.Warn("live server error", "room_id", event.RoomID, "error", event.Error)
	default:
		l.logger.Debug("live event ignored", "type", event.Type)
	}
}
