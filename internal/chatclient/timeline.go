package chatclient

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"journey-chat/internal/models"
	"journey-chat/internal/validation"
)

const (
	// MaxBodyLength is the longest accepted message body, in characters.
	MaxBodyLength = 2000
	// maxBufferedEvents bounds live events held back while history loads.
	maxBufferedEvents     = 1000
	defaultConfirmTimeout = 10 * time.Second
)

// Channel is the live transport as seen by a Timeline. *LiveChannel implements it.
type Channel interface {
	Join(roomID string)
	Leave(roomID string)
	Send(msg models.Message) bool
	OnMessage(fn func(Entry))
}

// HistorySource loads a room backlog. *HistoryLoader implements it.
type HistorySource interface {
	LoadHistory(ctx context.Context, roomID string) ([]Entry, error)
}

// Displayer resolves author display data. *Directory implements it.
type Displayer interface {
	ResolveDisplay(ctx context.Context, userID int) Display
}

// TimelineConfig tunes a Timeline. Zero values pick defaults.
type TimelineConfig struct {
	// ConfirmTimeout is how long a sent message may stay unconfirmed before
	// it is marked failed.
	ConfirmTimeout time.Duration
	// ConfirmWindow bounds the send time distance for matching an echo that
	// carries no client nonce. Defaults to ConfirmTimeout.
	ConfirmWindow time.Duration
	Logger        *slog.Logger
	Now           func() time.Time
}

// Timeline merges the history and live messages of the active room into one
// deduplicated list ordered by send time.
type Timeline struct {
	live      Channel
	history   HistorySource
	directory Displayer
	sessions  *SessionStore
	validator *validation.Validator
	cfg       TimelineConfig
	logger    *slog.Logger

	mu        sync.Mutex
	room      string
	epoch     uint64
	seeded    bool
	entries   []Entry
	keys      map[DedupKey]struct{}
	buffer    []Entry
	nextSeq   uint64
	listeners []func([]Entry)
}

func NewTimeline(live Channel, history HistorySource, directory Displayer, sessions *SessionStore, cfg TimelineConfig) *Timeline {
	if cfg.ConfirmTimeout <= 0 {
		cfg.ConfirmTimeout = defaultConfirmTimeout
	}
	if cfg.ConfirmWindow <= 0 {
		cfg.ConfirmWindow = cfg.ConfirmTimeout
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	t := &Timeline{
		live:      live,
		history:   history,
		directory: directory,
		sessions:  sessions,
		validator: validation.New(),
		cfg:       cfg,
		logger:    cfg.Logger,
		keys:      make(map[DedupKey]struct{}),
	}
	live.OnMessage(t.handleLive)
	return t
}

// OnChange registers fn to receive a snapshot after every change.
func (t *Timeline) OnChange(fn func([]Entry)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.listeners = append(t.listeners, fn)
}

// ActiveRoom returns the current room id, or "" when none is set.
func (t *Timeline) ActiveRoom() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.room
}

// Entries returns a snapshot of the timeline.
func (t *Timeline) Entries() []Entry {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.snapshotLocked()
}

// SetActiveRoom switches the timeline to roomID and loads its history.
// Results of a load superseded by another switch are discarded. On error the
// timeline stays empty, keeps collecting live events and Reload may retry.
func (t *Timeline) SetActiveRoom(ctx context.Context, roomID string) error {
	if roomID == "" {
		return &ValidationError{Field: "room_id", Reason: "room id is required"}
	}
	if _, ok := t.sessions.Get(); !ok {
		return ErrNoSession
	}

	t.mu.Lock()
	previous := t.room
	t.room = roomID
	t.epoch++
	epoch := t.epoch
	t.seeded = false
	t.entries = nil
	t.keys = make(map[DedupKey]struct{})
	t.buffer = nil
	snapshot, listeners := t.snapshotLocked(), t.listenersLocked()
	t.mu.Unlock()

	if previous != roomID {
		if previous != "" {
			t.live.Leave(previous)
		}
		t.live.Join(roomID)
	}
	notify(listeners, snapshot)

	return t.load(ctx, roomID, epoch)
}

// Reload retries the history load of the active room.
func (t *Timeline) Reload(ctx context.Context) error {
	t.mu.Lock()
	roomID, epoch := t.room, t.epoch
	t.mu.Unlock()
	if roomID == "" {
		return ErrNoActiveRoom
	}
	return t.load(ctx, roomID, epoch)
}

func (t *Timeline) load(ctx context.Context, roomID string, epoch uint64) error {
	entries, err := t.history.LoadHistory(ctx, roomID)

	t.mu.Lock()
	if t.epoch != epoch {
		t.mu.Unlock()
		t.logger.Debug("stale history discarded", "room_id", roomID)
		return nil
	}
	if err != nil {
		t.mu.Unlock()
		t.logger.Warn("history load failed", "room_id", roomID, "transient", IsTransient(err), "err", err)
		return err
	}
	for _, entry := range entries {
		t.insertLocked(entry)
	}
	for _, entry := range t.buffer {
		t.insertLocked(entry)
	}
	t.buffer = nil
	t.seeded = true
	snapshot, listeners := t.snapshotLocked(), t.listenersLocked()
	t.mu.Unlock()

	notify(listeners, snapshot)
	return nil
}

// SendMessage validates body, shows it immediately as pending and hands it to
// the live channel. The entry is confirmed when the transport echoes it, or
// marked failed after the confirm timeout.
func (t *Timeline) SendMessage(ctx context.Context, body string) (Entry, error) {
	body = strings.TrimSpace(body)
	if err := t.validator.Validate("body", body, fmt.Sprintf("required,max=%d", MaxBodyLength)); err != nil {
		return Entry{}, &ValidationError{Field: "body", Reason: bodyReason(err)}
	}
	session, ok := t.sessions.Get()
	if !ok {
		return Entry{}, ErrNoSession
	}
	t.mu.Lock()
	roomID := t.room
	t.mu.Unlock()
	if roomID == "" {
		return Entry{}, ErrNoActiveRoom
	}

	display := t.directory.ResolveDisplay(ctx, session.UserID)
	msg := models.Message{
		RoomID:      roomID,
		AuthorID:    session.UserID,
		Body:        body,
		ClientNonce: uuid.NewString(),
		SentAt:      t.cfg.Now().UTC(),
	}
	entry := Entry{Message: msg, Display: display, Pending: true}

	t.mu.Lock()
	if t.room != roomID {
		t.mu.Unlock()
		return Entry{}, ErrNoActiveRoom
	}
	if _, dup := t.keys[entry.Key()]; dup {
		t.mu.Unlock()
		return Entry{}, &ValidationError{Field: "body", Reason: "duplicate message"}
	}
	epoch := t.epoch
	t.insertLocked(entry)
	snapshot, listeners := t.snapshotLocked(), t.listenersLocked()
	t.mu.Unlock()
	notify(listeners, snapshot)

	if !t.live.Send(msg) {
		t.logger.Info("message left pending, transport unavailable", "room_id", roomID, "nonce", msg.ClientNonce)
	}
	time.AfterFunc(t.cfg.ConfirmTimeout, func() {
		t.expire(epoch, msg.ClientNonce)
	})
	return entry, nil
}

func bodyReason(err error) string {
	var verrs validation.Errors
	if errors.As(err, &verrs) && len(verrs) > 0 && verrs[0].Tag == "max" {
		return fmt.Sprintf("must be at most %d characters", MaxBodyLength)
	}
	return "must not be empty"
}

func (t *Timeline) expire(epoch uint64, nonce string) {
	t.mu.Lock()
	if t.epoch != epoch {
		t.mu.Unlock()
		return
	}
	i := t.pendingByNonceLocked(nonce)
	if i < 0 || t.entries[i].Failed {
		t.mu.Unlock()
		return
	}
	t.logger.Warn("message not confirmed", "nonce", nonce)
	t.entries[i].Failed = true
	snapshot, listeners := t.snapshotLocked(), t.listenersLocked()
	t.mu.Unlock()

	notify(listeners, snapshot)
}

func (t *Timeline) handleLive(entry Entry) {
	t.mu.Lock()
	if entry.RoomID != t.room {
		t.mu.Unlock()
		return
	}
	if !t.seeded {
		if len(t.buffer) >= maxBufferedEvents {
			t.buffer = t.buffer[1:]
			t.logger.Warn("live buffer full, oldest event dropped", "room_id", entry.RoomID)
		}
		t.buffer = append(t.buffer, entry)
		t.mu.Unlock()
		return
	}
	if !t.insertLocked(entry) {
		t.mu.Unlock()
		return
	}
	snapshot, listeners := t.snapshotLocked(), t.listenersLocked()
	t.mu.Unlock()
	notify(listeners, snapshot)
}

// insertLocked adds entry unless its key is present, confirming a matching
// pending entry instead of adding a second copy. It reports whether the
// timeline changed.
func (t *Timeline) insertLocked(entry Entry) bool {
	if !entry.Pending {
		if entry.ClientNonce != "" {
			if i := t.pendingByNonceLocked(entry.ClientNonce); i >= 0 {
				t.confirmLocked(i, entry)
				return true
			}
		}
		if _, dup := t.keys[entry.Key()]; dup {
			// An echo within the same second shares the pending entry's key.
			if i := t.indexByKeyLocked(entry.Key()); i >= 0 && t.entries[i].Pending {
				t.confirmLocked(i, entry)
				return true
			}
			return false
		}
		if i := t.pendingByContentLocked(entry); i >= 0 {
			t.confirmLocked(i, entry)
			return true
		}
	} else if _, dup := t.keys[entry.Key()]; dup {
		return false
	}

	entry.seq = t.nextSeq
	t.nextSeq++
	t.placeLocked(entry)
	return true
}

// confirmLocked replaces the pending entry at i with the server copy and
// moves it to the server's send time.
func (t *Timeline) confirmLocked(i int, confirmed Entry) {
	pending := t.entries[i]
	t.entries = append(t.entries[:i], t.entries[i+1:]...)
	delete(t.keys, pending.Key())

	confirmed.seq = pending.seq
	confirmed.Pending = false
	confirmed.Failed = false
	if _, dup := t.keys[confirmed.Key()]; dup {
		return
	}
	t.placeLocked(confirmed)
}

func (t *Timeline) placeLocked(entry Entry) {
	i := sort.Search(len(t.entries), func(i int) bool {
		return before(entry, t.entries[i])
	})
	t.entries = append(t.entries, Entry{})
	copy(t.entries[i+1:], t.entries[i:])
	t.entries[i] = entry
	t.keys[entry.Key()] = struct{}{}
}

func (t *Timeline) pendingByNonceLocked(nonce string) int {
	for i, e := range t.entries {
		if e.Pending && e.ClientNonce == nonce {
			return i
		}
	}
	return -1
}

func (t *Timeline) indexByKeyLocked(key DedupKey) int {
	for i, e := range t.entries {
		if e.Key() == key {
			return i
		}
	}
	return -1
}

func (t *Timeline) pendingByContentLocked(entry Entry) int {
	for i, e := range t.entries {
		if !e.Pending || e.AuthorID != entry.AuthorID || e.Body != entry.Body {
			continue
		}
		gap := entry.SentAt.Sub(e.SentAt)
		if gap < 0 {
			gap = -gap
		}
		if gap <= t.cfg.ConfirmWindow {
			return i
		}
	}
	return -1
}

func (t *Timeline) snapshotLocked() []Entry {
	out := make([]Entry, len(t.entries))
	copy(out, t.entries)
	return out
}

func (t *Timeline) listenersLocked() []func([]Entry) {
	out := make([]func([]Entry), len(t.listeners))
	copy(out, t.listeners)
	return out
}

func notify(listeners []func([]Entry), snapshot []Entry) {
	for _, fn := range listeners {
		fn(snapshot)
	}
}
