package chatclient

import (
	"time"

	"journey-chat/internal/models"
)

// Display is the resolved presentation of a message author.
type Display struct {
	Name      string
	AvatarURL string
}

// Entry is one line of a room timeline.
type Entry struct {
	models.Message
	Display Display
	// Pending is true until the transport echoes the message back.
	Pending bool
	// Failed marks a pending entry that was not confirmed in time.
	Failed bool

	seq uint64
}

// Key returns the dedup identity of the entry.
func (e Entry) Key() DedupKey {
	return NewDedupKey(e.Message)
}

// Clock formats the send time for display. It never feeds identity.
func (e Entry) Clock() string {
	return e.SentAt.Local().Format("15:04")
}

// DedupKey identifies a message for deduplication: author, body and send time
// truncated to the second.
type DedupKey struct {
	AuthorID int
	Body     string
	Second   int64
}

func NewDedupKey(m models.Message) DedupKey {
	return DedupKey{
		AuthorID: m.AuthorID,
		Body:     m.Body,
		Second:   m.SentAt.Truncate(time.Second).Unix(),
	}
}

// before orders entries by send time, then arrival.
func before(a, b Entry) bool {
	if !a.SentAt.Equal(b.SentAt) {
		return a.SentAt.Before(b.SentAt)
	}
	return a.seq < b.seq
}
