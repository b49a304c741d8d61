package repositories

import (
	"context"
	"database/sql"

	"github.com/jmoiron/sqlx"

	"journey-chat/internal/models"
)

// MessageRepository defines interactions for room messages.
type MessageRepository interface {
	CreateMessage(ctx context.Context, msg models.Message) (models.Message, error)
	ListRoomMessages(ctx context.Context, roomID string) ([]models.Message, error)
}

// MessageRepo is a sqlx-backed repository.
type MessageRepo struct {
	db *sqlx.DB
}

// NewMessageRepo constructs MessageRepo.
func NewMessageRepo(db *sqlx.DB) *MessageRepo {
	return &MessageRepo{db: db}
}

// CreateMessage stores a message. sent_at is assigned by the database.
func (r *MessageRepo) CreateMessage(ctx context.Context, msg models.Message) (models.Message, error) {
	var out models.Message
	err := r.db.QueryRowxContext(ctx, `INSERT INTO messages (room_id, author_id, body, client_nonce) VALUES ($1, $2, $3, $4)
        RETURNING id, room_id, author_id, body, client_nonce, sent_at`, msg.RoomID, msg.AuthorID, msg.Body, msg.ClientNonce).
		Scan(&out.ID, &out.RoomID, &out.AuthorID, &out.Body, &out.ClientNonce, &out.SentAt)
	return out, err
}

type messageRow struct {
	models.Message
	DisplayName sql.NullString `db:"display_name"`
	AvatarURL   sql.NullString `db:"avatar_url"`
}

// ListRoomMessages returns messages oldest first with author metadata embedded
// when the author has a profile.
func (r *MessageRepo) ListRoomMessages(ctx context.Context, roomID string) ([]models.Message, error) {
	query := `SELECT m.id, m.room_id, m.author_id, m.body, m.client_nonce, m.sent_at, p.display_name, p.avatar_url
        FROM messages m
        LEFT JOIN profiles p ON p.user_id = m.author_id
        WHERE m.room_id=$1
        ORDER BY m.sent_at ASC, m.id ASC`
	var rows []messageRow
	if err := r.db.SelectContext(ctx, &rows, query, roomID); err != nil {
		return nil, err
	}

	msgs := make([]models.Message, 0, len(rows))
	for _, row := range rows {
		msg := row.Message
		if row.DisplayName.Valid {
			msg.Author = &models.Author{DisplayName: row.DisplayName.String, AvatarURL: row.AvatarURL.String}
		}
		msgs = append(msgs, msg)
	}
	return msgs, nil
}
