package repositories

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"journey-chat/internal/models"
)

var (
	ErrRoomNotFound = errors.New("room not found")
	ErrSelfRoom     = errors.New("cannot create a private room with self")
)

// RoomRepository abstracts room persistence.
type RoomRepository interface {
	ResolvePrivate(ctx context.Context, userID int, otherID int) (models.Room, bool, error)
	GetRoom(ctx context.Context, roomID string) (models.Room, error)
	IsParticipant(ctx context.Context, roomID string, userID int) (bool, error)
}

// RoomRepo is a sqlx implementation of RoomRepository.
type RoomRepo struct {
	db *sqlx.DB
}

// NewRoomRepo constructs a RoomRepo.
func NewRoomRepo(db *sqlx.DB) *RoomRepo {
	return &RoomRepo{db: db}
}

// OrderedPair returns the two ids lowest first.
func OrderedPair(a, b int) (int, int) {
	if a > b {
		return b, a
	}
	return a, b
}

// ResolvePrivate returns the private room of an unordered pair, creating it
// when absent. The boolean reports whether this call created the room.
// Concurrent creations collapse on the (user_low, user_high) unique key and
// every caller reads back the first committed id.
func (r *RoomRepo) ResolvePrivate(ctx context.Context, userID int, otherID int) (models.Room, bool, error) {
	if userID == otherID {
		return models.Room{}, false, ErrSelfRoom
	}
	low, high := OrderedPair(userID, otherID)

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return models.Room{}, false, err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	res, err := tx.ExecContext(ctx, `INSERT INTO rooms (id, kind, user_low, user_high) VALUES ($1, $2, $3, $4)
        ON CONFLICT (user_low, user_high) DO NOTHING`, uuid.NewString(), models.RoomPrivate, low, high)
	if err != nil {
		return models.Room{}, false, err
	}
	inserted, err := res.RowsAffected()
	if err != nil {
		return models.Room{}, false, err
	}
	created := inserted == 1

	var room models.Room
	if err = tx.GetContext(ctx, &room, `SELECT id, kind, created_at FROM rooms WHERE user_low=$1 AND user_high=$2`, low, high); err != nil {
		return models.Room{}, false, err
	}

	if created {
		for _, id := range []int{low, high} {
			if _, err = tx.ExecContext(ctx, `INSERT INTO room_participants (room_id, user_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`, room.ID, id); err != nil {
				return models.Room{}, false, err
			}
		}
	}

	if err = tx.Commit(); err != nil {
		return models.Room{}, false, err
	}
	room.Participants = []int{low, high}
	return room, created, nil
}

// GetRoom fetches a room with its participants.
func (r *RoomRepo) GetRoom(ctx context.Context, roomID string) (models.Room, error) {
	var room models.Room
	err := r.db.GetContext(ctx, &room, `SELECT id, kind, created_at FROM rooms WHERE id=$1`, roomID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Room{}, ErrRoomNotFound
	}
	if err != nil {
		return models.Room{}, err
	}

	if err := r.db.SelectContext(ctx, &room.Participants, `SELECT user_id FROM room_participants WHERE room_id=$1 ORDER BY user_id`, roomID); err != nil {
		return models.Room{}, err
	}
	return room, nil
}

// IsParticipant checks whether a user belongs to the room.
func (r *RoomRepo) IsParticipant(ctx context.Context, roomID string, userID int) (bool, error) {
	var exists bool
	err := r.db.GetContext(ctx, &exists, `SELECT EXISTS(SELECT 1 FROM room_participants WHERE room_id=$1 AND user_id=$2)`, roomID, userID)
	return exists, err
}
