package repositories

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"

	"journey-chat/internal/models"
)

var ErrProfileNotFound = errors.New("profile not found")

// ProfileRepository abstracts profile persistence.
type ProfileRepository interface {
	GetProfile(ctx context.Context, userID int) (models.Profile, error)
	UpsertProfile(ctx context.Context, profile models.Profile) error
}

// ProfileRepo is a sqlx implementation of ProfileRepository.
type ProfileRepo struct {
	db *sqlx.DB
}

// NewProfileRepo constructs a ProfileRepo.
func NewProfileRepo(db *sqlx.DB) *ProfileRepo {
	return &ProfileRepo{db: db}
}

// GetProfile fetches a profile by user id.
func (r *ProfileRepo) GetProfile(ctx context.Context, userID int) (models.Profile, error) {
	var profile models.Profile
	err := r.db.GetContext(ctx, &profile, `SELECT user_id, display_name, avatar_url FROM profiles WHERE user_id=$1`, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Profile{}, ErrProfileNotFound
	}
	return profile, err
}

// UpsertProfile creates or replaces a profile.
func (r *ProfileRepo) UpsertProfile(ctx context.Context, profile models.Profile) error {
	_, err := r.db.ExecContext(ctx, `INSERT INTO profiles (user_id, display_name, avatar_url) VALUES ($1, $2, $3)
        ON CONFLICT (user_id) DO UPDATE SET display_name = EXCLUDED.display_name, avatar_url = EXCLUDED.avatar_url`,
		profile.UserID, profile.DisplayName, profile.AvatarURL)
	return err
}
