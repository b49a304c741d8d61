package cache

import (
	"context"
	"log"
	"strconv"

	"golang.org/x/sync/singleflight"

	"journey-chat/internal/models"
	"journey-chat/internal/repositories"
)

// Store is the subset of Cache used by CachedProfiles.
type Store interface {
	Get(ctx context.Context, key string, dest any) (bool, error)
	Set(ctx context.Context, key string, value any) error
	Delete(ctx context.Context, key string) error
}

// CachedProfiles wraps a ProfileRepository with cache-aside reads.
type CachedProfiles struct {
	repo  repositories.ProfileRepository
	store Store
	group singleflight.Group
}

// NewCachedProfiles constructs CachedProfiles.
func NewCachedProfiles(repo repositories.ProfileRepository, store Store) *CachedProfiles {
	return &CachedProfiles{repo: repo, store: store}
}

func profileKey(userID int) string {
	return "profile:" + strconv.Itoa(userID)
}

// GetProfile returns the cached profile or loads it from the repository.
// Concurrent misses for the same user share one repository call.
func (p *CachedProfiles) GetProfile(ctx context.Context, userID int) (models.Profile, error) {
	key := profileKey(userID)

	var cached models.Profile
	found, err := p.store.Get(ctx, key, &cached)
	if err != nil {
		log.Printf("profile cache error user_id=%d: %v", userID, err)
	}
	if found {
		return cached, nil
	}

	val, err, _ := p.group.Do(key, func() (any, error) {
		return p.repo.GetProfile(ctx, userID)
	})
	if err != nil {
		return models.Profile{}, err
	}
	profile := val.(models.Profile)

	if err := p.store.Set(ctx, key, profile); err != nil {
		log.Printf("profile cache set failed user_id=%d: %v", userID, err)
	}
	return profile, nil
}

// UpsertProfile writes through to the repository and invalidates the entry.
func (p *CachedProfiles) UpsertProfile(ctx context.Context, profile models.Profile) error {
	if err := p.repo.UpsertProfile(ctx, profile); err != nil {
		return err
	}
	if err := p.store.Delete(ctx, profileKey(profile.UserID)); err != nil {
		log.Printf("profile cache invalidate failed user_id=%d: %v", profile.UserID, err)
	}
	return nil
}

var _ repositories.ProfileRepository = (*CachedProfiles)(nil)
