package chatclient

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"journey-chat/internal/models"
)

const (
	// DefaultAvatarURL is shown for authors without a photo.
	DefaultAvatarURL = "https://cdn-icons-png.flaticon.com/512/149/149071.png"
	// UnknownUserName is shown when an author cannot be resolved.
	UnknownUserName = "unknown user"

	profileFetchTimeout = 5 * time.Second
)

// ProfileSource loads user profiles. *APIClient implements it.
type ProfileSource interface {
	Profile(ctx context.Context, userID int) (models.Profile, error)
}

// Directory resolves author display data and caches it for the session.
// Users without a profile are cached as the placeholder; other failed lookups
// are not cached, so a later call retries.
type Directory struct {
	profiles ProfileSource
	logger   *slog.Logger

	mu    sync.RWMutex
	cache map[int]Display
	group singleflight.Group
}

func NewDirectory(profiles ProfileSource, logger *slog.Logger) *Directory {
	if logger == nil {
		logger = slog.Default()
	}
	return &Directory{
		profiles: profiles,
		logger:   logger,
		cache:    make(map[int]Display),
	}
}

// Placeholder is the display used when nothing is known about an author.
func Placeholder() Display {
	return Display{Name: UnknownUserName, AvatarURL: DefaultAvatarURL}
}

// Prime stores display data learned elsewhere, such as an embedded author.
func (d *Directory) Prime(userID int, display Display) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.cache[userID] = normalizeDisplay(display)
}

// ResolveDisplay returns the cached display of userID, fetching it on a miss.
// It never fails: unresolvable users get the placeholder.
func (d *Directory) ResolveDisplay(ctx context.Context, userID int) Display {
	d.mu.RLock()
	display, ok := d.cache[userID]
	d.mu.RUnlock()
	if ok {
		return display
	}

	v, err, _ := d.group.Do(strconv.Itoa(userID), func() (any, error) {
		// Shared by every waiter, so one caller's cancellation must not fail the rest.
		fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), profileFetchTimeout)
		defer cancel()

		var display Display
		profile, err := d.profiles.Profile(fetchCtx, userID)
		switch {
		case errors.Is(err, ErrNotFound):
			d.logger.Debug("author has no profile", "user_id", userID)
			display = Placeholder()
		case err != nil:
			return nil, err
		default:
			display = normalizeDisplay(Display{Name: profile.DisplayName, AvatarURL: profile.AvatarURL})
		}
		d.mu.Lock()
		d.cache[userID] = display
		d.mu.Unlock()
		return display, nil
	})
	if err != nil {
		d.logger.Warn("resolve author failed", "user_id", userID, "err", err)
		return Placeholder()
	}
	return v.(Display)
}

// Decorate turns a wire message into a timeline entry. The author comes from
// the embedded author data, then the directory, then the placeholder.
func (d *Directory) Decorate(ctx context.Context, msg models.Message) Entry {
	if msg.Author != nil && msg.Author.DisplayName != "" {
		display := Display{Name: msg.Author.DisplayName, AvatarURL: msg.Author.AvatarURL}
		d.Prime(msg.AuthorID, display)
		return Entry{Message: msg, Display: normalizeDisplay(display)}
	}
	return Entry{Message: msg, Display: d.ResolveDisplay(ctx, msg.AuthorID)}
}

func normalizeDisplay(display Display) Display {
	if display.Name == "" {
		display.Name = UnknownUserName
	}
	if display.AvatarURL == "" {
		display.AvatarURL = DefaultAvatarURL
	}
	return display
}
