// Package vault manages a user's watched list and watchlist: validated writes
// through Service and a live, read-only View kept current by Mirror.
package vault

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/Clark-Hu/watchvault/internal/domain"
	"github.com/Clark-Hu/watchvault/internal/repository"
)

var (
	// ErrLoginRequired is returned for vault operations without a user.
	ErrLoginRequired = errors.New("vault: sign in to manage your lists")
	// ErrInvalidItem is returned when an item lacks a positive id.
	ErrInvalidItem = errors.New("vault: item id must be positive")
)

// Store is the persistence the vault needs. *repository.VaultRepository
// satisfies it.
type Store interface {
	Subscriber
	Upsert(ctx context.Context, userID string, entry domain.VaultEntry) (domain.VaultEntry, bool, error)
	Delete(ctx context.Context, userID, key string) error
	Get(ctx context.Context, userID, key string) (domain.VaultEntry, error)
	List(ctx context.Context, userID string) ([]domain.VaultEntry, error)
	Page(ctx context.Context, userID string, filters repository.EntryListFilters) (repository.EntryPage, error)
	Counts(ctx context.Context, userID string) (repository.StatusCounts, error)
}

// Subscriber streams full vault snapshots of one user.
type Subscriber interface {
	Subscribe(ctx context.Context, userID string) (<-chan domain.VaultSnapshot, error)
}

var _ Store = (*repository.VaultRepository)(nil)

// Service validates and applies vault changes.
type Service struct {
	store  Store
	logger *log.Logger
	now    func() time.Time
}

// NewService constructs a Service over store.
func NewService(store Store, logger *log.Logger) *Service {
	if logger == nil {
		logger = log.Default()
	}
	return &Service{store: store, logger: logger, now: time.Now}
}

// AddToStatus records item under status, replacing any earlier entry for the
// same title. The entry's addedAt is reset to now on every write.
func (s *Service) AddToStatus(ctx context.Context, userID string, item domain.MediaItem, status domain.Status) (domain.VaultEntry, bool, error) {
	userID, err := requireUser(userID)
	if err != nil {
		return domain.VaultEntry{}, false, err
	}
	kind, err := domain.ParseKind(string(item.Kind))
	if err != nil {
		return domain.VaultEntry{}, false, err
	}
	status, err = domain.ParseStatus(string(status))
	if err != nil {
		return domain.VaultEntry{}, false, err
	}
	if item.ID <= 0 {
		return domain.VaultEntry{}, false, ErrInvalidItem
	}

	item.Kind = kind
	stored := item
	entry := domain.VaultEntry{
		Key:         domain.EntryKey(kind, item.ID),
		TMDBID:      item.ID,
		Kind:        kind,
		Title:       item.DisplayTitle(),
		PosterPath:  item.PosterPath,
		VoteAverage: item.VoteAverage,
		Status:      status,
		AddedAt:     s.now().UTC().Truncate(time.Microsecond),
		Item:        &stored,
	}

	saved, inserted, err := s.store.Upsert(ctx, userID, entry)
	if err != nil {
		return domain.VaultEntry{}, false, fmt.Errorf("add %s to %s: %w", entry.Key, status, err)
	}
	s.logger.Printf("vault: user=%s key=%s status=%s inserted=%t", userID, entry.Key, status, inserted)
	return saved, inserted, nil
}

// Remove deletes the entry for kind/id. repository.ErrNotFound is returned
// when nothing was stored.
func (s *Service) Remove(ctx context.Context, userID string, kind domain.Kind, id int64) error {
	userID, err := requireUser(userID)
	if err != nil {
		return err
	}
	key := domain.EntryKey(kind, id)
	if err := s.store.Delete(ctx, userID, key); err != nil {
		return fmt.Errorf("remove %s: %w", key, err)
	}
	s.logger.Printf("vault: user=%s key=%s removed", userID, key)
	return nil
}

// Status reports which list holds kind/id. The boolean is false when the
// title is in neither.
func (s *Service) Status(ctx context.Context, userID string, kind domain.Kind, id int64) (domain.Status, bool, error) {
	userID, err := requireUser(userID)
	if err != nil {
		return "", false, err
	}
	entry, err := s.store.Get(ctx, userID, domain.EntryKey(kind, id))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return "", false, nil
		}
		return "", false, err
	}
	return entry.Status, true, nil
}

// Lists returns the user's watched list and watchlist, newest first.
func (s *Service) Lists(ctx context.Context, userID string) (*View, error) {
	userID, err := requireUser(userID)
	if err != nil {
		return nil, err
	}
	entries, err := s.store.List(ctx, userID)
	if err != nil {
		return nil, err
	}
	return NewView(entries, s.now().UTC()), nil
}

// History pages through the user's entries, optionally narrowed by status.
func (s *Service) History(ctx context.Context, userID string, filters repository.EntryListFilters) (repository.EntryPage, error) {
	userID, err := requireUser(userID)
	if err != nil {
		return repository.EntryPage{}, err
	}
	return s.store.Page(ctx, userID, filters)
}

// Counts reports the size of each list.
func (s *Service) Counts(ctx context.Context, userID string) (repository.StatusCounts, error) {
	userID, err := requireUser(userID)
	if err != nil {
		return repository.StatusCounts{}, err
	}
	return s.store.Counts(ctx, userID)
}

// Mirror returns a Mirror of the user's vault fed by the service's store.
func (s *Service) Mirror(userID string) *Mirror {
	return NewMirror(s.store, userID, s.logger)
}

func requireUser(userID string) (string, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return "", ErrLoginRequired
	}
	return userID, nil
}
