package domain

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ErrInvalidStatus is returned for statuses other than watched/watchlist.
var ErrInvalidStatus = errors.New("domain: invalid vault status")

// Status is the list a vault entry belongs to.
type Status string

const (
	StatusWatched   Status = "watched"
	StatusWatchlist Status = "watchlist"
)

// ParseStatus validates a raw status value.
func ParseStatus(raw string) (Status, error) {
	switch Status(strings.ToLower(strings.TrimSpace(raw))) {
	case StatusWatched:
		return StatusWatched, nil
	case StatusWatchlist:
		return StatusWatchlist, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidStatus, raw)
	}
}

// EntryKey builds the "{kind}_{id}" document key of a vault entry.
func EntryKey(kind Kind, id int64) string {
	return string(kind) + "_" + strconv.FormatInt(id, 10)
}

// VaultEntry is one title in a user's watched list or watchlist.
type VaultEntry struct {
	Key         string     `json:"id"`
	TMDBID      int64      `json:"tmdbId"`
	Kind        Kind       `json:"type"`
	Title       string     `json:"title"`
	PosterPath  *string    `json:"poster_path"`
	VoteAverage float64    `json:"vote_average"`
	Status      Status     `json:"status"`
	AddedAt     time.Time  `json:"addedAt"`
	Item        *MediaItem `json:"item,omitempty"`
}

// VaultSnapshot is the full content of a user's vault at one point in time.
type VaultSnapshot struct {
	UserID  string
	Entries []VaultEntry
	TakenAt time.Time
}
