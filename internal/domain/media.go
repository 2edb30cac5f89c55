package domain

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidKind is returned when a media kind is neither movie nor tv.
var ErrInvalidKind = errors.New("domain: invalid media kind")

// Kind discriminates the MediaItem variants.
type Kind string

const (
	KindMovie Kind = "movie"
	KindTV    Kind = "tv"
)

// ParseKind accepts "movie", "tv" and the "series" alias.
func ParseKind(raw string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "movie", "movies":
		return KindMovie, nil
	case "tv", "series":
		return KindTV, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidKind, raw)
	}
}

// WatchProvider is a streaming/rental service a title is available on.
type WatchProvider struct {
	ProviderID      int64   `json:"provider_id"`
	ProviderName    string  `json:"provider_name"`
	LogoPath        *string `json:"logo_path"`
	DisplayPriority *int    `json:"display_priority,omitempty"`
}

// RegionAvailability lists the providers of one region by offer category.
type RegionAvailability struct {
	Flatrate []WatchProvider `json:"flatrate,omitempty"`
	Ads      []WatchProvider `json:"ads,omitempty"`
	Rent     []WatchProvider `json:"rent,omitempty"`
	Buy      []WatchProvider `json:"buy,omitempty"`
}

// WatchProvidersPayload mirrors GET /{kind}/{id}/watch/providers.
type WatchProvidersPayload struct {
	ID      int64                         `json:"id"`
	Results map[string]RegionAvailability `json:"results"`
}

// MediaItem is either a movie or a series. Kind carries the variant; Title and
// ReleaseDate belong to movies, Name and FirstAirDate to series.
type MediaItem struct {
	Kind           Kind            `json:"media_type,omitempty"`
	ID             int64           `json:"id"`
	Overview       string          `json:"overview"`
	PosterPath     *string         `json:"poster_path"`
	BackdropPath   *string         `json:"backdrop_path"`
	VoteAverage    float64         `json:"vote_average"`
	Popularity     float64         `json:"popularity"`
	GenreIDs       []int           `json:"genre_ids,omitempty"`
	WatchProviders []WatchProvider `json:"watchProviders"`

	Title       *string `json:"title,omitempty"`
	ReleaseDate *string `json:"release_date,omitempty"`

	Name         *string `json:"name,omitempty"`
	FirstAirDate *string `json:"first_air_date,omitempty"`
}

// LooksLikeMovie reports whether the item can be treated as a movie: tagged
// movie, or untagged with a title field.
func (m MediaItem) LooksLikeMovie() bool {
	return (m.Kind == "" || m.Kind == KindMovie) && m.Title != nil
}

// LooksLikeSeries reports whether the item can be treated as a series: tagged
// tv, or untagged with a name field.
func (m MediaItem) LooksLikeSeries() bool {
	return (m.Kind == "" || m.Kind == KindTV) && m.Name != nil
}

// DisplayTitle returns the movie title or the series name.
func (m MediaItem) DisplayTitle() string {
	if m.Title != nil && *m.Title != "" {
		return *m.Title
	}
	if m.Name != nil {
		return *m.Name
	}
	return ""
}

// WithKind returns a copy tagged with kind and carrying providers.
func (m MediaItem) WithKind(kind Kind, providers []WatchProvider) MediaItem {
	m.Kind = kind
	m.WatchProviders = providers
	return m
}
