package tmdb

import (
	"context"
	"fmt"
	"strings"

	"github.com/sourcegraph/conc"
	"github.com/sourcegraph/conc/iter"
	"github.com/sourcegraph/conc/pool"

	"github.com/Clark-Hu/watchvault/internal/domain"
)

const (
	DefaultEnrichLimit  = 12
	ProviderTitlesLimit = 18
	SearchLimitPerKind  = 10
)

// ProviderTitles groups the titles available on one provider.
type ProviderTitles struct {
	Movies []domain.MediaItem `json:"movies"`
	Series []domain.MediaItem `json:"series"`
}

type listResponse[T any] struct {
	Results []T `json:"results"`
}

// TrendingMovies returns this week's trending movies with providers attached.
func (c *Client) TrendingMovies(ctx context.Context) ([]domain.MediaItem, error) {
	return c.enrichedList(ctx, "/trending/movie/week", nil, domain.KindMovie, DefaultEnrichLimit)
}

// TrendingSeries returns this week's trending series with providers attached.
func (c *Client) TrendingSeries(ctx context.Context) ([]domain.MediaItem, error) {
	return c.enrichedList(ctx, "/trending/tv/week", nil, domain.KindTV, DefaultEnrichLimit)
}

// Popular returns the currently popular titles of one kind.
func (c *Client) Popular(ctx context.Context, kind domain.Kind) ([]domain.MediaItem, error) {
	return c.enrichedList(ctx, fmt.Sprintf("/%s/popular", kind), nil, kind, DefaultEnrichLimit)
}

// TopRated returns the best rated titles of one kind.
func (c *Client) TopRated(ctx context.Context, kind domain.Kind) ([]domain.MediaItem, error) {
	return c.enrichedList(ctx, fmt.Sprintf("/%s/top_rated", kind), nil, kind, DefaultEnrichLimit)
}

func (c *Client) enrichedList(ctx context.Context, endpoint string, params Params, kind domain.Kind, limit int) ([]domain.MediaItem, error) {
	data, err := fetchJSON[listResponse[domain.MediaItem]](ctx, c, endpoint, params)
	if err != nil {
		return nil, err
	}
	return c.EnrichWithProviders(ctx, data.Results, kind, limit), nil
}

// Providers lists every provider offering movies or series in the home region.
func (c *Client) Providers(ctx context.Context) ([]domain.WatchProvider, error) {
	var movieProviders, tvProviders listResponse[domain.WatchProvider]
	params := Params{"watch_region": c.region}

	p := pool.New().WithContext(ctx).WithFirstError()
	p.Go(func(ctx context.Context) error {
		var err error
		movieProviders, err = fetchJSON[listResponse[domain.WatchProvider]](ctx, c, "/watch/providers/movie", params)
		return err
	})
	p.Go(func(ctx context.Context) error {
		var err error
		tvProviders, err = fetchJSON[listResponse[domain.WatchProvider]](ctx, c, "/watch/providers/tv", params)
		return err
	})
	if err := p.Wait(); err != nil {
		return nil, err
	}

	return MergeProviders(movieProviders.Results, tvProviders.Results), nil
}

// ByProvider discovers the most popular movies and series streaming on providerID.
func (c *Client) ByProvider(ctx context.Context, providerID int64) (ProviderTitles, error) {
	var movies, series listResponse[domain.MediaItem]
	params := Params{
		"with_watch_providers": providerID,
		"watch_region":         c.region,
		"include_adult":        "false",
		"sort_by":              "popularity.desc",
	}

	p := pool.New().WithContext(ctx).WithFirstError()
	p.Go(func(ctx context.Context) error {
		var err error
		movies, err = fetchJSON[listResponse[domain.MediaItem]](ctx, c, "/discover/movie", params)
		return err
	})
	p.Go(func(ctx context.Context) error {
		var err error
		series, err = fetchJSON[listResponse[domain.MediaItem]](ctx, c, "/discover/tv", params)
		return err
	})
	if err := p.Wait(); err != nil {
		return ProviderTitles{}, err
	}

	var result ProviderTitles
	var wg conc.WaitGroup
	wg.Go(func() {
		result.Movies = c.EnrichWithProviders(ctx, movies.Results, domain.KindMovie, ProviderTitlesLimit)
	})
	wg.Go(func() {
		result.Series = c.EnrichWithProviders(ctx, series.Results, domain.KindTV, ProviderTitlesLimit)
	})
	wg.Wait()
	return result, nil
}

// SearchMulti searches movies and series. A blank query returns an empty list
// without contacting the catalog; people and other result kinds are dropped.
func (c *Client) SearchMulti(ctx context.Context, query string) ([]domain.MediaItem, error) {
	normalized := strings.ToLower(strings.TrimSpace(query))
	if normalized == "" {
		return []domain.MediaItem{}, nil
	}

	data, err := fetchJSON[listResponse[domain.MediaItem]](ctx, c, "/search/multi", Params{
		"query":         normalized,
		"include_adult": "false",
	})
	if err != nil {
		return nil, err
	}

	filtered := make([]domain.MediaItem, 0, len(data.Results))
	for _, item := range data.Results {
		if item.Kind == domain.KindMovie || item.Kind == domain.KindTV {
			filtered = append(filtered, item)
		}
	}
	return c.EnrichMixedMedia(ctx, filtered, SearchLimitPerKind), nil
}

// Details fetches a single title and attaches its providers.
func (c *Client) Details(ctx context.Context, kind domain.Kind, id int64) (domain.MediaItem, error) {
	item, err := fetchJSON[domain.MediaItem](ctx, c, fmt.Sprintf("/%s/%d", kind, id), nil)
	if err != nil {
		return domain.MediaItem{}, err
	}
	return c.EnrichWithProviders(ctx, []domain.MediaItem{item}, kind, 1)[0], nil
}

// EnrichWithProviders keeps the first limit items, tags them with kind and
// attaches their normalized providers. Lookups run concurrently; a failed
// lookup leaves that item with an empty provider list.
func (c *Client) EnrichWithProviders(ctx context.Context, items []domain.MediaItem, kind domain.Kind, limit int) []domain.MediaItem {
	if limit < 0 {
		limit = 0
	}
	if len(items) > limit {
		items = items[:limit]
	}
	if len(items) == 0 {
		return []domain.MediaItem{}
	}

	mapper := iter.Mapper[domain.MediaItem, domain.MediaItem]{MaxGoroutines: len(items)}
	return mapper.Map(items, func(item *domain.MediaItem) domain.MediaItem {
		endpoint := fmt.Sprintf("/%s/%d/watch/providers", kind, item.ID)
		payload, err := fetchJSON[domain.WatchProvidersPayload](ctx, c, endpoint, nil)
		if err != nil {
			return item.WithKind(kind, []domain.WatchProvider{})
		}
		return item.WithKind(kind, ExtractWatchProviders(&payload, c.region))
	})
}

// EnrichMixedMedia splits items into movies and series, enriches both groups
// concurrently and returns all movies followed by all series. Untagged items
// are classified by the presence of a title (movie) or name (series) field.
func (c *Client) EnrichMixedMedia(ctx context.Context, items []domain.MediaItem, limitPerKind int) []domain.MediaItem {
	var movies, series []domain.MediaItem
	for _, item := range items {
		if item.LooksLikeMovie() {
			movies = append(movies, item)
		}
		if item.LooksLikeSeries() {
			series = append(series, item)
		}
	}

	var movieResults, seriesResults []domain.MediaItem
	var wg conc.WaitGroup
	wg.Go(func() {
		movieResults = c.EnrichWithProviders(ctx, movies, domain.KindMovie, limitPerKind)
	})
	wg.Go(func() {
		seriesResults = c.EnrichWithProviders(ctx, series, domain.KindTV, limitPerKind)
	})
	wg.Wait()

	results := make([]domain.MediaItem, 0, len(movieResults)+len(seriesResults))
	results = append(results, movieResults...)
	return append(results, seriesResults...)
}
