package httpserver

import (
	"context"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/Clark-Hu/watchvault/internal/config"
	"github.com/Clark-Hu/watchvault/internal/domain"
	"github.com/Clark-Hu/watchvault/internal/tmdb"
	"github.com/Clark-Hu/watchvault/internal/vault"
)

// fakeCatalog returns canned results, or err for every call when set.
type fakeCatalog struct {
	mu       sync.Mutex
	err      error
	items    map[domain.Kind][]domain.MediaItem
	details  map[string]domain.MediaItem
	queries  []string
	lastKind domain.Kind
}

func newFakeCatalog() *fakeCatalog {
	title, name := "Dune", "Shogun"
	return &fakeCatalog{
		items: map[domain.Kind][]domain.MediaItem{
			domain.KindMovie: {{Kind: domain.KindMovie, ID: 438631, Title: &title, WatchProviders: []domain.WatchProvider{}}},
			domain.KindTV:    {{Kind: domain.KindTV, ID: 126308, Name: &name, WatchProviders: []domain.WatchProvider{}}},
		},
		details: map[string]domain.MediaItem{
			"movie_438631": {Kind: domain.KindMovie, ID: 438631, Title: &title, VoteAverage: 7.8, WatchProviders: []domain.WatchProvider{}},
		},
	}
}

func (f *fakeCatalog) list(kind domain.Kind) ([]domain.MediaItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastKind = kind
	if f.err != nil {
		return nil, f.err
	}
	return f.items[kind], nil
}

func (f *fakeCatalog) TrendingMovies(ctx context.Context) ([]domain.MediaItem, error) {
	return f.list(domain.KindMovie)
}

func (f *fakeCatalog) TrendingSeries(ctx context.Context) ([]domain.MediaItem, error) {
	return f.list(domain.KindTV)
}

func (f *fakeCatalog) Popular(ctx context.Context, kind domain.Kind) ([]domain.MediaItem, error) {
	return f.list(kind)
}

func (f *fakeCatalog) TopRated(ctx context.Context, kind domain.Kind) ([]domain.MediaItem, error) {
	return f.list(kind)
}

func (f *fakeCatalog) Providers(ctx context.Context) ([]domain.WatchProvider, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return []domain.WatchProvider{{ProviderID: 8, ProviderName: "Netflix"}}, nil
}

func (f *fakeCatalog) ByProvider(ctx context.Context, providerID int64) (tmdb.ProviderTitles, error) {
	movies, err := f.list(domain.KindMovie)
	if err != nil {
		return tmdb.ProviderTitles{}, err
	}
	series, _ := f.list(domain.KindTV)
	return tmdb.ProviderTitles{Movies: movies, Series: series}, nil
}

func (f *fakeCatalog) SearchMulti(ctx context.Context, query string) ([]domain.MediaItem, error) {
	f.mu.Lock()
	f.queries = append(f.queries, query)
	f.mu.Unlock()
	if query == "" {
		return []domain.MediaItem{}, nil
	}
	return f.list(domain.KindMovie)
}

func (f *fakeCatalog) Details(ctx context.Context, kind domain.Kind, id int64) (domain.MediaItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return domain.MediaItem{}, f.err
	}
	item, ok := f.details[domain.EntryKey(kind, id)]
	if !ok {
		return domain.MediaItem{}, tmdb.ErrUnavailable
	}
	return item, nil
}

func testConfig() config.Config {
	return config.Config{
		Port:             "0",
		AuthToken:        "secret",
		TMDBRegion:       "IN",
		SearchRatePerMin: 60,
		SearchRateBurst:  100,
		ReadTimeoutSecs:  15,
		WriteTimeoutSecs: 15,
		IdleTimeoutSecs:  60,
	}
}

func newServer(tb testing.TB, cfg config.Config, catalog tmdb.Catalog, vaultSvc *vault.Service) *Server {
	tb.Helper()
	srv := New(cfg, nil, catalog, vaultSvc, log.New(io.Discard, "", 0))
	tb.Cleanup(srv.searchLimiter.Stop)
	// Replace chi router to avoid default middleware noise.
	srv.router = chi.NewRouter()
	srv.registerRoutes()
	return srv
}

func serve(srv *Server, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) errorResponse {
	t.Helper()
	var resp errorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode error body %q: %v", rec.Body.String(), err)
	}
	return resp
}

func TestCatalogTrending(t *testing.T) {
	srv := newServer(t, testConfig(), newFakeCatalog(), nil)

	rec := serve(srv, httptest.NewRequest(http.MethodGet, "/catalog/trending/series", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var body struct {
		Results []map[string]any `json:"results"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(body.Results) != 1 || body.Results[0]["media_type"] != "tv" || body.Results[0]["name"] != "Shogun" {
		t.Fatalf("results = %+v", body.Results)
	}
	if providers, ok := body.Results[0]["watchProviders"].([]any); !ok || len(providers) != 0 {
		t.Fatalf("watchProviders = %#v, want empty array", body.Results[0]["watchProviders"])
	}
}

func TestCatalogErrorMapping(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantCode int
		wantBody string
	}{
		{"upstream", tmdb.ErrUnavailable, http.StatusBadGateway, "UPSTREAM_UNAVAILABLE"},
		{"missing key", tmdb.ErrMissingAPIKey, http.StatusInternalServerError, "CONFIG_ERROR"},
	}
	paths := []string{
		"/catalog/trending/movies",
		"/catalog/trending/series",
		"/catalog/popular/movie",
		"/catalog/top-rated/tv",
		"/catalog/providers",
		"/catalog/providers/8/titles",
		"/catalog/search?query=dune",
		"/catalog/movie/438631",
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			catalog := newFakeCatalog()
			catalog.err = tt.err
			srv := newServer(t, testConfig(), catalog, nil)

			for _, path := range paths {
				rec := serve(srv, httptest.NewRequest(http.MethodGet, path, nil))
				if rec.Code != tt.wantCode {
					t.Fatalf("%s: status = %d, want %d", path, rec.Code, tt.wantCode)
				}
				resp := decodeError(t, rec)
				if resp.Code != tt.wantBody {
					t.Fatalf("%s: code = %s, want %s", path, resp.Code, tt.wantBody)
				}
				if resp.Message != tt.err.Error() {
					t.Fatalf("%s: message = %q", path, resp.Message)
				}
			}
		})
	}
}

func TestCatalogUpstreamMessage(t *testing.T) {
	catalog := newFakeCatalog()
	catalog.err = tmdb.ErrUnavailable
	srv := newServer(t, testConfig(), catalog, nil)

	rec := serve(srv, httptest.NewRequest(http.MethodGet, "/catalog/providers", nil))
	if got := decodeError(t, rec).Message; got != "unable to communicate with the remote catalog right now" {
		t.Fatalf("message = %q", got)
	}
}

func TestCatalogKindParam(t *testing.T) {
	catalog := newFakeCatalog()
	srv := newServer(t, testConfig(), catalog, nil)

	rec := serve(srv, httptest.NewRequest(http.MethodGet, "/catalog/popular/person", nil))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}

	rec = serve(srv, httptest.NewRequest(http.MethodGet, "/catalog/top-rated/series", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if catalog.lastKind != domain.KindTV {
		t.Fatalf("kind = %s, want tv", catalog.lastKind)
	}
}

func TestCatalogProviderTitles(t *testing.T) {
	srv := newServer(t, testConfig(), newFakeCatalog(), nil)

	for _, path := range []string{"/catalog/providers/abc/titles", "/catalog/providers/0/titles"} {
		rec := serve(srv, httptest.NewRequest(http.MethodGet, path, nil))
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("%s: status = %d, want 400", path, rec.Code)
		}
	}

	rec := serve(srv, httptest.NewRequest(http.MethodGet, "/catalog/providers/8/titles", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var titles tmdb.ProviderTitles
	if err := json.Unmarshal(rec.Body.Bytes(), &titles); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(titles.Movies) != 1 || len(titles.Series) != 1 {
		t.Fatalf("titles = %+v", titles)
	}
}

func TestCatalogSearch(t *testing.T) {
	catalog := newFakeCatalog()
	srv := newServer(t, testConfig(), catalog, nil)

	rec := serve(srv, httptest.NewRequest(http.MethodGet, "/catalog/search?query=", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if got := rec.Body.String(); got != "{\"results\":[]}\n" {
		t.Fatalf("body = %q", got)
	}

	rec = serve(srv, httptest.NewRequest(http.MethodGet, "/catalog/search?q=Dune%20Part", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if last := catalog.queries[len(catalog.queries)-1]; last != "Dune Part" {
		t.Fatalf("query = %q", last)
	}
}

func TestCatalogSearchRateLimited(t *testing.T) {
	cfg := testConfig()
	cfg.SearchRatePerMin = 1
	cfg.SearchRateBurst = 2
	srv := newServer(t, cfg, newFakeCatalog(), nil)

	newReq := func(ip string) *http.Request {
		req := httptest.NewRequest(http.MethodGet, "/catalog/search?query=dune", nil)
		req.RemoteAddr = ip + ":5555"
		return req
	}

	for i := 0; i < 2; i++ {
		if rec := serve(srv, newReq("10.0.0.1")); rec.Code != http.StatusOK {
			t.Fatalf("request %d: status = %d, want 200", i, rec.Code)
		}
	}
	rec := serve(srv, newReq("10.0.0.1"))
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429", rec.Code)
	}
	if rec.Header().Get("Retry-After") != "60" {
		t.Fatalf("Retry-After = %q, want 60", rec.Header().Get("Retry-After"))
	}

	if rec := serve(srv, newReq("10.0.0.2")); rec.Code != http.StatusOK {
		t.Fatalf("other client: status = %d, want 200", rec.Code)
	}
	// only search is limited
	req := httptest.NewRequest(http.MethodGet, "/catalog/providers", nil)
	req.RemoteAddr = "10.0.0.1:5555"
	if rec := serve(srv, req); rec.Code != http.StatusOK {
		t.Fatalf("providers: status = %d, want 200", rec.Code)
	}
}

func TestCatalogDetails(t *testing.T) {
	srv := newServer(t, testConfig(), newFakeCatalog(), nil)

	for _, path := range []string{"/catalog/person/1", "/catalog/movie/abc", "/catalog/movie/-4"} {
		if rec := serve(srv, httptest.NewRequest(http.MethodGet, path, nil)); rec.Code != http.StatusBadRequest {
			t.Fatalf("%s: status = %d, want 400", path, rec.Code)
		}
	}

	rec := serve(srv, httptest.NewRequest(http.MethodGet, "/catalog/movie/438631", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var item domain.MediaItem
	if err := json.Unmarshal(rec.Body.Bytes(), &item); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if item.DisplayTitle() != "Dune" || item.Kind != domain.KindMovie {
		t.Fatalf("item = %+v", item)
	}
}

func TestHealthzWithoutStore(t *testing.T) {
	srv := newServer(t, testConfig(), newFakeCatalog(), nil)
	rec := serve(srv, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rec.Code)
	}
}
