package tmdb

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/Clark-Hu/watchvault/internal/domain"
)

const (
	DefaultBaseURL        = "https://api.themoviedb.org/3"
	DefaultRegion         = "IN"
	DefaultMaxRetries     = 2
	DefaultTimeout        = 8 * time.Second
	DefaultRetryBaseDelay = 250 * time.Millisecond
)

var (
	// ErrUnavailable is the only error surfaced for failed catalog requests.
	// Diagnostic detail is logged, never returned.
	ErrUnavailable = errors.New("unable to communicate with the remote catalog right now")

	// ErrMissingAPIKey is returned by every call when no credential is configured.
	ErrMissingAPIKey = errors.New("TMDB_API_KEY is missing; set it in the environment or .env.local to use the catalog")
)

// Catalog is the read-only query surface offered to the HTTP layer.
type Catalog interface {
	TrendingMovies(ctx context.Context) ([]domain.MediaItem, error)
	TrendingSeries(ctx context.Context) ([]domain.MediaItem, error)
	Popular(ctx context.Context, kind domain.Kind) ([]domain.MediaItem, error)
	TopRated(ctx context.Context, kind domain.Kind) ([]domain.MediaItem, error)
	Providers(ctx context.Context) ([]domain.WatchProvider, error)
	ByProvider(ctx context.Context, providerID int64) (ProviderTitles, error)
	SearchMulti(ctx context.Context, query string) ([]domain.MediaItem, error)
	Details(ctx context.Context, kind domain.Kind, id int64) (domain.MediaItem, error)
}

// Options configures a Client. Zero values fall back to the package defaults.
type Options struct {
	BaseURL        string
	APIKey         string
	Region         string
	MaxRetries     int
	Timeout        time.Duration
	RetryBaseDelay time.Duration
	HTTPClient     *http.Client
	Logger         *log.Logger
}

// Client implements Catalog over the TMDB v3 REST API.
type Client struct {
	baseURL        *url.URL
	apiKey         string
	region         string
	maxRetries     int
	timeout        time.Duration
	retryBaseDelay time.Duration
	httpClient     *http.Client
	logger         *log.Logger
}

var _ Catalog = (*Client)(nil)

// NewClient constructs a TMDB client. An empty API key is accepted here and
// reported as ErrMissingAPIKey by the first request.
func NewClient(opts Options) (*Client, error) {
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}
	base := opts.BaseURL
	if base == "" {
		base = DefaultBaseURL
	}
	parsed, err := url.Parse(strings.TrimRight(base, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse tmdb url: %w", err)
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return nil, fmt.Errorf("parse tmdb url: %q is not absolute", base)
	}

	region := strings.ToUpper(strings.TrimSpace(opts.Region))
	if region == "" {
		region = DefaultRegion
	}
	maxRetries := opts.MaxRetries
	if maxRetries < 0 {
		maxRetries = 0
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	baseDelay := opts.RetryBaseDelay
	if baseDelay <= 0 {
		baseDelay = DefaultRetryBaseDelay
	}

	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{
			Transport: &http.Transport{
				Proxy: http.ProxyFromEnvironment,
				DialContext: (&net.Dialer{
					Timeout:   timeout,
					KeepAlive: 30 * time.Second,
				}).DialContext,
				TLSHandshakeTimeout:   timeout,
				ResponseHeaderTimeout: timeout,
				ExpectContinueTimeout: 1 * time.Second,
				MaxIdleConnsPerHost:   16,
			},
		}
	}

	return &Client{
		baseURL:        parsed,
		apiKey:         strings.TrimSpace(opts.APIKey),
		region:         region,
		maxRetries:     maxRetries,
		timeout:        timeout,
		retryBaseDelay: baseDelay,
		httpClient:     httpClient,
		logger:         logger,
	}, nil
}

// Region returns the configured home region.
func (c *Client) Region() string {
	return c.region
}
