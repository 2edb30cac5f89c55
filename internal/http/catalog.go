package httpserver

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/Clark-Hu/watchvault/internal/domain"
	"github.com/Clark-Hu/watchvault/internal/tmdb"
)

type mediaListResponse struct {
	Results []domain.MediaItem `json:"results"`
}

type providerListResponse struct {
	Results []domain.WatchProvider `json:"results"`
}

func (s *Server) handleTrendingMovies(w http.ResponseWriter, r *http.Request) {
	items, err := s.catalog.TrendingMovies(r.Context())
	if err != nil {
		s.respondCatalogError(w, r, "trending movies", err)
		return
	}
	s.respondJSON(w, http.StatusOK, mediaListResponse{Results: items})
}

func (s *Server) handleTrendingSeries(w http.ResponseWriter, r *http.Request) {
	items, err := s.catalog.TrendingSeries(r.Context())
	if err != nil {
		s.respondCatalogError(w, r, "trending series", err)
		return
	}
	s.respondJSON(w, http.StatusOK, mediaListResponse{Results: items})
}

func (s *Server) handlePopular(w http.ResponseWriter, r *http.Request) {
	s.handleKindList(w, r, "popular", s.catalog.Popular)
}

func (s *Server) handleTopRated(w http.ResponseWriter, r *http.Request) {
	s.handleKindList(w, r, "top rated", s.catalog.TopRated)
}

func (s *Server) handleKindList(w http.ResponseWriter, r *http.Request, what string, fetch func(context.Context, domain.Kind) ([]domain.MediaItem, error)) {
	kind, err := domain.ParseKind(chi.URLParam(r, "kind"))
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "BAD_REQUEST", "kind must be movie or tv")
		return
	}
	items, err := fetch(r.Context(), kind)
	if err != nil {
		s.respondCatalogError(w, r, what, err)
		return
	}
	s.respondJSON(w, http.StatusOK, mediaListResponse{Results: items})
}

func (s *Server) handleProviders(w http.ResponseWriter, r *http.Request) {
	providers, err := s.catalog.Providers(r.Context())
	if err != nil {
		s.respondCatalogError(w, r, "providers", err)
		return
	}
	s.respondJSON(w, http.StatusOK, providerListResponse{Results: providers})
}

func (s *Server) handleProviderTitles(w http.ResponseWriter, r *http.Request) {
	providerID, err := strconv.ParseInt(chi.URLParam(r, "providerID"), 10, 64)
	if err != nil || providerID <= 0 {
		s.respondError(w, http.StatusBadRequest, "BAD_REQUEST", "providerID must be a positive integer")
		return
	}
	titles, err := s.catalog.ByProvider(r.Context(), providerID)
	if err != nil {
		s.respondCatalogError(w, r, "provider titles", err)
		return
	}
	s.respondJSON(w, http.StatusOK, titles)
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("query")
	if strings.TrimSpace(query) == "" {
		query = r.URL.Query().Get("q")
	}
	items, err := s.catalog.SearchMulti(r.Context(), query)
	if err != nil {
		s.respondCatalogError(w, r, "search", err)
		return
	}
	s.respondJSON(w, http.StatusOK, mediaListResponse{Results: items})
}

func (s *Server) handleDetails(w http.ResponseWriter, r *http.Request) {
	kind, id, err := mediaParams(r)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "BAD_REQUEST", err.Error())
		return
	}
	item, err := s.catalog.Details(r.Context(), kind, id)
	if err != nil {
		s.respondCatalogError(w, r, "details", err)
		return
	}
	s.respondJSON(w, http.StatusOK, item)
}

// respondCatalogError maps catalog failures onto the public error codes. The
// underlying cause has already been logged by the catalog client.
func (s *Server) respondCatalogError(w http.ResponseWriter, r *http.Request, what string, err error) {
	switch {
	case errors.Is(err, tmdb.ErrMissingAPIKey):
		s.respondError(w, http.StatusInternalServerError, "CONFIG_ERROR", err.Error())
	case errors.Is(err, tmdb.ErrUnavailable):
		s.respondError(w, http.StatusBadGateway, "UPSTREAM_UNAVAILABLE", err.Error())
	case r.Context().Err() != nil:
		s.logger.Printf("%s request abandoned by client: %v", what, err)
	default:
		s.logger.Printf("%s failed: %v", what, err)
		s.respondError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to query the catalog")
	}
}
