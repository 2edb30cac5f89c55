package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/Clark-Hu/watchvault/internal/domain"
	"github.com/Clark-Hu/watchvault/internal/repository"
	"github.com/Clark-Hu/watchvault/internal/vault"
)

type userIDKey struct{}

// vaultPutRequest rejects unknown top-level fields; item is decoded leniently
// so raw TMDB records with extra fields are accepted.
type vaultPutRequest struct {
	Status string          `json:"status"`
	Item   json.RawMessage `json:"item"`
}

type vaultStatusResponse struct {
	Status *domain.Status `json:"status"`
}

type vaultEntriesResponse struct {
	Items      []domain.VaultEntry `json:"items"`
	NextCursor *string             `json:"nextCursor,omitempty"`
}

// requireUser admits requests carrying the shared bearer token and an
// X-User-Id header set by the upstream identity provider.
func (s *Server) requireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.verifyBearer(r.Header.Get("Authorization")) {
			s.respondError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Missing or invalid authentication information")
			return
		}
		userID := strings.TrimSpace(r.Header.Get("X-User-Id"))
		if userID == "" {
			s.respondError(w, http.StatusUnauthorized, "LOGIN_REQUIRED", vault.ErrLoginRequired.Error())
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), userIDKey{}, userID)))
	})
}

func userFrom(r *http.Request) string {
	userID, _ := r.Context().Value(userIDKey{}).(string)
	return userID
}

func (s *Server) handleVaultLists(w http.ResponseWriter, r *http.Request) {
	view, err := s.vault.Lists(r.Context(), userFrom(r))
	if err != nil {
		s.respondVaultError(w, "list vault", err)
		return
	}
	s.respondJSON(w, http.StatusOK, view)
}

func (s *Server) handleVaultEntries(w http.ResponseWriter, r *http.Request) {
	filters, err := buildEntryFilters(r.URL.Query())
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "BAD_REQUEST", err.Error())
		return
	}

	page, err := s.vault.History(r.Context(), userFrom(r), filters)
	if err != nil {
		s.respondVaultError(w, "page vault", err)
		return
	}
	s.respondJSON(w, http.StatusOK, vaultEntriesResponse{Items: page.Items, NextCursor: page.NextCursor})
}

func buildEntryFilters(query url.Values) (repository.EntryListFilters, error) {
	var filters repository.EntryListFilters

	if val := strings.TrimSpace(query.Get("status")); val != "" {
		status, err := domain.ParseStatus(val)
		if err != nil {
			return filters, fmt.Errorf("status must be watched or watchlist")
		}
		filters.Status = &status
	}
	if val := strings.TrimSpace(query.Get("limit")); val != "" {
		limit, err := strconv.Atoi(val)
		if err != nil {
			return filters, fmt.Errorf("invalid limit value")
		}
		filters.Limit = limit
	}
	if val := strings.TrimSpace(query.Get("cursor")); val != "" {
		cursor, err := repository.DecodeCursor(val)
		if err != nil {
			return filters, fmt.Errorf("invalid cursor")
		}
		filters.Cursor = cursor
	}
	return filters, nil
}

func (s *Server) handleVaultStats(w http.ResponseWriter, r *http.Request) {
	counts, err := s.vault.Counts(r.Context(), userFrom(r))
	if err != nil {
		s.respondVaultError(w, "count vault", err)
		return
	}
	s.respondJSON(w, http.StatusOK, counts)
}

func (s *Server) handleVaultStatus(w http.ResponseWriter, r *http.Request) {
	kind, id, err := mediaParams(r)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "BAD_REQUEST", err.Error())
		return
	}
	status, ok, err := s.vault.Status(r.Context(), userFrom(r), kind, id)
	if err != nil {
		s.respondVaultError(w, "vault status", err)
		return
	}
	resp := vaultStatusResponse{}
	if ok {
		resp.Status = &status
	}
	s.respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleVaultPut(w http.ResponseWriter, r *http.Request) {
	kind, id, err := mediaParams(r)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "BAD_REQUEST", err.Error())
		return
	}

	var req vaultPutRequest
	if err := decodeJSONBody(w, r, &req); err != nil {
		s.respondDecodeError(w, err)
		return
	}
	status, err := domain.ParseStatus(req.Status)
	if err != nil {
		s.respondError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "status must be watched or watchlist")
		return
	}

	var item domain.MediaItem
	if len(req.Item) > 0 && string(req.Item) != "null" {
		if err := json.Unmarshal(req.Item, &item); err != nil {
			s.respondDecodeError(w, err)
			return
		}
		if item.ID != 0 && item.ID != id {
			s.respondError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "item.id does not match the path")
			return
		}
		if item.Kind != "" && item.Kind != kind {
			s.respondError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "item.media_type does not match the path")
			return
		}
		item.ID = id
		item.Kind = kind
	} else {
		// No snapshot supplied; capture the current catalog record instead.
		item, err = s.catalog.Details(r.Context(), kind, id)
		if err != nil {
			s.respondCatalogError(w, r, "vault item lookup", err)
			return
		}
	}

	entry, inserted, err := s.vault.AddToStatus(r.Context(), userFrom(r), item, status)
	if err != nil {
		s.respondVaultError(w, "add to vault", err)
		return
	}

	code := http.StatusOK
	if inserted {
		code = http.StatusCreated
	}
	s.respondJSON(w, code, entry)
}

func (s *Server) handleVaultDelete(w http.ResponseWriter, r *http.Request) {
	kind, id, err := mediaParams(r)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "BAD_REQUEST", err.Error())
		return
	}
	if err := s.vault.Remove(r.Context(), userFrom(r), kind, id); err != nil {
		s.respondVaultError(w, "remove from vault", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) respondVaultError(w http.ResponseWriter, what string, err error) {
	switch {
	case errors.Is(err, vault.ErrLoginRequired):
		s.respondError(w, http.StatusUnauthorized, "LOGIN_REQUIRED", vault.ErrLoginRequired.Error())
	case errors.Is(err, repository.ErrNotFound):
		s.respondError(w, http.StatusNotFound, "NOT_FOUND", "Resource not found")
	case errors.Is(err, domain.ErrInvalidKind), errors.Is(err, domain.ErrInvalidStatus), errors.Is(err, vault.ErrInvalidItem):
		s.respondError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", err.Error())
	default:
		s.logger.Printf("%s error: %v", what, err)
		s.respondError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to update your lists")
	}
}
