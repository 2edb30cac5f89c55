package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/Clark-Hu/watchvault/internal/vault"
)

// handleVaultEvents streams the caller's vault as server-sent events: one
// "snapshot" event per mirrored view, comment lines as keep-alives, and a
// final "error" event if the underlying subscription drops.
func (s *Server) handleVaultEvents(w http.ResponseWriter, r *http.Request) {
	rc := http.NewResponseController(w)
	if err := rc.SetWriteDeadline(time.Time{}); err != nil && !errors.Is(err, http.ErrNotSupported) {
		s.logger.Printf("vault events: clear write deadline: %v", err)
	}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	// Only the newest view matters; a slow client skips intermediate ones.
	views := make(chan *vault.View, 1)
	publish := func(v *vault.View) {
		for {
			select {
			case views <- v:
				return
			default:
			}
			select {
			case <-views:
			default:
			}
		}
	}

	mirror := s.vault.Mirror(userFrom(r))
	done := make(chan error, 1)
	go func() { done <- mirror.Run(ctx, publish) }()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	if err := rc.Flush(); err != nil {
		s.logger.Printf("vault events: flush unsupported: %v", err)
		return
	}

	ticker := time.NewTicker(s.keepAlive)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case view := <-views:
			if err := writeEvent(w, "snapshot", view); err != nil {
				return
			}
		case err := <-done:
			if ctx.Err() != nil {
				return
			}
			// Deliver a view that raced with the stream closing.
			select {
			case view := <-views:
				_ = writeEvent(w, "snapshot", view)
			default:
			}
			s.logger.Printf("vault events for user=%s ended: %v", userFrom(r), err)
			_ = writeEvent(w, "error", errorResponse{Code: "STREAM_CLOSED", Message: "vault updates are unavailable, reconnect to resume"})
			_ = rc.Flush()
			return
		case <-ticker.C:
			if _, err := io.WriteString(w, ": keep-alive\n\n"); err != nil {
				return
			}
		}
		if err := rc.Flush(); err != nil {
			return
		}
	}
}

func writeEvent(w io.Writer, event string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "id: %s\nevent: %s\ndata: %s\n\n", uuid.NewString(), event, data)
	return err
}
