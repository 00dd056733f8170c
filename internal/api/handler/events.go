package handler

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/remiblancher/certwizard/internal/wizard"
)

// eventBuffer is the number of navigation changes queued per stream.
// Slow clients lose intermediate snapshots, never the stream.
const eventBuffer = 16

// keepAliveInterval spaces comment lines on idle streams.
const keepAliveInterval = 15 * time.Second

// Events handles GET /api/v1/sessions/{id}/events as a server-sent event
// stream of navigation snapshots. The current snapshot is sent first; the
// stream ends when the session closes or the client goes away.
func (h *SessionHandler) Events(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	updates := make(chan wizard.Navigation, eventBuffer)
	current, unsubscribe, err := h.service.Subscribe(chi.URLParam(r, "id"), func(nav wizard.Navigation) {
		select {
		case updates <- nav:
		default:
		}
	})
	if err != nil {
		handleServiceError(w, err)
		return
	}
	defer unsubscribe()

	// Streams outlive the server write timeout.
	_ = http.NewResponseController(w).SetWriteDeadline(time.Time{})

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	logger := zerolog.Ctx(r.Context())
	send := func(nav wizard.Navigation) bool {
		data, err := json.Marshal(nav)
		if err != nil {
			logger.Error().Err(err).Msg("failed to encode navigation event")
			return false
		}
		if _, err := fmt.Fprintf(w, "event: navigation\ndata: %s\n\n", data); err != nil {
			return false
		}
		flusher.Flush()
		return nav.Status == wizard.StatusActive
	}

	if !send(current) {
		return
	}

	ticker := time.NewTicker(keepAliveInterval)
	defer ticker.Stop()
	for {
		select {
		case <-r.Context().Done():
			return
		case nav := <-updates:
			if !send(nav) {
				return
			}
		case <-ticker.C:
			if _, err := fmt.Fprint(w, ": keep-alive\n\n"); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}
