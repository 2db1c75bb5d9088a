package sessionmon

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"log/slog"

	"github.com/go-chi/chi/v5"

	"github.com/callgrade/callgrade/internal/observability"
	"github.com/callgrade/callgrade/internal/platform/httpx"
	"github.com/callgrade/callgrade/internal/shared"
)

// Handler exposes the client-facing monitor endpoints: the SSE stream for
// the push layer and the JSON recheck used when the authenticated shell
// mounts.
type Handler struct {
	logger   *slog.Logger
	status   StatusStore
	notifier *Notifier
	sessions *shared.SessionManager
	metrics  *observability.Metrics
}

// NewHandler constructs the monitor handler.
func NewHandler(logger *slog.Logger, status StatusStore, notifier *Notifier, sessions *shared.SessionManager, metrics *observability.Metrics) *Handler {
	return &Handler{logger: logger, status: status, notifier: notifier, sessions: sessions, metrics: metrics}
}

// MountRoutes registers monitor routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/events", h.streamStatus)
	r.Get("/check", h.checkStatus)
}

// checkStatus is the mount-time fallback: one explicit read of the flag,
// independent of the push channel, covering the window between page load and
// subscription establishment.
func (h *Handler) checkStatus(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.currentUserID(r)
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", shared.ErrUnauthorized.Error())
		return
	}
	suspended, err := h.status.Suspended(r.Context(), userID)
	if err != nil && !errors.Is(err, shared.ErrNotFound) {
		httpx.Problem(w, http.StatusServiceUnavailable, "Status Unavailable", "")
		return
	}
	if suspended && h.metrics != nil {
		h.metrics.SuspensionLogout("recheck")
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"suspended": suspended,
		"message":   messageFor(suspended),
	})
}

// streamStatus subscribes the client to its own status channel and relays
// events as SSE. Each client only ever sees its own row changes.
func (h *Handler) streamStatus(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.currentUserID(r)
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	ctx := r.Context()
	sub := h.notifier.Subscribe(ctx, userID)
	defer func() {
		if err := sub.Close(); err != nil {
			h.logger.Warn("close status subscription", slog.Any("error", err))
		}
	}()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	heartbeat := time.NewTicker(25 * time.Second)
	defer heartbeat.Stop()

	events := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case <-heartbeat.C:
			fmt.Fprint(w, ": ping\n\n")
			flusher.Flush()
		case msg, open := <-events:
			if !open {
				return
			}
			var event StatusEvent
			if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
				h.logger.Warn("decode status event", slog.Any("error", err))
				continue
			}
			fmt.Fprintf(w, "event: status\ndata: %s\n\n", msg.Payload)
			flusher.Flush()
			if event.Suspended {
				if h.metrics != nil {
					h.metrics.SuspensionLogout("push")
				}
				// The client navigates to login on this event; the stream is
				// done once suspension has been delivered.
				return
			}
		}
	}
}

func (h *Handler) currentUserID(r *http.Request) (int64, bool) {
	sess := shared.SessionFromContext(r.Context())
	if sess == nil || sess.User() == "" {
		return 0, false
	}
	id, err := strconv.ParseInt(sess.User(), 10, 64)
	if err != nil {
		return 0, false
	}
	return id, true
}

func messageFor(suspended bool) string {
	if suspended {
		return shared.SuspensionMessage
	}
	return ""
}
