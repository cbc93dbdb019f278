package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/kaiwa-go/kaiwa/internal/chat"
)

// chatHandler serves the streaming chat endpoint.
type chatHandler struct {
	service *chat.Service
	logger  *slog.Logger
}

func newChatHandler(service *chat.Service, logger *slog.Logger) *chatHandler {
	return &chatHandler{service: service, logger: logger}
}

func (h *chatHandler) registerRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/chat", h.send)
}

// send starts a conversation turn and streams the assistant's reply as
// plain text. The resolved thread id travels in the X-Thread-Id response
// header, which is set before the first byte of the body.
//
// Errors before the stream starts map to a JSON error response; once
// streaming has begun the connection is simply closed on failure.
func (h *chatHandler) send(w http.ResponseWriter, r *http.Request) {
	var req chat.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	turn, err := h.service.HandleTurn(r.Context(), req)
	if err != nil {
		h.writeTurnError(w, err)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("X-Accel-Buffering", "no")
	w.Header().Set("X-Thread-Id", turn.ThreadID)
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	err = turn.Stream(r.Context(), func(delta string) error {
		if _, err := w.Write([]byte(delta)); err != nil {
			return err
		}
		flusher.Flush()
		return nil
	})
	if err != nil {
		// Headers are gone; log and drop the connection.
		h.logger.Error("chat stream aborted", "thread_id", turn.ThreadID, "error", err)
	}
}

// writeTurnError maps orchestrator errors onto HTTP statuses.
func (h *chatHandler) writeTurnError(w http.ResponseWriter, err error) {
	var upstream *chat.UpstreamModelError
	switch {
	case errors.Is(err, chat.ErrClientInput):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.As(err, &upstream):
		writeError(w, upstream.HTTPStatus(), "upstream model error")
	default:
		h.logger.Error("starting chat turn", "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}
