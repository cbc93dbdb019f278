package api

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/kaiwa-go/kaiwa/internal/chat"
)

// HistoryStore is the slice of the conversation store the thread
// endpoints consume.
type HistoryStore interface {
	ListThreads(ctx context.Context) ([]chat.Thread, error)
	FindThread(ctx context.Context, id string) (*chat.Thread, error)
	ListMessages(ctx context.Context, threadID string) ([]chat.Message, error)
	DeleteThread(ctx context.Context, id string) error
}

// historyHandler serves the thread management endpoints.
type historyHandler struct {
	store  HistoryStore
	logger *slog.Logger
}

func newHistoryHandler(store HistoryStore, logger *slog.Logger) *historyHandler {
	return &historyHandler{store: store, logger: logger}
}

func (h *historyHandler) registerRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/threads", h.listThreads)
	mux.HandleFunc("GET /api/threads/{id}/messages", h.listMessages)
	mux.HandleFunc("DELETE /api/threads/{id}", h.deleteThread)
}

type threadsResponse struct {
	Threads []chat.Thread `json:"threads"`
}

type messagesResponse struct {
	Messages []chat.Message `json:"messages"`
}

// listThreads returns all threads, most recently updated first.
func (h *historyHandler) listThreads(w http.ResponseWriter, r *http.Request) {
	threads, err := h.store.ListThreads(r.Context())
	if err != nil {
		h.logger.Error("listing threads", "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	if threads == nil {
		threads = []chat.Thread{}
	}
	writeJSON(w, http.StatusOK, threadsResponse{Threads: threads})
}

// listMessages returns a thread's messages in arrival order.
func (h *historyHandler) listMessages(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	thread, err := h.store.FindThread(r.Context(), id)
	if err != nil {
		h.logger.Error("finding thread", "thread_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	if thread == nil {
		writeError(w, http.StatusNotFound, "thread not found")
		return
	}

	messages, err := h.store.ListMessages(r.Context(), id)
	if err != nil {
		h.logger.Error("listing messages", "thread_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	if messages == nil {
		messages = []chat.Message{}
	}
	writeJSON(w, http.StatusOK, messagesResponse{Messages: messages})
}

// deleteThread removes a thread and its messages.
func (h *historyHandler) deleteThread(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := h.store.DeleteThread(r.Context(), id); err != nil {
		h.logger.Error("deleting thread", "thread_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
