package http

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	apierrors "licsrv/internal/errors"
	"licsrv/internal/messages"
)

// MessagesResponse is the whole catalog.
type MessagesResponse struct {
	Success  bool                                   `json:"success"`
	Version  string                                 `json:"version"`
	Messages map[string]map[string]messages.Message `json:"messages"`
}

// CategoryResponse is one catalog category.
type CategoryResponse struct {
	Success  bool                        `json:"success"`
	Version  string                      `json:"version"`
	Category string                      `json:"category"`
	Messages map[string]messages.Message `json:"messages"`
}

// MessageResponse is a single catalog entry.
type MessageResponse struct {
	Success  bool             `json:"success"`
	Version  string           `json:"version"`
	Category string           `json:"category"`
	Key      string           `json:"key"`
	Message  messages.Message `json:"message"`
}

// MessagesHandler serves the client message catalog
type MessagesHandler struct {
	base
	catalog *messages.Catalog
}

// NewMessagesHandler creates a new messages handler
func NewMessagesHandler(catalog *messages.Catalog, logger *slog.Logger) *MessagesHandler {
	return &MessagesHandler{
		base:    newBase(nil, nil, logger, "messages"),
		catalog: catalog,
	}
}

// Routes returns a chi router for catalog endpoints
func (h *MessagesHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/", h.All)
	r.Get("/{category}", h.Category)
	r.Get("/{category}/{key}", h.Message)
	return r
}

// All handles GET /api/v1/messages
func (h *MessagesHandler) All(w http.ResponseWriter, r *http.Request) {
	h.respond(w, r, http.StatusOK, MessagesResponse{
		Success:  true,
		Version:  h.catalog.Version(),
		Messages: h.catalog.All(),
	})
}

// Category handles GET /api/v1/messages/{category}
func (h *MessagesHandler) Category(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "category")
	entries, ok := h.catalog.Category(name)
	if !ok {
		h.fail(w, r, apierrors.New(http.StatusNotFound, apierrors.CodeMessageNotFound,
			fmt.Sprintf("Unknown message category: %s", name)))
		return
	}
	h.respond(w, r, http.StatusOK, CategoryResponse{
		Success:  true,
		Version:  h.catalog.Version(),
		Category: name,
		Messages: entries,
	})
}

// Message handles GET /api/v1/messages/{category}/{key}
func (h *MessagesHandler) Message(w http.ResponseWriter, r *http.Request) {
	category, key := chi.URLParam(r, "category"), chi.URLParam(r, "key")
	msg, ok := h.catalog.Lookup(category, key)
	if !ok {
		h.fail(w, r, apierrors.New(http.StatusNotFound, apierrors.CodeMessageNotFound,
			fmt.Sprintf("Message not found: %s.%s", category, key)))
		return
	}
	h.respond(w, r, http.StatusOK, MessageResponse{
		Success:  true,
		Version:  h.catalog.Version(),
		Category: category,
		Key:      key,
		Message:  msg,
	})
}
