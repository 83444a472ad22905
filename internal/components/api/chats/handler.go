// Package chats implements the one-to-one chat endpoints.
package chats

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/vedesh-padal/tal-chat-app/internal/components/api"
	"github.com/vedesh-padal/tal-chat-app/internal/components/chats"
	"github.com/vedesh-padal/tal-chat-app/internal/platform/appctx"
)

// Repository is the chat surface the handler uses.
type Repository interface {
	FindOrCreateOneOnOne(ctx context.Context, initiatorID, counterpartID string) (chats.ChatView, bool, error)
	DeleteOneOnOne(ctx context.Context, requesterID, chatID string) (chats.ChatView, error)
	List(ctx context.Context, userID string) ([]chats.ChatView, error)
	Get(ctx context.Context, requesterID, chatID string) (chats.ChatView, error)
}

// Handler serves the chat endpoints.
type Handler struct {
	repo Repository
}

func NewHandler(repo Repository) *Handler {
	return &Handler{repo: repo}
}

// HandleList handles GET /chats.
func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	views, err := h.repo.List(r.Context(), appctx.UserID(r.Context()))
	if err != nil {
		api.WriteError(w, r, err)
		return
	}
	api.WriteSuccess(w, http.StatusOK, views, "User chats fetched successfully!")
}

// HandleFindOrCreate handles POST /chats/c/{id}, where id is the counterpart.
// A new chat answers 201, an existing one 200.
func (h *Handler) HandleFindOrCreate(w http.ResponseWriter, r *http.Request) {
	view, created, err := h.repo.FindOrCreateOneOnOne(r.Context(), appctx.UserID(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		api.WriteError(w, r, err)
		return
	}
	if created {
		api.WriteSuccess(w, http.StatusCreated, view, "Chat created successfully")
		return
	}
	api.WriteSuccess(w, http.StatusOK, view, "Chat retrieved successfully")
}

// HandleGet handles GET /chats/c/{id}, where id is the chat.
func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	view, err := h.repo.Get(r.Context(), appctx.UserID(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		api.WriteError(w, r, err)
		return
	}
	api.WriteSuccess(w, http.StatusOK, view, "Chat retrieved successfully")
}

// HandleDelete handles DELETE /chats/remove/{id}.
func (h *Handler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	view, err := h.repo.DeleteOneOnOne(r.Context(), appctx.UserID(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		api.WriteError(w, r, err)
		return
	}
	api.WriteSuccess(w, http.StatusOK, view, "Chat deleted successfully")
}
