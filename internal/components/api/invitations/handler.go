// Package invitations implements the invitation and connection endpoints.
package invitations

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/vedesh-padal/tal-chat-app/internal/components/api"
	"github.com/vedesh-padal/tal-chat-app/internal/components/identity"
	"github.com/vedesh-padal/tal-chat-app/internal/components/invitations"
	"github.com/vedesh-padal/tal-chat-app/internal/platform/appctx"
	"github.com/vedesh-padal/tal-chat-app/internal/platform/apperr"
	"github.com/vedesh-padal/tal-chat-app/internal/platform/logutil"
)

// Engine is the invitation surface the handler uses.
type Engine interface {
	Send(ctx context.Context, senderID, receiverID string) (invitations.View, error)
	Respond(ctx context.Context, responderID, senderID string, d invitations.Decision) (invitations.View, error)
	ListByStatus(ctx context.Context, userID, status string) ([]invitations.View, error)
	ListAll(ctx context.Context, userID string) ([]invitations.View, error)
	Connections(ctx context.Context, userID string) ([]identity.Profile, error)
}

// Handler serves the invitation endpoints.
type Handler struct {
	engine Engine
	log    *slog.Logger
}

func NewHandler(engine Engine, log *slog.Logger) *Handler {
	return &Handler{engine: engine, log: logutil.NoopIfNil(log)}
}

// HandleSend handles POST /chats/invitations/send/{receiverId}.
func (h *Handler) HandleSend(w http.ResponseWriter, r *http.Request) {
	view, err := h.engine.Send(r.Context(), appctx.UserID(r.Context()), chi.URLParam(r, "receiverId"))
	if err != nil {
		api.WriteError(w, r, err)
		return
	}
	api.WriteSuccess(w, http.StatusCreated, view, "Invitation sent successfully")
}

// HandleRespond handles POST /chats/invitations/respond?invitationFrom=&response=.
func (h *Handler) HandleRespond(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	from := q.Get("invitationFrom")
	if from == "" {
		api.WriteError(w, r, apperr.InvalidArgument("invitationFrom is required"))
		return
	}
	decision, err := invitations.ParseDecision(q.Get("response"))
	if err != nil {
		api.WriteError(w, r, err)
		return
	}
	view, err := h.engine.Respond(r.Context(), appctx.UserID(r.Context()), from, decision)
	if err != nil {
		api.WriteError(w, r, err)
		return
	}
	message := "Invitation accepted"
	if decision == invitations.Reject {
		message = "Invitation rejected"
	}
	api.WriteSuccess(w, http.StatusOK, view, message)
}

// HandleListAll handles GET /chats/invitations.
func (h *Handler) HandleListAll(w http.ResponseWriter, r *http.Request) {
	views, err := h.engine.ListAll(r.Context(), appctx.UserID(r.Context()))
	if err != nil {
		api.WriteError(w, r, err)
		return
	}
	api.WriteSuccess(w, http.StatusOK, views, "Invitations fetched successfully")
}

// HandleListByStatus handles GET /chats/users/{status}.
func (h *Handler) HandleListByStatus(w http.ResponseWriter, r *http.Request) {
	status, err := invitations.ParseStatus(chi.URLParam(r, "status"))
	if err != nil {
		api.WriteError(w, r, err)
		return
	}
	views, err := h.engine.ListByStatus(r.Context(), appctx.UserID(r.Context()), status)
	if err != nil {
		api.WriteError(w, r, err)
		return
	}
	api.WriteSuccess(w, http.StatusOK, views, "Invitations fetched successfully")
}

// HandleConnections handles GET /chats/connections.
func (h *Handler) HandleConnections(w http.ResponseWriter, r *http.Request) {
	peers, err := h.engine.Connections(r.Context(), appctx.UserID(r.Context()))
	if err != nil {
		api.WriteError(w, r, err)
		return
	}
	api.WriteSuccess(w, http.StatusOK, peers, "Connections fetched successfully")
}
