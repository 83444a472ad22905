// Package messages implements the message endpoints, including multipart
// uploads of attachments.
package messages

import (
	"context"
	"errors"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/vedesh-padal/tal-chat-app/internal/components/api"
	"github.com/vedesh-padal/tal-chat-app/internal/components/chats"
	"github.com/vedesh-padal/tal-chat-app/internal/components/messages"
	"github.com/vedesh-padal/tal-chat-app/internal/platform/appctx"
	"github.com/vedesh-padal/tal-chat-app/internal/platform/apperr"
	"github.com/vedesh-padal/tal-chat-app/internal/platform/logutil"
)

const (
	// FieldContent and FieldAttachments are the multipart form field names.
	FieldContent     = "content"
	FieldAttachments = "attachments"

	// multipartMemory is how much of a form is kept in memory before
	// spilling file parts to disk.
	multipartMemory = 8 << 20
)

// Repository is the message surface the handler uses.
type Repository interface {
	List(ctx context.Context, requesterID, chatID string, page messages.Page) ([]chats.MessageView, error)
	Send(ctx context.Context, senderID, chatID, content string, uploads []messages.Upload) (chats.MessageView, error)
	Delete(ctx context.Context, requesterID, chatID, messageID string) (chats.MessageView, error)
	Search(ctx context.Context, requesterID, chatID, query string, page messages.Page) ([]chats.MessageView, error)
	MarkRead(ctx context.Context, requesterID, chatID, messageID string) (chats.MessageView, error)
}

// Handler serves the message endpoints.
type Handler struct {
	repo    Repository
	maxBody int64
	log     *slog.Logger
}

// NewHandler creates the handler. maxBody caps a send request, form
// overhead included.
func NewHandler(repo Repository, maxBody int64, log *slog.Logger) *Handler {
	return &Handler{repo: repo, maxBody: maxBody, log: logutil.NoopIfNil(log)}
}

type sendRequest struct {
	Content string `json:"content"`
}

// HandleList handles GET /messages/{chatId}?limit=&offset=.
func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	page, err := pageOf(r)
	if err != nil {
		api.WriteError(w, r, err)
		return
	}
	views, err := h.repo.List(r.Context(), appctx.UserID(r.Context()), chi.URLParam(r, "chatId"), page)
	if err != nil {
		api.WriteError(w, r, err)
		return
	}
	api.WriteSuccess(w, http.StatusOK, views, "Messages fetched successfully")
}

// HandleSend handles POST /messages/{chatId}. The body is either a
// multipart form with content and attachments fields or JSON {content}.
func (h *Handler) HandleSend(w http.ResponseWriter, r *http.Request) {
	if h.maxBody > 0 {
		if r.ContentLength > h.maxBody {
			api.WriteStatus(w, http.StatusRequestEntityTooLarge, "Request body is too large")
			return
		}
		r.Body = http.MaxBytesReader(w, r.Body, h.maxBody)
	}

	var (
		content string
		uploads []messages.Upload
	)
	if api.IsMultipart(r) {
		if err := r.ParseMultipartForm(multipartMemory); err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				api.WriteStatus(w, http.StatusRequestEntityTooLarge, "Request body is too large")
				return
			}
			api.WriteError(w, r, apperr.InvalidArgument("invalid multipart form"))
			return
		}
		defer r.MultipartForm.RemoveAll()

		content = r.PostFormValue(FieldContent)
		files, closeAll, err := openFiles(r.MultipartForm.File[FieldAttachments])
		defer closeAll()
		if err != nil {
			api.WriteError(w, r, err)
			return
		}
		uploads = files
	} else {
		var req sendRequest
		if err := api.ReadJSON(r, &req); err != nil {
			api.WriteError(w, r, err)
			return
		}
		content = req.Content
	}

	view, err := h.repo.Send(r.Context(), appctx.UserID(r.Context()), chi.URLParam(r, "chatId"), content, uploads)
	if err != nil {
		api.WriteError(w, r, err)
		return
	}
	api.WriteSuccess(w, http.StatusCreated, view, "Message saved successfully")
}

// HandleDelete handles DELETE /messages/{chatId}/{messageId}.
func (h *Handler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	view, err := h.repo.Delete(r.Context(), appctx.UserID(r.Context()), chi.URLParam(r, "chatId"), chi.URLParam(r, "messageId"))
	if err != nil {
		api.WriteError(w, r, err)
		return
	}
	api.WriteSuccess(w, http.StatusOK, view, "Message deleted successfully")
}

// HandleMarkRead handles PATCH /messages/{chatId}/{messageId}/read.
func (h *Handler) HandleMarkRead(w http.ResponseWriter, r *http.Request) {
	view, err := h.repo.MarkRead(r.Context(), appctx.UserID(r.Context()), chi.URLParam(r, "chatId"), chi.URLParam(r, "messageId"))
	if err != nil {
		api.WriteError(w, r, err)
		return
	}
	api.WriteSuccess(w, http.StatusOK, view, "Message marked as read")
}

// HandleSearch handles GET /messages/{chatId}/search?query=&limit=&offset=.
func (h *Handler) HandleSearch(w http.ResponseWriter, r *http.Request) {
	page, err := pageOf(r)
	if err != nil {
		api.WriteError(w, r, err)
		return
	}
	views, err := h.repo.Search(r.Context(), appctx.UserID(r.Context()), chi.URLParam(r, "chatId"), r.URL.Query().Get("query"), page)
	if err != nil {
		api.WriteError(w, r, err)
		return
	}
	api.WriteSuccess(w, http.StatusOK, views, "Messages fetched successfully")
}

func pageOf(r *http.Request) (messages.Page, error) {
	var page messages.Page
	q := r.URL.Query()
	for name, dst := range map[string]*int{"limit": &page.Limit, "offset": &page.Offset} {
		raw := q.Get(name)
		if raw == "" {
			continue
		}
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			return messages.Page{}, apperr.InvalidArgument("%s must be a non-negative integer", name)
		}
		*dst = n
	}
	return page, nil
}

func openFiles(headers []*multipart.FileHeader) ([]messages.Upload, func(), error) {
	var opened []multipart.File
	closeAll := func() {
		for _, f := range opened {
			f.Close()
		}
	}
	uploads := make([]messages.Upload, 0, len(headers))
	for _, fh := range headers {
		f, err := fh.Open()
		if err != nil {
			return nil, closeAll, apperr.InvalidArgument("failed to read attachment %q", fh.Filename)
		}
		opened = append(opened, f)
		uploads = append(uploads, messages.Upload{Name: fh.Filename, Reader: f})
	}
	return uploads, closeAll, nil
}
