package messages_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"

	messagesapi "github.com/vedesh-padal/tal-chat-app/internal/components/api/messages"
	"github.com/vedesh-padal/tal-chat-app/internal/components/chats"
	"github.com/vedesh-padal/tal-chat-app/internal/components/messages"
	"github.com/vedesh-padal/tal-chat-app/internal/platform/appctx"
	"github.com/vedesh-padal/tal-chat-app/internal/platform/apperr"
)

type sendCall struct {
	sender, chat, content string
	files                 map[string]string
}

// fakeRepo records calls and returns canned results.
type fakeRepo struct {
	sends   []sendCall
	page    messages.Page
	query   string
	sendErr error
}

func (f *fakeRepo) List(_ context.Context, _, _ string, page messages.Page) ([]chats.MessageView, error) {
	f.page = page
	return []chats.MessageView{}, nil
}

func (f *fakeRepo) Send(_ context.Context, senderID, chatID, content string, uploads []messages.Upload) (chats.MessageView, error) {
	call := sendCall{sender: senderID, chat: chatID, content: content, files: map[string]string{}}
	for _, u := range uploads {
		b, err := io.ReadAll(u.Reader)
		if err != nil {
			return chats.MessageView{}, err
		}
		call.files[u.Name] = string(b)
	}
	f.sends = append(f.sends, call)
	if f.sendErr != nil {
		return chats.MessageView{}, f.sendErr
	}
	return chats.MessageView{ID: "m1", Chat: chatID, Content: content}, nil
}

func (f *fakeRepo) Delete(_ context.Context, requesterID, _, messageID string) (chats.MessageView, error) {
	if requesterID != "u1" {
		return chats.MessageView{}, apperr.Forbidden("You are not the sender of this message")
	}
	return chats.MessageView{ID: messageID}, nil
}

func (f *fakeRepo) Search(_ context.Context, _, _, query string, page messages.Page) ([]chats.MessageView, error) {
	f.query = query
	f.page = page
	return []chats.MessageView{}, nil
}

func (f *fakeRepo) MarkRead(_ context.Context, requesterID, chatID, messageID string) (chats.MessageView, error) {
	return chats.MessageView{ID: messageID, Chat: chatID, ReadBy: []string{requesterID}}, nil
}

const maxBody = 2048

func router(repo messagesapi.Repository) http.Handler {
	h := messagesapi.NewHandler(repo, maxBody, nil)
	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			next.ServeHTTP(w, req.WithContext(appctx.WithUserID(req.Context(), req.Header.Get("X-Test-User"))))
		})
	})
	r.Route("/messages/{chatId}", func(r chi.Router) {
		r.Get("/", h.HandleList)
		r.Post("/", h.HandleSend)
		r.Get("/search", h.HandleSearch)
		r.Delete("/{messageId}", h.HandleDelete)
		r.Patch("/{messageId}/read", h.HandleMarkRead)
	})
	return r
}

func form(t *testing.T, content string, files map[string]string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if content != "" {
		if err := mw.WriteField(messagesapi.FieldContent, content); err != nil {
			t.Fatal(err)
		}
	}
	for name, data := range files {
		fw, err := mw.CreateFormFile(messagesapi.FieldAttachments, name)
		if err != nil {
			t.Fatal(err)
		}
		fw.Write([]byte(data))
	}
	if err := mw.Close(); err != nil {
		t.Fatal(err)
	}
	return &buf, mw.FormDataContentType()
}

func do(h http.Handler, method, target, user string, body io.Reader, contentType string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, body)
	req.Header.Set("X-Test-User", user)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestHandleSend(t *testing.T) {
	small, smallType := form(t, "with files", map[string]string{"a.txt": "alpha", "b.txt": "beta"})
	big, bigType := form(t, "too big", map[string]string{"big.bin": strings.Repeat("x", 2*maxBody)})
	contentOnly, contentOnlyType := form(t, "just text", nil)

	tests := []struct {
		name        string
		body        io.Reader
		contentType string
		sendErr     error
		wantStatus  int
		wantContent string
		wantFiles   map[string]string
	}{
		{
			name:        "json body",
			body:        strings.NewReader(`{"content":"hi bob"}`),
			contentType: "application/json",
			wantStatus:  http.StatusCreated,
			wantContent: "hi bob",
		},
		{
			name:        "multipart with attachments",
			body:        small,
			contentType: smallType,
			wantStatus:  http.StatusCreated,
			wantContent: "with files",
			wantFiles:   map[string]string{"a.txt": "alpha", "b.txt": "beta"},
		},
		{
			name:        "multipart without attachments",
			body:        contentOnly,
			contentType: contentOnlyType,
			wantStatus:  http.StatusCreated,
			wantContent: "just text",
		},
		{
			name:        "body over the limit",
			body:        big,
			contentType: bigType,
			wantStatus:  http.StatusRequestEntityTooLarge,
		},
		{
			name:        "malformed json",
			body:        strings.NewReader(`{"content":`),
			contentType: "application/json",
			wantStatus:  http.StatusBadRequest,
		},
		{
			name:        "repository rejects",
			body:        strings.NewReader(`{"content":""}`),
			contentType: "application/json",
			sendErr:     apperr.InvalidArgument("Message content or attachment is required"),
			wantStatus:  http.StatusBadRequest,
			wantContent: "",
		},
		{
			name:        "not a participant",
			body:        strings.NewReader(`{"content":"hey"}`),
			contentType: "application/json",
			sendErr:     apperr.Forbidden("You are not part of this chat"),
			wantStatus:  http.StatusForbidden,
			wantContent: "hey",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := &fakeRepo{sendErr: tt.sendErr}
			w := do(router(repo), "POST", "/messages/c1", "u1", tt.body, tt.contentType)

			if w.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d: %s", w.Code, tt.wantStatus, w.Body.String())
			}
			if tt.wantStatus == http.StatusRequestEntityTooLarge || (tt.wantStatus == http.StatusBadRequest && tt.sendErr == nil) {
				if len(repo.sends) != 0 {
					t.Errorf("repository must not be called, got %+v", repo.sends)
				}
				return
			}
			if len(repo.sends) != 1 {
				t.Fatalf("expected one Send, got %d", len(repo.sends))
			}
			got := repo.sends[0]
			if got.sender != "u1" || got.chat != "c1" || got.content != tt.wantContent {
				t.Errorf("Send(%q, %q, %q)", got.sender, got.chat, got.content)
			}
			if len(got.files) != len(tt.wantFiles) {
				t.Fatalf("files = %v, want %v", got.files, tt.wantFiles)
			}
			for name, data := range tt.wantFiles {
				if got.files[name] != data {
					t.Errorf("file %s = %q, want %q", name, got.files[name], data)
				}
			}
		})
	}
}

func TestHandleSend_EnvelopeOnSuccess(t *testing.T) {
	w := do(router(&fakeRepo{}), "POST", "/messages/c1", "u1", strings.NewReader(`{"content":"hi"}`), "application/json")

	var env struct {
		StatusCode int               `json:"statusCode"`
		Success    bool              `json:"success"`
		Data       chats.MessageView `json:"data"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if env.StatusCode != http.StatusCreated || !env.Success || env.Data.ID != "m1" || env.Data.Chat != "c1" {
		t.Errorf("envelope = %+v", env)
	}
}

func TestHandleList_Paging(t *testing.T) {
	tests := []struct {
		query      string
		wantStatus int
		wantPage   messages.Page
	}{
		{"", http.StatusOK, messages.Page{}},
		{"?limit=10&offset=5", http.StatusOK, messages.Page{Limit: 10, Offset: 5}},
		{"?limit=abc", http.StatusBadRequest, messages.Page{}},
		{"?offset=-1", http.StatusBadRequest, messages.Page{}},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			repo := &fakeRepo{}
			w := do(router(repo), "GET", "/messages/c1"+tt.query, "u1", nil, "")
			if w.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", w.Code, tt.wantStatus)
			}
			if repo.page != tt.wantPage {
				t.Errorf("page = %+v, want %+v", repo.page, tt.wantPage)
			}
		})
	}
}

func TestHandleSearch(t *testing.T) {
	repo := &fakeRepo{}
	w := do(router(repo), "GET", "/messages/c1/search?query=%C3%A9cole&limit=3", "u1", nil, "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", w.Code, w.Body.String())
	}
	if repo.query != "école" || repo.page.Limit != 3 {
		t.Errorf("Search(%q, %+v)", repo.query, repo.page)
	}
}

func TestHandleDeleteAndMarkRead(t *testing.T) {
	h := router(&fakeRepo{})

	if w := do(h, "DELETE", "/messages/c1/m1", "u2", nil, ""); w.Code != http.StatusForbidden {
		t.Errorf("delete by non-sender = %d, want 403", w.Code)
	}
	if w := do(h, "DELETE", "/messages/c1/m1", "u1", nil, ""); w.Code != http.StatusOK {
		t.Errorf("delete by sender = %d, want 200", w.Code)
	}

	w := do(h, "PATCH", "/messages/c1/m1/read", "u2", nil, "")
	if w.Code != http.StatusOK {
		t.Fatalf("mark read = %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), `"readBy":["u2"]`) {
		t.Errorf("body = %s", w.Body.String())
	}
}
