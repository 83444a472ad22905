// Package files serves stored attachment files.
package files

import (
	"io/fs"
	"net/http"
	"os"

	"github.com/go-chi/chi/v5"

	"github.com/vedesh-padal/tal-chat-app/internal/components/api"
)

// Opener resolves a stored file name.
type Opener interface {
	Open(name string) (*os.File, fs.FileInfo, error)
}

// Handler serves GET /files/{name}.
type Handler struct {
	files Opener
}

func NewHandler(files Opener) *Handler {
	return &Handler{files: files}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f, info, err := h.files.Open(chi.URLParam(r, "name"))
	if err != nil {
		api.WriteError(w, r, err)
		return
	}
	defer f.Close()

	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.Header().Set("Cache-Control", "private, max-age=86400")
	http.ServeContent(w, r, info.Name(), info.ModTime(), f)
}
