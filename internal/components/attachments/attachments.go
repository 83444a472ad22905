// Package attachments stores message attachment files on local disk and
// serves them back under the public files route.
package attachments

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"math/rand/v2"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"

	"github.com/vedesh-padal/tal-chat-app/internal/platform/apperr"
)

// FilesPath is the route prefix under which stored files are served.
const FilesPath = "/api/v1/files/"

// DefaultMaxFileBytes matches the upload limit of the web client.
const DefaultMaxFileBytes = 5 * 1000 * 1000

// sniffLen is how much of the head of a file is kept for type detection.
const sniffLen = 3072

// Stored describes a file that was written.
type Stored struct {
	Name        string
	URL         string
	LocalPath   string
	ContentType string
	Size        int64
}

// Storage is the attachment store contract used by the message repository.
type Storage interface {
	// Store writes r under a fresh name derived from originalName.
	Store(ctx context.Context, r io.Reader, originalName string) (Stored, error)
	// Remove deletes a stored file. A missing file is not an error.
	Remove(ctx context.Context, localPath string) error
}

// Config configures the local driver.
type Config struct {
	Dir          string
	PublicOrigin string
	MaxFileBytes int64
}

// Local keeps files in a single directory.
type Local struct {
	dir     string
	origin  string
	maxSize int64
	now     func() time.Time
}

// NewLocal creates the directory if needed.
func NewLocal(cfg Config) (*Local, error) {
	if cfg.Dir == "" {
		return nil, errors.New("attachments dir is required")
	}
	dir, err := filepath.Abs(cfg.Dir)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("failed to create attachments dir: %w", err)
	}
	if cfg.MaxFileBytes <= 0 {
		cfg.MaxFileBytes = DefaultMaxFileBytes
	}
	return &Local{
		dir:     dir,
		origin:  strings.TrimRight(cfg.PublicOrigin, "/"),
		maxSize: cfg.MaxFileBytes,
		now:     time.Now,
	}, nil
}

// Dir returns the absolute storage directory.
func (l *Local) Dir() string { return l.dir }

func (l *Local) Store(ctx context.Context, r io.Reader, originalName string) (Stored, error) {
	if err := ctx.Err(); err != nil {
		return Stored{}, err
	}

	head := make([]byte, sniffLen)
	n, err := io.ReadFull(r, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return Stored{}, apperr.Internal(err, "failed to read upload")
	}
	head = head[:n]

	name := l.fileName(originalName)
	path := filepath.Join(l.dir, name)
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o640)
	if err != nil {
		return Stored{}, apperr.Internal(err, "failed to store attachment")
	}

	body := io.MultiReader(bytes.NewReader(head), r)
	written, err := io.Copy(f, io.LimitReader(body, l.maxSize+1))
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err == nil && written > l.maxSize {
		err = apperr.InvalidArgument("file %q exceeds the %d byte limit", originalName, l.maxSize)
	}
	if err != nil {
		os.Remove(path)
		if apperr.IsKind(err, apperr.KindInvalidArgument) {
			return Stored{}, err
		}
		return Stored{}, apperr.Internal(err, "failed to store attachment")
	}

	return Stored{
		Name:        name,
		URL:         l.origin + FilesPath + url.PathEscape(name),
		LocalPath:   path,
		ContentType: mimetype.Detect(head).String(),
		Size:        written,
	}, nil
}

// fileName lowercases the original base name, replaces spaces with dashes,
// then appends the upload time and a random suffix before the extension.
func (l *Local) fileName(original string) string {
	original = filepath.Base(filepath.ToSlash(original))
	if original == "." || original == "/" {
		original = ""
	}
	ext := ""
	if i := strings.LastIndex(original, "."); i >= 0 {
		ext = original[i:]
	}
	stem := strings.ReplaceAll(strings.ToLower(original), " ", "-")
	stem, _, _ = strings.Cut(stem, ".")
	return stem + strconv.FormatInt(l.now().UnixMilli(), 10) + strconv.Itoa(1+rand.IntN(100000)) + ext
}

func (l *Local) Remove(_ context.Context, localPath string) error {
	if localPath == "" {
		return nil
	}
	rel, err := filepath.Rel(l.dir, localPath)
	if err != nil || rel == "." || strings.HasPrefix(rel, "..") {
		return fmt.Errorf("refusing to remove %q outside the attachments dir", localPath)
	}
	if err := os.Remove(localPath); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

// Open returns a stored file by name for serving.
func (l *Local) Open(name string) (*os.File, fs.FileInfo, error) {
	if name == "" || name != filepath.Base(name) || strings.HasPrefix(name, ".") {
		return nil, nil, apperr.NotFound("file does not exist")
	}
	f, err := os.Open(filepath.Join(l.dir, name))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil, apperr.NotFound("file does not exist")
	}
	if err != nil {
		return nil, nil, apperr.Internal(err, "failed to open file")
	}
	info, err := f.Stat()
	if err != nil || info.IsDir() {
		f.Close()
		return nil, nil, apperr.NotFound("file does not exist")
	}
	return f, info, nil
}

var _ Storage = (*Local)(nil)
