package attachments

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/vedesh-padal/tal-chat-app/internal/platform/apperr"
)

func newLocal(t *testing.T, max int64) *Local {
	t.Helper()
	l, err := NewLocal(Config{Dir: t.TempDir(), PublicOrigin: "http://localhost:8080/", MaxFileBytes: max})
	if err != nil {
		t.Fatalf("NewLocal failed: %v", err)
	}
	l.now = func() time.Time { return time.UnixMilli(1700000000000) }
	return l
}

func TestFileName(t *testing.T) {
	l := newLocal(t, 0)
	tests := []struct {
		original string
		pattern  string
	}{
		{"My Photo.PNG", `^my-photo1700000000000\d{1,6}\.PNG$`},
		{"archive.tar.gz", `^archive1700000000000\d{1,6}\.gz$`},
		{"README", `^readme1700000000000\d{1,6}$`},
		{"../../etc/passwd", `^passwd1700000000000\d{1,6}$`},
	}
	for _, tt := range tests {
		t.Run(tt.original, func(t *testing.T) {
			got := l.fileName(tt.original)
			if !regexp.MustCompile(tt.pattern).MatchString(got) {
				t.Errorf("fileName(%q) = %q, want match %s", tt.original, got, tt.pattern)
			}
		})
	}
}

func TestStore(t *testing.T) {
	l := newLocal(t, 0)
	png := append([]byte("\x89PNG\r\n\x1a\n"), bytes.Repeat([]byte{0}, 64)...)

	st, err := l.Store(context.Background(), bytes.NewReader(png), "pic.png")
	if err != nil {
		t.Fatalf("Store failed: %v", err)
	}
	if st.ContentType != "image/png" {
		t.Errorf("expected image/png, got %q", st.ContentType)
	}
	if st.Size != int64(len(png)) {
		t.Errorf("expected size %d, got %d", len(png), st.Size)
	}
	if want := "http://localhost:8080/api/v1/files/" + st.Name; st.URL != want {
		t.Errorf("URL = %q, want %q", st.URL, want)
	}
	data, err := os.ReadFile(st.LocalPath)
	if err != nil || !bytes.Equal(data, png) {
		t.Fatalf("stored content mismatch: %v", err)
	}

	f, info, err := l.Open(st.Name)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	f.Close()
	if info.Size() != st.Size {
		t.Errorf("Open size = %d", info.Size())
	}

	if err := l.Remove(context.Background(), st.LocalPath); err != nil {
		t.Fatalf("Remove failed: %v", err)
	}
	if err := l.Remove(context.Background(), st.LocalPath); err != nil {
		t.Errorf("removing a missing file must succeed: %v", err)
	}
}

func TestStore_TooLarge(t *testing.T) {
	l := newLocal(t, 10)
	_, err := l.Store(context.Background(), strings.NewReader(strings.Repeat("x", 11)), "big.txt")
	if !apperr.IsKind(err, apperr.KindInvalidArgument) {
		t.Fatalf("expected InvalidArgument, got %v", err)
	}
	entries, _ := os.ReadDir(l.Dir())
	if len(entries) != 0 {
		t.Errorf("oversized upload left %d files behind", len(entries))
	}

	if _, err := l.Store(context.Background(), strings.NewReader(strings.Repeat("x", 10)), "ok.txt"); err != nil {
		t.Errorf("file at the limit rejected: %v", err)
	}
}

func TestOpen_RejectsTraversal(t *testing.T) {
	l := newLocal(t, 0)
	for _, name := range []string{"", "../secret", ".hidden", "a/b"} {
		if _, _, err := l.Open(name); !apperr.IsKind(err, apperr.KindNotFound) {
			t.Errorf("Open(%q) = %v, want NotFound", name, err)
		}
	}
}

func TestRemove_RefusesOutsideDir(t *testing.T) {
	l := newLocal(t, 0)
	outside := filepath.Join(t.TempDir(), "keep.txt")
	if err := os.WriteFile(outside, []byte("x"), 0o600); err != nil {
		t.Fatal(err)
	}
	if err := l.Remove(context.Background(), outside); err == nil {
		t.Error("expected refusal for a path outside the dir")
	}
	if _, err := os.Stat(outside); err != nil {
		t.Errorf("outside file was touched: %v", err)
	}
}
