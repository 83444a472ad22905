package identity

import (
	"errors"
	"strings"
	"testing"
)

func TestHasher_RoundTrip(t *testing.T) {
	h := NewHasher(FastHashParams)

	hash, err := h.Hash("correct horse")
	if err != nil {
		t.Fatalf("Hash failed: %v", err)
	}
	if !strings.HasPrefix(hash, "$argon2id$v=19$") {
		t.Errorf("unexpected encoding %q", hash)
	}
	if err := h.Verify(hash, "correct horse"); err != nil {
		t.Errorf("Verify rejected the right password: %v", err)
	}
	if err := h.Verify(hash, "battery staple"); !errors.Is(err, ErrInvalidPassword) {
		t.Errorf("expected ErrInvalidPassword, got %v", err)
	}
}

func TestHasher_VerifiesOtherParams(t *testing.T) {
	hash, err := NewHasher(FastHashParams).Hash("pw")
	if err != nil {
		t.Fatal(err)
	}
	// Parameters are read back from the encoded hash.
	if err := NewHasher(DefaultHashParams).Verify(hash, "pw"); err != nil {
		t.Errorf("Verify failed across parameter sets: %v", err)
	}
}

func TestHasher_RejectsMalformed(t *testing.T) {
	h := NewHasher(FastHashParams)
	for _, enc := range []string{"", "plain", "$bcrypt$x$y$z$w", "$argon2id$v=19$m=x$salt$hash"} {
		if err := h.Verify(enc, "pw"); !errors.Is(err, ErrInvalidPassword) {
			t.Errorf("Verify(%q) = %v, want ErrInvalidPassword", enc, err)
		}
	}
}
