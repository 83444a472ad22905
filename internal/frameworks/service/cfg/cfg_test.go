package cfg

import (
	"slices"
	"testing"
	"time"
)

type socketConfig struct {
	Path     string        `mapstructure:"path"`
	PongWait time.Duration `mapstructure:"pong_wait"`
	Origins  []string      `mapstructure:"allowed_origins"`
	Queue    int           `mapstructure:"send_queue"`
}

func (c *socketConfig) ApplyDefaults() {
	if c.Queue == 0 {
		c.Queue = 256
	}
}

func TestDecode(t *testing.T) {
	input := map[string]any{
		"path":            "/socket",
		"pong_wait":       "45s",
		"allowed_origins": []any{"http://localhost:5173"},
	}

	var c socketConfig
	if err := Decode(input, &c); err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if c.Path != "/socket" || c.PongWait != 45*time.Second {
		t.Errorf("decoded %+v", c)
	}
	if !slices.Equal(c.Origins, []string{"http://localhost:5173"}) {
		t.Errorf("origins = %v", c.Origins)
	}
	if c.Queue != 256 {
		t.Errorf("defaults not applied: queue = %d", c.Queue)
	}
}

func TestDecode_CommaSeparatedSlice(t *testing.T) {
	var c socketConfig
	if err := Decode(map[string]any{"allowed_origins": "a,b"}, &c); err != nil {
		t.Fatal(err)
	}
	if !slices.Equal(c.Origins, []string{"a", "b"}) {
		t.Errorf("origins = %v", c.Origins)
	}
}

func TestDecode_BadDuration(t *testing.T) {
	var c socketConfig
	if err := Decode(map[string]any{"pong_wait": "soon"}, &c); err == nil {
		t.Error("expected error for an unparseable duration")
	}
}

func TestDecodeWithUnused(t *testing.T) {
	var c socketConfig
	unused, err := DecodeWithUnused(map[string]any{"path": "/x", "zeta": 1, "alpha": true}, &c)
	if err != nil {
		t.Fatal(err)
	}
	if !slices.Equal(unused, []string{"alpha", "zeta"}) {
		t.Errorf("unused = %v", unused)
	}
	if c.Queue != 256 {
		t.Error("defaults not applied")
	}
}

func TestMustDecodeStrict(t *testing.T) {
	var c socketConfig
	if err := MustDecodeStrict(map[string]any{"path": "/x", "typo": 1}, &c); err == nil {
		t.Error("expected error for unused key")
	}
	if err := MustDecodeStrict(map[string]any{"path": "/x"}, &c); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}
