package store_test

import (
	"slices"
	"testing"

	"github.com/vedesh-padal/tal-chat-app/internal/store"
	_ "github.com/vedesh-padal/tal-chat-app/internal/store/postgres"
	_ "github.com/vedesh-padal/tal-chat-app/internal/store/sqlite"
)

func TestAvailableDrivers(t *testing.T) {
	names := store.AvailableDrivers()
	for _, want := range []string{"postgres", "sqlite"} {
		if !slices.Contains(names, want) {
			t.Errorf("driver %q not registered (have %v)", want, names)
		}
	}
}

func TestNew_UnknownDriver(t *testing.T) {
	if _, err := store.New(&store.DriverConfig{Driver: "mongo"}); err == nil {
		t.Error("expected error for unknown driver")
	}
}

func TestPostgresDriver_RequiresDSN(t *testing.T) {
	if _, err := store.New(&store.DriverConfig{Driver: "postgres"}); err == nil {
		t.Error("expected error without dsn")
	}
}

func TestChat_HasParticipant(t *testing.T) {
	c := store.Chat{Participants: []store.ChatParticipant{{UserID: "a"}, {UserID: "b"}}}
	if !c.HasParticipant("b") || c.HasParticipant("z") {
		t.Error("HasParticipant gave a wrong answer")
	}
	if got := c.ParticipantIDs(); !slices.Equal(got, []string{"a", "b"}) {
		t.Errorf("ParticipantIDs() = %v", got)
	}
}
