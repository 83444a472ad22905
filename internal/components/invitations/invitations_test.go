package invitations_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/vedesh-padal/tal-chat-app/internal/components/invitations"
	"github.com/vedesh-padal/tal-chat-app/internal/platform/apperr"
	"github.com/vedesh-padal/tal-chat-app/internal/store"
	"github.com/vedesh-padal/tal-chat-app/internal/store/testutil"
)

func newEngine(t *testing.T) (*invitations.Engine, store.Store) {
	t.Helper()
	s := testutil.OpenSQLite(t)
	e := invitations.NewEngine(s, nil, invitations.WithBackOff(func() backoff.BackOff {
		return backoff.NewConstantBackOff(time.Millisecond)
	}, 50))
	return e, s
}

func TestSend(t *testing.T) {
	e, s := newEngine(t)
	ctx := context.Background()
	a := testutil.CreateUser(t, s, "alice")
	b := testutil.CreateUser(t, s, "bob")

	v, err := e.Send(ctx, a.ID, b.ID)
	if err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	if v.From.ID != a.ID || v.Status != store.InvitationPending {
		t.Errorf("unexpected view %+v", v)
	}

	if _, err := e.Send(ctx, a.ID, b.ID); !apperr.IsKind(err, apperr.KindConflict) {
		t.Errorf("second send: expected Conflict, got %v", err)
	}
	all, err := e.ListAll(ctx, b.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 1 {
		t.Errorf("expected exactly one invitation, got %d", len(all))
	}

	if _, err := e.Send(ctx, a.ID, "missing"); !apperr.IsKind(err, apperr.KindNotFound) {
		t.Errorf("expected NotFound for missing receiver, got %v", err)
	}
	if _, err := e.Send(ctx, a.ID, a.ID); !apperr.IsKind(err, apperr.KindInvalidArgument) {
		t.Errorf("expected InvalidArgument for self invite, got %v", err)
	}
}

func TestRespond_AcceptIsSymmetric(t *testing.T) {
	e, s := newEngine(t)
	ctx := context.Background()
	a := testutil.CreateUser(t, s, "alice")
	b := testutil.CreateUser(t, s, "bob")

	if _, err := e.Send(ctx, a.ID, b.ID); err != nil {
		t.Fatal(err)
	}
	v, err := e.Respond(ctx, b.ID, a.ID, invitations.Accept)
	if err != nil {
		t.Fatalf("Respond failed: %v", err)
	}
	if v.Status != store.InvitationAccepted {
		t.Errorf("expected ACCEPTED, got %s", v.Status)
	}

	aConns, _ := e.Connections(ctx, a.ID)
	bConns, _ := e.Connections(ctx, b.ID)
	if len(aConns) != 1 || aConns[0].ID != b.ID {
		t.Errorf("alice connections = %+v", aConns)
	}
	if len(bConns) != 1 || bConns[0].ID != a.ID {
		t.Errorf("bob connections = %+v", bConns)
	}
}

func TestRespond_RejectThenAccept(t *testing.T) {
	e, s := newEngine(t)
	ctx := context.Background()
	a := testutil.CreateUser(t, s, "alice")
	b := testutil.CreateUser(t, s, "bob")

	if _, err := e.Send(ctx, a.ID, b.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := e.Respond(ctx, b.ID, a.ID, invitations.Reject); err != nil {
		t.Fatal(err)
	}
	if ok, _ := s.IsConnected(ctx, a.ID, b.ID); ok {
		t.Fatal("reject must not connect")
	}

	// Resolved invitations may be answered again.
	if _, err := e.Respond(ctx, b.ID, a.ID, invitations.Accept); err != nil {
		t.Fatalf("re-accept failed: %v", err)
	}
	if ok, _ := s.IsConnected(ctx, a.ID, b.ID); !ok {
		t.Error("re-accept should connect")
	}
}

func TestRespond_Errors(t *testing.T) {
	e, s := newEngine(t)
	ctx := context.Background()
	a := testutil.CreateUser(t, s, "alice")
	b := testutil.CreateUser(t, s, "bob")

	if _, err := e.Respond(ctx, b.ID, "missing", invitations.Accept); !apperr.IsKind(err, apperr.KindNotFound) {
		t.Errorf("missing sender: expected NotFound, got %v", err)
	}
	if _, err := e.Respond(ctx, b.ID, a.ID, invitations.Accept); !apperr.IsKind(err, apperr.KindNotFound) {
		t.Errorf("missing invitation: expected NotFound, got %v", err)
	}
	if _, err := invitations.ParseDecision("maybe"); !apperr.IsKind(err, apperr.KindInvalidArgument) {
		t.Errorf("expected InvalidArgument for unknown decision, got %v", err)
	}
}

func TestListByStatus(t *testing.T) {
	e, s := newEngine(t)
	ctx := context.Background()
	a := testutil.CreateUser(t, s, "alice")
	b := testutil.CreateUser(t, s, "bob")
	c := testutil.CreateUser(t, s, "carol")

	for _, sender := range []string{a.ID, c.ID} {
		if _, err := e.Send(ctx, sender, b.ID); err != nil {
			t.Fatal(err)
		}
	}
	if _, err := e.Respond(ctx, b.ID, c.ID, invitations.Accept); err != nil {
		t.Fatal(err)
	}

	pending, err := e.ListByStatus(ctx, b.ID, "pending")
	if err != nil {
		t.Fatal(err)
	}
	if len(pending) != 1 || pending[0].From.ID != a.ID {
		t.Errorf("pending = %+v", pending)
	}
	accepted, _ := e.ListByStatus(ctx, b.ID, "ACCEPTED")
	if len(accepted) != 1 || accepted[0].From.Username != "carol" {
		t.Errorf("accepted = %+v", accepted)
	}

	if _, err := e.ListByStatus(ctx, b.ID, "archived"); !apperr.IsKind(err, apperr.KindInvalidArgument) {
		t.Errorf("expected InvalidArgument, got %v", err)
	}
}

func TestSend_ConcurrentSendersAllLand(t *testing.T) {
	e, s := newEngine(t)
	ctx := context.Background()
	receiver := testutil.CreateUser(t, s, "popular")

	const n = 6
	senders := make([]*store.User, n)
	for i := range senders {
		senders[i] = testutil.CreateUser(t, s, "fan"+string(rune('a'+i)))
	}

	var wg sync.WaitGroup
	errs := make(chan error, n)
	for _, u := range senders {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			if _, err := e.Send(ctx, id, receiver.ID); err != nil {
				errs <- err
			}
		}(u.ID)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Errorf("concurrent send failed: %v", err)
	}

	all, err := e.ListAll(ctx, receiver.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != n {
		t.Errorf("expected %d invitations, got %d", n, len(all))
	}
	got, _ := s.GetUser(ctx, receiver.ID)
	if got.Version != n {
		t.Errorf("expected version %d, got %d", n, got.Version)
	}
}
