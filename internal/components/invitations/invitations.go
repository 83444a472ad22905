// Package invitations implements the invitation engine: users invite each
// other, and an accepted invitation produces a symmetric connection that
// gates one-to-one chat creation.
package invitations

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/samber/lo"

	"github.com/vedesh-padal/tal-chat-app/internal/components/identity"
	"github.com/vedesh-padal/tal-chat-app/internal/platform/apperr"
	"github.com/vedesh-padal/tal-chat-app/internal/platform/logutil"
	"github.com/vedesh-padal/tal-chat-app/internal/store"
)

// Decision is the receiver's answer to an invitation.
type Decision int

const (
	Accept Decision = iota + 1
	Reject
)

// ParseDecision accepts "accept"/"accepted" and "reject"/"rejected" in any case.
func ParseDecision(s string) (Decision, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "accept", "accepted":
		return Accept, nil
	case "reject", "rejected":
		return Reject, nil
	}
	return 0, apperr.InvalidArgument("response must be accept or reject, got %q", s)
}

// ParseStatus validates a status filter, case-insensitively.
func ParseStatus(s string) (string, error) {
	status := strings.ToUpper(strings.TrimSpace(s))
	switch status {
	case store.InvitationPending, store.InvitationAccepted, store.InvitationRejected:
		return status, nil
	}
	return "", apperr.InvalidArgument("invalid invitation status %q", s)
}

// View is an invitation as seen by its receiver.
type View struct {
	From      identity.Profile `json:"from"`
	Status    string           `json:"status"`
	CreatedAt time.Time        `json:"createdAt"`
	UpdatedAt time.Time        `json:"updatedAt"`
}

// Store is the persistence the engine needs.
type Store interface {
	store.UserStore
	store.InvitationStore
}

// Option configures an Engine.
type Option func(*Engine)

// WithBackOff replaces the retry policy used when a write loses an
// optimistic-lock race.
func WithBackOff(newBackOff func() backoff.BackOff, maxTries uint) Option {
	return func(e *Engine) {
		e.newBackOff = newBackOff
		e.maxTries = maxTries
	}
}

// Engine runs invitation operations.
type Engine struct {
	store      Store
	log        *slog.Logger
	newBackOff func() backoff.BackOff
	maxTries   uint
}

func NewEngine(s Store, log *slog.Logger, opts ...Option) *Engine {
	e := &Engine{
		store: s,
		log:   logutil.NoopIfNil(log),
		newBackOff: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = 20 * time.Millisecond
			b.MaxInterval = 500 * time.Millisecond
			return b
		},
		maxTries: 5,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Send records a pending invitation from sender on receiver.
func (e *Engine) Send(ctx context.Context, senderID, receiverID string) (View, error) {
	if senderID == receiverID {
		return View{}, apperr.InvalidArgument("You cannot invite yourself")
	}
	sender, err := e.user(ctx, senderID, "Sender does not exist")
	if err != nil {
		return View{}, err
	}
	if _, err := e.user(ctx, receiverID, "Receiver does not exist"); err != nil {
		return View{}, err
	}

	inv, err := withVersion(ctx, e, receiverID, func(version int64) (*store.Invitation, error) {
		inv := &store.Invitation{ReceiverID: receiverID, SenderID: senderID, Status: store.InvitationPending}
		err := e.store.CreateInvitation(ctx, inv, version)
		if errors.Is(err, store.ErrAlreadyExists) {
			return nil, backoff.Permanent(apperr.Conflict("Invitation already sent"))
		}
		return inv, err
	})
	if err != nil {
		return View{}, err
	}
	e.log.Info("invitation sent", "sender_id", senderID, "receiver_id", receiverID)
	return viewOf(inv, sender), nil
}

// Respond resolves the invitation sender sent to responder. Accepting
// writes both connection edges in the same transaction as the status.
// A resolved invitation may be answered again; the status is overwritten.
func (e *Engine) Respond(ctx context.Context, responderID, senderID string, d Decision) (View, error) {
	status := store.InvitationAccepted
	switch d {
	case Accept:
	case Reject:
		status = store.InvitationRejected
	default:
		return View{}, apperr.InvalidArgument("unknown decision")
	}

	sender, err := e.user(ctx, senderID, "Sender does not exist")
	if err != nil {
		return View{}, err
	}
	if _, err := e.store.GetInvitation(ctx, responderID, senderID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return View{}, apperr.NotFound("Invitation does not exist")
		}
		return View{}, apperr.Internal(err, "failed to load invitation")
	}

	_, err = withVersion(ctx, e, responderID, func(version int64) (struct{}, error) {
		return struct{}{}, e.store.ResolveInvitation(ctx, responderID, senderID, status, version, d == Accept)
	})
	if err != nil {
		return View{}, err
	}

	inv, err := e.store.GetInvitation(ctx, responderID, senderID)
	if err != nil {
		return View{}, apperr.Internal(err, "failed to reload invitation")
	}
	e.log.Info("invitation resolved", "receiver_id", responderID, "sender_id", senderID, "status", status)
	return viewOf(inv, sender), nil
}

// ListByStatus returns the user's invitations with the given status.
func (e *Engine) ListByStatus(ctx context.Context, userID, status string) ([]View, error) {
	status, err := ParseStatus(status)
	if err != nil {
		return nil, err
	}
	return e.list(ctx, userID, status)
}

// ListAll returns every invitation the user received.
func (e *Engine) ListAll(ctx context.Context, userID string) ([]View, error) {
	return e.list(ctx, userID, "")
}

func (e *Engine) list(ctx context.Context, userID, status string) ([]View, error) {
	invs, err := e.store.ListInvitations(ctx, userID, status)
	if err != nil {
		return nil, apperr.Internal(err, "failed to list invitations")
	}
	senders, err := e.store.GetUsers(ctx, lo.Map(invs, func(inv store.Invitation, _ int) string { return inv.SenderID }))
	if err != nil {
		return nil, apperr.Internal(err, "failed to load senders")
	}
	byID := lo.KeyBy(senders, func(u store.User) string { return u.ID })

	views := make([]View, 0, len(invs))
	for i := range invs {
		sender, ok := byID[invs[i].SenderID]
		if !ok {
			return nil, apperr.NotFound("Sender %s does not exist", invs[i].SenderID)
		}
		views = append(views, viewOf(&invs[i], &sender))
	}
	return views, nil
}

// Connections returns the public profiles of the user's connections,
// ordered by username.
func (e *Engine) Connections(ctx context.Context, userID string) ([]identity.Profile, error) {
	ids, err := e.store.ListConnections(ctx, userID)
	if err != nil {
		return nil, apperr.Internal(err, "failed to list connections")
	}
	users, err := e.store.GetUsers(ctx, ids)
	if err != nil {
		return nil, apperr.Internal(err, "failed to load connections")
	}
	profiles := lo.Map(users, func(u store.User, _ int) identity.Profile { return identity.ProfileOf(&u) })
	slices.SortFunc(profiles, func(a, b identity.Profile) int { return strings.Compare(a.Username, b.Username) })
	return profiles, nil
}

func (e *Engine) user(ctx context.Context, id, missing string) (*store.User, error) {
	u, err := e.store.GetUser(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, apperr.NotFound("%s", missing)
	}
	if err != nil {
		return nil, apperr.Internal(err, "failed to load user")
	}
	return u, nil
}

// withVersion reads the owner's current version and runs write with it,
// retrying while the write loses the compare-and-set.
func withVersion[T any](ctx context.Context, e *Engine, ownerID string, write func(version int64) (T, error)) (T, error) {
	attempt := 0
	res, err := backoff.Retry(ctx, func() (T, error) {
		attempt++
		var zero T
		owner, err := e.store.GetUser(ctx, ownerID)
		if errors.Is(err, store.ErrNotFound) {
			return zero, backoff.Permanent(apperr.NotFound("User does not exist"))
		}
		if err != nil {
			return zero, backoff.Permanent(err)
		}
		res, err := write(owner.Version)
		if errors.Is(err, store.ErrVersionConflict) {
			e.log.Debug("invitation write lost a race, retrying", "owner_id", ownerID, "attempt", attempt)
			return zero, err
		}
		if err != nil {
			return zero, backoff.Permanent(err)
		}
		return res, nil
	}, backoff.WithBackOff(e.newBackOff()), backoff.WithMaxTries(e.maxTries))

	switch {
	case err == nil:
		return res, nil
	case errors.Is(err, store.ErrVersionConflict):
		return res, apperr.Conflict("invitations were modified concurrently, please retry")
	case errors.Is(err, store.ErrNotFound):
		return res, apperr.NotFound("Invitation does not exist")
	}
	var ae *apperr.Error
	if errors.As(err, &ae) {
		return res, ae
	}
	return res, apperr.Internal(err, "failed to update invitations")
}

func viewOf(inv *store.Invitation, sender *store.User) View {
	return View{
		From:      identity.ProfileOf(sender),
		Status:    inv.Status,
		CreatedAt: time.UnixMilli(inv.CreatedAt).UTC(),
		UpdatedAt: time.UnixMilli(inv.UpdatedAt).UTC(),
	}
}
