package service

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"social_platform/internal/domain"
	"social_platform/internal/repository"
	apperrors "social_platform/pkg/errors"
)

// channel creates a conversation of kind owned by owner with members.
func (f *fixture) channel(t *testing.T, kind domain.ConversationKind, owner uuid.UUID, members ...uuid.UUID) *domain.Conversation {
	t.Helper()
	in := CreateConversationInput{Kind: kind, Name: "general", Participants: members}
	if kind == domain.ConversationProtected {
		in.Password = "hunter2"
	}
	conv, err := f.conversations.Create(context.Background(), owner, in)
	if err != nil {
		t.Fatalf("create %s conversation: %v", kind, err)
	}
	return conv
}

func TestCreateChannelOwnerIsSoleAdmin(t *testing.T) {
	f := newFixture(t)
	o, a, b := f.user("owner"), f.user("a"), f.user("b")

	conv := f.channel(t, domain.ConversationPublic, o, a, b, a)

	if !conv.IsOwner(o) {
		t.Errorf("creator should own the conversation")
	}
	if len(conv.Admins) != 1 || !conv.Admins.Has(o) {
		t.Errorf("owner should be the only admin, got %v", conv.Admins.Slice())
	}
	if len(conv.Participants) != 3 {
		t.Errorf("expected 3 participants, got %d", len(conv.Participants))
	}
	if logs := f.audit.Logs(domain.EventTypeConversationCreated); len(logs) != 1 {
		t.Errorf("expected a creation audit entry, got %d", len(logs))
	}
}

func TestCreateDirect(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a, b, c := f.user("a"), f.user("b"), f.user("c")

	conv, err := f.conversations.Create(ctx, a, CreateConversationInput{Kind: domain.ConversationDirect, Participants: []uuid.UUID{b}})
	if err != nil {
		t.Fatalf("create direct: %v", err)
	}
	if conv.OwnerID != nil || len(conv.Admins) != 0 || len(conv.Participants) != 2 {
		t.Errorf("direct conversation should have two participants and no owner, got %+v", conv)
	}

	again, err := f.conversations.Create(ctx, b, CreateConversationInput{Kind: domain.ConversationDirect, Participants: []uuid.UUID{a}})
	if err != nil || again.ID != conv.ID {
		t.Errorf("expected the existing thread back, got %v %v", again, err)
	}

	if _, err := f.conversations.Create(ctx, a, CreateConversationInput{Kind: domain.ConversationDirect, Participants: []uuid.UUID{b, c}}); !errors.Is(err, apperrors.ErrInvalidArgument) {
		t.Errorf("three-party direct: expected ErrInvalidArgument, got %v", err)
	}
	if _, err := f.conversations.Create(ctx, a, CreateConversationInput{Kind: domain.ConversationDirect, Participants: []uuid.UUID{a}}); !errors.Is(err, apperrors.ErrSelfReference) {
		t.Errorf("self direct: expected ErrSelfReference, got %v", err)
	}
	if _, err := f.conversations.Ban(ctx, conv.ID, a, b); !errors.Is(err, apperrors.ErrInvalidState) {
		t.Errorf("moderating a direct thread: expected ErrInvalidState, got %v", err)
	}
}

func TestBanMatrix(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	o, admin, admin2, m1, m2 := f.user("o"), f.user("admin"), f.user("admin2"), f.user("m1"), f.user("m2")
	conv := f.channel(t, domain.ConversationPublic, o, admin, admin2, m1, m2)
	f.conversations.PromoteAdmin(ctx, conv.ID, o, admin)
	f.conversations.PromoteAdmin(ctx, conv.ID, o, admin2)

	cases := []struct {
		name   string
		actor  uuid.UUID
		target uuid.UUID
		want   error
	}{
		{"member bans member", m1, m2, apperrors.ErrForbidden},
		{"member bans admin", m1, admin, apperrors.ErrForbidden},
		{"member bans owner", m1, o, apperrors.ErrForbidden},
		{"admin bans admin", admin, admin2, apperrors.ErrForbidden},
		{"admin bans owner", admin, o, apperrors.ErrForbidden},
		{"owner bans self", o, o, apperrors.ErrSelfReference},
		{"admin bans member", admin, m1, nil},
		{"owner bans admin", o, admin2, nil},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.conversations.Ban(ctx, conv.ID, tc.actor, tc.target)
			if tc.want == nil {
				if err != nil {
					t.Errorf("expected success, got %v", err)
				}
				return
			}
			if !errors.Is(err, tc.want) {
				t.Errorf("expected %v, got %v", tc.want, err)
			}
		})
	}

	got, _ := f.repos.Conversation.GetByID(ctx, conv.ID)
	if got.Participants.Has(m1) || !got.Banned.Has(m1) {
		t.Errorf("m1 should be banned and removed")
	}
	if got.Admins.Has(admin2) || got.Participants.Has(admin2) {
		t.Errorf("banned admin should lose both roles")
	}
}

func TestPrivateConversationScenario(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	o, a, u := f.user("o"), f.user("a"), f.user("u")
	f.emitter.connect(u)

	conv := f.channel(t, domain.ConversationPrivate, o)
	if _, err := f.conversations.AddParticipant(ctx, conv.ID, o, a); err != nil {
		t.Fatalf("add a: %v", err)
	}
	if _, err := f.conversations.AddParticipant(ctx, conv.ID, o, u); err != nil {
		t.Fatalf("add u: %v", err)
	}
	if _, err := f.conversations.PromoteAdmin(ctx, conv.ID, o, a); err != nil {
		t.Fatalf("promote: %v", err)
	}

	updated, err := f.conversations.Ban(ctx, conv.ID, a, u)
	if err != nil {
		t.Fatalf("ban: %v", err)
	}
	if updated.Participants.Has(u) || !updated.Banned.Has(u) {
		t.Errorf("u should move from participants to banned")
	}

	events := f.emitter.received(u, domain.EventMemberBanned)
	if len(events) != 1 {
		t.Fatalf("expected one member-banned event, got %d", len(events))
	}
	payload := events[0].payload.(map[string]any)
	if payload["conversationId"] != conv.ID || payload["userId"] != u {
		t.Errorf("unexpected payload %v", payload)
	}

	if _, err := f.conversations.Ban(ctx, conv.ID, a, o); !errors.Is(err, apperrors.ErrForbidden) {
		t.Errorf("admin banning owner: expected ErrForbidden, got %v", err)
	}
}

func TestBanBlocksAddUntilUnban(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	o, u := f.user("o"), f.user("u")
	conv := f.channel(t, domain.ConversationPrivate, o, u)

	f.conversations.Ban(ctx, conv.ID, o, u)
	if _, err := f.conversations.AddParticipant(ctx, conv.ID, o, u); !errors.Is(err, apperrors.ErrBanned) {
		t.Errorf("expected ErrBanned, got %v", err)
	}

	unbanned, err := f.conversations.Unban(ctx, conv.ID, o, u)
	if err != nil {
		t.Fatalf("unban: %v", err)
	}
	if unbanned.Participants.Has(u) {
		t.Errorf("unban must not re-add the user")
	}
	if _, err := f.conversations.AddParticipant(ctx, conv.ID, o, u); err != nil {
		t.Errorf("add after unban: %v", err)
	}
	if _, err := f.conversations.Unban(ctx, conv.ID, o, u); !errors.Is(err, apperrors.ErrNotFound) {
		t.Errorf("unban of a user who is not banned: expected ErrNotFound, got %v", err)
	}
}

func TestMuteExpiresLazily(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	o, admin, u := f.user("o"), f.user("admin"), f.user("u")
	f.emitter.connect(u)
	conv := f.channel(t, domain.ConversationPublic, o, admin, u)
	f.conversations.PromoteAdmin(ctx, conv.ID, o, admin)

	if _, err := f.conversations.Mute(ctx, conv.ID, admin, u, 1); err != nil {
		t.Fatalf("mute: %v", err)
	}
	muted, err := f.conversations.IsMuted(ctx, conv.ID, u)
	if err != nil || !muted {
		t.Fatalf("expected muted right away, got %v %v", muted, err)
	}
	if ok, _ := f.conversations.CanPost(ctx, conv.ID, u); ok {
		t.Errorf("a muted user cannot post")
	}
	if _, err := f.conversations.PostMessage(ctx, conv.ID, u, "hello"); !errors.Is(err, apperrors.ErrMuted) {
		t.Errorf("expected ErrMuted, got %v", err)
	}

	f.clock.Advance(time.Second)

	muted, err = f.conversations.IsMuted(ctx, conv.ID, u)
	if err != nil || muted {
		t.Fatalf("expected mute to have expired, got %v %v", muted, err)
	}
	stored, _ := f.repos.Conversation.GetByID(ctx, conv.ID)
	if _, ok := stored.Muted[u]; ok {
		t.Errorf("expired entry should have been cleared by the lookup")
	}
	if ok, _ := f.conversations.CanPost(ctx, conv.ID, u); !ok {
		t.Errorf("user should be able to post after the mute expired")
	}

	events := f.emitter.received(u, domain.EventMemberMuted)
	if len(events) != 1 {
		t.Fatalf("expected one member-muted event, got %d", len(events))
	}
	if _, ok := events[0].payload.(map[string]any)["expiresAt"]; !ok {
		t.Errorf("member-muted payload needs expiresAt")
	}
}

func TestMutePreconditions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	o, m1, m2, outsider := f.user("o"), f.user("m1"), f.user("m2"), f.user("outsider")
	conv := f.channel(t, domain.ConversationPublic, o, m1, m2)

	if _, err := f.conversations.Mute(ctx, conv.ID, o, m1, 0); !errors.Is(err, apperrors.ErrInvalidArgument) {
		t.Errorf("zero duration: expected ErrInvalidArgument, got %v", err)
	}
	if _, err := f.conversations.Mute(ctx, conv.ID, o, m1, -5); !errors.Is(err, apperrors.ErrInvalidArgument) {
		t.Errorf("negative duration: expected ErrInvalidArgument, got %v", err)
	}
	for _, seconds := range []int64{maxMuteSeconds + 1, 10_000_000_000, math.MaxInt64} {
		if _, err := f.conversations.Mute(ctx, conv.ID, o, m1, seconds); !errors.Is(err, apperrors.ErrInvalidArgument) {
			t.Errorf("%d seconds: expected ErrInvalidArgument, got %v", seconds, err)
		}
	}
	if muted, _ := f.conversations.IsMuted(ctx, conv.ID, m1); muted {
		t.Errorf("rejected durations must not mute")
	}
	if _, err := f.conversations.Mute(ctx, conv.ID, o, m2, maxMuteSeconds); err != nil {
		t.Errorf("longest representable mute: %v", err)
	}
	if muted, _ := f.conversations.IsMuted(ctx, conv.ID, m2); !muted {
		t.Errorf("longest representable mute should be in effect")
	}
	if _, err := f.conversations.Mute(ctx, conv.ID, m1, m2, 60); !errors.Is(err, apperrors.ErrForbidden) {
		t.Errorf("member muting member: expected ErrForbidden, got %v", err)
	}
	if _, err := f.conversations.Mute(ctx, conv.ID, o, outsider, 60); !errors.Is(err, apperrors.ErrNotMember) {
		t.Errorf("muting a non-participant: expected ErrNotMember, got %v", err)
	}
}

func TestUnmuteIsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	o, u := f.user("o"), f.user("u")
	conv := f.channel(t, domain.ConversationPublic, o, u)

	f.conversations.Mute(ctx, conv.ID, o, u, 3600)
	for i := 0; i < 2; i++ {
		if _, err := f.conversations.Unmute(ctx, conv.ID, o, u); err != nil {
			t.Fatalf("unmute #%d: %v", i+1, err)
		}
	}
	if muted, _ := f.conversations.IsMuted(ctx, conv.ID, u); muted {
		t.Errorf("user should not be muted")
	}
	if logs := f.audit.Logs(domain.EventTypeMemberUnmuted); len(logs) != 1 {
		t.Errorf("only the effective unmute is audited, got %d", len(logs))
	}
}

func TestRemoveParticipantRanks(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	o, a1, a2, m := f.user("o"), f.user("a1"), f.user("a2"), f.user("m")
	conv := f.channel(t, domain.ConversationPublic, o, a1, a2, m)
	f.conversations.PromoteAdmin(ctx, conv.ID, o, a1)
	f.conversations.PromoteAdmin(ctx, conv.ID, o, a2)

	if _, err := f.conversations.RemoveParticipant(ctx, conv.ID, a1, a2); !errors.Is(err, apperrors.ErrForbidden) {
		t.Errorf("admin removing admin: expected ErrForbidden, got %v", err)
	}
	if _, err := f.conversations.RemoveParticipant(ctx, conv.ID, a1, m); err != nil {
		t.Errorf("admin removing member: %v", err)
	}
	updated, err := f.conversations.RemoveParticipant(ctx, conv.ID, o, a2)
	if err != nil {
		t.Fatalf("owner removing admin: %v", err)
	}
	if updated.Participants.Has(a2) || updated.Admins.Has(a2) {
		t.Errorf("removed admin must leave both sets")
	}
}

func TestPromoteDemote(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	o, a, m, outsider := f.user("o"), f.user("a"), f.user("m"), f.user("outsider")
	conv := f.channel(t, domain.ConversationPublic, o, a, m)

	if _, err := f.conversations.PromoteAdmin(ctx, conv.ID, o, outsider); !errors.Is(err, apperrors.ErrNotMember) {
		t.Errorf("promote outsider: expected ErrNotMember, got %v", err)
	}
	if _, err := f.conversations.PromoteAdmin(ctx, conv.ID, o, a); err != nil {
		t.Fatalf("promote: %v", err)
	}
	if _, err := f.conversations.PromoteAdmin(ctx, conv.ID, a, m); !errors.Is(err, apperrors.ErrForbidden) {
		t.Errorf("admin promoting: expected ErrForbidden, got %v", err)
	}
	if _, err := f.conversations.DemoteAdmin(ctx, conv.ID, o, m); !errors.Is(err, apperrors.ErrNotMember) {
		t.Errorf("demote non-admin: expected ErrNotMember, got %v", err)
	}
	updated, err := f.conversations.DemoteAdmin(ctx, conv.ID, o, a)
	if err != nil {
		t.Fatalf("demote: %v", err)
	}
	if updated.Admins.Has(a) || !updated.Participants.Has(a) {
		t.Errorf("demoted admin stays a participant only")
	}
}

func TestOwnerLeaveLeavesConversationOwnerless(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	o, a := f.user("o"), f.user("a")
	conv := f.channel(t, domain.ConversationPublic, o, a)
	f.conversations.PromoteAdmin(ctx, conv.ID, o, a)

	updated, err := f.conversations.Leave(ctx, conv.ID, o)
	if err != nil {
		t.Fatalf("leave: %v", err)
	}
	if updated.OwnerID != nil {
		t.Errorf("expected no owner after the owner left")
	}
	if updated.Participants.Has(o) || updated.Admins.Has(o) {
		t.Errorf("owner should be gone from both sets")
	}
	if _, err := f.conversations.Leave(ctx, conv.ID, o); !errors.Is(err, apperrors.ErrNotMember) {
		t.Errorf("second leave: expected ErrNotMember, got %v", err)
	}
}

func TestJoinByKind(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	o, u := f.user("o"), f.user("u")

	public := f.channel(t, domain.ConversationPublic, o)
	private := f.channel(t, domain.ConversationPrivate, o)
	protected := f.channel(t, domain.ConversationProtected, o)

	if _, err := f.conversations.Join(ctx, public.ID, u, ""); err != nil {
		t.Errorf("join public: %v", err)
	}
	if _, err := f.conversations.Join(ctx, private.ID, u, ""); !errors.Is(err, apperrors.ErrForbidden) {
		t.Errorf("join private: expected ErrForbidden, got %v", err)
	}
	if _, err := f.conversations.Join(ctx, protected.ID, u, "wrong"); !errors.Is(err, apperrors.ErrForbidden) {
		t.Errorf("join protected with wrong password: expected ErrForbidden, got %v", err)
	}
	if _, err := f.conversations.Join(ctx, protected.ID, u, "hunter2"); err != nil {
		t.Errorf("join protected: %v", err)
	}
	if _, err := f.conversations.AddParticipant(ctx, public.ID, u, u); !errors.Is(err, apperrors.ErrAlreadyMember) {
		t.Errorf("re-join: expected ErrAlreadyMember, got %v", err)
	}
}

func TestSetAccessAndDelete(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	o, m, u := f.user("o"), f.user("m"), f.user("u")
	conv := f.channel(t, domain.ConversationPublic, o, m)

	if _, err := f.conversations.SetAccess(ctx, conv.ID, m, domain.ConversationPrivate, ""); !errors.Is(err, apperrors.ErrForbidden) {
		t.Errorf("member changing access: expected ErrForbidden, got %v", err)
	}
	if _, err := f.conversations.SetAccess(ctx, conv.ID, o, domain.ConversationProtected, ""); !errors.Is(err, apperrors.ErrInvalidArgument) {
		t.Errorf("protected without password: expected ErrInvalidArgument, got %v", err)
	}
	updated, err := f.conversations.SetAccess(ctx, conv.ID, o, domain.ConversationProtected, "secret")
	if err != nil {
		t.Fatalf("set access: %v", err)
	}
	if updated.Kind != domain.ConversationProtected || updated.PasswordHash == nil {
		t.Errorf("expected protected conversation with a password")
	}
	if _, err := f.conversations.Join(ctx, conv.ID, u, "secret"); err != nil {
		t.Errorf("join with new password: %v", err)
	}

	if err := f.conversations.Delete(ctx, conv.ID, m); !errors.Is(err, apperrors.ErrForbidden) {
		t.Errorf("member deleting: expected ErrForbidden, got %v", err)
	}
	if err := f.conversations.Delete(ctx, conv.ID, o); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := f.conversations.Get(ctx, conv.ID, o); !errors.Is(err, apperrors.ErrNotFound) {
		t.Errorf("expected ErrNotFound after delete, got %v", err)
	}
}

func TestPostMessageFansOutToParticipants(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	o, m, outsider := f.user("o"), f.user("m"), f.user("outsider")
	f.emitter.connect(o, m, outsider)
	conv := f.channel(t, domain.ConversationPublic, o, m)

	msg, err := f.conversations.PostMessage(ctx, conv.ID, m, "  hi there ")
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	if msg.Content != "hi there" || msg.ID == 0 {
		t.Errorf("unexpected message %+v", msg)
	}
	for _, id := range []uuid.UUID{o, m} {
		if got := f.emitter.received(id, domain.EventNewMessage); len(got) != 1 {
			t.Errorf("participant %s expected new-message, got %d", id, len(got))
		}
	}
	if got := f.emitter.received(outsider, domain.EventNewMessage); len(got) != 0 {
		t.Errorf("outsider must not receive messages")
	}

	if _, err := f.conversations.PostMessage(ctx, conv.ID, outsider, "hey"); !errors.Is(err, apperrors.ErrNotMember) {
		t.Errorf("outsider posting: expected ErrNotMember, got %v", err)
	}
	if _, err := f.conversations.PostMessage(ctx, conv.ID, m, "   "); !errors.Is(err, apperrors.ErrInvalidArgument) {
		t.Errorf("empty message: expected ErrInvalidArgument, got %v", err)
	}

	f.conversations.Ban(ctx, conv.ID, o, m)
	if _, err := f.conversations.PostMessage(ctx, conv.ID, m, "let me in"); !errors.Is(err, apperrors.ErrBanned) {
		t.Errorf("banned posting: expected ErrBanned, got %v", err)
	}

	msgs, err := f.conversations.ListMessages(ctx, conv.ID, o, 0, 0)
	if err != nil || len(msgs) != 1 {
		t.Errorf("expected one stored message, got %d %v", len(msgs), err)
	}
	if _, err := f.conversations.ListMessages(ctx, conv.ID, m, 10, 0); !errors.Is(err, apperrors.ErrBanned) {
		t.Errorf("banned reader: expected ErrBanned, got %v", err)
	}
}

func TestConcurrentModerationKeepsAllChanges(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	o := f.user("o")
	members := make([]uuid.UUID, 3)
	for i := range members {
		members[i] = f.user("m" + string(rune('a'+i)))
	}
	conv := f.channel(t, domain.ConversationPublic, o, members...)
	f.conversations.maxAttempts = 50

	var wg sync.WaitGroup
	for _, m := range members {
		wg.Add(1)
		go func(target uuid.UUID) {
			defer wg.Done()
			if _, err := f.conversations.PromoteAdmin(ctx, conv.ID, o, target); err != nil {
				t.Errorf("promote %s: %v", target, err)
			}
		}(m)
	}
	wg.Wait()

	got, _ := f.repos.Conversation.GetByID(ctx, conv.ID)
	for _, m := range members {
		if !got.Admins.Has(m) {
			t.Errorf("promotion of %s was lost", m)
		}
	}
}

func TestGetHidesPrivateConversations(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	o, outsider := f.user("o"), f.user("outsider")
	private := f.channel(t, domain.ConversationPrivate, o)
	public := f.channel(t, domain.ConversationPublic, o)

	if _, err := f.conversations.Get(ctx, private.ID, outsider); !errors.Is(err, apperrors.ErrNotFound) {
		t.Errorf("expected ErrNotFound for outsider, got %v", err)
	}
	if _, err := f.conversations.Get(ctx, public.ID, outsider); err != nil {
		t.Errorf("public conversation should be visible: %v", err)
	}
	list, _ := f.conversations.ListForUser(ctx, o)
	if len(list) != 2 {
		t.Errorf("expected owner to see 2 conversations, got %d", len(list))
	}
}

// alwaysConflicting loses every optimistic update race.
type alwaysConflicting struct {
	repository.ConversationRepository
	reads int
}

func (r *alwaysConflicting) GetByID(ctx context.Context, id uuid.UUID) (*domain.Conversation, error) {
	r.reads++
	return r.ConversationRepository.GetByID(ctx, id)
}

func (r *alwaysConflicting) Update(context.Context, *domain.Conversation) error {
	return apperrors.ErrConflict
}

func TestModerationGivesUpAfterMaxAttempts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	o, m := f.user("o"), f.user("m")
	conv := f.channel(t, domain.ConversationPublic, o, m)

	repo := &alwaysConflicting{ConversationRepository: f.repos.Conversation}
	f.conversations.conversationRepo = repo
	f.conversations.maxAttempts = 4

	ops := map[string]func() error{
		"ban": func() error {
			_, err := f.conversations.Ban(ctx, conv.ID, o, m)
			return err
		},
		"promote": func() error {
			_, err := f.conversations.PromoteAdmin(ctx, conv.ID, o, m)
			return err
		},
	}
	for name, op := range ops {
		repo.reads = 0
		if err := op(); !errors.Is(err, apperrors.ErrConflict) {
			t.Errorf("%s: expected ErrConflict, got %v", name, err)
		}
		if repo.reads != 4 {
			t.Errorf("%s: expected 4 attempts, got %d", name, repo.reads)
		}
	}

	stored, _ := f.repos.Conversation.GetByID(ctx, conv.ID)
	if stored.Banned.Has(m) || stored.Admins.Has(m) {
		t.Errorf("conflicting updates must not be applied")
	}
	if logs := f.audit.Logs(domain.EventTypeMemberBanned); len(logs) != 0 {
		t.Errorf("failed ban was audited")
	}
}

// staleDirectLookup misses existing DIRECT threads for its first n lookups.
type staleDirectLookup struct {
	repository.ConversationRepository
	n int
}

func (r *staleDirectLookup) FindDirect(ctx context.Context, a, b uuid.UUID) (*domain.Conversation, error) {
	if r.n > 0 {
		r.n--
		return nil, apperrors.ErrNotFound
	}
	return r.ConversationRepository.FindDirect(ctx, a, b)
}

func TestRacingDirectCreatesShareOneThread(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a, b := f.user("a"), f.user("b")
	f.conversations.conversationRepo = &staleDirectLookup{ConversationRepository: f.repos.Conversation, n: 2}

	first, err := f.conversations.Create(ctx, a, CreateConversationInput{Kind: domain.ConversationDirect, Participants: []uuid.UUID{b}})
	if err != nil {
		t.Fatalf("first create: %v", err)
	}
	second, err := f.conversations.Create(ctx, b, CreateConversationInput{Kind: domain.ConversationDirect, Participants: []uuid.UUID{a}})
	if err != nil {
		t.Fatalf("second create: %v", err)
	}
	if second.ID != first.ID {
		t.Errorf("expected one thread for the pair, got %s and %s", first.ID, second.ID)
	}

	convs, _ := f.repos.Conversation.ListForUser(ctx, a)
	if len(convs) != 1 {
		t.Errorf("expected one stored conversation, got %d", len(convs))
	}
}
