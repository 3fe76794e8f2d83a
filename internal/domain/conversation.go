package domain

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	apperrors "social_platform/pkg/errors"
)

type ConversationKind string

const (
	ConversationDirect    ConversationKind = "DIRECT"
	ConversationPublic    ConversationKind = "PUBLIC"
	ConversationPrivate   ConversationKind = "PRIVATE"
	ConversationProtected ConversationKind = "PROTECTED"
)

func (k ConversationKind) Valid() bool {
	switch k {
	case ConversationDirect, ConversationPublic, ConversationPrivate, ConversationProtected:
		return true
	}
	return false
}

type Role string

const (
	RoleOwner  Role = "OWNER"
	RoleAdmin  Role = "ADMIN"
	RoleMember Role = "MEMBER"
	RoleNone   Role = ""
)

// Rank orders roles for moderation. Non-participants rank below members.
func Rank(r Role) int {
	switch r {
	case RoleOwner:
		return 2
	case RoleAdmin:
		return 1
	case RoleMember:
		return 0
	}
	return -1
}

// CanModerate is the authorization predicate for every action one user takes
// against another: the actor must be at least an admin and strictly outrank
// the target. The owner is therefore untouchable by anyone else.
func CanModerate(actor, target Role) bool {
	return Rank(actor) >= Rank(RoleAdmin) && Rank(actor) > Rank(target)
}

// UserSet is a set of user ids, serialized as a sorted JSON array.
type UserSet map[uuid.UUID]struct{}

func NewUserSet(ids ...uuid.UUID) UserSet {
	s := make(UserSet, len(ids))
	for _, id := range ids {
		s[id] = struct{}{}
	}
	return s
}

func (s UserSet) Has(id uuid.UUID) bool {
	_, ok := s[id]
	return ok
}

func (s UserSet) Add(id uuid.UUID)    { s[id] = struct{}{} }
func (s UserSet) Remove(id uuid.UUID) { delete(s, id) }

func (s UserSet) Slice() []uuid.UUID {
	out := make([]uuid.UUID, 0, len(s))
	for id := range s {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].String() < out[j].String() })
	return out
}

func (s UserSet) Clone() UserSet {
	out := make(UserSet, len(s))
	for id := range s {
		out[id] = struct{}{}
	}
	return out
}

func (s UserSet) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Slice())
}

func (s *UserSet) UnmarshalJSON(data []byte) error {
	var ids []uuid.UUID
	if err := json.Unmarshal(data, &ids); err != nil {
		return err
	}
	*s = NewUserSet(ids...)
	return nil
}

type Conversation struct {
	ID           uuid.UUID               `json:"id"`
	Kind         ConversationKind        `json:"kind"`
	Name         string                  `json:"name,omitempty"`
	OwnerID      *uuid.UUID              `json:"owner_id,omitempty"`
	Admins       UserSet                 `json:"admins"`
	Participants UserSet                 `json:"participants"`
	Banned       UserSet                 `json:"banned"`
	Muted        map[uuid.UUID]time.Time `json:"muted"`
	PasswordHash *string                 `json:"-"`
	Version      int64                   `json:"version"`
	CreatedAt    time.Time               `json:"created_at"`
	UpdatedAt    time.Time               `json:"updated_at"`
}

// NewDirectConversation builds a two-party thread with no owner.
func NewDirectConversation(a, b uuid.UUID, now time.Time) (*Conversation, error) {
	if a == b {
		return nil, fmt.Errorf("%w: a direct conversation needs two distinct users", apperrors.ErrSelfReference)
	}
	return &Conversation{
		ID:           uuid.New(),
		Kind:         ConversationDirect,
		Admins:       NewUserSet(),
		Participants: NewUserSet(a, b),
		Banned:       NewUserSet(),
		Muted:        make(map[uuid.UUID]time.Time),
		CreatedAt:    now,
		UpdatedAt:    now,
	}, nil
}

// DirectKey identifies the user pair of a DIRECT conversation regardless of
// who opened it. It is empty for every other kind.
func (c *Conversation) DirectKey() string {
	if c.Kind != ConversationDirect {
		return ""
	}
	ids := c.Participants.Slice()
	if len(ids) != 2 {
		return ""
	}
	return ids[0].String() + ":" + ids[1].String()
}

// NewChannel builds a PUBLIC, PRIVATE or PROTECTED conversation. The owner is
// the sole initial admin.
func NewChannel(kind ConversationKind, name string, ownerID uuid.UUID, participants []uuid.UUID, now time.Time) (*Conversation, error) {
	if !kind.Valid() || kind == ConversationDirect {
		return nil, fmt.Errorf("%w: unsupported channel kind %q", apperrors.ErrInvalidArgument, kind)
	}
	owner := ownerID
	c := &Conversation{
		ID:           uuid.New(),
		Kind:         kind,
		Name:         name,
		OwnerID:      &owner,
		Admins:       NewUserSet(ownerID),
		Participants: NewUserSet(ownerID),
		Banned:       NewUserSet(),
		Muted:        make(map[uuid.UUID]time.Time),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	for _, id := range participants {
		c.Participants.Add(id)
	}
	return c, nil
}

func (c *Conversation) Clone() *Conversation {
	out := *c
	if c.OwnerID != nil {
		owner := *c.OwnerID
		out.OwnerID = &owner
	}
	if c.PasswordHash != nil {
		hash := *c.PasswordHash
		out.PasswordHash = &hash
	}
	out.Admins = c.Admins.Clone()
	out.Participants = c.Participants.Clone()
	out.Banned = c.Banned.Clone()
	out.Muted = make(map[uuid.UUID]time.Time, len(c.Muted))
	for id, until := range c.Muted {
		out.Muted[id] = until
	}
	return &out
}

func (c *Conversation) IsOwner(userID uuid.UUID) bool {
	return c.OwnerID != nil && *c.OwnerID == userID
}

func (c *Conversation) RoleOf(userID uuid.UUID) Role {
	if !c.Participants.Has(userID) {
		return RoleNone
	}
	if c.IsOwner(userID) {
		return RoleOwner
	}
	if c.Admins.Has(userID) {
		return RoleAdmin
	}
	return RoleMember
}

func (c *Conversation) requireChannel() error {
	if c.Kind == ConversationDirect {
		return fmt.Errorf("%w: direct conversations have no membership management", apperrors.ErrInvalidState)
	}
	return nil
}

// authorize runs the rank check for actor acting on target.
func (c *Conversation) authorize(actorID, targetID uuid.UUID) error {
	if actorID == targetID {
		return apperrors.ErrSelfReference
	}
	actor, target := c.RoleOf(actorID), c.RoleOf(targetID)
	if Rank(actor) < Rank(RoleAdmin) {
		return fmt.Errorf("%w: only the owner or an admin can do this", apperrors.ErrForbidden)
	}
	if !CanModerate(actor, target) {
		return fmt.Errorf("%w: target outranks or equals the actor", apperrors.ErrForbidden)
	}
	return nil
}

func (c *Conversation) requireModerator(actorID uuid.UUID) error {
	if Rank(c.RoleOf(actorID)) < Rank(RoleAdmin) {
		return fmt.Errorf("%w: only the owner or an admin can do this", apperrors.ErrForbidden)
	}
	return nil
}

func (c *Conversation) admit(targetID uuid.UUID) error {
	if c.Participants.Has(targetID) {
		return apperrors.ErrAlreadyMember
	}
	if c.Banned.Has(targetID) {
		return apperrors.ErrBanned
	}
	c.Participants.Add(targetID)
	return nil
}

// AddParticipant lets a moderator add anyone, and lets a user add themselves
// to a PUBLIC conversation.
func (c *Conversation) AddParticipant(actorID, targetID uuid.UUID) error {
	if err := c.requireChannel(); err != nil {
		return err
	}
	openJoin := actorID == targetID && c.Kind == ConversationPublic
	if !openJoin && Rank(c.RoleOf(actorID)) < Rank(RoleAdmin) {
		return fmt.Errorf("%w: only the owner or an admin can add participants", apperrors.ErrForbidden)
	}
	return c.admit(targetID)
}

// Join is a self-join. passwordOK reports whether the caller already verified
// the password of a PROTECTED conversation.
func (c *Conversation) Join(userID uuid.UUID, passwordOK bool) error {
	if err := c.requireChannel(); err != nil {
		return err
	}
	switch c.Kind {
	case ConversationPrivate:
		return fmt.Errorf("%w: private conversations are invite only", apperrors.ErrForbidden)
	case ConversationProtected:
		if !passwordOK {
			return fmt.Errorf("%w: wrong password", apperrors.ErrForbidden)
		}
	}
	return c.admit(userID)
}

func (c *Conversation) RemoveParticipant(actorID, targetID uuid.UUID) error {
	if err := c.requireChannel(); err != nil {
		return err
	}
	if err := c.authorize(actorID, targetID); err != nil {
		return err
	}
	if !c.Participants.Has(targetID) {
		return apperrors.ErrNotMember
	}
	c.drop(targetID)
	return nil
}

func (c *Conversation) drop(userID uuid.UUID) {
	c.Participants.Remove(userID)
	c.Admins.Remove(userID)
	delete(c.Muted, userID)
}

func (c *Conversation) PromoteAdmin(actorID, targetID uuid.UUID) error {
	if err := c.requireChannel(); err != nil {
		return err
	}
	if !c.IsOwner(actorID) || !c.Participants.Has(actorID) {
		return fmt.Errorf("%w: only the owner can promote admins", apperrors.ErrForbidden)
	}
	if !c.Participants.Has(targetID) {
		return apperrors.ErrNotMember
	}
	if c.Admins.Has(targetID) {
		return fmt.Errorf("%w: user is already an admin", apperrors.ErrAlreadyExists)
	}
	c.Admins.Add(targetID)
	return nil
}

func (c *Conversation) DemoteAdmin(actorID, targetID uuid.UUID) error {
	if err := c.requireChannel(); err != nil {
		return err
	}
	if !c.IsOwner(actorID) || !c.Participants.Has(actorID) {
		return fmt.Errorf("%w: only the owner can demote admins", apperrors.ErrForbidden)
	}
	if actorID == targetID {
		return fmt.Errorf("%w: the owner cannot demote themselves", apperrors.ErrForbidden)
	}
	if !c.Admins.Has(targetID) {
		return fmt.Errorf("%w: user is not an admin", apperrors.ErrNotMember)
	}
	c.Admins.Remove(targetID)
	return nil
}

// Leave removes the user. An owner who leaves leaves the conversation
// ownerless; nobody is promoted in their place.
func (c *Conversation) Leave(userID uuid.UUID) error {
	if err := c.requireChannel(); err != nil {
		return err
	}
	if !c.Participants.Has(userID) {
		return apperrors.ErrNotMember
	}
	c.drop(userID)
	if c.IsOwner(userID) {
		c.OwnerID = nil
	}
	return nil
}

func (c *Conversation) Ban(actorID, targetID uuid.UUID) error {
	if err := c.requireChannel(); err != nil {
		return err
	}
	if err := c.authorize(actorID, targetID); err != nil {
		return err
	}
	if c.Banned.Has(targetID) {
		return fmt.Errorf("%w: user is already banned", apperrors.ErrAlreadyExists)
	}
	c.drop(targetID)
	c.Banned.Add(targetID)
	return nil
}

// Unban lifts the ban; the user is not re-added to the participants.
func (c *Conversation) Unban(actorID, targetID uuid.UUID) error {
	if err := c.requireChannel(); err != nil {
		return err
	}
	if err := c.requireModerator(actorID); err != nil {
		return err
	}
	if !c.Banned.Has(targetID) {
		return fmt.Errorf("%w: user is not banned", apperrors.ErrNotFound)
	}
	c.Banned.Remove(targetID)
	return nil
}

func (c *Conversation) Mute(actorID, targetID uuid.UUID, duration time.Duration, now time.Time) (time.Time, error) {
	if err := c.requireChannel(); err != nil {
		return time.Time{}, err
	}
	if duration <= 0 {
		return time.Time{}, fmt.Errorf("%w: mute duration must be positive", apperrors.ErrInvalidArgument)
	}
	if err := c.authorize(actorID, targetID); err != nil {
		return time.Time{}, err
	}
	if !c.Participants.Has(targetID) {
		return time.Time{}, apperrors.ErrNotMember
	}
	until := now.Add(duration)
	c.Muted[targetID] = until
	return until, nil
}

// Unmute reports whether an entry was removed. Removing nothing is not an
// error.
func (c *Conversation) Unmute(actorID, targetID uuid.UUID) (bool, error) {
	if err := c.requireChannel(); err != nil {
		return false, err
	}
	if err := c.requireModerator(actorID); err != nil {
		return false, err
	}
	if _, ok := c.Muted[targetID]; !ok {
		return false, nil
	}
	delete(c.Muted, targetID)
	return true, nil
}

// MuteState reports whether userID is muted at now, and whether an expired
// entry is still stored and should be cleared.
func (c *Conversation) MuteState(userID uuid.UUID, now time.Time) (muted, stale bool) {
	until, ok := c.Muted[userID]
	if !ok {
		return false, false
	}
	if until.After(now) {
		return true, false
	}
	return false, true
}

// ClearExpiredMutes drops every mute entry that is no longer active.
func (c *Conversation) ClearExpiredMutes(now time.Time) int {
	n := 0
	for id, until := range c.Muted {
		if !until.After(now) {
			delete(c.Muted, id)
			n++
		}
	}
	return n
}

// CheckPost returns nil when userID may post at now.
func (c *Conversation) CheckPost(userID uuid.UUID, now time.Time) error {
	if c.Banned.Has(userID) {
		return apperrors.ErrBanned
	}
	if !c.Participants.Has(userID) {
		return apperrors.ErrNotMember
	}
	if muted, _ := c.MuteState(userID, now); muted {
		return apperrors.ErrMuted
	}
	return nil
}

func (c *Conversation) CanPost(userID uuid.UUID, now time.Time) bool {
	return c.CheckPost(userID, now) == nil
}

// SetAccess changes the kind of a channel. passwordHash must be set when the
// new kind is PROTECTED and is dropped otherwise.
func (c *Conversation) SetAccess(actorID uuid.UUID, kind ConversationKind, passwordHash *string) error {
	if err := c.requireChannel(); err != nil {
		return err
	}
	if !c.IsOwner(actorID) || !c.Participants.Has(actorID) {
		return fmt.Errorf("%w: only the owner can change access", apperrors.ErrForbidden)
	}
	if !kind.Valid() || kind == ConversationDirect {
		return fmt.Errorf("%w: unsupported channel kind %q", apperrors.ErrInvalidArgument, kind)
	}
	if kind == ConversationProtected && passwordHash == nil {
		return fmt.Errorf("%w: protected conversations need a password", apperrors.ErrInvalidArgument)
	}
	c.Kind = kind
	if kind == ConversationProtected {
		c.PasswordHash = passwordHash
	} else {
		c.PasswordHash = nil
	}
	return nil
}
