// Package storage defines the transactional store that backs profiles,
// groups, interactions, and friendships.
package storage

import (
	"context"
	"time"

	"github.com/papercomputeco/rapport/pkg/social"
)

// ProfileStore persists user profiles. Returned profiles carry their groups
// in membership order.
type ProfileStore interface {
	// GetProfile returns the profile for userID or a social.NotFoundError.
	GetProfile(ctx context.Context, userID string) (*social.UserProfile, error)

	// ListProfiles returns every profile, or only members of groupID when it
	// is non-empty, ordered by user id.
	ListProfiles(ctx context.Context, groupID string) ([]*social.UserProfile, error)

	// PutProfile creates or replaces a profile and sets its memberships to
	// p.Groups. Unknown groups fail with social.ErrUnknownGroup.
	PutProfile(ctx context.Context, p *social.UserProfile) error

	// ReplaceDescription swaps description and embedding in one write.
	ReplaceDescription(ctx context.Context, userID, description string, embedding []float32, at time.Time) error
}

// GroupStore persists groups and their membership sets.
type GroupStore interface {
	CreateGroup(ctx context.Context, g *social.Group) error
	GetGroup(ctx context.Context, groupID string) (*social.Group, error)

	// GroupsForUser returns the user's groups in membership order.
	GroupsForUser(ctx context.Context, userID string) ([]social.Group, error)

	// GroupMembers returns member ids ordered by id.
	GroupMembers(ctx context.Context, groupID string) ([]string, error)

	// AddMember appends groupID to the user's memberships. Adding an existing
	// member is a no-op.
	AddMember(ctx context.Context, groupID, userID string) error
}

// InteractionStore persists interaction records keyed by pair.
type InteractionStore interface {
	// UpsertInteraction locates or creates the record for key and applies fn
	// to it inside a single-writer transaction. A newly created record reaches
	// fn with an id, canonical participants, and no turns. fn must not call
	// back into the store.
	UpsertInteraction(ctx context.Context, key social.PairKey, fn func(*social.Interaction) error) (*social.Interaction, error)

	// UpdateInteraction applies fn to an existing record inside a
	// single-writer transaction. The record is written only when fn reports a
	// change.
	UpdateInteraction(ctx context.Context, id string, fn func(*social.Interaction) (bool, error)) (*social.Interaction, error)

	GetInteraction(ctx context.Context, id string) (*social.Interaction, error)

	// InteractionsForUser returns every record involving userID, restricted
	// to groupID when it is non-empty, newest first.
	InteractionsForUser(ctx context.Context, userID, groupID string) ([]*social.Interaction, error)

	// StaleInteractions returns up to limit records whose derivation lags
	// their turns, oldest first.
	StaleInteractions(ctx context.Context, limit int) ([]*social.Interaction, error)
}

// FriendStore persists the symmetric friend relation.
type FriendStore interface {
	AddFriend(ctx context.Context, a, b string) error

	// Friends returns the user's friend ids ordered by id.
	Friends(ctx context.Context, userID string) ([]string, error)
}

// Driver is the full store capability.
type Driver interface {
	ProfileStore
	GroupStore
	InteractionStore
	FriendStore

	// Close releases any resources held by the driver.
	Close() error
}
