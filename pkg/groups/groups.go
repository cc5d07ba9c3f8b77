// Package groups is the group membership index: which groups exist and which
// users belong to them.
package groups

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/papercomputeco/rapport/pkg/social"
	"github.com/papercomputeco/rapport/pkg/storage"
)

// Store is the storage the index needs.
type Store interface {
	storage.GroupStore
	GetProfile(ctx context.Context, userID string) (*social.UserProfile, error)
}

// Index answers membership queries and creates groups.
type Index struct {
	store  Store
	logger *slog.Logger
}

func New(store Store, logger *slog.Logger) *Index {
	return &Index{store: store, logger: logger}
}

// Create stores a new group under a generated id.
func (x *Index) Create(ctx context.Context, name string, groupType social.GroupType, description string) (*social.Group, error) {
	fields := map[string]string{}
	name = strings.TrimSpace(name)
	if name == "" {
		fields["name"] = "required"
	}
	if !groupType.Valid() {
		fields["type"] = "must be one of work, friends, club, other"
	}
	if len(fields) > 0 {
		return nil, &social.ValidationError{Fields: fields}
	}

	g := &social.Group{
		Name:        name,
		Type:        groupType,
		Description: description,
	}
	if err := x.store.CreateGroup(ctx, g); err != nil {
		return nil, fmt.Errorf("creating group %q: %w", name, err)
	}

	x.logger.Info("group created", "group_id", g.ID, "type", g.Type)
	return g, nil
}

// Get returns the group or a not-found error.
func (x *Index) Get(ctx context.Context, groupID string) (*social.Group, error) {
	return x.store.GetGroup(ctx, groupID)
}

// ForUser returns the user's groups in membership order. The user must exist.
func (x *Index) ForUser(ctx context.Context, userID string) ([]social.Group, error) {
	if _, err := x.store.GetProfile(ctx, userID); err != nil {
		return nil, err
	}
	return x.store.GroupsForUser(ctx, userID)
}

// Members returns the member ids of groupID ordered by id. An unknown group
// fails with social.ErrUnknownGroup.
func (x *Index) Members(ctx context.Context, groupID string) ([]string, error) {
	if err := x.exists(ctx, groupID); err != nil {
		return nil, err
	}
	return x.store.GroupMembers(ctx, groupID)
}

// Join adds userID to groupID. Joining twice is a no-op.
func (x *Index) Join(ctx context.Context, groupID, userID string) error {
	if err := x.exists(ctx, groupID); err != nil {
		return err
	}
	if _, err := x.store.GetProfile(ctx, userID); err != nil {
		return err
	}
	if err := x.store.AddMember(ctx, groupID, userID); err != nil {
		return fmt.Errorf("adding %s to group %s: %w", userID, groupID, err)
	}

	x.logger.Debug("group joined", "group_id", groupID, "user_id", userID)
	return nil
}

// Resolve loads the groups named by ids in order. Any unknown id fails with
// social.ErrUnknownGroup. Duplicate ids are collapsed.
func (x *Index) Resolve(ctx context.Context, ids []string) ([]social.Group, error) {
	out := make([]social.Group, 0, len(ids))
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}

		g, err := x.store.GetGroup(ctx, id)
		if err != nil {
			if errors.Is(err, social.ErrNotFound) {
				return nil, social.UnknownGroupError(id)
			}
			return nil, err
		}
		out = append(out, *g)
	}
	return out, nil
}

func (x *Index) exists(ctx context.Context, groupID string) error {
	if strings.TrimSpace(groupID) == "" {
		return social.NewValidationError("group_id", "required")
	}
	if _, err := x.store.GetGroup(ctx, groupID); err != nil {
		if errors.Is(err, social.ErrNotFound) {
			return social.UnknownGroupError(groupID)
		}
		return err
	}
	return nil
}
