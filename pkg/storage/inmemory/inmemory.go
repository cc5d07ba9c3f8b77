// Package inmemory provides a map-backed storage.Driver for tests and
// single-process deployments.
package inmemory

import (
	"cmp"
	"context"
	"errors"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/papercomputeco/rapport/pkg/social"
	"github.com/papercomputeco/rapport/pkg/storage"
)

// Driver implements storage.Driver using in-memory maps. A single
// read write mutex makes every write a serialized transaction.
type Driver struct {
	mu sync.RWMutex

	profiles map[string]*social.UserProfile

	groups map[string]*social.Group

	// memberships maps a user id to group ids in join order
	memberships map[string][]string

	// interactions is keyed by id, pairs maps a pair key to that id
	interactions map[string]*social.Interaction
	pairs        map[string]string

	// friends maps a user id to the set of friend ids
	friends map[string]map[string]struct{}
}

// NewDriver creates a new in-memory store.
func NewDriver() *Driver {
	return &Driver{
		profiles:     make(map[string]*social.UserProfile),
		groups:       make(map[string]*social.Group),
		memberships:  make(map[string][]string),
		interactions: make(map[string]*social.Interaction),
		pairs:        make(map[string]string),
		friends:      make(map[string]map[string]struct{}),
	}
}

var _ storage.Driver = (*Driver)(nil)

func (d *Driver) GetProfile(_ context.Context, userID string) (*social.UserProfile, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	p, ok := d.profiles[userID]
	if !ok {
		return nil, storage.NotFound(storage.KindProfile, userID)
	}
	return d.hydrate(p), nil
}

func (d *Driver) ListProfiles(_ context.Context, groupID string) ([]*social.UserProfile, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if groupID != "" {
		if _, ok := d.groups[groupID]; !ok {
			return nil, social.UnknownGroupError(groupID)
		}
	}

	out := make([]*social.UserProfile, 0, len(d.profiles))
	for id, p := range d.profiles {
		if groupID != "" && !slices.Contains(d.memberships[id], groupID) {
			continue
		}
		out = append(out, d.hydrate(p))
	}
	slices.SortFunc(out, func(a, b *social.UserProfile) int {
		return cmp.Compare(a.UserID, b.UserID)
	})
	return out, nil
}

func (d *Driver) PutProfile(_ context.Context, p *social.UserProfile) error {
	if p == nil {
		return errors.New("cannot store nil profile")
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	ids := p.GroupIDs()
	for _, gid := range ids {
		if _, ok := d.groups[gid]; !ok {
			return social.UnknownGroupError(gid)
		}
	}

	stored := p.Clone()
	stored.Groups = nil
	d.profiles[p.UserID] = stored
	d.memberships[p.UserID] = dedupe(ids)
	return nil
}

func (d *Driver) ReplaceDescription(_ context.Context, userID, description string, embedding []float32, at time.Time) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	p, ok := d.profiles[userID]
	if !ok {
		return storage.NotFound(storage.KindProfile, userID)
	}

	next := p.Clone()
	next.Description = description
	next.DescriptionEmbedding = append([]float32(nil), embedding...)
	next.DescriptionUpdatedAt = at
	d.profiles[userID] = next
	return nil
}

func (d *Driver) CreateGroup(_ context.Context, g *social.Group) error {
	if g == nil {
		return errors.New("cannot store nil group")
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if g.ID == "" {
		g.ID = uuid.NewString()
	}
	stored := *g
	d.groups[g.ID] = &stored
	return nil
}

func (d *Driver) GetGroup(_ context.Context, groupID string) (*social.Group, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	g, ok := d.groups[groupID]
	if !ok {
		return nil, storage.NotFound(storage.KindGroup, groupID)
	}
	out := *g
	return &out, nil
}

func (d *Driver) GroupsForUser(_ context.Context, userID string) ([]social.Group, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	return d.groupsFor(userID), nil
}

func (d *Driver) GroupMembers(_ context.Context, groupID string) ([]string, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if _, ok := d.groups[groupID]; !ok {
		return nil, social.UnknownGroupError(groupID)
	}

	members := []string{}
	for userID, gids := range d.memberships {
		if slices.Contains(gids, groupID) {
			members = append(members, userID)
		}
	}
	slices.Sort(members)
	return members, nil
}

func (d *Driver) AddMember(_ context.Context, groupID, userID string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.groups[groupID]; !ok {
		return social.UnknownGroupError(groupID)
	}
	if slices.Contains(d.memberships[userID], groupID) {
		return nil
	}
	d.memberships[userID] = append(d.memberships[userID], groupID)
	return nil
}

func (d *Driver) UpsertInteraction(_ context.Context, key social.PairKey, fn func(*social.Interaction) error) (*social.Interaction, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	var rec *social.Interaction
	if id, ok := d.pairs[key.String()]; ok {
		rec = d.interactions[id].Clone()
	} else {
		rec = &social.Interaction{
			ID:          uuid.NewString(),
			UserID:      key.Low,
			OtherUserID: key.High,
			GroupID:     key.GroupID,
			Messages:    []social.Turn{},
		}
	}

	if err := fn(rec); err != nil {
		return nil, err
	}

	d.interactions[rec.ID] = rec.Clone()
	d.pairs[key.String()] = rec.ID
	return rec, nil
}

func (d *Driver) UpdateInteraction(_ context.Context, id string, fn func(*social.Interaction) (bool, error)) (*social.Interaction, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	stored, ok := d.interactions[id]
	if !ok {
		return nil, storage.NotFound(storage.KindInteraction, id)
	}

	rec := stored.Clone()
	changed, err := fn(rec)
	if err != nil {
		return nil, err
	}
	if !changed {
		return stored.Clone(), nil
	}

	d.interactions[id] = rec.Clone()
	return rec, nil
}

func (d *Driver) GetInteraction(_ context.Context, id string) (*social.Interaction, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	rec, ok := d.interactions[id]
	if !ok {
		return nil, storage.NotFound(storage.KindInteraction, id)
	}
	return rec.Clone(), nil
}

func (d *Driver) InteractionsForUser(_ context.Context, userID, groupID string) ([]*social.Interaction, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	out := []*social.Interaction{}
	for _, rec := range d.interactions {
		if rec.UserID != userID && rec.OtherUserID != userID {
			continue
		}
		if groupID != "" && rec.GroupID != groupID {
			continue
		}
		out = append(out, rec.Clone())
	}
	slices.SortFunc(out, func(a, b *social.Interaction) int {
		if c := b.Timestamp.Compare(a.Timestamp); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	return out, nil
}

func (d *Driver) StaleInteractions(_ context.Context, limit int) ([]*social.Interaction, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	out := []*social.Interaction{}
	for _, rec := range d.interactions {
		if rec.Stale() {
			out = append(out, rec.Clone())
		}
	}
	slices.SortFunc(out, func(a, b *social.Interaction) int {
		if c := a.Timestamp.Compare(b.Timestamp); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (d *Driver) AddFriend(_ context.Context, a, b string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	link := func(from, to string) {
		set, ok := d.friends[from]
		if !ok {
			set = make(map[string]struct{})
			d.friends[from] = set
		}
		set[to] = struct{}{}
	}
	link(a, b)
	link(b, a)
	return nil
}

func (d *Driver) Friends(_ context.Context, userID string) ([]string, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	out := make([]string, 0, len(d.friends[userID]))
	for id := range d.friends[userID] {
		out = append(out, id)
	}
	slices.Sort(out)
	return out, nil
}

func (d *Driver) Close() error {
	return nil
}

// hydrate returns a copy of p with its groups attached. Callers hold d.mu.
func (d *Driver) hydrate(p *social.UserProfile) *social.UserProfile {
	out := p.Clone()
	out.Groups = d.groupsFor(p.UserID)
	return out
}

func (d *Driver) groupsFor(userID string) []social.Group {
	out := []social.Group{}
	for _, gid := range d.memberships[userID] {
		if g, ok := d.groups[gid]; ok {
			out = append(out, *g)
		}
	}
	return out
}

func dedupe(ids []string) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if !slices.Contains(out, id) {
			out = append(out, id)
		}
	}
	return out
}
