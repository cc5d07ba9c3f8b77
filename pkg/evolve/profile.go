package evolve

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/papercomputeco/rapport/pkg/eventstream"
	"github.com/papercomputeco/rapport/pkg/social"
)

// SaveProfile creates or replaces a profile. A client-supplied embedding is
// ignored: the embedding is derived again whenever the description changes
// and carried over when it does not. Unknown groups fail with
// social.ErrUnknownGroup.
func (e *Engine) SaveProfile(ctx context.Context, p *social.UserProfile) (*social.UserProfile, error) {
	if p == nil {
		return nil, social.NewValidationError("profile", "required")
	}
	userID := strings.TrimSpace(p.UserID)
	switch {
	case userID == "":
		return nil, social.NewValidationError("user_id", "required")
	case userID == social.AssistantID:
		return nil, social.NewValidationError("user_id", "reserved")
	}

	next := &social.UserProfile{
		UserID:      userID,
		Description: strings.TrimSpace(p.Description),
		Interests:   social.NormalizeTerms(p.Interests),
		Groups:      make([]social.Group, 0, len(p.Groups)),
	}
	for _, g := range p.Groups {
		next.Groups = append(next.Groups, social.Group{ID: g.ID})
	}

	current, err := e.store.GetProfile(ctx, userID)
	switch {
	case errors.Is(err, social.ErrNotFound):
		current = nil
	case err != nil:
		return nil, err
	}

	changed := current == nil || current.Description != next.Description
	switch {
	case !changed:
		next.DescriptionEmbedding = current.DescriptionEmbedding
		next.DescriptionUpdatedAt = current.DescriptionUpdatedAt
	case next.Description != "":
		embedCtx, cancel := context.WithTimeout(ctx, e.timeout)
		next.DescriptionEmbedding, err = e.embedder.Embed(embedCtx, next.Description)
		cancel()
		if err != nil {
			return nil, social.Derivation("description embedding", err)
		}
		next.DescriptionUpdatedAt = e.now().UTC()
	}

	if err := e.store.PutProfile(ctx, next); err != nil {
		return nil, fmt.Errorf("saving profile %s: %w", userID, err)
	}

	e.logger.Info("profile saved",
		"user_id", userID,
		"created", current == nil,
		"description_changed", changed,
		"groups", len(next.Groups),
	)
	if changed && next.Description != "" {
		eventstream.Emit(ctx, e.publisher, e.logger,
			eventstream.NewProfileEvent(userID, next.Description, next.DescriptionUpdatedAt))
	}

	return e.store.GetProfile(ctx, userID)
}
