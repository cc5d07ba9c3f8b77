// Package matching ranks candidate users for an interaction request.
package matching

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/papercomputeco/rapport/pkg/embeddings"
	"github.com/papercomputeco/rapport/pkg/similarity"
	"github.com/papercomputeco/rapport/pkg/social"
)

const (
	DefaultPreferenceWeight  = 0.5
	DefaultDescriptionWeight = 0.5
	DefaultMaxResults        = 20

	defaultTimeout = 30 * time.Second
)

// Store is the read-only storage the ranker needs.
type Store interface {
	GetProfile(ctx context.Context, userID string) (*social.UserProfile, error)
	ListProfiles(ctx context.Context, groupID string) ([]*social.UserProfile, error)
	GetGroup(ctx context.Context, groupID string) (*social.Group, error)
}

// Config is the configuration for a Ranker.
type Config struct {
	Store    Store
	Embedder embeddings.Embedder

	PreferenceWeight  float64
	DescriptionWeight float64

	// MaxResults truncates rankings. 0 returns every candidate.
	MaxResults int

	// Dimensions is the expected embedding length. 0 accepts any length.
	Dimensions int

	// Timeout bounds embedding a request description.
	Timeout time.Duration

	Logger *slog.Logger
}

// Ranker ranks candidates. It never writes.
type Ranker struct {
	store    Store
	embedder embeddings.Embedder
	pw, dw   float64
	max      int
	dims     int
	timeout  time.Duration
	logger   *slog.Logger
}

// New returns a Ranker. Zero weights are valid and are kept as given.
func New(c Config) (*Ranker, error) {
	if c.Store == nil || c.Embedder == nil {
		return nil, errors.New("matching: store and embedder are required")
	}
	if c.PreferenceWeight < 0 || c.DescriptionWeight < 0 {
		return nil, errors.New("matching: weights must not be negative")
	}
	if c.MaxResults < 0 {
		return nil, errors.New("matching: max results must not be negative")
	}
	if c.Timeout <= 0 {
		c.Timeout = defaultTimeout
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}

	return &Ranker{
		store:    c.Store,
		embedder: c.Embedder,
		pw:       c.PreferenceWeight,
		dw:       c.DescriptionWeight,
		max:      c.MaxResults,
		dims:     c.Dimensions,
		timeout:  c.Timeout,
		logger:   c.Logger,
	}, nil
}

// ByPreference scores candidates on shared preferences and description
// similarity.
func (r *Ranker) ByPreference(ctx context.Context, req social.InteractionRequest) ([]social.Match, error) {
	if err := validateRequest(req.UserID, req.InteractionType); err != nil {
		return nil, err
	}

	requester, err := r.store.GetProfile(ctx, req.UserID)
	if err != nil {
		return nil, err
	}
	pool, err := r.pool(ctx, req.UserID, req.TargetGroupID)
	if err != nil {
		return nil, err
	}

	reqEmb := requester.DescriptionEmbedding
	if desc := strings.TrimSpace(req.Description); desc != "" {
		embedCtx, cancel := context.WithTimeout(ctx, r.timeout)
		reqEmb, err = r.embedder.Embed(embedCtx, desc)
		cancel()
		if err != nil {
			return nil, social.Derivation("request embedding", err)
		}
	}
	if !similarity.Usable(reqEmb, r.dims) {
		reqEmb = nil
	}

	prefs := social.NormalizeTerms(req.Preferences)
	matches := make([]social.Match, 0, len(pool))
	for _, cand := range pool {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		shared := sharedTerms(prefs, cand.Interests)
		prefScore := 0.0
		if len(prefs) > 0 {
			prefScore = float64(len(shared)) / float64(len(prefs))
		}
		sim := r.similarity(reqEmb, cand.DescriptionEmbedding)

		pTerm, dTerm := r.pw*prefScore, r.dw*sim
		matches = append(matches, social.Match{
			UserID:          cand.UserID,
			Profile:         cand,
			MatchScore:      similarity.Clamp(pTerm + dTerm),
			MatchReason:     preferenceReason(pTerm, dTerm, shared, len(prefs), sim),
			InteractionType: req.InteractionType,
			GroupID:         req.TargetGroupID,
		})
	}

	out := r.finish(matches)
	r.logger.Debug("preference ranking",
		"user_id", req.UserID,
		"group_id", req.TargetGroupID,
		"candidates", len(pool),
		"returned", len(out),
	)
	return out, nil
}

// ByEmbedding scores candidates on description similarity alone. The
// requester must have a usable description embedding.
func (r *Ranker) ByEmbedding(ctx context.Context, userID, interactionType, groupID string) ([]social.Match, error) {
	if err := validateRequest(userID, interactionType); err != nil {
		return nil, err
	}

	requester, err := r.store.GetProfile(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !similarity.Usable(requester.DescriptionEmbedding, r.dims) {
		return nil, social.NewValidationError("user_id", "profile has no usable description embedding")
	}
	pool, err := r.pool(ctx, userID, groupID)
	if err != nil {
		return nil, err
	}

	matches := make([]social.Match, 0, len(pool))
	for _, cand := range pool {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		sim := r.similarity(requester.DescriptionEmbedding, cand.DescriptionEmbedding)
		matches = append(matches, social.Match{
			UserID:          cand.UserID,
			Profile:         cand,
			MatchScore:      sim,
			MatchReason:     fmt.Sprintf("%s interests (%.2f)", similarity.Describe(sim), sim),
			InteractionType: interactionType,
			GroupID:         groupID,
		})
	}

	return r.finish(matches), nil
}

// pool loads the candidates for userID: members of groupID when set,
// otherwise every profile. The requester is never a candidate.
func (r *Ranker) pool(ctx context.Context, userID, groupID string) ([]*social.UserProfile, error) {
	if groupID != "" {
		if _, err := r.store.GetGroup(ctx, groupID); err != nil {
			if errors.Is(err, social.ErrNotFound) {
				return nil, social.UnknownGroupError(groupID)
			}
			return nil, err
		}
	}

	profiles, err := r.store.ListProfiles(ctx, groupID)
	if err != nil {
		return nil, err
	}

	out := make([]*social.UserProfile, 0, len(profiles))
	for _, p := range profiles {
		if p.UserID != userID {
			out = append(out, p)
		}
	}
	return out, nil
}

func (r *Ranker) similarity(a, b []float32) float64 {
	if a == nil || !similarity.Usable(b, r.dims) {
		return 0
	}
	return similarity.Score(a, b)
}

// finish orders by score then user id and applies the result limit.
func (r *Ranker) finish(matches []social.Match) []social.Match {
	sort.Slice(matches, func(i, j int) bool {
		if matches[i].MatchScore != matches[j].MatchScore {
			return matches[i].MatchScore > matches[j].MatchScore
		}
		return matches[i].UserID < matches[j].UserID
	})
	if r.max > 0 && len(matches) > r.max {
		matches = matches[:r.max]
	}
	return matches
}

// sharedTerms returns the preferences found among interests, in preference
// order.
func sharedTerms(prefs, interests []string) []string {
	have := make(map[string]struct{}, len(interests))
	for _, t := range social.NormalizeTerms(interests) {
		have[t] = struct{}{}
	}

	shared := []string{}
	for _, p := range prefs {
		if _, ok := have[p]; ok {
			shared = append(shared, p)
		}
	}
	return shared
}

func preferenceReason(pTerm, dTerm float64, shared []string, prefs int, sim float64) string {
	switch {
	case pTerm == 0 && dTerm == 0:
		return "no shared preferences or description overlap"
	case pTerm >= dTerm:
		return fmt.Sprintf("shares %d/%d preferences (%s)", len(shared), prefs, strings.Join(shared, ", "))
	default:
		return fmt.Sprintf("similar description (similarity %.2f)", sim)
	}
}

func validateRequest(userID, interactionType string) error {
	fields := map[string]string{}
	if strings.TrimSpace(userID) == "" {
		fields["user_id"] = "required"
	}
	if strings.TrimSpace(interactionType) == "" {
		fields["interaction_type"] = "required"
	}
	if len(fields) > 0 {
		return &social.ValidationError{Fields: fields}
	}
	return nil
}
