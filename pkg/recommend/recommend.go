// Package recommend suggests new connections from conversation history and
// description affinity, and manages the friend relation.
package recommend

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/papercomputeco/rapport/pkg/completion"
	"github.com/papercomputeco/rapport/pkg/ledger"
	"github.com/papercomputeco/rapport/pkg/social"
)

const (
	DefaultMaxResults = 5

	defaultTimeout = 30 * time.Second
	loadLimit      = 8
)

// Store is the storage the recommender needs.
type Store interface {
	GetProfile(ctx context.Context, userID string) (*social.UserProfile, error)
	AddFriend(ctx context.Context, a, b string) error
	Friends(ctx context.Context, userID string) ([]string, error)
}

// History is the view of the interaction ledger the recommender reads.
type History interface {
	Partners(ctx context.Context, userID string) ([]ledger.PartnerStats, error)
	Latest(ctx context.Context, userA, userB string) (*social.Interaction, error)
}

// Config is the configuration for a Recommender.
type Config struct {
	Store   Store
	History History

	// Completer writes explanations.
	Completer completion.Completer

	Weights       Weights
	MaxResults    int
	MinConfidence float64

	Timeout time.Duration
	Now     func() time.Time
	Logger  *slog.Logger
}

// Recommender is the friend recommendation engine.
type Recommender struct {
	store     Store
	history   History
	completer completion.Completer
	weights   Weights
	max       int
	min       float64
	timeout   time.Duration
	now       func() time.Time
	logger    *slog.Logger
}

// Explanation is a written account of why two users might connect.
type Explanation struct {
	UserID          string  `json:"user_id"`
	OtherUserID     string  `json:"other_user_id"`
	Explanation     string  `json:"explanation"`
	ConfidenceScore float64 `json:"confidence_score"`
}

// New validates c and returns a Recommender.
func New(c Config) (*Recommender, error) {
	if c.Store == nil || c.History == nil {
		return nil, errors.New("recommend: store and history are required")
	}
	if c.Completer == nil {
		return nil, errors.New("recommend: completer is required")
	}
	if c.Weights == (Weights{}) {
		c.Weights = DefaultWeights()
	}
	if c.Weights.Frequency < 0 || c.Weights.Recency < 0 || c.Weights.Affinity < 0 {
		return nil, errors.New("recommend: weights must not be negative")
	}
	if c.MaxResults < 0 {
		return nil, errors.New("recommend: max results must not be negative")
	}
	if c.Timeout <= 0 {
		c.Timeout = defaultTimeout
	}
	if c.Now == nil {
		c.Now = time.Now
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}

	return &Recommender{
		store:     c.Store,
		history:   c.History,
		completer: c.Completer,
		weights:   c.Weights,
		max:       c.MaxResults,
		min:       c.MinConfidence,
		timeout:   c.Timeout,
		now:       c.Now,
		logger:    c.Logger,
	}, nil
}

// Recommend ranks the user's conversation partners who are not yet friends.
func (r *Recommender) Recommend(ctx context.Context, userID string) ([]social.FriendRecommendation, error) {
	user, err := r.store.GetProfile(ctx, userID)
	if err != nil {
		return nil, err
	}

	friends, err := r.friendSet(ctx, userID)
	if err != nil {
		return nil, err
	}

	partners, err := r.history.Partners(ctx, userID)
	if err != nil {
		return nil, err
	}

	candidates := make([]ledger.PartnerStats, 0, len(partners))
	for _, p := range partners {
		if p.UserID == userID || p.UserID == social.AssistantID {
			continue
		}
		if _, ok := friends[p.UserID]; ok {
			continue
		}
		candidates = append(candidates, p)
	}

	profiles, err := r.loadProfiles(ctx, candidates)
	if err != nil {
		return nil, err
	}

	now := r.now()
	recs := make([]social.FriendRecommendation, 0, len(candidates))
	for i, stats := range candidates {
		profile := profiles[i]
		if profile == nil {
			continue
		}

		b := r.weights.score(stats, user.DescriptionEmbedding, profile.DescriptionEmbedding, now)
		confidence := b.total()
		if confidence < r.min {
			continue
		}
		recs = append(recs, social.FriendRecommendation{
			UserID:          stats.UserID,
			Profile:         profile,
			Recommendation:  reason(b, stats),
			ConfidenceScore: confidence,
		})
	}

	sort.Slice(recs, func(i, j int) bool {
		if recs[i].ConfidenceScore != recs[j].ConfidenceScore {
			return recs[i].ConfidenceScore > recs[j].ConfidenceScore
		}
		return recs[i].UserID < recs[j].UserID
	})
	if r.max > 0 && len(recs) > r.max {
		recs = recs[:r.max]
	}

	r.logger.Debug("friend recommendations",
		"user_id", userID,
		"partners", len(partners),
		"returned", len(recs),
	)
	return recs, nil
}

// loadProfiles fetches candidate profiles concurrently. Partners without a
// profile come back as nil entries.
func (r *Recommender) loadProfiles(ctx context.Context, candidates []ledger.PartnerStats) ([]*social.UserProfile, error) {
	profiles := make([]*social.UserProfile, len(candidates))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(loadLimit)
	for i, c := range candidates {
		g.Go(func() error {
			p, err := r.store.GetProfile(gctx, c.UserID)
			if errors.Is(err, social.ErrNotFound) {
				r.logger.Warn("conversation partner has no profile", "user_id", c.UserID)
				return nil
			}
			if err != nil {
				return err
			}
			profiles[i] = p
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return profiles, nil
}

// Explain asks for a short markdown explanation of why userID and otherID
// might connect. The score uses the same formula as Recommend.
func (r *Recommender) Explain(ctx context.Context, userID, otherID string) (*Explanation, error) {
	if err := social.ValidatePair(userID, otherID); err != nil {
		return nil, err
	}

	user, err := r.store.GetProfile(ctx, userID)
	if err != nil {
		return nil, err
	}
	other, err := r.store.GetProfile(ctx, otherID)
	if err != nil {
		return nil, err
	}

	partners, err := r.history.Partners(ctx, userID)
	if err != nil {
		return nil, err
	}
	stats := ledger.PartnerStats{UserID: otherID}
	for _, p := range partners {
		if p.UserID == otherID {
			stats = p
			break
		}
	}

	b := r.weights.score(stats, user.DescriptionEmbedding, other.DescriptionEmbedding, r.now())

	cctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	raw, err := r.completer.Complete(cctx, buildExplainPrompt(user, other, stats))
	if err != nil {
		return nil, social.Derivation("explanation", err)
	}

	var out struct {
		Explanation string `json:"explanation"`
	}
	if err := completion.DecodeJSON(raw, &out); err != nil {
		return nil, social.Derivation("explanation", err)
	}
	if strings.TrimSpace(out.Explanation) == "" {
		return nil, social.Derivation("explanation", completion.ErrEmptyCompletion)
	}

	return &Explanation{
		UserID:          userID,
		OtherUserID:     otherID,
		Explanation:     strings.TrimSpace(out.Explanation),
		ConfidenceScore: b.total(),
	}, nil
}

// Friends returns the user's friends with the latest summary of each pair's
// conversation, ordered by friend id.
func (r *Recommender) Friends(ctx context.Context, userID string) ([]social.Friend, error) {
	if _, err := r.store.GetProfile(ctx, userID); err != nil {
		return nil, err
	}
	ids, err := r.store.Friends(ctx, userID)
	if err != nil {
		return nil, err
	}

	out := make([]social.Friend, len(ids))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(loadLimit)
	for i, id := range ids {
		g.Go(func() error {
			p, err := r.store.GetProfile(gctx, id)
			if err != nil {
				return fmt.Errorf("loading friend %s: %w", id, err)
			}
			rec, err := r.history.Latest(gctx, userID, id)
			if err != nil {
				return err
			}

			f := social.Friend{UserID: id, Profile: p}
			if rec != nil {
				f.LastConversationSummary = rec.Summary
			}
			out[i] = f
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// AddFriend records a symmetric friendship between two existing users.
func (r *Recommender) AddFriend(ctx context.Context, a, b string) error {
	if err := social.ValidatePair(a, b); err != nil {
		return err
	}
	for _, id := range []string{a, b} {
		if _, err := r.store.GetProfile(ctx, id); err != nil {
			return err
		}
	}
	if err := r.store.AddFriend(ctx, a, b); err != nil {
		return fmt.Errorf("adding friendship %s and %s: %w", a, b, err)
	}

	r.logger.Info("friendship added", "user_id", a, "friend_id", b)
	return nil
}

func (r *Recommender) friendSet(ctx context.Context, userID string) (map[string]struct{}, error) {
	ids, err := r.store.Friends(ctx, userID)
	if err != nil {
		return nil, err
	}
	set := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set, nil
}
