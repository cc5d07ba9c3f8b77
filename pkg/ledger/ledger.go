// Package ledger records conversations between pairs of users and keeps a
// summary and embedding of each conversation in step with its turns.
//
// Appending a turn is synchronous and leaves the record stale. Derivation of
// the summary and embedding happens in the background through a Scheduler
// (see the worker subpackage), or on demand when a stale record is listed.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/papercomputeco/rapport/pkg/completion"
	"github.com/papercomputeco/rapport/pkg/embeddings"
	"github.com/papercomputeco/rapport/pkg/eventstream"
	"github.com/papercomputeco/rapport/pkg/social"
	"github.com/papercomputeco/rapport/pkg/storage"
)

const (
	defaultDerivationTimeout = 30 * time.Second

	// refreshConcurrency bounds synchronous derivations while listing.
	refreshConcurrency = 4
)

// Scheduler queues an interaction for background derivation. Enqueue must not
// block; it reports false when the id was dropped.
type Scheduler interface {
	Enqueue(interactionID string) bool
}

// Config is the configuration for a Ledger.
type Config struct {
	// Store persists interaction records.
	Store storage.InteractionStore

	// Completer writes conversation summaries.
	Completer completion.Completer

	// Embedder embeds conversation summaries.
	Embedder embeddings.Embedder

	// Publisher receives interaction events. Optional.
	Publisher eventstream.Publisher

	// DerivationTimeout bounds one summary and embedding derivation.
	DerivationTimeout time.Duration

	// Now is the clock used to stamp turns. Defaults to time.Now.
	Now func() time.Time

	Logger *slog.Logger
}

// Ledger is the interaction ledger.
type Ledger struct {
	store     storage.InteractionStore
	completer completion.Completer
	embedder  embeddings.Embedder
	publisher eventstream.Publisher
	timeout   time.Duration
	now       func() time.Time
	logger    *slog.Logger

	locks     *keyLock
	scheduler Scheduler
}

// New validates c and returns a Ledger.
func New(c Config) (*Ledger, error) {
	if c.Store == nil {
		return nil, errors.New("ledger: store is required")
	}
	if c.Completer == nil {
		return nil, errors.New("ledger: completer is required")
	}
	if c.Embedder == nil {
		return nil, errors.New("ledger: embedder is required")
	}
	if c.DerivationTimeout <= 0 {
		c.DerivationTimeout = defaultDerivationTimeout
	}
	if c.Now == nil {
		c.Now = time.Now
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}

	return &Ledger{
		store:     c.Store,
		completer: c.Completer,
		embedder:  c.Embedder,
		publisher: c.Publisher,
		timeout:   c.DerivationTimeout,
		now:       c.Now,
		logger:    c.Logger,
		locks:     newKeyLock(),
	}, nil
}

// SetScheduler installs the hook notified after every append. It must be set
// before the ledger serves traffic.
func (l *Ledger) SetScheduler(s Scheduler) {
	l.scheduler = s
}

// AppendTurn appends turn to the record of (userA, userB) in groupID, creating
// the record on first contact. The stored turn time is strictly after the
// previous turn's.
func (l *Ledger) AppendTurn(ctx context.Context, userA, userB string, turn social.Turn, groupID string) (*social.Interaction, error) {
	if err := social.ValidatePair(userA, userB); err != nil {
		return nil, err
	}
	if err := social.ValidateTurn(turn); err != nil {
		return nil, err
	}
	if turn.CreatedAt.IsZero() {
		turn.CreatedAt = l.now()
	}
	turn.CreatedAt = turn.CreatedAt.UTC()

	key := social.NewPairKey(userA, userB, groupID)
	unlock := l.locks.Lock(key.String())
	rec, err := l.store.UpsertInteraction(ctx, key, func(rec *social.Interaction) error {
		t := turn
		if n := len(rec.Messages); n > 0 {
			if last := rec.Messages[n-1].CreatedAt; !t.CreatedAt.After(last) {
				t.CreatedAt = last.Add(time.Nanosecond)
			}
		}
		rec.Messages = append(rec.Messages, t)
		rec.Timestamp = t.CreatedAt
		return nil
	})
	unlock()
	if err != nil {
		return nil, fmt.Errorf("appending turn to %s: %w", key, err)
	}

	l.logger.Debug("turn appended",
		"interaction_id", rec.ID,
		"pair", key.String(),
		"turns", len(rec.Messages),
	)

	eventstream.Emit(ctx, l.publisher, l.logger, eventstream.NewInteractionEvent(eventstream.EventTypeInteractionUpdated, rec))
	l.schedule(rec.ID)

	return rec, nil
}

func (l *Ledger) schedule(id string) {
	if l.scheduler == nil {
		return
	}
	if !l.scheduler.Enqueue(id) {
		l.logger.Warn("derivation not scheduled, record stays stale until the next sweep",
			"interaction_id", id,
		)
	}
}

// Recompute derives a fresh summary and embedding for the record. A record
// that is not stale is returned as stored. Derivation failures leave the
// stored record untouched and return social.ErrDerivationFailed.
func (l *Ledger) Recompute(ctx context.Context, interactionID string) (*social.Interaction, error) {
	rec, err := l.store.GetInteraction(ctx, interactionID)
	if err != nil {
		return nil, err
	}
	if !rec.Stale() {
		return rec, nil
	}

	snapshot := len(rec.Messages)
	summary, embedding, err := l.derive(ctx, rec)
	if err != nil {
		l.logger.Warn("derivation failed",
			"interaction_id", rec.ID,
			"turns", snapshot,
			"error", err,
		)
		return nil, err
	}

	updated, err := l.store.UpdateInteraction(ctx, interactionID, func(cur *social.Interaction) (bool, error) {
		// A derivation from fewer turns than the stored one is outdated.
		if snapshot < cur.DerivedTurns {
			return false, nil
		}
		cur.Summary = summary
		cur.Embedding = embedding
		cur.DerivedTurns = snapshot
		return true, nil
	})
	if err != nil {
		return nil, fmt.Errorf("storing derivation for %s: %w", interactionID, err)
	}

	if updated.DerivedTurns == snapshot {
		l.logger.Info("interaction derived",
			"interaction_id", updated.ID,
			"derived_turns", snapshot,
		)
		eventstream.Emit(ctx, l.publisher, l.logger, eventstream.NewInteractionEvent(eventstream.EventTypeInteractionDerived, updated))
	}

	return updated, nil
}

// ListInteractions returns every record involving userID, restricted to
// groupID when it is non-empty, newest first. Stale records are refreshed
// before they are served. When a refresh fails the served copy has its
// derivation blanked and SummaryPending set.
func (l *Ledger) ListInteractions(ctx context.Context, userID, groupID string) ([]*social.Interaction, error) {
	if userID == "" {
		return nil, social.NewValidationError("user_id", "required")
	}

	recs, err := l.store.InteractionsForUser(ctx, userID, groupID)
	if err != nil {
		return nil, err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(refreshConcurrency)
	for i, rec := range recs {
		if !rec.Stale() {
			continue
		}
		g.Go(func() error {
			fresh, err := l.Recompute(gctx, rec.ID)
			switch {
			case err == nil:
				recs[i] = fresh
				return nil
			case errors.Is(err, social.ErrDerivationFailed):
				recs[i] = pending(rec)
				return nil
			default:
				return err
			}
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	sortNewestFirst(recs)
	return recs, nil
}

func pending(rec *social.Interaction) *social.Interaction {
	served := rec.Clone()
	served.Summary = ""
	served.Embedding = nil
	served.SummaryPending = true
	return served
}

func sortNewestFirst(recs []*social.Interaction) {
	sort.SliceStable(recs, func(i, j int) bool {
		if !recs[i].Timestamp.Equal(recs[j].Timestamp) {
			return recs[i].Timestamp.After(recs[j].Timestamp)
		}
		return recs[i].ID < recs[j].ID
	})
}

// Latest returns the most recent record for the pair across all group
// scopes, or nil when the pair never talked. A stale record is refreshed
// first, as in ListInteractions.
func (l *Ledger) Latest(ctx context.Context, userA, userB string) (*social.Interaction, error) {
	recs, err := l.store.InteractionsForUser(ctx, userA, "")
	if err != nil {
		return nil, err
	}
	for _, rec := range recs {
		if rec.Counterpart(userA) != userB {
			continue
		}
		if !rec.Stale() {
			return rec, nil
		}
		fresh, err := l.Recompute(ctx, rec.ID)
		switch {
		case err == nil:
			return fresh, nil
		case errors.Is(err, social.ErrDerivationFailed):
			return pending(rec), nil
		default:
			return nil, err
		}
	}
	return nil, nil
}

// Stale returns up to limit records whose derivation lags their turns.
func (l *Ledger) Stale(ctx context.Context, limit int) ([]*social.Interaction, error) {
	return l.store.StaleInteractions(ctx, limit)
}
