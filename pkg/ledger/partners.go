package ledger

import (
	"context"
	"sort"
	"time"
)

// PartnerStats aggregates a user's conversations with one partner across
// every group scope.
type PartnerStats struct {
	UserID       string
	Turns        int
	Interactions int
	LastAt       time.Time
	Summaries    []string
}

// Partners returns one entry per counterpart of userID, ordered by partner
// id. The assistant counterpart is included.
func (l *Ledger) Partners(ctx context.Context, userID string) ([]PartnerStats, error) {
	recs, err := l.store.InteractionsForUser(ctx, userID, "")
	if err != nil {
		return nil, err
	}

	byPartner := make(map[string]*PartnerStats)
	for _, rec := range recs {
		other := rec.Counterpart(userID)
		ps, ok := byPartner[other]
		if !ok {
			ps = &PartnerStats{UserID: other}
			byPartner[other] = ps
		}
		ps.Turns += len(rec.Messages)
		ps.Interactions++
		if rec.Timestamp.After(ps.LastAt) {
			ps.LastAt = rec.Timestamp
		}
		if rec.Summary != "" {
			ps.Summaries = append(ps.Summaries, rec.Summary)
		}
	}

	out := make([]PartnerStats, 0, len(byPartner))
	for _, ps := range byPartner {
		out = append(out, *ps)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out, nil
}
