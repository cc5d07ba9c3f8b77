package ledger

import (
	"context"
	"fmt"
	"strings"

	"github.com/papercomputeco/rapport/pkg/completion"
	"github.com/papercomputeco/rapport/pkg/social"
)

const summaryPrompt = `You summarize conversations for a social matchmaking service.

Participants: %s and %s.

Conversation:
%s
Write a summary of at most three sentences covering the topics discussed, shared interests, and the tone of the exchange.

Return JSON only, in the form {"summary": "..."}.`

type summaryResult struct {
	Summary string `json:"summary"`
}

// derive produces the summary and its embedding for rec under the
// derivation timeout. Every failure is wrapped as social.ErrDerivationFailed.
func (l *Ledger) derive(ctx context.Context, rec *social.Interaction) (string, []float32, error) {
	ctx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()

	raw, err := l.completer.Complete(ctx, buildSummaryPrompt(rec))
	if err != nil {
		return "", nil, social.Derivation("summary", err)
	}

	var out summaryResult
	if err := completion.DecodeJSON(raw, &out); err != nil {
		return "", nil, social.Derivation("summary", err)
	}
	summary := strings.TrimSpace(out.Summary)
	if summary == "" {
		return "", nil, social.Derivation("summary", completion.ErrEmptyCompletion)
	}

	embedding, err := l.embedder.Embed(ctx, summary)
	if err != nil {
		return "", nil, social.Derivation("summary embedding", err)
	}

	return summary, embedding, nil
}

func buildSummaryPrompt(rec *social.Interaction) string {
	var b strings.Builder
	for _, t := range rec.Messages {
		fmt.Fprintf(&b, "[%s] %s\n", speaker(rec, t.Role), t.Content)
	}
	return fmt.Sprintf(summaryPrompt, rec.UserID, rec.OtherUserID, b.String())
}

// speaker names who wrote a turn. In a pair of two users the roles do not
// identify a participant, so the role is used as is.
func speaker(rec *social.Interaction, role social.Role) string {
	if rec.UserID == social.AssistantID || rec.OtherUserID == social.AssistantID {
		if role == social.RoleAssistant {
			return social.AssistantID
		}
		return rec.Counterpart(social.AssistantID)
	}
	return string(role)
}
