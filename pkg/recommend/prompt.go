package recommend

import (
	"fmt"
	"strings"

	"github.com/papercomputeco/rapport/pkg/ledger"
	"github.com/papercomputeco/rapport/pkg/social"
)

const explainPrompt = `You explain friend suggestions on a social matchmaking service.

%s describes themselves as:
%s

%s describes themselves as:
%s

They have exchanged %d messages.
%s
In two or three short markdown bullet points, explain to %s why %s could be a good friend. Address %s as "you".

Return JSON only, in the form {"explanation": "..."}.`

func buildExplainPrompt(user, other *social.UserProfile, stats ledger.PartnerStats) string {
	var summaries string
	if len(stats.Summaries) > 0 {
		summaries = "Summaries of their conversations:\n- " + strings.Join(stats.Summaries, "\n- ") + "\n"
	}
	return fmt.Sprintf(explainPrompt,
		user.UserID, describe(user),
		other.UserID, describe(other),
		stats.Turns,
		summaries,
		user.UserID, other.UserID, user.UserID,
	)
}

func describe(p *social.UserProfile) string {
	if strings.TrimSpace(p.Description) == "" {
		return "(no description)"
	}
	return p.Description
}
