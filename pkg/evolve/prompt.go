package evolve

import (
	"fmt"
	"strings"

	"github.com/papercomputeco/rapport/pkg/social"
)

const evolvePrompt = `You are a friendly assistant helping a user describe themselves for a social matchmaking service.

Current description of the user:
%s

Conversation so far:
%s
Reply to the user's last message. If the conversation reveals something new about the user, also write a revised description in the third person that keeps everything from the current description that is still true.

Return JSON only, in the form {"reply": "...", "updated_description": "..."}. Leave "updated_description" empty when the description should not change.`

const peerPrompt = `You are %s, chatting with %s on a social matchmaking service. Stay in character.

About you:
%s

About %s:
%s

Conversation so far:
%s
Write your next message to %s.

Return JSON only, in the form {"reply": "..."}.`

type evolveResult struct {
	Reply              string `json:"reply"`
	UpdatedDescription string `json:"updated_description"`
}

func buildEvolvePrompt(description string, history []social.Turn) string {
	return fmt.Sprintf(evolvePrompt, orNone(description), transcript(history))
}

func buildPeerPrompt(speaker, listener *social.UserProfile, history []social.Turn) string {
	return fmt.Sprintf(peerPrompt,
		speaker.UserID, listener.UserID,
		orNone(speaker.Description),
		listener.UserID, orNone(listener.Description),
		transcript(history),
		listener.UserID,
	)
}

func transcript(history []social.Turn) string {
	var b strings.Builder
	for _, t := range history {
		fmt.Fprintf(&b, "[%s] %s\n", t.Role, t.Content)
	}
	return b.String()
}

func orNone(s string) string {
	if strings.TrimSpace(s) == "" {
		return "(none yet)"
	}
	return s
}
