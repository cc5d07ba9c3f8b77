package mcp

import (
	"context"
	"encoding/json"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/papercomputeco/rapport/pkg/social"
)

var (
	findMatchesToolName    = "find_matches"
	findMatchesDescription = "Find people whose self-description is closest to a user's, optionally within one group. Returns ranked candidates with a similarity score and a short reason."
)

// FindMatchesInput represents the input arguments for the find_matches tool.
type FindMatchesInput struct {
	UserID          string `json:"user_id" jsonschema:"the user to find matches for"`
	InteractionType string `json:"interaction_type,omitempty" jsonschema:"kind of interaction wanted, e.g. coffee or project (default: chat)"`
	GroupID         string `json:"group_id,omitempty" jsonschema:"restrict candidates to members of this group"`
}

// MatchResult is one ranked candidate.
type MatchResult struct {
	UserID      string   `json:"user_id"`
	Score       float64  `json:"score"`
	Reason      string   `json:"reason"`
	Description string   `json:"description"`
	Interests   []string `json:"interests"`
}

// FindMatchesOutput represents the output of the find_matches tool.
type FindMatchesOutput struct {
	UserID  string        `json:"user_id"`
	Matches []MatchResult `json:"matches"`
	Count   int           `json:"count"`
}

func (s *Server) handleFindMatches(ctx context.Context, _ *mcp.CallToolRequest, input FindMatchesInput) (*mcp.CallToolResult, FindMatchesOutput, error) {
	logger := s.config.Logger

	if input.UserID == "" {
		return toolError("user_id is required"), FindMatchesOutput{}, nil
	}
	interactionType := input.InteractionType
	if interactionType == "" {
		interactionType = "chat"
	}

	logger.Debug("MCP find_matches request",
		"user_id", input.UserID,
		"interaction_type", interactionType,
		"group_id", input.GroupID,
	)

	matches, err := s.config.Matcher.ByEmbedding(ctx, input.UserID, interactionType, input.GroupID)
	if err != nil {
		logger.Error("failed to find matches", "user_id", input.UserID, "error", err)
		return toolError("Failed to find matches: %v", err), FindMatchesOutput{}, nil
	}

	output := FindMatchesOutput{
		UserID:  input.UserID,
		Matches: make([]MatchResult, 0, len(matches)),
	}
	for _, m := range matches {
		output.Matches = append(output.Matches, matchResult(m))
	}
	output.Count = len(output.Matches)

	return jsonResult(output)
}

func matchResult(m social.Match) MatchResult {
	r := MatchResult{
		UserID: m.UserID,
		Score:  m.MatchScore,
		Reason: m.MatchReason,
	}
	if m.Profile != nil {
		r.Description = m.Profile.Description
		r.Interests = m.Profile.Interests
	}
	return r
}

// jsonResult returns structured output alongside its serialized JSON in a
// TextContent block for clients that only read text.
func jsonResult[T any](output T) (*mcp.CallToolResult, T, error) {
	b, err := json.Marshal(output)
	if err != nil {
		var zero T
		return toolError("Failed to serialize results: %v", err), zero, nil
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: string(b)},
		},
	}, output, nil
}
