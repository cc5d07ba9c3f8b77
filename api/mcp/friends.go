package mcp

import (
	"context"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

var (
	recommendFriendsToolName    = "recommend_friends"
	recommendFriendsDescription = "Suggest new friends for a user from their conversation history and how closely their descriptions align. Existing friends are never suggested."
)

// RecommendFriendsInput represents the input arguments for the recommend_friends tool.
type RecommendFriendsInput struct {
	UserID string `json:"user_id" jsonschema:"the user to recommend friends for"`
}

// Recommendation is one suggested connection.
type Recommendation struct {
	UserID     string  `json:"user_id"`
	Confidence float64 `json:"confidence"`
	Reason     string  `json:"reason"`
}

// RecommendFriendsOutput represents the output of the recommend_friends tool.
type RecommendFriendsOutput struct {
	UserID          string           `json:"user_id"`
	Recommendations []Recommendation `json:"recommendations"`
	Count           int              `json:"count"`
}

func (s *Server) handleRecommendFriends(ctx context.Context, _ *mcp.CallToolRequest, input RecommendFriendsInput) (*mcp.CallToolResult, RecommendFriendsOutput, error) {
	if input.UserID == "" {
		return toolError("user_id is required"), RecommendFriendsOutput{}, nil
	}

	s.config.Logger.Debug("MCP recommend_friends request", "user_id", input.UserID)

	recs, err := s.config.Recommender.Recommend(ctx, input.UserID)
	if err != nil {
		s.config.Logger.Error("failed to recommend friends", "user_id", input.UserID, "error", err)
		return toolError("Failed to recommend friends: %v", err), RecommendFriendsOutput{}, nil
	}

	output := RecommendFriendsOutput{
		UserID:          input.UserID,
		Recommendations: make([]Recommendation, 0, len(recs)),
	}
	for _, r := range recs {
		output.Recommendations = append(output.Recommendations, Recommendation{
			UserID:     r.UserID,
			Confidence: r.ConfidenceScore,
			Reason:     r.Recommendation,
		})
	}
	output.Count = len(output.Recommendations)

	return jsonResult(output)
}
