// Package mcp provides an MCP (Model Context Protocol) server that exposes
// matchmaking and friend recommendations as tools.
package mcp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/papercomputeco/rapport/pkg/social"
	"github.com/papercomputeco/rapport/pkg/utils"
)

// Matcher ranks candidates by description embedding.
type Matcher interface {
	ByEmbedding(ctx context.Context, userID, interactionType, groupID string) ([]social.Match, error)
}

// Recommender suggests new connections.
type Recommender interface {
	Recommend(ctx context.Context, userID string) ([]social.FriendRecommendation, error)
}

type Config struct {
	// Matcher backs the find_matches tool
	Matcher Matcher

	// Recommender backs the recommend_friends tool
	Recommender Recommender

	// Noop for empty MCP server
	Noop bool

	Logger *slog.Logger
}

type Server struct {
	config    Config
	mcpServer *mcp.Server
	handler   *mcp.StreamableHTTPHandler
}

// NewServer creates a new MCP server with the matchmaking tools.
func NewServer(c Config) (*Server, error) {
	s := &Server{
		config: c,
	}

	mcpServer := mcp.NewServer(
		&mcp.Implementation{
			Name:    "rapport",
			Version: utils.Version,
		},
		&mcp.ServerOptions{},
	)

	if !c.Noop {
		if c.Matcher == nil {
			return nil, errors.New("matcher is required")
		}
		if c.Recommender == nil {
			return nil, errors.New("recommender is required")
		}
		if c.Logger == nil {
			return nil, errors.New("logger is required")
		}

		mcp.AddTool(mcpServer, &mcp.Tool{
			Name:        findMatchesToolName,
			Description: findMatchesDescription,
		}, s.handleFindMatches)

		mcp.AddTool(mcpServer, &mcp.Tool{
			Name:        recommendFriendsToolName,
			Description: recommendFriendsDescription,
		}, s.handleRecommendFriends)
	}

	s.mcpServer = mcpServer

	// Create a streamable HTTP net/http handler for stateless operations
	s.handler = mcp.NewStreamableHTTPHandler(
		func(_ *http.Request) *mcp.Server {
			return mcpServer
		},
		&mcp.StreamableHTTPOptions{
			Stateless: true,
		},
	)

	return s, nil
}

// Handler returns the HTTP handler for the MCP server.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// MCPServer returns the underlying server, for in-process transports.
func (s *Server) MCPServer() *mcp.Server {
	return s.mcpServer
}

func toolError(format string, args ...any) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		IsError: true,
		Content: []mcp.Content{
			&mcp.TextContent{Text: fmt.Sprintf(format, args...)},
		},
	}
}
