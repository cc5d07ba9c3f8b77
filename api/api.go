package api

import (
	"errors"
	"log/slog"

	"github.com/gofiber/adaptor/v2"
	"github.com/gofiber/fiber/v2"
)

// Server is the API server for the rapport matchmaking engine.
type Server struct {
	config Config
	logger *slog.Logger
	app    *fiber.App
}

// NewServer creates a new API server.
// Every service in config is required except the MCP handler.
func NewServer(config Config, logger *slog.Logger) (*Server, error) {
	switch {
	case config.Profiles == nil:
		return nil, errors.New("profile store is required")
	case config.Groups == nil:
		return nil, errors.New("group index is required")
	case config.Ledger == nil:
		return nil, errors.New("interaction ledger is required")
	case config.Evolve == nil:
		return nil, errors.New("evolve engine is required")
	case config.Matching == nil:
		return nil, errors.New("match ranker is required")
	case config.Recommend == nil:
		return nil, errors.New("recommender is required")
	case logger == nil:
		return nil, errors.New("logger is required")
	}

	s := &Server{
		config: config,
		logger: logger,
	}

	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
		ErrorHandler:          s.handleError,
	})
	app.Use(s.requestLogger)

	app.Get("/ping", s.handlePing)

	app.Get("/users/:id/profile", s.handleGetProfile)
	app.Post("/users/:id/profile", s.handlePutProfile)
	app.Get("/users/:id/groups", s.handleUserGroups)
	app.Get("/users/:id/description", s.handleGetDescription)
	app.Post("/users/:id/description", s.handleSetDescription)
	app.Get("/users/:id/interactions", s.handleListInteractions)

	app.Get("/users/:id/friends", s.handleListFriends)
	app.Post("/users/:id/friends", s.handleAddFriend)
	app.Get("/users/:id/friend-recommendations", s.handleRecommendations)
	app.Get("/users/:id/recommendations", s.handleRecommendations)
	app.Get("/users/:id/friend-recommendations/:other/explanation", s.handleExplanation)

	app.Post("/groups", s.handleCreateGroup)
	app.Get("/groups/:id", s.handleGetGroup)
	app.Get("/groups/:id/members", s.handleGroupMembers)
	app.Post("/groups/:id/members", s.handleJoinGroup)

	app.Post("/chat", s.handleChat)

	app.Post("/matchmaking/request", s.handleMatchRequest)
	app.Get("/matchmaking/embeddings/:id", s.handleEmbeddingMatches)

	if config.MCP != nil {
		app.All("/mcp", adaptor.HTTPHandler(config.MCP))
	}

	s.app = app
	return s, nil
}

// App returns the underlying fiber app.
func (s *Server) App() *fiber.App {
	return s.app
}

// Run starts the API server on the configured address.
func (s *Server) Run() error {
	s.logger.Info("starting API server",
		"listen", s.config.ListenAddr,
		"mcp", s.config.MCP != nil,
	)
	return s.app.Listen(s.config.ListenAddr)
}

// Shutdown gracefully shuts down the API server.
func (s *Server) Shutdown() error {
	return s.app.Shutdown()
}
