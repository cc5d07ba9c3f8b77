package api

import (
	"github.com/gofiber/fiber/v2"

	"github.com/papercomputeco/rapport/pkg/social"
)

// handleMatchRequest handles POST /matchmaking/request.
func (s *Server) handleMatchRequest(c *fiber.Ctx) error {
	var req social.InteractionRequest
	if err := bind(c, &req); err != nil {
		return err
	}

	matches, err := s.config.Matching.ByPreference(c.UserContext(), req)
	if err != nil {
		return err
	}
	return c.JSON(list(matches))
}

// handleEmbeddingMatches handles GET /matchmaking/embeddings/:id.
// Query parameters:
//   - interaction_type (required): echoed on every match
//   - group_id (optional): restrict candidates to one group
func (s *Server) handleEmbeddingMatches(c *fiber.Ctx) error {
	interactionType := c.Query("interaction_type")
	if interactionType == "" {
		return social.NewValidationError("interaction_type", "required")
	}

	matches, err := s.config.Matching.ByEmbedding(c.UserContext(), c.Params("id"), interactionType, c.Query("group_id"))
	if err != nil {
		return err
	}
	return c.JSON(list(matches))
}
