package api

import (
	"github.com/gofiber/fiber/v2"
)

// handleListFriends handles GET /users/:id/friends.
func (s *Server) handleListFriends(c *fiber.Ctx) error {
	friends, err := s.config.Recommend.Friends(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(list(friends))
}

// handleAddFriend handles POST /users/:id/friends.
func (s *Server) handleAddFriend(c *fiber.Ctx) error {
	var req friendRequest
	if err := bind(c, &req); err != nil {
		return err
	}

	if err := s.config.Recommend.AddFriend(c.UserContext(), c.Params("id"), req.FriendID); err != nil {
		return err
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// handleRecommendations handles GET /users/:id/friend-recommendations and
// its older alias /users/:id/recommendations.
func (s *Server) handleRecommendations(c *fiber.Ctx) error {
	recs, err := s.config.Recommend.Recommend(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(list(recs))
}

// handleExplanation handles GET /users/:id/friend-recommendations/:other/explanation.
func (s *Server) handleExplanation(c *fiber.Ctx) error {
	exp, err := s.config.Recommend.Explain(c.UserContext(), c.Params("id"), c.Params("other"))
	if err != nil {
		return err
	}
	return c.JSON(exp)
}
