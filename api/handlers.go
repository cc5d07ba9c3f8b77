package api

import (
	"github.com/gofiber/fiber/v2"

	"github.com/papercomputeco/rapport/pkg/social"
)

// StatusResponse acknowledges a write with no other payload.
type StatusResponse struct {
	Status string `json:"status"`
}

type descriptionRequest struct {
	Description string `json:"description" validate:"required"`
}

type friendRequest struct {
	FriendID string `json:"friend_id" validate:"required"`
}

type createGroupRequest struct {
	Name        string           `json:"name" validate:"required"`
	Type        social.GroupType `json:"type" validate:"required,oneof=work friends club other"`
	Description string           `json:"description"`
}

type joinGroupRequest struct {
	UserID string `json:"user_id" validate:"required"`
}

// handlePing returns a simple health check response.
func (s *Server) handlePing(c *fiber.Ctx) error {
	return c.JSON("pong")
}

// handleGetProfile handles GET /users/:id/profile.
func (s *Server) handleGetProfile(c *fiber.Ctx) error {
	p, err := s.config.Profiles.GetProfile(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(p)
}

// handlePutProfile handles POST /users/:id/profile. The path id wins; a body
// naming a different user is rejected.
func (s *Server) handlePutProfile(c *fiber.Ctx) error {
	var p social.UserProfile
	if err := c.BodyParser(&p); err != nil {
		return social.NewValidationError("body", "invalid JSON")
	}

	id := c.Params("id")
	if p.UserID != "" && p.UserID != id {
		return social.NewValidationError("user_id", "does not match path")
	}
	p.UserID = id

	if _, err := s.config.Evolve.SaveProfile(c.UserContext(), &p); err != nil {
		return err
	}
	return c.JSON(StatusResponse{Status: "success"})
}

// handleUserGroups handles GET /users/:id/groups.
func (s *Server) handleUserGroups(c *fiber.Ctx) error {
	groups, err := s.config.Groups.ForUser(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(list(groups))
}

// handleGetDescription handles GET /users/:id/description.
func (s *Server) handleGetDescription(c *fiber.Ctx) error {
	d, err := s.config.Evolve.Description(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(d)
}

// handleSetDescription handles POST /users/:id/description.
func (s *Server) handleSetDescription(c *fiber.Ctx) error {
	var req descriptionRequest
	if err := bind(c, &req); err != nil {
		return err
	}

	d, err := s.config.Evolve.SetDescription(c.UserContext(), c.Params("id"), req.Description)
	if err != nil {
		return err
	}
	return c.JSON(d)
}

// handleListInteractions handles GET /users/:id/interactions.
// Query parameters:
//   - group_id (optional): restrict to one group scope
func (s *Server) handleListInteractions(c *fiber.Ctx) error {
	recs, err := s.config.Ledger.ListInteractions(c.UserContext(), c.Params("id"), c.Query("group_id"))
	if err != nil {
		return err
	}
	return c.JSON(list(recs))
}

// handleChat handles POST /chat. An empty receiver or "assistant" reaches the
// description chat; any other receiver is answered in that user's persona.
func (s *Server) handleChat(c *fiber.Ctx) error {
	var msg social.ChatMessage
	if err := bind(c, &msg); err != nil {
		return err
	}

	resp, err := s.config.Evolve.Chat(c.UserContext(), msg)
	if err != nil {
		return err
	}
	return c.JSON(resp)
}

// list keeps empty results encoded as [] rather than null.
func list[T any](v []T) []T {
	if v == nil {
		return []T{}
	}
	return v
}
