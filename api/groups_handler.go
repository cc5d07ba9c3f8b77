package api

import (
	"github.com/gofiber/fiber/v2"
)

// handleCreateGroup handles POST /groups.
func (s *Server) handleCreateGroup(c *fiber.Ctx) error {
	var req createGroupRequest
	if err := bind(c, &req); err != nil {
		return err
	}

	g, err := s.config.Groups.Create(c.UserContext(), req.Name, req.Type, req.Description)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(g)
}

// handleGetGroup handles GET /groups/:id.
func (s *Server) handleGetGroup(c *fiber.Ctx) error {
	g, err := s.config.Groups.Get(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(g)
}

// handleGroupMembers handles GET /groups/:id/members.
func (s *Server) handleGroupMembers(c *fiber.Ctx) error {
	members, err := s.config.Groups.Members(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(list(members))
}

// handleJoinGroup handles POST /groups/:id/members.
func (s *Server) handleJoinGroup(c *fiber.Ctx) error {
	var req joinGroupRequest
	if err := bind(c, &req); err != nil {
		return err
	}

	if err := s.config.Groups.Join(c.UserContext(), c.Params("id"), req.UserID); err != nil {
		return err
	}
	return c.SendStatus(fiber.StatusNoContent)
}
