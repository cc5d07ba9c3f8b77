package api

import (
	"time"

	"github.com/gofiber/fiber/v2"
)

// requestLogger logs one line per request once the handler chain returns.
func (s *Server) requestLogger(c *fiber.Ctx) error {
	start := time.Now()
	err := c.Next()

	status := c.Response().StatusCode()
	if err != nil {
		status, _ = classify(err)
	}

	s.logger.Debug("request",
		"method", c.Method(),
		"path", c.Path(),
		"status", status,
		"duration", time.Since(start),
	)
	return err
}
