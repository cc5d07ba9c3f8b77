package api

import (
	"errors"
	"maps"

	"github.com/gofiber/fiber/v2"

	"github.com/papercomputeco/rapport/pkg/similarity"
	"github.com/papercomputeco/rapport/pkg/social"
)

// ErrorResponse is the JSON body of every failed request.
type ErrorResponse struct {
	Error     string            `json:"error"`
	Fields    map[string]string `json:"fields,omitempty"`
	Retryable bool              `json:"retryable,omitempty"`
}

// handleError is the fiber error handler. Handlers return domain errors and
// this maps them onto status codes.
func (s *Server) handleError(c *fiber.Ctx, err error) error {
	status, body := classify(err)

	if status >= fiber.StatusInternalServerError {
		s.logger.Error("request failed",
			"method", c.Method(),
			"path", c.Path(),
			"status", status,
			"error", err,
		)
	}

	return c.Status(status).JSON(body)
}

func classify(err error) (int, ErrorResponse) {
	var (
		fiberErr *fiber.Error
		verr     *social.ValidationError
	)

	switch {
	case errors.As(err, &fiberErr):
		return fiberErr.Code, ErrorResponse{Error: fiberErr.Message}

	case errors.Is(err, similarity.ErrDimensionMismatch):
		return fiber.StatusBadRequest, ErrorResponse{
			Error:  err.Error(),
			Fields: map[string]string{"embedding": "dimension mismatch"},
		}

	case errors.As(err, &verr):
		return fiber.StatusBadRequest, ErrorResponse{
			Error:  err.Error(),
			Fields: maps.Clone(verr.Fields),
		}

	case errors.Is(err, social.ErrValidation):
		return fiber.StatusBadRequest, ErrorResponse{Error: err.Error()}

	case errors.Is(err, social.ErrNotFound):
		return fiber.StatusNotFound, ErrorResponse{Error: err.Error()}

	case errors.Is(err, social.ErrDerivationFailed):
		return fiber.StatusBadGateway, ErrorResponse{Error: err.Error(), Retryable: true}

	case errors.Is(err, social.ErrStorageUnavailable):
		return fiber.StatusServiceUnavailable, ErrorResponse{Error: "storage unavailable", Retryable: true}

	default:
		return fiber.StatusInternalServerError, ErrorResponse{Error: "internal server error"}
	}
}
