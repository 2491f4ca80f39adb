package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/soltixdb/pvratio/internal/models"
	"github.com/soltixdb/pvratio/internal/services"
)

// statusFor maps service error codes to HTTP status codes
func statusFor(code string) int {
	switch code {
	case services.CodeInvalidRequest, services.CodeInvalidParams,
		services.CodeInvalidFormat, services.CodeIngestFailed:
		return fiber.StatusBadRequest
	case services.CodeRunNotFound, services.CodeUnknownTable:
		return fiber.StatusNotFound
	default:
		return fiber.StatusInternalServerError
	}
}

func badRequest(c *fiber.Ctx, message string) error {
	return c.Status(fiber.StatusBadRequest).JSON(models.ErrorResponse{
		Error: models.ErrorDetail{
			Code:    services.CodeInvalidRequest,
			Message: message,
		},
	})
}

// serviceError writes err as an ErrorResponse. Errors that are not
// ServiceErrors are passed to the app error handler.
func (h *Handler) serviceError(c *fiber.Ctx, err error) error {
	var svcErr *services.ServiceError
	if !errors.As(err, &svcErr) {
		return err
	}

	status := statusFor(svcErr.Code)
	if status >= fiber.StatusInternalServerError {
		h.logger.Error("Request failed", "path", c.Path(), "code", svcErr.Code, "error", svcErr.Message)
	}
	return c.Status(status).JSON(models.ErrorResponse{
		Error: models.ErrorDetail{
			Code:    svcErr.Code,
			Message: svcErr.Message,
			Path:    c.Path(),
			Details: svcErr.Details,
		},
	})
}
