package handler

import (
	"errors"

	"member-onboarding/internal/models"
	"member-onboarding/internal/utils"

	"github.com/gofiber/fiber/v2"
)

// statusFor maps domain errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case models.IsFileError(err):
		return fiber.StatusUnprocessableEntity
	case errors.Is(err, models.ErrMemberNotFound), errors.Is(err, models.ErrLedgerNotFound):
		return fiber.StatusNotFound
	case errors.Is(err, models.ErrInvalidCredential):
		return fiber.StatusUnauthorized
	case errors.Is(err, models.ErrTokenExpired), errors.Is(err, models.ErrTokenConsumed):
		return fiber.StatusGone
	case errors.Is(err, models.ErrLocked), errors.Is(err, models.ErrLedgerClosed),
		errors.Is(err, models.ErrInvalidTransition), errors.Is(err, models.ErrDuplicateIdentity):
		return fiber.StatusConflict
	case errors.Is(err, models.ErrIneligible), errors.Is(err, models.ErrRetryExhausted):
		return fiber.StatusUnprocessableEntity
	case errors.Is(err, models.ErrChannelUnavailable):
		return fiber.StatusServiceUnavailable
	}
	return fiber.StatusInternalServerError
}

func respondError(c *fiber.Ctx, message string, err error) error {
	var fe *models.FileError
	if errors.As(err, &fe) {
		return utils.ErrorResponseWithData(c, fiber.StatusUnprocessableEntity, fe.Error(), fe)
	}
	return utils.ErrorResponse(c, statusFor(err), message, err)
}
