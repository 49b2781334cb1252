package handler

import (
	"member-onboarding/internal/service"
	"member-onboarding/internal/utils"

	"github.com/gofiber/fiber/v2"
)

type ActivationHandler struct {
	activation *service.ActivationService
}

func NewActivationHandler(activation *service.ActivationService) *ActivationHandler {
	return &ActivationHandler{activation: activation}
}

type ActivationRequest struct {
	MemberID    string `json:"member_id"`
	TempSecret  string `json:"temp_secret"`
	NewPassword string `json:"new_password"`
}

func (h *ActivationHandler) Activate(c *fiber.Ctx) error {
	var req ActivationRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", err)
	}
	if req.MemberID == "" || req.TempSecret == "" || req.NewPassword == "" {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "member_id, temp_secret and new_password are required", nil)
	}

	member, err := h.activation.Activate(c.UserContext(), req.MemberID, req.TempSecret, req.NewPassword)
	if err != nil {
		return respondError(c, "Activation failed", err)
	}

	return utils.SuccessResponse(c, "Account activated successfully", fiber.Map{
		"member_id":         member.MemberID,
		"activation_status": member.ActivationStatus,
	})
}
