package handler

import (
	"errors"
	"strconv"
	"time"

	"member-onboarding/internal/models"
	"member-onboarding/internal/service"
	"member-onboarding/internal/utils"

	"github.com/gofiber/fiber/v2"
)

const maxBulkMembers = 500

type MemberHandler struct {
	members      *service.MemberService
	retries      *service.RetryOrchestrator
	excelService *service.ExcelService
}

func NewMemberHandler(members *service.MemberService, retries *service.RetryOrchestrator, excelService *service.ExcelService) *MemberHandler {
	return &MemberHandler{
		members:      members,
		retries:      retries,
		excelService: excelService,
	}
}

type channelRequest struct {
	Channel string `json:"channel"`
}

type bulkRequest struct {
	MemberIDs []int64 `json:"member_ids"`
	Channel   string  `json:"channel"`
}

func (h *MemberHandler) GetMembers(c *fiber.Ctx) error {
	params := utils.GetPaginationParams(c)
	filter := models.MemberFilter{
		Status:   c.Query("status"),
		Search:   params.Search,
		LedgerID: c.Query("ledger_id"),
		Page:     params.Page,
		Limit:    params.Limit,
		OrderBy:  params.OrderBy,
		OrderDir: params.OrderDir,
	}

	if filter.Status != "" {
		if _, err := models.ParseActivationStatus(filter.Status); err != nil {
			return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid status filter", err)
		}
	}

	items, total, err := h.members.List(c.UserContext(), filter)
	if err != nil {
		return respondError(c, "Failed to retrieve members", err)
	}

	pagination := utils.CalculatePagination(params.Page, params.Limit, total)
	return utils.PaginatedResponseBuilder(c, "Members retrieved successfully", items, pagination)
}

func (h *MemberHandler) ExportMembers(c *fiber.Ctx) error {
	filter := models.MemberFilter{
		Status:   c.Query("status"),
		Search:   c.Query("search"),
		LedgerID: c.Query("ledger_id"),
		Limit:    10000,
	}
	items, _, err := h.members.List(c.UserContext(), filter)
	if err != nil {
		return respondError(c, "Failed to retrieve members", err)
	}

	content, err := h.excelService.ExportMembers(items)
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to export members", err)
	}
	return sendXLSX(c, "members_"+time.Now().Format("20060102_150405")+".xlsx", content)
}

func (h *MemberHandler) GetMember(c *fiber.Ctx) error {
	id, err := memberPK(c)
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid member ID", err)
	}

	member, err := h.members.Get(c.UserContext(), id)
	if err != nil {
		return respondError(c, "Member not found", err)
	}
	return utils.SuccessResponse(c, "Member retrieved successfully", member)
}

func (h *MemberHandler) GetRetryStatus(c *fiber.Ctx) error {
	id, err := memberPK(c)
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid member ID", err)
	}

	status, err := h.retries.RetryStatus(c.UserContext(), id)
	if err != nil {
		return respondError(c, "Failed to retrieve retry status", err)
	}
	return utils.SuccessResponse(c, "Retry status retrieved successfully", status)
}

func (h *MemberHandler) Resend(c *fiber.Ctx) error {
	id, ch, err := h.singleRequest(c)
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request", err)
	}

	outcome, err := h.retries.Resend(c.UserContext(), id, ch)
	return h.outcomeResponse(c, "Resend", outcome, err)
}

func (h *MemberHandler) Retry(c *fiber.Ctx) error {
	id, ch, err := h.singleRequest(c)
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request", err)
	}

	outcome, err := h.retries.Retry(c.UserContext(), id, ch, service.RetryManual)
	return h.outcomeResponse(c, "Retry", outcome, err)
}

func (h *MemberHandler) BulkResend(c *fiber.Ctx) error {
	ids, ch, err := bulkInput(c)
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request", err)
	}
	return utils.SuccessResponse(c, "Bulk resend finished", h.retries.BulkResend(c.UserContext(), ids, ch))
}

func (h *MemberHandler) BulkRetry(c *fiber.Ctx) error {
	ids, ch, err := bulkInput(c)
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request", err)
	}
	return utils.SuccessResponse(c, "Bulk retry finished", h.retries.BulkRetry(c.UserContext(), ids, ch))
}

func (h *MemberHandler) singleRequest(c *fiber.Ctx) (int64, models.ChannelName, error) {
	id, err := memberPK(c)
	if err != nil {
		return 0, "", err
	}
	var req channelRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return 0, "", err
		}
	}
	ch, err := channelOrDefault(req.Channel)
	return id, ch, err
}

// outcomeResponse reports a failed send as 200 with the outcome; only a
// refused operation is an error response.
func (h *MemberHandler) outcomeResponse(c *fiber.Ctx, action string, outcome models.RetryOutcome, err error) error {
	if err != nil {
		return utils.ErrorResponseWithData(c, statusFor(err), action+" not performed: "+err.Error(), outcome)
	}
	if outcome.Status == models.RetryFailed {
		return c.JSON(utils.Response{
			Success: false,
			Message: action + " attempted but delivery failed",
			Data:    outcome,
		})
	}
	return utils.SuccessResponse(c, action+" delivered", outcome)
}

func bulkInput(c *fiber.Ctx) ([]int64, models.ChannelName, error) {
	var req bulkRequest
	if err := c.BodyParser(&req); err != nil {
		return nil, "", err
	}
	if len(req.MemberIDs) == 0 {
		return nil, "", errors.New("member_ids is required")
	}
	if len(req.MemberIDs) > maxBulkMembers {
		return nil, "", errors.New("too many member_ids, max " + strconv.Itoa(maxBulkMembers))
	}
	ch, err := channelOrDefault(req.Channel)
	return req.MemberIDs, ch, err
}

func channelOrDefault(raw string) (models.ChannelName, error) {
	if raw == "" {
		return models.ChannelSMS, nil
	}
	return models.ParseChannel(raw)
}

func memberPK(c *fiber.Ctx) (int64, error) {
	return strconv.ParseInt(c.Params("id"), 10, 64)
}
