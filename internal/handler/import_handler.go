package handler

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"member-onboarding/internal/config"
	"member-onboarding/internal/models"
	"member-onboarding/internal/service"
	"member-onboarding/internal/utils"

	"github.com/gofiber/fiber/v2"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

type ImportHandler struct {
	onboarding   *service.OnboardingService
	recovery     *service.RecoveryService
	excelService *service.ExcelService
	cfg          *config.Config
}

func NewImportHandler(
	onboarding *service.OnboardingService,
	recovery *service.RecoveryService,
	excelService *service.ExcelService,
	cfg *config.Config,
) *ImportHandler {
	return &ImportHandler{
		onboarding:   onboarding,
		recovery:     recovery,
		excelService: excelService,
		cfg:          cfg,
	}
}

// readUpload returns the name and content of the multipart "file" field.
func (h *ImportHandler) readUpload(c *fiber.Ctx) (string, []byte, error) {
	file, err := c.FormFile("file")
	if err != nil {
		return "", nil, fmt.Errorf("file is required: %w", err)
	}

	ext := strings.ToLower(filepath.Ext(file.Filename))
	if ext != ".xlsx" && ext != ".csv" {
		return "", nil, fmt.Errorf("only .xlsx and .csv files are allowed")
	}
	if h.cfg.UploadMaxSize > 0 && file.Size > int64(h.cfg.UploadMaxSize) {
		return "", nil, fmt.Errorf("file size exceeds maximum limit")
	}

	f, err := file.Open()
	if err != nil {
		return "", nil, fmt.Errorf("failed to open upload: %w", err)
	}
	defer f.Close()

	content, err := io.ReadAll(f)
	if err != nil {
		return "", nil, fmt.Errorf("failed to read upload: %w", err)
	}
	return file.Filename, content, nil
}

func (h *ImportHandler) Preview(c *fiber.Ctx) error {
	filename, content, err := h.readUpload(c)
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid upload", err)
	}

	result, err := h.onboarding.Preview(c.UserContext(), filename, content)
	if err != nil {
		return respondError(c, "Failed to preview import", err)
	}
	return utils.SuccessResponse(c, "Preview generated successfully", result)
}

func (h *ImportHandler) Confirm(c *fiber.Ctx) error {
	filename, content, err := h.readUpload(c)
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid upload", err)
	}

	req := models.ConfirmRequest{
		OperatorID:   localInt(c, "user_id"),
		OperatorName: localString(c, "username"),
		Filename:     filename,
		Content:      content,
	}
	async := formBool(c, "async")

	result, err := h.onboarding.Confirm(c.UserContext(), req, async)
	if err != nil {
		return respondError(c, "Failed to import members", err)
	}
	if result.Status != models.LedgerCompleted {
		return c.Status(fiber.StatusAccepted).JSON(utils.Response{
			Success: true,
			Message: "Import accepted for processing",
			Data:    result,
		})
	}
	return utils.SuccessResponse(c, "Import completed", result)
}

func (h *ImportHandler) GetLedgers(c *fiber.Ctx) error {
	params := utils.GetPaginationParams(c)

	ledgers, total, err := h.onboarding.ListLedgers(c.UserContext(), params.Page, params.Limit)
	if err != nil {
		return respondError(c, "Failed to retrieve imports", err)
	}

	pagination := utils.CalculatePagination(params.Page, params.Limit, total)
	return utils.PaginatedResponseBuilder(c, "Imports retrieved successfully", ledgers, pagination)
}

func (h *ImportHandler) ExportLedgers(c *fiber.Ctx) error {
	ledgers, _, err := h.onboarding.ListLedgers(c.UserContext(), 1, 1000)
	if err != nil {
		return respondError(c, "Failed to retrieve imports", err)
	}

	content, err := h.excelService.ExportLedgers(ledgers)
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to export imports", err)
	}
	return sendXLSX(c, "imports_"+time.Now().Format("20060102_150405")+".xlsx", content)
}

func (h *ImportHandler) GetLedger(c *fiber.Ctx) error {
	id := c.Params("id")
	ledger, err := h.onboarding.GetLedger(c.UserContext(), id)
	if err != nil {
		return respondError(c, "Import not found", err)
	}

	data := fiber.Map{
		"ledger":     ledger,
		"statistics": ledger.Statistics(),
	}
	if ledger.Status == models.LedgerProcessing {
		if progress, err := h.onboarding.Progress(c.UserContext(), id); err == nil && progress != nil {
			data["progress"] = progress
		}
	}
	errs, err := h.onboarding.LedgerErrors(c.UserContext(), id)
	if err != nil {
		return respondError(c, "Failed to retrieve import errors", err)
	}
	data["errors"] = errs

	return utils.SuccessResponse(c, "Import retrieved successfully", data)
}

func (h *ImportHandler) DownloadErrorReport(c *fiber.Ctx) error {
	id := c.Params("id")
	ledger, err := h.onboarding.GetLedger(c.UserContext(), id)
	if err != nil {
		return respondError(c, "Import not found", err)
	}
	errs, err := h.onboarding.LedgerErrors(c.UserContext(), id)
	if err != nil {
		return respondError(c, "Failed to retrieve import errors", err)
	}

	report, err := h.excelService.ErrorReport(ledger, errs)
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to build error report", err)
	}
	return sendXLSX(c, fmt.Sprintf("import_errors_%s.xlsx", id), report)
}

func (h *ImportHandler) Recovery(c *fiber.Ctx) error {
	report, err := h.recovery.Recover(c.UserContext(), c.Params("id"))
	if err != nil {
		return respondError(c, "Failed to build recovery report", err)
	}
	return utils.SuccessResponse(c, "Recovery report generated", report)
}

func (h *ImportHandler) Reprocess(c *fiber.Ctx) error {
	result, err := h.onboarding.Reprocess(c.UserContext(), c.Params("id"))
	if err != nil {
		return respondError(c, "Failed to reprocess import", err)
	}
	return utils.SuccessResponse(c, "Import reprocessed", result)
}

func (h *ImportHandler) DownloadTemplate(c *fiber.Ctx) error {
	content, err := h.excelService.MemberTemplate()
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to generate template", err)
	}
	return sendXLSX(c, "member_import_template.xlsx", content)
}

func sendXLSX(c *fiber.Ctx, filename string, content []byte) error {
	c.Set(fiber.HeaderContentType, xlsxContentType)
	c.Set(fiber.HeaderContentDisposition, fmt.Sprintf("attachment; filename=%q", filename))
	return c.Send(content)
}

func localInt(c *fiber.Ctx, key string) int {
	v, _ := c.Locals(key).(int)
	return v
}

func localString(c *fiber.Ctx, key string) string {
	v, _ := c.Locals(key).(string)
	return v
}

func formBool(c *fiber.Ctx, key string) bool {
	switch strings.ToLower(c.FormValue(key)) {
	case "1", "true", "yes", "on":
		return true
	}
	return false
}
