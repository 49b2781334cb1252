package router

import (
	"member-onboarding/internal/app"
	"member-onboarding/internal/handler"
	"member-onboarding/internal/middleware"

	"github.com/gofiber/fiber/v2"
)

func SetupAPIRoutes(router fiber.Router, c *app.Container) {
	importHandler := handler.NewImportHandler(c.Onboarding, c.Recovery, c.Excel, c.Config)
	memberHandler := handler.NewMemberHandler(c.MemberSvc, c.Retries, c.Excel)
	activationHandler := handler.NewActivationHandler(c.Activation)

	// Public routes
	router.Post("/activation", activationHandler.Activate)

	// Admin routes
	auth := middleware.AuthMiddleware(c.Config)
	adminOnly := middleware.AdminOnly()

	imports := router.Group("/imports", auth, adminOnly)
	imports.Get("/template", importHandler.DownloadTemplate)
	imports.Get("/export", importHandler.ExportLedgers)
	imports.Post("/preview", importHandler.Preview)
	imports.Post("/confirm", importHandler.Confirm)
	imports.Get("/", importHandler.GetLedgers)
	imports.Get("/:id", importHandler.GetLedger)
	imports.Get("/:id/errors/report", importHandler.DownloadErrorReport)
	imports.Get("/:id/recovery", importHandler.Recovery)
	imports.Post("/:id/reprocess", importHandler.Reprocess)

	members := router.Group("/members", auth, adminOnly)
	members.Get("/", memberHandler.GetMembers)
	members.Get("/export", memberHandler.ExportMembers)
	members.Post("/resend", memberHandler.BulkResend)
	members.Post("/retry", memberHandler.BulkRetry)
	members.Get("/:id", memberHandler.GetMember)
	members.Get("/:id/retry-status", memberHandler.GetRetryStatus)
	members.Post("/:id/resend", memberHandler.Resend)
	members.Post("/:id/retry", memberHandler.Retry)
}
