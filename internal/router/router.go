package router

import (
	"errors"

	"member-onboarding/internal/app"
	"member-onboarding/internal/config"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
)

// New creates the fiber app with the shared middleware stack.
func New(cfg *config.Config) *fiber.App {
	server := fiber.New(fiber.Config{
		AppName:      cfg.AppName,
		BodyLimit:    bodyLimit(cfg),
		ErrorHandler: ErrorHandler,
	})

	server.Use(recover.New())
	server.Use(logger.New(logger.Config{
		Format: "[${time}] ${status} - ${method} ${path} (${latency})\n",
	}))
	server.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowHeaders: "Origin, Content-Type, Accept, Authorization",
		AllowMethods: "GET, POST, OPTIONS",
	}))

	return server
}

// bodyLimit leaves room for the multipart envelope around an upload.
func bodyLimit(cfg *config.Config) int {
	if cfg.UploadMaxSize <= 0 {
		return fiber.DefaultBodyLimit
	}
	return cfg.UploadMaxSize + 1<<20
}

func Setup(server *fiber.App, c *app.Container) {
	server.Get("/health", func(ctx *fiber.Ctx) error {
		return ctx.JSON(fiber.Map{
			"status": "ok",
			"app":    c.Config.AppName,
		})
	})

	api := server.Group("/api/v1")
	SetupAPIRoutes(api, c)
}

// ErrorHandler renders unhandled errors in the JSON response envelope.
func ErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	message := "Internal Server Error"

	var e *fiber.Error
	if errors.As(err, &e) {
		code = e.Code
		message = e.Message
	}

	return c.Status(code).JSON(fiber.Map{
		"success": false,
		"message": message,
		"error":   err.Error(),
	})
}
