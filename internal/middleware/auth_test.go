package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"member-onboarding/internal/config"
	"member-onboarding/internal/utils"

	"github.com/gofiber/fiber/v2"
)

func newApp(cfg *config.Config) *fiber.App {
	app := fiber.New()
	app.Get("/admin", AuthMiddleware(cfg), AdminOnly(), func(c *fiber.Ctx) error {
		return c.SendString("ok")
	})
	return app
}

func status(t *testing.T, app *fiber.App, token string) int {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/admin", nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := app.Test(req)
	if err != nil {
		t.Fatal(err)
	}
	return resp.StatusCode
}

func TestAuthMiddleware(t *testing.T) {
	cfg := &config.Config{AppEnv: "production", JWTSecret: "secret"}
	app := newApp(cfg)

	admin, _ := utils.GenerateToken(1, "root", "admin", "secret", time.Hour)
	operator, _ := utils.GenerateToken(2, "op", "operator", "secret", time.Hour)
	forged, _ := utils.GenerateToken(1, "root", "admin", "other", time.Hour)
	expired, _ := utils.GenerateToken(1, "root", "admin", "secret", -time.Minute)

	tests := []struct {
		name  string
		token string
		want  int
	}{
		{"missing", "", fiber.StatusUnauthorized},
		{"admin", admin, fiber.StatusOK},
		{"non admin", operator, fiber.StatusForbidden},
		{"wrong secret", forged, fiber.StatusUnauthorized},
		{"expired", expired, fiber.StatusUnauthorized},
		{"dev token outside development", "dev-token-x", fiber.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := status(t, app, tt.token); got != tt.want {
				t.Fatalf("status = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestDevTokenInDevelopment(t *testing.T) {
	app := newApp(&config.Config{AppEnv: "development", JWTSecret: "secret"})
	if got := status(t, app, "dev-token-local"); got != fiber.StatusOK {
		t.Fatalf("status = %d", got)
	}
}
