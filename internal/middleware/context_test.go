package middleware_test

import (
	"context"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/localnerve/moka/internal/middleware"
)

func TestContextCarriesCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	app := fiber.New()
	app.Use(middleware.Context(ctx))
	app.Get("/", func(c *fiber.Ctx) error {
		if c.UserContext().Err() != nil {
			return c.SendStatus(fiber.StatusServiceUnavailable)
		}
		return c.SendStatus(fiber.StatusOK)
	})

	resp, err := app.Test(httptest.NewRequest("GET", "/", nil))
	if err != nil {
		t.Fatalf("Failed to execute request: %v", err)
	}
	if resp.StatusCode != fiber.StatusOK {
		t.Errorf("Expected status 200 before cancel, got %d", resp.StatusCode)
	}

	cancel()

	resp, err = app.Test(httptest.NewRequest("GET", "/", nil))
	if err != nil {
		t.Fatalf("Failed to execute request: %v", err)
	}
	if resp.StatusCode != fiber.StatusServiceUnavailable {
		t.Errorf("Expected status 503 after cancel, got %d", resp.StatusCode)
	}
}
