package middleware_test

import (
	"io"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/localnerve/moka/internal/middleware"
)

func newApp() *fiber.App {
	app := fiber.New()
	app.Use(middleware.RequestID())
	app.Get("/", func(c *fiber.Ctx) error {
		return c.SendString(middleware.GetRequestID(c))
	})
	return app
}

func TestRequestIDAssigned(t *testing.T) {
	resp, err := newApp().Test(httptest.NewRequest("GET", "/", nil))
	if err != nil {
		t.Fatalf("Failed to execute request: %v", err)
	}

	body, _ := io.ReadAll(resp.Body)
	if _, err := uuid.Parse(string(body)); err != nil {
		t.Errorf("Expected a uuid, got %q", body)
	}
	if resp.Header.Get(middleware.RequestIDHeader) != string(body) {
		t.Errorf("Expected header %q to echo the id, got %q", middleware.RequestIDHeader, resp.Header.Get(middleware.RequestIDHeader))
	}
}

func TestRequestIDKept(t *testing.T) {
	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set(middleware.RequestIDHeader, "abc-123")

	resp, err := newApp().Test(req)
	if err != nil {
		t.Fatalf("Failed to execute request: %v", err)
	}

	body, _ := io.ReadAll(resp.Body)
	if string(body) != "abc-123" {
		t.Errorf("Expected inbound id to be kept, got %q", body)
	}
}
