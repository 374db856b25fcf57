package middleware

import (
	"context"

	"github.com/gofiber/fiber/v2"
)

// Context makes ctx the user context of every request, so handlers stop when
// ctx is cancelled
func Context(ctx context.Context) fiber.Handler {
	return func(c *fiber.Ctx) error {
		c.SetUserContext(ctx)
		return c.Next()
	}
}
