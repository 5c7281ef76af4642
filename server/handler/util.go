package handler

import (
	"strings"

	"github.com/gofiber/fiber/v2"
)

// bearerToken extracts the access token from an "Authorization: Bearer <token>" header. A bare token is
// accepted as well.
func bearerToken(ctx *fiber.Ctx) string {
	auth := strings.TrimSpace(ctx.Get(fiber.HeaderAuthorization))
	if len(auth) > 7 && strings.EqualFold(auth[:7], "bearer ") {
		return strings.TrimSpace(auth[7:])
	}
	return auth
}
