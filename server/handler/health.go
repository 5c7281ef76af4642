package handler

import (
	"github.com/gofiber/fiber/v2"

	"pkg.world.dev/world-engine/arena/service"
)

type GetHealthResponse struct {
	IsServerRunning bool `json:"isServerRunning"`
	service.Health
}

func GetHealth(svc *service.Service) func(c *fiber.Ctx) error {
	return func(ctx *fiber.Ctx) error {
		return ctx.JSON(GetHealthResponse{
			IsServerRunning: true,
			Health:          svc.Health(),
		})
	}
}
