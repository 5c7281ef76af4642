package handler

import (
	"github.com/gofiber/fiber/v2"

	"pkg.world.dev/world-engine/arena/dialect/procon"
	"pkg.world.dev/world-engine/arena/dialect/tomakomai"
	"pkg.world.dev/world-engine/arena/service"
)

func GetProconMatch(svc *service.Service) func(*fiber.Ctx) error {
	return func(ctx *fiber.Ctx) error {
		m, err := svc.GetMatchView(ctx.UserContext(), ctx.Params("id"), bearerToken(ctx))
		if err != nil {
			return err
		}
		return ctx.JSON(procon.EncodeMatch(m))
	}
}

func GetTomakomaiMatch(svc *service.Service) func(*fiber.Ctx) error {
	return func(ctx *fiber.Ctx) error {
		m, err := svc.GetMatchView(ctx.UserContext(), ctx.Params("id"), bearerToken(ctx))
		if err != nil {
			return err
		}
		return ctx.JSON(tomakomai.EncodeMatch(m))
	}
}
