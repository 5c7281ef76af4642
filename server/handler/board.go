package handler

import (
	"github.com/gofiber/fiber/v2"

	"pkg.world.dev/world-engine/arena/dialect/kakomimasu"
	"pkg.world.dev/world-engine/arena/service"
	"pkg.world.dev/world-engine/arena/types"
)

// PutBoard stores a board in the catalog under the name in the path.
func PutBoard(svc *service.Service) func(*fiber.Ctx) error {
	return func(ctx *fiber.Ctx) error {
		board := new(types.Board)
		if err := ctx.BodyParser(board); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "failed to parse request body: "+err.Error())
		}
		board.Name = ctx.Params("name")
		if err := svc.PutBoard(ctx.UserContext(), *board); err != nil {
			return err
		}
		return ctx.JSON(board)
	}
}

func GetBoard(svc *service.Service) func(*fiber.Ctx) error {
	return func(ctx *fiber.Ctx) error {
		board, err := svc.Board(ctx.UserContext(), ctx.Params("name"))
		if err != nil {
			return err
		}
		return ctx.JSON(kakomimasu.EncodeBoard(board))
	}
}

func GetBoards(svc *service.Service) func(*fiber.Ctx) error {
	return func(ctx *fiber.Ctx) error {
		names, err := svc.ListBoards(ctx.UserContext())
		if err != nil {
			return err
		}
		return ctx.JSON(names)
	}
}
