package handler

import (
	"github.com/gofiber/fiber/v2"

	"pkg.world.dev/world-engine/arena/dialect"
	"pkg.world.dev/world-engine/arena/dialect/kakomimasu"
	"pkg.world.dev/world-engine/arena/match"
	"pkg.world.dev/world-engine/arena/service"
	"pkg.world.dev/world-engine/arena/types"
)

type CreateMatchRequest = service.CreateMatchRequest

type CreateMatchResponse struct {
	Match   kakomimasu.Match       `json:"match"`
	Players []service.AttachResult `json:"players"`
}

// PostMatch creates a match.
//
//	@Summary      Creates a match
//	@Accept       application/json
//	@Produce      application/json
//	@Param        body  body      CreateMatchRequest   true  "Board, roster and options"
//	@Success      200   {object}  CreateMatchResponse  "The new match and the seated players"
//	@Failure      400   {object}  server.ErrorResponse "Invalid board"
//	@Router       /v1/matches [post]
func PostMatch(svc *service.Service) func(*fiber.Ctx) error {
	return func(ctx *fiber.Ctx) error {
		req := new(CreateMatchRequest)
		if err := ctx.BodyParser(req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "failed to parse request body: "+err.Error())
		}
		m, players, err := svc.CreateMatch(ctx.UserContext(), *req)
		if err != nil {
			return err
		}
		return ctx.JSON(CreateMatchResponse{Match: kakomimasu.EncodeMatch(m), Players: players})
	}
}

// GetMatches lists matches, optionally restricted to the phases in ?phase=open,live.
func GetMatches(svc *service.Service) func(*fiber.Ctx) error {
	return func(ctx *fiber.Ctx) error {
		phases, err := parsePhases(ctx.Query("phase"))
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		matches, err := svc.ListMatches(ctx.UserContext(), phases, ctx.QueryInt("limit"))
		if err != nil {
			return err
		}
		out := make([]kakomimasu.Match, 0, len(matches))
		for _, m := range matches {
			out = append(out, kakomimasu.EncodeMatch(m))
		}
		return ctx.JSON(out)
	}
}

// GetMatch returns a match view. With a seat token the match must be live.
func GetMatch(svc *service.Service) func(*fiber.Ctx) error {
	return func(ctx *fiber.Ctx) error {
		m, err := svc.GetMatchView(ctx.UserContext(), ctx.Params("id"), bearerToken(ctx))
		if err != nil {
			return err
		}
		return ctx.JSON(kakomimasu.EncodeMatch(m))
	}
}

// GetMatchLog returns the applied turns of a match.
func GetMatchLog(svc *service.Service) func(*fiber.Ctx) error {
	return func(ctx *fiber.Ctx) error {
		m, err := svc.GetMatchView(ctx.UserContext(), ctx.Params("id"), "")
		if err != nil {
			return err
		}
		return ctx.JSON(kakomimasu.EncodeLog(m))
	}
}

// PostPlayer seats a player.
func PostPlayer(svc *service.Service) func(*fiber.Ctx) error {
	return func(ctx *fiber.Ctx) error {
		req := new(match.SeatRequest)
		if len(ctx.Body()) > 0 {
			if err := ctx.BodyParser(req); err != nil {
				return fiber.NewError(fiber.StatusBadRequest, "failed to parse request body: "+err.Error())
			}
		}
		res, err := svc.AttachPlayer(ctx.UserContext(), ctx.Params("id"), *req)
		if err != nil {
			return err
		}
		return ctx.JSON(res)
	}
}

// PostArm arms an open match and fills its empty seats with guests.
func PostArm(svc *service.Service) func(*fiber.Ctx) error {
	return func(ctx *fiber.Ctx) error {
		m, err := svc.ForceArm(ctx.UserContext(), ctx.Params("id"))
		if err != nil {
			return err
		}
		return ctx.JSON(kakomimasu.EncodeMatch(m))
	}
}

// PostActions submits actions in the given dialect on behalf of the seat holding the bearer token.
func PostActions(svc *service.Service, name dialect.Name) func(*fiber.Ctx) error {
	return func(ctx *fiber.Ctx) error {
		receipt, err := svc.SubmitAction(ctx.UserContext(), name, ctx.Params("id"), bearerToken(ctx), ctx.Body())
		if err != nil {
			return err
		}
		return ctx.JSON(receipt)
	}
}

func parsePhases(raw string) ([]types.Phase, error) {
	var phases []types.Phase
	for _, s := range splitList(raw) {
		p := types.Phase(s)
		if !p.Valid() {
			return nil, fiber.NewError(fiber.StatusBadRequest, "unknown phase: "+s)
		}
		phases = append(phases, p)
	}
	return phases, nil
}
