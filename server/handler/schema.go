package handler

import (
	"github.com/gofiber/fiber/v2"
	"github.com/invopop/jsonschema"

	"pkg.world.dev/world-engine/arena/dialect"
	"pkg.world.dev/world-engine/arena/dialect/kakomimasu"
	"pkg.world.dev/world-engine/arena/dialect/procon"
	"pkg.world.dev/world-engine/arena/dialect/tomakomai"
)

// ActionSchemas reflects the action payload of every dialect once.
func ActionSchemas() map[dialect.Name]*jsonschema.Schema {
	return map[dialect.Name]*jsonschema.Schema{
		dialect.Kakomimasu: jsonschema.Reflect(&kakomimasu.ActionRequest{}),
		dialect.Procon:     jsonschema.Reflect(&procon.ActionRequest{}),
		dialect.Tomakomai:  jsonschema.Reflect(&tomakomai.ActionRequest{}),
	}
}

// GetActionSchema serves the JSON schema of a dialect's action payload.
func GetActionSchema(schemas map[dialect.Name]*jsonschema.Schema) func(c *fiber.Ctx) error {
	return func(ctx *fiber.Ctx) error {
		schema, ok := schemas[dialect.Name(ctx.Params("dialect"))]
		if !ok {
			return fiber.NewError(fiber.StatusNotFound, "unknown dialect: "+ctx.Params("dialect"))
		}
		return ctx.JSON(schema)
	}
}
