package server

import (
	"errors"
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/rotisserie/eris"
	"github.com/rs/zerolog/log"

	"pkg.world.dev/world-engine/arena/match"
	"pkg.world.dev/world-engine/arena/service"
)

type ErrorResponse struct {
	Error Error `json:"error"`
}

type Error struct {
	Message    string `json:"message"`
	Code       string `json:"code"`
	RetryAfter *int   `json:"retryAfter,omitempty"`
}

var statusByError = []struct {
	err    error
	status int
	code   string
}{
	{match.ErrNotFound, fiber.StatusNotFound, "not_found"},
	{match.ErrTooEarly, fiber.StatusTooEarly, "too_early"},
	{match.ErrUnacceptableTime, fiber.StatusBadRequest, "unacceptable_time"},
	{match.ErrIllegalAgent, fiber.StatusBadRequest, "illegal_agent"},
	{match.ErrMalformedAction, fiber.StatusBadRequest, "malformed_action"},
	{match.ErrInvalidToken, fiber.StatusUnauthorized, "invalid_token"},
	{match.ErrNotAllowedSeat, fiber.StatusForbidden, "not_allowed_seat"},
	{match.ErrRosterFull, fiber.StatusConflict, "roster_full"},
	{match.ErrAlreadyJoined, fiber.StatusConflict, "already_joined"},
	{service.ErrInvalidBoard, fiber.StatusBadRequest, "invalid_board"},
	{service.ErrUnknownDialect, fiber.StatusNotFound, "unknown_dialect"},
	{service.ErrNoCatalog, fiber.StatusNotImplemented, "no_catalog"},
}

// ErrorHandler maps domain errors to status codes. Anything it does not recognize is logged and
// reported as a bare internal error.
var ErrorHandler = func(c *fiber.Ctx, err error) error {
	c.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)

	var fe *fiber.Error
	if errors.As(err, &fe) {
		return c.Status(fe.Code).JSON(ErrorResponse{Error: Error{Message: fe.Message, Code: "request"}})
	}

	for _, e := range statusByError {
		if !errors.Is(err, e.err) {
			continue
		}
		body := Error{Message: err.Error(), Code: e.code}
		if retry, ok := match.RetryAfter(err); ok {
			body.RetryAfter = &retry
			c.Set(fiber.HeaderRetryAfter, strconv.Itoa(retry))
		}
		return c.Status(e.status).JSON(ErrorResponse{Error: body})
	}

	log.Error().Str("path", c.Path()).Msg("Request failed: " + eris.ToString(err, true))
	return c.Status(fiber.StatusInternalServerError).JSON(ErrorResponse{
		Error: Error{Message: "internal server error", Code: "internal"},
	})
}
