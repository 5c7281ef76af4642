package handler

import (
	"bufio"
	"context"
	"strings"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/rotisserie/eris"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cast"

	"pkg.world.dev/world-engine/arena/events"
	"pkg.world.dev/world-engine/arena/registry"
	"pkg.world.dev/world-engine/arena/service"
)

// ParseFilter reads a subscription filter from query parameters:
// id, category, phase (comma separated lists), sort (createdAt|startedAt), order (asc|desc), start, end
// and new (whether matches created later may join the stream, default true).
func ParseFilter(query func(key string, defaultValue ...string) string) (registry.Filter, bool, error) {
	phases, err := parsePhases(query("phase"))
	if err != nil {
		return registry.Filter{}, false, err
	}
	filter := registry.Filter{
		IDs:        splitList(query("id")),
		Categories: splitList(query("category")),
		Phases:     phases,
	}

	switch sort := registry.SortKey(query("sort", string(registry.SortCreatedAt))); sort {
	case registry.SortCreatedAt, registry.SortStartedAt:
		filter.Sort = sort
	default:
		return registry.Filter{}, false, fiber.NewError(fiber.StatusBadRequest, "unknown sort key: "+string(sort))
	}
	switch order := query("order", "asc"); order {
	case "asc":
	case "desc":
		filter.Descending = true
	default:
		return registry.Filter{}, false, fiber.NewError(fiber.StatusBadRequest, "unknown order: "+order)
	}

	if filter.Start, err = parseInt(query("start")); err != nil {
		return registry.Filter{}, false, err
	}
	if filter.End, err = parseInt(query("end")); err != nil {
		return registry.Filter{}, false, err
	}
	acceptsNew, err := cast.ToBoolE(query("new", "true"))
	if err != nil {
		return registry.Filter{}, false, fiber.NewError(fiber.StatusBadRequest, "new must be a boolean")
	}
	return filter, acceptsNew, nil
}

// StreamMatches serves registry events as server-sent events.
func StreamMatches(svc *service.Service, buffer int) func(*fiber.Ctx) error {
	return func(ctx *fiber.Ctx) error {
		filter, acceptsNew, err := ParseFilter(ctx.Query)
		if err != nil {
			return err
		}
		stream := events.NewStream(buffer)
		sub, err := svc.StreamMatches(filter, acceptsNew, stream)
		if err != nil {
			return err
		}

		ctx.Set(fiber.HeaderContentType, "text/event-stream")
		ctx.Set(fiber.HeaderCacheControl, "no-cache")
		ctx.Set(fiber.HeaderConnection, "keep-alive")
		ctx.Set("X-Accel-Buffering", "no")

		ctx.Context().SetBodyStreamWriter(func(w *bufio.Writer) {
			defer stream.Close()
			defer sub.Cancel()
			err := stream.Pump(context.Background(), sub.Done(), func(ev registry.Event) error {
				return events.WriteSSE(w, ev)
			})
			if err != nil {
				log.Debug().Str("subscription_id", sub.ID()).Err(err).Msg("Event stream closed")
			}
		})
		return nil
	}
}

func WebSocketUpgrader(c *fiber.Ctx) error {
	// IsWebSocketUpgrade returns true if the client
	// requested upgrade to the WebSocket protocol.
	if websocket.IsWebSocketUpgrade(c) {
		c.Locals("allowed", true)
		return eris.Wrap(c.Next(), "")
	}
	return fiber.ErrUpgradeRequired
}

// WebSocketEvents serves registry events over a websocket. The filter is read from the query of the
// upgrade request. The stream ends when the client goes away or falls too far behind.
func WebSocketEvents(svc *service.Service, buffer int) func(*fiber.Ctx) error {
	return websocket.New(func(conn *websocket.Conn) {
		filter, acceptsNew, err := ParseFilter(conn.Query)
		if err != nil {
			_ = conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseUnsupportedData, err.Error()))
			return
		}
		stream := events.NewStream(buffer)
		sub, err := svc.StreamMatches(filter, acceptsNew, stream)
		if err != nil {
			_ = conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseInternalServerErr, "subscription failed"))
			return
		}
		defer stream.Close()
		defer sub.Cancel()

		// Clients never send anything meaningful; reading is how a close is noticed.
		go func() {
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					sub.Cancel()
					return
				}
			}
		}()

		err = stream.Pump(context.Background(), sub.Done(), func(ev registry.Event) error {
			return events.WriteWebSocket(conn, ev)
		})
		if err != nil {
			log.Debug().Str("subscription_id", sub.ID()).Err(err).Msg("Websocket stream closed")
		}
	})
}

func splitList(raw string) []string {
	if raw == "" {
		return nil
	}
	var out []string
	for _, s := range strings.Split(raw, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func parseInt(raw string) (int, error) {
	if raw == "" {
		return 0, nil
	}
	n, err := cast.ToIntE(raw)
	if err != nil || n < 0 {
		return 0, fiber.NewError(fiber.StatusBadRequest, "expected a non-negative integer, got "+raw)
	}
	return n, nil
}
