package server

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/rotisserie/eris"
	"github.com/rs/zerolog/log"

	"pkg.world.dev/world-engine/arena/dialect"
	"pkg.world.dev/world-engine/arena/events"
	"pkg.world.dev/world-engine/arena/server/handler"
	"pkg.world.dev/world-engine/arena/service"
)

const (
	DefaultPort     = "4040"
	shutdownTimeout = 5 * time.Second
)

type Server struct {
	app          *fiber.App
	svc          *service.Service
	port         string
	streamBuffer int
	corsOrigins  string
}

// New returns an HTTP server exposing svc.
func New(svc *service.Service, opts ...Option) (*Server, error) {
	if svc == nil {
		return nil, eris.New("server requires a non-nil service")
	}

	app := fiber.New(fiber.Config{
		Network:               "tcp", // Enable server listening on both ipv4 & ipv6 (default: ipv4 only)
		DisableStartupMessage: true,
		ErrorHandler:          ErrorHandler,
	})

	s := &Server{
		app:          app,
		svc:          svc,
		port:         DefaultPort,
		streamBuffer: events.DefaultBuffer,
		corsOrigins:  "*",
	}
	for _, opt := range opts {
		opt(s)
	}
	app.Use(cors.New(cors.Config{AllowOrigins: s.corsOrigins}))
	s.setupRoutes()

	return s, nil
}

// App exposes the fiber app, mostly for app.Test.
func (s *Server) App() *fiber.App {
	return s.app
}

// Serve serves the application, blocking the calling thread until ctx is done or the listener fails.
func (s *Server) Serve(ctx context.Context) error {
	serverErr := make(chan error, 1)

	go func() {
		log.Info().Msgf("Starting HTTP server at port %s", s.port)
		if err := s.app.Listen(":" + s.port); err != nil {
			serverErr <- eris.Wrap(err, "error starting http server")
		}
	}()

	select {
	case err := <-serverErr:
		return eris.Wrap(err, "server encountered an error")
	case <-ctx.Done():
		if err := s.Shutdown(); err != nil {
			return eris.Wrap(err, "error shutting down server")
		}
	}
	return nil
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown() error {
	log.Info().Msg("Shutting down server")
	if err := s.app.ShutdownWithTimeout(shutdownTimeout); err != nil {
		return eris.Wrap(err, "error shutting down server")
	}
	log.Info().Msg("Successfully shut down server")
	return nil
}

func (s *Server) setupRoutes() {
	s.app.Get("/health", handler.GetHealth(s.svc))
	s.app.Get("/schema/:dialect/action", handler.GetActionSchema(handler.ActionSchemas()))

	// Route: /v1/...
	v1 := s.app.Group("/v1")
	v1.Post("/matches", handler.PostMatch(s.svc))
	v1.Get("/matches", handler.GetMatches(s.svc))
	v1.Get("/matches/:id", handler.GetMatch(s.svc))
	v1.Get("/matches/:id/log", handler.GetMatchLog(s.svc))
	v1.Post("/matches/:id/players", handler.PostPlayer(s.svc))
	v1.Post("/matches/:id/arm", handler.PostArm(s.svc))
	v1.Post("/matches/:id/actions", handler.PostActions(s.svc, dialect.Kakomimasu))
	v1.Get("/boards", handler.GetBoards(s.svc))
	v1.Get("/boards/:name", handler.GetBoard(s.svc))
	v1.Put("/boards/:name", handler.PutBoard(s.svc))
	v1.Get("/stream", handler.StreamMatches(s.svc, s.streamBuffer))

	// Route: /v1/events
	v1.Use("/events", handler.WebSocketUpgrader)
	v1.Get("/events", handler.WebSocketEvents(s.svc, s.streamBuffer))

	// Route: /procon/...
	procon := s.app.Group("/procon")
	procon.Get("/matches/:id", handler.GetProconMatch(s.svc))
	procon.Post("/matches/:id/action", handler.PostActions(s.svc, dialect.Procon))

	// Route: /tomakomai/...
	tomakomai := s.app.Group("/tomakomai")
	tomakomai.Get("/matches/:id", handler.GetTomakomaiMatch(s.svc))
	tomakomai.Post("/matches/:id/actions", handler.PostActions(s.svc, dialect.Tomakomai))
}
