// Package arena wires the match table, scheduler, subscription registry, persistence and HTTP server
// into one process.
package arena

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/rotisserie/eris"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"pkg.world.dev/world-engine/arena/config"
	"pkg.world.dev/world-engine/arena/match"
	"pkg.world.dev/world-engine/arena/registry"
	"pkg.world.dev/world-engine/arena/rules"
	"pkg.world.dev/world-engine/arena/scheduler"
	"pkg.world.dev/world-engine/arena/server"
	"pkg.world.dev/world-engine/arena/service"
	"pkg.world.dev/world-engine/arena/storage/redis"
	"pkg.world.dev/world-engine/arena/telemetry"
)

const (
	ServiceName      = "arena"
	RedisDialTimeOut = 150
)

type Arena struct {
	cancel context.CancelFunc
	config config.Config
	logger zerolog.Logger

	clock     clock.Clock
	engine    rules.Engine
	telemetry telemetry.Telemetry
	storage   *redis.Storage
	table     *match.Table
	registry  *registry.Registry
	scheduler *scheduler.Scheduler
	service   *service.Service
	server    *server.Server

	mu       sync.Mutex
	started  bool
	stopped  bool
	stopOnce sync.Once

	startHook func() error
}

// New builds an arena from cfg. Nothing runs until Start is called.
func New(cfg *config.Config, opts ...Option) (*Arena, error) {
	if cfg == nil {
		return nil, eris.New("arena requires a config")
	}
	if err := cfg.Validate(); err != nil {
		return nil, eris.Wrap(err, "invalid config")
	}

	tm, err := telemetry.New(telemetry.Options{
		ServiceName: ServiceName,
		LogLevel:    cfg.LogLevel,
		LogFormat:   telemetry.LogFormat(cfg.LogFormat),

		TraceEnabled:    cfg.TraceEnabled,
		Endpoint:        cfg.OTLPEndpoint,
		TraceSampleRate: cfg.TraceSampleRate,
	})
	if err != nil {
		return nil, eris.Wrap(err, "failed to set up telemetry")
	}

	a := &Arena{
		config:    *cfg,
		logger:    tm.GetLogger("arena"),
		clock:     clock.New(),
		engine:    rules.NewBasic(),
		telemetry: tm,
	}
	for _, opt := range opts {
		opt(a)
	}

	if a.storage == nil {
		a.storage = redis.NewRedisStorage(redis.Options{
			Addr:        cfg.RedisAddress,
			Password:    cfg.RedisPassword,
			DB:          0,                              // use default DB
			DialTimeout: RedisDialTimeOut * time.Second, // Increase startup dial timeout
		}, cfg.Namespace)
	}

	a.table = match.NewTable()
	a.registry = registry.New(
		registry.WithClock(a.clock),
		registry.WithKeepAlive(cfg.KeepAlive()),
	)
	a.scheduler = scheduler.New(a.table, a.engine,
		scheduler.WithClock(a.clock),
		scheduler.WithTracer(tm.Tracer),
		scheduler.WithStorage(a.storage),
		scheduler.WithArmDelay(cfg.ArmDelay()),
		scheduler.WithRetryInterval(cfg.RetryInterval()),
		scheduler.WithNotifier(scheduler.Notify(a.registry)),
	)
	a.service = service.New(a.scheduler, a.registry, a.storage)

	a.server, err = server.New(a.service,
		server.WithPort(cfg.Port),
		server.WithStreamBuffer(cfg.StreamBuffer),
		server.WithCORSOrigins(cfg.CORSAllowOrigins),
	)
	if err != nil {
		return nil, eris.Wrap(err, "failed to create server")
	}
	return a, nil
}

// Start runs the scheduler loop and the HTTP server until Stop is called, the process receives SIGINT
// or SIGTERM, or one of them fails.
func (a *Arena) Start() error {
	a.mu.Lock()
	if a.started {
		a.mu.Unlock()
		return eris.New("arena already started")
	}
	if a.stopped {
		a.mu.Unlock()
		return eris.New("arena was stopped")
	}
	a.started = true
	var ctx context.Context
	ctx, a.cancel = context.WithCancel(context.Background())
	a.mu.Unlock()

	// Handles SIGINT and SIGTERM signals and starts the shutdown process.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		select {
		case <-sigCh:
			a.logger.Info().Msg("Received shutdown signal")
			a.Stop()
		case <-ctx.Done():
		}
	}()

	if a.startHook != nil {
		if err := a.startHook(); err != nil {
			a.Stop()
			return eris.Wrap(err, "failed to run start hook")
		}
	}

	a.logger.Info().
		Str("port", a.config.Port).
		Str("namespace", a.config.Namespace).
		Str("mode", string(a.config.Mode)).
		Msg("Arena starting")

	eg, ctx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		return a.scheduler.Run(ctx)
	})
	eg.Go(func() error {
		return a.server.Serve(ctx)
	})
	err := eg.Wait()
	a.Stop()
	return err
}

// Stop shuts everything down. It is safe to call more than once and before Start.
func (a *Arena) Stop() {
	a.stopOnce.Do(func() {
		a.mu.Lock()
		a.stopped = true
		cancel := a.cancel
		a.mu.Unlock()

		if cancel != nil {
			cancel()
		}
		a.scheduler.Shutdown()
		a.registry.Close()
		a.table.Clear()
		if err := a.storage.Close(); err != nil {
			a.logger.Error().Err(err).Msg("Failed to close storage")
		}
		if err := a.telemetry.Shutdown(context.Background()); err != nil {
			a.logger.Error().Err(err).Msg("Failed to shut down telemetry")
		}
		a.logger.Info().Msg("Arena stopped")
	})
}

func (a *Arena) Service() *service.Service {
	return a.service
}

func (a *Arena) Server() *server.Server {
	return a.server
}

func (a *Arena) Scheduler() *scheduler.Scheduler {
	return a.scheduler
}
