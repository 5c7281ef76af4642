package arena

import (
	"github.com/benbjohnson/clock"

	"pkg.world.dev/world-engine/arena/rules"
	"pkg.world.dev/world-engine/arena/storage/redis"
)

type Option func(*Arena)

// WithClock replaces the wall clock. Tests pass a mock to control deadlines.
func WithClock(clk clock.Clock) Option {
	return func(a *Arena) {
		a.clock = clk
	}
}

// WithEngine replaces the reference rules engine.
func WithEngine(engine rules.Engine) Option {
	return func(a *Arena) {
		a.engine = engine
	}
}

// WithStorage uses an existing storage instead of connecting to the configured redis.
func WithStorage(st *redis.Storage) Option {
	return func(a *Arena) {
		a.storage = st
	}
}

func WithStartHook(hook func() error) Option {
	return func(a *Arena) {
		a.startHook = hook
	}
}
