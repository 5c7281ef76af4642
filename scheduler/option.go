package scheduler

import (
	"time"

	"github.com/benbjohnson/clock"
	"go.opentelemetry.io/otel/trace"

	"pkg.world.dev/world-engine/arena/storage"
)

type Option func(*Scheduler)

// WithArmDelay sets the countdown between a full roster and the start of the match. It is rounded down
// to whole seconds.
func WithArmDelay(d time.Duration) Option {
	return func(s *Scheduler) {
		if d >= time.Second {
			s.armDelay = d.Truncate(time.Second)
		}
	}
}

// WithRetryInterval sets how long a failed boundary waits before it is retried.
func WithRetryInterval(d time.Duration) Option {
	return func(s *Scheduler) {
		if d > 0 {
			s.retryInterval = d
		}
	}
}

func WithNotifier(n Notifier) Option {
	return func(s *Scheduler) {
		s.notifier = n
	}
}

// WithStorage sets where concluded matches are saved. Without storage they are evicted right away.
func WithStorage(st storage.MatchStorage) Option {
	return func(s *Scheduler) {
		s.storage = st
	}
}

func WithClock(clk clock.Clock) Option {
	return func(s *Scheduler) {
		s.clock = clk
	}
}

func WithTracer(tracer trace.Tracer) Option {
	return func(s *Scheduler) {
		s.tracer = tracer
	}
}
