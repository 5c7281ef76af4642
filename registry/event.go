package registry

import (
	"github.com/wI2L/jsondiff"

	"pkg.world.dev/world-engine/arena/types"
)

type EventType string

const (
	EventInitial   EventType = "initial"
	EventAdd       EventType = "add"
	EventUpdate    EventType = "update"
	EventRemove    EventType = "remove"
	EventHeartbeat EventType = "heartbeat"
)

// Event is one frame of a subscription stream. Initial carries Matches, add and update carry Match,
// remove carries only MatchID. Update also carries Patch, the JSON Patch turning the previously
// emitted snapshot of the match into the current one.
type Event struct {
	Type    EventType      `json:"type"`
	MatchID string         `json:"matchId,omitempty"`
	Match   *types.Match   `json:"match,omitempty"`
	Matches []*types.Match `json:"matches,omitempty"`
	Patch   jsondiff.Patch `json:"patch,omitempty"`
}

// Delivery is an event addressed to one subscription.
type Delivery struct {
	SubscriptionID string
	Event          Event
}

// Sink receives the events of one subscription. Send must not block; an error means the subscriber is
// gone and it is removed from the registry.
type Sink interface {
	Send(Event) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(Event) error

func (f SinkFunc) Send(ev Event) error {
	return f(ev)
}
