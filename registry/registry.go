// Package registry fans match mutations out to long-lived subscribers. Every subscriber has a filter and
// the set of matches it currently tracks; each published snapshot is turned into at most one add,
// update or remove event per subscriber. Idle subscribers receive heartbeats.
package registry

import (
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"github.com/rs/zerolog/log"
	"github.com/wI2L/jsondiff"

	"pkg.world.dev/world-engine/arena/types"
)

const DefaultKeepAlive = 30 * time.Second

var ErrClosed = errors.New("registry is closed")

type Registry struct {
	mu        sync.Mutex
	clock     clock.Clock
	keepAlive time.Duration

	subscriptions map[string]*Subscription

	// known holds the latest snapshot of every match that has not concluded yet.
	known  map[string]*types.Match
	closed bool
}

type Option func(*Registry)

// WithKeepAlive sets how long a subscription may stay idle before a heartbeat is sent.
func WithKeepAlive(d time.Duration) Option {
	return func(r *Registry) {
		if d > 0 {
			r.keepAlive = d
		}
	}
}

func WithClock(clk clock.Clock) Option {
	return func(r *Registry) {
		r.clock = clk
	}
}

func New(opts ...Option) *Registry {
	r := &Registry{
		clock:         clock.New(),
		keepAlive:     DefaultKeepAlive,
		subscriptions: make(map[string]*Subscription),
		known:         make(map[string]*types.Match),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Subscription is the registry side of one event stream.
type Subscription struct {
	id         string
	filter     Filter
	acceptsNew bool
	sink       Sink
	registry   *Registry

	// tracked maps the matches in view to the snapshot last emitted for them.
	tracked map[string]*types.Match
	// preexisting are the matches known at subscribe time that are eligible for this subscriber,
	// ineligible the ones that are not.
	preexisting map[string]struct{}
	ineligible  map[string]struct{}

	timer *clock.Timer
	done  chan struct{}
}

func (s *Subscription) ID() string {
	return s.id
}

// Done is closed once the subscription has been removed, either by Cancel or because its sink failed.
func (s *Subscription) Done() <-chan struct{} {
	return s.done
}

// Cancel removes the subscription. It is safe to call more than once.
func (s *Subscription) Cancel() {
	s.registry.Unsubscribe(s.id)
}

// Subscribe registers a subscriber and sends it the initial frame: every known match satisfying filter,
// ordered and sliced as the filter asks. If acceptsNew is false, matches created afterwards are never
// added to this subscription.
func (r *Registry) Subscribe(filter Filter, acceptsNew bool, sink Sink) (*Subscription, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil, eris.Wrap(ErrClosed, "failed to subscribe")
	}

	sub := &Subscription{
		id:          uuid.New().String(),
		filter:      filter,
		acceptsNew:  acceptsNew,
		sink:        sink,
		registry:    r,
		tracked:     make(map[string]*types.Match),
		preexisting: make(map[string]struct{}),
		ineligible:  make(map[string]struct{}),
		done:        make(chan struct{}),
	}

	candidates := make([]*types.Match, 0, len(r.known))
	for _, m := range r.known {
		if filter.MatchesStatic(m) {
			candidates = append(candidates, m)
		}
	}
	filter.order(candidates)

	var initial []*types.Match
	if filter.Sliced() {
		// A range pins the subscription to the matches inside it.
		var inView []*types.Match
		for _, m := range candidates {
			if filter.MatchesDynamic(m) {
				inView = append(inView, m)
			}
		}
		initial = filter.slice(inView)
		for _, m := range initial {
			sub.preexisting[m.ID] = struct{}{}
		}
	} else {
		for _, m := range candidates {
			sub.preexisting[m.ID] = struct{}{}
			if filter.MatchesDynamic(m) {
				initial = append(initial, m)
			}
		}
	}
	if initial == nil {
		initial = []*types.Match{}
	}
	for id := range r.known {
		if _, ok := sub.preexisting[id]; !ok {
			sub.ineligible[id] = struct{}{}
		}
	}
	for _, m := range initial {
		sub.tracked[m.ID] = m
	}

	if err := sink.Send(Event{Type: EventInitial, Matches: initial}); err != nil {
		return nil, eris.Wrap(err, "failed to send initial frame")
	}

	r.subscriptions[sub.id] = sub
	sub.timer = r.clock.AfterFunc(r.keepAlive, func() { r.heartbeat(sub.id) })

	log.Debug().
		Str("subscription_id", sub.id).
		Int("initial", len(initial)).
		Bool("accepts_new", acceptsNew).
		Msg("Subscription registered")
	return sub, nil
}

// Unsubscribe removes a subscription and stops its keep-alive timer. Unknown ids are ignored.
func (r *Registry) Unsubscribe(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.remove(id)
}

// remove drops a subscription. Callers hold r.mu.
func (r *Registry) remove(id string) {
	sub, ok := r.subscriptions[id]
	if !ok {
		return
	}
	delete(r.subscriptions, id)
	sub.timer.Stop()
	close(sub.done)
	log.Debug().Str("subscription_id", id).Msg("Subscription removed")
}

// Publish records the latest snapshot of a match and emits the resulting events. It never blocks on a
// subscriber: sinks that fail are removed. The returned deliveries are the events that were sent.
func (r *Registry) Publish(m *types.Match) []Delivery {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil
	}

	if m.Phase.IsTerminal() {
		delete(r.known, m.ID)
	} else {
		r.known[m.ID] = m
	}

	patches := make(patchCache)
	return r.deliver(m.ID, func(sub *Subscription) (Event, bool) {
		return sub.next(m, patches)
	})
}

// Retract withdraws a match that was evicted without concluding. Every subscriber tracking it gets a
// remove event and the match leaves the catalog.
func (r *Registry) Retract(matchID string) []Delivery {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil
	}
	delete(r.known, matchID)
	return r.deliver(matchID, func(sub *Subscription) (Event, bool) {
		delete(sub.preexisting, matchID)
		delete(sub.ineligible, matchID)
		if _, ok := sub.tracked[matchID]; !ok {
			return Event{}, false
		}
		delete(sub.tracked, matchID)
		return Event{Type: EventRemove, MatchID: matchID}, true
	})
}

// deliver sends the event next computes to every subscription in id order and drops the ones whose
// sink fails. Callers hold r.mu.
func (r *Registry) deliver(matchID string, next func(*Subscription) (Event, bool)) []Delivery {
	ids := make([]string, 0, len(r.subscriptions))
	for id := range r.subscriptions {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var deliveries []Delivery
	var dead []string
	for _, id := range ids {
		sub := r.subscriptions[id]
		ev, ok := next(sub)
		if !ok {
			continue
		}
		if err := sub.sink.Send(ev); err != nil {
			log.Warn().
				Str("subscription_id", id).
				Str("match_id", matchID).
				Err(err).
				Msg("Dropping subscriber that could not keep up")
			dead = append(dead, id)
			continue
		}
		sub.timer.Reset(r.keepAlive)
		deliveries = append(deliveries, Delivery{SubscriptionID: id, Event: ev})
	}
	for _, id := range dead {
		r.remove(id)
	}
	return deliveries
}

// patchCache holds the patches computed during one Publish, keyed by the snapshot they start from.
// Subscribers that last saw the same snapshot share one comparison.
type patchCache map[*types.Match]patchResult

type patchResult struct {
	patch jsondiff.Patch
	err   error
}

func (c patchCache) get(last, m *types.Match) (jsondiff.Patch, error) {
	if res, ok := c[last]; ok {
		return res.patch, res.err
	}
	patch, err := jsondiff.Compare(last, m)
	c[last] = patchResult{patch: patch, err: err}
	return patch, err
}

// next computes the event a subscriber receives for a snapshot and updates its tracked set.
func (s *Subscription) next(m *types.Match, patches patchCache) (Event, bool) {
	last, tracked := s.tracked[m.ID]
	switch {
	case tracked && s.filter.MatchesDynamic(m):
		if m.Phase.IsTerminal() {
			delete(s.tracked, m.ID)
		} else {
			s.tracked[m.ID] = m
		}
		ev := Event{Type: EventUpdate, MatchID: m.ID, Match: m}
		patch, err := patches.get(last, m)
		if err != nil {
			log.Warn().Str("match_id", m.ID).Err(err).Msg("Failed to compute match patch")
		} else {
			ev.Patch = patch
		}
		return ev, true
	case tracked:
		delete(s.tracked, m.ID)
		return Event{Type: EventRemove, MatchID: m.ID}, true
	case s.eligible(m) && s.filter.Matches(m):
		if !m.Phase.IsTerminal() {
			s.tracked[m.ID] = m
		}
		return Event{Type: EventAdd, MatchID: m.ID, Match: m}, true
	}
	return Event{}, false
}

// eligible reports whether an untracked match may be added to the subscription.
func (s *Subscription) eligible(m *types.Match) bool {
	if _, ok := s.preexisting[m.ID]; ok {
		return true
	}
	if _, ok := s.ineligible[m.ID]; ok {
		return false
	}
	return s.acceptsNew
}

func (r *Registry) heartbeat(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	sub, ok := r.subscriptions[id]
	if !ok {
		return
	}
	if err := sub.sink.Send(Event{Type: EventHeartbeat}); err != nil {
		log.Warn().Str("subscription_id", id).Err(err).Msg("Dropping subscriber after failed heartbeat")
		r.remove(id)
		return
	}
	sub.timer.Reset(r.keepAlive)
}

// Len returns the number of live subscriptions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.subscriptions)
}

// Close removes every subscription and rejects further subscribers. It is idempotent.
func (r *Registry) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	r.closed = true
	for id := range r.subscriptions {
		r.remove(id)
	}
	r.known = make(map[string]*types.Match)
}
