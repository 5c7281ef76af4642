// Package scheduler drives matches through their phases. Every boundary of every match is a deadline in
// one queue ordered by absolute time; deadlines are always derived from the match start so handling
// delays never accumulate. Each match has a generation number and bumping it cancels all of its
// queued deadlines at once.
package scheduler

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"pkg.world.dev/world-engine/arena/match"
	"pkg.world.dev/world-engine/arena/registry"
	"pkg.world.dev/world-engine/arena/rules"
	"pkg.world.dev/world-engine/arena/storage"
	"pkg.world.dev/world-engine/arena/telemetry"
	"pkg.world.dev/world-engine/arena/turnclock"
	"pkg.world.dev/world-engine/arena/types"
)

const (
	DefaultArmDelay      = 5 * time.Second
	DefaultRetryInterval = time.Second
)

// errStale marks a deadline that no longer applies to the match, e.g. a start deadline of a match that
// is already live.
var errStale = errors.New("stale deadline")

// Notifier receives a snapshot after every mutation of a match. Publish is called while the match is
// locked and must not block. Retract is called once a match is evicted, concluded or not.
type Notifier interface {
	Publish(m *types.Match)
	Retract(matchID string)
}

// Publisher is the fan-out side of the registry.
type Publisher interface {
	Publish(m *types.Match) []registry.Delivery
	Retract(matchID string) []registry.Delivery
}

// Notify adapts a Publisher to Notifier, dropping the deliveries.
func Notify(p Publisher) Notifier {
	return publisherNotifier{p}
}

type publisherNotifier struct {
	Publisher
}

func (n publisherNotifier) Publish(m *types.Match) {
	n.Publisher.Publish(m)
}

func (n publisherNotifier) Retract(matchID string) {
	n.Publisher.Retract(matchID)
}

// MatchSpec describes a match to create.
type MatchSpec struct {
	Name          string      `json:"name"`
	Category      string      `json:"category"`
	Board         types.Board `json:"board"`
	ReservedSeats []string    `json:"reservedSeats,omitempty"`
}

type Scheduler struct {
	table    *match.Table
	engine   rules.Engine
	storage  storage.MatchStorage
	notifier Notifier
	clock    clock.Clock
	tracer   trace.Tracer

	armDelay      time.Duration
	retryInterval time.Duration

	mu          sync.Mutex
	queue       deadlineQueue
	seq         uint64
	generations map[string]uint64
	wake        chan struct{}
}

func New(table *match.Table, engine rules.Engine, opts ...Option) *Scheduler {
	s := &Scheduler{
		table:         table,
		engine:        engine,
		clock:         clock.New(),
		tracer:        otel.Tracer("arena/scheduler"),
		armDelay:      DefaultArmDelay,
		retryInterval: DefaultRetryInterval,
		generations:   make(map[string]uint64),
		wake:          make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Scheduler) Table() *match.Table {
	return s.table
}

func (s *Scheduler) Clock() clock.Clock {
	return s.clock
}

// CreateMatch registers a new open match.
func (s *Scheduler) CreateMatch(_ context.Context, spec MatchSpec) (*types.Match, error) {
	board := spec.Board.Copy()
	if err := board.Validate(); err != nil {
		return nil, err
	}
	field, err := s.engine.NewField(board)
	if err != nil {
		return nil, eris.Wrap(err, "failed to create initial field")
	}

	m := &types.Match{
		ID:             uuid.New().String(),
		Name:           spec.Name,
		Category:       spec.Category,
		Phase:          types.PhaseOpen,
		Board:          board,
		Players:        []types.Player{},
		ReservedSeats:  append([]string(nil), spec.ReservedSeats...),
		Field:          field,
		Log:            []types.TurnRecord{},
		CreatedAt:      s.clock.Now().UnixMilli(),
		PendingActions: make(map[int]types.Action),
	}
	if err := s.table.Register(m); err != nil {
		return nil, err
	}
	snap, err := s.table.Update(m.ID, func(m *types.Match) error {
		s.publish(m)
		return nil
	})
	if err != nil {
		return nil, err
	}

	log.Info().
		Str("match_id", m.ID).
		Str("board", board.Name).
		Int("seats", board.Seats).
		Msg("Match created")
	return snap, nil
}

// Attach seats a player. The attach that fills the roster arms the match; later attaches are rejected
// and never re-arm it.
func (s *Scheduler) Attach(_ context.Context, id string, req match.SeatRequest) (int, string, error) {
	var seat int
	var token string
	_, err := s.table.Update(id, func(m *types.Match) error {
		var err error
		seat, token, err = match.Attach(m, req)
		if err != nil {
			return err
		}
		if m.IsFull() {
			s.arm(m)
		}
		s.publish(m)
		return nil
	})
	if err != nil {
		return -1, "", err
	}
	log.Info().Str("match_id", id).Int("seat", seat).Msg("Player attached")
	return seat, token, nil
}

// ForceArm fills the empty seats with guests and arms an open match. Matches that are already armed or
// further along are left alone.
func (s *Scheduler) ForceArm(_ context.Context, id string) (*types.Match, error) {
	return s.table.Update(id, func(m *types.Match) error {
		if m.Phase != types.PhaseOpen {
			return nil
		}
		if err := match.FillWithGuests(m); err != nil {
			return err
		}
		s.arm(m)
		s.publish(m)
		return nil
	})
}

// arm moves an open match to armed. Callers hold the match lock.
func (s *Scheduler) arm(m *types.Match) {
	start := s.clock.Now().Unix() + int64(s.armDelay/time.Second)
	m.StartUnixTime = &start
	m.Phase = types.PhaseArmed
	s.schedule(m.ID, boundaryStart, 0, time.Unix(start, 0))

	log.Info().Str("match_id", m.ID).Int64("start", start).Msg("Match armed")
}

func (s *Scheduler) publish(m *types.Match) {
	if s.notifier != nil {
		s.notifier.Publish(m.Snapshot())
	}
}

func (s *Scheduler) schedule(id string, kind boundary, turn int, at time.Time) {
	s.mu.Lock()
	s.seq++
	s.queue.push(deadline{
		at:      at,
		seq:     s.seq,
		matchID: id,
		gen:     s.generations[id],
		kind:    kind,
		turn:    turn,
	})
	s.mu.Unlock()

	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// Cancel drops every queued deadline of a match.
func (s *Scheduler) Cancel(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.generations[id]++
	s.queue.drop(id)
}

// Remove cancels a match and evicts it from the live table without saving it. Subscribers still
// tracking the match are told it is gone.
func (s *Scheduler) Remove(id string) bool {
	s.Cancel(id)
	s.mu.Lock()
	delete(s.generations, id)
	s.mu.Unlock()
	if !s.table.Deregister(id) {
		return false
	}
	if s.notifier != nil {
		s.notifier.Retract(id)
	}
	return true
}

// Pending returns the number of queued deadlines.
func (s *Scheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queue)
}

// Shutdown drops every queued deadline.
func (s *Scheduler) Shutdown() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queue = nil
	s.generations = make(map[string]uint64)
}

// RunDue handles every deadline that is due at the current time of the clock and returns how many ran.
// Deadlines scheduled by the handlers are picked up in the same call if they are due as well.
func (s *Scheduler) RunDue(ctx context.Context) int {
	now := s.clock.Now()
	n := 0
	for {
		s.mu.Lock()
		d, ok := s.queue.peek()
		if !ok || d.at.After(now) {
			s.mu.Unlock()
			return n
		}
		s.queue.pop()
		current := d.gen == s.generations[d.matchID]
		s.mu.Unlock()

		if !current {
			continue
		}
		s.handle(ctx, d)
		n++
	}
}

// Run handles deadlines as they come due until ctx is done.
func (s *Scheduler) Run(ctx context.Context) error {
	log.Info().Msg("Scheduler started")
	for {
		s.RunDue(ctx)

		s.mu.Lock()
		next, ok := s.queue.peek()
		s.mu.Unlock()

		if !ok {
			select {
			case <-ctx.Done():
				log.Info().Msg("Scheduler stopped")
				return nil
			case <-s.wake:
			}
			continue
		}

		wait := next.at.Sub(s.clock.Now())
		if wait <= 0 {
			continue
		}
		timer := s.clock.Timer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			log.Info().Msg("Scheduler stopped")
			return nil
		case <-timer.C:
		case <-s.wake:
			timer.Stop()
		}
	}
}

func (s *Scheduler) handle(ctx context.Context, d deadline) {
	ctx, span := s.tracer.Start(ctx, "scheduler."+d.kind.String(), trace.WithAttributes(
		attribute.String("match_id", d.matchID),
		attribute.Int("turn", d.turn),
	))
	defer span.End()

	var err error
	defer func() {
		if r := recover(); r != nil {
			err = eris.Errorf("panic while handling %s boundary: %v", d.kind, r)
			s.fail(span, d, err)
		}
	}()

	switch d.kind {
	case boundaryStart:
		err = s.handleStart(d)
	case boundaryOperation:
		var concluded bool
		concluded, err = s.handleOperation(d)
		if err == nil && concluded {
			d.kind = boundarySave
			err = s.save(ctx, d)
		}
	case boundaryTransition:
		err = s.handleTransition(d)
	case boundarySave:
		err = s.save(ctx, d)
	}
	if err == nil || errors.Is(err, errStale) || errors.Is(err, match.ErrNotFound) {
		return
	}
	s.fail(span, d, err)
}

// fail records a failed boundary and retries it later. The match itself is untouched.
func (s *Scheduler) fail(span trace.Span, d deadline, err error) {
	span.SetStatus(codes.Error, eris.ToString(err, true))
	span.RecordError(err)
	logger := telemetry.SpanLogger(log.Logger, span)
	logger.Error().
		Str("match_id", d.matchID).
		Str("boundary", d.kind.String()).
		Int("turn", d.turn).
		Msg("Boundary failed, retrying: " + eris.ToString(err, true))
	s.schedule(d.matchID, d.kind, d.turn, s.clock.Now().Add(s.retryInterval))
}

func (s *Scheduler) handleStart(d deadline) error {
	_, err := s.table.Update(d.matchID, func(m *types.Match) error {
		if m.Phase != types.PhaseArmed {
			return errStale
		}
		m.Phase = types.PhaseLive
		m.Turn = 1
		s.schedule(m.ID, boundaryOperation, 1, s.operationDeadline(m, 1))
		s.publish(m)
		return nil
	})
	if err == nil {
		log.Info().Str("match_id", d.matchID).Msg("Match live")
	}
	return err
}

// handleOperation applies the pending batch of the turn and reports whether that concluded the match.
func (s *Scheduler) handleOperation(d deadline) (bool, error) {
	concluded := false
	_, err := s.table.Update(d.matchID, func(m *types.Match) error {
		if m.Phase != types.PhaseLive || m.Turn != d.turn {
			return errStale
		}
		batch := match.PendingBatch(m)
		field, results, err := s.engine.ApplyTurn(m.Board, m.Field, d.turn, batch)
		if err != nil {
			return eris.Wrapf(err, "failed to apply turn %d", d.turn)
		}

		now := s.clock.Now()
		m.Log = append(m.Log, types.TurnRecord{
			Turn:      d.turn,
			Actions:   results,
			Scores:    append([]types.Score(nil), field.Scores...),
			AppliedAt: now.UnixMilli(),
		})
		m.Field = field
		for seat := range m.Players {
			if seat < len(field.Agents) {
				m.Players[seat].Agents = append([]types.Position(nil), field.Agents[seat]...)
			}
		}
		m.PendingActions = make(map[int]types.Action)

		if d.turn >= m.Board.TotalTurns {
			m.Phase = types.PhaseConcluded
			m.ConcludedAt = now.UnixMilli()
			s.Cancel(m.ID)
			concluded = true
		} else {
			s.schedule(m.ID, boundaryTransition, d.turn, s.transitionDeadline(m, d.turn))
		}
		s.publish(m)

		log.Info().
			Str("match_id", m.ID).
			Int("turn", d.turn).
			Int("actions", len(batch)).
			Msg("Turn applied")
		return nil
	})
	return concluded, err
}

func (s *Scheduler) handleTransition(d deadline) error {
	_, err := s.table.Update(d.matchID, func(m *types.Match) error {
		if m.Phase != types.PhaseLive || m.Turn != d.turn {
			return errStale
		}
		m.Turn++
		s.schedule(m.ID, boundaryOperation, m.Turn, s.operationDeadline(m, m.Turn))
		s.publish(m)
		return nil
	})
	return err
}

// save persists a concluded match and evicts it from the live table. On failure the match stays live
// in the table and the save is retried.
func (s *Scheduler) save(ctx context.Context, d deadline) error {
	snap, err := s.table.Get(d.matchID)
	if err != nil {
		return err
	}
	if !snap.Phase.IsTerminal() {
		return errStale
	}
	if s.storage != nil {
		if err := s.storage.SaveMatch(ctx, snap); err != nil {
			return eris.Wrapf(err, "failed to save match %q", d.matchID)
		}
	}
	s.Remove(d.matchID)
	log.Info().Str("match_id", d.matchID).Msg("Match concluded")
	return nil
}

func (s *Scheduler) operationDeadline(m *types.Match, turn int) time.Time {
	return turnclock.OperationDeadline(m.Start(), turn, m.Board.OperationSeconds, m.Board.TransitionSeconds)
}

func (s *Scheduler) transitionDeadline(m *types.Match, turn int) time.Time {
	return turnclock.TransitionDeadline(m.Start(), turn, m.Board.OperationSeconds, m.Board.TransitionSeconds)
}
