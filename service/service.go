// Package service is the contract the HTTP and streaming controllers program against. It ties the live
// match table, the scheduler, the reconciler, the subscription registry and persistence together and
// translates dialect payloads into canonical actions.
package service

import (
	"context"
	"errors"

	"github.com/benbjohnson/clock"
	"github.com/goccy/go-json"
	"github.com/rotisserie/eris"
	"github.com/rs/zerolog/log"

	"pkg.world.dev/world-engine/arena/dialect"
	"pkg.world.dev/world-engine/arena/dialect/kakomimasu"
	"pkg.world.dev/world-engine/arena/dialect/procon"
	"pkg.world.dev/world-engine/arena/dialect/tomakomai"
	"pkg.world.dev/world-engine/arena/match"
	"pkg.world.dev/world-engine/arena/registry"
	"pkg.world.dev/world-engine/arena/scheduler"
	"pkg.world.dev/world-engine/arena/storage"
	"pkg.world.dev/world-engine/arena/turnclock"
	"pkg.world.dev/world-engine/arena/types"
)

const DefaultListLimit = 100

var (
	ErrInvalidBoard   = errors.New("invalid board")
	ErrUnknownDialect = errors.New("unknown dialect")
	ErrNoCatalog      = errors.New("board catalog is not configured")
)

// CreateMatchRequest creates a match either from an inline board or from a board of the catalog.
// ForceArm arms the match right away and fills the empty seats with guests.
type CreateMatchRequest struct {
	Name          string              `json:"name"`
	Category      string              `json:"category"`
	Board         *types.Board        `json:"board,omitempty"`
	BoardName     string              `json:"boardName,omitempty"`
	ReservedSeats []string            `json:"reservedSeats,omitempty"`
	Players       []match.SeatRequest `json:"players,omitempty"`
	ForceArm      bool                `json:"forceArm,omitempty"`
}

type AttachResult struct {
	MatchID     string `json:"matchId"`
	Seat        int    `json:"seat"`
	AccessToken string `json:"accessToken"`
}

type Health struct {
	Matches       map[types.Phase]int `json:"matches"`
	Subscriptions int                 `json:"subscriptions"`
	Deadlines     int                 `json:"deadlines"`
}

type Service struct {
	table      *match.Table
	scheduler  *scheduler.Scheduler
	reconciler *match.Reconciler
	registry   *registry.Registry
	storage    storage.Storage
	clock      clock.Clock
}

// New returns a service over the scheduler's table. The registry is expected to be the scheduler's
// notifier. st may be nil, in which case concluded matches are gone once evicted and there is no
// board catalog.
func New(sched *scheduler.Scheduler, reg *registry.Registry, st storage.Storage) *Service {
	return &Service{
		table:      sched.Table(),
		scheduler:  sched,
		reconciler: match.NewReconciler(sched.Table(), sched.Clock()),
		registry:   reg,
		storage:    st,
		clock:      sched.Clock(),
	}
}

// CreateMatch creates an open match, seats the requested players and optionally arms it.
func (s *Service) CreateMatch(ctx context.Context, req CreateMatchRequest) (*types.Match, []AttachResult, error) {
	board, err := s.resolveBoard(ctx, req)
	if err != nil {
		return nil, nil, err
	}
	m, err := s.scheduler.CreateMatch(ctx, scheduler.MatchSpec{
		Name:          req.Name,
		Category:      req.Category,
		Board:         board,
		ReservedSeats: req.ReservedSeats,
	})
	if err != nil {
		return nil, nil, err
	}

	attached := make([]AttachResult, 0, len(req.Players))
	for _, p := range req.Players {
		res, err := s.AttachPlayer(ctx, m.ID, p)
		if err != nil {
			s.discard(m.ID)
			return nil, nil, err
		}
		attached = append(attached, res)
	}
	if req.ForceArm {
		if _, err := s.scheduler.ForceArm(ctx, m.ID); err != nil {
			s.discard(m.ID)
			return nil, nil, err
		}
	}

	m, err = s.table.Get(m.ID)
	if err != nil {
		return nil, nil, err
	}
	return m, attached, nil
}

// discard drops a match that never made it past creation. Subscribers that already saw it get a
// remove event from the scheduler.
func (s *Service) discard(id string) {
	s.scheduler.Remove(id)
}

func (s *Service) resolveBoard(ctx context.Context, req CreateMatchRequest) (types.Board, error) {
	var board types.Board
	switch {
	case req.Board != nil:
		board = *req.Board
	case req.BoardName != "":
		b, err := s.Board(ctx, req.BoardName)
		if err != nil {
			return types.Board{}, err
		}
		board = b
	default:
		return types.Board{}, eris.Wrap(ErrInvalidBoard, "either board or boardName is required")
	}
	if err := board.Validate(); err != nil {
		return types.Board{}, eris.Wrap(ErrInvalidBoard, err.Error())
	}
	return board, nil
}

// AttachPlayer seats a player and hands out the access token for the seat.
func (s *Service) AttachPlayer(ctx context.Context, id string, req match.SeatRequest) (AttachResult, error) {
	seat, token, err := s.scheduler.Attach(ctx, id, req)
	if err != nil {
		return AttachResult{}, err
	}
	return AttachResult{MatchID: id, Seat: seat, AccessToken: token}, nil
}

func (s *Service) ForceArm(ctx context.Context, id string) (*types.Match, error) {
	return s.scheduler.ForceArm(ctx, id)
}

// SubmitAction decodes a dialect payload on behalf of the seat holding token and records it for the
// current turn. Timing is checked before the payload is decoded.
func (s *Service) SubmitAction(_ context.Context, name dialect.Name, id, token string, body []byte) (
	match.Receipt, error,
) {
	m, err := s.table.Get(id)
	if err != nil {
		return match.Receipt{}, err
	}
	seat, ok := m.SeatByToken(token)
	if !ok {
		return match.Receipt{}, eris.Wrapf(match.ErrInvalidToken, "match %q", id)
	}
	if err := match.CheckWindow(m, s.clock.Now()); err != nil {
		return match.Receipt{}, err
	}

	actions, err := decodeActions(name, m, seat, body)
	if err != nil {
		return match.Receipt{}, err
	}
	receipt, err := s.reconciler.SubmitWithToken(id, token, actions...)
	if err != nil {
		return match.Receipt{}, err
	}
	log.Debug().
		Str("match_id", id).
		Int("turn", receipt.Turn).
		Int("seat", receipt.Seat).
		Int("actions", len(receipt.Accepted)).
		Msg("Actions accepted")
	return receipt, nil
}

func decodeActions(name dialect.Name, m *types.Match, seat int, body []byte) ([]types.Action, error) {
	agents := dialect.NewAgentMap(m.Board)
	switch name {
	case dialect.Kakomimasu:
		var req kakomimasu.ActionRequest
		if err := json.Unmarshal(body, &req); err != nil {
			return nil, eris.Wrap(match.ErrMalformedAction, err.Error())
		}
		return kakomimasu.Decode(agents, seat, req)
	case dialect.Procon:
		var req procon.ActionRequest
		if err := json.Unmarshal(body, &req); err != nil {
			return nil, eris.Wrap(match.ErrMalformedAction, err.Error())
		}
		return procon.Decode(agents, m.Field, seat, req)
	case dialect.Tomakomai:
		var req tomakomai.ActionRequest
		if err := json.Unmarshal(body, &req); err != nil {
			return nil, eris.Wrap(match.ErrMalformedAction, err.Error())
		}
		return tomakomai.Decode(agents, seat, req)
	}
	return nil, eris.Wrapf(ErrUnknownDialect, "%q", name)
}

// GetMatchView returns the current snapshot of a live match or the stored record of a concluded one.
// A seat token presented before the match is live yields a TooEarlyError; an unknown token is rejected.
func (s *Service) GetMatchView(ctx context.Context, id, token string) (*types.Match, error) {
	m, err := s.table.Get(id)
	if errors.Is(err, match.ErrNotFound) && s.storage != nil {
		m, err = s.storage.LoadMatch(ctx, id)
		if errors.Is(err, storage.ErrNotFound) {
			return nil, eris.Wrapf(match.ErrNotFound, "match %q", id)
		}
	}
	if err != nil {
		return nil, err
	}
	// Stored matches carry no tokens.
	if token == "" || m.Phase.IsTerminal() {
		return m, nil
	}
	if _, ok := m.SeatByToken(token); !ok {
		return nil, eris.Wrapf(match.ErrInvalidToken, "match %q", id)
	}
	if !m.Phase.Started() {
		retry := 0
		if m.StartUnixTime != nil {
			retry = turnclock.UntilStart(m.Start(), s.clock.Now())
		}
		return nil, &match.TooEarlyError{RetryAfter: retry, Phase: m.Phase}
	}
	return m, nil
}

// ListMatches returns live matches in the given phases, oldest first, followed by the most recently
// concluded matches from storage when concluded matches are asked for.
func (s *Service) ListMatches(ctx context.Context, phases []types.Phase, limit int) ([]*types.Match, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	if len(phases) == 0 {
		phases = types.Phases()
	}
	out := s.table.ByPhase(phases...)
	if len(out) >= limit {
		return out[:limit], nil
	}

	wantConcluded := false
	for _, p := range phases {
		wantConcluded = wantConcluded || p == types.PhaseConcluded
	}
	if !wantConcluded || s.storage == nil {
		return out, nil
	}
	ids, err := s.storage.ListMatches(ctx, 0, limit-len(out))
	if err != nil {
		return nil, err
	}
	for _, id := range ids {
		m, err := s.storage.LoadMatch(ctx, id)
		if err != nil {
			log.Warn().Str("match_id", id).Err(err).Msg("Skipping unreadable stored match")
			continue
		}
		out = append(out, m)
	}
	return out, nil
}

// StreamMatches subscribes sink to the matches selected by filter.
func (s *Service) StreamMatches(filter registry.Filter, acceptsNew bool, sink registry.Sink) (
	*registry.Subscription, error,
) {
	return s.registry.Subscribe(filter, acceptsNew, sink)
}

func (s *Service) Board(ctx context.Context, name string) (types.Board, error) {
	if s.storage == nil {
		return types.Board{}, ErrNoCatalog
	}
	b, err := s.storage.GetBoard(ctx, name)
	if errors.Is(err, storage.ErrNotFound) {
		return types.Board{}, eris.Wrapf(match.ErrNotFound, "board %q", name)
	}
	return b, err
}

func (s *Service) PutBoard(ctx context.Context, board types.Board) error {
	if s.storage == nil {
		return ErrNoCatalog
	}
	if err := board.Validate(); err != nil {
		return eris.Wrap(ErrInvalidBoard, err.Error())
	}
	return s.storage.PutBoard(ctx, board)
}

func (s *Service) ListBoards(ctx context.Context) ([]string, error) {
	if s.storage == nil {
		return nil, ErrNoCatalog
	}
	return s.storage.ListBoards(ctx)
}

func (s *Service) Health() Health {
	return Health{
		Matches:       s.table.CountByPhase(),
		Subscriptions: s.registry.Len(),
		Deadlines:     s.scheduler.Pending(),
	}
}
