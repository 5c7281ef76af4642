package match

import (
	"sort"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/rotisserie/eris"

	"pkg.world.dev/world-engine/arena/turnclock"
	"pkg.world.dev/world-engine/arena/types"
)

// Receipt acknowledges the actions accepted for a turn.
type Receipt struct {
	MatchID  string         `json:"matchId"`
	Turn     int            `json:"turn"`
	Seat     int            `json:"seat"`
	Accepted []types.Action `json:"accepted"`
}

// Reconciler accepts player actions into the pending set of the current turn. Only PendingActions
// is ever mutated here; phase and turn belong to the scheduler.
type Reconciler struct {
	table *Table
	clock clock.Clock
}

func NewReconciler(table *Table, clk clock.Clock) *Reconciler {
	if clk == nil {
		clk = clock.New()
	}
	return &Reconciler{table: table, clock: clk}
}

// Submit records actions on behalf of seat. A later submission for the same agent replaces the earlier
// one. Either every action is accepted or none is.
func (r *Reconciler) Submit(matchID string, seat int, actions ...types.Action) (Receipt, error) {
	return r.submit(matchID, func(*types.Match) (int, error) { return seat, nil }, actions)
}

// SubmitWithToken is Submit with the seat resolved from a player's access token.
func (r *Reconciler) SubmitWithToken(matchID, token string, actions ...types.Action) (Receipt, error) {
	return r.submit(matchID, func(m *types.Match) (int, error) {
		seat, ok := m.SeatByToken(token)
		if !ok {
			return -1, eris.Wrapf(ErrInvalidToken, "match %q", matchID)
		}
		return seat, nil
	}, actions)
}

func (r *Reconciler) submit(matchID string, resolve func(*types.Match) (int, error), actions []types.Action) (
	Receipt, error,
) {
	var receipt Receipt
	_, err := r.table.Update(matchID, func(m *types.Match) error {
		seat, err := resolve(m)
		if err != nil {
			return err
		}
		if err := CheckWindow(m, r.clock.Now()); err != nil {
			return err
		}
		for _, a := range actions {
			if err := checkAction(m, seat, a); err != nil {
				return err
			}
		}

		if m.PendingActions == nil {
			m.PendingActions = make(map[int]types.Action, len(actions))
		}
		for _, a := range actions {
			m.PendingActions[a.AgentID] = a
		}
		receipt = Receipt{
			MatchID:  m.ID,
			Turn:     m.Turn,
			Seat:     seat,
			Accepted: append([]types.Action(nil), actions...),
		}
		return nil
	})
	if err != nil {
		return Receipt{}, err
	}
	return receipt, nil
}

// CheckWindow reports whether the match accepts actions at now: a TooEarlyError before the start,
// ErrUnacceptableTime inside a transition window or after the match concluded.
func CheckWindow(m *types.Match, now time.Time) error {
	switch m.Phase {
	case types.PhaseOpen, types.PhaseArmed:
		retry := 0
		if m.StartUnixTime != nil {
			retry = turnclock.UntilStart(m.Start(), now)
		}
		return &TooEarlyError{RetryAfter: retry, Phase: m.Phase}
	case types.PhaseConcluded:
		return eris.Wrapf(ErrUnacceptableTime, "match %q has concluded", m.ID)
	case types.PhaseLive:
		b := m.Board
		if turnclock.IsInTransitionWindow(m.Start(), b.OperationSeconds, b.TransitionSeconds, now) {
			return eris.Wrapf(ErrUnacceptableTime, "match %q is between turns", m.ID)
		}
		return nil
	}
	return eris.Errorf("match %q has unknown phase %q", m.ID, m.Phase)
}

func checkAction(m *types.Match, seat int, a types.Action) error {
	if !a.Type.Valid() {
		return eris.Wrapf(ErrMalformedAction, "agent %d: %s", a.AgentID, a.Type)
	}
	per := m.Board.AgentsPerSeat
	if seat < 0 || seat >= len(m.Players) {
		return eris.Wrapf(ErrIllegalAgent, "seat %d is not taken", seat)
	}
	if a.AgentID < 0 || a.AgentID >= m.Board.TotalAgents() || a.AgentID/per != seat {
		return eris.Wrapf(ErrIllegalAgent, "agent %d for seat %d", a.AgentID, seat)
	}
	return nil
}

// PendingBatch returns the pending actions of m ordered by agent id, one per agent.
func PendingBatch(m *types.Match) []types.Action {
	batch := make([]types.Action, 0, len(m.PendingActions))
	for _, a := range m.PendingActions {
		batch = append(batch, a)
	}
	sort.Slice(batch, func(i, j int) bool { return batch[i].AgentID < batch[j].AgentID })
	return batch
}
