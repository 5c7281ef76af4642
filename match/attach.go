package match

import (
	"crypto/rand"
	"fmt"
	"math/big"

	"github.com/rotisserie/eris"

	"pkg.world.dev/world-engine/arena/types"
)

const tokenDigits = 6

var tokenSpace = big.NewInt(1_000_000)

// SeatRequest asks for a seat in a match. An empty PlayerID joins as a guest.
type SeatRequest struct {
	PlayerID string           `json:"playerId"`
	Kind     types.PlayerKind `json:"kind,omitempty"`
}

// Attach appends a player to an open match and returns its seat and access token. It does not arm
// the match; the scheduler does that once IsFull reports true.
func Attach(m *types.Match, req SeatRequest) (int, string, error) {
	kind := req.Kind
	if kind == "" {
		kind = types.PlayerKindAccount
		if req.PlayerID == "" {
			kind = types.PlayerKindGuest
		}
	}
	if !kind.Valid() {
		return -1, "", eris.Errorf("unknown player kind %q", req.Kind)
	}
	if kind == types.PlayerKindAccount && req.PlayerID == "" {
		return -1, "", eris.Wrap(ErrNotAllowedSeat, "account players need an id")
	}

	if !m.IsReserved(req.PlayerID) {
		return -1, "", eris.Wrapf(ErrNotAllowedSeat, "player %q is not on the reserved list", req.PlayerID)
	}
	if req.PlayerID != "" {
		if _, ok := m.SeatOf(req.PlayerID); ok {
			return -1, "", eris.Wrapf(ErrAlreadyJoined, "player %q", req.PlayerID)
		}
	}
	if m.Phase != types.PhaseOpen || m.IsFull() {
		return -1, "", eris.Wrapf(ErrRosterFull, "match %q is %s", m.ID, m.Phase)
	}

	token, err := NewAccessToken(m)
	if err != nil {
		return -1, "", err
	}
	seat := len(m.Players)
	id := req.PlayerID
	if id == "" {
		id = fmt.Sprintf("guest-%d", seat+1)
	}
	agents := make([]types.Position, m.Board.AgentsPerSeat)
	for i := range agents {
		agents[i] = m.Field.AgentPosition(m.Board.AgentsPerSeat, seat*m.Board.AgentsPerSeat+i)
	}
	m.Players = append(m.Players, types.Player{
		ID:          id,
		Kind:        kind,
		AccessToken: token,
		Agents:      agents,
	})
	return seat, token, nil
}

// FillWithGuests seats guest placeholders until the roster is full.
func FillWithGuests(m *types.Match) error {
	for !m.IsFull() {
		if _, _, err := Attach(m, SeatRequest{Kind: types.PlayerKindGuest}); err != nil {
			return err
		}
	}
	return nil
}

// NewAccessToken returns a random 6-digit code not used by any player of m.
func NewAccessToken(m *types.Match) (string, error) {
	for {
		n, err := rand.Int(rand.Reader, tokenSpace)
		if err != nil {
			return "", eris.Wrap(err, "failed to generate access token")
		}
		token := fmt.Sprintf("%0*d", tokenDigits, n.Int64())
		if _, taken := m.SeatByToken(token); !taken {
			return token, nil
		}
	}
}
