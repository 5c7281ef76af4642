package kakomimasu

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pkg.world.dev/world-engine/arena/dialect"
	"pkg.world.dev/world-engine/arena/match"
	"pkg.world.dev/world-engine/arena/types"
)

var agents = dialect.AgentMap{Seats: 2, AgentsPerSeat: 2}

func TestRoundTrip(t *testing.T) {
	canonical := []types.Action{
		{AgentID: 3, Type: types.ActionPut, X: 4, Y: 1},
		{AgentID: 3, Type: types.ActionStay},
		{AgentID: 2, Type: types.ActionMove, X: 0, Y: 0},
		{AgentID: 2, Type: types.ActionRemove, X: 5, Y: 2},
	}
	for _, c := range canonical {
		seat, wire, err := FromCanonical(agents, c)
		require.NoError(t, err)
		assert.Equal(t, 1, seat)
		assert.Equal(t, c.AgentID-2, wire.AgentID)

		back, err := ToCanonical(agents, seat, wire)
		require.NoError(t, err)
		assert.Equal(t, c, back, c.Type.String())
	}
}

func TestDecode(t *testing.T) {
	actions, err := Decode(agents, 1, ActionRequest{Actions: []Action{
		{AgentID: 0, Type: TypePut, X: 1, Y: 2},
		{AgentID: 1, Type: TypeNone, X: 7, Y: 7},
	}})
	require.NoError(t, err)
	assert.Equal(t, []types.Action{
		{AgentID: 2, Type: types.ActionPut, X: 1, Y: 2},
		{AgentID: 3, Type: types.ActionStay},
	}, actions)

	_, err = Decode(agents, 0, ActionRequest{Actions: []Action{{AgentID: 2, Type: TypePut}}})
	assert.ErrorIs(t, err, match.ErrIllegalAgent)
	_, err = Decode(agents, 0, ActionRequest{Actions: []Action{{AgentID: 0, Type: "JUMP"}}})
	assert.ErrorIs(t, err, match.ErrMalformedAction)
}

func TestOutcomes(t *testing.T) {
	seen := map[int]bool{}
	for _, o := range types.Outcomes() {
		code := EncodeOutcome(o)
		assert.NotEqual(t, ResultUnknown, code, o.String())
		assert.False(t, seen[code], "code %d used twice", code)
		seen[code] = true

		back, err := DecodeOutcome(code)
		require.NoError(t, err)
		assert.Equal(t, o, back)
	}
	_, err := DecodeOutcome(42)
	assert.Error(t, err)
}

func TestEncodeMatch(t *testing.T) {
	start := int64(100)
	m := &types.Match{
		ID:    "m",
		Phase: types.PhaseLive,
		Board: types.Board{
			Width: 2, Height: 1, Points: []int{1, 2}, Seats: 2, AgentsPerSeat: 1,
			TotalTurns: 2, OperationSeconds: 1, TransitionSeconds: 1,
		},
		StartUnixTime: &start,
		Turn:          2,
		Players: []types.Player{
			{ID: "a", Kind: types.PlayerKindAccount, Agents: []types.Position{{X: 0, Y: 0}}},
			{ID: "b", Kind: types.PlayerKindGuest, Agents: []types.Position{types.Unplaced}},
		},
		Field: types.Field{
			Tiles:  []types.Tile{{Kind: types.TileWall, Owner: 0}, types.EmptyTile},
			Agents: [][]types.Position{{{X: 0, Y: 0}}, {types.Unplaced}},
			Scores: []types.Score{{Wall: 1}, {}},
		},
		Log: []types.TurnRecord{{
			Turn: 1,
			Actions: []types.AppliedAction{
				{Action: types.Action{AgentID: 0, Type: types.ActionPut}, From: types.Unplaced, Outcome: types.OutcomeApplied},
				{Action: types.Action{AgentID: 1, Type: types.ActionStay}, Outcome: types.OutcomeApplied, Inferred: true},
			},
			Scores: []types.Score{{Wall: 1}, {}},
		}},
	}

	view := EncodeMatch(m)
	assert.Equal(t, 2, view.Board.NPlayer)
	require.Len(t, view.Tiles, 2)
	require.NotNil(t, view.Tiles[0].Player)
	assert.Equal(t, 0, *view.Tiles[0].Player)
	assert.Nil(t, view.Tiles[1].Player)
	assert.Equal(t, Point{WallPoint: 1}, view.Players[0].Point)

	require.Len(t, view.Log, 1)
	require.Len(t, view.Log[0].Players[0].Actions, 1)
	assert.Equal(t, TypePut, view.Log[0].Players[0].Actions[0].Type)
	assert.Equal(t, ResultApplied, view.Log[0].Players[0].Actions[0].Result)
	assert.Empty(t, view.Log[0].Players[1].Actions)

	m.Phase = types.PhaseOpen
	view = EncodeMatch(m)
	assert.Nil(t, view.Tiles)
	assert.Empty(t, view.Log)
	assert.Empty(t, view.Players[0].Agents)
}
