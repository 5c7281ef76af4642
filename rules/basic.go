package rules

import (
	"github.com/rotisserie/eris"

	"pkg.world.dev/world-engine/arena/types"
)

var _ Engine = (*Basic)(nil)

// Basic is a reference territory engine. Agents put themselves on the board, move to one of the eight
// neighbouring cells or remove a neighbouring wall. Every cell an agent stands on becomes a wall of its
// seat. Cells fully enclosed by a seat's walls count as that seat's area.
type Basic struct{}

func NewBasic() *Basic {
	return &Basic{}
}

func (e *Basic) NewField(board types.Board) (types.Field, error) {
	if err := board.Validate(); err != nil {
		return types.Field{}, err
	}
	field := types.Field{
		Tiles:  make([]types.Tile, board.Width*board.Height),
		Agents: make([][]types.Position, board.Seats),
		Scores: make([]types.Score, board.Seats),
	}
	for i := range field.Tiles {
		field.Tiles[i] = types.EmptyTile
	}
	for seat := range field.Agents {
		field.Agents[seat] = make([]types.Position, board.AgentsPerSeat)
		for j := range field.Agents[seat] {
			field.Agents[seat][j] = types.Unplaced
		}
	}
	return field, nil
}

type candidate struct {
	index  int
	action types.Action
	from   types.Position
	target types.Position
}

func (e *Basic) ApplyTurn(board types.Board, field types.Field, turn int, actions []types.Action) (
	types.Field, []types.AppliedAction, error,
) {
	if len(field.Tiles) != board.Width*board.Height || len(field.Agents) != board.Seats {
		return types.Field{}, nil, eris.Errorf("field does not match board %q", board.Name)
	}
	if turn <= 0 || turn > board.TotalTurns {
		return types.Field{}, nil, eris.Errorf("turn %d is outside of 1..%d", turn, board.TotalTurns)
	}

	next := field.Copy()
	results := make([]types.AppliedAction, 0, board.TotalAgents())
	seen := make(map[int]bool, len(actions))
	candidates := make([]candidate, 0, len(actions))

	for _, action := range actions {
		from := field.AgentPosition(board.AgentsPerSeat, action.AgentID)
		result := types.AppliedAction{Action: action, From: from}
		switch {
		case action.AgentID < 0 || action.AgentID >= board.TotalAgents():
			result.Outcome = types.OutcomeIllegalAgent
		case seen[action.AgentID]:
			result.Outcome = types.OutcomeDuplicateInstruction
		case !e.legal(board, field, action, from):
			result.Outcome = types.OutcomeIllegalAction
		}
		if action.AgentID >= 0 {
			seen[action.AgentID] = true
		}
		results = append(results, result)
		if result.Outcome == types.OutcomeUnknown {
			candidates = append(candidates, candidate{
				index:  len(results) - 1,
				action: action,
				from:   from,
				target: types.Position{X: action.X, Y: action.Y},
			})
		}
	}

	// Agents that did not submit anything stay where they are.
	for agent := 0; agent < board.TotalAgents(); agent++ {
		if seen[agent] {
			continue
		}
		from := field.AgentPosition(board.AgentsPerSeat, agent)
		results = append(results, types.AppliedAction{
			Action:   types.Action{AgentID: agent, Type: types.ActionStay, X: from.X, Y: from.Y},
			From:     from,
			Outcome:  types.OutcomeApplied,
			Inferred: true,
		})
	}

	e.resolve(board, field, candidates, results)

	for _, c := range candidates {
		if results[c.index].Outcome != types.OutcomeApplied {
			continue
		}
		seat, local := c.action.AgentID/board.AgentsPerSeat, c.action.AgentID%board.AgentsPerSeat
		idx := board.Index(c.target.X, c.target.Y)
		switch c.action.Type {
		case types.ActionPut, types.ActionMove:
			next.Agents[seat][local] = c.target
			next.Tiles[idx] = types.Tile{Kind: types.TileWall, Owner: seat}
		case types.ActionRemove:
			next.Tiles[idx] = types.EmptyTile
		case types.ActionStay, types.ActionUnknown:
		}
	}

	next.Scores = Scores(board, next)
	return next, results, nil
}

func (e *Basic) legal(board types.Board, field types.Field, action types.Action, from types.Position) bool {
	seat := action.AgentID / board.AgentsPerSeat
	switch action.Type {
	case types.ActionStay:
		return true
	case types.ActionPut:
		if from.Placed() || !board.InBounds(action.X, action.Y) {
			return false
		}
		tile := field.Tiles[board.Index(action.X, action.Y)]
		return tile.Kind != types.TileWall || tile.Owner == seat
	case types.ActionMove:
		if !from.Placed() || !board.InBounds(action.X, action.Y) || !adjacent(from, action.X, action.Y) {
			return false
		}
		tile := field.Tiles[board.Index(action.X, action.Y)]
		return tile.Kind != types.TileWall || tile.Owner == seat
	case types.ActionRemove:
		if !from.Placed() || !board.InBounds(action.X, action.Y) || !adjacent(from, action.X, action.Y) {
			return false
		}
		return field.Tiles[board.Index(action.X, action.Y)].Kind == types.TileWall
	case types.ActionUnknown:
	}
	return false
}

// resolve marks candidates targeting the same cell as conflicted and candidates running into an agent
// that does not leave its cell as reverted. Every other candidate is applied.
func (e *Basic) resolve(board types.Board, field types.Field, candidates []candidate, results []types.AppliedAction) {
	targets := make(map[types.Position]int, len(candidates))
	for _, c := range candidates {
		if c.action.Type != types.ActionStay {
			targets[c.target]++
		}
	}

	// An agent only leaves its cell if its own move goes through. Withdrawing a blocked move can block
	// the agent behind it, so repeat until nothing changes.
	moving := make(map[int]types.Position, len(candidates))
	for _, c := range candidates {
		if c.action.Type == types.ActionMove && targets[c.target] == 1 {
			moving[c.action.AgentID] = c.target
		}
	}
	occupied := occupiedCells(board, field, moving)
	for {
		changed := false
		for agent, target := range moving {
			if occupied[target] {
				delete(moving, agent)
				changed = true
			}
		}
		if !changed {
			break
		}
		occupied = occupiedCells(board, field, moving)
	}

	for _, c := range candidates {
		outcome := types.OutcomeApplied
		switch {
		case c.action.Type == types.ActionStay:
		case targets[c.target] > 1:
			outcome = types.OutcomeConflicted
		case occupied[c.target]:
			outcome = types.OutcomeReverted
		}
		results[c.index].Outcome = outcome
	}
}

// occupiedCells returns the cells of placed agents that are not moving away.
func occupiedCells(board types.Board, field types.Field, moving map[int]types.Position) map[types.Position]bool {
	occupied := make(map[types.Position]bool)
	for seat, agents := range field.Agents {
		for local, pos := range agents {
			if _, ok := moving[seat*board.AgentsPerSeat+local]; pos.Placed() && !ok {
				occupied[pos] = true
			}
		}
	}
	return occupied
}

func adjacent(from types.Position, x, y int) bool {
	dx, dy := x-from.X, y-from.Y
	if dx == 0 && dy == 0 {
		return false
	}
	return dx >= -1 && dx <= 1 && dy >= -1 && dy <= 1
}
