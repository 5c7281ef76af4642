package procon

import (
	"pkg.world.dev/world-engine/arena/dialect"
	"pkg.world.dev/world-engine/arena/types"
)

// Agent positions are 1-based; an agent that is not on the board yet reports 0, 0.
type Agent struct {
	AgentID int `json:"agentID"`
	X       int `json:"x"`
	Y       int `json:"y"`
}

type Team struct {
	TeamID    int     `json:"teamID"`
	Agents    []Agent `json:"agents"`
	WallPoint int     `json:"wallPoint"`
	AreaPoint int     `json:"areaPoint"`
}

type ActionResult struct {
	Action
	Turn  int `json:"turn"`
	Apply int `json:"apply"`
}

// Match is the field as the competition clients expect it. Walls holds the owning team id per cell
// and 0 for empty cells.
type Match struct {
	ID                string         `json:"id"`
	Width             int            `json:"width"`
	Height            int            `json:"height"`
	Points            [][]int        `json:"points"`
	StartedAtUnixTime *int64         `json:"startedAtUnixTime"`
	Turn              int            `json:"turn"`
	Walls             [][]int        `json:"walls"`
	Teams             []Team         `json:"teams"`
	Actions           []ActionResult `json:"actions"`
}

func EncodeMatch(m *types.Match) Match {
	b := m.Board
	out := Match{
		ID:                m.ID,
		Width:             b.Width,
		Height:            b.Height,
		Points:            grid(b, func(i int) int { return b.Points[i] }),
		StartedAtUnixTime: m.StartUnixTime,
		Turn:              m.Turn,
		Teams:             make([]Team, 0, b.Seats),
		Actions:           []ActionResult{},
	}
	started := m.Phase.Started() && len(m.Field.Tiles) == b.Width*b.Height
	if started {
		out.Walls = grid(b, func(i int) int {
			if t := m.Field.Tiles[i]; t.Kind == types.TileWall {
				return t.Owner + 1
			}
			return 0
		})
		out.Actions = EncodeLog(m)
	}
	for seat := 0; seat < b.Seats; seat++ {
		team := Team{TeamID: seat + 1, Agents: make([]Agent, 0, b.AgentsPerSeat)}
		for local := 0; local < b.AgentsPerSeat; local++ {
			global := seat*b.AgentsPerSeat + local
			agent := Agent{AgentID: global + 1}
			if pos := m.Field.AgentPosition(b.AgentsPerSeat, global); started && pos.Placed() {
				agent.X, agent.Y = pos.X+1, pos.Y+1
			}
			team.Agents = append(team.Agents, agent)
		}
		if started && seat < len(m.Field.Scores) {
			team.WallPoint, team.AreaPoint = m.Field.Scores[seat].Wall, m.Field.Scores[seat].Area
		}
		out.Teams = append(out.Teams, team)
	}
	return out
}

// EncodeLog flattens the history into one list of submitted actions, deltas relative to the position
// each agent had before its turn.
func EncodeLog(m *types.Match) []ActionResult {
	agents := dialect.NewAgentMap(m.Board)
	var out []ActionResult
	for _, rec := range m.Log {
		for _, applied := range rec.Actions {
			if applied.Inferred {
				continue
			}
			a, err := FromCanonical(agents, applied.From, applied.Action)
			if err != nil {
				continue
			}
			out = append(out, ActionResult{Action: a, Turn: rec.Turn, Apply: EncodeOutcome(applied.Outcome)})
		}
	}
	if out == nil {
		out = []ActionResult{}
	}
	return out
}

func grid(b types.Board, value func(i int) int) [][]int {
	out := make([][]int, b.Height)
	for y := range out {
		out[y] = make([]int, b.Width)
		for x := range out[y] {
			out[y][x] = value(b.Index(x, y))
		}
	}
	return out
}
