package tomakomai

import (
	"pkg.world.dev/world-engine/arena/dialect"
	"pkg.world.dev/world-engine/arena/types"
)

type Agent struct {
	AgentID int `json:"agentId"`
	X       int `json:"x"`
	Y       int `json:"y"`
}

type Score struct {
	Wall  int `json:"wall"`
	Area  int `json:"area"`
	Total int `json:"total"`
}

type Player struct {
	PlayerID string  `json:"playerId"`
	Agents   []Agent `json:"agents"`
	Score    Score   `json:"score"`
}

type ActionResult struct {
	Action
	Result string `json:"result"`
}

type Turn struct {
	Turn    int              `json:"turn"`
	Actions [][]ActionResult `json:"actions"`
	Scores  []Score          `json:"scores"`
}

// Match is the tournament view. Walls holds the owning seat plus one, 0 for empty cells.
type Match struct {
	MatchID           string   `json:"matchId"`
	Phase             string   `json:"phase"`
	Turn              int      `json:"turn"`
	TotalTurn         int      `json:"totalTurn"`
	StartedAtUnixTime *int64   `json:"startedAtUnixTime"`
	OperationSec      int      `json:"operationSec"`
	TransitionSec     int      `json:"transitionSec"`
	Width             int      `json:"width"`
	Height            int      `json:"height"`
	Points            []int    `json:"points"`
	Walls             []int    `json:"walls"`
	Players           []Player `json:"players"`
	Log               []Turn   `json:"log"`
}

func encodeScore(s types.Score) Score {
	return Score{Wall: s.Wall, Area: s.Area, Total: s.Total()}
}

func EncodeMatch(m *types.Match) Match {
	b := m.Board
	out := Match{
		MatchID:           m.ID,
		Phase:             string(m.Phase),
		Turn:              m.Turn,
		TotalTurn:         b.TotalTurns,
		StartedAtUnixTime: m.StartUnixTime,
		OperationSec:      b.OperationSeconds,
		TransitionSec:     b.TransitionSeconds,
		Width:             b.Width,
		Height:            b.Height,
		Points:            append([]int(nil), b.Points...),
		Players:           make([]Player, 0, len(m.Players)),
		Log:               []Turn{},
	}
	started := m.Phase.Started()
	if started {
		out.Walls = make([]int, len(m.Field.Tiles))
		for i, t := range m.Field.Tiles {
			if t.Kind == types.TileWall {
				out.Walls[i] = t.Owner + 1
			}
		}
		out.Log = EncodeLog(m)
	}
	for seat, p := range m.Players {
		player := Player{PlayerID: p.ID, Agents: make([]Agent, 0, len(p.Agents))}
		if started {
			for local, pos := range p.Agents {
				agent := Agent{AgentID: local + 1}
				if pos.Placed() {
					agent.X, agent.Y = pos.X+1, pos.Y+1
				}
				player.Agents = append(player.Agents, agent)
			}
			if seat < len(m.Field.Scores) {
				player.Score = encodeScore(m.Field.Scores[seat])
			}
		}
		out.Players = append(out.Players, player)
	}
	return out
}

// EncodeLog renders every applied turn with the submitted actions grouped by seat.
func EncodeLog(m *types.Match) []Turn {
	agents := dialect.NewAgentMap(m.Board)
	out := make([]Turn, 0, len(m.Log))
	for _, rec := range m.Log {
		turn := Turn{
			Turn:    rec.Turn,
			Actions: make([][]ActionResult, m.Board.Seats),
			Scores:  make([]Score, 0, len(rec.Scores)),
		}
		for seat := range turn.Actions {
			turn.Actions[seat] = []ActionResult{}
		}
		for _, s := range rec.Scores {
			turn.Scores = append(turn.Scores, encodeScore(s))
		}
		for _, applied := range rec.Actions {
			if applied.Inferred {
				continue
			}
			seat, a, err := FromCanonical(agents, applied.Action)
			if err != nil {
				continue
			}
			turn.Actions[seat] = append(turn.Actions[seat], ActionResult{Action: a, Result: EncodeOutcome(applied.Outcome)})
		}
		out = append(out, turn)
	}
	return out
}
