package kakomimasu

import (
	"pkg.world.dev/world-engine/arena/dialect"
	"pkg.world.dev/world-engine/arena/types"
)

type Point struct {
	AreaPoint int `json:"areaPoint"`
	WallPoint int `json:"wallPoint"`
}

type Agent struct {
	X int `json:"x"`
	Y int `json:"y"`
}

type Player struct {
	ID     string  `json:"id"`
	Kind   string  `json:"type"`
	Agents []Agent `json:"agents"`
	Point  Point   `json:"point"`
}

// Tile is a cell of the field. Type is 0 for an empty cell and 1 for a wall; Player is the owning seat.
type Tile struct {
	Type   int  `json:"type"`
	Player *int `json:"player"`
}

type Board struct {
	Name          string `json:"name"`
	Width         int    `json:"width"`
	Height        int    `json:"height"`
	Points        []int  `json:"points"`
	NPlayer       int    `json:"nPlayer"`
	NAgent        int    `json:"nAgent"`
	TotalTurn     int    `json:"totalTurn"`
	OperationSec  int    `json:"operationSec"`
	TransitionSec int    `json:"transitionSec"`
}

type ActionResult struct {
	Action
	Result int `json:"res"`
}

type TurnPlayer struct {
	Point   Point          `json:"point"`
	Actions []ActionResult `json:"actions"`
}

type Turn struct {
	Turn    int          `json:"turn"`
	Players []TurnPlayer `json:"players"`
}

type Match struct {
	ID                string   `json:"id"`
	Name              string   `json:"name"`
	Category          string   `json:"category"`
	Phase             string   `json:"phase"`
	Board             Board    `json:"board"`
	StartedAtUnixTime *int64   `json:"startedAtUnixTime"`
	Turn              int      `json:"turn"`
	Players           []Player `json:"players"`
	Tiles             []Tile   `json:"tiles"`
	Log               []Turn   `json:"log"`
}

func EncodeBoard(b types.Board) Board {
	return Board{
		Name:          b.Name,
		Width:         b.Width,
		Height:        b.Height,
		Points:        append([]int(nil), b.Points...),
		NPlayer:       b.Seats,
		NAgent:        b.AgentsPerSeat,
		TotalTurn:     b.TotalTurns,
		OperationSec:  b.OperationSeconds,
		TransitionSec: b.TransitionSeconds,
	}
}

// EncodeMatch renders a snapshot. Field and log are hidden until the match is live.
func EncodeMatch(m *types.Match) Match {
	out := Match{
		ID:                m.ID,
		Name:              m.Name,
		Category:          m.Category,
		Phase:             string(m.Phase),
		Board:             EncodeBoard(m.Board),
		StartedAtUnixTime: m.StartUnixTime,
		Turn:              m.Turn,
		Players:           make([]Player, 0, len(m.Players)),
		Log:               []Turn{},
	}
	for seat, p := range m.Players {
		player := Player{ID: p.ID, Kind: string(p.Kind), Agents: make([]Agent, 0, len(p.Agents))}
		if m.Phase.Started() {
			for _, pos := range p.Agents {
				player.Agents = append(player.Agents, Agent{X: pos.X, Y: pos.Y})
			}
			if seat < len(m.Field.Scores) {
				s := m.Field.Scores[seat]
				player.Point = Point{AreaPoint: s.Area, WallPoint: s.Wall}
			}
		}
		out.Players = append(out.Players, player)
	}
	if m.Phase.Started() {
		out.Tiles = EncodeTiles(m.Field)
		out.Log = EncodeLog(m)
	}
	return out
}

func EncodeTiles(f types.Field) []Tile {
	out := make([]Tile, len(f.Tiles))
	for i, t := range f.Tiles {
		if t.Kind == types.TileWall {
			owner := t.Owner
			out[i] = Tile{Type: 1, Player: &owner}
		}
	}
	return out
}

// EncodeLog renders the applied turns grouped by seat.
func EncodeLog(m *types.Match) []Turn {
	agents := dialect.NewAgentMap(m.Board)
	out := make([]Turn, 0, len(m.Log))
	for _, rec := range m.Log {
		turn := Turn{Turn: rec.Turn, Players: make([]TurnPlayer, m.Board.Seats)}
		for seat := range turn.Players {
			turn.Players[seat].Actions = []ActionResult{}
			if seat < len(rec.Scores) {
				turn.Players[seat].Point = Point{AreaPoint: rec.Scores[seat].Area, WallPoint: rec.Scores[seat].Wall}
			}
		}
		for _, applied := range rec.Actions {
			if applied.Inferred {
				continue
			}
			seat, a, err := FromCanonical(agents, applied.Action)
			if err != nil {
				continue
			}
			turn.Players[seat].Actions = append(turn.Players[seat].Actions, ActionResult{
				Action: a,
				Result: EncodeOutcome(applied.Outcome),
			})
		}
		out = append(out, turn)
	}
	return out
}
