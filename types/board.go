package types

import (
	"github.com/rotisserie/eris"
)

// Board is the static description of a playing field and the pacing of a match played on it.
// Points are stored row-major: the value of cell (x, y) is Points[y*Width+x].
type Board struct {
	Name              string `json:"name"`
	Width             int    `json:"width"`
	Height            int    `json:"height"`
	Points            []int  `json:"points"`
	Seats             int    `json:"seats"`
	AgentsPerSeat     int    `json:"agentsPerSeat"`
	TotalTurns        int    `json:"totalTurns"`
	OperationSeconds  int    `json:"operationSeconds"`
	TransitionSeconds int    `json:"transitionSeconds"`
}

func (b *Board) Validate() error {
	if b.Width <= 0 || b.Height <= 0 {
		return eris.Errorf("board %q has invalid dimensions %dx%d", b.Name, b.Width, b.Height)
	}
	if len(b.Points) != b.Width*b.Height {
		return eris.Errorf("board %q has %d points, expected %d", b.Name, len(b.Points), b.Width*b.Height)
	}
	if b.Seats <= 0 {
		return eris.Errorf("board %q must have at least one seat", b.Name)
	}
	if b.AgentsPerSeat <= 0 {
		return eris.Errorf("board %q must have at least one agent per seat", b.Name)
	}
	if b.TotalTurns <= 0 {
		return eris.Errorf("board %q must have at least one turn", b.Name)
	}
	if b.OperationSeconds <= 0 || b.TransitionSeconds <= 0 {
		return eris.Errorf("board %q must have positive operation and transition durations", b.Name)
	}
	return nil
}

// TotalAgents is the number of controllable units across all seats.
func (b *Board) TotalAgents() int {
	return b.Seats * b.AgentsPerSeat
}

func (b *Board) InBounds(x, y int) bool {
	return x >= 0 && y >= 0 && x < b.Width && y < b.Height
}

func (b *Board) Index(x, y int) int {
	return y*b.Width + x
}

func (b *Board) Point(x, y int) int {
	return b.Points[b.Index(x, y)]
}

func (b Board) Copy() Board {
	out := b
	out.Points = append([]int(nil), b.Points...)
	return out
}

// Position is an agent location. Agents that have not been put on the board yet are Unplaced.
type Position struct {
	X int `json:"x"`
	Y int `json:"y"`
}

var Unplaced = Position{X: -1, Y: -1}

func (p Position) Placed() bool {
	return p.X >= 0 && p.Y >= 0
}

type TileKind string

const (
	TileEmpty TileKind = "empty"
	TileWall  TileKind = "wall"
)

// Tile is one cell of the field. Owner is the seat index owning the wall, -1 when the tile is empty.
type Tile struct {
	Kind  TileKind `json:"kind"`
	Owner int      `json:"owner"`
}

var EmptyTile = Tile{Kind: TileEmpty, Owner: -1}

type Score struct {
	Wall int `json:"wall"`
	Area int `json:"area"`
}

func (s Score) Total() int {
	return s.Wall + s.Area
}

// Field is the mutable state produced by the rules engine after each turn.
type Field struct {
	Tiles  []Tile       `json:"tiles"`
	Agents [][]Position `json:"agents"`
	Scores []Score      `json:"scores"`
}

func (f Field) Copy() Field {
	out := Field{
		Tiles:  append([]Tile(nil), f.Tiles...),
		Scores: append([]Score(nil), f.Scores...),
	}
	if f.Agents != nil {
		out.Agents = make([][]Position, len(f.Agents))
		for i, seat := range f.Agents {
			out.Agents[i] = append([]Position(nil), seat...)
		}
	}
	return out
}

// AgentPosition returns the position of a global agent id, or Unplaced if the id is unknown.
func (f Field) AgentPosition(agentsPerSeat, agentID int) Position {
	if agentsPerSeat <= 0 || agentID < 0 {
		return Unplaced
	}
	seat, local := agentID/agentsPerSeat, agentID%agentsPerSeat
	if seat >= len(f.Agents) || local >= len(f.Agents[seat]) {
		return Unplaced
	}
	return f.Agents[seat][local]
}
