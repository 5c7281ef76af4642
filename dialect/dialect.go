// Package dialect holds what the wire dialects share: agent numbering between seat-local and global ids
// and the names of the supported dialects. Each dialect lives in its own subpackage and exposes pure
// functions translating its payloads into canonical actions and canonical outcomes into its codes.
package dialect

import (
	"github.com/rotisserie/eris"

	"pkg.world.dev/world-engine/arena/match"
	"pkg.world.dev/world-engine/arena/types"
)

type Name string

const (
	Kakomimasu Name = "kakomimasu"
	Procon     Name = "procon"
	Tomakomai  Name = "tomakomai"
)

func Names() []Name {
	return []Name{Kakomimasu, Procon, Tomakomai}
}

func (n Name) Valid() bool {
	switch n {
	case Kakomimasu, Procon, Tomakomai:
		return true
	}
	return false
}

// AgentMap converts between (seat, local agent index) pairs and global agent ids:
// global = seat*AgentsPerSeat + local.
type AgentMap struct {
	Seats         int
	AgentsPerSeat int
}

func NewAgentMap(board types.Board) AgentMap {
	return AgentMap{Seats: board.Seats, AgentsPerSeat: board.AgentsPerSeat}
}

func (a AgentMap) Total() int {
	return a.Seats * a.AgentsPerSeat
}

// Global returns the global id of a seat-local, 0-based agent index.
func (a AgentMap) Global(seat, local int) (int, error) {
	if seat < 0 || seat >= a.Seats || local < 0 || local >= a.AgentsPerSeat {
		return -1, eris.Wrapf(match.ErrIllegalAgent, "seat %d agent %d", seat, local)
	}
	return seat*a.AgentsPerSeat + local, nil
}

// Local returns the seat and the seat-local, 0-based index of a global agent id.
func (a AgentMap) Local(global int) (int, int, error) {
	if global < 0 || global >= a.Total() {
		return -1, -1, eris.Wrapf(match.ErrIllegalAgent, "agent %d", global)
	}
	return global / a.AgentsPerSeat, global % a.AgentsPerSeat, nil
}

// Owns reports whether the global agent id belongs to seat.
func (a AgentMap) Owns(seat, global int) bool {
	s, _, err := a.Local(global)
	return err == nil && s == seat
}
