// Package procon speaks the competition dialect. Agents carry global ids starting at 1, coordinates are
// 1-based, put is absolute while move and remove are deltas from the agent's current position, and
// results are compressed to three codes.
package procon

import (
	"github.com/rotisserie/eris"

	"pkg.world.dev/world-engine/arena/dialect"
	"pkg.world.dev/world-engine/arena/match"
	"pkg.world.dev/world-engine/arena/types"
)

const (
	TypePut    = "put"
	TypeStay   = "stay"
	TypeMove   = "move"
	TypeRemove = "remove"
)

const (
	ResultInvalid  = -1
	ResultConflict = 0
	ResultApplied  = 1
)

// Action is one agent instruction. X and Y are only read for put, DX and DY only for move and remove.
type Action struct {
	AgentID int    `json:"agentID" jsonschema:"minimum=1"`
	Type    string `json:"type" jsonschema:"enum=put,enum=stay,enum=move,enum=remove"`
	DX      int    `json:"dx" jsonschema:"minimum=-1,maximum=1"`
	DY      int    `json:"dy" jsonschema:"minimum=-1,maximum=1"`
	X       int    `json:"x,omitempty" jsonschema:"minimum=1"`
	Y       int    `json:"y,omitempty" jsonschema:"minimum=1"`
}

type ActionRequest struct {
	Actions []Action `json:"actions" jsonschema:"required"`
}

// ToCanonical translates an action. from is the agent's position before the turn.
func ToCanonical(agents dialect.AgentMap, from types.Position, a Action) (types.Action, error) {
	global := a.AgentID - 1
	if _, _, err := agents.Local(global); err != nil {
		return types.Action{}, err
	}
	out := types.Action{AgentID: global}
	switch a.Type {
	case TypePut:
		out.Type, out.X, out.Y = types.ActionPut, a.X-1, a.Y-1
	case TypeStay:
		out.Type = types.ActionStay
	case TypeMove:
		out.Type, out.X, out.Y = types.ActionMove, from.X+a.DX, from.Y+a.DY
	case TypeRemove:
		out.Type, out.X, out.Y = types.ActionRemove, from.X+a.DX, from.Y+a.DY
	default:
		return types.Action{}, eris.Wrapf(match.ErrMalformedAction, "unknown action type %q", a.Type)
	}
	return out, nil
}

// FromCanonical translates a canonical action taken from position from.
func FromCanonical(agents dialect.AgentMap, from types.Position, a types.Action) (Action, error) {
	if _, _, err := agents.Local(a.AgentID); err != nil {
		return Action{}, err
	}
	out := Action{AgentID: a.AgentID + 1}
	switch a.Type {
	case types.ActionPut:
		out.Type, out.X, out.Y = TypePut, a.X+1, a.Y+1
	case types.ActionStay:
		out.Type = TypeStay
	case types.ActionMove:
		out.Type, out.DX, out.DY = TypeMove, a.X-from.X, a.Y-from.Y
	case types.ActionRemove:
		out.Type, out.DX, out.DY = TypeRemove, a.X-from.X, a.Y-from.Y
	case types.ActionUnknown:
		return Action{}, eris.Wrapf(match.ErrMalformedAction, "unknown action type %s", a.Type)
	}
	return out, nil
}

// Decode translates a request sent by seat. Agents of other seats are rejected.
func Decode(agents dialect.AgentMap, field types.Field, seat int, req ActionRequest) ([]types.Action, error) {
	out := make([]types.Action, 0, len(req.Actions))
	for _, a := range req.Actions {
		from := field.AgentPosition(agents.AgentsPerSeat, a.AgentID-1)
		c, err := ToCanonical(agents, from, a)
		if err != nil {
			return nil, err
		}
		if !agents.Owns(seat, c.AgentID) {
			return nil, eris.Wrapf(match.ErrIllegalAgent, "agent %d for team %d", a.AgentID, seat+1)
		}
		out = append(out, c)
	}
	return out, nil
}

// EncodeOutcome compresses the canonical outcomes: applied is 1, conflicts and reverts are 0 and every
// rejection is -1.
func EncodeOutcome(o types.Outcome) int {
	switch o {
	case types.OutcomeApplied:
		return ResultApplied
	case types.OutcomeConflicted, types.OutcomeReverted:
		return ResultConflict
	case types.OutcomeDuplicateInstruction, types.OutcomeIllegalAgent, types.OutcomeIllegalAction,
		types.OutcomeUnknown:
	}
	return ResultInvalid
}

// DecodeOutcome maps a code back to the most severe canonical outcome it stands for.
func DecodeOutcome(code int) (types.Outcome, error) {
	switch code {
	case ResultApplied:
		return types.OutcomeApplied, nil
	case ResultConflict:
		return types.OutcomeReverted, nil
	case ResultInvalid:
		return types.OutcomeIllegalAction, nil
	}
	return types.OutcomeUnknown, eris.Errorf("unknown result code %d", code)
}
