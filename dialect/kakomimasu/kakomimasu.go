// Package kakomimasu is the native dialect served under /v1. Agents are numbered per seat from 0,
// coordinates are absolute and 0-based and every canonical outcome has its own integer code.
package kakomimasu

import (
	"github.com/rotisserie/eris"

	"pkg.world.dev/world-engine/arena/dialect"
	"pkg.world.dev/world-engine/arena/match"
	"pkg.world.dev/world-engine/arena/types"
)

const (
	TypePut    = "PUT"
	TypeNone   = "NONE"
	TypeMove   = "MOVE"
	TypeRemove = "REMOVE"
)

// Result codes, one per canonical outcome.
const (
	ResultUnknown = iota - 1
	ResultApplied
	ResultConflicted
	ResultReverted
	ResultDuplicateInstruction
	ResultIllegalAgent
	ResultIllegalAction
)

// Action is one agent instruction. AgentID is the seat-local agent index.
type Action struct {
	AgentID int    `json:"agentId" jsonschema:"minimum=0"`
	Type    string `json:"type" jsonschema:"enum=PUT,enum=NONE,enum=MOVE,enum=REMOVE"`
	X       int    `json:"x" jsonschema:"minimum=0"`
	Y       int    `json:"y" jsonschema:"minimum=0"`
}

type ActionRequest struct {
	Actions []Action `json:"actions" jsonschema:"required"`
}

var typeToCanonical = map[string]types.ActionType{
	TypePut:    types.ActionPut,
	TypeNone:   types.ActionStay,
	TypeMove:   types.ActionMove,
	TypeRemove: types.ActionRemove,
}

var typeFromCanonical = map[types.ActionType]string{
	types.ActionPut:    TypePut,
	types.ActionStay:   TypeNone,
	types.ActionMove:   TypeMove,
	types.ActionRemove: TypeRemove,
}

// ToCanonical translates an action sent by seat.
func ToCanonical(agents dialect.AgentMap, seat int, a Action) (types.Action, error) {
	t, ok := typeToCanonical[a.Type]
	if !ok {
		return types.Action{}, eris.Wrapf(match.ErrMalformedAction, "unknown action type %q", a.Type)
	}
	global, err := agents.Global(seat, a.AgentID)
	if err != nil {
		return types.Action{}, err
	}
	out := types.Action{AgentID: global, Type: t, X: a.X, Y: a.Y}
	if t == types.ActionStay {
		out.X, out.Y = 0, 0
	}
	return out, nil
}

// FromCanonical translates a canonical action back and returns the seat that owns it.
func FromCanonical(agents dialect.AgentMap, a types.Action) (int, Action, error) {
	name, ok := typeFromCanonical[a.Type]
	if !ok {
		return -1, Action{}, eris.Wrapf(match.ErrMalformedAction, "unknown action type %s", a.Type)
	}
	seat, local, err := agents.Local(a.AgentID)
	if err != nil {
		return -1, Action{}, err
	}
	return seat, Action{AgentID: local, Type: name, X: a.X, Y: a.Y}, nil
}

// Decode translates a whole request.
func Decode(agents dialect.AgentMap, seat int, req ActionRequest) ([]types.Action, error) {
	out := make([]types.Action, 0, len(req.Actions))
	for _, a := range req.Actions {
		c, err := ToCanonical(agents, seat, a)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}

func EncodeOutcome(o types.Outcome) int {
	switch o {
	case types.OutcomeApplied:
		return ResultApplied
	case types.OutcomeConflicted:
		return ResultConflicted
	case types.OutcomeReverted:
		return ResultReverted
	case types.OutcomeDuplicateInstruction:
		return ResultDuplicateInstruction
	case types.OutcomeIllegalAgent:
		return ResultIllegalAgent
	case types.OutcomeIllegalAction:
		return ResultIllegalAction
	case types.OutcomeUnknown:
	}
	return ResultUnknown
}

func DecodeOutcome(code int) (types.Outcome, error) {
	switch code {
	case ResultApplied:
		return types.OutcomeApplied, nil
	case ResultConflicted:
		return types.OutcomeConflicted, nil
	case ResultReverted:
		return types.OutcomeReverted, nil
	case ResultDuplicateInstruction:
		return types.OutcomeDuplicateInstruction, nil
	case ResultIllegalAgent:
		return types.OutcomeIllegalAgent, nil
	case ResultIllegalAction:
		return types.OutcomeIllegalAction, nil
	}
	return types.OutcomeUnknown, eris.Errorf("unknown result code %d", code)
}
