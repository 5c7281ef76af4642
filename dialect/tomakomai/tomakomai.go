// Package tomakomai speaks the tournament dialect: agents are numbered per seat from 1, coordinates are
// absolute and 1-based, action types are small integers and results are strings.
package tomakomai

import (
	"github.com/rotisserie/eris"

	"pkg.world.dev/world-engine/arena/dialect"
	"pkg.world.dev/world-engine/arena/match"
	"pkg.world.dev/world-engine/arena/types"
)

const (
	TypeStay = iota
	TypePut
	TypeMove
	TypeRemove
)

const (
	ResultOK            = "OK"
	ResultConflict      = "CONFLICT"
	ResultRevert        = "REVERT"
	ResultDuplicate     = "DUPLICATE"
	ResultIllegalAgent  = "ILLEGAL_AGENT"
	ResultIllegalAction = "ILLEGAL_ACTION"
	ResultUnknown       = "UNKNOWN"
)

type Action struct {
	AgentID int `json:"agentId" jsonschema:"minimum=1"`
	Type    int `json:"type" jsonschema:"enum=0,enum=1,enum=2,enum=3"`
	X       int `json:"x"`
	Y       int `json:"y"`
}

type ActionRequest struct {
	Actions []Action `json:"actions" jsonschema:"required"`
}

var typeToCanonical = map[int]types.ActionType{
	TypeStay:   types.ActionStay,
	TypePut:    types.ActionPut,
	TypeMove:   types.ActionMove,
	TypeRemove: types.ActionRemove,
}

var typeFromCanonical = map[types.ActionType]int{
	types.ActionStay:   TypeStay,
	types.ActionPut:    TypePut,
	types.ActionMove:   TypeMove,
	types.ActionRemove: TypeRemove,
}

var outcomes = []struct {
	outcome types.Outcome
	code    string
}{
	{types.OutcomeApplied, ResultOK},
	{types.OutcomeConflicted, ResultConflict},
	{types.OutcomeReverted, ResultRevert},
	{types.OutcomeDuplicateInstruction, ResultDuplicate},
	{types.OutcomeIllegalAgent, ResultIllegalAgent},
	{types.OutcomeIllegalAction, ResultIllegalAction},
}

// ToCanonical translates an action sent by seat.
func ToCanonical(agents dialect.AgentMap, seat int, a Action) (types.Action, error) {
	t, ok := typeToCanonical[a.Type]
	if !ok {
		return types.Action{}, eris.Wrapf(match.ErrMalformedAction, "unknown action type %d", a.Type)
	}
	global, err := agents.Global(seat, a.AgentID-1)
	if err != nil {
		return types.Action{}, err
	}
	if t == types.ActionStay {
		return types.Action{AgentID: global, Type: t}, nil
	}
	return types.Action{AgentID: global, Type: t, X: a.X - 1, Y: a.Y - 1}, nil
}

// FromCanonical translates a canonical action back and returns the seat that owns it.
func FromCanonical(agents dialect.AgentMap, a types.Action) (int, Action, error) {
	t, ok := typeFromCanonical[a.Type]
	if !ok {
		return -1, Action{}, eris.Wrapf(match.ErrMalformedAction, "unknown action type %s", a.Type)
	}
	seat, local, err := agents.Local(a.AgentID)
	if err != nil {
		return -1, Action{}, err
	}
	return seat, Action{AgentID: local + 1, Type: t, X: a.X + 1, Y: a.Y + 1}, nil
}

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

func EncodeOutcome(o types.Outcome) string {
	for _, entry := range outcomes {
		if entry.outcome == o {
			return entry.code
		}
	}
	return ResultUnknown
}

func DecodeOutcome(code string) (types.Outcome, error) {
	for _, entry := range outcomes {
		if entry.code == code {
			return entry.outcome, nil
		}
	}
	return types.OutcomeUnknown, eris.Errorf("unknown result %q", code)
}
