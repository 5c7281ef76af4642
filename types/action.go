package types

import (
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
)

// ActionType is the canonical action vocabulary. Every wire dialect translates into and out of it.
type ActionType uint8

const (
	ActionUnknown ActionType = iota
	ActionPut
	ActionStay
	ActionMove
	ActionRemove
)

var actionTypeNames = map[ActionType]string{
	ActionPut:    "put",
	ActionStay:   "stay",
	ActionMove:   "move",
	ActionRemove: "remove",
}

// ActionTypes returns the four canonical action types.
func ActionTypes() []ActionType {
	return []ActionType{ActionPut, ActionStay, ActionMove, ActionRemove}
}

func (a ActionType) Valid() bool {
	_, ok := actionTypeNames[a]
	return ok
}

func (a ActionType) String() string {
	if name, ok := actionTypeNames[a]; ok {
		return name
	}
	return fmt.Sprintf("ActionType(%d)", uint8(a))
}

func (a ActionType) MarshalText() ([]byte, error) {
	if !a.Valid() {
		return nil, eris.Errorf("invalid action type %d", uint8(a))
	}
	return []byte(a.String()), nil
}

func (a *ActionType) UnmarshalText(text []byte) error {
	s := strings.ToLower(string(text))
	for t, name := range actionTypeNames {
		if name == s {
			*a = t
			return nil
		}
	}
	return eris.Errorf("unknown action type %q", string(text))
}

// Action is one agent's instruction for a turn. AgentID is the global agent id and X, Y are absolute,
// 0-based board coordinates. Stay ignores the coordinates.
type Action struct {
	AgentID int        `json:"agentId"`
	Type    ActionType `json:"type"`
	X       int        `json:"x"`
	Y       int        `json:"y"`
}

// Outcome is the canonical result taxonomy reported by the rules engine for each agent.
// The declaration order is meaningful: it runs from success to the most severe rejection.
type Outcome uint8

const (
	OutcomeUnknown Outcome = iota
	OutcomeApplied
	OutcomeConflicted
	OutcomeReverted
	OutcomeDuplicateInstruction
	OutcomeIllegalAgent
	OutcomeIllegalAction
)

var outcomeNames = map[Outcome]string{
	OutcomeApplied:              "applied",
	OutcomeConflicted:           "conflicted",
	OutcomeReverted:             "reverted",
	OutcomeDuplicateInstruction: "duplicate_instruction",
	OutcomeIllegalAgent:         "illegal_agent",
	OutcomeIllegalAction:        "illegal_action",
}

// Outcomes returns every canonical outcome in declaration order.
func Outcomes() []Outcome {
	return []Outcome{
		OutcomeApplied,
		OutcomeConflicted,
		OutcomeReverted,
		OutcomeDuplicateInstruction,
		OutcomeIllegalAgent,
		OutcomeIllegalAction,
	}
}

func (o Outcome) Valid() bool {
	_, ok := outcomeNames[o]
	return ok
}

func (o Outcome) String() string {
	if name, ok := outcomeNames[o]; ok {
		return name
	}
	return fmt.Sprintf("Outcome(%d)", uint8(o))
}

func (o Outcome) MarshalText() ([]byte, error) {
	if !o.Valid() {
		return nil, eris.Errorf("invalid outcome %d", uint8(o))
	}
	return []byte(o.String()), nil
}

func (o *Outcome) UnmarshalText(text []byte) error {
	for v, name := range outcomeNames {
		if name == string(text) {
			*o = v
			return nil
		}
	}
	return eris.Errorf("unknown outcome %q", string(text))
}

// AppliedAction is an action as it was resolved by the rules engine.
// From is the agent position before the turn was applied. Inferred marks actions the rules engine
// synthesized for agents that did not submit anything.
type AppliedAction struct {
	Action
	From     Position `json:"from"`
	Outcome  Outcome  `json:"outcome"`
	Inferred bool     `json:"inferred,omitempty"`
}

// TurnRecord is one entry of the append-only match log.
type TurnRecord struct {
	Turn      int             `json:"turn"`
	Actions   []AppliedAction `json:"actions"`
	Scores    []Score         `json:"scores"`
	AppliedAt int64           `json:"appliedAt"`
}
