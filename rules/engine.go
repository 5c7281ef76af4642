// Package rules defines the boundary to the board rules engine. The scheduler treats the engine as a
// black box: it hands over the current field and one batch of actions per turn and receives the next
// field together with one outcome per agent.
package rules

import (
	"pkg.world.dev/world-engine/arena/types"
)

type Engine interface {
	// NewField returns the field a match starts with.
	NewField(board types.Board) (types.Field, error)

	// ApplyTurn resolves one turn. The batch holds at most one action per agent, ordered by agent id.
	// An error means the turn could not be resolved at all and the caller must leave its state untouched.
	ApplyTurn(board types.Board, field types.Field, turn int, actions []types.Action) (
		types.Field, []types.AppliedAction, error)
}
