// Package storage declares the persistence collaborator: finished matches and the board catalog.
package storage

import (
	"context"
	"errors"

	"pkg.world.dev/world-engine/arena/types"
)

var ErrNotFound = errors.New("not found")

// MatchStorage keeps concluded matches. Live matches are never written here.
type MatchStorage interface {
	SaveMatch(ctx context.Context, m *types.Match) error
	LoadMatch(ctx context.Context, id string) (*types.Match, error)
	// ListMatches returns the ids of saved matches, most recently concluded first.
	ListMatches(ctx context.Context, offset, limit int) ([]string, error)
}

type BoardCatalog interface {
	PutBoard(ctx context.Context, board types.Board) error
	GetBoard(ctx context.Context, name string) (types.Board, error)
	ListBoards(ctx context.Context) ([]string, error)
}

type Storage interface {
	MatchStorage
	BoardCatalog
	Close() error
}
