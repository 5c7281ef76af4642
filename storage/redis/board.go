package redis

import (
	"context"
	"sort"

	"github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"
	"github.com/rotisserie/eris"

	"pkg.world.dev/world-engine/arena/storage"
	"pkg.world.dev/world-engine/arena/types"
)

type BoardStorage struct {
	Client    *redis.Client
	namespace string
}

func NewBoardStorage(client *redis.Client, namespace string) *BoardStorage {
	return &BoardStorage{Client: client, namespace: namespace}
}

func (r *BoardStorage) PutBoard(ctx context.Context, board types.Board) error {
	if err := board.Validate(); err != nil {
		return err
	}
	bz, err := json.Marshal(board)
	if err != nil {
		return eris.Wrapf(err, "failed to encode board %q", board.Name)
	}
	return eris.Wrap(r.Client.HSet(ctx, boardsKey(r.namespace), board.Name, bz).Err(), "failed to store board")
}

func (r *BoardStorage) GetBoard(ctx context.Context, name string) (types.Board, error) {
	bz, err := r.Client.HGet(ctx, boardsKey(r.namespace), name).Bytes()
	if eris.Is(err, redis.Nil) {
		return types.Board{}, eris.Wrapf(storage.ErrNotFound, "board %q", name)
	} else if err != nil {
		return types.Board{}, eris.Wrapf(err, "failed to load board %q", name)
	}
	var board types.Board
	if err := json.Unmarshal(bz, &board); err != nil {
		return types.Board{}, eris.Wrapf(err, "failed to decode board %q", name)
	}
	return board, nil
}

func (r *BoardStorage) ListBoards(ctx context.Context) ([]string, error) {
	names, err := r.Client.HKeys(ctx, boardsKey(r.namespace)).Result()
	if err != nil {
		return nil, eris.Wrap(err, "failed to list boards")
	}
	sort.Strings(names)
	return names, nil
}
