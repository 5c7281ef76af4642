package redis

import (
	"github.com/redis/go-redis/v9"
	"github.com/rotisserie/eris"
	"github.com/rs/zerolog/log"

	"pkg.world.dev/world-engine/arena/storage"
)

var _ storage.Storage = (*Storage)(nil)

type Storage struct {
	Namespace string
	Client    *redis.Client
	*MatchStorage
	*BoardStorage
}

type Options = redis.Options

func NewRedisStorage(options Options, namespace string) *Storage {
	client := redis.NewClient(&options)
	return &Storage{
		Namespace:    namespace,
		Client:       client,
		MatchStorage: NewMatchStorage(client, namespace, DefaultMatchCacheSize),
		BoardStorage: NewBoardStorage(client, namespace),
	}
}

func (r *Storage) Close() error {
	log.Info().Msg("Closing storage connection.")
	if err := r.Client.Close(); err != nil {
		return eris.Wrap(err, "failed to close redis client")
	}
	log.Info().Msg("Successfully closed storage connection.")
	return nil
}
