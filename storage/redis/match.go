package redis

import (
	"context"

	"github.com/coocood/freecache"
	"github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"
	"github.com/rotisserie/eris"

	"pkg.world.dev/world-engine/arena/storage"
	"pkg.world.dev/world-engine/arena/types"
)

const (
	// DefaultMatchCacheSize is the memory budget of the concluded match cache in bytes.
	DefaultMatchCacheSize   = 32 * 1024 * 1024
	matchCacheExpirySeconds = 600
)

// MatchStorage saves concluded matches. Reads go through an in-process cache since a concluded match
// never changes again.
type MatchStorage struct {
	Client    *redis.Client
	namespace string
	cache     *freecache.Cache
}

func NewMatchStorage(client *redis.Client, namespace string, cacheSize int) *MatchStorage {
	return &MatchStorage{
		Client:    client,
		namespace: namespace,
		cache:     freecache.NewCache(cacheSize),
	}
}

func (r *MatchStorage) SaveMatch(ctx context.Context, m *types.Match) error {
	if !m.Phase.IsTerminal() {
		return eris.Errorf("match %q is %s, only concluded matches are saved", m.ID, m.Phase)
	}
	bz, err := json.Marshal(m)
	if err != nil {
		return eris.Wrapf(err, "failed to encode match %q", m.ID)
	}

	pipe := r.Client.TxPipeline()
	pipe.Set(ctx, matchKey(r.namespace, m.ID), bz, 0)
	pipe.ZAdd(ctx, matchIndexKey(r.namespace), redis.Z{Score: float64(m.ConcludedAt), Member: m.ID})
	if _, err := pipe.Exec(ctx); err != nil {
		return eris.Wrapf(err, "failed to save match %q", m.ID)
	}

	// A full cache only costs a round trip later.
	_ = r.cache.Set([]byte(m.ID), bz, matchCacheExpirySeconds)
	return nil
}

func (r *MatchStorage) LoadMatch(ctx context.Context, id string) (*types.Match, error) {
	bz, err := r.cache.Get([]byte(id))
	if err != nil {
		bz, err = r.Client.Get(ctx, matchKey(r.namespace, id)).Bytes()
		if eris.Is(err, redis.Nil) {
			return nil, eris.Wrapf(storage.ErrNotFound, "match %q", id)
		} else if err != nil {
			return nil, eris.Wrapf(err, "failed to load match %q", id)
		}
		_ = r.cache.Set([]byte(id), bz, matchCacheExpirySeconds)
	}

	var m types.Match
	if err := json.Unmarshal(bz, &m); err != nil {
		return nil, eris.Wrapf(err, "failed to decode match %q", id)
	}
	return &m, nil
}

func (r *MatchStorage) ListMatches(ctx context.Context, offset, limit int) ([]string, error) {
	if limit <= 0 {
		return []string{}, nil
	}
	ids, err := r.Client.ZRevRange(ctx, matchIndexKey(r.namespace), int64(offset), int64(offset+limit-1)).Result()
	if err != nil {
		return nil, eris.Wrap(err, "failed to list matches")
	}
	return ids, nil
}
