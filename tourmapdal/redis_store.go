package tourmapdal

import (
	"context"
	"strings"

	"github.com/go-redis/redis/v8"
	"github.com/jamesrr39/goutil/errorsx"
)

const (
	redisKeyPrefix = "tiles:"
	redisScanBatch = 500
)

var _ CacheStore = &RedisStore{}

// RedisStore keeps each entry as a plain string value under "tiles:<id>", with no expiry
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore connects to Redis. connStr is everything after "redis://", e.g. "user:pass@localhost:6379/0".
func NewRedisStore(ctx context.Context, connStr string) (*RedisStore, errorsx.Error) {
	options, err := redis.ParseURL("redis://" + connStr)
	if err != nil {
		return nil, errorsx.Wrap(err)
	}

	client := redis.NewClient(options)

	err = client.Ping(ctx).Err()
	if err != nil {
		client.Close()
		return nil, errorsx.Wrap(err, "addr", options.Addr)
	}

	return NewRedisStoreFromClient(client), nil
}

func NewRedisStoreFromClient(client *redis.Client) *RedisStore {
	return &RedisStore{client}
}

func (s *RedisStore) Name() string {
	return "redis"
}

func (s *RedisStore) Get(ctx context.Context, id string) (*Entry, errorsx.Error) {
	data, err := s.client.Get(ctx, redisKeyPrefix+id).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, errorsx.Wrap(ErrNotFound, "id", id)
		}
		return nil, errorsx.Wrap(err, "id", id)
	}

	return &Entry{ID: id, Data: data}, nil
}

func (s *RedisStore) Put(ctx context.Context, entry *Entry) errorsx.Error {
	err := s.client.Set(ctx, redisKeyPrefix+entry.ID, entry.Data, 0).Err()
	if err != nil {
		return errorsx.Wrap(err, "id", entry.ID)
	}

	return nil
}

func (s *RedisStore) Delete(ctx context.Context, id string) errorsx.Error {
	deleted, err := s.client.Del(ctx, redisKeyPrefix+id).Result()
	if err != nil {
		return errorsx.Wrap(err, "id", id)
	}

	if deleted == 0 {
		return errorsx.Wrap(ErrNotFound, "id", id)
	}

	return nil
}

// scanKeys calls onKeys with each batch of keys under the prefix, until there are no more or onKeys returns false
func (s *RedisStore) scanKeys(ctx context.Context, onKeys func(keys []string) (bool, error)) errorsx.Error {
	var cursor uint64
	for {
		keys, nextCursor, err := s.client.Scan(ctx, cursor, redisKeyPrefix+"*", redisScanBatch).Result()
		if err != nil {
			return errorsx.Wrap(err)
		}

		if len(keys) != 0 {
			carryOn, err := onKeys(keys)
			if err != nil {
				return errorsx.Wrap(err)
			}
			if !carryOn {
				return nil
			}
		}

		if nextCursor == 0 {
			return nil
		}
		cursor = nextCursor
	}
}

func (s *RedisStore) Purge(ctx context.Context) (int64, errorsx.Error) {
	var total int64
	err := s.scanKeys(ctx, func(keys []string) (bool, error) {
		deleted, err := s.client.Del(ctx, keys...).Result()
		if err != nil {
			return false, err
		}
		total += deleted
		return true, nil
	})
	if err != nil {
		return total, errorsx.Wrap(err)
	}

	return total, nil
}

func (s *RedisStore) Count(ctx context.Context) (int64, errorsx.Error) {
	// SCAN may return a key more than once
	seen := make(map[string]struct{})
	err := s.scanKeys(ctx, func(keys []string) (bool, error) {
		for _, key := range keys {
			seen[key] = struct{}{}
		}
		return true, nil
	})
	if err != nil {
		return 0, errorsx.Wrap(err)
	}

	return int64(len(seen)), nil
}

func (s *RedisStore) ListIDs(ctx context.Context, limit int) ([]string, errorsx.Error) {
	seen := make(map[string]struct{})
	var ids []string
	err := s.scanKeys(ctx, func(keys []string) (bool, error) {
		for _, key := range keys {
			if len(ids) >= limit {
				return false, nil
			}
			if _, ok := seen[key]; ok {
				continue
			}
			seen[key] = struct{}{}
			ids = append(ids, strings.TrimPrefix(key, redisKeyPrefix))
		}
		return len(ids) < limit, nil
	})
	if err != nil {
		return nil, errorsx.Wrap(err)
	}

	return ids, nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}
