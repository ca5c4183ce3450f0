package tokenstore

import (
	"context"
	"encoding/json"
	"path"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/xlog"
	"github.com/redis/go-redis/v9"
	"golang.org/x/oauth2"
)

// The redis store keeps the token pair under `/<prefix>/oauth/<name>`.
// A single SET replaces the value, so concurrent writers never interleave.

type redisStore struct {
	client *redis.Client
	key    string
}

// NewRedisStore returns the store persisting the token in Redis.
func NewRedisStore(client *redis.Client, prefix, name string) Store {
	return &redisStore{
		client: client,
		key:    path.Join("/", prefix, "oauth", name),
	}
}

func (s *redisStore) Load(ctx context.Context) (*oauth2.Token, error) {
	data, err := s.client.Get(ctx, s.key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, errors.WithStack(ErrNotFound)
		}
		return nil, errors.Wrap(err, "failed to get tokens from Redis")
	}

	r := new(record)
	if err = json.Unmarshal(data, r); err != nil {
		return nil, errors.Wrap(err, "failed to parse tokens")
	}
	return r.token(), nil
}

func (s *redisStore) Save(ctx context.Context, tok *oauth2.Token) error {
	data, err := json.Marshal(toRecord(tok, time.Now()))
	if err != nil {
		return errors.WithStack(err)
	}
	if err = s.client.Set(ctx, s.key, data, 0).Err(); err != nil {
		return errors.Wrap(err, "failed to store tokens in Redis")
	}
	logger.ContextKV(ctx, xlog.DEBUG, "status", "saved", "key", s.key)
	return nil
}

func (s *redisStore) Clear(ctx context.Context) error {
	if err := s.client.Del(ctx, s.key).Err(); err != nil {
		return errors.Wrap(err, "failed to clear tokens in Redis")
	}
	logger.ContextKV(ctx, xlog.INFO, "status", "cleared", "key", s.key)
	return nil
}
