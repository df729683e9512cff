package auth

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/dnjuguna/mkulima-market/internal/redisx"
)

// RedisSessions stores bearer sessions in redis so any API instance can
// resolve any token.
type RedisSessions struct{ Client *redis.Client }

func (s *RedisSessions) Put(ctx context.Context, token, userID string, ttl time.Duration) error {
	return s.Client.Set(ctx, fmt.Sprintf(redisx.KeySession, token), userID, ttl).Err()
}

func (s *RedisSessions) Get(ctx context.Context, token string) (string, error) {
	v, err := s.Client.Get(ctx, fmt.Sprintf(redisx.KeySession, token)).Result()
	if err == redis.Nil {
		return "", nil
	}
	return v, err
}

func (s *RedisSessions) Del(ctx context.Context, token string) error {
	return s.Client.Del(ctx, fmt.Sprintf(redisx.KeySession, token)).Err()
}
