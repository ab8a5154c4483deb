package service

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

type RedisRevocationMarkerStore struct {
	client redis.UniversalClient
	prefix string
}

func NewRedisRevocationMarkerStore(client redis.UniversalClient, prefix string) *RedisRevocationMarkerStore {
	if prefix == "" {
		prefix = "token:revoked"
	}
	return &RedisRevocationMarkerStore{
		client: client,
		prefix: prefix,
	}
}

func (s *RedisRevocationMarkerStore) IsMarked(ctx context.Context, accessToken string) (bool, error) {
	if s.client == nil {
		return false, nil
	}
	_, err := s.client.Get(ctx, s.markerKey(accessToken)).Result()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (s *RedisRevocationMarkerStore) Mark(ctx context.Context, accessToken string, ttl time.Duration) error {
	if s.client == nil || ttl <= 0 {
		return nil
	}
	return s.client.Set(ctx, s.markerKey(accessToken), "1", ttl).Err()
}

func (s *RedisRevocationMarkerStore) markerKey(accessToken string) string {
	return fmt.Sprintf("%s:%s", s.prefix, accessToken)
}
