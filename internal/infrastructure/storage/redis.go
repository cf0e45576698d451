package storage

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/redis/go-redis/v9"
)

// Redis keeps each scope in one hash, so a visitor's slots share a key
type Redis struct {
	client    *redis.Client
	keyPrefix string
}

// NewRedis creates a Redis backend. Hash keys are keyPrefix + scope.
func NewRedis(client *redis.Client, keyPrefix string) *Redis {
	if keyPrefix == "" {
		keyPrefix = "storefront:local:"
	}
	return &Redis{
		client:    client,
		keyPrefix: keyPrefix,
	}
}

// Area returns the area for scope
func (r *Redis) Area(scope string) Area {
	return &redisArea{client: r.client, hashKey: r.keyPrefix + scope}
}

type redisArea struct {
	client  *redis.Client
	hashKey string
}

func (a *redisArea) GetItem(ctx context.Context, key string) (string, error) {
	value, err := a.client.HGet(ctx, a.hashKey, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("failed to read slot %q: %w", key, err)
	}
	return value, nil
}

func (a *redisArea) SetItem(ctx context.Context, key, value string) error {
	if err := a.client.HSet(ctx, a.hashKey, key, value).Err(); err != nil {
		return fmt.Errorf("failed to write slot %q: %w", key, err)
	}
	return nil
}

func (a *redisArea) RemoveItem(ctx context.Context, key string) error {
	if err := a.client.HDel(ctx, a.hashKey, key).Err(); err != nil {
		return fmt.Errorf("failed to remove slot %q: %w", key, err)
	}
	return nil
}

func (a *redisArea) Keys(ctx context.Context) ([]string, error) {
	keys, err := a.client.HKeys(ctx, a.hashKey).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list slots: %w", err)
	}
	sort.Strings(keys)
	return keys, nil
}
