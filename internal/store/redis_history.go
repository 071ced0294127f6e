package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/i474232898/weather-ranker/internal/weather"
)

// RedisHistory keeps learned accuracy scores in Redis, one hash per source
// (accuracy:<source>) with the normalized location string as field.
type RedisHistory struct {
	client *redis.Client
	prefix string
}

// ConnectRedis parses a redis:// URL and verifies the connection.
func ConnectRedis(ctx context.Context, redisURL string) (*redis.Client, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}
	opt.MaxRetries = 3

	client := redis.NewClient(opt)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return client, nil
}

// NewRedisHistory wraps a connected client.
func NewRedisHistory(client *redis.Client) *RedisHistory {
	return &RedisHistory{client: client, prefix: "accuracy:"}
}

// Lookup returns the stored score for source at location; ok is false if none is stored.
func (h *RedisHistory) Lookup(ctx context.Context, source weather.Source, location string) (float64, bool, error) {
	v, err := h.client.HGet(ctx, h.key(source), normalizeLocation(location)).Float64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, false, nil
		}
		return 0, false, err
	}
	return v, true, nil
}

// Record stores a score for source at location. It is the write side for an
// external job that learns accuracy; the service itself only reads.
func (h *RedisHistory) Record(ctx context.Context, source weather.Source, location string, score float64) error {
	return h.client.HSet(ctx, h.key(source), normalizeLocation(location), score).Err()
}

func (h *RedisHistory) key(source weather.Source) string {
	return h.prefix + string(source)
}

func normalizeLocation(location string) string {
	return strings.ToLower(strings.TrimSpace(location))
}
