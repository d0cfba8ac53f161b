package session

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "radiusd:session:"

// RedisSink persists session records as JSON values in redis.
// Completed records carry a TTL so the store does not grow without
// bound; active mirrors are overwritten in place on every update.
type RedisSink struct {
	client *redis.Client
	ttl    time.Duration
}

// RedisSinkConfig configures a RedisSink
type RedisSinkConfig struct {
	Addr     string
	Password string
	DB       int
	TTL      time.Duration
}

// NewRedisSink connects to redis and verifies the connection
func NewRedisSink(ctx context.Context, cfg RedisSinkConfig) (*RedisSink, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}

	return &RedisSink{
		client: client,
		ttl:    ttl,
	}, nil
}

// Record implements Sink
func (s *RedisSink) Record(ctx context.Context, rec Record) error {
	payload, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal session record: %w", err)
	}

	ttl := time.Duration(0)
	if rec.Status == StatusStopped {
		ttl = s.ttl
	}

	key := redisKeyPrefix + rec.Key()
	if err := s.client.Set(ctx, key, payload, ttl).Err(); err != nil {
		return fmt.Errorf("store session record: %w", err)
	}

	return nil
}

// Load fetches a stored record by its session key
func (s *RedisSink) Load(ctx context.Context, key string) (Record, error) {
	payload, err := s.client.Get(ctx, redisKeyPrefix+key).Bytes()
	if err != nil {
		return Record{}, fmt.Errorf("load session record: %w", err)
	}

	var rec Record
	if err := json.Unmarshal(payload, &rec); err != nil {
		return Record{}, fmt.Errorf("unmarshal session record: %w", err)
	}

	return rec, nil
}

// Close releases the redis connection
func (s *RedisSink) Close() error {
	return s.client.Close()
}
