// Package redis persists answer state in Redis, for deployments where
// sessions must survive process restarts and be shared between instances.
package redis

import (
	"context"
	"fmt"
	"time"

	backend "github.com/redis/go-redis/v9"

	"github.com/aretw0/arbor/pkg/answers"
	"github.com/aretw0/arbor/pkg/ports"
)

// Store implements ports.UserDataStore using Redis.
type Store struct {
	client *backend.Client
	prefix string
	ttl    time.Duration
}

type Option func(*Store)

// WithTTL sets the expiration for stored user data.
func WithTTL(ttl time.Duration) Option {
	return func(s *Store) {
		s.ttl = ttl
	}
}

// WithPrefix sets the key prefix for user data records.
func WithPrefix(prefix string) Option {
	return func(s *Store) {
		s.prefix = prefix
	}
}

// New creates a new Redis store with options.
func New(address, password string, db int, opts ...Option) *Store {
	rdb := backend.NewClient(&backend.Options{
		Addr:     address,
		Password: password,
		DB:       db,
	})
	return NewFromClient(rdb, opts...)
}

// NewFromClient creates a new Redis store from an existing client.
func NewFromClient(client *backend.Client, opts ...Option) *Store {
	store := &Store{
		client: client,
		prefix: "arbor:userdata:",
		ttl:    0, // No expiration by default
	}
	for _, opt := range opts {
		opt(store)
	}
	return store
}

func (s *Store) key(userKey string) string {
	return s.prefix + userKey
}

// Save persists the answer store to Redis under its user key.
func (s *Store) Save(ctx context.Context, data *answers.Store) error {
	encoded, err := data.Export()
	if err != nil {
		return fmt.Errorf("failed to marshal user data: %w", err)
	}
	if err := s.client.Set(ctx, s.key(data.Key), encoded, s.ttl).Err(); err != nil {
		return fmt.Errorf("failed to save to redis: %w", err)
	}
	return nil
}

// Load retrieves and rebuilds the answer store for a user key.
func (s *Store) Load(ctx context.Context, userKey string) (*answers.Store, error) {
	val, err := s.client.Get(ctx, s.key(userKey)).Result()
	if err != nil {
		if err == backend.Nil {
			return nil, ports.ErrUserDataNotFound
		}
		return nil, fmt.Errorf("failed to load from redis: %w", err)
	}
	data, err := answers.Import([]byte(val))
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal user data: %w", err)
	}
	return data, nil
}

// Delete removes the record for a user key.
func (s *Store) Delete(ctx context.Context, userKey string) error {
	if err := s.client.Del(ctx, s.key(userKey)).Err(); err != nil {
		return fmt.Errorf("failed to delete from redis: %w", err)
	}
	return nil
}

// Ping verifies connectivity to the Redis backend.
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close releases the underlying client.
func (s *Store) Close() error {
	return s.client.Close()
}
