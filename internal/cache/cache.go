package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	DefaultTTL  = time.Hour
	DocumentTTL = 24 * time.Hour
	MetadataTTL = 5 * time.Minute
)

// Manager wraps a Redis client with namespaced keys. All operations are
// soft-failing: a cache outage degrades to a miss, never an error surfaced
// to the caller.
type Manager struct {
	client *redis.Client
	log    *slog.Logger
}

func New(addr, password string, db int, log *slog.Logger) (*Manager, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("connect redis: %w", err)
	}
	log.Info("connected to redis", "addr", addr, "db", db)
	return &Manager{client: client, log: log}, nil
}

// Key builds a namespaced cache key. Long identifiers are hashed so keys
// stay bounded.
func Key(namespace, identifier string) string {
	if len(identifier) > 200 {
		sum := sha256.Sum256([]byte(identifier))
		identifier = hex.EncodeToString(sum[:])
	}
	return fmt.Sprintf("trialqc:%s:%s", namespace, identifier)
}

func (m *Manager) Set(ctx context.Context, namespace, identifier string, value []byte, ttl time.Duration) {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	key := Key(namespace, identifier)
	if err := m.client.Set(ctx, key, value, ttl).Err(); err != nil {
		m.log.Warn("cache set failed", "key", key, "error", err)
	}
}

// Get returns the cached value and whether it was present.
func (m *Manager) Get(ctx context.Context, namespace, identifier string) ([]byte, bool) {
	key := Key(namespace, identifier)
	value, err := m.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, false
	}
	if err != nil {
		m.log.Warn("cache get failed", "key", key, "error", err)
		return nil, false
	}
	return value, true
}

func (m *Manager) Delete(ctx context.Context, namespace, identifier string) {
	key := Key(namespace, identifier)
	if err := m.client.Del(ctx, key).Err(); err != nil {
		m.log.Warn("cache delete failed", "key", key, "error", err)
	}
}

func (m *Manager) Exists(ctx context.Context, namespace, identifier string) bool {
	n, err := m.client.Exists(ctx, Key(namespace, identifier)).Result()
	if err != nil {
		return false
	}
	return n > 0
}

func (m *Manager) Close() error {
	return m.client.Close()
}
