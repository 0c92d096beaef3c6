package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/fablegate/fable/pkg/state"
)

// RedisStore implements Store against a Redis instance. Sessions live as
// JSON documents in a single hash so a full sync is one round trip.
type RedisStore struct {
	client *redis.Client
	logger *slog.Logger
}

var _ Store = (*RedisStore)(nil)

const (
	sessionsHashKey = "fable:sessions"
	activeIDKey     = "fable:active_session"
)

// NewRedisStore creates a Redis-backed store for the given address.
func NewRedisStore(addr string, logger *slog.Logger) *RedisStore {
	rdb := redis.NewClient(&redis.Options{
		Addr: addr,
	})
	return &RedisStore{client: rdb, logger: logger}
}

func (r *RedisStore) Ping(ctx context.Context) error {
	if err := r.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping failed: %w", err)
	}
	return nil
}

func (r *RedisStore) Close() error {
	if err := r.client.Close(); err != nil {
		r.logger.Error("Failed to close Redis connection", "error", err)
		return err
	}
	return nil
}

// WaitForConnection blocks until Redis responds to ping (used during
// startup, when the engine may come up before its Redis container).
func (r *RedisStore) WaitForConnection(ctx context.Context) error {
	maxRetries := 30
	retryDelay := 2 * time.Second

	for i := 0; i < maxRetries; i++ {
		if err := r.Ping(ctx); err != nil {
			r.logger.Debug("Redis not ready yet", "error", err, "attempt", i+1)

			select {
			case <-ctx.Done():
				return fmt.Errorf("context cancelled while waiting for redis: %w", ctx.Err())
			case <-time.After(retryDelay):
				continue
			}
		}

		r.logger.Info("Redis connection established")
		return nil
	}

	return fmt.Errorf("redis did not become available after %d attempts", maxRetries)
}

func (r *RedisStore) SaveSession(ctx context.Context, s *state.Session) error {
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}
	if err := r.client.HSet(ctx, sessionsHashKey, s.ID, string(data)).Err(); err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}
	return nil
}

func (r *RedisStore) LoadSessions(ctx context.Context) (map[string]*state.Session, error) {
	fields, err := r.client.HGetAll(ctx, sessionsHashKey).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to load sessions: %w", err)
	}

	sessions := make(map[string]*state.Session, len(fields))
	for id, raw := range fields {
		var s state.Session
		if err := json.Unmarshal([]byte(raw), &s); err != nil {
			r.logger.Warn("Skipping corrupt session record", "id", id, "error", err)
			continue
		}
		if s.ID == "" {
			s.ID = id
		}
		sessions[s.ID] = &s
	}
	return sessions, nil
}

func (r *RedisStore) DeleteSession(ctx context.Context, id string) error {
	if err := r.client.HDel(ctx, sessionsHashKey, id).Err(); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

func (r *RedisStore) SaveActiveID(ctx context.Context, id string) error {
	if id == "" {
		if err := r.client.Del(ctx, activeIDKey).Err(); err != nil {
			return fmt.Errorf("failed to clear active pointer: %w", err)
		}
		return nil
	}
	if err := r.client.Set(ctx, activeIDKey, id, 0).Err(); err != nil {
		return fmt.Errorf("failed to save active pointer: %w", err)
	}
	return nil
}

func (r *RedisStore) LoadActiveID(ctx context.Context) (string, error) {
	val, err := r.client.Get(ctx, activeIDKey).Result()
	if err != nil {
		if err == redis.Nil {
			return "", nil
		}
		return "", fmt.Errorf("failed to load active pointer: %w", err)
	}
	return val, nil
}
