package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrRedisUnavailable is an exported constant or variable used by the magic link engine.
var ErrRedisUnavailable = errors.New("redis unavailable")

// Store is a Redis-backed session store that handles persistence, expiration,
// and the per-account session index used for bulk invalidation.
type Store struct {
	redis  redis.UniversalClient
	prefix string
}

// NewStore creates a session [Store] backed by the given Redis client.
// prefix sets the Redis key namespace.
func NewStore(redisClient redis.UniversalClient, prefix string) *Store {
	if prefix == "" {
		prefix = "ms"
	}
	return &Store{
		redis:  redisClient,
		prefix: prefix,
	}
}

func (s *Store) key(tenantID, sessionID string) string {
	return s.prefix + ":" + normalizeTenantID(tenantID) + ":" + sessionID
}

func (s *Store) accountKey(tenantID, accountID string) string {
	return s.prefix + "u:" + normalizeTenantID(tenantID) + ":" + accountID
}

func normalizeTenantID(tenantID string) string {
	if tenantID == "" {
		return "0"
	}
	return tenantID
}

// Save persists a [Session] to Redis with the given TTL and indexes it under
// its account for bulk invalidation.
func (s *Store) Save(ctx context.Context, sess *Session, ttl time.Duration) error {
	data, err := Encode(sess)
	if err != nil {
		return err
	}

	sessionKey := s.key(sess.TenantID, sess.SessionID)
	accountKey := s.accountKey(sess.TenantID, sess.AccountID)

	_, err = s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, sessionKey, data, ttl)
		pipe.SAdd(ctx, accountKey, sess.SessionID)
		pipe.Expire(ctx, accountKey, ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	return nil
}

// Get retrieves a session by tenant and session ID. Returns the decoded
// [Session], redis.Nil when the session is absent or expired, or an error
// when Redis is unavailable.
func (s *Store) Get(ctx context.Context, tenantID, sessionID string) (*Session, error) {
	data, err := s.redis.Get(ctx, s.key(tenantID, sessionID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	sess, err := Decode(data)
	if err != nil {
		return nil, err
	}
	sess.SessionID = sessionID

	if time.Now().Unix() > sess.ExpiresAt {
		if err := s.Delete(ctx, tenantID, sessionID); err != nil {
			return nil, err
		}
		return nil, redis.Nil
	}

	return sess, nil
}

// Delete removes a session from Redis and its account index entry. Deleting
// an absent session is a no-op success.
func (s *Store) Delete(ctx context.Context, tenantID, sessionID string) error {
	key := s.key(tenantID, sessionID)

	data, err := s.redis.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil
		}
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	sess, err := Decode(data)
	if err != nil {
		return err
	}

	_, err = s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, key)
		pipe.SRem(ctx, s.accountKey(sess.TenantID, sess.AccountID), sessionID)
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	return nil
}

// DeleteAllForAccount removes every indexed session for an account within a
// tenant.
//
// ATOMICITY NOTE: This operation is NOT fully atomic. It reads the account's
// session set (SMembers) and then deletes those sessions (TxPipelined DEL).
// A session created between the read and delete phases will not be captured
// by this call; it expires naturally or is caught by the next invocation.
func (s *Store) DeleteAllForAccount(ctx context.Context, tenantID, accountID string) error {
	accountKey := s.accountKey(tenantID, accountID)

	sessionIDs, err := s.redis.SMembers(ctx, accountKey).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil
		}
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	sessionKeys := make([]string, 0, len(sessionIDs))
	for _, sessionID := range sessionIDs {
		sessionKeys = append(sessionKeys, s.key(tenantID, sessionID))
	}

	_, err = s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		if len(sessionKeys) > 0 {
			pipe.Del(ctx, sessionKeys...)
		}
		pipe.Del(ctx, accountKey)
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	return nil
}

// ActiveSessionIDs returns tracked session IDs for an account in a tenant.
func (s *Store) ActiveSessionIDs(ctx context.Context, tenantID, accountID string) ([]string, error) {
	ids, err := s.redis.SMembers(ctx, s.accountKey(tenantID, accountID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return []string{}, nil
		}
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return ids, nil
}

// Ping returns a point-in-time Redis availability check and latency.
func (s *Store) Ping(ctx context.Context) (time.Duration, error) {
	start := time.Now()
	if err := s.redis.Ping(ctx).Err(); err != nil {
		return time.Since(start), fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return time.Since(start), nil
}
