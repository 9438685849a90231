package store

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"

	"trade-risk-engine/internal/session"
)

const (
	// SessionKeyPrefix is the prefix for individual session snapshot keys.
	// Format: risk:session:{sessionID}
	SessionKeyPrefix = "risk:session"

	// SessionListKey holds the set of open session ids.
	SessionListKey = "risk:sessions:open"

	// SessionSnapshotTTL bounds how long a stale snapshot survives. Open
	// sessions refresh it on every update; 7 days outlives any timeout.
	SessionSnapshotTTL = 7 * 24 * time.Hour
)

// RedisSessionStore keeps the latest snapshot of every open session in
// Redis so the registry can be rebuilt after a restart. When Redis is
// unavailable it falls back to an in-memory map so session management
// continues without interruption.
type RedisSessionStore struct {
	client         *redis.Client
	inMemoryCache  map[string]*session.Session
	cacheMu        sync.RWMutex
	redisAvailable atomic.Bool
}

// NewRedisSessionStore creates a session snapshot store. If client is nil,
// the store operates in memory-only mode.
func NewRedisSessionStore(client *redis.Client) *RedisSessionStore {
	store := &RedisSessionStore{
		client:        client,
		inMemoryCache: make(map[string]*session.Session),
	}

	if client != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := client.Ping(ctx).Err(); err != nil {
			log.Printf("[REDIS-SESSION] Redis unavailable at startup: %v, using in-memory cache", err)
			store.redisAvailable.Store(false)
		} else {
			log.Printf("[REDIS-SESSION] Redis connected successfully")
			store.redisAvailable.Store(true)
		}
	} else {
		log.Printf("[REDIS-SESSION] No Redis client provided, using in-memory cache only")
		store.redisAvailable.Store(false)
	}

	return store
}

func (r *RedisSessionStore) sessionKey(sessionID string) string {
	return fmt.Sprintf("%s:%s", SessionKeyPrefix, sessionID)
}

// SaveSession stores the current snapshot of an open session.
func (r *RedisSessionStore) SaveSession(ctx context.Context, s *session.Session) error {
	if s == nil {
		return fmt.Errorf("cannot save nil session")
	}

	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("failed to marshal session snapshot: %w", err)
	}

	r.cacheMu.Lock()
	r.inMemoryCache[s.ID] = s
	r.cacheMu.Unlock()

	if r.client != nil && r.redisAvailable.Load() {
		pipe := r.client.TxPipeline()
		pipe.Set(ctx, r.sessionKey(s.ID), data, SessionSnapshotTTL)
		pipe.SAdd(ctx, SessionListKey, s.ID)
		pipe.Expire(ctx, SessionListKey, SessionSnapshotTTL)

		if _, err := pipe.Exec(ctx); err != nil {
			log.Printf("[REDIS-SESSION] Failed to save to Redis: %v, using in-memory cache", err)
			r.redisAvailable.Store(false)
			return nil
		}
	}

	return nil
}

// LoadSession fetches a session snapshot. Returns nil if the session has no
// snapshot (not an error).
func (r *RedisSessionStore) LoadSession(ctx context.Context, sessionID string) (*session.Session, error) {
	if r.client != nil && r.redisAvailable.Load() {
		data, err := r.client.Get(ctx, r.sessionKey(sessionID)).Result()
		if err != nil {
			if err == redis.Nil {
				return r.getFromCache(sessionID), nil
			}
			log.Printf("[REDIS-SESSION] Redis read error: %v, using in-memory cache", err)
			r.redisAvailable.Store(false)
			return r.getFromCache(sessionID), nil
		}

		var s session.Session
		if err := json.Unmarshal([]byte(data), &s); err != nil {
			return nil, fmt.Errorf("failed to unmarshal session snapshot: %w", err)
		}
		return &s, nil
	}

	return r.getFromCache(sessionID), nil
}

// LoadOpenSessions returns all snapshotted sessions, for registry recovery
// at startup.
func (r *RedisSessionStore) LoadOpenSessions(ctx context.Context) ([]*session.Session, error) {
	if r.client != nil && r.redisAvailable.Load() {
		ids, err := r.client.SMembers(ctx, SessionListKey).Result()
		if err != nil {
			log.Printf("[REDIS-SESSION] Redis list error: %v, using in-memory cache", err)
			r.redisAvailable.Store(false)
			return r.cachedSessions(), nil
		}

		sessions := make([]*session.Session, 0, len(ids))
		for _, id := range ids {
			s, err := r.LoadSession(ctx, id)
			if err != nil {
				log.Printf("[REDIS-SESSION] Skipping corrupt snapshot %s: %v", id, err)
				continue
			}
			if s != nil {
				sessions = append(sessions, s)
			}
		}
		return sessions, nil
	}

	return r.cachedSessions(), nil
}

// DeleteSession removes the snapshot once a session terminates.
func (r *RedisSessionStore) DeleteSession(ctx context.Context, sessionID string) error {
	r.cacheMu.Lock()
	delete(r.inMemoryCache, sessionID)
	r.cacheMu.Unlock()

	if r.client != nil && r.redisAvailable.Load() {
		pipe := r.client.TxPipeline()
		pipe.Del(ctx, r.sessionKey(sessionID))
		pipe.SRem(ctx, SessionListKey, sessionID)

		if _, err := pipe.Exec(ctx); err != nil {
			log.Printf("[REDIS-SESSION] Failed to delete from Redis: %v", err)
			r.redisAvailable.Store(false)
		}
	}

	return nil
}

func (r *RedisSessionStore) getFromCache(sessionID string) *session.Session {
	r.cacheMu.RLock()
	defer r.cacheMu.RUnlock()
	return r.inMemoryCache[sessionID]
}

func (r *RedisSessionStore) cachedSessions() []*session.Session {
	r.cacheMu.RLock()
	defer r.cacheMu.RUnlock()
	out := make([]*session.Session, 0, len(r.inMemoryCache))
	for _, s := range r.inMemoryCache {
		out = append(out, s)
	}
	return out
}
