// Package sessions stores server-side session records so a signed token can
// be revoked before it expires.
package sessions

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/mamadbah2/equiptrack/internal/domain/models"
)

// ErrSessionNotFound is returned for unknown, expired or revoked sessions.
var ErrSessionNotFound = errors.New("session not found")

// Store keeps sessions until they expire or are revoked.
type Store interface {
	Create(ctx context.Context, session models.Session) error
	Get(ctx context.Context, id string) (models.Session, error)
	Delete(ctx context.Context, id string) error
	RevokeAllForUser(ctx context.Context, userID string) error
}

type record struct {
	UserID    string `json:"uid"`
	Email     string `json:"email"`
	IssuedAt  int64  `json:"iat"`
	ExpiresAt int64  `json:"exp"`
}

func key(id string) string         { return fmt.Sprintf("equiptrack:sess:%s", id) }
func userSetKey(uid string) string { return fmt.Sprintf("equiptrack:user_sessions:%s", uid) }

// RedisStore keeps sessions in Redis with a TTL matching the session expiry.
type RedisStore struct {
	rdb *redis.Client
	now func() time.Time
}

// NewRedisStore wraps a connected client.
func NewRedisStore(rdb *redis.Client) *RedisStore {
	return &RedisStore{rdb: rdb, now: time.Now}
}

// Create stores session with a TTL ending at its expiry and indexes it under
// its user so RevokeAllForUser can find it.
func (s *RedisStore) Create(ctx context.Context, session models.Session) error {
	ttl := session.ExpiresAt.Sub(s.now())
	if ttl <= 0 {
		return fmt.Errorf("session %s already expired", session.ID)
	}
	b, err := json.Marshal(record{
		UserID:    session.UserID,
		Email:     session.Email,
		IssuedAt:  session.IssuedAt.Unix(),
		ExpiresAt: session.ExpiresAt.Unix(),
	})
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}

	pipe := s.rdb.TxPipeline()
	pipe.Set(ctx, key(session.ID), b, ttl)
	pipe.SAdd(ctx, userSetKey(session.UserID), session.ID)
	pipe.Expire(ctx, userSetKey(session.UserID), ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("store session: %w", err)
	}
	return nil
}

// Get loads a live session. Expired or revoked IDs give ErrSessionNotFound.
func (s *RedisStore) Get(ctx context.Context, id string) (models.Session, error) {
	b, err := s.rdb.Get(ctx, key(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return models.Session{}, ErrSessionNotFound
	}
	if err != nil {
		return models.Session{}, fmt.Errorf("load session: %w", err)
	}
	var rec record
	if err := json.Unmarshal(b, &rec); err != nil {
		return models.Session{}, fmt.Errorf("decode session: %w", err)
	}
	return models.Session{
		ID:        id,
		UserID:    rec.UserID,
		Email:     rec.Email,
		IssuedAt:  time.Unix(rec.IssuedAt, 0).UTC(),
		ExpiresAt: time.Unix(rec.ExpiresAt, 0).UTC(),
	}, nil
}

// Delete revokes one session. Unknown IDs are not an error.
func (s *RedisStore) Delete(ctx context.Context, id string) error {
	current, err := s.Get(ctx, id)
	if err != nil && !errors.Is(err, ErrSessionNotFound) {
		return err
	}
	pipe := s.rdb.TxPipeline()
	pipe.Del(ctx, key(id))
	if err == nil {
		pipe.SRem(ctx, userSetKey(current.UserID), id)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

// RevokeAllForUser revokes every session indexed under userID.
func (s *RedisStore) RevokeAllForUser(ctx context.Context, userID string) error {
	ids, err := s.rdb.SMembers(ctx, userSetKey(userID)).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("list sessions: %w", err)
	}

	pipe := s.rdb.TxPipeline()
	for _, sid := range ids {
		pipe.Del(ctx, key(sid))
	}
	pipe.Del(ctx, userSetKey(userID))
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("revoke sessions: %w", err)
	}
	return nil
}

// MemoryStore keeps sessions in process memory.
type MemoryStore struct {
	mu       sync.Mutex
	sessions map[string]models.Session
	now      func() time.Time
}

// NewMemoryStore returns an empty store. A nil clock means time.Now.
func NewMemoryStore(now func() time.Time) *MemoryStore {
	if now == nil {
		now = time.Now
	}
	return &MemoryStore{sessions: make(map[string]models.Session), now: now}
}

// Create stores session without its signed token.
func (s *MemoryStore) Create(_ context.Context, session models.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !session.ExpiresAt.After(s.now()) {
		return fmt.Errorf("session %s already expired", session.ID)
	}
	session.Token = ""
	s.sessions[session.ID] = session
	return nil
}

// Get returns a live session, dropping it once expired.
func (s *MemoryStore) Get(_ context.Context, id string) (models.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[id]
	if !ok {
		return models.Session{}, ErrSessionNotFound
	}
	if !session.ExpiresAt.After(s.now()) {
		delete(s.sessions, id)
		return models.Session{}, ErrSessionNotFound
	}
	return session, nil
}

// Delete revokes one session.
func (s *MemoryStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	delete(s.sessions, id)
	s.mu.Unlock()
	return nil
}

// RevokeAllForUser revokes every session of userID.
func (s *MemoryStore) RevokeAllForUser(_ context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, session := range s.sessions {
		if session.UserID == userID {
			delete(s.sessions, id)
		}
	}
	return nil
}
