package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"voice-match/internal/domain"
)

const redisStoreTimeout = 500 * time.Millisecond

// IntakeSessionStore guarda snapshots de sesiones de intake en curso.
type IntakeSessionStore interface {
	Save(ctx context.Context, session domain.IntakeSession) error
	Get(ctx context.Context, id string) (domain.IntakeSession, error)
	Delete(ctx context.Context, id string) error
}

type memorySessionEntry struct {
	session   domain.IntakeSession
	expiresAt time.Time
}

type memoryIntakeSessionStore struct {
	mu    sync.Mutex
	ttl   time.Duration
	items map[string]memorySessionEntry
	now   func() time.Time
}

// NewMemoryIntakeSessionStore usa ttl <= 0 como "sin expiracion".
func NewMemoryIntakeSessionStore(ttl time.Duration) IntakeSessionStore {
	return &memoryIntakeSessionStore{
		ttl:   ttl,
		items: make(map[string]memorySessionEntry),
		now:   func() time.Time { return time.Now().UTC() },
	}
}

func (s *memoryIntakeSessionStore) Save(_ context.Context, session domain.IntakeSession) error {
	if strings.TrimSpace(session.ID) == "" {
		return fmt.Errorf("%w: empty session id", domain.ErrInvalidInput)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	entry := memorySessionEntry{session: session.Clone()}
	if s.ttl > 0 {
		entry.expiresAt = s.now().Add(s.ttl)
	}
	s.items[session.ID] = entry
	return nil
}

func (s *memoryIntakeSessionStore) Get(_ context.Context, id string) (domain.IntakeSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.items[id]
	if !ok {
		return domain.IntakeSession{}, domain.ErrSessionNotFound
	}
	if !entry.expiresAt.IsZero() && s.now().After(entry.expiresAt) {
		delete(s.items, id)
		return domain.IntakeSession{}, domain.ErrSessionNotFound
	}
	return entry.session.Clone(), nil
}

func (s *memoryIntakeSessionStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.items, id)
	return nil
}

type redisKV interface {
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Get(ctx context.Context, key string) *redis.StringCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

type redisIntakeSessionStore struct {
	client redisKV
	ttl    time.Duration
	prefix string
}

// NewRedisIntakeSessionStore serializa la sesion como JSON con TTL; devuelve nil sin cliente.
func NewRedisIntakeSessionStore(client *redis.Client, ttl time.Duration) IntakeSessionStore {
	if client == nil {
		return nil
	}
	return &redisIntakeSessionStore{
		client: client,
		ttl:    ttl,
		prefix: "intake:session:",
	}
}

func (s *redisIntakeSessionStore) Save(ctx context.Context, session domain.IntakeSession) error {
	if strings.TrimSpace(session.ID) == "" {
		return fmt.Errorf("%w: empty session id", domain.ErrInvalidInput)
	}
	payload, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}
	ctx, cancel := context.WithTimeout(ctx, redisStoreTimeout)
	defer cancel()
	if err := s.client.Set(ctx, s.prefix+session.ID, payload, s.ttl).Err(); err != nil {
		return fmt.Errorf("redis set session: %w", err)
	}
	return nil
}

func (s *redisIntakeSessionStore) Get(ctx context.Context, id string) (domain.IntakeSession, error) {
	if strings.TrimSpace(id) == "" {
		return domain.IntakeSession{}, domain.ErrSessionNotFound
	}
	ctx, cancel := context.WithTimeout(ctx, redisStoreTimeout)
	defer cancel()
	raw, err := s.client.Get(ctx, s.prefix+id).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return domain.IntakeSession{}, domain.ErrSessionNotFound
		}
		return domain.IntakeSession{}, fmt.Errorf("redis get session: %w", err)
	}
	var session domain.IntakeSession
	if err := json.Unmarshal(raw, &session); err != nil {
		return domain.IntakeSession{}, fmt.Errorf("unmarshal session: %w", err)
	}
	return session, nil
}

func (s *redisIntakeSessionStore) Delete(ctx context.Context, id string) error {
	if strings.TrimSpace(id) == "" {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, redisStoreTimeout)
	defer cancel()
	return s.client.Del(ctx, s.prefix+id).Err()
}
