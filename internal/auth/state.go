package auth

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrInvalidState is returned when an OAuth state is unknown, expired or
// already used.
var ErrInvalidState = errors.New("invalid or expired OAuth state")

// StateStore remembers which user started an OAuth flow. A state can be
// consumed at most once.
type StateStore interface {
	Save(ctx context.Context, state, userID string, ttl time.Duration) error
	Consume(ctx context.Context, state string) (userID string, err error)
}

const statePrefix = "mailpilot:oauth_state:"

type RedisStateStore struct {
	rdb *redis.Client
}

func NewRedisStateStore(rdb *redis.Client) *RedisStateStore {
	return &RedisStateStore{rdb: rdb}
}

func (s *RedisStateStore) Save(ctx context.Context, state, userID string, ttl time.Duration) error {
	ok, err := s.rdb.SetNX(ctx, statePrefix+state, userID, ttl).Result()
	if err != nil {
		return fmt.Errorf("failed to save oauth state: %w", err)
	}
	if !ok {
		return errors.New("oauth state already exists")
	}
	return nil
}

func (s *RedisStateStore) Consume(ctx context.Context, state string) (string, error) {
	userID, err := s.rdb.GetDel(ctx, statePrefix+state).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrInvalidState
	}
	if err != nil {
		return "", fmt.Errorf("failed to read oauth state: %w", err)
	}
	return userID, nil
}

// MemoryStateStore keeps states in process memory. It suits a single
// server instance or the CLI.
type MemoryStateStore struct {
	mu      sync.Mutex
	entries map[string]memoryState
	now     func() time.Time
}

type memoryState struct {
	userID  string
	expires time.Time
}

func NewMemoryStateStore() *MemoryStateStore {
	return &MemoryStateStore{entries: make(map[string]memoryState), now: time.Now}
}

func (s *MemoryStateStore) Save(_ context.Context, state, userID string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	for k, e := range s.entries {
		if now.After(e.expires) {
			delete(s.entries, k)
		}
	}
	if _, ok := s.entries[state]; ok {
		return errors.New("oauth state already exists")
	}
	s.entries[state] = memoryState{userID: userID, expires: now.Add(ttl)}
	return nil
}

func (s *MemoryStateStore) Consume(_ context.Context, state string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[state]
	if !ok {
		return "", ErrInvalidState
	}
	delete(s.entries, state)
	if s.now().After(e.expires) {
		return "", ErrInvalidState
	}
	return e.userID, nil
}
