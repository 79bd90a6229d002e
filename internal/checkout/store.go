package checkout

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Clark-Hu/moviestore/internal/redis"
)

// CartStore persists one cart per user.
type CartStore interface {
	Load(ctx context.Context, userID string) (Cart, error)
	Save(ctx context.Context, userID string, cart Cart) error
	Clear(ctx context.Context, userID string) error
}

type kv interface {
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	Get(ctx context.Context, key string) (string, error)
	Del(ctx context.Context, keys ...string) error
	CartKey(userID string) string
}

var _ kv = (*redis.Client)(nil)

// RedisCartStore keeps each cart as a JSON document under a per-user key that
// expires after ttl of inactivity.
type RedisCartStore struct {
	client kv
	ttl    time.Duration
}

func NewRedisCartStore(client *redis.Client, ttl time.Duration) *RedisCartStore {
	return &RedisCartStore{client: client, ttl: ttl}
}

func (s *RedisCartStore) Load(ctx context.Context, userID string) (Cart, error) {
	raw, err := s.client.Get(ctx, s.client.CartKey(userID))
	if err != nil {
		if errors.Is(err, redis.ErrNotFound) {
			return Cart{Lines: []Line{}}, nil
		}
		return Cart{}, fmt.Errorf("load cart: %w", err)
	}
	var cart Cart
	if err := json.Unmarshal([]byte(raw), &cart); err != nil {
		return Cart{}, fmt.Errorf("decode cart: %w", err)
	}
	return cart.normalized(), nil
}

func (s *RedisCartStore) Save(ctx context.Context, userID string, cart Cart) error {
	if cart.IsEmpty() {
		return s.Clear(ctx, userID)
	}
	payload, err := json.Marshal(cart)
	if err != nil {
		return fmt.Errorf("encode cart: %w", err)
	}
	if err := s.client.Set(ctx, s.client.CartKey(userID), string(payload), s.ttl); err != nil {
		return fmt.Errorf("save cart: %w", err)
	}
	return nil
}

func (s *RedisCartStore) Clear(ctx context.Context, userID string) error {
	if err := s.client.Del(ctx, s.client.CartKey(userID)); err != nil {
		return fmt.Errorf("clear cart: %w", err)
	}
	return nil
}

// MemoryCartStore keeps carts in process memory. Used when no Redis URL is
// configured and in tests; carts are lost on restart.
type MemoryCartStore struct {
	mu    sync.Mutex
	carts map[string]Cart
}

func NewMemoryCartStore() *MemoryCartStore {
	return &MemoryCartStore{carts: make(map[string]Cart)}
}

func (s *MemoryCartStore) Load(_ context.Context, userID string) (Cart, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.carts[userID].normalized(), nil
}

func (s *MemoryCartStore) Save(_ context.Context, userID string, cart Cart) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cart.IsEmpty() {
		delete(s.carts, userID)
		return nil
	}
	s.carts[userID] = Cart{Lines: append([]Line(nil), cart.Lines...)}
	return nil
}

func (s *MemoryCartStore) Clear(_ context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.carts, userID)
	return nil
}
