// Package redisstore stores the counter document under a single Redis key.
package redisstore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/aevon-lab/tally/internal/core/storage"
	"github.com/aevon-lab/tally/internal/core/tally"
	"github.com/redis/go-redis/v9"
)

// ErrClosed is returned when the store is used after Close.
var ErrClosed = errors.New("redisstore: store closed")

// Default connection settings.
const (
	DefaultKey          = "tally:state"
	DefaultPoolSize     = 4
	DefaultDialTimeout  = 5 * time.Second
	DefaultReadTimeout  = 3 * time.Second
	DefaultWriteTimeout = 3 * time.Second
	DefaultMaxRetries   = 3
)

// Config holds the Redis connection settings.
type Config struct {
	// Addr is the Redis server address (host:port).
	Addr string
	// Password is the Redis password (empty for no auth).
	Password string
	// DB is the Redis database number.
	DB int
	// Key is where the document lives.
	Key string

	PoolSize     int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	MaxRetries   int
}

// DefaultConfig returns a Config for a local Redis.
func DefaultConfig() Config {
	return Config{
		Addr:         "localhost:6379",
		Key:          DefaultKey,
		PoolSize:     DefaultPoolSize,
		DialTimeout:  DefaultDialTimeout,
		ReadTimeout:  DefaultReadTimeout,
		WriteTimeout: DefaultWriteTimeout,
		MaxRetries:   DefaultMaxRetries,
	}
}

// Store implements storage.StateStore with GET/SET on one key.
// SET replaces the value atomically, so readers never see a partial document.
type Store struct {
	client *redis.Client
	key    string
	mu     sync.RWMutex
	closed bool
}

// NewStore connects and validates the connection with PING.
func NewStore(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.Key == "" {
		cfg.Key = DefaultKey
	}

	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		MaxRetries:   cfg.MaxRetries,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis: failed to connect to %s: %w", cfg.Addr, err)
	}

	slog.Info("[Redis] Connected", "addr", cfg.Addr, "db", cfg.DB, "key", cfg.Key)

	return &Store{client: client, key: cfg.Key}, nil
}

func (s *Store) Load(ctx context.Context) (*tally.State, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrClosed
	}

	data, err := s.client.Get(ctx, s.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redis: get %q failed: %w", s.key, err)
	}

	state, err := storage.DecodeDocument(data)
	if err != nil {
		return nil, fmt.Errorf("redis: key %q: %w", s.key, err)
	}
	return state, nil
}

func (s *Store) Save(ctx context.Context, state *tally.State) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return ErrClosed
	}

	data, err := storage.EncodeDocument(state)
	if err != nil {
		return err
	}
	if err := s.client.Set(ctx, s.key, data, 0).Err(); err != nil {
		return fmt.Errorf("redis: set %q failed: %w", s.key, err)
	}
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return ErrClosed
	}
	return s.client.Ping(ctx).Err()
}

// Close shuts down the client. Safe to call more than once.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	return s.client.Close()
}
