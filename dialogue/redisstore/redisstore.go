// Package redisstore implements dialogue.Store on Redis, for launchers
// whose dialogue state must outlive one process or be shared across nodes.
// Dialogues are persisted as JSON snapshots and re-bound to the protocol
// on load.
package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/agentwire-dev/agentwire/dialogue"
)

const defaultPrefix = "agentwire:dialogue:"

// Config holds the Redis connection configuration.
type Config struct {
	// Addr is the Redis server address (host:port).
	Addr string
	// Password is the Redis password (optional).
	Password string
	// DB is the Redis database number.
	DB int
	// Prefix is the key prefix for all dialogue keys.
	Prefix string
	// TTL expires idle dialogues (0 = never expire).
	TTL time.Duration
}

// Store is a Redis-backed dialogue store.
type Store struct {
	client *redis.Client
	proto  *dialogue.Protocol
	prefix string
	ttl    time.Duration

	mu     sync.Mutex
	closed bool
}

// New connects to Redis and returns a store bound to proto.
func New(cfg Config, proto *dialogue.Protocol) (*Store, error) {
	if cfg.Addr == "" {
		return nil, errors.New("redisstore: address is required")
	}
	prefix := cfg.Prefix
	if prefix == "" {
		prefix = defaultPrefix
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redisstore: ping: %w", err)
	}

	return &Store{client: client, proto: proto, prefix: prefix, ttl: cfg.TTL}, nil
}

func (s *Store) dialogueKey(label dialogue.Label) string {
	return s.prefix + "d:" + label.String()
}

func (s *Store) incompleteKey(label dialogue.Label) string {
	return s.prefix + "i:" + label.String()
}

func (s *Store) checkOpen() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errors.New("redisstore: store is closed")
	}
	return nil
}

func (s *Store) write(d *dialogue.Dialogue) error {
	data, err := json.Marshal(d.Snapshot())
	if err != nil {
		return fmt.Errorf("redisstore: marshal dialogue: %w", err)
	}
	ctx := context.Background()
	return s.client.Set(ctx, s.dialogueKey(d.Label()), data, s.ttl).Err()
}

// Add registers a dialogue under its current label.
func (s *Store) Add(d *dialogue.Dialogue) error {
	if err := s.checkOpen(); err != nil {
		return err
	}

	ctx := context.Background()
	exists, err := s.client.Exists(ctx, s.dialogueKey(d.Label())).Result()
	if err != nil {
		return fmt.Errorf("redisstore: exists: %w", err)
	}
	if exists > 0 {
		return errors.New("redisstore: dialogue label already present")
	}
	return s.write(d)
}

// Get retrieves and rehydrates the dialogue stored under label.
func (s *Store) Get(label dialogue.Label) (*dialogue.Dialogue, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}

	ctx := context.Background()
	data, err := s.client.Get(ctx, s.dialogueKey(label)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, dialogue.ErrDialogueNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redisstore: get: %w", err)
	}

	var snap dialogue.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("redisstore: unmarshal dialogue: %w", err)
	}
	return dialogue.Restore(snap, s.proto), nil
}

// Remove evicts the dialogue stored under label.
func (s *Store) Remove(label dialogue.Label) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	return s.client.Del(context.Background(), s.dialogueKey(label)).Err()
}

// Save persists the dialogue's current state.
func (s *Store) Save(d *dialogue.Dialogue) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	return s.write(d)
}

// SetIncomplete records the supersession of an incomplete label.
func (s *Store) SetIncomplete(incomplete, complete dialogue.Label) error {
	if err := s.checkOpen(); err != nil {
		return err
	}

	data, err := json.Marshal(complete)
	if err != nil {
		return fmt.Errorf("redisstore: marshal label: %w", err)
	}
	return s.client.Set(context.Background(), s.incompleteKey(incomplete), data, s.ttl).Err()
}

// LatestLabel resolves a possibly superseded label to its latest version.
func (s *Store) LatestLabel(label dialogue.Label) dialogue.Label {
	if err := s.checkOpen(); err != nil {
		return label
	}

	data, err := s.client.Get(context.Background(), s.incompleteKey(label)).Bytes()
	if err != nil {
		return label
	}
	var complete dialogue.Label
	if err := json.Unmarshal(data, &complete); err != nil {
		return label
	}
	return complete
}

// Close releases the Redis client.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.client.Close()
}
