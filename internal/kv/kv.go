// Package kv implements the system's single opaque key-value abstraction
// (spec §4.1). Every other component's durable state flows through this
// package: task records, sessions, clarifications, checkpoints, the skill
// registry, and the versioned code graph all serialise to byte strings under
// a namespaced key here.
package kv

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrNotFound is returned by Get when the key has no value.
var ErrNotFound = errors.New("kv: key not found")

// ErrConflict is returned by a Tx callback's caller when a watched key
// changed between read and write (optimistic-lock conflict).
var ErrConflict = errors.New("kv: optimistic lock conflict")

// Store is the typed get/set/scan/expire/watch contract spec §4.1 requires.
// Values are always opaque byte strings; callers serialize/deserialize.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Del(ctx context.Context, key string) error
	Scan(ctx context.Context, prefix string) ([]string, error)

	// Tx runs fn with the current value of key (found is false if absent) and
	// commits fn's returned value only if key was unchanged since the read,
	// per spec §4.4's "read current version, write ... in one atomic
	// transaction; retry up to three times on version conflict". Tx itself
	// does not retry; callers implement the retry loop (see kv.WithRetry).
	Tx(ctx context.Context, key string, fn func(current []byte, found bool) ([]byte, time.Duration, error)) error

	Close() error
}

// Config mirrors the teacher's core/config database config shape, adapted to
// Redis per DESIGN.md's persistence-model decision.
type Config struct {
	Addr     string
	Password string
	DB       int
}

type redisStore struct {
	client *redis.Client
}

// New connects to Redis and verifies connectivity with a ping, matching the
// teacher's core/db.New pattern of failing fast on a bad connection string.
func New(ctx context.Context, cfg Config) (Store, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("kv: connecting to redis: %w", err)
	}

	return &redisStore{client: client}, nil
}

func (s *redisStore) Get(ctx context.Context, key string) ([]byte, error) {
	val, err := s.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("kv: get %s: %w", key, err)
	}
	return val, nil
}

func (s *redisStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := s.client.Set(ctx, key, value, ttl).Err(); err != nil {
		return fmt.Errorf("kv: set %s: %w", key, err)
	}
	return nil
}

func (s *redisStore) Del(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("kv: del %s: %w", key, err)
	}
	return nil
}

func (s *redisStore) Scan(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	iter := s.client.Scan(ctx, 0, prefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("kv: scan %s*: %w", prefix, err)
	}
	return keys, nil
}

// Tx uses Redis WATCH/MULTI/EXEC: the key is watched, fn computes the new
// value from the current one, and the write is staged in a transaction that
// Redis aborts (redis.TxFailedErr) if the watched key changed concurrently.
// That abort is surfaced as ErrConflict so callers can retry per spec §4.4.
func (s *redisStore) Tx(ctx context.Context, key string, fn func(current []byte, found bool) ([]byte, time.Duration, error)) error {
	txf := func(tx *redis.Tx) error {
		current, err := tx.Get(ctx, key).Bytes()
		found := true
		if err != nil {
			if !errors.Is(err, redis.Nil) {
				return fmt.Errorf("kv: tx get %s: %w", key, err)
			}
			found = false
		}

		next, ttl, err := fn(current, found)
		if err != nil {
			return err
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, next, ttl)
			return nil
		})
		return err
	}

	err := s.client.Watch(ctx, txf, key)
	if errors.Is(err, redis.TxFailedErr) {
		return ErrConflict
	}
	if err != nil {
		return fmt.Errorf("kv: tx %s: %w", key, err)
	}
	return nil
}

func (s *redisStore) Close() error {
	return s.client.Close()
}

// WithRetry runs fn through store.Tx, retrying up to maxAttempts times on
// ErrConflict, matching spec §4.4's "retry up to three times on version
// conflict".
func WithRetry(ctx context.Context, store Store, key string, maxAttempts int, fn func(current []byte, found bool) ([]byte, time.Duration, error)) error {
	var err error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		err = store.Tx(ctx, key, fn)
		if err == nil || !errors.Is(err, ErrConflict) {
			return err
		}
	}
	return err
}
