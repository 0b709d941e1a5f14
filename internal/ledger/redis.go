package ledger

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
)

const positionsHash = "bridge:positions"

// Redis is the production Ledger, one hash field per instrument key.
// Positions survive restarts and are shared across replicas.
type Redis struct {
	client *redis.Client
}

// NewRedis connects and verifies the server is reachable.
func NewRedis(ctx context.Context, addr, password string) (*Redis, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("ledger: redis ping: %w", err)
	}
	log.Printf("[ledger] connected to redis at %s", addr)
	return &Redis{client: client}, nil
}

// Client exposes the underlying connection for health probes.
func (r *Redis) Client() *redis.Client { return r.client }

func (r *Redis) Get(ctx context.Context, key string) (int64, error) {
	v, err := r.client.HGet(ctx, positionsHash, key).Result()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("ledger: get %s: %w", key, err)
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("ledger: corrupt value for %s: %w", key, err)
	}
	return n, nil
}

func (r *Redis) Set(ctx context.Context, key string, lots int64) error {
	if lots == 0 {
		return r.Clear(ctx, key)
	}
	if err := r.client.HSet(ctx, positionsHash, key, lots).Err(); err != nil {
		return fmt.Errorf("ledger: set %s: %w", key, err)
	}
	return nil
}

func (r *Redis) Clear(ctx context.Context, key string) error {
	if err := r.client.HDel(ctx, positionsHash, key).Err(); err != nil {
		return fmt.Errorf("ledger: clear %s: %w", key, err)
	}
	return nil
}

func (r *Redis) All(ctx context.Context) (map[string]int64, error) {
	raw, err := r.client.HGetAll(ctx, positionsHash).Result()
	if err != nil {
		return nil, fmt.Errorf("ledger: list: %w", err)
	}
	out := make(map[string]int64, len(raw))
	for k, v := range raw {
		n, perr := strconv.ParseInt(v, 10, 64)
		if perr != nil {
			log.Printf("[ledger] skipping corrupt entry %s=%q", k, v)
			continue
		}
		out[k] = n
	}
	return out, nil
}

func (r *Redis) Reset(ctx context.Context) error {
	if err := r.client.Del(ctx, positionsHash).Err(); err != nil {
		return fmt.Errorf("ledger: reset: %w", err)
	}
	return nil
}

// Claim marks a dedup key for the window, returning false when the key
// was already claimed. Piggybacks on the same client (SET NX EX).
func (r *Redis) Claim(ctx context.Context, key string, window time.Duration) (bool, error) {
	ok, err := r.client.SetNX(ctx, key, "1", window).Result()
	if err != nil {
		return false, fmt.Errorf("ledger: claim %s: %w", key, err)
	}
	return ok, nil
}
