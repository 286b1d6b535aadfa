package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"AlphaPull/internal/domain/models"
	drepo "AlphaPull/internal/domain/repository"
)

// releaseScript deletes the lease only if the caller still owns it.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
    return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisCursorStore keeps ingestion watermarks and per-pair leases in
// Redis. The watermark is a plain keyed record (single writer under the
// lease, so a bare SET suffices); the lease is SET NX with a TTL and an
// owner token, which serializes cycles for the same pair across
// processes.
type RedisCursorStore struct {
	client *redis.Client
}

func NewRedisCursorStore(addr, password string, db int) (*RedisCursorStore, error) {
	client := redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db})
	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("redis connect: %w", err)
	}
	return &RedisCursorStore{client: client}, nil
}

func cursorKey(inst models.Instrument) string { return "cursor:" + inst.PairKey() }
func leaseKey(inst models.Instrument) string  { return "lease:" + inst.PairKey() }

func (s *RedisCursorStore) Get(ctx context.Context, inst models.Instrument) (models.Cursor, error) {
	data, err := s.client.Get(ctx, cursorKey(inst)).Bytes()
	if err == redis.Nil {
		return models.Cursor{}, nil // epoch-zero first run
	}
	if err != nil {
		return models.Cursor{}, fmt.Errorf("%w: %v", models.ErrStorageUnavailable, err)
	}
	var cur models.Cursor
	if err := json.Unmarshal(data, &cur); err != nil {
		return models.Cursor{}, fmt.Errorf("unmarshal cursor %s: %w", inst.PairKey(), err)
	}
	return cur, nil
}

func (s *RedisCursorStore) Advance(ctx context.Context, inst models.Instrument, cur models.Cursor) error {
	data, err := json.Marshal(cur)
	if err != nil {
		return fmt.Errorf("marshal cursor: %w", err)
	}
	if err := s.client.Set(ctx, cursorKey(inst), data, 0).Err(); err != nil {
		return fmt.Errorf("%w: %v", models.ErrStorageUnavailable, err)
	}
	return nil
}

func (s *RedisCursorStore) Lease(ctx context.Context, inst models.Instrument, ttl time.Duration) (func(), error) {
	token := uuid.NewString()
	ok, err := s.client.SetNX(ctx, leaseKey(inst), token, ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrStorageUnavailable, err)
	}
	if !ok {
		return nil, models.ErrLeaseHeld
	}
	release := func() {
		rctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_, _ = releaseScript.Run(rctx, s.client, []string{leaseKey(inst)}, token).Result()
	}
	return release, nil
}

// Health pings the Redis backend.
func (s *RedisCursorStore) Health(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close closes the Redis connection.
func (s *RedisCursorStore) Close() error { return s.client.Close() }

var _ drepo.CursorStore = (*RedisCursorStore)(nil)
