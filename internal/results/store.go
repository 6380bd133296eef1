package results

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	metaKeyPrefix     = "task-meta-"
	inflightKeyPrefix = "tasks:" // tasks:<state>:<worker> -> hash taskID->snapshot

	// Registry entries expire on their own so a crashed worker does not
	// leave phantom in-flight tasks behind forever.
	inflightTTL = 30 * time.Minute
)

// ErrNotFound reports a task id with no stored metadata.
var ErrNotFound = errors.New("results: task not found")

// Store reads and writes task state in Redis.
type Store struct {
	client *redis.Client
}

// New connects to Redis and verifies the connection.
func New(ctx context.Context, addr, password string, db int) (*Store, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis connect: %w", err)
	}
	return &Store{client: client}, nil
}

// NewWithClient wraps an existing client, mainly for tests.
func NewWithClient(client *redis.Client) *Store {
	return &Store{client: client}
}

func metaKey(taskID string) string { return metaKeyPrefix + taskID }

func inflightKey(state, worker string) string {
	return inflightKeyPrefix + strings.ToLower(state) + ":" + worker
}

// Save writes the metadata record for a task, replacing any previous one.
func (s *Store) Save(ctx context.Context, meta Meta) error {
	body, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("marshal meta: %w", err)
	}
	if err := s.client.Set(ctx, metaKey(meta.TaskID), body, 0).Err(); err != nil {
		return fmt.Errorf("save meta: %w", err)
	}
	return nil
}

// Get loads the metadata for a task id. ErrNotFound when no worker has
// reported anything yet.
func (s *Store) Get(ctx context.Context, taskID string) (Meta, error) {
	body, err := s.client.Get(ctx, metaKey(taskID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return Meta{}, ErrNotFound
	}
	if err != nil {
		return Meta{}, fmt.Errorf("get meta: %w", err)
	}
	var meta Meta
	if err := json.Unmarshal(body, &meta); err != nil {
		return Meta{}, fmt.Errorf("decode meta: %w", err)
	}
	return meta, nil
}

// ScanMeta returns up to limit raw result records via prefix scan. Entries
// are returned undecoded so the caller decides how to treat corrupt ones.
func (s *Store) ScanMeta(ctx context.Context, limit int) ([]Raw, error) {
	var out []Raw
	iter := s.client.Scan(ctx, 0, metaKeyPrefix+"*", int64(limit)).Iterator()
	for iter.Next(ctx) {
		if len(out) >= limit {
			break
		}
		key := iter.Val()
		data, err := s.client.Get(ctx, key).Bytes()
		if err != nil {
			// Key may have expired between scan and get; skip it.
			continue
		}
		out = append(out, Raw{
			TaskID: strings.TrimPrefix(key, metaKeyPrefix),
			Data:   data,
		})
	}
	if err := iter.Err(); err != nil {
		return out, fmt.Errorf("scan meta: %w", err)
	}
	return out, nil
}

// MarkInflight registers a task under tasks:<state>:<worker>. Workers call
// this with StatusReserved on dequeue and StatusActive when execution
// starts.
func (s *Store) MarkInflight(ctx context.Context, state, worker string, snap Snapshot) error {
	snap.Worker = worker
	snap.State = strings.ToUpper(state)
	if snap.Since == "" {
		snap.Since = time.Now().UTC().Format(time.RFC3339)
	}
	body, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	key := inflightKey(state, worker)
	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, key, snap.TaskID, body)
	pipe.Expire(ctx, key, inflightTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("mark inflight: %w", err)
	}
	return nil
}

// ClearInflight removes a task from every registry state for a worker.
func (s *Store) ClearInflight(ctx context.Context, worker, taskID string) error {
	for _, state := range []string{StatusReserved, StatusActive, StatusScheduled} {
		if err := s.client.HDel(ctx, inflightKey(state, worker), taskID).Err(); err != nil {
			return fmt.Errorf("clear inflight %s: %w", state, err)
		}
	}
	return nil
}

// Inspect returns the registry contents for one state, keyed by worker.
func (s *Store) Inspect(ctx context.Context, state string) (map[string][]Snapshot, error) {
	out := make(map[string][]Snapshot)
	prefix := inflightKeyPrefix + strings.ToLower(state) + ":"
	iter := s.client.Scan(ctx, 0, prefix+"*", 64).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()
		worker := strings.TrimPrefix(key, prefix)
		entries, err := s.client.HGetAll(ctx, key).Result()
		if err != nil {
			return out, fmt.Errorf("inspect %s: %w", state, err)
		}
		for _, raw := range entries {
			var snap Snapshot
			if err := json.Unmarshal([]byte(raw), &snap); err != nil {
				continue
			}
			out[worker] = append(out[worker], snap)
		}
	}
	if err := iter.Err(); err != nil {
		return out, fmt.Errorf("inspect scan %s: %w", state, err)
	}
	return out, nil
}

// Ping verifies the Redis connection is usable.
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close releases the Redis connection.
func (s *Store) Close() error {
	return s.client.Close()
}
