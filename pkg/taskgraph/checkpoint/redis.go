package checkpoint

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore persists checkpoints in Redis so that several server
// processes can resume each other's runs.
//
// Layout, for prefix "taskgraph:":
//
//	taskgraph:run:{runID}:index      sorted set of sequences (score = sequence)
//	taskgraph:run:{runID}:cp:{seq}   encoded checkpoint
type RedisStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
	closed atomic.Bool
}

// RedisOptions configures a RedisStore.
type RedisOptions struct {
	Addr     string
	Password string
	DB       int
	Prefix   string        // Key prefix, default "taskgraph:"
	TTL      time.Duration // Expiration for checkpoints, default 0 (no expiration)
}

// NewRedisStore connects a RedisStore using opts.
func NewRedisStore(opts RedisOptions) *RedisStore {
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})
	return NewRedisStoreWithClient(client, opts.Prefix, opts.TTL)
}

// NewRedisStoreWithClient wraps an existing client. The store owns the
// client and closes it on Close.
func NewRedisStoreWithClient(client *redis.Client, prefix string, ttl time.Duration) *RedisStore {
	if prefix == "" {
		prefix = "taskgraph:"
	}
	return &RedisStore{client: client, prefix: prefix, ttl: ttl}
}

func (s *RedisStore) indexKey(runID string) string {
	return fmt.Sprintf("%srun:%s:index", s.prefix, runID)
}

func (s *RedisStore) checkpointKey(runID string, sequence int) string {
	return fmt.Sprintf("%srun:%s:cp:%d", s.prefix, runID, sequence)
}

// Save implements Store.
func (s *RedisStore) Save(ctx context.Context, cp *Checkpoint) error {
	if s.closed.Load() {
		return ErrStoreClosed
	}
	if err := validate(cp); err != nil {
		return err
	}
	data, err := cp.Marshal()
	if err != nil {
		return err
	}

	indexKey := s.indexKey(cp.RunID)
	pipe := s.client.TxPipeline()
	pipe.Set(ctx, s.checkpointKey(cp.RunID, cp.Sequence), data, s.ttl)
	pipe.ZAdd(ctx, indexKey, redis.Z{Score: float64(cp.Sequence), Member: strconv.Itoa(cp.Sequence)})
	if s.ttl > 0 {
		pipe.Expire(ctx, indexKey, s.ttl)
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("save checkpoint to redis: %w", err)
	}
	return nil
}

// Load implements Store.
func (s *RedisStore) Load(ctx context.Context, runID string, sequence int) (*Checkpoint, error) {
	if s.closed.Load() {
		return nil, ErrStoreClosed
	}

	data, err := s.client.Get(ctx, s.checkpointKey(runID, sequence)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load checkpoint from redis: %w", err)
	}
	return Unmarshal(data)
}

// Latest implements Store.
func (s *RedisStore) Latest(ctx context.Context, runID string) (*Checkpoint, error) {
	if s.closed.Load() {
		return nil, ErrStoreClosed
	}

	members, err := s.client.ZRevRange(ctx, s.indexKey(runID), 0, 0).Result()
	if err != nil {
		return nil, fmt.Errorf("read checkpoint index: %w", err)
	}
	if len(members) == 0 {
		return nil, ErrNotFound
	}

	seq, err := strconv.Atoi(members[0])
	if err != nil {
		return nil, fmt.Errorf("corrupt checkpoint index entry %q: %w", members[0], err)
	}
	return s.Load(ctx, runID, seq)
}

// List implements Store. Entries whose data has expired are skipped.
func (s *RedisStore) List(ctx context.Context, runID string) ([]Info, error) {
	if s.closed.Load() {
		return nil, ErrStoreClosed
	}

	members, err := s.client.ZRange(ctx, s.indexKey(runID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("read checkpoint index: %w", err)
	}
	if len(members) == 0 {
		return []Info{}, nil
	}

	keys := make([]string, 0, len(members))
	for _, m := range members {
		seq, err := strconv.Atoi(m)
		if err != nil {
			return nil, fmt.Errorf("corrupt checkpoint index entry %q: %w", m, err)
		}
		keys = append(keys, s.checkpointKey(runID, seq))
	}

	results, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("fetch checkpoints: %w", err)
	}

	infos := make([]Info, 0, len(results))
	for _, result := range results {
		raw, ok := result.(string)
		if !ok {
			continue
		}
		cp, err := Unmarshal([]byte(raw))
		if err != nil {
			return nil, fmt.Errorf("decode checkpoint: %w", err)
		}
		infos = append(infos, cp.Info(int64(len(raw))))
	}
	return infos, nil
}

// DeleteRun implements Store.
func (s *RedisStore) DeleteRun(ctx context.Context, runID string) error {
	if s.closed.Load() {
		return ErrStoreClosed
	}

	indexKey := s.indexKey(runID)
	members, err := s.client.ZRange(ctx, indexKey, 0, -1).Result()
	if err != nil {
		return fmt.Errorf("read checkpoint index: %w", err)
	}

	keys := []string{indexKey}
	for _, m := range members {
		if seq, err := strconv.Atoi(m); err == nil {
			keys = append(keys, s.checkpointKey(runID, seq))
		}
	}

	if err := s.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("delete run checkpoints: %w", err)
	}
	return nil
}

// Close implements Store.
func (s *RedisStore) Close() error {
	if s.closed.Swap(true) {
		return nil
	}
	return s.client.Close()
}
