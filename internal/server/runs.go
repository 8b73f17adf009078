package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// RunRecord remembers which workflow and session a run belongs to, so a
// resume request only needs the run ID.
type RunRecord struct {
	Workflow  string    `json:"workflow"`
	SessionID string    `json:"session_id"`
	Created   time.Time `json:"created"`
}

// RunIndex maps run IDs to their RunRecord.
type RunIndex interface {
	Put(ctx context.Context, runID string, rec RunRecord) error
	// Get returns ErrRunNotFound for unknown runs.
	Get(ctx context.Context, runID string) (RunRecord, error)
}

// MemoryRunIndex is a process-local RunIndex.
type MemoryRunIndex struct {
	mu   sync.RWMutex
	runs map[string]memoryRun

	ttl       time.Duration
	lastSweep time.Time
	now       func() time.Time
}

type memoryRun struct {
	rec    RunRecord
	stored time.Time
}

// NewMemoryRunIndex creates an empty index. Records are forgotten once ttl
// has passed since they were put; zero keeps them forever.
func NewMemoryRunIndex(ttl time.Duration) *MemoryRunIndex {
	return &MemoryRunIndex{runs: make(map[string]memoryRun), ttl: ttl, now: time.Now}
}

// Put implements RunIndex. Expired records are swept at most once per ttl.
func (m *MemoryRunIndex) Put(_ context.Context, runID string, rec RunRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	if m.ttl > 0 && now.Sub(m.lastSweep) >= m.ttl {
		m.lastSweep = now
		for id, run := range m.runs {
			if m.expired(run, now) {
				delete(m.runs, id)
			}
		}
	}
	m.runs[runID] = memoryRun{rec: rec, stored: now}
	return nil
}

// Get implements RunIndex.
func (m *MemoryRunIndex) Get(_ context.Context, runID string) (RunRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	run, ok := m.runs[runID]
	if !ok || m.expired(run, m.now()) {
		return RunRecord{}, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	return run.rec, nil
}

// Len returns the number of records held, expired ones included until they
// are swept.
func (m *MemoryRunIndex) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.runs)
}

func (m *MemoryRunIndex) expired(run memoryRun, now time.Time) bool {
	return m.ttl > 0 && now.Sub(run.stored) >= m.ttl
}

// RedisRunIndex keeps run records in Redis under {prefix}runs:{run_id} so
// that any server instance sharing the checkpoint store can resume a run.
type RedisRunIndex struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
}

// NewRedisRunIndex creates an index. Records expire after ttl; zero keeps
// them forever.
func NewRedisRunIndex(client redis.UniversalClient, prefix string, ttl time.Duration) *RedisRunIndex {
	return &RedisRunIndex{client: client, prefix: prefix, ttl: ttl}
}

func (r *RedisRunIndex) key(runID string) string {
	return r.prefix + "runs:" + runID
}

// Put implements RunIndex.
func (r *RedisRunIndex) Put(ctx context.Context, runID string, rec RunRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode run record: %w", err)
	}
	if err := r.client.Set(ctx, r.key(runID), data, r.ttl).Err(); err != nil {
		return fmt.Errorf("save run record: %w", err)
	}
	return nil
}

// Get implements RunIndex.
func (r *RedisRunIndex) Get(ctx context.Context, runID string) (RunRecord, error) {
	data, err := r.client.Get(ctx, r.key(runID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return RunRecord{}, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	if err != nil {
		return RunRecord{}, fmt.Errorf("load run record: %w", err)
	}
	var rec RunRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return RunRecord{}, fmt.Errorf("decode run record: %w", err)
	}
	return rec, nil
}
