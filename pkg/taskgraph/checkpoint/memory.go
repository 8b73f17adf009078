package checkpoint

import (
	"context"
	"slices"
	"sync"
	"time"
)

// MemoryStore is an in-memory checkpoint store.
// Data is lost when the process exits.
type MemoryStore struct {
	mu     sync.RWMutex
	runs   map[string]*memoryRun
	closed bool

	ttl       time.Duration
	lastSweep time.Time
	now       func() time.Time
}

// memoryRun holds one run's encoded checkpoints by sequence.
type memoryRun struct {
	checkpoints map[int][]byte
	touched     time.Time
}

// NewMemoryStore creates a new in-memory checkpoint store that keeps every
// run until it is deleted.
func NewMemoryStore() *MemoryStore {
	return NewMemoryStoreWithTTL(0)
}

// NewMemoryStoreWithTTL creates an in-memory store that forgets a run once
// ttl has passed since its last Save, matching the expiry of the Redis
// store. Expired runs are swept lazily on Save. Zero disables expiry.
func NewMemoryStoreWithTTL(ttl time.Duration) *MemoryStore {
	return &MemoryStore{
		runs: make(map[string]*memoryRun),
		ttl:  ttl,
		now:  time.Now,
	}
}

// Save implements Store.
func (m *MemoryStore) Save(_ context.Context, cp *Checkpoint) error {
	if err := validate(cp); err != nil {
		return err
	}
	data, err := cp.Marshal()
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrStoreClosed
	}

	now := m.now()
	m.sweep(now)

	run := m.runs[cp.RunID]
	if run == nil || m.expired(run, now) {
		run = &memoryRun{checkpoints: make(map[int][]byte)}
		m.runs[cp.RunID] = run
	}
	run.checkpoints[cp.Sequence] = data
	run.touched = now
	return nil
}

// sweep drops expired runs, at most once per ttl. Callers hold the write lock.
func (m *MemoryStore) sweep(now time.Time) {
	if m.ttl <= 0 || now.Sub(m.lastSweep) < m.ttl {
		return
	}
	m.lastSweep = now
	for runID, run := range m.runs {
		if m.expired(run, now) {
			delete(m.runs, runID)
		}
	}
}

func (m *MemoryStore) expired(run *memoryRun, now time.Time) bool {
	return m.ttl > 0 && now.Sub(run.touched) >= m.ttl
}

// live returns the run's checkpoints, or nil when the run is unknown or
// expired. Callers hold at least the read lock.
func (m *MemoryStore) live(runID string) map[int][]byte {
	run := m.runs[runID]
	if run == nil || m.expired(run, m.now()) {
		return nil
	}
	return run.checkpoints
}

// Load implements Store.
func (m *MemoryStore) Load(_ context.Context, runID string, sequence int) (*Checkpoint, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, ErrStoreClosed
	}

	data, ok := m.live(runID)[sequence]
	if !ok {
		return nil, ErrNotFound
	}
	return Unmarshal(data)
}

// Latest implements Store.
func (m *MemoryStore) Latest(_ context.Context, runID string) (*Checkpoint, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, ErrStoreClosed
	}

	run := m.live(runID)
	if len(run) == 0 {
		return nil, ErrNotFound
	}

	latest := 0
	for seq := range run {
		latest = max(latest, seq)
	}
	return Unmarshal(run[latest])
}

// List implements Store.
func (m *MemoryStore) List(_ context.Context, runID string) ([]Info, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, ErrStoreClosed
	}

	run := m.live(runID)
	infos := make([]Info, 0, len(run))
	for _, data := range run {
		cp, err := Unmarshal(data)
		if err != nil {
			return nil, err
		}
		infos = append(infos, cp.Info(int64(len(data))))
	}

	slices.SortFunc(infos, func(a, b Info) int {
		return a.Sequence - b.Sequence
	})
	return infos, nil
}

// DeleteRun implements Store.
func (m *MemoryStore) DeleteRun(_ context.Context, runID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrStoreClosed
	}

	delete(m.runs, runID)
	return nil
}

// Close implements Store.
func (m *MemoryStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.closed = true
	m.runs = nil
	return nil
}

// Len returns the total number of checkpoints held, expired runs included
// until they are swept.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	count := 0
	for _, run := range m.runs {
		count += len(run.checkpoints)
	}
	return count
}
