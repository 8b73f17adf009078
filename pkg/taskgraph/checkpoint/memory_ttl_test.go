package checkpoint

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClock is a manually advanced time source.
type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func TestMemoryStore_TTL(t *testing.T) {
	ctx := context.Background()
	clock := &fakeClock{t: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	store := NewMemoryStoreWithTTL(time.Hour)
	store.now = clock.now
	defer store.Close()

	require.NoError(t, store.Save(ctx, New("old", "a", 1, []byte(`{}`), "b")))
	clock.advance(30 * time.Minute)
	require.NoError(t, store.Save(ctx, New("fresh", "a", 1, []byte(`{}`), "b")))

	clock.advance(45 * time.Minute)

	_, err := store.Latest(ctx, "old")
	assert.ErrorIs(t, err, ErrNotFound, "expired runs are hidden before the sweep")
	infos, err := store.List(ctx, "old")
	require.NoError(t, err)
	assert.Empty(t, infos)

	got, err := store.Latest(ctx, "fresh")
	require.NoError(t, err)
	assert.Equal(t, "fresh", got.RunID)

	require.NoError(t, store.Save(ctx, New("fresh", "b", 2, []byte(`{}`), "c")))
	assert.Equal(t, 2, store.Len(), "the sweep dropped the expired run")

	clock.advance(2 * time.Hour)
	require.NoError(t, store.Save(ctx, New("fresh", "c", 3, []byte(`{}`), "d")))
	infos, err = store.List(ctx, "fresh")
	require.NoError(t, err)
	require.Len(t, infos, 1, "an expired run restarts empty")
	assert.Equal(t, 3, infos[0].Sequence)
}

func TestMemoryStore_NoTTLKeepsRuns(t *testing.T) {
	ctx := context.Background()
	clock := &fakeClock{t: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	store := NewMemoryStore()
	store.now = clock.now
	defer store.Close()

	require.NoError(t, store.Save(ctx, New("run", "a", 1, []byte(`{}`), "b")))
	clock.advance(365 * 24 * time.Hour)
	require.NoError(t, store.Save(ctx, New("other", "a", 1, []byte(`{}`), "b")))

	_, err := store.Latest(ctx, "run")
	assert.NoError(t, err)
	assert.Equal(t, 2, store.Len())
}
